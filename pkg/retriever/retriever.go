// Package retriever finds indexed meeting chunks relevant to a question.
package retriever

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/xhad/minutemate/internal/models"
	"github.com/xhad/minutemate/internal/types"
	"github.com/xhad/minutemate/pkg/logger"
)

var _ types.Retriever = (*Retriever)(nil)

type RetrieverConfig struct {
	Limit       int
	MaxKeywords int
	Timeout     time.Duration
}

type Retriever struct {
	config   RetrieverConfig
	store    types.VectorStore
	embedder types.TextEmbedder
	rake     *Rake
	log      *logger.Logger
}

func New(config RetrieverConfig, store types.VectorStore, embedder types.TextEmbedder, log *logger.Logger) *Retriever {
	if config.Limit <= 0 {
		config.Limit = 5
	}
	if config.MaxKeywords <= 0 {
		config.MaxKeywords = 3
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Retriever{
		config:   config,
		store:    store,
		embedder: embedder,
		rake:     NewRake(),
		log:      log.With("component", "retriever"),
	}
}

// Search never fails: backend errors come back as empty segments and
// keywords.
func (r *Retriever) Search(ctx context.Context, query string, mode models.SearchMode) ([]models.ContextSegment, []string) {
	var (
		hits     []models.SearchHit
		keywords []string
		err      error
	)

	switch mode {
	case models.SearchKeyword:
		keywords = r.rake.Top(query, r.config.MaxKeywords)
		hits, err = r.keyword(ctx, keywords)
	case models.SearchVector:
		hits, err = r.vector(ctx, query)
	default:
		err = fmt.Errorf("unknown search mode %q", mode)
	}
	if err != nil {
		r.log.Error("search failed", "mode", mode, "error", err)
		return []models.ContextSegment{}, []string{}
	}

	segments := make([]models.ContextSegment, 0, len(hits))
	for _, h := range hits {
		segments = append(segments, normalize(h))
	}
	if keywords == nil {
		keywords = []string{}
	}
	r.log.Debug("search complete", "mode", mode, "segments", len(segments), "keywords", keywords)
	return segments, keywords
}

func (r *Retriever) keyword(ctx context.Context, keywords []string) ([]models.SearchHit, error) {
	q := strings.Join(keywords, ",")
	if q == "" {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(ctx, r.config.Timeout)
	defer cancel()
	return r.store.KeywordSearch(ctx, q, r.config.Limit)
}

func (r *Retriever) vector(ctx context.Context, query string) ([]models.SearchHit, error) {
	vec, err := r.embedder.EmbedText(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, r.config.Timeout)
	defer cancel()
	return r.store.VectorSearch(ctx, vec, r.config.Limit)
}

// normalize maps a hit onto a segment, filling absent fields with defaults.
func normalize(h models.SearchHit) models.ContextSegment {
	p := h.Properties
	id, ok := toInt(p[models.PropChunkID])
	if !ok {
		id, _ = toInt(p[models.PropChunkIndex])
	}
	content, _ := p[models.PropContent].(string)
	return models.ContextSegment{
		ChunkID:        id,
		Content:        content,
		Score:          h.Score,
		MeetingDate:    metaString(p, models.PropMeetingDate),
		MeetingType:    metaString(p, models.PropMeetingType),
		FileType:       metaString(p, models.PropFileType),
		SourceDocument: metaString(p, models.PropSourceDocument),
	}
}

func metaString(p map[string]interface{}, key string) string {
	switch v := p[key].(type) {
	case string:
		if strings.TrimSpace(v) != "" {
			return v
		}
	case fmt.Stringer:
		return v.String()
	}
	return models.NotAvailable
}

func toInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float32:
		return int(n), !math.IsNaN(float64(n))
	case float64:
		return int(n), !math.IsNaN(n)
	case json.Number:
		i, err := n.Int64()
		return int(i), err == nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		return i, err == nil
	}
	return 0, false
}
