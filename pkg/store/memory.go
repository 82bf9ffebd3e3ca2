package store

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/xhad/minutemate/internal/models"
)

// BM25 parameters for the in-memory backend.
const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

type memRecord struct {
	id    string
	chunk models.Chunk
	terms []string
}

// MemoryStore is an in-process index used for local runs and tests. Keyword
// search scores with Okapi BM25; vector search ranks by cosine distance.
type MemoryStore struct {
	mu      sync.RWMutex
	records []memRecord

	lockMu sync.Mutex
	locks  map[string]*sync.Mutex
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{locks: make(map[string]*sync.Mutex)}
}

func (m *MemoryStore) Insert(ctx context.Context, chunk models.Chunk) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	id := uuid.NewString()
	chunk.Embedding = append([]float32(nil), chunk.Embedding...)

	m.mu.Lock()
	m.records = append(m.records, memRecord{id: id, chunk: chunk, terms: terms(chunk.Content)})
	m.mu.Unlock()
	return id, nil
}

func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, r := range m.records {
		if r.id == id {
			m.records = append(m.records[:i], m.records[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("chunk %s: %w", id, ErrNotFound)
}

func (m *MemoryStore) FindByIdentity(ctx context.Context, identity models.Identity) ([]models.StoredChunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.StoredChunk
	for _, r := range m.records {
		if r.chunk.Identity == identity {
			out = append(out, models.StoredChunk{ID: r.id, Chunk: r.chunk})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ChunkIndex < out[j].ChunkIndex })
	return out, nil
}

func (m *MemoryStore) KeywordSearch(ctx context.Context, query string, limit int) ([]models.SearchHit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	qterms := uniq(terms(query))
	if len(qterms) == 0 {
		return nil, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	n := len(m.records)
	if n == 0 {
		return nil, nil
	}

	df := make(map[string]int, len(qterms))
	var totalLen int
	for _, r := range m.records {
		totalLen += len(r.terms)
		seen := map[string]bool{}
		for _, t := range r.terms {
			seen[t] = true
		}
		for _, q := range qterms {
			if seen[q] {
				df[q]++
			}
		}
	}
	avgLen := float64(totalLen) / float64(n)
	if avgLen == 0 {
		avgLen = 1
	}

	type scored struct {
		rec   memRecord
		score float64
	}
	var results []scored
	for _, r := range m.records {
		tf := map[string]int{}
		for _, t := range r.terms {
			tf[t]++
		}
		var score float64
		for _, q := range qterms {
			f := float64(tf[q])
			if f == 0 {
				continue
			}
			idf := math.Log(1 + (float64(n)-float64(df[q])+0.5)/(float64(df[q])+0.5))
			norm := f * (bm25K1 + 1) / (f + bm25K1*(1-bm25B+bm25B*float64(len(r.terms))/avgLen))
			score += idf * norm
		}
		if score > 0 {
			results = append(results, scored{rec: r, score: score})
		}
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].score > results[j].score })
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}

	hits := make([]models.SearchHit, 0, len(results))
	for _, s := range results {
		score := s.score
		hits = append(hits, models.SearchHit{ID: s.rec.id, Properties: s.rec.chunk.Properties(), Score: &score})
	}
	return hits, nil
}

func (m *MemoryStore) VectorSearch(ctx context.Context, embedding []float32, limit int) ([]models.SearchHit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	type scored struct {
		rec  memRecord
		dist float64
	}
	results := make([]scored, 0, len(m.records))
	for _, r := range m.records {
		if len(r.chunk.Embedding) != len(embedding) {
			continue
		}
		results = append(results, scored{rec: r, dist: cosineDistance(embedding, r.chunk.Embedding)})
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].dist < results[j].dist })
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}

	hits := make([]models.SearchHit, 0, len(results))
	for _, s := range results {
		d := s.dist
		hits = append(hits, models.SearchHit{ID: s.rec.id, Properties: s.rec.chunk.Properties(), Score: &d})
	}
	return hits, nil
}

func (m *MemoryStore) LockIdentity(ctx context.Context, identity models.Identity) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key := identity.String()

	m.lockMu.Lock()
	l, ok := m.locks[key]
	if !ok {
		l = &sync.Mutex{}
		m.locks[key] = l
	}
	m.lockMu.Unlock()

	l.Lock()
	return l.Unlock, nil
}

// Len reports the number of stored chunks.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

func (m *MemoryStore) Close() {}

// cosineDistance matches pgvector's <=> operator: 1 - cosine similarity.
func cosineDistance(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}

var wordRe = regexp.MustCompile(`[\p{L}\p{N}]+`)

func terms(s string) []string {
	words := wordRe.FindAllString(strings.ToLower(s), -1)
	return words
}

func uniq(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0:0]
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
