// Package ingest writes clean meeting text into the vector index and drives
// artifacts through the full ingestion pipeline.
package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/xhad/minutemate/internal/models"
	"github.com/xhad/minutemate/internal/types"
	"github.com/xhad/minutemate/pkg/logger"
	"github.com/xhad/minutemate/pkg/processor"
)

// PartialIngestError reports that some chunks could not be written.
type PartialIngestError struct {
	Expected int
	Written  int
}

func (e *PartialIngestError) Error() string {
	return fmt.Sprintf("partial ingestion: wrote %d of %d chunks", e.Written, e.Expected)
}

type IngestorConfig struct {
	ChunkSize    int
	IndexTimeout time.Duration
}

// Ingestor replaces the chunks of one identity with a fresh generation.
type Ingestor struct {
	config   IngestorConfig
	tok      types.Tokenizer
	embedder types.TextEmbedder
	store    types.VectorStore
	log      *logger.Logger
}

func NewIngestor(config IngestorConfig, tok types.Tokenizer, embedder types.TextEmbedder, store types.VectorStore, log *logger.Logger) *Ingestor {
	if config.ChunkSize <= 0 {
		config.ChunkSize = 250
	}
	if config.IndexTimeout <= 0 {
		config.IndexTimeout = 30 * time.Second
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Ingestor{
		config:   config,
		tok:      tok,
		embedder: embedder,
		store:    store,
		log:      log.With("component", "ingest.ingestor"),
	}
}

// Ingest chunks cleanText, deletes the identity's previous chunks and writes
// the new ones. It returns the number written; a shortfall comes back as a
// *PartialIngestError alongside the count.
func (i *Ingestor) Ingest(ctx context.Context, cleanText string, identity models.Identity) (int, error) {
	log := i.log.With("source_document", identity.SourceDocument, "meeting_date", identity.MeetingDate)

	windows := processor.SplitWindows(i.tok, cleanText, i.config.ChunkSize)

	unlock, err := i.store.LockIdentity(ctx, identity)
	if err != nil {
		return 0, fmt.Errorf("failed to lock identity: %w", err)
	}
	defer unlock()

	if err := i.deletePrevious(ctx, identity, log); err != nil {
		return 0, err
	}

	written := 0
	for _, w := range windows {
		if err := ctx.Err(); err != nil {
			log.Warn("ingestion cancelled", "written", written, "expected", len(windows))
			return written, err
		}
		if err := i.writeChunk(ctx, identity, w); err != nil {
			log.Error("failed to write chunk", "chunk_index", w.Index, "error", err)
			continue
		}
		written++
	}

	log.Info("ingested chunks", "written", written, "expected", len(windows))
	if written < len(windows) {
		return written, &PartialIngestError{Expected: len(windows), Written: written}
	}
	return written, nil
}

// deletePrevious removes every chunk matching identity. A failed lookup is
// fatal; a failed delete is logged and skipped.
func (i *Ingestor) deletePrevious(ctx context.Context, identity models.Identity, log *logger.Logger) error {
	fctx, cancel := context.WithTimeout(ctx, i.config.IndexTimeout)
	existing, err := i.store.FindByIdentity(fctx, identity)
	cancel()
	if err != nil {
		return fmt.Errorf("failed to find existing chunks: %w", err)
	}
	if len(existing) == 0 {
		log.Debug("no existing chunks")
		return nil
	}

	failed := 0
	for _, c := range existing {
		dctx, cancel := context.WithTimeout(ctx, i.config.IndexTimeout)
		err := i.store.Delete(dctx, c.ID)
		cancel()
		if err != nil {
			failed++
			log.Error("failed to delete existing chunk, prior generation may persist", "id", c.ID, "chunk_index", c.ChunkIndex, "error", err)
		}
	}
	log.Info("deleted existing chunks", "deleted", len(existing)-failed, "failed", failed)
	return nil
}

func (i *Ingestor) writeChunk(ctx context.Context, identity models.Identity, w processor.Window) error {
	vec, err := i.embedder.EmbedText(ctx, w.Text)
	if err != nil {
		return fmt.Errorf("embedding: %w", err)
	}

	ictx, cancel := context.WithTimeout(ctx, i.config.IndexTimeout)
	defer cancel()
	_, err = i.store.Insert(ictx, models.Chunk{
		Identity:   identity,
		ChunkIndex: w.Index,
		Content:    w.Text,
		Embedding:  vec,
	})
	if err != nil {
		return fmt.Errorf("insert: %w", err)
	}
	return nil
}
