package types

import (
	"context"

	"github.com/xhad/minutemate/internal/models"
)

// Core interfaces

type ObjectStore interface {
	Put(ctx context.Context, ns models.Namespace, name string, data []byte) error
	Get(ctx context.Context, ns models.Namespace, name string) ([]byte, error)
	GetText(ctx context.Context, ns models.Namespace, name string) (string, error)
	List(ctx context.Context, ns models.Namespace) (map[string][]string, error)
}

type VectorStore interface {
	Insert(ctx context.Context, chunk models.Chunk) (string, error)
	Delete(ctx context.Context, id string) error
	FindByIdentity(ctx context.Context, identity models.Identity) ([]models.StoredChunk, error)
	KeywordSearch(ctx context.Context, query string, limit int) ([]models.SearchHit, error)
	VectorSearch(ctx context.Context, embedding []float32, limit int) ([]models.SearchHit, error)
	// LockIdentity serializes ingestion for one identity. The returned
	// func releases the lock.
	LockIdentity(ctx context.Context, identity models.Identity) (func(), error)
	Close()
}

// Embedder matches the langchaingo embedding client signature.
type Embedder interface {
	CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error)
}

// TextEmbedder embeds one text and fails when no vector comes back.
type TextEmbedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
}

type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

type StreamCompleter interface {
	Completer
	Stream(ctx context.Context, system, user string, onToken func(string) error) (string, error)
}

type Tokenizer interface {
	Encode(text string) []int
	Decode(tokens []int) string
}

type Extractor interface {
	Extract(ctx context.Context, artifact models.Artifact) (string, bool)
}

type Cleaner interface {
	Clean(ctx context.Context, dirty string) (string, error)
}

type Retriever interface {
	Search(ctx context.Context, query string, mode models.SearchMode) ([]models.ContextSegment, []string)
}
