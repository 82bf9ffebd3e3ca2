package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xhad/minutemate/internal/types"
	"github.com/xhad/minutemate/pkg/logger"
)

type EmbedderConfig struct {
	Provider   string
	Model      string
	APIKey     string
	BaseURL    string
	Timeout    time.Duration
	RetryDelay time.Duration
}

// Embedder wraps an embedding client with a per-call timeout and a single retry.
type Embedder struct {
	Config EmbedderConfig
	client types.Embedder
	log    *logger.Logger
}

var ErrNoEmbedding = errors.New("embedding service returned no vectors")

func applyEmbedderDefaults(config EmbedderConfig) EmbedderConfig {
	if config.Provider == "" {
		config.Provider = "openai"
	}
	if config.Model == "" {
		if config.Provider == "ollama" {
			config.Model = "nomic-embed-text:latest"
		} else {
			config.Model = "text-embedding-3-small"
		}
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.RetryDelay == 0 {
		config.RetryDelay = 200 * time.Millisecond
	}
	return config
}

func NewEmbedderWithConfig(config EmbedderConfig, log *logger.Logger) (*Embedder, error) {
	config = applyEmbedderDefaults(config)

	var (
		client types.Embedder
		err    error
	)
	if config.Provider == "ollama" {
		client, err = newModel("ollama", config.Model, "", config.BaseURL, "")
	} else {
		client, err = newModel(config.Provider, "", config.APIKey, config.BaseURL, config.Model)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	return NewEmbedder(client, config, log), nil
}

func NewEmbedder(client types.Embedder, config EmbedderConfig, log *logger.Logger) *Embedder {
	if log == nil {
		log = logger.Nop()
	}
	config = applyEmbedderDefaults(config)
	return &Embedder{
		Config: config,
		client: client,
		log:    log.With("component", "llm.embedder", "model", config.Model),
	}
}

func (e *Embedder) CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	var out [][]float32
	err := callWithRetry(ctx, e.log, "embed", e.Config.Timeout, e.Config.RetryDelay, func(ctx context.Context) error {
		vecs, err := e.client.CreateEmbedding(ctx, texts)
		if err != nil {
			return err
		}
		out = vecs
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create embeddings: %w", err)
	}
	return out, nil
}

// EmbedText embeds a single text.
func (e *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.CreateEmbedding(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 || len(vecs[0]) == 0 {
		return nil, ErrNoEmbedding
	}
	return vecs[0], nil
}
