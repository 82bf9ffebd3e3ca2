package config

import (
	"fmt"
	"net/url"
	"strings"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors joins a Validate result into a single error.
type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	msgs := make([]string, 0, len(v))
	for _, e := range v {
		msgs = append(msgs, e.Error())
	}
	return "invalid config: " + strings.Join(msgs, "; ")
}

func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	// LLM
	switch c.LLM.Provider {
	case "openai":
		if c.LLM.APIKey == "" {
			errors = append(errors, ValidationError{
				Field:   "llm.api_key",
				Message: "OpenAI API key is required (set OPENAI_API_KEY)",
			})
		}
	case "ollama":
		if c.LLM.BaseURL == "" {
			errors = append(errors, ValidationError{
				Field:   "llm.base_url",
				Message: "Ollama base URL is required",
			})
		}
	default:
		errors = append(errors, ValidationError{
			Field:   "llm.provider",
			Message: fmt.Sprintf("unsupported provider: %s", c.LLM.Provider),
		})
	}

	if c.LLM.BaseURL != "" {
		if _, err := url.Parse(c.LLM.BaseURL); err != nil {
			errors = append(errors, ValidationError{
				Field:   "llm.base_url",
				Message: "invalid base URL",
			})
		}
	}

	if c.LLM.MaxTokens < 1 || c.LLM.MaxTokens > 4096 {
		errors = append(errors, ValidationError{
			Field:   "llm.max_tokens",
			Message: "max_tokens must be between 1 and 4096",
		})
	}

	if t := c.LLM.Temperature; t != nil && (*t < 0 || *t > 2) {
		errors = append(errors, ValidationError{
			Field:   "llm.temperature",
			Message: "temperature must be between 0 and 2",
		})
	}
	if t := c.Processor.Temperature; t != nil && (*t < 0 || *t > 2) {
		errors = append(errors, ValidationError{
			Field:   "processor.temperature",
			Message: "temperature must be between 0 and 2",
		})
	}

	// Vector index
	switch c.Database.Backend {
	case "postgres":
		if c.Database.URL == "" {
			errors = append(errors, ValidationError{
				Field:   "database.url",
				Message: "database URL is required for the postgres backend",
			})
		} else if _, err := url.Parse(c.Database.URL); err != nil {
			errors = append(errors, ValidationError{
				Field:   "database.url",
				Message: "invalid database URL",
			})
		}
	case "memory":
	default:
		errors = append(errors, ValidationError{
			Field:   "database.backend",
			Message: fmt.Sprintf("unsupported backend: %s", c.Database.Backend),
		})
	}

	if c.Database.VectorDim < 1 {
		errors = append(errors, ValidationError{
			Field:   "database.vector_dim",
			Message: "vector_dim must be positive",
		})
	}

	// Object store
	switch c.Storage.Backend {
	case "gcs":
		if c.Storage.Bucket == "" {
			errors = append(errors, ValidationError{
				Field:   "storage.bucket",
				Message: "bucket is required for the gcs backend",
			})
		}
	case "local":
		if c.Storage.LocalRoot == "" {
			errors = append(errors, ValidationError{
				Field:   "storage.local_root",
				Message: "local_root is required for the local backend",
			})
		}
	default:
		errors = append(errors, ValidationError{
			Field:   "storage.backend",
			Message: fmt.Sprintf("unsupported backend: %s", c.Storage.Backend),
		})
	}

	// Speech
	if c.Speech.Model != "best" && c.Speech.Model != "nano" {
		errors = append(errors, ValidationError{
			Field:   "speech.model",
			Message: "model must be best or nano",
		})
	}
	if c.Speech.PollMax < c.Speech.PollInitial {
		errors = append(errors, ValidationError{
			Field:   "speech.poll_max",
			Message: "poll_max must not be less than poll_initial",
		})
	}

	// Processor
	if c.Processor.WindowTokens < 1 {
		errors = append(errors, ValidationError{
			Field:   "processor.window_tokens",
			Message: "window_tokens must be positive",
		})
	}
	if c.Processor.ChunkSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "processor.chunk_size",
			Message: "chunk_size must be positive",
		})
	}
	if c.Processor.Concurrency < 1 {
		errors = append(errors, ValidationError{
			Field:   "processor.concurrency",
			Message: "concurrency must be positive",
		})
	}

	// Retrieval
	if c.Retrieval.Mode != "keyword" && c.Retrieval.Mode != "vector" {
		errors = append(errors, ValidationError{
			Field:   "retrieval.mode",
			Message: "mode must be keyword or vector",
		})
	}

	// Scraper
	if c.Scraper.MaxDepth < 1 {
		errors = append(errors, ValidationError{
			Field:   "scraper.max_depth",
			Message: "max_depth must be positive",
		})
	}
	if c.Scraper.RateLimit <= 0 {
		errors = append(errors, ValidationError{
			Field:   "scraper.rate_limit",
			Message: "rate_limit must be positive",
		})
	}

	return errors
}
