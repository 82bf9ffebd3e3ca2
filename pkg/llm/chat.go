package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/xhad/minutemate/pkg/logger"
)

// ChatConfig represents the configuration for a chat engine.
type ChatConfig struct {
	Provider    string // openai or ollama
	Model       string
	APIKey      string
	BaseURL     string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
	// RetryDelay is the pause before the single retry of a failed call.
	RetryDelay time.Duration
}

// ChatEngine issues system+user completions against a langchaingo model.
type ChatEngine struct {
	config ChatConfig
	llm    llms.Model
	log    *logger.Logger
}

var ErrEmptyCompletion = errors.New("empty completion")

func applyChatDefaults(config ChatConfig) (ChatConfig, error) {
	if config.Provider == "" {
		config.Provider = "openai"
	}
	if config.Model == "" {
		config.Model = "gpt-4o"
	}
	if config.Temperature < 0 || config.Temperature > 2 {
		return config, fmt.Errorf("temperature must be between 0 and 2")
	}
	if config.MaxTokens < 0 {
		return config, fmt.Errorf("max tokens cannot be negative")
	} else if config.MaxTokens == 0 {
		config.MaxTokens = 1000
	}
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}
	if config.RetryDelay == 0 {
		config.RetryDelay = 500 * time.Millisecond
	}
	return config, nil
}

// NewWithConfig creates a new ChatEngine backed by the configured provider.
func NewWithConfig(config ChatConfig, log *logger.Logger) (*ChatEngine, error) {
	config, err := applyChatDefaults(config)
	if err != nil {
		return nil, err
	}

	model, err := newModel(config.Provider, config.Model, config.APIKey, config.BaseURL, "")
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM: %w", err)
	}

	return New(model, config, log)
}

// New wraps an existing model.
func New(model llms.Model, config ChatConfig, log *logger.Logger) (*ChatEngine, error) {
	config, err := applyChatDefaults(config)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Nop()
	}
	return &ChatEngine{
		config: config,
		llm:    model,
		log:    log.With("component", "llm.chat", "model", config.Model),
	}, nil
}

func newModel(provider, model, apiKey, baseURL, embeddingModel string) (interface {
	llms.Model
	CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error)
}, error) {
	switch provider {
	case "openai":
		opts := []openai.Option{openai.WithToken(apiKey)}
		if model != "" {
			opts = append(opts, openai.WithModel(model))
		}
		if embeddingModel != "" {
			opts = append(opts, openai.WithEmbeddingModel(embeddingModel))
		}
		if baseURL != "" {
			opts = append(opts, openai.WithBaseURL(baseURL))
		}
		return openai.New(opts...)
	case "ollama":
		if baseURL == "" {
			baseURL = "http://localhost:11434"
		}
		return ollama.New(ollama.WithModel(model), ollama.WithServerURL(baseURL))
	default:
		return nil, fmt.Errorf("unsupported provider %q", provider)
	}
}

func (ce *ChatEngine) messages(system, user string) []llms.MessageContent {
	content := make([]llms.MessageContent, 0, 2)
	if system != "" {
		content = append(content, llms.TextParts(llms.ChatMessageTypeSystem, system))
	}
	return append(content, llms.TextParts(llms.ChatMessageTypeHuman, user))
}

func (ce *ChatEngine) callOptions(extra ...llms.CallOption) []llms.CallOption {
	opts := []llms.CallOption{
		llms.WithModel(ce.config.Model),
		llms.WithTemperature(ce.config.Temperature),
		llms.WithMaxTokens(ce.config.MaxTokens),
	}
	return append(opts, extra...)
}

// Complete returns the text of the first choice.
func (ce *ChatEngine) Complete(ctx context.Context, system, user string) (string, error) {
	var out string
	err := ce.withRetry(ctx, "complete", func(ctx context.Context) error {
		resp, err := ce.llm.GenerateContent(ctx, ce.messages(system, user), ce.callOptions()...)
		if err != nil {
			return err
		}
		if resp == nil || len(resp.Choices) == 0 || resp.Choices[0] == nil {
			return ErrEmptyCompletion
		}
		out = resp.Choices[0].Content
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("chat error: %w", err)
	}
	return out, nil
}

// Stream forwards tokens to onToken as they arrive and returns the full text.
// A failed stream is not retried once any token has been delivered.
func (ce *ChatEngine) Stream(ctx context.Context, system, user string, onToken func(string) error) (string, error) {
	var (
		sb        strings.Builder
		delivered bool
	)
	stream := llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
		delivered = true
		sb.Write(chunk)
		if onToken == nil {
			return nil
		}
		return onToken(string(chunk))
	})

	err := ce.withRetry(ctx, "stream", func(ctx context.Context) error {
		sb.Reset()
		resp, err := ce.llm.GenerateContent(ctx, ce.messages(system, user), ce.callOptions(stream)...)
		if err != nil {
			if delivered {
				return backoffStop{err}
			}
			return err
		}
		if sb.Len() == 0 && resp != nil && len(resp.Choices) > 0 && resp.Choices[0] != nil {
			// provider did not stream; deliver the whole reply at once
			sb.WriteString(resp.Choices[0].Content)
			if onToken != nil && sb.Len() > 0 {
				return onToken(sb.String())
			}
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("chat stream error: %w", err)
	}
	return sb.String(), nil
}

type backoffStop struct{ err error }

func (b backoffStop) Error() string { return b.err.Error() }
func (b backoffStop) Unwrap() error { return b.err }

// withRetry bounds fn by the configured timeout and retries it once.
func (ce *ChatEngine) withRetry(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	return callWithRetry(ctx, ce.log, op, ce.config.Timeout, ce.config.RetryDelay, fn)
}

func callWithRetry(ctx context.Context, log *logger.Logger, op string, timeout, delay time.Duration, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if attempt > 0 {
			log.Warn("retrying call", "op", op, "error", err)
			t := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, timeout)
		err = fn(callCtx)
		cancel()
		if err == nil {
			return nil
		}
		var stop backoffStop
		if errors.As(err, &stop) {
			return stop.err
		}
		if ctx.Err() != nil {
			return err
		}
	}
	return err
}
