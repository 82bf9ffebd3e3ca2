package llm_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/xhad/minutemate/pkg/llm"
)

// fakeModel replays scripted replies and records what it was asked.
type fakeModel struct {
	mu       sync.Mutex
	replies  []string
	errs     []error
	calls    int
	messages [][]llms.MessageContent
	opts     []llms.CallOptions
	chunks   []string
}

func (f *fakeModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	f.mu.Lock()
	idx := f.calls
	f.calls++
	f.messages = append(f.messages, messages)
	var opts llms.CallOptions
	for _, o := range options {
		o(&opts)
	}
	f.opts = append(f.opts, opts)
	f.mu.Unlock()

	if idx < len(f.errs) && f.errs[idx] != nil {
		return nil, f.errs[idx]
	}
	reply := ""
	if idx < len(f.replies) {
		reply = f.replies[idx]
	}
	if opts.StreamingFunc != nil {
		for _, c := range f.chunks {
			if err := opts.StreamingFunc(ctx, []byte(c)); err != nil {
				return nil, err
			}
		}
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: reply}}}, nil
}

func (f *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

func TestNewWithConfig(t *testing.T) {
	engine, err := llm.NewWithConfig(llm.ChatConfig{
		Provider:    "ollama",
		Model:       "mistral",
		Temperature: 0.5,
		BaseURL:     "http://localhost:11434",
	}, nil)
	assert.NoError(t, err)
	assert.NotNil(t, engine)

	_, err = llm.NewWithConfig(llm.ChatConfig{Provider: "anthropic-ish"}, nil)
	assert.Error(t, err)

	_, err = llm.NewWithConfig(llm.ChatConfig{Provider: "ollama", Temperature: 5}, nil)
	assert.Error(t, err)
}

func TestComplete(t *testing.T) {
	model := &fakeModel{replies: []string{"Cleaned text."}}
	engine, err := llm.New(model, llm.ChatConfig{Model: "gpt-4", Temperature: 0.5, MaxTokens: 500}, nil)
	require.NoError(t, err)

	out, err := engine.Complete(context.Background(), "system prompt", "user prompt")
	require.NoError(t, err)
	assert.Equal(t, "Cleaned text.", out)

	require.Len(t, model.messages, 1)
	msgs := model.messages[0]
	require.Len(t, msgs, 2)
	assert.Equal(t, llms.ChatMessageTypeSystem, msgs[0].Role)
	assert.Equal(t, llms.ChatMessageTypeHuman, msgs[1].Role)
	assert.Equal(t, llms.TextContent{Text: "user prompt"}, msgs[1].Parts[0])

	assert.Equal(t, "gpt-4", model.opts[0].Model)
	assert.Equal(t, 0.5, model.opts[0].Temperature)
	assert.Equal(t, 500, model.opts[0].MaxTokens)
}

func TestCompleteRetriesOnce(t *testing.T) {
	model := &fakeModel{
		errs:    []error{errors.New("503 service unavailable")},
		replies: []string{"", "second try"},
	}
	engine, err := llm.New(model, llm.ChatConfig{RetryDelay: time.Millisecond}, nil)
	require.NoError(t, err)

	out, err := engine.Complete(context.Background(), "", "hello")
	require.NoError(t, err)
	assert.Equal(t, "second try", out)
	assert.Equal(t, 2, model.calls)
	assert.Len(t, model.messages[1], 1, "empty system message is omitted")
}

func TestCompleteGivesUpAfterRetry(t *testing.T) {
	boom := errors.New("boom")
	model := &fakeModel{errs: []error{boom, boom, boom}}
	engine, err := llm.New(model, llm.ChatConfig{RetryDelay: time.Millisecond}, nil)
	require.NoError(t, err)

	_, err = engine.Complete(context.Background(), "s", "u")
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, model.calls)
}

func TestCompleteHonoursCancellation(t *testing.T) {
	model := &fakeModel{replies: []string{"never"}}
	engine, err := llm.New(model, llm.ChatConfig{}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = engine.Complete(ctx, "s", "u")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, model.calls)
}

func TestStream(t *testing.T) {
	model := &fakeModel{chunks: []string{"The ", "budget ", "passed."}, replies: []string{"The budget passed."}}
	engine, err := llm.New(model, llm.ChatConfig{}, nil)
	require.NoError(t, err)

	var got []string
	full, err := engine.Stream(context.Background(), "s", "u", func(tok string) error {
		got = append(got, tok)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "The budget passed.", full)
	assert.Equal(t, []string{"The ", "budget ", "passed."}, got)
}

func TestStreamFallsBackToWholeReply(t *testing.T) {
	model := &fakeModel{replies: []string{"no streaming here"}}
	engine, err := llm.New(model, llm.ChatConfig{}, nil)
	require.NoError(t, err)

	var got []string
	full, err := engine.Stream(context.Background(), "s", "u", func(tok string) error {
		got = append(got, tok)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "no streaming here", full)
	assert.Equal(t, []string{"no streaming here"}, got)
}
