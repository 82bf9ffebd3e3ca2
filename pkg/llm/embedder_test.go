package llm_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/minutemate/pkg/llm"
)

type fakeEmbedClient struct {
	calls int
	fail  int
	dim   int
}

func (f *fakeEmbedClient) CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.calls <= f.fail {
		return nil, errors.New("rate limited")
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, f.dim)
		out[i][0] = float32(len(texts[i]))
	}
	return out, nil
}

func TestNewEmbedderWithConfig(t *testing.T) {
	emb, err := llm.NewEmbedderWithConfig(llm.EmbedderConfig{Provider: "ollama", BaseURL: "http://localhost:11434"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "nomic-embed-text:latest", emb.Config.Model)

	emb, err = llm.NewEmbedderWithConfig(llm.EmbedderConfig{APIKey: "sk-test"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "text-embedding-3-small", emb.Config.Model)
}

func TestEmbedText(t *testing.T) {
	client := &fakeEmbedClient{dim: 4}
	emb := llm.NewEmbedder(client, llm.EmbedderConfig{}, nil)

	vec, err := emb.EmbedText(context.Background(), "budget")
	require.NoError(t, err)
	assert.Len(t, vec, 4)
	assert.Equal(t, float32(6), vec[0])
}

func TestEmbedRetriesOnce(t *testing.T) {
	client := &fakeEmbedClient{dim: 3, fail: 1}
	emb := llm.NewEmbedder(client, llm.EmbedderConfig{RetryDelay: time.Millisecond}, nil)

	vecs, err := emb.CreateEmbedding(context.Background(), []string{"a", "bb"})
	require.NoError(t, err)
	assert.Len(t, vecs, 2)
	assert.Equal(t, 2, client.calls)

	client = &fakeEmbedClient{dim: 3, fail: 5}
	emb = llm.NewEmbedder(client, llm.EmbedderConfig{RetryDelay: time.Millisecond}, nil)
	_, err = emb.EmbedText(context.Background(), "a")
	assert.Error(t, err)
	assert.Equal(t, 2, client.calls)
}

func TestEmbedTextEmpty(t *testing.T) {
	emb := llm.NewEmbedder(&fakeEmbedClient{dim: 0}, llm.EmbedderConfig{}, nil)
	_, err := emb.EmbedText(context.Background(), "x")
	assert.ErrorIs(t, err, llm.ErrNoEmbedding)
}


type batchedClient struct{}

func (batchedClient) CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	return [][]float32{{1, 2}, {3, 4}}, nil
}

func TestEmbedTextKeepsFirstVector(t *testing.T) {
	emb := llm.NewEmbedder(batchedClient{}, llm.EmbedderConfig{}, nil)
	vec, err := emb.EmbedText(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2}, vec)
}
