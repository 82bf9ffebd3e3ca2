package retriever_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/xhad/minutemate/internal/models"
	"github.com/xhad/minutemate/internal/testutil"
	"github.com/xhad/minutemate/pkg/llm"
	"github.com/xhad/minutemate/pkg/retriever"
	"github.com/xhad/minutemate/pkg/store"
)

// mockIndex stubs the search half of a vector store.
type mockIndex struct {
	*store.MemoryStore
	mock.Mock
}

func (m *mockIndex) KeywordSearch(ctx context.Context, q string, limit int) ([]models.SearchHit, error) {
	args := m.Called(q, limit)
	hits, _ := args.Get(0).([]models.SearchHit)
	return hits, args.Error(1)
}

func (m *mockIndex) VectorSearch(ctx context.Context, vec []float32, limit int) ([]models.SearchHit, error) {
	args := m.Called(vec, limit)
	hits, _ := args.Get(0).([]models.SearchHit)
	return hits, args.Error(1)
}

func newMockIndex() *mockIndex {
	return &mockIndex{MemoryStore: store.NewMemoryStore()}
}

func score(f float64) *float64 { return &f }

func TestRakeTop(t *testing.T) {
	r := retriever.NewRake()

	assert.Equal(t,
		[]string{"budget planning document", "summarize"},
		r.Top("Summarize the Budget Planning document", 3))

	got := r.Top("What did the Board of Commissioners decide about the greenway trail, the fire station and the parks budget?", 3)
	assert.Equal(t, []string{"parks budget", "greenway trail", "fire station"}, got)

	assert.Empty(t, r.Top("what is it?", 3))
	assert.Empty(t, r.Top("", 3))
}

func TestRakeDeduplicatesRepeatedPhrases(t *testing.T) {
	r := retriever.NewRake()
	assert.Equal(t, []string{"zoning", "traffic"}, r.Top("zoning and traffic and zoning", 3))
}

func TestKeywordSearch(t *testing.T) {
	idx := newMockIndex()
	idx.On("KeywordSearch", "budget planning document,summarize", 5).Return([]models.SearchHit{
		{ID: "a", Score: score(2.5), Properties: map[string]interface{}{
			"content":         "The budget planning workshop is scheduled.",
			"chunk_index":     3,
			"meeting_date":    "2023-08-01",
			"meeting_type":    "Board of Commissioners",
			"file_type":       "Minutes",
			"source_document": "2023_08_01_BOC_Minutes_Cleaned.txt",
		}},
		{ID: "b", Score: score(1.0), Properties: map[string]interface{}{"content": "Budget item."}},
	}, nil)

	r := retriever.New(retriever.RetrieverConfig{}, idx, &testutil.Embedder{}, nil)
	segments, keywords := r.Search(context.Background(), "Summarize the Budget Planning document", models.SearchKeyword)

	assert.Equal(t, []string{"budget planning document", "summarize"}, keywords)
	require.Len(t, segments, 2)
	assert.Equal(t, models.ContextSegment{
		ChunkID:        3,
		Content:        "The budget planning workshop is scheduled.",
		Score:          score(2.5),
		MeetingDate:    "2023-08-01",
		MeetingType:    "Board of Commissioners",
		FileType:       "Minutes",
		SourceDocument: "2023_08_01_BOC_Minutes_Cleaned.txt",
	}, segments[0])
	assert.Equal(t, models.NotAvailable, segments[1].MeetingDate)
	idx.AssertExpectations(t)
}

func TestKeywordSearchEmptyIndex(t *testing.T) {
	r := retriever.New(retriever.RetrieverConfig{}, store.NewMemoryStore(), &testutil.Embedder{}, nil)

	segments, keywords := r.Search(context.Background(), "Summarize the Budget Planning document", models.SearchKeyword)
	assert.NotNil(t, segments)
	assert.Empty(t, segments)
	assert.NotEmpty(t, keywords)
	assert.LessOrEqual(t, len(keywords), 3)
}

func TestKeywordSearchWithoutKeywordsSkipsBackend(t *testing.T) {
	idx := newMockIndex()
	r := retriever.New(retriever.RetrieverConfig{}, idx, &testutil.Embedder{}, nil)

	segments, keywords := r.Search(context.Background(), "what is it?", models.SearchKeyword)
	assert.Empty(t, segments)
	assert.Empty(t, keywords)
	idx.AssertNotCalled(t, "KeywordSearch", mock.Anything, mock.Anything)
}

func TestVectorSearch(t *testing.T) {
	idx := newMockIndex()
	idx.On("VectorSearch", mock.Anything, 5).Return([]models.SearchHit{
		{ID: "a", Score: score(0.12), Properties: map[string]interface{}{"content": "near", "chunk_id": "7"}},
		{ID: "b", Score: score(0.40), Properties: map[string]interface{}{"content": "far", "chunk_id": json.Number("2")}},
	}, nil)

	r := retriever.New(retriever.RetrieverConfig{}, idx, &testutil.Embedder{}, nil)
	segments, keywords := r.Search(context.Background(), "greenway trail", models.SearchVector)

	assert.Empty(t, keywords)
	require.Len(t, segments, 2)
	assert.Equal(t, 7, segments[0].ChunkID)
	assert.Equal(t, 0.12, *segments[0].Score)
	assert.Equal(t, 2, segments[1].ChunkID)
}

func TestVectorSearchAgainstMemoryStore(t *testing.T) {
	s := store.NewMemoryStore()
	emb := &testutil.Embedder{}
	ctx := context.Background()
	for i, text := range []string{"zzz zzz zzz", "greenway trail extension", "qqq qqq"} {
		vec, err := emb.EmbedText(ctx, text)
		require.NoError(t, err)
		_, err = s.Insert(ctx, models.Chunk{ChunkIndex: i, Content: text, Embedding: vec})
		require.NoError(t, err)
	}

	r := retriever.New(retriever.RetrieverConfig{Limit: 2}, s, emb, nil)
	segments, _ := r.Search(ctx, "greenway trail", models.SearchVector)
	require.Len(t, segments, 2)
	assert.Equal(t, "greenway trail extension", segments[0].Content)
	assert.LessOrEqual(t, *segments[0].Score, *segments[1].Score)
}

func TestSearchDefaultsMissingFields(t *testing.T) {
	idx := newMockIndex()
	idx.On("KeywordSearch", mock.Anything, 5).Return([]models.SearchHit{
		{ID: "x"},
		{ID: "y", Properties: map[string]interface{}{"chunk_id": "not-a-number", "meeting_type": "  ", "content": 42}},
	}, nil)

	r := retriever.New(retriever.RetrieverConfig{}, idx, &testutil.Embedder{}, nil)
	segments, _ := r.Search(context.Background(), "parks budget", models.SearchKeyword)

	require.Len(t, segments, 2)
	for _, s := range segments {
		assert.Equal(t, 0, s.ChunkID)
		assert.Equal(t, "", s.Content)
		assert.Nil(t, s.Score)
		assert.Equal(t, models.NotAvailable, s.MeetingDate)
		assert.Equal(t, models.NotAvailable, s.MeetingType)
		assert.Equal(t, models.NotAvailable, s.FileType)
		assert.Equal(t, models.NotAvailable, s.SourceDocument)
	}
}

type emptyEmbedder struct{}

func (emptyEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	return nil, llm.ErrNoEmbedding
}

func TestSearchBackendErrors(t *testing.T) {
	t.Run("keyword", func(t *testing.T) {
		idx := newMockIndex()
		idx.On("KeywordSearch", mock.Anything, mock.Anything).Return(nil, testutil.ErrBackend)
		r := retriever.New(retriever.RetrieverConfig{}, idx, &testutil.Embedder{}, nil)

		segments, keywords := r.Search(context.Background(), "parks budget", models.SearchKeyword)
		assert.Equal(t, []models.ContextSegment{}, segments)
		assert.Equal(t, []string{}, keywords)
	})

	t.Run("embedding", func(t *testing.T) {
		idx := newMockIndex()
		r := retriever.New(retriever.RetrieverConfig{}, idx, &testutil.Embedder{Err: testutil.ErrBackend}, nil)

		segments, keywords := r.Search(context.Background(), "parks budget", models.SearchVector)
		assert.Empty(t, segments)
		assert.Empty(t, keywords)
		idx.AssertNotCalled(t, "VectorSearch", mock.Anything, mock.Anything)
	})

	t.Run("no vector", func(t *testing.T) {
		idx := newMockIndex()
		r := retriever.New(retriever.RetrieverConfig{}, idx, emptyEmbedder{}, nil)

		segments, _ := r.Search(context.Background(), "parks budget", models.SearchVector)
		assert.Empty(t, segments)
		idx.AssertNotCalled(t, "VectorSearch", mock.Anything, mock.Anything)
	})

	t.Run("unknown mode", func(t *testing.T) {
		r := retriever.New(retriever.RetrieverConfig{}, newMockIndex(), &testutil.Embedder{}, nil)
		segments, keywords := r.Search(context.Background(), "parks budget", "fuzzy")
		assert.Empty(t, segments)
		assert.Empty(t, keywords)
	})
}
