package ingest_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/minutemate/internal/models"
	"github.com/xhad/minutemate/internal/testutil"
	"github.com/xhad/minutemate/pkg/ingest"
	"github.com/xhad/minutemate/pkg/objectstore"
	"github.com/xhad/minutemate/pkg/processor"
	"github.com/xhad/minutemate/pkg/store"
)

type stubExtractor struct {
	text string
	ok   bool
}

func (s stubExtractor) Extract(ctx context.Context, a models.Artifact) (string, bool) {
	return s.text, s.ok
}

type pipelineFixture struct {
	objects   *objectstore.LocalStore
	index     *store.MemoryStore
	completer *testutil.Completer
	pipeline  *ingest.Pipeline
	stages    []ingest.Stage
}

func newPipeline(t *testing.T, ex stubExtractor) *pipelineFixture {
	t.Helper()
	objects, err := objectstore.NewLocalStore(t.TempDir(), nil)
	require.NoError(t, err)

	tok := testutil.NewWordTokenizer()
	completer := &testutil.Completer{Fn: func(system, user string) (string, error) {
		return strings.ToUpper(strings.TrimPrefix(user, "Clean the following text for readability and correct errors: ")), nil
	}}
	cleaner := processor.NewWithConfig(processor.ProcessorConfig{WindowTokens: 3}, tok, completer, nil)
	index := store.NewMemoryStore()
	ingestor := ingest.NewIngestor(ingest.IngestorConfig{ChunkSize: 2}, tok, &testutil.Embedder{}, index, nil)

	f := &pipelineFixture{objects: objects, index: index, completer: completer}
	f.pipeline = ingest.NewPipeline(objects, ex, cleaner, ingestor, nil)
	f.pipeline.OnStage = func(s ingest.Stage) { f.stages = append(f.stages, s) }
	return f
}

func minutesArtifact() models.Artifact {
	return models.Artifact{
		MeetingDate:  time.Date(2023, 8, 1, 0, 0, 0, 0, time.UTC),
		MeetingType:  models.BoardOfCommissioners,
		FileType:     models.Minutes,
		Content:      []byte("%PDF-1.7 raw bytes"),
		OriginalName: "minutes.pdf",
	}
}

func TestPipelineRun(t *testing.T) {
	f := newPipeline(t, stubExtractor{text: "call to order roll call", ok: true})
	ctx := context.Background()

	res, err := f.pipeline.Run(ctx, minutesArtifact())
	require.NoError(t, err)

	assert.Equal(t, ingest.Stages, f.stages)
	assert.Equal(t, "2023_08_01_BOC_Minutes_Raw.pdf", res.RawName)
	assert.Equal(t, "2023_08_01_BOC_Minutes_TextExtraction.txt", res.DirtyName)
	assert.Equal(t, "2023_08_01_BOC_Minutes_Cleaned.txt", res.CleanName)

	raw, err := f.objects.Get(ctx, models.NamespaceRaw, res.RawName)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.7 raw bytes", string(raw))

	dirty, err := f.objects.GetText(ctx, models.NamespaceDirty, res.DirtyName)
	require.NoError(t, err)
	assert.Equal(t, "call to order roll call", dirty)

	clean, err := f.objects.GetText(ctx, models.NamespaceClean, res.CleanName)
	require.NoError(t, err)
	assert.Equal(t, "CALL TO ORDER\n\nROLL CALL", clean)

	chunks, err := f.index.FindByIdentity(ctx, res.Identity)
	require.NoError(t, err)
	assert.Equal(t, res.Chunks, len(chunks))
	assert.Equal(t, "Board of Commissioners", res.Identity.MeetingType)
	assert.Equal(t, "2023-08-01", res.Identity.MeetingDate)
	for _, c := range chunks {
		assert.Equal(t, res.CleanName, c.SourceDocument)
	}
}

func TestPipelineExtractionFailureAborts(t *testing.T) {
	f := newPipeline(t, stubExtractor{ok: false})
	ctx := context.Background()

	_, err := f.pipeline.Run(ctx, minutesArtifact())
	require.ErrorIs(t, err, ingest.ErrExtractionFailed)
	assert.Equal(t, []ingest.Stage{ingest.StageStoreRaw, ingest.StageExtract}, f.stages)

	raw, err := f.objects.List(ctx, models.NamespaceRaw)
	require.NoError(t, err)
	assert.Len(t, raw["2023_08_01"], 1)

	dirty, err := f.objects.List(ctx, models.NamespaceDirty)
	require.NoError(t, err)
	assert.Empty(t, dirty)

	assert.Zero(t, f.completer.CallCount())
	assert.Zero(t, f.index.Len())
}

func TestPipelineCleanFailureKeepsDirty(t *testing.T) {
	f := newPipeline(t, stubExtractor{text: "one two three four", ok: true})
	f.completer.Fn = func(system, user string) (string, error) { return "   ", nil }
	ctx := context.Background()

	_, err := f.pipeline.Run(ctx, minutesArtifact())
	require.ErrorIs(t, err, processor.ErrEmptyCleanWindow)

	_, err = f.objects.Get(ctx, models.NamespaceDirty, "2023_08_01_BOC_Minutes_TextExtraction.txt")
	assert.NoError(t, err)
	_, err = f.objects.Get(ctx, models.NamespaceClean, "2023_08_01_BOC_Minutes_Cleaned.txt")
	assert.ErrorIs(t, err, objectstore.ErrNotFound)
}

func TestPipelineReprocess(t *testing.T) {
	ctx := context.Background()

	t.Run("from dirty", func(t *testing.T) {
		f := newPipeline(t, stubExtractor{})
		name := "2024_02_13_PB_Audio_Transcription.txt"
		require.NoError(t, f.objects.Put(ctx, models.NamespaceDirty, name, []byte("public hearing opened")))

		res, err := f.pipeline.Reprocess(ctx, models.NamespaceDirty, name)
		require.NoError(t, err)
		assert.Equal(t, []ingest.Stage{ingest.StageClean, ingest.StageStoreClean, ingest.StageIndex}, f.stages)
		assert.Equal(t, "2024_02_13_PB_Audio_Cleaned.txt", res.CleanName)
		assert.Equal(t, "Planning Board", res.Identity.MeetingType)

		clean, err := f.objects.GetText(ctx, models.NamespaceClean, res.CleanName)
		require.NoError(t, err)
		assert.Equal(t, "PUBLIC HEARING OPENED", clean)
		assert.Equal(t, 2, f.index.Len())
	})

	t.Run("from clean", func(t *testing.T) {
		f := newPipeline(t, stubExtractor{})
		name := "2023_08_01_BOC_Minutes_Cleaned.txt"
		require.NoError(t, f.objects.Put(ctx, models.NamespaceClean, name, []byte("a b c d e")))

		res, err := f.pipeline.Reprocess(ctx, models.NamespaceClean, name)
		require.NoError(t, err)
		assert.Equal(t, []ingest.Stage{ingest.StageIndex}, f.stages)
		assert.Equal(t, 3, res.Chunks)
		assert.Zero(t, f.completer.CallCount())

		// the same clean text indexed again replaces the first generation
		_, err = f.pipeline.Reprocess(ctx, models.NamespaceClean, name)
		require.NoError(t, err)
		assert.Equal(t, 3, f.index.Len())
	})

	t.Run("raw is rejected", func(t *testing.T) {
		f := newPipeline(t, stubExtractor{})
		_, err := f.pipeline.Reprocess(ctx, models.NamespaceRaw, "2023_08_01_BOC_Minutes_Raw.pdf")
		assert.ErrorIs(t, err, ingest.ErrUnknownStage)
	})

	t.Run("missing object", func(t *testing.T) {
		f := newPipeline(t, stubExtractor{})
		_, err := f.pipeline.Reprocess(ctx, models.NamespaceClean, "2023_08_01_BOC_Minutes_Cleaned.txt")
		assert.ErrorIs(t, err, objectstore.ErrNotFound)
	})
}
