package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/xhad/minutemate/internal/models"
	"github.com/xhad/minutemate/internal/types"
	"github.com/xhad/minutemate/pkg/answer"
	"github.com/xhad/minutemate/pkg/config"
	"github.com/xhad/minutemate/pkg/extract"
	"github.com/xhad/minutemate/pkg/ingest"
	"github.com/xhad/minutemate/pkg/llm"
	"github.com/xhad/minutemate/pkg/logger"
	"github.com/xhad/minutemate/pkg/objectstore"
	"github.com/xhad/minutemate/pkg/processor"
	"github.com/xhad/minutemate/pkg/retriever"
	"github.com/xhad/minutemate/pkg/store"
)

// Deps replaces network-backed collaborators. Nil fields are built from
// config.
type Deps struct {
	Objects    types.ObjectStore
	Index      types.VectorStore
	Chat       types.StreamCompleter
	Moderation types.Completer
	Cleaning   types.Completer
	Embedder   types.TextEmbedder
	Tokenizer  types.Tokenizer
	Extractor  types.Extractor
}

// App holds the clients built once at startup and shared by every request.
type App struct {
	Config *config.Config
	Log    *logger.Logger

	Objects    types.ObjectStore
	Index      types.VectorStore
	Chat       types.StreamCompleter
	Moderation types.Completer
	Cleaning   types.Completer
	Embedder   types.TextEmbedder
	Tokenizer  types.Tokenizer

	extractor    types.Extractor
	extractorErr error
	extractOnce  sync.Once

	closers []func()
}

func NewApp(ctx context.Context, cfg *config.Config, log *logger.Logger, deps Deps) (app *App, err error) {
	if log == nil {
		log = logger.Nop()
	}
	a := &App{
		Config:     cfg,
		Log:        log,
		Objects:    deps.Objects,
		Index:      deps.Index,
		Chat:       deps.Chat,
		Moderation: deps.Moderation,
		Cleaning:   deps.Cleaning,
		Embedder:   deps.Embedder,
		Tokenizer:  deps.Tokenizer,
		extractor:  deps.Extractor,
	}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if a.Objects == nil {
		if a.Objects, err = a.newObjectStore(ctx); err != nil {
			return nil, err
		}
	}
	if a.Index == nil {
		if a.Index, err = a.newIndex(ctx); err != nil {
			return nil, err
		}
		a.closers = append(a.closers, a.Index.Close)
	}
	if a.Tokenizer == nil {
		if a.Tokenizer, err = llm.NewTokenizer(cfg.Processor.EncodingModel); err != nil {
			return nil, fmt.Errorf("tokenizer: %w", err)
		}
	}
	if a.Embedder == nil {
		if a.Embedder, err = llm.NewEmbedderWithConfig(llm.EmbedderConfig{
			Provider: cfg.Embedding.Provider,
			Model:    cfg.Embedding.Model,
			APIKey:   cfg.LLM.APIKey,
			BaseURL:  cfg.Embedding.BaseURL,
			Timeout:  cfg.Timeouts.Embedding,
		}, log); err != nil {
			return nil, err
		}
	}
	if a.Chat == nil {
		if a.Chat, err = a.newChat(cfg.LLM.Model, floatOr(cfg.LLM.Temperature, 0.7), cfg.LLM.MaxTokens, cfg.Timeouts.Generation); err != nil {
			return nil, err
		}
	}
	if a.Moderation == nil {
		if a.Moderation, err = a.newChat(cfg.Moderation.Model, 0, 200, cfg.Timeouts.Moderation); err != nil {
			return nil, err
		}
	}
	if a.Cleaning == nil {
		if a.Cleaning, err = a.newChat(cfg.Processor.Model, floatOr(cfg.Processor.Temperature, 0.5), cfg.Processor.MaxTokens, cfg.Timeouts.Generation); err != nil {
			return nil, err
		}
	}
	return a, nil
}

func (a *App) newObjectStore(ctx context.Context) (types.ObjectStore, error) {
	cfg := a.Config.Storage
	switch cfg.Backend {
	case "gcs":
		s, err := objectstore.NewGCSStore(ctx, objectstore.GCSConfig{
			Bucket:    cfg.Bucket,
			ProjectID: a.Config.GCP.ProjectID,
			Timeout:   a.Config.Timeouts.ObjectStore,
		}, a.Log)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = s.Close() })
		return s, nil
	case "local":
		return objectstore.NewLocalStore(cfg.LocalRoot, a.Log)
	default:
		return nil, fmt.Errorf("unsupported storage backend %q", cfg.Backend)
	}
}

func (a *App) newIndex(ctx context.Context) (types.VectorStore, error) {
	cfg := a.Config.Database
	switch cfg.Backend {
	case "postgres":
		return store.NewWithConfig(ctx, store.VectorStoreConfig{
			ConnString:   cfg.URL,
			TableName:    cfg.TableName,
			VectorDim:    cfg.VectorDim,
			QueryTimeout: a.Config.Timeouts.VectorIndex,
		}, a.Log)
	case "memory":
		a.Log.Warn("using in-memory vector index; chunks are lost on exit")
		return store.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported database backend %q", cfg.Backend)
	}
}

func floatOr(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}

func (a *App) newChat(model string, temperature float64, maxTokens int, timeout time.Duration) (*llm.ChatEngine, error) {
	cfg := a.Config.LLM
	chat, err := llm.NewWithConfig(llm.ChatConfig{
		Provider:    cfg.Provider,
		Model:       model,
		APIKey:      cfg.APIKey,
		BaseURL:     cfg.BaseURL,
		Temperature: temperature,
		MaxTokens:   maxTokens,
		Timeout:     timeout,
	}, a.Log)
	if err != nil {
		return nil, fmt.Errorf("chat engine %s: %w", model, err)
	}
	return chat, nil
}

// Extractor builds the PDF and audio paths on first use, since they dial
// Google Cloud and only ingestion needs them.
func (a *App) Extractor(ctx context.Context) (types.Extractor, error) {
	a.extractOnce.Do(func() {
		if a.extractor != nil {
			return
		}
		a.extractor, a.extractorErr = a.newExtractor(ctx)
	})
	return a.extractor, a.extractorErr
}

func (a *App) newExtractor(ctx context.Context) (types.Extractor, error) {
	cfg := a.Config

	var (
		renderer extract.PageRenderer
		ocr      extract.OCR
	)
	if cfg.OCR.Enabled {
		pdftoppm := extract.NewPdftoppm(cfg.OCR.Pdftoppm, cfg.OCR.DPI)
		if pdftoppm.Available() {
			vision, err := extract.NewVisionOCR(ctx, cfg.GCP.ProjectID, a.Log)
			if err != nil {
				return nil, err
			}
			a.closers = append(a.closers, func() { _ = vision.Close() })
			renderer, ocr = pdftoppm, vision
		} else {
			a.Log.Warn("pdftoppm not found, scanned pages will be skipped", "path", cfg.OCR.Pdftoppm)
		}
	}
	pdf := extract.NewPDFExtractor(extract.PDFConfig{OCRTimeout: cfg.Timeouts.OCR}, renderer, ocr, a.Log)

	var audio extract.AudioTranscriber
	if cfg.Speech.Enabled {
		speechConfig := extract.GoogleSpeechConfig{
			Model:        cfg.Speech.Model,
			LanguageCode: cfg.Speech.LanguageCode,
			ProjectID:    cfg.GCP.ProjectID,
		}
		// Recordings already stored in the bucket are read by URI.
		if locator, ok := a.Objects.(extract.ObjectLocator); ok {
			speechConfig.Objects = locator
		}
		speech, err := extract.NewGoogleSpeech(ctx, speechConfig, a.Log)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = speech.Close() })
		audio = extract.NewTranscriber(extract.TranscriberConfig{
			Diarize:     cfg.Speech.Diarize,
			PollInitial: cfg.Speech.PollInitial,
			PollMax:     cfg.Speech.PollMax,
			MaxWait:     cfg.Speech.MaxWait,
			PollTimeout: cfg.Timeouts.Transcription,
		}, speech, a.Log)
	}

	return extract.New(pdf, audio, a.Log), nil
}

func (a *App) Pipeline(ctx context.Context) (*ingest.Pipeline, error) {
	extractor, err := a.Extractor(ctx)
	if err != nil {
		return nil, err
	}
	cfg := a.Config
	cleaner := processor.NewWithConfig(processor.ProcessorConfig{
		WindowTokens: cfg.Processor.WindowTokens,
		Concurrency:  cfg.Processor.Concurrency,
		RateLimit:    cfg.Processor.RateLimit,
		Town:         cfg.Processor.Town,
	}, a.Tokenizer, a.Cleaning, a.Log)
	ingestor := ingest.NewIngestor(ingest.IngestorConfig{
		ChunkSize:    cfg.Processor.ChunkSize,
		IndexTimeout: cfg.Timeouts.VectorIndex,
	}, a.Tokenizer, a.Embedder, a.Index, a.Log)
	return ingest.NewPipeline(a.Objects, extractor, cleaner, ingestor, a.Log), nil
}

func (a *App) Retriever() *retriever.Retriever {
	return retriever.New(retriever.RetrieverConfig{
		Limit:   a.Config.Retrieval.Limit,
		Timeout: a.Config.Timeouts.VectorIndex,
	}, a.Index, a.Embedder, a.Log)
}

func (a *App) Prompts(mode models.SearchMode) *answer.PromptProcessor {
	if mode == "" {
		mode = models.SearchMode(a.Config.Retrieval.Mode)
	}
	moderator := answer.NewModerator(a.Moderation, a.Config.Timeouts.Moderation, a.Log)
	return answer.NewPromptProcessor(answer.ProcessorConfig{Mode: mode}, moderator, a.Retriever(), a.Chat, a.Log)
}

// Close releases clients in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
