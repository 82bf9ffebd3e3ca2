package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/xhad/minutemate/internal/models"
	"github.com/xhad/minutemate/internal/types"
	"github.com/xhad/minutemate/pkg/logger"
)

var (
	ErrExtractionFailed = errors.New("text extraction failed")
	ErrUnknownStage     = errors.New("reprocessing starts from the dirty or clean namespace")
)

type Stage string

const (
	StageStoreRaw   Stage = "store_raw"
	StageExtract    Stage = "extract"
	StageStoreDirty Stage = "store_dirty"
	StageClean      Stage = "clean"
	StageStoreClean Stage = "store_clean"
	StageIndex      Stage = "index"
)

// Stages lists the stages of a full run in order.
var Stages = []Stage{StageStoreRaw, StageExtract, StageStoreDirty, StageClean, StageStoreClean, StageIndex}

type PipelineResult struct {
	RawName   string
	DirtyName string
	CleanName string
	Identity  models.Identity
	Chunks    int
}

// Pipeline moves an artifact from raw bytes to indexed chunks, persisting
// every text stage on the way.
type Pipeline struct {
	objects   types.ObjectStore
	extractor types.Extractor
	cleaner   types.Cleaner
	ingestor  *Ingestor
	log       *logger.Logger

	// OnStage, when set, is called as each stage starts.
	OnStage func(Stage)
}

func NewPipeline(objects types.ObjectStore, extractor types.Extractor, cleaner types.Cleaner, ingestor *Ingestor, log *logger.Logger) *Pipeline {
	if log == nil {
		log = logger.Nop()
	}
	return &Pipeline{
		objects:   objects,
		extractor: extractor,
		cleaner:   cleaner,
		ingestor:  ingestor,
		log:       log.With("component", "ingest.pipeline"),
	}
}

func (p *Pipeline) stage(s Stage) {
	if p.OnStage != nil {
		p.OnStage(s)
	}
}

// Run executes every stage for artifact. Extraction failure aborts before
// anything but the raw object is written.
func (p *Pipeline) Run(ctx context.Context, artifact models.Artifact) (*PipelineResult, error) {
	res := &PipelineResult{
		RawName:   artifact.RawName(),
		DirtyName: artifact.DirtyName(),
		CleanName: artifact.CleanName(),
		Identity:  artifact.Identity(),
	}
	log := p.log.With("artifact", artifact.BaseName(models.StageRaw))

	p.stage(StageStoreRaw)
	if err := p.objects.Put(ctx, models.NamespaceRaw, res.RawName, artifact.Content); err != nil {
		return res, fmt.Errorf("store raw: %w", err)
	}
	log.Info("stored raw artifact", "name", res.RawName)

	p.stage(StageExtract)
	dirty, ok := p.extractor.Extract(ctx, artifact)
	if !ok {
		log.Error("aborting ingestion", "error", ErrExtractionFailed)
		return res, ErrExtractionFailed
	}

	p.stage(StageStoreDirty)
	if err := p.objects.Put(ctx, models.NamespaceDirty, res.DirtyName, []byte(dirty)); err != nil {
		return res, fmt.Errorf("store dirty: %w", err)
	}

	return p.fromDirty(ctx, res, dirty)
}

// Reprocess restarts the pipeline from an existing dirty or clean object.
// The identity is recovered from the object name.
func (p *Pipeline) Reprocess(ctx context.Context, ns models.Namespace, name string) (*PipelineResult, error) {
	artifact, _, err := models.ParseArtifactName(name)
	if err != nil {
		return nil, err
	}
	res := &PipelineResult{
		DirtyName: artifact.DirtyName(),
		CleanName: artifact.CleanName(),
		Identity:  artifact.Identity(),
	}

	switch ns {
	case models.NamespaceDirty:
		dirty, err := p.objects.GetText(ctx, ns, name)
		if err != nil {
			return res, fmt.Errorf("load dirty: %w", err)
		}
		res.DirtyName = name
		return p.fromDirty(ctx, res, dirty)
	case models.NamespaceClean:
		clean, err := p.objects.GetText(ctx, ns, name)
		if err != nil {
			return res, fmt.Errorf("load clean: %w", err)
		}
		res.CleanName = name
		res.Identity.SourceDocument = name
		return p.index(ctx, res, clean)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStage, ns)
	}
}

func (p *Pipeline) fromDirty(ctx context.Context, res *PipelineResult, dirty string) (*PipelineResult, error) {
	p.stage(StageClean)
	clean, err := p.cleaner.Clean(ctx, dirty)
	if err != nil {
		return res, fmt.Errorf("clean: %w", err)
	}

	p.stage(StageStoreClean)
	if err := p.objects.Put(ctx, models.NamespaceClean, res.CleanName, []byte(clean)); err != nil {
		return res, fmt.Errorf("store clean: %w", err)
	}

	return p.index(ctx, res, clean)
}

func (p *Pipeline) index(ctx context.Context, res *PipelineResult, clean string) (*PipelineResult, error) {
	p.stage(StageIndex)
	n, err := p.ingestor.Ingest(ctx, clean, res.Identity)
	res.Chunks = n
	if err != nil {
		return res, fmt.Errorf("index: %w", err)
	}
	p.log.Info("ingestion complete", "source_document", res.CleanName, "chunks", n)
	return res, nil
}
