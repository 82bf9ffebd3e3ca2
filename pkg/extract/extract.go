// Package extract turns raw meeting artifacts into unstructured text.
package extract

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"

	"github.com/xhad/minutemate/internal/models"
	"github.com/xhad/minutemate/internal/types"
	"github.com/xhad/minutemate/pkg/logger"
)

var _ types.Extractor = (*Extractor)(nil)

var (
	ErrUnsupported   = errors.New("unsupported artifact type")
	ErrEmptyDocument = errors.New("no text could be extracted")
	ErrNoTranscriber = errors.New("speech-to-text is not configured")
)

var pdfMagic = []byte("%PDF-")

// AudioTranscriber converts a recording to a transcript.
type AudioTranscriber interface {
	Transcribe(ctx context.Context, audio Audio) (string, error)
}

// Extractor dispatches an artifact to the PDF or audio path. Failures are
// logged and reported as ok=false.
type Extractor struct {
	pdf   *PDFExtractor
	audio AudioTranscriber
	log   *logger.Logger
}

// New builds an Extractor. Either path may be nil, in which case artifacts
// that need it fail extraction.
func New(pdf *PDFExtractor, audio AudioTranscriber, log *logger.Logger) *Extractor {
	if log == nil {
		log = logger.Nop()
	}
	return &Extractor{pdf: pdf, audio: audio, log: log.With("component", "extract")}
}

func (e *Extractor) Extract(ctx context.Context, artifact models.Artifact) (string, bool) {
	log := e.log.With("file_type", artifact.FileType, "name", artifact.OriginalName)

	text, err := e.extract(ctx, artifact)
	if err != nil {
		log.Error("text extraction failed", "error", err)
		return "", false
	}
	if strings.TrimSpace(text) == "" {
		log.Error("text extraction failed", "error", ErrEmptyDocument)
		return "", false
	}
	log.Info("text extracted", "chars", len(text))
	return text, true
}

func (e *Extractor) extract(ctx context.Context, artifact models.Artifact) (string, error) {
	if len(artifact.Content) == 0 {
		return "", ErrEmptyDocument
	}
	switch kind(artifact) {
	case kindAudio:
		if e.audio == nil {
			return "", ErrNoTranscriber
		}
		return e.audio.Transcribe(ctx, Audio{
			Content:  artifact.Content,
			MimeType: audioMimeType(artifact),
			Name:     artifact.RawName(),
		})
	case kindPDF:
		if e.pdf == nil {
			return "", ErrUnsupported
		}
		return e.pdf.Extract(ctx, artifact.Content)
	default:
		return "", ErrUnsupported
	}
}

type artifactKind int

const (
	kindUnknown artifactKind = iota
	kindPDF
	kindAudio
)

func kind(a models.Artifact) artifactKind {
	if a.FileType == models.Audio {
		return kindAudio
	}
	if bytes.HasPrefix(a.Content, pdfMagic) || strings.EqualFold(filepath.Ext(a.OriginalName), ".pdf") {
		return kindPDF
	}
	if strings.HasPrefix(strings.ToLower(a.MimeType), "audio/") {
		return kindAudio
	}
	return kindUnknown
}

func audioMimeType(a models.Artifact) string {
	if a.MimeType != "" {
		return a.MimeType
	}
	switch strings.ToLower(filepath.Ext(a.OriginalName)) {
	case ".wav":
		return "audio/wav"
	case ".flac":
		return "audio/flac"
	case ".mp3":
		return "audio/mpeg"
	case ".ogg", ".opus":
		return "audio/ogg"
	case ".m4a":
		return "audio/mp4"
	}
	return ""
}
