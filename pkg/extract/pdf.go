package extract

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"

	"github.com/xhad/minutemate/pkg/logger"
)

// PageRenderer rasterizes a single 1-based page of the PDF at path.
type PageRenderer interface {
	RenderPage(ctx context.Context, path string, page int) ([]byte, error)
}

// OCR recognizes text in an image.
type OCR interface {
	Recognize(ctx context.Context, image []byte) (string, error)
}

type PDFConfig struct {
	OCRTimeout time.Duration
	TempDir    string
}

// PDFExtractor reads the text layer of every page and falls back to OCR on
// rendered pages that have none.
type PDFExtractor struct {
	config   PDFConfig
	renderer PageRenderer
	ocr      OCR
	pages    func(data []byte) ([]string, error)
	log      *logger.Logger
}

func NewPDFExtractor(config PDFConfig, renderer PageRenderer, ocr OCR, log *logger.Logger) *PDFExtractor {
	if config.OCRTimeout == 0 {
		config.OCRTimeout = 60 * time.Second
	}
	if log == nil {
		log = logger.Nop()
	}
	return &PDFExtractor{
		config:   config,
		renderer: renderer,
		ocr:      ocr,
		pages:    readPDFPages,
		log:      log.With("component", "extract.pdf"),
	}
}

// Extract returns the page texts in page order joined by newlines.
func (p *PDFExtractor) Extract(ctx context.Context, data []byte) (string, error) {
	pages, err := p.pages(data)
	if err != nil {
		return "", err
	}

	var tmpPath string
	defer func() {
		if tmpPath != "" {
			_ = os.RemoveAll(filepath.Dir(tmpPath))
		}
	}()

	for i, text := range pages {
		if strings.TrimSpace(text) != "" {
			continue
		}
		if p.renderer == nil || p.ocr == nil {
			p.log.Warn("page has no text layer and OCR is disabled", "page", i+1)
			continue
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if tmpPath == "" {
			tmpPath, err = p.writeTemp(data)
			if err != nil {
				return "", err
			}
		}

		text, err := p.ocrPage(ctx, tmpPath, i+1)
		if err != nil {
			return "", fmt.Errorf("page %d: %w", i+1, err)
		}
		p.log.Debug("page recognized with OCR", "page", i+1, "chars", len(text))
		pages[i] = text
	}

	return strings.Join(pages, "\n"), nil
}

func (p *PDFExtractor) ocrPage(ctx context.Context, path string, page int) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.config.OCRTimeout)
	defer cancel()

	img, err := p.renderer.RenderPage(ctx, path, page)
	if err != nil {
		return "", fmt.Errorf("failed to render page: %w", err)
	}
	text, err := p.ocr.Recognize(ctx, img)
	if err != nil {
		return "", fmt.Errorf("failed to recognize page: %w", err)
	}
	return text, nil
}

func (p *PDFExtractor) writeTemp(data []byte) (string, error) {
	dir, err := os.MkdirTemp(p.config.TempDir, "minutemate-pdf-")
	if err != nil {
		return "", fmt.Errorf("failed to create temp dir: %w", err)
	}
	path := filepath.Join(dir, "document.pdf")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		_ = os.RemoveAll(dir)
		return "", fmt.Errorf("failed to write temp pdf: %w", err)
	}
	return path, nil
}

// readPDFPages returns the plain text of every page. Pages whose text cannot
// be decoded come back empty so the OCR fallback picks them up.
func readPDFPages(data []byte) (pages []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			pages, err = nil, fmt.Errorf("pdf reader: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("pdf reader: %w", err)
	}

	n := r.NumPage()
	pages = make([]string, n)
	for i := 1; i <= n; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		pages[i-1] = text
	}
	return pages, nil
}
