package extract

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"
)

// Pdftoppm renders pages with poppler's pdftoppm.
type Pdftoppm struct {
	Path    string
	DPI     int
	Timeout time.Duration
}

func NewPdftoppm(path string, dpi int) *Pdftoppm {
	if path == "" {
		path = "pdftoppm"
	}
	if dpi <= 0 {
		dpi = 300
	}
	return &Pdftoppm{Path: path, DPI: dpi, Timeout: 2 * time.Minute}
}

// Available reports whether the binary can be found.
func (r *Pdftoppm) Available() bool {
	_, err := exec.LookPath(r.Path)
	return err == nil
}

func (r *Pdftoppm) args(pdfPath, outPrefix string, page int) []string {
	p := strconv.Itoa(page)
	return []string{"-r", strconv.Itoa(r.DPI), "-png", "-singlefile", "-f", p, "-l", p, pdfPath, outPrefix}
}

func (r *Pdftoppm) RenderPage(ctx context.Context, pdfPath string, page int) ([]byte, error) {
	if page <= 0 {
		return nil, fmt.Errorf("page must be >= 1")
	}
	ctx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	prefix := filepath.Join(filepath.Dir(pdfPath), fmt.Sprintf("page_%04d", page))
	cmd := exec.CommandContext(ctx, r.Path, r.args(pdfPath, prefix, page)...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("pdftoppm failed: %w; out=%s", err, string(out))
	}

	img, err := os.ReadFile(prefix + ".png")
	if err != nil {
		return nil, fmt.Errorf("no image produced by pdftoppm: %w", err)
	}
	_ = os.Remove(prefix + ".png")
	return img, nil
}
