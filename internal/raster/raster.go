// Package raster turns an uploaded document into per-page images.
package raster

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// Config controls PDF rasterization.
type Config struct {
	Pdftoppm      string // binary name or path
	DPI           int    // default 150
	MaxPages      int    // 0 = unlimited
	HeicConverter string // heif-convert | magick | sips
	HeicCacheDir  string // optional; converted PNGs are reused by content hash
}

// Page is one rendered page image.
type Page struct {
	Number   int // 1-based page of the source document
	Image    []byte
	MIMEType string
}

// Rasterizer renders selected pages of a source document.
type Rasterizer interface {
	PageCount(data []byte) (int, error)
	Render(ctx context.Context, data []byte, pages []int) ([]Page, error)
}

// PDFRasterizer renders PDFs with pdftoppm and passes single images through
// as a one-page document.
type PDFRasterizer struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

func NewPDFRasterizer(cfg Config, runner Runner, logger *slog.Logger) *PDFRasterizer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = "pdftoppm"
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 150
	}
	if cfg.HeicConverter == "" {
		cfg.HeicConverter = "magick"
	}
	if runner == nil {
		runner = ExecRunner{Logger: logger}
	}
	return &PDFRasterizer{cfg: cfg, runner: runner, logger: logger}
}

// IsPDF sniffs the PDF header.
func IsPDF(data []byte) bool {
	return bytes.HasPrefix(bytes.TrimLeft(data, "\x00\t\r\n "), []byte("%PDF-"))
}

// imageMIME returns the image type of data, or "" when it is not an image.
func imageMIME(data []byte) string {
	mt := http.DetectContentType(data)
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = mt[:i]
	}
	if strings.HasPrefix(mt, "image/") {
		return mt
	}
	return ""
}

// PageCount reports how many pages the document has, honoring MaxPages.
func (r *PDFRasterizer) PageCount(data []byte) (int, error) {
	if len(data) == 0 {
		return 0, fmt.Errorf("empty document")
	}
	if !IsPDF(data) {
		if IsHEIC(data) {
			return 1, nil
		}
		if imageMIME(data) == "" {
			return 0, fmt.Errorf("unsupported document type %q", http.DetectContentType(data))
		}
		return 1, nil
	}
	n, err := api.PageCount(bytes.NewReader(data), model.NewDefaultConfiguration())
	if err != nil {
		return 0, fmt.Errorf("read pdf: %w", err)
	}
	if r.cfg.MaxPages > 0 && n > r.cfg.MaxPages {
		r.logger.Warn("raster.page_count.capped", "pages", n, "max_pages", r.cfg.MaxPages)
		n = r.cfg.MaxPages
	}
	return n, nil
}

// Render rasterizes the given 1-based pages in the order given.
func (r *PDFRasterizer) Render(ctx context.Context, data []byte, pages []int) ([]Page, error) {
	start := time.Now()
	if IsHEIC(data) {
		png, err := r.heicToPNG(ctx, data)
		if err != nil {
			return nil, err
		}
		data = png
	}
	if !IsPDF(data) {
		mt := imageMIME(data)
		if mt == "" {
			return nil, fmt.Errorf("unsupported document type %q", http.DetectContentType(data))
		}
		for _, p := range pages {
			if p != 1 {
				return nil, fmt.Errorf("page %d out of range: an image has one page", p)
			}
		}
		out := make([]Page, 0, len(pages))
		for range pages {
			out = append(out, Page{Number: 1, Image: data, MIMEType: mt})
		}
		return out, nil
	}

	tmpDir, err := os.MkdirTemp("", "fx-pp-*")
	if err != nil {
		return nil, err
	}
	defer func(path string) {
		if err := os.RemoveAll(path); err != nil {
			r.logger.Warn("raster.tmp.cleanup_error", "dir", path, "error", err)
		}
	}(tmpDir)

	in := filepath.Join(tmpDir, "source.pdf")
	if err := os.WriteFile(in, data, 0o600); err != nil {
		return nil, err
	}

	out := make([]Page, 0, len(pages))
	for _, p := range pages {
		if p < 1 {
			return nil, fmt.Errorf("page %d out of range", p)
		}
		prefix := filepath.Join(tmpDir, "page-"+strconv.Itoa(p))
		n := strconv.Itoa(p)
		// pdftoppm -r <dpi> -png -f N -l N -singlefile <in.pdf> <tmp/page-N>
		_, errb, err := r.runner.Run(ctx, r.cfg.Pdftoppm,
			"-r", strconv.Itoa(r.cfg.DPI), "-png", "-f", n, "-l", n, "-singlefile", in, prefix)
		if err != nil {
			return nil, fmt.Errorf("render page %d: %w: %s", p, err, truncate(strings.TrimSpace(string(errb)), 512))
		}
		img, err := os.ReadFile(prefix + ".png")
		if err != nil {
			return nil, fmt.Errorf("render page %d: no image produced: %w", p, err)
		}
		out = append(out, Page{Number: p, Image: img, MIMEType: "image/png"})
	}

	r.logger.Info("raster.render.ok",
		"pages", len(out),
		"dpi", r.cfg.DPI,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}
