package raster

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var heifBrands = map[string]bool{
	"heic": true, "heix": true, "hevc": true, "hevx": true,
	"heim": true, "heis": true, "mif1": true, "msf1": true,
}

// IsHEIC sniffs the ISO-BMFF ftyp box of a HEIC/HEIF photo.
func IsHEIC(data []byte) bool {
	if len(data) < 12 || !bytes.Equal(data[4:8], []byte("ftyp")) {
		return false
	}
	return heifBrands[string(data[8:12])]
}

// heicToPNG converts a HEIC photo with the configured converter. When
// HeicCacheDir is set the PNG is kept there under the content hash and reused.
func (r *PDFRasterizer) heicToPNG(ctx context.Context, data []byte) ([]byte, error) {
	sum := sha256.Sum256(data)
	hashHex := hex.EncodeToString(sum[:])

	var cached string
	if r.cfg.HeicCacheDir != "" {
		cached = filepath.Join(r.cfg.HeicCacheDir, hashHex+".png")
		if png, err := os.ReadFile(cached); err == nil {
			r.logger.Debug("raster.heic.cache_hit", "cache", cached)
			return png, nil
		}
	}

	tmpDir, err := os.MkdirTemp("", "fx-heic-*")
	if err != nil {
		return nil, err
	}
	defer func() { _ = os.RemoveAll(tmpDir) }()
	in := filepath.Join(tmpDir, "source.heic")
	out := filepath.Join(tmpDir, "page.png")
	if err := os.WriteFile(in, data, 0o600); err != nil {
		return nil, err
	}

	var args []string
	switch r.cfg.HeicConverter {
	case "heif-convert", "magick":
		args = []string{in, out}
	case "sips":
		args = []string{"-s", "format", "png", in, "--out", out}
	default:
		return nil, fmt.Errorf("HEIC not supported: set HEIC_CONVERTER to one of heif-convert, magick or sips (got %q)", r.cfg.HeicConverter)
	}
	if _, errb, err := r.runner.Run(ctx, r.cfg.HeicConverter, args...); err != nil {
		return nil, fmt.Errorf("%s failed: %w: %s", r.cfg.HeicConverter, err, truncate(strings.TrimSpace(string(errb)), 512))
	}
	png, err := os.ReadFile(out)
	if err != nil {
		return nil, fmt.Errorf("HEIC conversion produced no output: %w", err)
	}

	if cached != "" {
		if err := os.MkdirAll(r.cfg.HeicCacheDir, 0o755); err != nil {
			r.logger.Warn("raster.heic.cache_error", "dir", r.cfg.HeicCacheDir, "error", err)
		} else if err := os.WriteFile(cached, png, 0o644); err != nil {
			r.logger.Warn("raster.heic.cache_error", "cache", cached, "error", err)
		}
	}
	r.logger.Info("raster.heic.converted", "converter", r.cfg.HeicConverter, "bytes", len(png))
	return png, nil
}
