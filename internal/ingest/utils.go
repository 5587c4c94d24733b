package ingest

import (
	"path/filepath"
	"strings"

	"github.com/joseph-ayodele/form-extractor/constants"
)

// extSet builds a lookup of lowercased extensions; empty input yields the
// default accepted source types.
func extSet(exts []string) map[string]struct{} {
	if len(exts) == 0 {
		return constants.SourceExtensions
	}
	out := make(map[string]struct{}, len(exts))
	for _, e := range exts {
		if e = constants.NormalizeExt(strings.TrimSpace(e)); e != "" {
			out[e] = struct{}{}
		}
	}
	return out
}

func allowed(path string, exts map[string]struct{}) bool {
	_, ok := exts[constants.NormalizeExt(filepath.Ext(path))]
	return ok
}

// IsHidden checks if a file or directory is hidden (starts with '.').
func IsHidden(path string) bool {
	base := filepath.Base(path)
	return strings.HasPrefix(base, ".") && base != "." && base != ".."
}
