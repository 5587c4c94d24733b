package mapping

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/joseph-ayodele/form-extractor/constants"
	"github.com/joseph-ayodele/form-extractor/internal/common"
	"github.com/joseph-ayodele/form-extractor/internal/document"
)

// Entry binds one source dotted path to one target column.
type Entry struct {
	Source string
	Target string
}

// FieldMapping is the immutable source-path to target-column table. Each
// target column has exactly one source, so the reverse lookup is well defined.
type FieldMapping struct {
	entries  []Entry
	byTarget map[string]string
	bySource map[string]string
}

// NewFieldMapping validates entries: blank names, a source listed twice or
// two sources for one target column are configuration errors.
func NewFieldMapping(entries []Entry) (*FieldMapping, error) {
	fm := &FieldMapping{
		entries:  make([]Entry, 0, len(entries)),
		byTarget: make(map[string]string, len(entries)),
		bySource: make(map[string]string, len(entries)),
	}
	for _, e := range entries {
		src, dst := strings.TrimSpace(e.Source), strings.TrimSpace(e.Target)
		if src == "" || dst == "" {
			return nil, common.ConfigErrorf("field mapping entry %q -> %q has a blank side", e.Source, e.Target)
		}
		if prev, ok := fm.byTarget[dst]; ok {
			return nil, common.ConfigErrorf("target column %q is mapped from both %q and %q", dst, prev, src)
		}
		if _, ok := fm.bySource[src]; ok {
			return nil, common.ConfigErrorf("source path %q is mapped twice", src)
		}
		fm.entries = append(fm.entries, Entry{Source: src, Target: dst})
		fm.byTarget[dst] = src
		fm.bySource[src] = dst
	}
	return fm, nil
}

// Entries returns the mapping in file order.
func (fm *FieldMapping) Entries() []Entry {
	out := make([]Entry, len(fm.entries))
	copy(out, fm.entries)
	return out
}

// SourceFor is the reverse lookup: target column to source path.
func (fm *FieldMapping) SourceFor(target string) (string, bool) {
	s, ok := fm.byTarget[target]
	return s, ok
}

// IsSource reports whether path feeds some target column.
func (fm *FieldMapping) IsSource(path string) bool {
	_, ok := fm.bySource[path]
	return ok
}

func (fm *FieldMapping) Len() int { return len(fm.entries) }

// LoadFieldMapping reads a .json object or a .yaml/.yml mapping of dotted
// source path to target column name. Entry order follows the file.
func LoadFieldMapping(path string) (*FieldMapping, error) {
	if strings.TrimSpace(path) == "" {
		return nil, common.ConfigErrorf("field mapping path is not set")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, common.ConfigError("read field mapping "+path, err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, common.ConfigErrorf("field mapping %s is empty", path)
	}

	var entries []Entry
	switch ext := constants.NormalizeExt(filepath.Ext(path)); ext {
	case "json":
		entries, err = jsonEntries(raw)
	case "yaml", "yml":
		entries, err = yamlEntries(raw)
	default:
		return nil, common.ConfigErrorf("field mapping %s: unsupported format %q (want .json, .yaml or .yml)", path, ext)
	}
	if err != nil {
		return nil, common.ConfigError("parse field mapping "+path, err)
	}
	if len(entries) == 0 {
		return nil, common.ConfigErrorf("field mapping %s has no entries", path)
	}
	return NewFieldMapping(entries)
}

func jsonEntries(raw []byte) ([]Entry, error) {
	m, err := document.ParseMapping(raw)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, m.Len())
	for _, key := range m.Keys() {
		v, _ := m.Get(key)
		if v.Kind() != document.KindString {
			return nil, fmt.Errorf("value for %q must be a column name string, got %s", key, v.Kind())
		}
		entries = append(entries, Entry{Source: key, Target: v.AsString()})
	}
	return entries, nil
}

func yamlEntries(raw []byte) ([]Entry, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(raw, &root); err != nil {
		return nil, err
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return nil, errors.New("empty document")
	}
	node := root.Content[0]
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: top level must be a mapping", node.Line)
	}
	entries := make([]Entry, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		k, v := node.Content[i], node.Content[i+1]
		if v.Kind != yaml.ScalarNode || v.Tag == "!!null" {
			return nil, fmt.Errorf("line %d: value for %q must be a column name", v.Line, k.Value)
		}
		entries = append(entries, Entry{Source: k.Value, Target: v.Value})
	}
	return entries, nil
}
