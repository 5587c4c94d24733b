// Package schema loads the per-page extraction schemas and binds them to pages.
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/joseph-ayodele/form-extractor/constants"
	"github.com/joseph-ayodele/form-extractor/internal/common"
)

// DefaultName is the schema used for pages with no other binding. A single
// schema file loaded on its own is registered under this name.
const DefaultName = "default"

var rePageName = regexp.MustCompile(`^page[_-]?(\d+)$`)

// Schema is the opaque description of one page's fields. Text is forwarded to
// the extraction service verbatim.
type Schema struct {
	Name string
	Text string

	compiled *jsonschema.Schema
}

// Validate checks a decoded page result (plain Go values) against the schema.
func (s Schema) Validate(v any) error {
	if s.compiled == nil {
		return nil
	}
	return s.compiled.Validate(v)
}

// Registry indexes schemas by name and resolves the schema bound to a page.
type Registry struct {
	schemas  map[string]Schema
	byPage   map[int]string // numbering convention
	assigned map[int]string // explicit assignment, wins over convention
	logger   *slog.Logger
}

// Load reads a directory of *.json schemas (name = file stem) or a single
// schema file (registered as DefaultName).
func Load(source string, logger *slog.Logger) (*Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	source = strings.TrimSpace(source)
	if source == "" {
		return nil, common.ConfigErrorf("schema source is not set")
	}
	st, err := os.Stat(source)
	if err != nil {
		return nil, common.ConfigError("schema source "+source, err)
	}

	r := &Registry{
		schemas:  map[string]Schema{},
		byPage:   map[int]string{},
		assigned: map[int]string{},
		logger:   logger,
	}

	if !st.IsDir() {
		if err := r.addFile(DefaultName, source); err != nil {
			return nil, err
		}
		logger.Info("schema.registry.loaded", "source", source, "schemas", 1)
		return r, nil
	}

	entries, err := os.ReadDir(source)
	if err != nil {
		return nil, common.ConfigError("read schema dir "+source, err)
	}
	for _, e := range entries {
		if e.IsDir() || constants.NormalizeExt(filepath.Ext(e.Name())) != "json" {
			continue
		}
		name := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		if err := r.addFile(name, filepath.Join(source, e.Name())); err != nil {
			return nil, err
		}
	}
	if len(r.schemas) == 0 {
		return nil, common.ConfigErrorf("schema source %s contains no *.json schemas", source)
	}
	logger.Info("schema.registry.loaded", "source", source, "schemas", len(r.schemas), "page_bound", len(r.byPage))
	return r, nil
}

// New builds a registry from in-memory schema texts keyed by name.
func New(texts map[string]string, logger *slog.Logger) (*Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if len(texts) == 0 {
		return nil, common.ConfigErrorf("no schemas given")
	}
	r := &Registry{
		schemas:  map[string]Schema{},
		byPage:   map[int]string{},
		assigned: map[int]string{},
		logger:   logger,
	}
	for name, text := range texts {
		if err := r.add(name, []byte(text)); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) addFile(name, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return common.ConfigError("read schema "+path, err)
	}
	return r.add(name, raw)
}

func (r *Registry) add(name string, raw []byte) error {
	if !json.Valid(raw) {
		return common.ConfigErrorf("schema %q is not valid JSON", name)
	}
	compiled, err := compile(name, raw)
	if err != nil {
		return common.ConfigError(fmt.Sprintf("schema %q does not compile", name), err)
	}
	r.schemas[name] = Schema{Name: name, Text: string(raw), compiled: compiled}
	if m := rePageName.FindStringSubmatch(strings.ToLower(name)); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
			r.byPage[n] = name
		}
	}
	return nil
}

func compile(name string, raw []byte) (*jsonschema.Schema, error) {
	url := name + ".json"
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(url, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	return compiler.Compile(url)
}

// Assign binds page to the named schema, overriding the numbering convention.
func (r *Registry) Assign(page int, name string) error {
	if page < 1 {
		return common.ConfigErrorf("page %d is out of range", page)
	}
	if _, ok := r.schemas[name]; !ok {
		return common.ConfigErrorf("schema %q is not registered (have: %s)", name, strings.Join(r.ListNames(), ", "))
	}
	r.assigned[page] = name
	return nil
}

// Lookup resolves the schema bound to a 1-based page: explicit assignment,
// then the page_<n> naming convention, then DefaultName.
func (r *Registry) Lookup(page int) (Schema, error) {
	if name, ok := r.assigned[page]; ok {
		return r.schemas[name], nil
	}
	if name, ok := r.byPage[page]; ok {
		return r.schemas[name], nil
	}
	if s, ok := r.schemas[DefaultName]; ok {
		return s, nil
	}
	return Schema{}, common.ConfigErrorf("no schema bound to page %d", page)
}

// Get returns a schema by name.
func (r *Registry) Get(name string) (Schema, bool) {
	s, ok := r.schemas[name]
	return s, ok
}

// ListNames returns the registered schema names, sorted.
func (r *Registry) ListNames() []string {
	names := make([]string, 0, len(r.schemas))
	for n := range r.schemas {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
