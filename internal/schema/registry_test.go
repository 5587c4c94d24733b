package schema

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/form-extractor/internal/common"
)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

const objSchema = `{"type": "object", "properties": {"Demographics": {"type": "object"}}}`

func writeSchemas(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	return dir
}

func TestLoadDirectoryAndLookupByConvention(t *testing.T) {
	dir := writeSchemas(t, map[string]string{
		"page_1.json":  objSchema,
		"page-2.json":  objSchema,
		"Page3.JSON":   objSchema,
		"default.json": `{"type": "object"}`,
		"notes.txt":    "ignored",
	})
	reg, err := Load(dir, quiet())
	require.NoError(t, err)

	assert.Equal(t, []string{"Page3", "default", "page-2", "page_1"}, reg.ListNames())

	for page, want := range map[int]string{1: "page_1", 2: "page-2", 3: "Page3", 9: "default"} {
		s, err := reg.Lookup(page)
		require.NoError(t, err)
		assert.Equal(t, want, s.Name, "page %d", page)
	}

	s, _ := reg.Lookup(1)
	assert.Equal(t, objSchema, s.Text)
}

func TestAssignOverridesConvention(t *testing.T) {
	dir := writeSchemas(t, map[string]string{"page_1.json": objSchema, "intake.json": objSchema})
	reg, err := Load(dir, quiet())
	require.NoError(t, err)

	require.NoError(t, reg.Assign(1, "intake"))
	s, err := reg.Lookup(1)
	require.NoError(t, err)
	assert.Equal(t, "intake", s.Name)

	assert.ErrorIs(t, reg.Assign(2, "missing"), common.ErrConfiguration)
	assert.ErrorIs(t, reg.Assign(0, "intake"), common.ErrConfiguration)

	_, err = reg.Lookup(2)
	assert.ErrorIs(t, err, common.ErrConfiguration)
}

func TestLoadSingleFileIsDefault(t *testing.T) {
	dir := writeSchemas(t, map[string]string{"ocr_schema.json": objSchema})
	reg, err := Load(filepath.Join(dir, "ocr_schema.json"), quiet())
	require.NoError(t, err)
	assert.Equal(t, []string{DefaultName}, reg.ListNames())

	s, err := reg.Lookup(42)
	require.NoError(t, err)
	assert.Equal(t, DefaultName, s.Name)
}

func TestLoadErrors(t *testing.T) {
	cases := map[string]string{
		"blank":       "",
		"missing":     filepath.Join(t.TempDir(), "nope"),
		"empty dir":   writeSchemas(t, map[string]string{"readme.md": "x"}),
		"invalid":     writeSchemas(t, map[string]string{"page_1.json": `{"type": `}),
		"not compile": writeSchemas(t, map[string]string{"page_1.json": `{"type": 12}`}),
	}
	for name, src := range cases {
		_, err := Load(src, quiet())
		assert.ErrorIs(t, err, common.ErrConfiguration, name)
	}
}

func TestSchemaValidate(t *testing.T) {
	reg, err := New(map[string]string{"default": `{"type":"object","required":["A"]}`}, quiet())
	require.NoError(t, err)
	s, _ := reg.Get("default")

	assert.NoError(t, s.Validate(map[string]any{"A": 1.0}))
	assert.Error(t, s.Validate(map[string]any{"B": 1.0}))
	assert.NoError(t, Schema{Name: "raw"}.Validate(map[string]any{}))
}
