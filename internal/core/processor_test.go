package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/form-extractor/constants"
	"github.com/joseph-ayodele/form-extractor/internal/common"
	"github.com/joseph-ayodele/form-extractor/internal/extract"
	"github.com/joseph-ayodele/form-extractor/internal/llm"
	"github.com/joseph-ayodele/form-extractor/internal/raster"
	"github.com/joseph-ayodele/form-extractor/internal/review"
	"github.com/joseph-ayodele/form-extractor/internal/schema"
	"github.com/joseph-ayodele/form-extractor/internal/session"
)

type fakeRasterizer struct{ pages int }

func (f fakeRasterizer) PageCount(data []byte) (int, error) {
	if string(data) == "not a document" {
		return 0, errors.New("unsupported document type")
	}
	return f.pages, nil
}

func (f fakeRasterizer) Render(_ context.Context, _ []byte, pages []int) ([]raster.Page, error) {
	out := make([]raster.Page, 0, len(pages))
	for _, p := range pages {
		out = append(out, raster.Page{Number: p, Image: []byte(fmt.Sprintf("img-%d", p)), MIMEType: "image/png"})
	}
	return out, nil
}

// memStore keeps snapshots the way the SQL store does.
type memStore struct {
	mu    sync.Mutex
	snaps map[string][]byte
	src   map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{snaps: map[string][]byte{}, src: map[string][]byte{}}
}

func (m *memStore) Save(_ context.Context, s *session.Session) error {
	raw, err := s.MarshalSnapshot()
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snaps[s.ID] = raw
	m.src[s.ID] = s.Source
	return nil
}

func (m *memStore) Get(_ context.Context, id string) (*session.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.snaps[id]
	if !ok {
		return nil, common.WrapError(common.ErrNotFound, "session "+id)
	}
	return session.Restore(raw, m.src[id])
}

var pageAnswers = map[int]string{
	1: `{"Patient": {"name": "Ada", "phone": null}, "Consent": {"signed": true}}`,
	3: "```json\n{\"Patient\": {\"phone\": \"+15551234\"}, \"Meds\": [\"a\", \"b\"],}\n```",
}

type fixture struct {
	proc   *Processor
	store  *memStore
	calls  *int
	outDir string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	reg, err := schema.New(map[string]string{
		"page_1":  `{"type": "object"}`,
		"default": `{"type": "object"}`,
	}, logger)
	require.NoError(t, err)

	calls := 0
	var mu sync.Mutex
	vision := llm.VisionExtractorFunc(func(_ context.Context, req llm.PageRequest) ([]byte, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		if string(req.Image) != fmt.Sprintf("img-%d", req.Page) {
			return nil, fmt.Errorf("page %d got image %q", req.Page, req.Image)
		}
		answer, ok := pageAnswers[req.Page]
		if !ok {
			return nil, errors.New("deadline exceeded")
		}
		return []byte(answer), nil
	})

	dir := t.TempDir()
	mappingPath := filepath.Join(dir, "field_mapping.json")
	require.NoError(t, os.WriteFile(mappingPath, []byte(`{"Patient.name": "Name", "Patient.phone": "Phone"}`), 0o644))
	targetPath := filepath.Join(dir, "target.json")
	require.NoError(t, os.WriteFile(targetPath, []byte(`["Name", "Phone", "DOB"]`), 0o644))
	outDir := filepath.Join(dir, "out")

	store := newMemStore()
	proc := NewProcessor(logger, reg, fakeRasterizer{pages: 3},
		extract.New(vision, extract.Options{}, logger), nil, store,
		Paths{FieldMapping: mappingPath, TargetSchema: targetPath, OutputDir: outDir})
	return fixture{proc: proc, store: store, calls: &calls, outDir: outDir}
}

func TestProcessorEndToEnd(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	p := fx.proc

	s, err := p.Upload(ctx, "uploads/intake.pdf", []byte("%PDF-1.7"))
	require.NoError(t, err)
	assert.Equal(t, 3, s.PageCount)

	assert.ErrorIs(t, p.Extract(ctx, s, false, nil), common.ErrInvalidTransition)

	require.NoError(t, p.ConfirmPages(ctx, s, nil))
	assert.ErrorIs(t, p.ConfirmSchemas(ctx, s, map[int]string{3: "nope"}), common.ErrConfiguration)
	require.NoError(t, p.ConfirmSchemas(ctx, s, nil))
	assert.Equal(t, map[int]string{1: "page_1", 2: "default", 3: "default"}, s.Assignments)

	var progressed []int
	require.NoError(t, p.Extract(ctx, s, false, func(done, total, page int, err error) {
		progressed = append(progressed, page)
	}))
	assert.Equal(t, []int{1, 2, 3}, progressed)
	assert.Equal(t, 3, *fx.calls)
	assert.Equal(t, constants.StateExtracted, s.State)
	assert.Equal(t, []string{"Patient", "Consent", "Meds"}, s.Document.Keys())
	require.Len(t, s.Warnings, 1)
	assert.Equal(t, common.CodeExtraction, s.Warnings[0].Code)
	assert.Equal(t, 2, s.Warnings[0].Page)

	// same inputs: reused
	require.NoError(t, p.Extract(ctx, s, false, nil))
	assert.Equal(t, 3, *fx.calls)
	require.NoError(t, p.Extract(ctx, s, true, nil))
	assert.Equal(t, 6, *fx.calls)

	_, err = p.Export(ctx, s)
	assert.ErrorIs(t, err, common.ErrExportPrecondition)
	_, statErr := os.Stat(fx.outDir)
	assert.True(t, os.IsNotExist(statErr))

	assert.ErrorIs(t, p.Review(ctx, s, review.Edits{Text: map[string]string{"Patient.age": "3"}}), common.ErrInvalidInput)
	require.NoError(t, p.Review(ctx, s, review.Edits{Text: map[string]string{"Patient.name": " Ada L. ", "Meds": "a\n\nc"}}))
	assert.Equal(t, constants.StateReviewed, s.State)

	official, extra, err := p.Tables(s)
	require.NoError(t, err)
	assert.Equal(t, []string{"Name", "Phone", "DOB"}, official.Columns)
	assert.Equal(t, "Ada L.", official.Cell("Name").AsString())
	assert.Equal(t, "+15551234", official.Cell("Phone").AsString())
	assert.True(t, official.Cell("DOB").IsNull())
	require.NotNil(t, extra)
	assert.Equal(t, []string{"Consent.signed", "Meds"}, extra.Columns)
	assert.Equal(t, "a, c", extra.Cell("Meds").Text(", "))

	res, err := p.Export(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(fx.outDir, "intake_official.xlsx"), res.OfficialPath)
	assert.FileExists(t, res.OfficialPath)
	assert.FileExists(t, res.ExtraPath)

	stored, err := fx.store.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.StateExported, stored.State)
	assert.Equal(t, res.OfficialPath, stored.OfficialPath)

	dump, err := p.DumpJSON(s)
	require.NoError(t, err)
	assert.Contains(t, string(dump), `"Ada L."`)
}

func TestProcessorRejectsUnreadableUpload(t *testing.T) {
	fx := newFixture(t)
	_, err := fx.proc.Upload(context.Background(), "x.bin", []byte("not a document"))
	assert.ErrorIs(t, err, common.ErrInvalidInput)
	_, err = fx.proc.Upload(context.Background(), "x.bin", nil)
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestExportWithBrokenMappingWritesNothing(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	fx.proc.paths.FieldMapping = filepath.Join(t.TempDir(), "missing.json")

	s, err := fx.proc.Upload(ctx, "intake.pdf", []byte("%PDF-1.7"))
	require.NoError(t, err)
	require.NoError(t, fx.proc.ConfirmPages(ctx, s, []int{1}))
	require.NoError(t, fx.proc.ConfirmSchemas(ctx, s, nil))
	require.NoError(t, fx.proc.Extract(ctx, s, false, nil))
	require.NoError(t, fx.proc.Review(ctx, s, review.Unchanged{}))

	_, err = fx.proc.Export(ctx, s)
	assert.ErrorIs(t, err, common.ErrConfiguration)
	assert.Equal(t, constants.StateReviewed, s.State)
	_, statErr := os.Stat(fx.outDir)
	assert.True(t, os.IsNotExist(statErr))
}

func TestExtractByIDUsesStore(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	s, err := fx.proc.Upload(ctx, "intake.pdf", []byte("%PDF-1.7"))
	require.NoError(t, err)
	require.NoError(t, fx.proc.ConfirmPages(ctx, s, []int{3, 1}))
	require.NoError(t, fx.proc.ConfirmSchemas(ctx, s, map[int]string{3: "page_1"}))

	require.NoError(t, fx.proc.ExtractByID(ctx, s.ID, false))
	stored, err := fx.store.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.StateExtracted, stored.State)
	assert.Empty(t, stored.Warnings)
	patient, ok := stored.Document.Get("Patient")
	require.True(t, ok)
	phone, _ := patient.AsMapping().Get("phone")
	assert.Equal(t, "+15551234", phone.AsString())
	assert.Equal(t, []string{"Patient", "Consent", "Meds"}, stored.Document.Keys())

	assert.ErrorIs(t, fx.proc.ExtractByID(ctx, "missing", false), common.ErrNotFound)
}
