package core

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joseph-ayodele/form-extractor/constants"
	"github.com/joseph-ayodele/form-extractor/internal/common"
	"github.com/joseph-ayodele/form-extractor/internal/document"
	"github.com/joseph-ayodele/form-extractor/internal/export"
	"github.com/joseph-ayodele/form-extractor/internal/extract"
	"github.com/joseph-ayodele/form-extractor/internal/mapping"
	"github.com/joseph-ayodele/form-extractor/internal/merge"
	"github.com/joseph-ayodele/form-extractor/internal/raster"
	"github.com/joseph-ayodele/form-extractor/internal/review"
	"github.com/joseph-ayodele/form-extractor/internal/schema"
	"github.com/joseph-ayodele/form-extractor/internal/session"
)

// SessionStore persists session snapshots between stages.
type SessionStore interface {
	Save(ctx context.Context, s *session.Session) error
	Get(ctx context.Context, id string) (*session.Session, error)
}

// Paths locate the static inputs of the mapping stage and the output dir.
type Paths struct {
	FieldMapping string
	TargetSchema string
	OutputDir    string
}

// Processor runs the stages of a review session: upload, page and schema
// confirmation, extraction and merge, correction, export. Every stage checks
// the session state first and saves a snapshot when a store is configured.
type Processor struct {
	logger     *slog.Logger
	registry   *schema.Registry
	rasterizer raster.Rasterizer
	extractor  *extract.PageExtractor
	exporter   *export.Service
	store      SessionStore
	paths      Paths
	locks      *keyedMutex
}

func NewProcessor(
	logger *slog.Logger,
	registry *schema.Registry,
	rasterizer raster.Rasterizer,
	extractor *extract.PageExtractor,
	exporter *export.Service,
	store SessionStore,
	paths Paths,
) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	if exporter == nil {
		exporter = export.NewService(logger)
	}
	if paths.OutputDir == "" {
		paths.OutputDir = "."
	}
	return &Processor{
		logger:     logger,
		registry:   registry,
		rasterizer: rasterizer,
		extractor:  extractor,
		exporter:   exporter,
		store:      store,
		paths:      paths,
		locks:      newKeyedMutex(),
	}
}

// Registry exposes the schema registry for listing.
func (p *Processor) Registry() *schema.Registry { return p.registry }

func (p *Processor) save(ctx context.Context, s *session.Session) error {
	if p.store == nil {
		return nil
	}
	if err := p.store.Save(ctx, s); err != nil {
		p.logger.Error("processor.save.failed", "session_id", s.ID, "state", s.State, "error", err)
		return err
	}
	return nil
}

// Upload starts a session for a source document.
func (p *Processor) Upload(ctx context.Context, name string, data []byte) (*session.Session, error) {
	if len(data) == 0 {
		return nil, common.WrapError(common.ErrInvalidInput, "empty upload")
	}
	n, err := p.rasterizer.PageCount(data)
	if err != nil {
		return nil, common.WrapError(common.ErrInvalidInput, err.Error())
	}
	s, err := session.New(name, data, n)
	if err != nil {
		return nil, err
	}
	if err := p.save(ctx, s); err != nil {
		return nil, err
	}
	p.logger.Info("processor.upload.ok", "session_id", s.ID, "source", name, "bytes", len(data), "pages", n)
	return s, nil
}

// ConfirmPages records the page selection; nil selects every page.
func (p *Processor) ConfirmPages(ctx context.Context, s *session.Session, pages []int) error {
	if err := s.ConfirmPages(pages); err != nil {
		return err
	}
	p.logger.Info("processor.pages.confirmed", "session_id", s.ID, "pages", s.Pages)
	return p.save(ctx, s)
}

// ProposeSchemas resolves the registry's binding for every selected page.
func (p *Processor) ProposeSchemas(s *session.Session) (map[int]string, error) {
	out := make(map[int]string, len(s.Pages))
	for _, page := range s.Pages {
		sc, err := p.registry.Lookup(page)
		if err != nil {
			return nil, err
		}
		out[page] = sc.Name
	}
	return out, nil
}

// ConfirmSchemas binds every selected page to a schema. overrides may name a
// schema for some pages; the rest use the registry's binding.
func (p *Processor) ConfirmSchemas(ctx context.Context, s *session.Session, overrides map[int]string) error {
	if !s.State.AtLeast(constants.StatePagesConfirmed) {
		return common.TransitionError(string(s.State), string(constants.StateSchemasConfirmed))
	}
	assignments, err := p.ProposeSchemas(s)
	if err != nil {
		return err
	}
	for page, name := range overrides {
		name = strings.TrimSpace(name)
		if _, ok := p.registry.Get(name); !ok {
			return common.ConfigErrorf("schema %q is not registered (have: %s)", name, strings.Join(p.registry.ListNames(), ", "))
		}
		assignments[page] = name
	}
	if err := s.ConfirmSchemas(assignments); err != nil {
		return err
	}
	p.logger.Info("processor.schemas.confirmed", "session_id", s.ID, "assignments", s.Assignments)
	return p.save(ctx, s)
}

// CheckExtractable reports whether Extract can run on s now.
func (p *Processor) CheckExtractable(s *session.Session) error {
	if !s.State.AtLeast(constants.StateSchemasConfirmed) {
		return common.TransitionError(string(s.State), string(constants.StateExtracted))
	}
	for _, page := range s.Pages {
		if _, ok := p.registry.Get(s.Assignments[page]); !ok {
			return common.ConfigErrorf("page %d is bound to unknown schema %q", page, s.Assignments[page])
		}
	}
	return nil
}

// Extract renders the selected pages, runs the extractor over them and
// merges the results into the session's document. An extraction of the same
// source, selection and assignment is reused unless force is set.
func (p *Processor) Extract(ctx context.Context, s *session.Session, force bool, progress extract.Progress) error {
	if err := p.CheckExtractable(s); err != nil {
		return err
	}
	if !force && s.HasExtraction() {
		p.logger.Info("processor.extract.reused", "session_id", s.ID, "pages", s.Pages)
		return nil
	}

	inputs := make([]extract.PageInput, 0, len(s.Pages))
	for _, page := range s.Pages {
		sc, _ := p.registry.Get(s.Assignments[page])
		inputs = append(inputs, extract.PageInput{Number: page, Schema: sc})
	}

	start := time.Now()
	images, err := p.rasterizer.Render(ctx, s.Source, s.Pages)
	if err != nil {
		return fmt.Errorf("render pages: %w", err)
	}
	if len(images) != len(inputs) {
		return fmt.Errorf("render pages: got %d images for %d pages", len(images), len(inputs))
	}
	for i := range inputs {
		inputs[i].Image = images[i].Image
		inputs[i].MIMEType = images[i].MIMEType
	}

	run, err := p.extractor.Run(ctx, inputs, progress)
	if err != nil {
		p.logger.Warn("processor.extract.aborted", "session_id", s.ID, "error", err)
		return err
	}
	doc, mergeWarnings := merge.Merge(run.Results)
	warnings := append(run.Warnings, mergeWarnings...)
	for _, w := range warnings {
		p.logger.Warn("processor.extract.warning", "session_id", s.ID, "code", w.Code, "page", w.Page, "path", w.Path, "message", w.Message)
	}

	if err := s.SetExtracted(doc, warnings); err != nil {
		return err
	}
	p.logger.Info("processor.extract.ok",
		"session_id", s.ID,
		"pages", len(inputs),
		"failed_pages", run.Failed(),
		"sections", doc.Len(),
		"warnings", len(warnings),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return p.save(ctx, s)
}

// unknownPaths is implemented by editors that address leaves by path.
type unknownPaths interface {
	Unknown(doc *document.Mapping) []string
}

// Review walks the document through editor. A second review starts from the
// previous corrections.
func (p *Processor) Review(ctx context.Context, s *session.Session, editor review.Editor) error {
	if !s.State.AtLeast(constants.StateExtracted) {
		return common.TransitionError(string(s.State), string(constants.StateReviewed))
	}
	base := s.Edited
	if base == nil {
		base = s.Document
	}
	if up, ok := editor.(unknownPaths); ok {
		if unknown := up.Unknown(base); len(unknown) > 0 {
			return common.WrapError(common.ErrInvalidInput, "no such field: "+strings.Join(unknown, ", "))
		}
	}
	edited, err := review.RenderDocument(base, editor)
	if err != nil {
		return err
	}
	if err := s.SetReviewed(edited); err != nil {
		return err
	}
	p.logger.Info("processor.review.ok", "session_id", s.ID, "fields", len(review.Fields(edited)))
	return p.save(ctx, s)
}

// Tables projects the corrected document onto the target columns. The field
// mapping and the target columns are loaded on every call.
func (p *Processor) Tables(s *session.Session) (official, extra *mapping.Table, err error) {
	if err := s.ExportReady(); err != nil {
		return nil, nil, err
	}
	fm, err := mapping.LoadFieldMapping(p.paths.FieldMapping)
	if err != nil {
		return nil, nil, err
	}
	columns, err := mapping.LoadTargetColumns(p.paths.TargetSchema)
	if err != nil {
		return nil, nil, err
	}
	official, extra = mapping.Project(mapping.Flatten(s.Edited), fm, columns)
	return official, extra, nil
}

// Export writes the official and extra spreadsheets for the corrected
// document. Nothing is written when a precondition or input fails.
func (p *Processor) Export(ctx context.Context, s *session.Session) (export.Result, error) {
	official, extra, err := p.Tables(s)
	if err != nil {
		p.logger.Warn("processor.export.rejected", "session_id", s.ID, "state", s.State, "error", err)
		return export.Result{}, err
	}
	res, err := p.exporter.WriteTables(p.paths.OutputDir, s.Stem(), official, extra)
	if err != nil {
		return export.Result{}, err
	}
	if err := s.MarkExported(res.OfficialPath, res.ExtraPath); err != nil {
		return export.Result{}, err
	}
	p.logger.Info("processor.export.ok", "session_id", s.ID, "official", res.OfficialPath, "extra", res.ExtraPath)
	return res, p.save(ctx, s)
}

// DumpJSON returns the corrected document, or the extracted one before
// review, as indented JSON.
func (p *Processor) DumpJSON(s *session.Session) ([]byte, error) {
	doc := s.Edited
	if doc == nil {
		doc = s.Document
	}
	if doc == nil {
		return nil, common.TransitionError(string(s.State), string(constants.StateExtracted))
	}
	return doc.Indent()
}
