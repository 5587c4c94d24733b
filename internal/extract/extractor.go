// Package extract runs the vision model once per selected page and isolates
// per-page failures.
package extract

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/joseph-ayodele/form-extractor/internal/common"
	"github.com/joseph-ayodele/form-extractor/internal/document"
	"github.com/joseph-ayodele/form-extractor/internal/llm"
	"github.com/joseph-ayodele/form-extractor/internal/merge"
)

// Options tune a PageExtractor.
type Options struct {
	ValidateSchema bool // raise SCHEMA_MISMATCH when a page result does not conform
}

// PageExtractor drives the vision collaborator page by page.
type PageExtractor struct {
	client llm.VisionExtractor
	opts   Options
	logger *slog.Logger
}

func New(client llm.VisionExtractor, opts Options, logger *slog.Logger) *PageExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &PageExtractor{client: client, opts: opts, logger: logger}
}

// Extract calls the collaborator once for the page. Any failure yields an
// empty mapping together with an EXTRACTION_ERROR naming the page.
func (e *PageExtractor) Extract(ctx context.Context, in PageInput) (*document.Mapping, error) {
	start := time.Now()
	log := e.logger.With("session_id", common.SessionIDFromContext(ctx))
	log.Info("extract.page.start", "page", in.Number, "schema", in.Schema.Name, "image_bytes", len(in.Image))

	raw, err := e.client.ExtractPage(ctx, llm.PageRequest{
		Image:      in.Image,
		MIMEType:   in.MIMEType,
		Page:       in.Number,
		SchemaName: in.Schema.Name,
		SchemaText: in.Schema.Text,
	})
	if err != nil {
		log.Warn("extract.page.failed", "page", in.Number, "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return document.NewMapping(), common.ExtractionError(in.Number, err)
	}

	m, repaired, err := llm.ParsePage(raw)
	if err != nil {
		log.Warn("extract.page.malformed", "page", in.Number, "error", err, "raw_bytes", len(raw))
		return document.NewMapping(), common.ExtractionError(in.Number, err)
	}
	if repaired {
		log.Warn("extract.page.repaired", "page", in.Number)
	}

	log.Info("extract.page.ok",
		"page", in.Number,
		"sections", m.Len(),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return m, nil
}

// Run extracts pages strictly one after another in ascending page order. A
// failed page contributes an empty result and a warning; the run goes on.
// Only cancellation of ctx stops it early.
func (e *PageExtractor) Run(ctx context.Context, pages []PageInput, progress Progress) (RunResult, error) {
	ordered := make([]PageInput, len(pages))
	copy(ordered, pages)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Number < ordered[j].Number })

	start := time.Now()
	res := RunResult{Results: make([]merge.PageResult, 0, len(ordered))}
	for i, in := range ordered {
		if err := ctx.Err(); err != nil {
			e.logger.Warn("extract.run.cancelled", "done", i, "total", len(ordered))
			return res, err
		}

		m, err := e.Extract(ctx, in)
		if err != nil {
			res.Warnings = append(res.Warnings, common.Warning{
				Code:    common.CodeExtraction,
				Page:    in.Number,
				Message: errorCause(err),
			})
		} else if e.opts.ValidateSchema {
			if verr := in.Schema.Validate(document.MappingValue(m).ToAny()); verr != nil {
				e.logger.Warn("extract.page.schema_mismatch", "page", in.Number, "schema", in.Schema.Name, "error", verr)
				res.Warnings = append(res.Warnings, common.Warning{
					Code:    common.CodeSchemaMismatch,
					Page:    in.Number,
					Message: verr.Error(),
				})
			}
		}
		res.Results = append(res.Results, merge.PageResult{Page: in.Number, Data: m})
		if progress != nil {
			progress(i+1, len(ordered), in.Number, err)
		}
	}

	e.logger.Info("extract.run.done",
		"pages", len(ordered),
		"failed", len(res.Failed()),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}

func errorCause(err error) string {
	var ae *common.AppError
	if errors.As(err, &ae) && ae.Cause != nil {
		return ae.Cause.Error()
	}
	return err.Error()
}
