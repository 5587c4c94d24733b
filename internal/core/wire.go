package core

import (
	"log/slog"

	"github.com/joseph-ayodele/form-extractor/internal/common"
	"github.com/joseph-ayodele/form-extractor/internal/export"
	"github.com/joseph-ayodele/form-extractor/internal/extract"
	"github.com/joseph-ayodele/form-extractor/internal/raster"
	"github.com/joseph-ayodele/form-extractor/internal/schema"
)

// NewFromConfig wires a Processor from configuration: schema registry,
// pdftoppm rasterizer, the configured vision client and the xlsx writer.
// store may be nil.
func NewFromConfig(cfg *common.Config, store SessionStore, logger *slog.Logger) (*Processor, error) {
	if logger == nil {
		logger = slog.Default()
	}
	registry, err := schema.Load(cfg.Paths.SchemaSource, logger)
	if err != nil {
		return nil, err
	}
	vision, err := NewVisionExtractor(cfg.LLM, logger)
	if err != nil {
		return nil, err
	}
	rasterizer := raster.NewPDFRasterizer(raster.Config{
		Pdftoppm:      cfg.Raster.Pdftoppm,
		DPI:           cfg.Raster.DPI,
		MaxPages:      cfg.Raster.MaxPages,
		HeicConverter: cfg.Raster.HeicConverter,
		HeicCacheDir:  cfg.Raster.HeicCacheDir,
	}, raster.ExecRunner{Logger: logger}, logger)
	extractor := extract.New(vision, extract.Options{ValidateSchema: cfg.Extract.ValidateSchema}, logger)

	logger.Info("processor.wired",
		"provider", cfg.LLM.Provider,
		"model", cfg.LLM.Model,
		"schemas", registry.ListNames(),
		"dpi", cfg.Raster.DPI,
		"store", store != nil,
	)
	return NewProcessor(logger, registry, rasterizer, extractor, export.NewService(logger), store, Paths{
		FieldMapping: cfg.Paths.FieldMapping,
		TargetSchema: cfg.Paths.TargetSchema,
		OutputDir:    cfg.Paths.OutputDir,
	}), nil
}
