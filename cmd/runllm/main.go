package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joseph-ayodele/form-extractor/internal/common"
	"github.com/joseph-ayodele/form-extractor/internal/core"
	"github.com/joseph-ayodele/form-extractor/internal/document"
	"github.com/joseph-ayodele/form-extractor/internal/extract"
	"github.com/joseph-ayodele/form-extractor/internal/raster"
	"github.com/joseph-ayodele/form-extractor/internal/schema"
)

// runllm sends one page of a form to the configured vision model, possibly
// several times, and prints each answer. Useful for tuning schemas.
func main() {
	page := flag.Int("page", 1, "1-based page to extract")
	schemaName := flag.String("schema", "", "schema name (default: the registry's binding for the page)")
	times := flag.Int("times", 1, "number of runs against the same page")
	flag.Parse()

	cfg, err := common.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	logger := common.NewLogger(os.Stderr, cfg.Log)

	if flag.NArg() < 1 {
		logger.Error("usage: runllm [-page N] [-schema NAME] [-times N] <file.pdf|image>")
		os.Exit(2)
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("config.invalid", "error", err)
		os.Exit(2)
	}
	path := flag.Arg(0)
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Error("read.failed", "path", path, "error", err)
		os.Exit(1)
	}

	registry, err := schema.Load(cfg.Paths.SchemaSource, logger)
	if err != nil {
		logger.Error("schema.load.failed", "error", err)
		os.Exit(1)
	}
	sc, err := registry.Lookup(*page)
	if *schemaName != "" {
		var ok bool
		if sc, ok = registry.Get(*schemaName); !ok {
			err = common.ConfigErrorf("schema %q is not registered", *schemaName)
		} else {
			err = nil
		}
	}
	if err != nil {
		logger.Error("schema.lookup.failed", "page", *page, "error", err)
		os.Exit(1)
	}

	rasterizer := raster.NewPDFRasterizer(raster.Config{Pdftoppm: cfg.Raster.Pdftoppm, DPI: cfg.Raster.DPI, HeicConverter: cfg.Raster.HeicConverter, HeicCacheDir: cfg.Raster.HeicCacheDir}, nil, logger)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	images, err := rasterizer.Render(ctx, data, []int{*page})
	cancel()
	if err != nil {
		logger.Error("raster.failed", "page", *page, "error", err)
		os.Exit(1)
	}

	vision, err := core.NewVisionExtractor(cfg.LLM, logger)
	if err != nil {
		logger.Error("llm.wire.failed", "error", err)
		os.Exit(1)
	}
	extractor := extract.New(vision, extract.Options{ValidateSchema: true}, logger)

	for i := 1; i <= *times; i++ {
		runCtx, cancelRun := context.WithTimeout(context.Background(), 10*time.Minute)
		start := time.Now()
		logger.Info("runllm.run.start", "iter", i, "page", *page, "schema", sc.Name)

		m, err := extractor.Extract(runCtx, extract.PageInput{
			Number:   *page,
			Image:    images[0].Image,
			MIMEType: images[0].MIMEType,
			Schema:   sc,
		})
		cancelRun()
		if err != nil {
			logger.Error("runllm.run.error", "iter", i, "error", err)
			continue
		}
		if verr := sc.Validate(document.MappingValue(m).ToAny()); verr != nil {
			logger.Warn("runllm.run.schema_mismatch", "iter", i, "error", verr)
		}
		out, _ := m.Indent()
		fmt.Println(string(out))
		logger.Info("runllm.run.ok", "iter", i, "sections", m.Len(), "elapsed_ms", time.Since(start).Milliseconds())
	}
}
