package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joseph-ayodele/form-extractor/internal/common"
	"github.com/joseph-ayodele/form-extractor/internal/core"
	"github.com/joseph-ayodele/form-extractor/internal/ingest"
	repo "github.com/joseph-ayodele/form-extractor/internal/repository"
	"github.com/joseph-ayodele/form-extractor/internal/review"
)

// printError prints an error message to stderr, falling back to stdout if stderr fails
func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func main() {
	var (
		file        = flag.String("file", "", "scanned form to process, PDF or image")
		dir         = flag.String("dir", "", "process every form under this directory instead of --file")
		pagesFlag   = flag.String("pages", "", "pages to extract, e.g. 1,3-5 (default: all)")
		assignFlag  = flag.String("schema-assign", "", "schema per page, e.g. 3=page_1,4=default")
		editsFlag   = flag.String("edits", "", "JSON or YAML file of dotted path -> corrected value")
		interactive = flag.Bool("interactive", false, "review every field on the terminal")
		jsonOut     = flag.String("json-out", "", "also write the corrected document as JSON to this path")
		outDir      = flag.String("out-dir", "", "directory for the spreadsheets (default: OUTPUT_DIR)")
	)
	flag.Parse()

	if *file == "" && flag.NArg() > 0 {
		*file = flag.Arg(0)
	}
	if (*file == "") == (*dir == "") {
		printError("Error: exactly one of --file or --dir is required\n")
		os.Exit(1)
	}
	if *dir != "" && *jsonOut != "" {
		printError("Error: --json-out needs a single --file\n")
		os.Exit(1)
	}
	if *interactive && *editsFlag != "" {
		printError("Error: --interactive and --edits are mutually exclusive\n")
		os.Exit(1)
	}
	pages, err := parsePages(*pagesFlag)
	if err != nil {
		printError("Error: %v\n", err)
		os.Exit(1)
	}
	assignments, err := parseAssignments(*assignFlag)
	if err != nil {
		printError("Error: %v\n", err)
		os.Exit(1)
	}
	var editor review.Editor = review.Unchanged{}
	switch {
	case *interactive:
		editor = review.NewPrompt(os.Stdin, os.Stdout)
	case *editsFlag != "":
		if editor, err = loadEdits(*editsFlag); err != nil {
			printError("Error: %v\n", err)
			os.Exit(1)
		}
	}

	cfg, err := common.LoadConfig()
	if err != nil {
		printError("Error: %v\n", err)
		os.Exit(2)
	}
	if *outDir != "" {
		cfg.Paths.OutputDir = *outDir
	}
	logger := common.NewLogger(os.Stderr, cfg.Log)
	if err := cfg.Validate(); err != nil {
		logger.Error("config.invalid", "error", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := repo.Open(ctx, repo.ConfigFrom(cfg.Store), logger)
	if err != nil {
		logger.Error("db.open.failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	proc, err := core.NewFromConfig(cfg, repo.NewSessionRepository(db, logger), logger)
	if err != nil {
		logger.Error("processor.wire.failed", "error", err)
		os.Exit(1)
	}

	if *dir != "" {
		if failed := runDir(ctx, proc, logger, *dir, pages, assignments, editor); failed > 0 {
			os.Exit(1)
		}
		return
	}
	if err := run(ctx, proc, logger, *file, pages, assignments, editor, *jsonOut); err != nil {
		logger.Error("batch.failed", "file", *file, "error", err)
		printError("Error: %v\n", err)
		os.Exit(1)
	}
}

// runDir processes every form under dir and returns how many failed.
func runDir(ctx context.Context, proc *core.Processor, logger *slog.Logger, dir string, pages []int,
	assignments map[int]string, editor review.Editor) int {
	files, stats, err := ingest.Discover(dir, nil, true)
	if err != nil {
		printError("Error: %v\n", err)
		return 1
	}
	failed := int(stats.Failed)
	for _, f := range files {
		if ctx.Err() != nil {
			break
		}
		fmt.Printf("== %s\n", f)
		if err := run(ctx, proc, logger, f, pages, assignments, editor, ""); err != nil {
			logger.Error("batch.failed", "file", f, "error", err)
			printError("Error: %s: %v\n", f, err)
			failed++
		}
	}
	fmt.Printf("Processed %d form(s) under %s, %d failed\n", len(files), dir, failed)
	return failed
}

func run(ctx context.Context, proc *core.Processor, logger *slog.Logger, file string, pages []int,
	assignments map[int]string, editor review.Editor, jsonOut string) error {
	data, err := os.ReadFile(file)
	if err != nil {
		return err
	}
	s, err := proc.Upload(ctx, filepath.Base(file), data)
	if err != nil {
		return err
	}
	if err := proc.ConfirmPages(ctx, s, pages); err != nil {
		return err
	}
	if err := proc.ConfirmSchemas(ctx, s, assignments); err != nil {
		return err
	}

	err = proc.Extract(ctx, s, false, func(done, total, page int, err error) {
		status := "ok"
		if err != nil {
			status = "failed"
		}
		printError("page %d extracted (%d/%d): %s\n", page, done, total, status)
	})
	if err != nil {
		return err
	}
	for _, w := range s.Warnings {
		printError("warning: %s\n", w)
	}

	if err := proc.Review(ctx, s, editor); err != nil {
		return err
	}
	if jsonOut != "" {
		raw, err := proc.DumpJSON(s)
		if err != nil {
			return err
		}
		if err := os.WriteFile(jsonOut, append(raw, '\n'), 0o644); err != nil {
			return err
		}
		logger.Info("batch.json.written", "path", jsonOut)
	}

	res, err := proc.Export(ctx, s)
	if err != nil {
		return err
	}

	fmt.Printf("Form processing complete!\n")
	fmt.Printf("- Session: %s\n", s.ID)
	fmt.Printf("- Pages extracted: %d\n", len(s.Pages))
	fmt.Printf("- Warnings: %d\n", len(s.Warnings))
	fmt.Printf("- Official table: %s\n", res.OfficialPath)
	if res.ExtraPath != "" {
		fmt.Printf("- Extra table: %s\n", res.ExtraPath)
	}
	return nil
}
