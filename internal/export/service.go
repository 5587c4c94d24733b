package export

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/form-extractor/constants"
	"github.com/joseph-ayodele/form-extractor/internal/document"
	"github.com/joseph-ayodele/form-extractor/internal/mapping"
)

const (
	OfficialSheet = "Official"
	ExtraSheet    = "Extra"
)

// Result names the files written by one export.
type Result struct {
	OfficialPath string
	ExtraPath    string // empty when there was nothing left over

	Official *mapping.Table
	Extra    *mapping.Table
}

// Service renders projected tables as single-row XLSX workbooks.
type Service struct {
	logger *slog.Logger
}

func NewService(logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{logger: logger}
}

// TableXLSX returns a workbook (as bytes) with a header row and one data row.
func (s *Service) TableXLSX(t *mapping.Table, sheet string) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return nil, err
	}

	for i, h := range t.Columns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return nil, err
		}
		cell, _ = excelize.CoordinatesToCellName(i+1, 2)
		if v := cellValue(t.Row[i]); v != nil {
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return nil, err
			}
		}
		col, _ := excelize.ColumnNumberToName(i + 1)
		_ = f.SetColWidth(sheet, col, col, columnWidth(h, t.Row[i]))
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteTables writes <stem>_official.xlsx and, when extra is non-nil,
// <stem>_extra.xlsx into dir. Both workbooks are rendered before anything
// touches the disk, and a failed second write removes the first file. When
// extra is nil an <stem>_extra.xlsx left by an earlier export is removed.
func (s *Service) WriteTables(dir, stem string, official, extra *mapping.Table) (Result, error) {
	start := time.Now()

	officialBytes, err := s.TableXLSX(official, OfficialSheet)
	if err != nil {
		return Result{}, fmt.Errorf("render official table: %w", err)
	}
	var extraBytes []byte
	if extra != nil {
		if extraBytes, err = s.TableXLSX(extra, ExtraSheet); err != nil {
			return Result{}, fmt.Errorf("render extra table: %w", err)
		}
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Result{}, fmt.Errorf("create output dir: %w", err)
	}

	res := Result{
		OfficialPath: filepath.Join(dir, stem+constants.OfficialSuffix),
		Official:     official,
		Extra:        extra,
	}
	if err := writeFileAtomic(res.OfficialPath, officialBytes); err != nil {
		return Result{}, err
	}
	extraPath := filepath.Join(dir, stem+constants.ExtraSuffix)
	if extraBytes != nil {
		res.ExtraPath = extraPath
		if err := writeFileAtomic(res.ExtraPath, extraBytes); err != nil {
			_ = os.Remove(res.OfficialPath)
			return Result{}, err
		}
	} else if err := os.Remove(extraPath); err == nil {
		s.logger.Info("export.xlsx.stale_extra_removed", "path", extraPath)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return Result{}, fmt.Errorf("remove stale %s: %w", extraPath, err)
	}

	s.logger.Info("export.xlsx.ok",
		"official", res.OfficialPath,
		"official_columns", len(official.Columns),
		"extra", res.ExtraPath,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".fx-*.xlsx")
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// cellValue keeps numbers and booleans typed; lists of scalars are joined with
// ", " and null leaves the cell empty.
func cellValue(v document.Value) any {
	switch v.Kind() {
	case document.KindNull:
		return nil
	case document.KindBool:
		return v.AsBool()
	case document.KindNumber:
		n := v.AsNumber()
		if n.IsInt() {
			return n.Int64()
		}
		return n.Float64()
	default:
		return v.Text(", ")
	}
}

func columnWidth(header string, v document.Value) float64 {
	w := utf8.RuneCountInString(header)
	if n := utf8.RuneCountInString(v.Text(", ")); n > w {
		w = n
	}
	switch {
	case w < 10:
		return 12
	case w > 60:
		return 62
	default:
		return float64(w + 2)
	}
}
