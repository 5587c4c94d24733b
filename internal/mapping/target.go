package mapping

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/form-extractor/constants"
	"github.com/joseph-ayodele/form-extractor/internal/common"
)

// LoadTargetColumns reads the external column order from the header row of a
// reference .xlsx (first sheet), a .json array of names or a .csv header.
func LoadTargetColumns(path string) ([]string, error) {
	if strings.TrimSpace(path) == "" {
		return nil, common.ConfigErrorf("target schema path is not set")
	}
	if _, err := os.Stat(path); err != nil {
		return nil, common.ConfigError("target schema "+path, err)
	}

	var (
		cols []string
		err  error
	)
	switch ext := constants.NormalizeExt(filepath.Ext(path)); ext {
	case "xlsx", "xlsm":
		cols, err = xlsxHeader(path)
	case "json":
		cols, err = jsonHeader(path)
	case "csv":
		cols, err = csvHeader(path)
	default:
		return nil, common.ConfigErrorf("target schema %s: unsupported format %q (want .xlsx, .json or .csv)", path, ext)
	}
	if err != nil {
		return nil, common.ConfigError("read target schema "+path, err)
	}
	return normalizeColumns(path, cols)
}

func xlsxHeader(path string) ([]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil
	}
	rows, err := f.Rows(sheets[0])
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	if !rows.Next() {
		return nil, rows.Error()
	}
	return rows.Columns()
}

func jsonHeader(path string) ([]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cols []string
	if err := json.Unmarshal(raw, &cols); err != nil {
		return nil, err
	}
	return cols, nil
}

func csvHeader(path string) ([]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	r := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(raw, []byte("\xef\xbb\xbf"))))
	r.FieldsPerRecord = -1
	rec, err := r.Read()
	if err == io.EOF {
		return nil, nil
	}
	return rec, err
}

// normalizeColumns trims names and drops trailing blank cells. A blank name
// between real ones, a repeated name or no names at all is a configuration error.
func normalizeColumns(path string, cols []string) ([]string, error) {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = strings.TrimSpace(c)
	}
	for len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	if len(out) == 0 {
		return nil, common.ConfigErrorf("target schema %s defines no columns", path)
	}
	seen := make(map[string]int, len(out))
	for i, c := range out {
		if c == "" {
			return nil, common.ConfigErrorf("target schema %s: column %d has no name", path, i+1)
		}
		if j, ok := seen[c]; ok {
			return nil, common.ConfigErrorf("target schema %s: column %q appears at %d and %d", path, c, j+1, i+1)
		}
		seen[c] = i
	}
	return out, nil
}
