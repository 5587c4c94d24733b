package mapping

import (
	"github.com/joseph-ayodele/form-extractor/internal/document"
)

// Table is a single-row table: one processed document.
type Table struct {
	Columns []string
	Row     []document.Value // parallel to Columns; null for an empty cell
}

// Cell returns the value under column, or null.
func (t *Table) Cell(column string) document.Value {
	for i, c := range t.Columns {
		if c == column {
			return t.Row[i]
		}
	}
	return document.Null()
}

// Strings renders the row as text, lists joined with ", ".
func (t *Table) Strings() map[string]string {
	out := make(map[string]string, len(t.Columns))
	for i, c := range t.Columns {
		out[c] = t.Row[i].Text(", ")
	}
	return out
}

// Project builds the official table, with exactly columns in order, and the
// extra table holding every flattened path that feeds no target column,
// including paths mapped to a column the target schema does not have. A
// column is empty when it has no source or its source is absent from rec.
// extra is nil when nothing is left over.
func Project(rec *FlatRecord, fm *FieldMapping, columns []string) (official *Table, extra *Table) {
	official = &Table{
		Columns: append([]string(nil), columns...),
		Row:     make([]document.Value, len(columns)),
	}
	consumed := make(map[string]bool, len(columns))
	for i, col := range columns {
		official.Row[i] = document.Null()
		if src, ok := fm.SourceFor(col); ok {
			consumed[src] = true
			if v, ok := rec.Get(src); ok {
				official.Row[i] = v
			}
		}
	}

	for _, key := range rec.Keys() {
		if consumed[key] {
			continue
		}
		if extra == nil {
			extra = &Table{}
		}
		v, _ := rec.Get(key)
		extra.Columns = append(extra.Columns, key)
		extra.Row = append(extra.Row, v)
	}
	return official, extra
}
