// Package mapping flattens a corrected document into dotted-path leaves and
// projects them onto a fixed target column order.
package mapping

import (
	"github.com/joseph-ayodele/form-extractor/internal/document"
)

// FlatRecord maps dotted paths to leaf values, in depth-first order.
type FlatRecord struct {
	keys   []string
	values map[string]document.Value
}

func newFlatRecord() *FlatRecord {
	return &FlatRecord{values: map[string]document.Value{}}
}

// Keys returns the dotted paths in traversal order.
func (r *FlatRecord) Keys() []string {
	out := make([]string, len(r.keys))
	copy(out, r.keys)
	return out
}

func (r *FlatRecord) Get(path string) (document.Value, bool) {
	v, ok := r.values[path]
	return v, ok
}

func (r *FlatRecord) Len() int { return len(r.keys) }

func (r *FlatRecord) set(path string, v document.Value) {
	if _, ok := r.values[path]; !ok {
		r.keys = append(r.keys, path)
	}
	r.values[path] = v
}

// Flatten walks doc depth-first. Mappings and repeated entries (lists of
// mappings, one index segment per entry) are descended; every other value,
// lists of scalars included, is a leaf.
func Flatten(doc *document.Mapping) *FlatRecord {
	rec := newFlatRecord()
	for _, key := range doc.Keys() {
		v, _ := doc.Get(key)
		flatten(rec, document.Path{key}, v)
	}
	return rec
}

func flatten(rec *FlatRecord, path document.Path, v document.Value) {
	switch {
	case v.Kind() == document.KindMapping:
		m := v.AsMapping()
		for _, key := range m.Keys() {
			child, _ := m.Get(key)
			flatten(rec, path.Child(key), child)
		}
	case v.IsListOfMappings():
		for i, item := range v.AsList() {
			flatten(rec, path.Index(i), item)
		}
	default:
		rec.set(path.Dotted(), v)
	}
}
