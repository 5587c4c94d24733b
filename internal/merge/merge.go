// Package merge folds per-page extraction results into one document.
package merge

import (
	"fmt"

	"github.com/joseph-ayodele/form-extractor/internal/common"
	"github.com/joseph-ayodele/form-extractor/internal/document"
)

// PageResult is the structured answer for one page. Data is empty (or nil)
// when the page failed extraction.
type PageResult struct {
	Page int
	Data *document.Mapping
}

// Merge folds results in the order given. Section keys keep first-seen order.
// Mappings deep-merge, lists concatenate, scalar collisions go to the later
// page, and shape conflicts keep the non-empty or more specific side with a
// MERGE_AMBIGUITY warning. Null never overrides a value; a later null over a
// non-empty value is reported the same way. Inputs are not modified.
func Merge(results []PageResult) (*document.Mapping, []common.Warning) {
	out := document.NewMapping()
	var warnings []common.Warning
	for _, r := range results {
		if r.Data.Len() == 0 {
			continue
		}
		r.Data.Each(func(key string, v document.Value) bool {
			prev, ok := out.Get(key)
			if !ok {
				out.Set(key, v.Clone())
				return true
			}
			merged := mergeValue(document.Path{key}, prev, v, r.Page, &warnings)
			out.Set(key, merged)
			return true
		})
	}
	return out, warnings
}

func mergeValue(path document.Path, prev, next document.Value, page int, warnings *[]common.Warning) document.Value {
	switch {
	case next.IsNull():
		if !prev.IsEmpty() {
			*warnings = append(*warnings, common.Warning{
				Code:    common.CodeMergeAmbiguity,
				Page:    page,
				Path:    path.Dotted(),
				Message: fmt.Sprintf("blank on this page, kept earlier %s", prev.Kind()),
			})
		}
		return prev
	case prev.IsNull():
		return next.Clone()
	}

	pk, nk := shapeRank(prev), shapeRank(next)
	if pk != nk {
		keep := resolveConflict(prev, next)
		*warnings = append(*warnings, common.Warning{
			Code:    common.CodeMergeAmbiguity,
			Page:    page,
			Path:    path.Dotted(),
			Message: conflictMessage(prev, next, keep),
		})
		return keep.Clone()
	}

	switch prev.Kind() {
	case document.KindMapping:
		m := prev.AsMapping().Clone()
		next.AsMapping().Each(func(key string, v document.Value) bool {
			if old, ok := m.Get(key); ok {
				m.Set(key, mergeValue(path.Child(key), old, v, page, warnings))
			} else {
				m.Set(key, v.Clone())
			}
			return true
		})
		return document.MappingValue(m)
	case document.KindList:
		items := make([]document.Value, 0, len(prev.AsList())+len(next.AsList()))
		for _, v := range prev.AsList() {
			items = append(items, v.Clone())
		}
		for _, v := range next.AsList() {
			items = append(items, v.Clone())
		}
		return document.List(items...)
	default:
		// later page wins
		return next.Clone()
	}
}

// shapeRank orders shapes by specificity: mapping > list > scalar.
func shapeRank(v document.Value) int {
	switch v.Kind() {
	case document.KindMapping:
		return 3
	case document.KindList:
		return 2
	default:
		return 1
	}
}

func resolveConflict(prev, next document.Value) document.Value {
	switch {
	case prev.IsEmpty() && !next.IsEmpty():
		return next
	case next.IsEmpty() && !prev.IsEmpty():
		return prev
	case shapeRank(next) > shapeRank(prev):
		return next
	default:
		return prev
	}
}

func conflictMessage(prev, next, keep document.Value) string {
	if keep.Kind() == next.Kind() {
		return fmt.Sprintf("shape conflict: replaced earlier %s with %s", prev.Kind(), next.Kind())
	}
	return fmt.Sprintf("shape conflict: kept earlier %s, discarded %s", prev.Kind(), next.Kind())
}
