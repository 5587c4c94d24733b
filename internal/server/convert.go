package server

import (
	"encoding/base64"
	"fmt"
	"math"
	"strconv"
	"strings"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joseph-ayodele/form-extractor/internal/common"
	"github.com/joseph-ayodele/form-extractor/internal/document"
	"github.com/joseph-ayodele/form-extractor/internal/mapping"
	"github.com/joseph-ayodele/form-extractor/internal/review"
	"github.com/joseph-ayodele/form-extractor/internal/session"
)

func invalid(format string, args ...any) error {
	return common.WrapError(common.ErrInvalidInput, fmt.Sprintf(format, args...))
}

func stringField(in *structpb.Struct, key string) string {
	return strings.TrimSpace(in.GetFields()[key].GetStringValue())
}

func requireString(in *structpb.Struct, key string) (string, error) {
	s := stringField(in, key)
	if s == "" {
		return "", invalid("%s is required", key)
	}
	return s, nil
}

func pageNumber(v float64) (int, error) {
	if v != math.Trunc(v) || v < 1 || v > math.MaxInt32 {
		return 0, invalid("page %v is not a positive whole number", v)
	}
	return int(v), nil
}

// pagesField reads a list of page numbers; absent means every page.
func pagesField(in *structpb.Struct) ([]int, error) {
	v, ok := in.GetFields()["pages"]
	if !ok {
		return nil, nil
	}
	list := v.GetListValue()
	if list == nil {
		return nil, invalid("pages must be a list of numbers")
	}
	out := make([]int, 0, len(list.GetValues()))
	for _, item := range list.GetValues() {
		n, ok := item.GetKind().(*structpb.Value_NumberValue)
		if !ok {
			return nil, invalid("pages must be a list of numbers")
		}
		p, err := pageNumber(n.NumberValue)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// assignmentsField reads {"<page>": "<schema>"}.
func assignmentsField(in *structpb.Struct) (map[int]string, error) {
	st := in.GetFields()["assignments"].GetStructValue()
	if st == nil {
		return nil, nil
	}
	out := make(map[int]string, len(st.GetFields()))
	for k, v := range st.GetFields() {
		n, err := strconv.Atoi(strings.TrimSpace(k))
		if err != nil || n < 1 {
			return nil, invalid("assignment key %q is not a page number", k)
		}
		name := strings.TrimSpace(v.GetStringValue())
		if name == "" {
			return nil, invalid("page %d: schema name must be a non-empty string", n)
		}
		out[n] = name
	}
	return out, nil
}

// editsField reads {"<dotted path>": value}.
func editsField(in *structpb.Struct) (review.Edits, error) {
	return review.EditsFromMap(in.GetFields()["edits"].GetStructValue().AsMap())
}

func uploadContent(in *structpb.Struct) ([]byte, error) {
	raw := stringField(in, "content_base64")
	if raw == "" {
		return nil, invalid("content_base64 is required")
	}
	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, invalid("content_base64: %v", err)
	}
	return data, nil
}

func intList(xs []int) []any {
	out := make([]any, len(xs))
	for i, x := range xs {
		out[i] = x
	}
	return out
}

func sessionView(s *session.Session) map[string]any {
	view := map[string]any{
		"session_id":  s.ID,
		"state":       string(s.State),
		"source_name": s.SourceName,
		"page_count":  s.PageCount,
		"pages":       intList(s.Pages),
		"updated_at":  s.UpdatedAt.Format("2006-01-02T15:04:05.000Z07:00"),
	}
	if len(s.Assignments) > 0 {
		a := make(map[string]any, len(s.Assignments))
		for p, name := range s.Assignments {
			a[strconv.Itoa(p)] = name
		}
		view["assignments"] = a
	}
	if len(s.Warnings) > 0 {
		ws := make([]any, 0, len(s.Warnings))
		for _, w := range s.Warnings {
			ws = append(ws, map[string]any{"code": w.Code, "page": w.Page, "path": w.Path, "message": w.Message})
		}
		view["warnings"] = ws
	}
	if s.OfficialPath != "" {
		view["official_path"] = s.OfficialPath
	}
	if s.ExtraPath != "" {
		view["extra_path"] = s.ExtraPath
	}
	return view
}

func toStruct(m map[string]any) (*structpb.Struct, error) {
	st, err := structpb.NewStruct(m)
	if err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	return st, nil
}

func docJSON(m *document.Mapping) (string, error) {
	if m == nil {
		return "", nil
	}
	raw, err := m.Indent()
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func fieldsView(doc *document.Mapping) []any {
	fields := review.Fields(doc)
	out := make([]any, 0, len(fields))
	for _, f := range fields {
		out = append(out, map[string]any{
			"path":  f.Path.Dotted(),
			"label": f.Label,
			"kind":  f.Kind.String(),
			"text":  f.Text,
		})
	}
	return out
}

func tableView(t *mapping.Table) map[string]any {
	if t == nil {
		return nil
	}
	cols := make([]any, len(t.Columns))
	row := make([]any, len(t.Row))
	for i, c := range t.Columns {
		cols[i] = c
		row[i] = t.Row[i].ToAny()
	}
	return map[string]any{"columns": cols, "row": row}
}
