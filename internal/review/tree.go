// Package review walks a document of unknown shape, presents every leaf to an
// Editor and reassembles the corrected document with the same keys and nesting.
package review

import (
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/joseph-ayodele/form-extractor/internal/document"
)

// FieldKind says how a leaf is presented.
type FieldKind int

const (
	FieldText     FieldKind = iota // string or null
	FieldNumber                    // number shown as text, parsed back to its kind
	FieldToggle                    // bool
	FieldTextList                  // list of scalars, one item per line
)

func (k FieldKind) String() string {
	switch k {
	case FieldNumber:
		return "number"
	case FieldToggle:
		return "toggle"
	case FieldTextList:
		return "text_list"
	default:
		return "text"
	}
}

// ListSeparator joins list-of-scalar items into one editable blob.
const ListSeparator = "\n"

// Field is one editable leaf.
type Field struct {
	Path  document.Path
	Label string
	Trail []string // display label of every path segment, Label last
	Kind  FieldKind
	Text  string // current value as text; "" for null
	Bool  bool   // current value of a toggle
}

// Editor collects the corrected value of each leaf.
type Editor interface {
	EditBool(f Field) (bool, error)
	EditText(f Field) (string, error)
}

// RenderDocument applies Render to every top-level section, in order.
func RenderDocument(doc *document.Mapping, editor Editor) (*document.Mapping, error) {
	out := document.NewMapping()
	for _, key := range doc.Keys() {
		v, _ := doc.Get(key)
		edited, err := render(document.Path{key}, []string{Label(document.Path{key})}, v, editor)
		if err != nil {
			return nil, err
		}
		out.Set(key, edited)
	}
	return out, nil
}

// Render presents value (found at path) to editor and returns the edited
// value. Keys and nesting are preserved; only leaf values change, and
// list-of-scalar items come back as trimmed non-empty strings.
func Render(path document.Path, value document.Value, editor Editor) (document.Value, error) {
	trail := make([]string, len(path))
	for i := range path {
		trail[i] = Label(path[:i+1])
	}
	return render(path, trail, value, editor)
}

// extend returns trail plus label without sharing trail's backing array.
func extend(trail []string, label string) []string {
	out := make([]string, len(trail)+1)
	copy(out, trail)
	out[len(trail)] = label
	return out
}

func field(path document.Path, trail []string, kind FieldKind, text string) Field {
	label := ""
	if len(trail) > 0 {
		label = trail[len(trail)-1]
	}
	return Field{Path: path, Label: label, Trail: trail, Kind: kind, Text: text}
}

func render(path document.Path, trail []string, value document.Value, editor Editor) (document.Value, error) {
	switch value.Kind() {
	case document.KindBool:
		f := field(path, trail, FieldToggle, value.Text(""))
		f.Bool = value.AsBool()
		b, err := editor.EditBool(f)
		if err != nil {
			return document.Value{}, err
		}
		return document.Bool(b), nil

	case document.KindMapping:
		src := value.AsMapping()
		out := document.NewMapping()
		for _, key := range src.Keys() {
			v, _ := src.Get(key)
			child := path.Child(key)
			edited, err := render(child, extend(trail, Label(child)), v, editor)
			if err != nil {
				return document.Value{}, err
			}
			out.Set(key, edited)
		}
		return document.MappingValue(out), nil

	case document.KindList:
		if value.IsListOfScalars() {
			text, err := editor.EditText(field(path, trail, FieldTextList, value.Text(ListSeparator)))
			if err != nil {
				return document.Value{}, err
			}
			return document.List(ParseList(text)...), nil
		}
		items := value.AsList()
		out := make([]document.Value, len(items))
		for i, item := range items {
			edited, err := render(path.Index(i), extend(trail, EntryLabel(i)), item, editor)
			if err != nil {
				return document.Value{}, err
			}
			out[i] = edited
		}
		return document.List(out...), nil

	case document.KindNumber:
		text, err := editor.EditText(field(path, trail, FieldNumber, value.Text("")))
		if err != nil {
			return document.Value{}, err
		}
		return ParseNumberLike(value.AsNumber(), text), nil

	default:
		text, err := editor.EditText(field(path, trail, FieldText, value.Text("")))
		if err != nil {
			return document.Value{}, err
		}
		return document.String(strings.TrimSpace(text)), nil
	}
}

// ParseList splits an edited blob into trimmed, non-empty strings.
func ParseList(text string) []document.Value {
	var items []document.Value
	for _, line := range strings.Split(text, ListSeparator) {
		if s := strings.TrimSpace(line); s != "" {
			items = append(items, document.String(s))
		}
	}
	return items
}

// ParseNumberLike parses text back into the numeric kind of orig. Text that
// does not parse is kept as a string.
func ParseNumberLike(orig document.Number, text string) document.Value {
	s := strings.TrimSpace(text)
	if orig.IsInt() {
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return document.IntValue(i)
		}
		return document.String(s)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return document.FloatValue(f)
	}
	return document.String(s)
}

// Label turns the last path segment, a mapping key, into display text.
// Labels are for display only.
func Label(path document.Path) string {
	return cases.Title(language.Und).String(strings.ReplaceAll(path.Last(), "_", " "))
}

// EntryLabel names the i-th (0-based) item of a list.
func EntryLabel(i int) string {
	return "Entry " + strconv.Itoa(i+1)
}

// Fields lists every editable leaf of doc in render order.
func Fields(doc *document.Mapping) []Field {
	rec := &recorder{}
	_, _ = RenderDocument(doc, rec)
	return rec.fields
}

type recorder struct {
	fields []Field
}

func (r *recorder) EditBool(f Field) (bool, error) {
	r.fields = append(r.fields, f)
	return f.Bool, nil
}

func (r *recorder) EditText(f Field) (string, error) {
	r.fields = append(r.fields, f)
	return f.Text, nil
}
