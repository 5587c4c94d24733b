package review

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/joseph-ayodele/form-extractor/internal/common"
	"github.com/joseph-ayodele/form-extractor/internal/document"
)

// Unchanged returns every leaf as presented.
type Unchanged struct{}

func (Unchanged) EditBool(f Field) (bool, error)   { return f.Bool, nil }
func (Unchanged) EditText(f Field) (string, error) { return f.Text, nil }

// Edits overrides leaves by dotted path. Leaves without an entry keep their
// presented value. A toggle may be set through Bools or through Text with any
// strconv.ParseBool spelling.
type Edits struct {
	Text  map[string]string
	Bools map[string]bool
}

func (e Edits) EditBool(f Field) (bool, error) {
	key := f.Path.Dotted()
	if b, ok := e.Bools[key]; ok {
		return b, nil
	}
	if s, ok := e.Text[key]; ok {
		b, err := strconv.ParseBool(strings.TrimSpace(s))
		if err != nil {
			return false, common.WrapError(common.ErrInvalidInput, fmt.Sprintf("field %s expects true or false, got %q", key, s))
		}
		return b, nil
	}
	return f.Bool, nil
}

func (e Edits) EditText(f Field) (string, error) {
	if s, ok := e.Text[f.Path.Dotted()]; ok {
		return s, nil
	}
	return f.Text, nil
}

// Unknown returns the edit paths that name no leaf of doc, sorted.
func (e Edits) Unknown(doc *document.Mapping) []string {
	known := map[string]bool{}
	for _, f := range Fields(doc) {
		known[f.Path.Dotted()] = true
	}
	var out []string
	for k := range e.Text {
		if !known[k] {
			out = append(out, k)
		}
	}
	for k := range e.Bools {
		if !known[k] {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// Prompt is a line-oriented terminal editor. An empty answer keeps the
// current value and "-" clears a text field. List fields take one item per
// line, ended by a line holding a single ".".
type Prompt struct {
	in      *bufio.Scanner
	out     io.Writer
	section string
}

func NewPrompt(in io.Reader, out io.Writer) *Prompt {
	return &Prompt{in: bufio.NewScanner(in), out: out}
}

func (p *Prompt) header(f Field) {
	if len(f.Path) == 0 || f.Path[0] == p.section {
		return
	}
	p.section = f.Path[0]
	title := Label(f.Path[:1])
	if len(f.Trail) > 0 {
		title = f.Trail[0]
	}
	_, _ = fmt.Fprintf(p.out, "\n== %s ==\n", title)
}

func (p *Prompt) label(f Field) string {
	parts := f.Trail
	if len(parts) == 0 {
		parts = []string{f.Label}
	}
	if len(parts) > 1 {
		parts = parts[1:]
	}
	return strings.Join(parts, " / ")
}

func (p *Prompt) readLine() (string, bool, error) {
	if !p.in.Scan() {
		if err := p.in.Err(); err != nil {
			return "", false, err
		}
		return "", false, nil
	}
	return p.in.Text(), true, nil
}

func (p *Prompt) EditBool(f Field) (bool, error) {
	p.header(f)
	cur := "n"
	if f.Bool {
		cur = "y"
	}
	for {
		_, _ = fmt.Fprintf(p.out, "%s [y/n, %s]: ", p.label(f), cur)
		line, ok, err := p.readLine()
		if err != nil || !ok {
			return f.Bool, err
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "":
			return f.Bool, nil
		case "y", "yes", "true", "1":
			return true, nil
		case "n", "no", "false", "0":
			return false, nil
		}
		_, _ = fmt.Fprintln(p.out, "  please answer y or n")
	}
}

func (p *Prompt) EditText(f Field) (string, error) {
	p.header(f)
	if f.Kind == FieldTextList {
		return p.editList(f)
	}
	_, _ = fmt.Fprintf(p.out, "%s [%s]: ", p.label(f), f.Text)
	line, ok, err := p.readLine()
	if err != nil || !ok {
		return f.Text, err
	}
	switch strings.TrimSpace(line) {
	case "":
		return f.Text, nil
	case "-":
		return "", nil
	}
	return line, nil
}

func (p *Prompt) editList(f Field) (string, error) {
	_, _ = fmt.Fprintf(p.out, "%s (one per line, \".\" to finish, empty to keep):\n", p.label(f))
	for _, item := range strings.Split(f.Text, ListSeparator) {
		if item != "" {
			_, _ = fmt.Fprintf(p.out, "  | %s\n", item)
		}
	}
	var lines []string
	for {
		line, ok, err := p.readLine()
		if err != nil {
			return f.Text, err
		}
		if !ok {
			if len(lines) == 0 {
				return f.Text, nil
			}
			break
		}
		t := strings.TrimSpace(line)
		if len(lines) == 0 && t == "" {
			return f.Text, nil
		}
		if t == "." {
			break
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, ListSeparator), nil
}

// EditsFromMap builds Edits from decoded JSON or YAML keyed by dotted path.
// Booleans set toggles, numbers are formatted as text, null clears a leaf and
// a list of scalars becomes one item per line.
func EditsFromMap(m map[string]any) (Edits, error) {
	e := Edits{Text: map[string]string{}, Bools: map[string]bool{}}
	for path, v := range m {
		switch t := v.(type) {
		case nil:
			e.Text[path] = ""
		case bool:
			e.Bools[path] = t
		case []any:
			items := make([]string, 0, len(t))
			for _, item := range t {
				s, ok := scalarText(item)
				if !ok {
					return Edits{}, common.WrapError(common.ErrInvalidInput, fmt.Sprintf("edit for %s: list items must be scalars", path))
				}
				items = append(items, s)
			}
			e.Text[path] = strings.Join(items, ListSeparator)
		default:
			s, ok := scalarText(t)
			if !ok {
				return Edits{}, common.WrapError(common.ErrInvalidInput, fmt.Sprintf("edit for %s must be a scalar or a list", path))
			}
			e.Text[path] = s
		}
	}
	return e, nil
}

func scalarText(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", true
	case string:
		return t, true
	case bool:
		return strconv.FormatBool(t), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	default:
		return "", false
	}
}
