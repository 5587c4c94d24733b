package llm

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/joseph-ayodele/form-extractor/internal/document"
)

// ErrEmptyAnswer is returned when the model produced no text at all.
var ErrEmptyAnswer = errors.New("empty model answer")

// ParsePage decodes a model answer into a page result. A strict parse is tried
// first; on failure the answer is repaired (code fences stripped, outermost
// {...} taken, trailing commas and Python literals fixed) and parsed again.
// repaired reports whether the second pass was needed.
func ParsePage(raw []byte) (m *document.Mapping, repaired bool, err error) {
	text := bytes.TrimSpace(raw)
	if len(text) == 0 {
		return nil, false, ErrEmptyAnswer
	}
	m, strictErr := document.ParseMapping(text)
	if strictErr == nil {
		return m, false, nil
	}

	candidate, ok := Repair(text)
	if !ok {
		return nil, false, fmt.Errorf("decode model answer: %w", strictErr)
	}
	m, err = document.ParseMapping(candidate)
	if err != nil {
		return nil, true, fmt.Errorf("decode repaired model answer: %w", err)
	}
	return m, true, nil
}

// Repair extracts the outermost JSON object from a model answer and fixes the
// common ways models break JSON. ok is false when no object is present.
func Repair(raw []byte) ([]byte, bool) {
	s := stripFences(string(raw))
	start, end := strings.IndexByte(s, '{'), strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return nil, false
	}
	return []byte(fixTokens(s[start : end+1])), true
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:] // language tag
	}
	return strings.TrimSuffix(strings.TrimSpace(s), "```")
}

// fixTokens walks the text outside string literals, dropping trailing commas
// and rewriting None/True/False.
func fixTokens(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			b.WriteByte(c)
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
			b.WriteByte(c)
		case ',':
			j := i + 1
			for j < len(s) && isSpace(s[j]) {
				j++
			}
			if j < len(s) && (s[j] == '}' || s[j] == ']') {
				continue
			}
			b.WriteByte(c)
		default:
			if lit, repl, ok := pythonLiteral(s, i); ok {
				b.WriteString(repl)
				i += len(lit) - 1
				continue
			}
			b.WriteByte(c)
		}
	}
	return b.String()
}

var pythonLiterals = [][2]string{{"None", "null"}, {"True", "true"}, {"False", "false"}}

func pythonLiteral(s string, i int) (string, string, bool) {
	if i > 0 && isIdent(s[i-1]) {
		return "", "", false
	}
	for _, p := range pythonLiterals {
		lit := p[0]
		if strings.HasPrefix(s[i:], lit) {
			if end := i + len(lit); end < len(s) && isIdent(s[end]) {
				continue
			}
			return lit, p[1], true
		}
	}
	return "", "", false
}

func isSpace(c byte) bool { return c == ' ' || c == '\n' || c == '\r' || c == '\t' }

func isIdent(c byte) bool {
	return c == '_' || (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
