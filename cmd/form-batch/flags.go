package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/joseph-ayodele/form-extractor/internal/review"
)

// parsePages reads "1,3,5-7". An empty string selects every page.
func parsePages(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	var out []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		lo, hi, isRange := strings.Cut(part, "-")
		a, err := strconv.Atoi(strings.TrimSpace(lo))
		if err != nil {
			return nil, fmt.Errorf("--pages: %q is not a page number", part)
		}
		if !isRange {
			out = append(out, a)
			continue
		}
		b, err := strconv.Atoi(strings.TrimSpace(hi))
		if err != nil || b < a {
			return nil, fmt.Errorf("--pages: %q is not a page range", part)
		}
		for p := a; p <= b; p++ {
			out = append(out, p)
		}
	}
	return out, nil
}

// parseAssignments reads "3=page_1,4=default".
func parseAssignments(s string) (map[int]string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	out := map[int]string{}
	for _, part := range strings.Split(s, ",") {
		page, name, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			return nil, fmt.Errorf("--schema-assign: %q is not page=schema", part)
		}
		n, err := strconv.Atoi(strings.TrimSpace(page))
		if err != nil || n < 1 {
			return nil, fmt.Errorf("--schema-assign: %q is not a page number", page)
		}
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("--schema-assign: page %d has no schema name", n)
		}
		out[n] = name
	}
	return out, nil
}

// loadEdits reads a JSON or YAML object of dotted path -> value.
func loadEdits(path string) (review.Edits, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return review.Edits{}, fmt.Errorf("--edits: %w", err)
	}
	var m map[string]any
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return review.Edits{}, fmt.Errorf("--edits %s: %w", path, err)
	}
	return review.EditsFromMap(m)
}
