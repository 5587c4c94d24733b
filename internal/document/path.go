package document

import (
	"strconv"
	"strings"
)

// Separator joins path segments into the flat dotted key space used for export.
const Separator = "."

// Path addresses a node by its chain of mapping keys and list indexes.
type Path []string

// Child returns a new path; p is never modified.
func (p Path) Child(seg string) Path {
	out := make(Path, len(p), len(p)+1)
	copy(out, p)
	return append(out, seg)
}

func (p Path) Index(i int) Path { return p.Child(strconv.Itoa(i)) }

func (p Path) Dotted() string { return strings.Join(p, Separator) }

func (p Path) Last() string {
	if len(p) == 0 {
		return ""
	}
	return p[len(p)-1]
}
