package common

import "fmt"

// Warning is a non-fatal signal raised while the pipeline keeps going:
// a page that failed extraction, a merge conflict, a schema mismatch.
type Warning struct {
	Code    string `json:"code"`
	Page    int    `json:"page,omitempty"`
	Path    string `json:"path,omitempty"`
	Message string `json:"message"`
}

func (w Warning) String() string {
	switch {
	case w.Page > 0 && w.Path != "":
		return fmt.Sprintf("%s: page %d: %s: %s", w.Code, w.Page, w.Path, w.Message)
	case w.Page > 0:
		return fmt.Sprintf("%s: page %d: %s", w.Code, w.Page, w.Message)
	case w.Path != "":
		return fmt.Sprintf("%s: %s: %s", w.Code, w.Path, w.Message)
	default:
		return fmt.Sprintf("%s: %s", w.Code, w.Message)
	}
}
