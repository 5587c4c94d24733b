package extract

import (
	"github.com/joseph-ayodele/form-extractor/internal/common"
	"github.com/joseph-ayodele/form-extractor/internal/merge"
	"github.com/joseph-ayodele/form-extractor/internal/schema"
)

// PageInput is one selected page ready for extraction.
type PageInput struct {
	Number   int // 1-based page of the source document
	Image    []byte
	MIMEType string
	Schema   schema.Schema
}

// Progress is called once per completed page, in ascending page order.
// err is the page's extraction error, nil on success.
type Progress func(done, total, page int, err error)

// RunResult holds one result per page, in ascending page order, plus the
// non-fatal warnings raised along the way.
type RunResult struct {
	Results  []merge.PageResult
	Warnings []common.Warning
}

// Failed lists the pages whose extraction failed.
func (r RunResult) Failed() []int {
	var pages []int
	for _, w := range r.Warnings {
		if w.Code == common.CodeExtraction {
			pages = append(pages, w.Page)
		}
	}
	return pages
}
