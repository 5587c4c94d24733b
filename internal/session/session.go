// Package session holds the one live document of a review session and the
// state machine that gates every stage.
package session

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/form-extractor/constants"
	"github.com/joseph-ayodele/form-extractor/internal/common"
	"github.com/joseph-ayodele/form-extractor/internal/document"
)

// Session is owned by exactly one caller at a time; it is not safe for
// concurrent use.
type Session struct {
	ID         string
	State      constants.SessionState
	SourceName string
	Source     []byte
	PageCount  int

	Pages       []int          // selected pages, ascending
	Assignments map[int]string // page -> schema name

	Document *document.Mapping // merged extraction result
	Edited   *document.Mapping // corrected document
	Warnings []common.Warning

	OfficialPath string
	ExtraPath    string

	CreatedAt time.Time
	UpdatedAt time.Time

	extractKey string
}

// New starts a session for an uploaded document.
func New(sourceName string, source []byte, pageCount int) (*Session, error) {
	if len(source) == 0 {
		return nil, common.WrapError(common.ErrInvalidInput, "empty upload")
	}
	if pageCount < 1 {
		return nil, common.WrapError(common.ErrInvalidInput, "document has no pages")
	}
	now := time.Now().UTC()
	return &Session{
		ID:         uuid.New().String(),
		State:      constants.StateUploaded,
		SourceName: sourceName,
		Source:     source,
		PageCount:  pageCount,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// Stem is the output file stem derived from the upload name.
func (s *Session) Stem() string {
	name := s.SourceName
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	if i := strings.LastIndexByte(name, '.'); i > 0 {
		name = name[:i]
	}
	if name == "" {
		return "form_" + s.ID[:8]
	}
	return name
}

func (s *Session) require(to constants.SessionState, allowed ...constants.SessionState) error {
	for _, a := range allowed {
		if s.State == a {
			return nil
		}
	}
	return common.TransitionError(string(s.State), string(to))
}

func (s *Session) moveTo(state constants.SessionState) {
	s.State = state
	s.UpdatedAt = time.Now().UTC()
}

// ConfirmPages selects the pages to extract. An empty selection means every
// page. Pages must lie in 1..PageCount; duplicates collapse and the result is
// ascending. Confirming again discards the schema assignment.
func (s *Session) ConfirmPages(pages []int) error {
	if err := s.require(constants.StatePagesConfirmed,
		constants.StateUploaded, constants.StatePagesConfirmed, constants.StateSchemasConfirmed); err != nil {
		return err
	}
	selected, err := NormalizePages(pages, s.PageCount)
	if err != nil {
		return err
	}
	s.Pages = selected
	s.Assignments = nil
	s.moveTo(constants.StatePagesConfirmed)
	return nil
}

// NormalizePages validates a page selection against a page count.
func NormalizePages(pages []int, count int) ([]int, error) {
	if len(pages) == 0 {
		all := make([]int, count)
		for i := range all {
			all[i] = i + 1
		}
		return all, nil
	}
	seen := make(map[int]bool, len(pages))
	out := make([]int, 0, len(pages))
	for _, p := range pages {
		if p < 1 || p > count {
			return nil, common.WrapError(common.ErrInvalidInput, fmt.Sprintf("page %d is outside 1..%d", p, count))
		}
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	sort.Ints(out)
	return out, nil
}

// ConfirmSchemas records which schema each selected page is extracted with.
func (s *Session) ConfirmSchemas(assignments map[int]string) error {
	if err := s.require(constants.StateSchemasConfirmed,
		constants.StatePagesConfirmed, constants.StateSchemasConfirmed); err != nil {
		return err
	}
	bound := make(map[int]string, len(s.Pages))
	for _, p := range s.Pages {
		name := strings.TrimSpace(assignments[p])
		if name == "" {
			return common.ConfigErrorf("page %d has no schema assigned", p)
		}
		bound[p] = name
	}
	for p := range assignments {
		if _, ok := bound[p]; !ok {
			return common.WrapError(common.ErrInvalidInput, fmt.Sprintf("page %d is not selected", p))
		}
	}
	s.Assignments = bound
	s.moveTo(constants.StateSchemasConfirmed)
	return nil
}

// ExtractionKey fingerprints what an extraction depends on: the source bytes,
// the page selection and the schema assignment.
func (s *Session) ExtractionKey() string {
	h := sha256.New()
	h.Write(s.Source)
	for _, p := range s.Pages {
		h.Write([]byte("|" + strconv.Itoa(p) + "=" + s.Assignments[p]))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// HasExtraction reports whether the current document was extracted from the
// current source, selection and assignment.
func (s *Session) HasExtraction() bool {
	return s.Document != nil && s.State.AtLeast(constants.StateExtracted) && s.extractKey == s.ExtractionKey()
}

// SetExtracted stores the merged document. Any earlier correction or export
// is discarded.
func (s *Session) SetExtracted(doc *document.Mapping, warnings []common.Warning) error {
	if err := s.require(constants.StateExtracted,
		constants.StateSchemasConfirmed, constants.StateExtracted, constants.StateReviewed, constants.StateExported); err != nil {
		return err
	}
	if doc == nil {
		doc = document.NewMapping()
	}
	s.Document = doc
	s.Warnings = warnings
	s.Edited = nil
	s.OfficialPath, s.ExtraPath = "", ""
	s.extractKey = s.ExtractionKey()
	s.moveTo(constants.StateExtracted)
	return nil
}

// SetReviewed stores the corrected document, which must keep the keys and
// nesting of the extracted one.
func (s *Session) SetReviewed(edited *document.Mapping) error {
	if err := s.require(constants.StateReviewed,
		constants.StateExtracted, constants.StateReviewed, constants.StateExported); err != nil {
		return err
	}
	if edited == nil {
		return common.WrapError(common.ErrInvalidInput, "no corrected document")
	}
	if !document.SameShape(document.MappingValue(s.Document), document.MappingValue(edited)) {
		return common.WrapError(common.ErrInvalidInput, "corrected document changes the structure of the extracted one")
	}
	s.Edited = edited
	s.OfficialPath, s.ExtraPath = "", ""
	s.moveTo(constants.StateReviewed)
	return nil
}

// ExportReady fails with EXPORT_PRECONDITION until a corrected document exists.
func (s *Session) ExportReady() error {
	if s.Edited == nil || !s.State.AtLeast(constants.StateReviewed) {
		return common.PreconditionError(fmt.Sprintf("session %s has no corrected document (state %s)", s.ID, s.State))
	}
	return nil
}

// MarkExported records the written files.
func (s *Session) MarkExported(officialPath, extraPath string) error {
	if err := s.ExportReady(); err != nil {
		return err
	}
	s.OfficialPath, s.ExtraPath = officialPath, extraPath
	s.moveTo(constants.StateExported)
	return nil
}
