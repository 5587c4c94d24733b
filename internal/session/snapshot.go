package session

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/joseph-ayodele/form-extractor/constants"
	"github.com/joseph-ayodele/form-extractor/internal/common"
	"github.com/joseph-ayodele/form-extractor/internal/document"
)

// Snapshot is the persisted form of a session, minus the source bytes which
// are stored alongside it.
type Snapshot struct {
	ID           string                 `json:"id"`
	State        constants.SessionState `json:"state"`
	SourceName   string                 `json:"source_name"`
	PageCount    int                    `json:"page_count"`
	Pages        []int                  `json:"pages,omitempty"`
	Assignments  map[int]string         `json:"assignments,omitempty"`
	Document     *document.Mapping      `json:"document,omitempty"`
	Edited       *document.Mapping      `json:"edited,omitempty"`
	Warnings     []common.Warning       `json:"warnings,omitempty"`
	ExtractKey   string                 `json:"extract_key,omitempty"`
	OfficialPath string                 `json:"official_path,omitempty"`
	ExtraPath    string                 `json:"extra_path,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
	UpdatedAt    time.Time              `json:"updated_at"`
}

// Snapshot captures the session for storage.
func (s *Session) Snapshot() Snapshot {
	return Snapshot{
		ID:           s.ID,
		State:        s.State,
		SourceName:   s.SourceName,
		PageCount:    s.PageCount,
		Pages:        s.Pages,
		Assignments:  s.Assignments,
		Document:     s.Document,
		Edited:       s.Edited,
		Warnings:     s.Warnings,
		ExtractKey:   s.extractKey,
		OfficialPath: s.OfficialPath,
		ExtraPath:    s.ExtraPath,
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
	}
}

// MarshalSnapshot encodes the session snapshot as JSON.
func (s *Session) MarshalSnapshot() ([]byte, error) {
	return json.Marshal(s.Snapshot())
}

// Restore rebuilds a session from its snapshot and source bytes.
func Restore(raw []byte, source []byte) (*Session, error) {
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("decode session snapshot: %w", err)
	}
	if !snap.State.Valid() {
		return nil, fmt.Errorf("decode session snapshot: unknown state %q", snap.State)
	}
	return &Session{
		ID:           snap.ID,
		State:        snap.State,
		SourceName:   snap.SourceName,
		Source:       source,
		PageCount:    snap.PageCount,
		Pages:        snap.Pages,
		Assignments:  snap.Assignments,
		Document:     snap.Document,
		Edited:       snap.Edited,
		Warnings:     snap.Warnings,
		OfficialPath: snap.OfficialPath,
		ExtraPath:    snap.ExtraPath,
		CreatedAt:    snap.CreatedAt,
		UpdatedAt:    snap.UpdatedAt,
		extractKey:   snap.ExtractKey,
	}, nil
}
