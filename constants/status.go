package constants

// SessionState is the canonical stage of a review session.
type SessionState string

// Stable values (store these exact strings in the session store).
const (
	StateUploaded         SessionState = "UPLOADED"          // source PDF received, page count known
	StatePagesConfirmed   SessionState = "PAGES_CONFIRMED"   // page subset selected
	StateSchemasConfirmed SessionState = "SCHEMAS_CONFIRMED" // every selected page bound to a schema
	StateExtracted        SessionState = "EXTRACTED"         // merged document available
	StateReviewed         SessionState = "REVIEWED"          // corrected document available
	StateExported         SessionState = "EXPORTED"          // spreadsheets written
)

var stateOrder = map[SessionState]int{
	StateUploaded:         1,
	StatePagesConfirmed:   2,
	StateSchemasConfirmed: 3,
	StateExtracted:        4,
	StateReviewed:         5,
	StateExported:         6,
}

// AtLeast reports whether s is the same stage as other or a later one.
func (s SessionState) AtLeast(other SessionState) bool {
	return stateOrder[s] >= stateOrder[other] && stateOrder[s] > 0
}

func (s SessionState) Valid() bool {
	_, ok := stateOrder[s]
	return ok
}
