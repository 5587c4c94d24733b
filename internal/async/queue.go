package async

import (
	"context"
	"time"
)

// Job asks for the extraction stage of one stored session.
type Job struct {
	SessionID   string
	Force       bool // re-extract even when the session already has a current extraction
	SubmittedAt time.Time
	TraceID     string
}

type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Shutdown(ctx context.Context)
}
