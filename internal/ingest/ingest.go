// Package ingest discovers scanned forms on disk and starts sessions for them.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/form-extractor/constants"
	"github.com/joseph-ayodele/form-extractor/internal/async"
	"github.com/joseph-ayodele/form-extractor/internal/session"
)

// Starter opens a session for a document with every page and the default
// schema binding confirmed.
type Starter interface {
	Start(ctx context.Context, name string, data []byte) (*session.Session, error)
}

// FileResult is the per-file ingest outcome.
type FileResult struct {
	Path         string
	SessionID    string
	Deduplicated bool
	HashHex      string
	Queued       bool
	Err          string
}

// Ingestor starts sessions for files and, when a queue is set, submits their
// extraction. Identical content seen before maps onto the earlier session.
type Ingestor struct {
	starter Starter
	queue   async.Queue
	logger  *slog.Logger

	mu   sync.Mutex
	seen map[string]string // content sha256 -> session id
}

// NewIngestor builds an Ingestor. queue may be nil, in which case sessions
// stop at SchemasConfirmed.
func NewIngestor(starter Starter, queue async.Queue, logger *slog.Logger) *Ingestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingestor{starter: starter, queue: queue, logger: logger, seen: map[string]string{}}
}

// IngestPath starts a session for one file.
func (i *Ingestor) IngestPath(ctx context.Context, path string) (FileResult, error) {
	out := FileResult{Path: path}

	if !constants.AllowedSourceExt(filepath.Ext(path)) {
		return out, fmt.Errorf("unsupported extension %q", filepath.Ext(path))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return out, err
	}
	sum := sha256.Sum256(data)
	out.HashHex = hex.EncodeToString(sum[:])

	i.mu.Lock()
	if id, ok := i.seen[out.HashHex]; ok {
		i.mu.Unlock()
		out.SessionID = id
		out.Deduplicated = true
		i.logger.Info("ingest.file.deduplicated", "path", path, "session_id", id)
		return out, nil
	}
	i.mu.Unlock()

	s, err := i.starter.Start(ctx, filepath.Base(path), data)
	if err != nil {
		i.logger.Warn("ingest.file.failed", "path", path, "error", err)
		return out, err
	}
	out.SessionID = s.ID

	i.mu.Lock()
	i.seen[out.HashHex] = s.ID
	i.mu.Unlock()

	if i.queue != nil {
		job := async.Job{SessionID: s.ID, SubmittedAt: time.Now().UTC(), TraceID: uuid.NewString()}
		if err := i.queue.Enqueue(ctx, job); err != nil {
			i.logger.Warn("ingest.enqueue.failed", "path", path, "session_id", s.ID, "error", err)
			return out, err
		}
		out.Queued = true
	}

	i.logger.Info("ingest.file.ok", "path", path, "session_id", s.ID, "pages", len(s.Pages), "queued", out.Queued)
	return out, nil
}
