package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/form-extractor/constants"
	"github.com/joseph-ayodele/form-extractor/internal/common"
	"github.com/joseph-ayodele/form-extractor/internal/session"
)

// SessionSummary is a listing row.
type SessionSummary struct {
	ID         string
	State      constants.SessionState
	SourceName string
	UpdatedAt  time.Time
}

type SessionRepository interface {
	Save(ctx context.Context, s *session.Session) error
	Get(ctx context.Context, id string) (*session.Session, error)
	List(ctx context.Context, limit int) ([]SessionSummary, error)
	Delete(ctx context.Context, id string) error
}

type sessionRepository struct {
	db     *DB
	logger *slog.Logger
}

func NewSessionRepository(db *DB, logger *slog.Logger) SessionRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &sessionRepository{db: db, logger: logger}
}

// Save upserts the session snapshot and source.
func (r *sessionRepository) Save(ctx context.Context, s *session.Session) error {
	snap, err := s.MarshalSnapshot()
	if err != nil {
		return err
	}
	q := r.db.Rebind(`INSERT INTO sessions (id, state, source_name, source, snapshot, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			state = excluded.state,
			source_name = excluded.source_name,
			source = excluded.source,
			snapshot = excluded.snapshot,
			updated_at = excluded.updated_at`)
	if _, err := r.db.SQL.ExecContext(ctx, q,
		s.ID, string(s.State), s.SourceName, s.Source, string(snap), s.CreatedAt, s.UpdatedAt,
	); err != nil {
		r.logger.Error("repo.session.save.failed", "session_id", s.ID, "error", err)
		return fmt.Errorf("save session %s: %w", s.ID, err)
	}
	r.logger.Debug("repo.session.saved", "session_id", s.ID, "state", s.State)
	return nil
}

// Get loads a session by id; a missing id is ErrNotFound.
func (r *sessionRepository) Get(ctx context.Context, id string) (*session.Session, error) {
	var (
		source []byte
		snap   string
	)
	err := r.db.SQL.QueryRowContext(ctx, r.db.Rebind(`SELECT source, snapshot FROM sessions WHERE id = ?`), id).
		Scan(&source, &snap)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.WrapError(common.ErrNotFound, "session "+id)
	}
	if err != nil {
		r.logger.Error("repo.session.get.failed", "session_id", id, "error", err)
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}
	return session.Restore([]byte(snap), source)
}

// List returns the most recently updated sessions first.
func (r *sessionRepository) List(ctx context.Context, limit int) ([]SessionSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.SQL.QueryContext(ctx,
		r.db.Rebind(`SELECT id, state, source_name, updated_at FROM sessions ORDER BY updated_at DESC, id LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []SessionSummary
	for rows.Next() {
		var (
			s     SessionSummary
			state string
		)
		if err := rows.Scan(&s.ID, &state, &s.SourceName, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("list sessions: %w", err)
		}
		s.State = constants.SessionState(state)
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *sessionRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.SQL.ExecContext(ctx, r.db.Rebind(`DELETE FROM sessions WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return common.WrapError(common.ErrNotFound, "session "+id)
	}
	return nil
}
