package repository

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/form-extractor/constants"
	"github.com/joseph-ayodele/form-extractor/internal/common"
	"github.com/joseph-ayodele/form-extractor/internal/document"
	"github.com/joseph-ayodele/form-extractor/internal/session"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	db, err := Open(context.Background(), Config{DSN: "file:" + filepath.Join(t.TempDir(), "sessions.db")}, logger)
	require.NoError(t, err)
	t.Cleanup(db.Close)
	return db
}

func TestRebind(t *testing.T) {
	pg := &DB{Dialect: DialectPostgres}
	lite := &DB{Dialect: DialectSQLite}
	q := `SELECT * FROM sessions WHERE id = ? AND state = ?`
	assert.Equal(t, `SELECT * FROM sessions WHERE id = $1 AND state = $2`, pg.Rebind(q))
	assert.Equal(t, q, lite.Rebind(q))
}

func TestIsPostgresDSN(t *testing.T) {
	assert.True(t, IsPostgresDSN("postgres://u:p@localhost:5432/forms"))
	assert.True(t, IsPostgresDSN(" PostgreSQL://localhost/forms"))
	assert.False(t, IsPostgresDSN("file::memory:?cache=shared"))
}

func TestSessionSaveGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	require.NoError(t, db.HealthCheck(ctx, time.Second))
	repo := NewSessionRepository(db, nil)

	s, err := session.New("intake.pdf", []byte("%PDF-1.4 bytes"), 2)
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, s))

	require.NoError(t, s.ConfirmPages(nil))
	require.NoError(t, s.ConfirmSchemas(map[int]string{1: "page_1", 2: "default"}))
	doc, err := document.ParseMapping([]byte(`{"Name": "Ada", "Age": 36}`))
	require.NoError(t, err)
	require.NoError(t, s.SetExtracted(doc, []common.Warning{{Code: common.CodeExtraction, Page: 2, Message: "timeout"}}))
	require.NoError(t, repo.Save(ctx, s))

	got, err := repo.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.StateExtracted, got.State)
	assert.Equal(t, s.Source, got.Source)
	assert.Equal(t, []string{"Name", "Age"}, got.Document.Keys())
	assert.Len(t, got.Warnings, 1)
	assert.True(t, got.HasExtraction())
}

func TestSessionGetMissing(t *testing.T) {
	repo := NewSessionRepository(openTestDB(t), nil)
	_, err := repo.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, common.ErrNotFound)
	assert.ErrorIs(t, repo.Delete(context.Background(), "nope"), common.ErrNotFound)
}

func TestSessionListAndDelete(t *testing.T) {
	ctx := context.Background()
	repo := NewSessionRepository(openTestDB(t), nil)

	older, err := session.New("a.pdf", []byte("a"), 1)
	require.NoError(t, err)
	older.UpdatedAt = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	newer, err := session.New("b.pdf", []byte("b"), 1)
	require.NoError(t, err)
	newer.UpdatedAt = time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Save(ctx, older))
	require.NoError(t, repo.Save(ctx, newer))

	list, err := repo.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, newer.ID, list[0].ID)
	assert.Equal(t, "a.pdf", list[1].SourceName)
	assert.Equal(t, constants.StateUploaded, list[1].State)

	require.NoError(t, repo.Delete(ctx, older.ID))
	list, err = repo.List(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
