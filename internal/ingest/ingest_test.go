package ingest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/form-extractor/internal/async"
	"github.com/joseph-ayodele/form-extractor/internal/session"
)

type fakeStarter struct {
	mu    sync.Mutex
	names []string
}

func (f *fakeStarter) Start(_ context.Context, name string, data []byte) (*session.Session, error) {
	if len(data) == 0 || string(data) == "broken" {
		return nil, errors.New("unsupported document type")
	}
	f.mu.Lock()
	f.names = append(f.names, name)
	f.mu.Unlock()
	s, err := session.New(name, data, 1)
	if err != nil {
		return nil, err
	}
	return s, s.ConfirmPages(nil)
}

func (f *fakeStarter) started() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.names...)
}

type fakeQueue struct {
	mu   sync.Mutex
	jobs []async.Job
}

func (q *fakeQueue) Enqueue(_ context.Context, job async.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *fakeQueue) Shutdown(context.Context) {}

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestDiscover(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.pdf"), "a")
	writeFile(t, filepath.Join(root, "nested", "b.JPG"), "b")
	writeFile(t, filepath.Join(root, "notes.txt"), "x")
	writeFile(t, filepath.Join(root, ".hidden.pdf"), "h")
	writeFile(t, filepath.Join(root, ".cache", "c.pdf"), "c")

	files, stats, err := Discover(root, nil, true)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(root, "a.pdf"), filepath.Join(root, "nested", "b.JPG")}, files)
	assert.Equal(t, uint32(3), stats.Scanned)
	assert.Equal(t, uint32(2), stats.Matched)

	files, _, err = Discover(root, []string{".pdf"}, false)
	require.NoError(t, err)
	assert.Len(t, files, 3)

	_, _, err = Discover(filepath.Join(root, "missing"), nil, true)
	assert.Error(t, err)
	_, _, err = Discover(" ", nil, true)
	assert.Error(t, err)
}

func TestIngestPathDeduplicatesAndQueues(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "one.pdf"), "same bytes")
	writeFile(t, filepath.Join(dir, "copy.pdf"), "same bytes")
	writeFile(t, filepath.Join(dir, "bad.pdf"), "broken")
	writeFile(t, filepath.Join(dir, "notes.txt"), "x")

	starter := &fakeStarter{}
	queue := &fakeQueue{}
	ing := NewIngestor(starter, queue, quietLogger())
	ctx := context.Background()

	first, err := ing.IngestPath(ctx, filepath.Join(dir, "one.pdf"))
	require.NoError(t, err)
	assert.NotEmpty(t, first.SessionID)
	assert.True(t, first.Queued)
	assert.Len(t, first.HashHex, 64)

	second, err := ing.IngestPath(ctx, filepath.Join(dir, "copy.pdf"))
	require.NoError(t, err)
	assert.True(t, second.Deduplicated)
	assert.Equal(t, first.SessionID, second.SessionID)

	_, err = ing.IngestPath(ctx, filepath.Join(dir, "bad.pdf"))
	assert.Error(t, err)
	_, err = ing.IngestPath(ctx, filepath.Join(dir, "notes.txt"))
	assert.Error(t, err)

	assert.Equal(t, []string{"one.pdf"}, starter.started())
	require.Len(t, queue.jobs, 1)
	assert.Equal(t, first.SessionID, queue.jobs[0].SessionID)
	assert.False(t, queue.jobs[0].Force)
}

func TestIngestDirectoryStats(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.pdf"), "alpha")
	writeFile(t, filepath.Join(root, "b.png"), "alpha")
	writeFile(t, filepath.Join(root, "c.pdf"), "broken")

	ing := NewIngestor(&fakeStarter{}, nil, quietLogger())
	results, stats, err := ing.IngestDirectory(context.Background(), root, nil, true)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, uint32(3), stats.Matched)
	assert.Equal(t, uint32(2), stats.Succeeded)
	assert.Equal(t, uint32(1), stats.Deduplicated)
	assert.Equal(t, uint32(1), stats.Failed)
	assert.False(t, results[0].Queued)
	assert.NotEmpty(t, results[2].Err)
}

func TestWatchIngestsExistingAndNewFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "existing.pdf"), "first form")

	starter := &fakeStarter{}
	ing := NewIngestor(starter, nil, quietLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- ing.Watch(ctx, WatchConfig{
			Roots:       []string{root},
			SkipHidden:  true,
			InitialScan: true,
			Debounce:    20 * time.Millisecond,
		})
	}()

	assert.Eventually(t, func() bool { return len(starter.started()) == 1 }, 2*time.Second, 10*time.Millisecond)

	writeFile(t, filepath.Join(root, "arrived.png"), "second form")
	writeFile(t, filepath.Join(root, "ignored.txt"), "nope")
	assert.Eventually(t, func() bool { return len(starter.started()) == 2 }, 5*time.Second, 20*time.Millisecond)
	assert.ElementsMatch(t, []string{"existing.pdf", "arrived.png"}, starter.started())

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestStartWatcherRequiresRoots(t *testing.T) {
	_, _, err := StartWatcher(context.Background(), WatchConfig{}, quietLogger())
	assert.Error(t, err)
}
