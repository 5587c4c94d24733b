package server

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joseph-ayodele/form-extractor/internal/async"
	"github.com/joseph-ayodele/form-extractor/internal/core"
	"github.com/joseph-ayodele/form-extractor/internal/extract"
	"github.com/joseph-ayodele/form-extractor/internal/llm"
	"github.com/joseph-ayodele/form-extractor/internal/raster"
	"github.com/joseph-ayodele/form-extractor/internal/repository"
	"github.com/joseph-ayodele/form-extractor/internal/schema"
)

type twoPages struct{}

func (twoPages) PageCount([]byte) (int, error) { return 2, nil }

func (twoPages) Render(_ context.Context, _ []byte, pages []int) ([]raster.Page, error) {
	out := make([]raster.Page, 0, len(pages))
	for _, p := range pages {
		out = append(out, raster.Page{Number: p, Image: []byte{byte(p)}, MIMEType: "image/png"})
	}
	return out, nil
}

type harness struct {
	client *Client
	outDir string
	done   chan async.Job
}

func startServer(t *testing.T) harness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	reg, err := schema.New(map[string]string{"page_1": `{"type": "object"}`, "page_2": `{"type": "object"}`}, logger)
	require.NoError(t, err)

	vision := llm.VisionExtractorFunc(func(_ context.Context, req llm.PageRequest) ([]byte, error) {
		switch req.Page {
		case 1:
			return []byte(`{"Applicant": {"first_name": "Grace", "age": 85, "veteran": false}}`), nil
		case 2:
			return []byte(`{"Applicant": {"last_name": "Hopper"}, "Notes": ["n1"]}`), nil
		}
		return nil, errors.New("unexpected page")
	})

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "map.yaml"),
		[]byte("Applicant.first_name: First Name\nApplicant.last_name: Last Name\nApplicant.age: Age\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "target.csv"), []byte("First Name,Last Name,Age,Email\n"), 0o644))
	outDir := filepath.Join(dir, "out")

	db, err := repository.Open(context.Background(), repository.Config{DSN: "file:" + filepath.Join(dir, "s.db")}, logger)
	require.NoError(t, err)
	repo := repository.NewSessionRepository(db, logger)

	proc := core.NewProcessor(logger, reg, twoPages{}, extract.New(vision, extract.Options{ValidateSchema: true}, logger), nil, repo,
		core.Paths{FieldMapping: filepath.Join(dir, "map.yaml"), TargetSchema: filepath.Join(dir, "target.csv"), OutputDir: outDir})

	done := make(chan async.Job, 4)
	queue := async.NewProcessorQueue(proc, logger, async.WithWorkers(1), async.WithOnDone(func(job async.Job, err error) {
		done <- job
	}))

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(grpc.UnaryInterceptor(LoggingInterceptor(logger)))
	RegisterReviewServer(srv, NewReviewService(proc, repo, queue, logger))
	go func() { _ = srv.Serve(lis) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = conn.Close()
		srv.Stop()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		queue.Shutdown(ctx)
		db.Close()
	})
	return harness{client: NewClient(conn), outDir: outDir, done: done}
}

func mustStruct(t *testing.T, m map[string]any) *structpb.Struct {
	t.Helper()
	st, err := structpb.NewStruct(m)
	require.NoError(t, err)
	return st
}

func field(st *structpb.Struct, key string) *structpb.Value { return st.GetFields()[key] }

func upload(t *testing.T, h harness) string {
	t.Helper()
	resp, err := h.client.Upload(context.Background(), mustStruct(t, map[string]any{
		"name":           "benefits-claim.pdf",
		"content_base64": base64.StdEncoding.EncodeToString([]byte("%PDF-1.7 claim")),
	}))
	require.NoError(t, err)
	assert.Equal(t, "UPLOADED", field(resp, "state").GetStringValue())
	assert.Equal(t, float64(2), field(resp, "page_count").GetNumberValue())
	return field(resp, "session_id").GetStringValue()
}

func TestReviewServiceFullSession(t *testing.T) {
	ctx := context.Background()
	h := startServer(t)
	id := upload(t, h)

	schemas, err := h.client.ListSchemas(ctx)
	require.NoError(t, err)
	assert.Len(t, field(schemas, "schemas").GetListValue().GetValues(), 2)

	// export before anything else
	_, err = h.client.Export(ctx, id)
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))

	resp, err := h.client.ConfirmPages(ctx, mustStruct(t, map[string]any{"session_id": id}))
	require.NoError(t, err)
	assert.Equal(t, "page_2", field(resp, "proposed").GetStructValue().GetFields()["2"].GetStringValue())

	_, err = h.client.ConfirmSchemas(ctx, mustStruct(t, map[string]any{"session_id": id, "assignments": map[string]any{"2": "missing"}}))
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))
	_, err = h.client.ConfirmSchemas(ctx, mustStruct(t, map[string]any{"session_id": id}))
	require.NoError(t, err)

	resp, err = h.client.Extract(ctx, mustStruct(t, map[string]any{"session_id": id}))
	require.NoError(t, err)
	assert.Equal(t, "EXTRACTED", field(resp, "state").GetStringValue())
	assert.Nil(t, field(resp, "warnings"))

	doc, err := h.client.GetDocument(ctx, id)
	require.NoError(t, err)
	assert.Contains(t, field(doc, "document_json").GetStringValue(), `"first_name": "Grace"`)
	paths := []string{}
	for _, f := range field(doc, "fields").GetListValue().GetValues() {
		paths = append(paths, f.GetStructValue().GetFields()["path"].GetStringValue())
	}
	assert.Equal(t, []string{"Applicant.first_name", "Applicant.age", "Applicant.veteran", "Applicant.last_name", "Notes"}, paths)

	_, err = h.client.Review(ctx, mustStruct(t, map[string]any{"session_id": id, "edits": map[string]any{"Applicant.middle": "x"}}))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	resp, err = h.client.Review(ctx, mustStruct(t, map[string]any{"session_id": id, "edits": map[string]any{
		"Applicant.age":     86,
		"Applicant.veteran": true,
		"Notes":             []any{"n1", "n2"},
	}}))
	require.NoError(t, err)
	assert.Equal(t, "REVIEWED", field(resp, "state").GetStringValue())

	resp, err = h.client.Export(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "EXPORTED", field(resp, "state").GetStringValue())
	assert.Equal(t, filepath.Join(h.outDir, "benefits-claim_official.xlsx"), field(resp, "official_path").GetStringValue())
	row := field(resp, "official").GetStructValue().GetFields()["row"].GetListValue().GetValues()
	require.Len(t, row, 4)
	assert.Equal(t, "Grace", row[0].GetStringValue())
	assert.Equal(t, "Hopper", row[1].GetStringValue())
	assert.Equal(t, float64(86), row[2].GetNumberValue())
	_, isNull := row[3].GetKind().(*structpb.Value_NullValue)
	assert.True(t, isNull)
	extraCols := field(resp, "extra").GetStructValue().GetFields()["columns"].GetListValue().GetValues()
	require.Len(t, extraCols, 2)
	assert.Equal(t, "Applicant.veteran", extraCols[0].GetStringValue())

	list, err := h.client.ListSessions(ctx)
	require.NoError(t, err)
	assert.Len(t, field(list, "sessions").GetListValue().GetValues(), 1)
}

func TestReviewServiceAsyncExtract(t *testing.T) {
	ctx := context.Background()
	h := startServer(t)
	id := upload(t, h)

	_, err := h.client.Extract(ctx, mustStruct(t, map[string]any{"session_id": id, "async": true}))
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))

	_, err = h.client.ConfirmPages(ctx, mustStruct(t, map[string]any{"session_id": id, "pages": []any{2}}))
	require.NoError(t, err)
	_, err = h.client.ConfirmSchemas(ctx, mustStruct(t, map[string]any{"session_id": id}))
	require.NoError(t, err)

	resp, err := h.client.Extract(ctx, mustStruct(t, map[string]any{"session_id": id, "async": true}))
	require.NoError(t, err)
	assert.True(t, field(resp, "queued").GetBoolValue())

	select {
	case job := <-h.done:
		assert.Equal(t, id, job.SessionID)
	case <-time.After(5 * time.Second):
		t.Fatal("extraction job did not finish")
	}

	got, err := h.client.GetSession(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "EXTRACTED", field(got, "state").GetStringValue())
}

func TestReviewServiceRejectsBadRequests(t *testing.T) {
	ctx := context.Background()
	h := startServer(t)

	_, err := h.client.Upload(ctx, mustStruct(t, map[string]any{"name": "x.pdf", "content_base64": "%%%"}))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = h.client.GetSession(ctx, "no-such-session")
	assert.Equal(t, codes.NotFound, status.Code(err))

	id := upload(t, h)
	for _, pages := range []any{[]any{0}, []any{1.5}, []any{3}, "1"} {
		_, err = h.client.ConfirmPages(ctx, mustStruct(t, map[string]any{"session_id": id, "pages": pages}))
		assert.Equal(t, codes.InvalidArgument, status.Code(err), fmt.Sprint(pages))
	}
}
