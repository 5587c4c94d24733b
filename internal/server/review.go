package server

import (
	"context"
	"log/slog"
	"strconv"

	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/joseph-ayodele/form-extractor/internal/async"
	"github.com/joseph-ayodele/form-extractor/internal/common"
	"github.com/joseph-ayodele/form-extractor/internal/core"
	"github.com/joseph-ayodele/form-extractor/internal/repository"
	"github.com/joseph-ayodele/form-extractor/internal/session"
)

// ReviewService exposes the session stages over gRPC. Every call that touches
// a session holds that session's lock for its whole duration.
type ReviewService struct {
	proc   *core.Processor
	repo   repository.SessionRepository
	queue  async.Queue
	logger *slog.Logger
}

// NewReviewService builds the service. queue may be nil, in which case
// asynchronous extraction requests are rejected.
func NewReviewService(proc *core.Processor, repo repository.SessionRepository, queue async.Queue, logger *slog.Logger) *ReviewService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReviewService{proc: proc, repo: repo, queue: queue, logger: logger}
}

var _ ReviewServer = (*ReviewService)(nil)

func (s *ReviewService) fail(ctx context.Context, op string, err error) error {
	s.logger.Warn("server."+op+".failed", "req_id", common.RequestIDFromContext(ctx), "error", err)
	return common.ToStatus(err)
}

func (s *ReviewService) respond(ctx context.Context, op string, view map[string]any) (*structpb.Struct, error) {
	st, err := toStruct(view)
	if err != nil {
		return nil, s.fail(ctx, op, err)
	}
	return st, nil
}

// withSession runs fn on a locked session and answers with its view.
func (s *ReviewService) withSession(ctx context.Context, op, id string, fn func(*session.Session) error) (*structpb.Struct, error) {
	var view map[string]any
	err := s.proc.WithSession(ctx, id, func(sess *session.Session) error {
		if err := fn(sess); err != nil {
			return err
		}
		view = sessionView(sess)
		return nil
	})
	if err != nil {
		return nil, s.fail(ctx, op, err)
	}
	return s.respond(ctx, op, view)
}

// Upload takes {name, content_base64}.
func (s *ReviewService) Upload(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	data, err := uploadContent(in)
	if err != nil {
		return nil, s.fail(ctx, "upload", err)
	}
	name := stringField(in, "name")
	if name == "" {
		name = "upload.pdf"
	}
	sess, err := s.proc.Upload(ctx, name, data)
	if err != nil {
		return nil, s.fail(ctx, "upload", err)
	}
	return s.respond(ctx, "upload", sessionView(sess))
}

func (s *ReviewService) GetSession(ctx context.Context, in *wrapperspb.StringValue) (*structpb.Struct, error) {
	id := in.GetValue()
	if id == "" {
		return nil, s.fail(ctx, "get_session", invalid("session id is required"))
	}
	return s.withSession(ctx, "get_session", id, func(*session.Session) error { return nil })
}

func (s *ReviewService) ListSessions(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	rows, err := s.repo.List(ctx, 100)
	if err != nil {
		return nil, s.fail(ctx, "list_sessions", err)
	}
	out := make([]any, 0, len(rows))
	for _, r := range rows {
		out = append(out, map[string]any{
			"session_id":  r.ID,
			"state":       string(r.State),
			"source_name": r.SourceName,
		})
	}
	return s.respond(ctx, "list_sessions", map[string]any{"sessions": out})
}

func (s *ReviewService) ListSchemas(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	names := s.proc.Registry().ListNames()
	out := make([]any, len(names))
	for i, n := range names {
		out[i] = n
	}
	return s.respond(ctx, "list_schemas", map[string]any{"schemas": out})
}

// ConfirmPages takes {session_id, pages?}; no pages selects every page. The
// answer carries the proposed schema per page.
func (s *ReviewService) ConfirmPages(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, err := requireString(in, "session_id")
	if err != nil {
		return nil, s.fail(ctx, "confirm_pages", err)
	}
	pages, err := pagesField(in)
	if err != nil {
		return nil, s.fail(ctx, "confirm_pages", err)
	}
	var view map[string]any
	err = s.proc.WithSession(ctx, id, func(sess *session.Session) error {
		if err := s.proc.ConfirmPages(ctx, sess, pages); err != nil {
			return err
		}
		view = sessionView(sess)
		proposed, err := s.proc.ProposeSchemas(sess)
		if err != nil {
			// reported here, fatal only once schemas are confirmed
			view["proposal_error"] = err.Error()
			return nil
		}
		p := make(map[string]any, len(proposed))
		for page, name := range proposed {
			p[strconv.Itoa(page)] = name
		}
		view["proposed"] = p
		return nil
	})
	if err != nil {
		return nil, s.fail(ctx, "confirm_pages", err)
	}
	return s.respond(ctx, "confirm_pages", view)
}

// ConfirmSchemas takes {session_id, assignments?: {"<page>": "<schema>"}}.
func (s *ReviewService) ConfirmSchemas(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, err := requireString(in, "session_id")
	if err != nil {
		return nil, s.fail(ctx, "confirm_schemas", err)
	}
	overrides, err := assignmentsField(in)
	if err != nil {
		return nil, s.fail(ctx, "confirm_schemas", err)
	}
	return s.withSession(ctx, "confirm_schemas", id, func(sess *session.Session) error {
		return s.proc.ConfirmSchemas(ctx, sess, overrides)
	})
}

// Extract takes {session_id, force?, async?}. With async the request is
// queued and the current view is returned at once.
func (s *ReviewService) Extract(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, err := requireString(in, "session_id")
	if err != nil {
		return nil, s.fail(ctx, "extract", err)
	}
	force := in.GetFields()["force"].GetBoolValue()
	if !in.GetFields()["async"].GetBoolValue() {
		return s.withSession(ctx, "extract", id, func(sess *session.Session) error {
			return s.proc.Extract(ctx, sess, force, func(done, total, page int, err error) {
				s.logger.Info("server.extract.progress", "req_id", common.RequestIDFromContext(ctx),
					"session_id", id, "done", done, "total", total, "page", page, "failed", err != nil)
			})
		})
	}

	if s.queue == nil {
		return nil, s.fail(ctx, "extract", common.ConfigErrorf("asynchronous extraction is not enabled"))
	}
	var view map[string]any
	err = s.proc.WithSession(ctx, id, func(sess *session.Session) error {
		if err := s.proc.CheckExtractable(sess); err != nil {
			return err
		}
		view = sessionView(sess)
		return nil
	})
	if err != nil {
		return nil, s.fail(ctx, "extract", err)
	}
	job := async.Job{SessionID: id, Force: force, TraceID: common.RequestIDFromContext(ctx)}
	if err := s.queue.Enqueue(ctx, job); err != nil {
		return nil, s.fail(ctx, "extract", err)
	}
	view["queued"] = true
	return s.respond(ctx, "extract", view)
}

// GetDocument answers with the extracted and corrected documents as ordered
// JSON text plus the editable fields of the current one.
func (s *ReviewService) GetDocument(ctx context.Context, in *wrapperspb.StringValue) (*structpb.Struct, error) {
	id := in.GetValue()
	if id == "" {
		return nil, s.fail(ctx, "get_document", invalid("session id is required"))
	}
	var view map[string]any
	err := s.proc.WithSession(ctx, id, func(sess *session.Session) error {
		if sess.Document == nil {
			return common.TransitionError(string(sess.State), "EXTRACTED")
		}
		view = sessionView(sess)
		extracted, err := docJSON(sess.Document)
		if err != nil {
			return err
		}
		edited, err := docJSON(sess.Edited)
		if err != nil {
			return err
		}
		view["document_json"] = extracted
		if edited != "" {
			view["edited_json"] = edited
		}
		current := sess.Edited
		if current == nil {
			current = sess.Document
		}
		view["fields"] = fieldsView(current)
		return nil
	})
	if err != nil {
		return nil, s.fail(ctx, "get_document", err)
	}
	return s.respond(ctx, "get_document", view)
}

// Review takes {session_id, edits: {"<dotted path>": value}}. Leaves not
// named keep their current value.
func (s *ReviewService) Review(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, err := requireString(in, "session_id")
	if err != nil {
		return nil, s.fail(ctx, "review", err)
	}
	edits, err := editsField(in)
	if err != nil {
		return nil, s.fail(ctx, "review", err)
	}
	return s.withSession(ctx, "review", id, func(sess *session.Session) error {
		return s.proc.Review(ctx, sess, edits)
	})
}

// Export writes the spreadsheets and answers with their paths and rows.
func (s *ReviewService) Export(ctx context.Context, in *wrapperspb.StringValue) (*structpb.Struct, error) {
	id := in.GetValue()
	if id == "" {
		return nil, s.fail(ctx, "export", invalid("session id is required"))
	}
	var view map[string]any
	err := s.proc.WithSession(ctx, id, func(sess *session.Session) error {
		res, err := s.proc.Export(ctx, sess)
		if err != nil {
			return err
		}
		view = sessionView(sess)
		view["official"] = tableView(res.Official)
		if res.Extra != nil {
			view["extra"] = tableView(res.Extra)
		}
		return nil
	})
	if err != nil {
		return nil, s.fail(ctx, "export", err)
	}
	return s.respond(ctx, "export", view)
}
