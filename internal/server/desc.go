package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/joseph-ayodele/form-extractor/internal/common"
)

const ServiceName = "formextract.v1.ReviewService"

// ReviewServer is the session surface of the pipeline. Messages are
// well-known protobuf types; the field names of each Struct are documented
// on the implementing methods.
type ReviewServer interface {
	Upload(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetSession(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	ListSessions(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	ListSchemas(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	ConfirmPages(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ConfirmSchemas(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Extract(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetDocument(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	Review(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Export(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
}

func unary[Req proto.Message](method string, newReq func() Req, call func(ReviewServer, context.Context, Req) (*structpb.Struct, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := newReq()
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(ReviewServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + method}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(ReviewServer), ctx, req.(Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

func newStruct() *structpb.Struct       { return &structpb.Struct{} }
func newString() *wrapperspb.StringValue { return &wrapperspb.StringValue{} }
func newEmpty() *emptypb.Empty           { return &emptypb.Empty{} }

var ReviewServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ReviewServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Upload", newStruct, ReviewServer.Upload),
		unary("GetSession", newString, ReviewServer.GetSession),
		unary("ListSessions", newEmpty, ReviewServer.ListSessions),
		unary("ListSchemas", newEmpty, ReviewServer.ListSchemas),
		unary("ConfirmPages", newStruct, ReviewServer.ConfirmPages),
		unary("ConfirmSchemas", newStruct, ReviewServer.ConfirmSchemas),
		unary("Extract", newStruct, ReviewServer.Extract),
		unary("GetDocument", newString, ReviewServer.GetDocument),
		unary("Review", newStruct, ReviewServer.Review),
		unary("Export", newString, ReviewServer.Export),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "formextract/v1/review.proto",
}

func RegisterReviewServer(s grpc.ServiceRegistrar, srv ReviewServer) {
	s.RegisterService(&ReviewServiceDesc, srv)
}

// LoggingInterceptor tags each call with a request id and logs its outcome.
func LoggingInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		reqID := uuid.NewString()
		ctx = common.WithRequestID(ctx, reqID)
		resp, err := handler(ctx, req)
		attrs := []any{"req_id", reqID, "method", info.FullMethod, "elapsed_ms", time.Since(start).Milliseconds()}
		if err != nil {
			logger.Warn("grpc.call.failed", append(attrs, "code", status.Code(err).String(), "error", err)...)
		} else {
			logger.Info("grpc.call.ok", attrs...)
		}
		return resp, err
	}
}

// Client calls a ReviewService over an established connection.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client { return &Client{cc: cc} }

func (c *Client) call(ctx context.Context, method string, in proto.Message) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Upload(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return c.call(ctx, "Upload", in)
}

func (c *Client) GetSession(ctx context.Context, id string) (*structpb.Struct, error) {
	return c.call(ctx, "GetSession", wrapperspb.String(id))
}

func (c *Client) ListSessions(ctx context.Context) (*structpb.Struct, error) {
	return c.call(ctx, "ListSessions", &emptypb.Empty{})
}

func (c *Client) ListSchemas(ctx context.Context) (*structpb.Struct, error) {
	return c.call(ctx, "ListSchemas", &emptypb.Empty{})
}

func (c *Client) ConfirmPages(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return c.call(ctx, "ConfirmPages", in)
}

func (c *Client) ConfirmSchemas(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return c.call(ctx, "ConfirmSchemas", in)
}

func (c *Client) Extract(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return c.call(ctx, "Extract", in)
}

func (c *Client) GetDocument(ctx context.Context, id string) (*structpb.Struct, error) {
	return c.call(ctx, "GetDocument", wrapperspb.String(id))
}

func (c *Client) Review(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return c.call(ctx, "Review", in)
}

func (c *Client) Export(ctx context.Context, id string) (*structpb.Struct, error) {
	return c.call(ctx, "Export", wrapperspb.String(id))
}
