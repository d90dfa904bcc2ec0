package server

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/campusconnect/campusqa/internal/service"
)

const (
	// QAServiceName is the fully qualified gRPC service name
	QAServiceName = "campusqa.v1.QAService"

	// QAServiceAskMethod is the full method name of Ask
	QAServiceAskMethod = "/" + QAServiceName + "/Ask"
)

// AskRequest is the Ask RPC input
type AskRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k,omitempty"`
}

// QAServer is the server API for QAService
type QAServer interface {
	Ask(ctx context.Context, req *AskRequest) (*service.AnswerResult, error)
}

// qaServiceDesc is registered by hand; messages travel through the JSON codec
var qaServiceDesc = grpc.ServiceDesc{
	ServiceName: QAServiceName,
	HandlerType: (*QAServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Ask",
			Handler:    askRPCHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "campusqa/v1/qa.json",
}

func askRPCHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(AskRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(QAServer).Ask(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: QAServiceAskMethod,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(QAServer).Ask(ctx, req.(*AskRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// qaService adapts an Answerer to QAServer
type qaService struct {
	answerer Answerer
	logger   *slog.Logger
}

func (s *qaService) Ask(ctx context.Context, req *AskRequest) (*service.AnswerResult, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, status.Error(codes.InvalidArgument, "query is required")
	}
	if req.TopK < 0 {
		return nil, status.Error(codes.InvalidArgument, service.ErrInvalidTopK.Error())
	}

	result, err := s.answerer.Answer(ctx, req.Query, req.TopK)
	switch {
	case errors.Is(err, service.ErrEmptyQuery), errors.Is(err, service.ErrInvalidTopK):
		return nil, status.Error(codes.InvalidArgument, err.Error())
	case err != nil:
		s.logger.Error("failed to answer question", "error", err)
		return nil, status.Error(codes.Internal, "failed to answer question")
	}
	return result, nil
}

// QAClient calls QAService on a remote server
type QAClient struct {
	conn grpc.ClientConnInterface
}

// NewQAClient wraps an established connection
func NewQAClient(conn grpc.ClientConnInterface) *QAClient {
	return &QAClient{conn: conn}
}

// Ask sends a question and returns the answer
func (c *QAClient) Ask(ctx context.Context, req *AskRequest, opts ...grpc.CallOption) (*service.AnswerResult, error) {
	out := new(service.AnswerResult)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(jsonCodecName)}, opts...)
	if err := c.conn.Invoke(ctx, QAServiceAskMethod, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
