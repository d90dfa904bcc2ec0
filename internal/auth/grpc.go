package auth

import (
	"context"
	"errors"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// Interceptor provides gRPC interceptors for session token validation
type Interceptor struct {
	manager     *JWTManager
	skipMethods map[string]bool
}

// NewInterceptor creates a new token interceptor
func NewInterceptor(manager *JWTManager) *Interceptor {
	return &Interceptor{
		manager: manager,
		skipMethods: map[string]bool{
			// Health check endpoints
			"/grpc.health.v1.Health/Check": true,
			"/grpc.health.v1.Health/Watch": true,
		},
	}
}

// WithSkipMethods adds methods to skip authentication
func (i *Interceptor) WithSkipMethods(methods ...string) *Interceptor {
	for _, method := range methods {
		i.skipMethods[method] = true
	}
	return i
}

// UnaryInterceptor returns a gRPC unary interceptor for token validation
func (i *Interceptor) UnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		if i.skipMethods[info.FullMethod] {
			return handler(ctx, req)
		}

		claims, err := i.authenticate(ctx)
		if err != nil {
			return nil, err
		}
		return handler(WithClaims(ctx, claims), req)
	}
}

// StreamInterceptor returns a gRPC stream interceptor for token validation
func (i *Interceptor) StreamInterceptor() grpc.StreamServerInterceptor {
	return func(
		srv interface{},
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		if i.skipMethods[info.FullMethod] {
			return handler(srv, ss)
		}

		claims, err := i.authenticate(ss.Context())
		if err != nil {
			return err
		}

		wrappedStream := &wrappedServerStream{
			ServerStream: ss,
			ctx:          WithClaims(ss.Context(), claims),
		}
		return handler(srv, wrappedStream)
	}
}

func (i *Interceptor) authenticate(ctx context.Context) (*Claims, error) {
	claims, err := i.manager.ValidateToken(extractToken(ctx))
	if err != nil {
		if errors.Is(err, ErrMissingToken) {
			return nil, status.Error(codes.Unauthenticated, "missing session token")
		}
		return nil, status.Error(codes.PermissionDenied, "invalid session token")
	}
	return claims, nil
}

// wrappedServerStream wraps a grpc.ServerStream with a modified context
type wrappedServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

// Context returns the wrapped context
func (w *wrappedServerStream) Context() context.Context {
	return w.ctx
}

// extractToken reads a bearer token from the authorization metadata
func extractToken(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}

	values := md.Get("authorization")
	if len(values) == 0 {
		return ""
	}

	token, _ := strings.CutPrefix(strings.TrimSpace(values[0]), "Bearer ")
	return strings.TrimSpace(token)
}
