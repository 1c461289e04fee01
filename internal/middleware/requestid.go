// Package middleware carries the gRPC interceptors wrapped around every
// gateway call: request IDs, structured access logging, and per-client rate
// limiting.
package middleware

import (
	"context"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// RequestIDHeader is the incoming metadata key an existing request ID is
// taken from; generated IDs are echoed back under the same key.
const RequestIDHeader = "x-request-id"

type requestIDKey struct{}

// WithRequestID stores the request ID in the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext extracts the request ID from the context.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestIDKey{}).(string)
	return id, ok
}

func ensureRequestID(ctx context.Context) context.Context {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if vals := md.Get(RequestIDHeader); len(vals) > 0 && vals[0] != "" {
			return WithRequestID(ctx, vals[0])
		}
	}
	return WithRequestID(ctx, uuid.NewString())
}

// RequestIDUnary attaches a request ID to every unary call, reusing the
// caller's when one is sent.
func RequestIDUnary() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		return handler(ensureRequestID(ctx), req)
	}
}

// RequestIDStream is the streaming counterpart of RequestIDUnary.
func RequestIDStream() grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, _ *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		return handler(srv, &wrappedStream{ServerStream: ss, ctx: ensureRequestID(ss.Context())})
	}
}

// wrappedStream overrides the stream context so interceptors can decorate it.
type wrappedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *wrappedStream) Context() context.Context { return s.ctx }
