package grpcrt

import (
	"context"

	"google.golang.org/protobuf/reflect/protoreflect"
)

// Transport handles the actual gRPC communication.
// Implementations MUST be safe for concurrent use: grpcrt may invoke Call from
// multiple goroutines when executing independent groups in parallel.
//
// Provided implementations:
// - internal/grpctp.Transport: client with pooling and timeouts
// - MockTransport: in-memory handlers for tests
type Transport interface {
	// Call executes a single unary gRPC method call.
	Call(ctx context.Context, method protoreflect.MethodDescriptor, request protoreflect.Message) (protoreflect.Message, error)
}
