package grpcrt

import (
	"context"
	"fmt"
	"sync"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
)

// CallRecord captures a single Call invocation for assertions.
type CallRecord struct {
	// Method is the descriptor invoked.
	Method protoreflect.MethodDescriptor
	// FullMethod is "/<service full name>/<method>" for convenience.
	FullMethod string
	// Request is a deep-cloned proto message snapshot of the input.
	Request proto.Message
}

// MockHandler answers one call. It receives the request and returns a
// response built from method.Output().
type MockHandler func(ctx context.Context, method protoreflect.MethodDescriptor, request protoreflect.Message) (protoreflect.Message, error)

// MockTransport implements Transport with per-method handlers while
// recording Call invocations for inspection.
type MockTransport struct {
	mu       sync.Mutex
	handlers map[string]MockHandler
	calls    []CallRecord
}

// NewMockTransport creates an empty MockTransport. Calls to methods without
// a handler fail.
func NewMockTransport() *MockTransport {
	return &MockTransport{handlers: map[string]MockHandler{}}
}

// Handle registers h for a full method name such as "/helloworld.Greeter/SayHello".
func (m *MockTransport) Handle(fullMethod string, h MockHandler) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[fullMethod] = h
	return m
}

// Call records the invocation and dispatches it to the method's handler.
func (m *MockTransport) Call(ctx context.Context, method protoreflect.MethodDescriptor, request protoreflect.Message) (protoreflect.Message, error) {
	full := fmt.Sprintf("/%s/%s", method.Parent().FullName(), method.Name())

	m.mu.Lock()
	var reqClone proto.Message
	if request != nil {
		reqClone = proto.Clone(request.Interface())
	}
	m.calls = append(m.calls, CallRecord{Method: method, FullMethod: full, Request: reqClone})
	h := m.handlers[full]
	m.mu.Unlock()

	if h == nil {
		return nil, fmt.Errorf("mock transport: no handler for %s", full)
	}
	return h(ctx, method, request)
}

// Calls returns a snapshot of recorded Call invocations.
func (m *MockTransport) Calls() []CallRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]CallRecord, len(m.calls))
	copy(out, m.calls)
	return out
}
