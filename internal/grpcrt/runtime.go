package grpcrt

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"

	"github.com/hanpama/protogql/internal/binding"
	"github.com/hanpama/protogql/internal/convert"
	"github.com/hanpama/protogql/internal/executor"
	"github.com/hanpama/protogql/internal/schema"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"
)

var (
	// ErrUnbound is returned for fields with neither a binding nor a parent message.
	ErrUnbound = errors.New("grpcrt: field is not bound")
	// ErrNoDescriptor is returned for methods converted from a tree document,
	// which carries no descriptors to build requests from.
	ErrNoDescriptor = errors.New("grpcrt: method has no descriptor")
	// ErrStreaming is returned for streaming methods; only unary calls are made.
	ErrStreaming = errors.New("grpcrt: streaming methods cannot be called")
)

// Runtime implements executor.Runtime for the gRPC-backed gateway.
//   - Package and service fields resolve synchronously to their binding entry,
//     which becomes the source of the namespace object below them.
//   - Method fields are async. Each task becomes one unary call whose request is
//     built from the "request" argument and whose response message is the value.
//   - Message fields are read from the parent protoreflect.Message by proto name.
//   - Concurrency: BatchResolveAsync groups tasks by (objectType, field) and
//     executes groups in parallel. Transports must be concurrency-safe.
//   - Determinism: Results preserve input ordering; partial success is supported.
type Runtime struct {
	reg       Registry
	transport Transport
}

var _ executor.Runtime = (*Runtime)(nil)

func NewRuntime(registry Registry, transport Transport) *Runtime {
	return &Runtime{reg: registry, transport: transport}
}

// IsAsync reports true for method fields.
func (r *Runtime) IsAsync(objectType, field string) bool {
	e := r.reg.Lookup(objectType, field)
	return e != nil && e.Kind == binding.Method
}

// ResolveSync resolves namespace fields and physical message fields. It never
// performs network I/O. Unset fields with presence resolve to (nil, nil).
func (r *Runtime) ResolveSync(ctx context.Context, objectType string, field string, source any, args map[string]any) (any, error) {
	if e := r.reg.Lookup(objectType, field); e != nil && e.Kind != binding.Method {
		return e, nil
	}

	if field == schema.PlaceholderField {
		return nil, nil
	}
	msg, ok := source.(protoreflect.Message)
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnbound, objectType, field)
	}
	fd := msg.Descriptor().Fields().ByName(protoreflect.Name(field))
	if fd == nil {
		return nil, fmt.Errorf("%w: %s has no field %s", ErrUnbound, msg.Descriptor().FullName(), field)
	}
	if fd.HasPresence() && !msg.Has(fd) {
		return nil, nil
	}
	return fromProto(fd, msg.Get(fd)), nil
}

// BatchResolveAsync executes method calls. All I/O happens here.
// The executor guarantees only async fields reach this method in a single batch
// per depth.
func (r *Runtime) BatchResolveAsync(ctx context.Context, tasks []executor.AsyncResolveTask) []executor.AsyncResolveResult {
	results := make([]executor.AsyncResolveResult, len(tasks))
	if len(tasks) == 0 {
		return results
	}
	// Group by objectType and field
	type groupKey struct {
		objectType string
		field      string
	}
	type group struct {
		objectType string
		field      string
		idxs       []int
	}
	groups := []group{}
	idxByKey := map[groupKey]int{}
	for i, t := range tasks {
		k := groupKey{objectType: t.ObjectType, field: t.Field}
		if gi, ok := idxByKey[k]; ok {
			groups[gi].idxs = append(groups[gi].idxs, i)
		} else {
			idxByKey[k] = len(groups)
			groups = append(groups, group{objectType: t.ObjectType, field: t.Field, idxs: []int{i}})
		}
	}
	run := func(g group) {
		md, err := r.method(g.objectType, g.field)
		for _, i := range g.idxs {
			if err != nil {
				results[i] = executor.AsyncResolveResult{Error: err}
				continue
			}
			results[i] = r.call(ctx, md, tasks[i])
		}
	}

	if len(groups) > 1 {
		var wg sync.WaitGroup
		wg.Add(len(groups))
		for _, g := range groups {
			go func() {
				defer wg.Done()
				run(g)
			}()
		}
		wg.Wait()
	} else {
		run(groups[0])
	}
	return results
}

func (r *Runtime) method(objectType, field string) (protoreflect.MethodDescriptor, error) {
	e := r.reg.Lookup(objectType, field)
	if e == nil || e.Kind != binding.Method {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnbound, objectType, field)
	}
	md := e.Descriptor()
	if md == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoDescriptor, e.Path)
	}
	if md.IsStreamingClient() || md.IsStreamingServer() {
		return nil, fmt.Errorf("%w: %s", ErrStreaming, md.FullName())
	}
	return md, nil
}

// call executes one unary RPC for one async task.
func (r *Runtime) call(ctx context.Context, md protoreflect.MethodDescriptor, task executor.AsyncResolveTask) executor.AsyncResolveResult {
	req := dynamicpb.NewMessage(md.Input())
	if in, ok := task.Args[convert.RequestParam].(map[string]any); ok {
		if err := setMessageFields(req, in); err != nil {
			return executor.AsyncResolveResult{Error: fmt.Errorf("%s: %w", md.FullName(), err)}
		}
	}
	resp, err := r.transport.Call(ctx, md, req)
	if err != nil {
		return executor.AsyncResolveResult{Error: err}
	}
	return executor.AsyncResolveResult{Value: resp}
}

// SerializeLeafValue serializes a scalar or enum value for the response.
// Byte slices are base64-encoded.
func (r *Runtime) SerializeLeafValue(ctx context.Context, scalarOrEnumTypeName string, value any) (any, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case []byte:
		return base64.StdEncoding.EncodeToString(v), nil
	default:
		return v, nil
	}
}
