// Package binding maps every GraphQL field produced by a conversion run to
// what resolves it: a namespace value for package and service fields, or a
// gRPC method and its backend endpoint for method fields.
package binding

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/hanpama/protogql/internal/convert"
	"github.com/hanpama/protogql/internal/schema"
	"google.golang.org/protobuf/reflect/protoreflect"
)

// ErrNoEndpoint is returned for services without a binding.
var ErrNoEndpoint = errors.New("binding: no endpoint for service")

// Kind classifies a binding.
type Kind int

const (
	// Package is a root field returning a package namespace object.
	Package Kind = iota
	// Service is a package namespace field returning a service namespace object.
	Service
	// Method is a service namespace field backed by an RPC.
	Method
)

func (k Kind) String() string {
	switch k {
	case Package:
		return "package"
	case Service:
		return "service"
	case Method:
		return "method"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Entry is one resolvable field.
type Entry struct {
	Kind Kind
	// ObjectType and Field name the GraphQL field, e.g. helloworld_query.Greeter.
	ObjectType string
	Field      string
	// Path is the dotted key from the root, e.g. Query.helloworld.Greeter.SayHello.
	Path string
	// ReturnType is the namespace object type for Package and Service entries,
	// and the response type for Method entries.
	ReturnType string

	// Service is the converted service; nil for Package entries.
	Service *convert.Service
	// Method is set for Method entries.
	Method *convert.Method
}

// Key is ObjectType.Field.
func (e *Entry) Key() string { return e.ObjectType + "." + e.Field }

// Descriptor returns the method descriptor of a Method entry built from live
// descriptors, or nil.
func (e *Entry) Descriptor() protoreflect.MethodDescriptor {
	if e.Method == nil {
		return nil
	}
	return e.Method.Method.Desc
}

// Endpoint is the backend address of the entry's service.
func (e *Entry) Endpoint() string {
	if e.Service == nil {
		return ""
	}
	return e.Service.Config.Endpoint()
}

// Table indexes entries by GraphQL field and by dotted path.
type Table struct {
	entries   []*Entry
	byField   map[string]*Entry
	byPath    map[string]*Entry
	endpoints map[string]string
}

// Build derives the binding table of a conversion result. Root surfaces with
// no field get no entries.
func Build(res *convert.Result) *Table {
	t := &Table{
		byField:   map[string]*Entry{},
		byPath:    map[string]*Entry{},
		endpoints: map[string]string{},
	}
	for _, svc := range res.Services {
		t.endpoints[svc.Service.FullName] = svc.Config.Endpoint()
	}
	t.surface(res, schema.QueryType, func(s *convert.Service) (string, string) { return s.PackageQueryType, s.QueryType },
		func(m *convert.Method) bool { return m.Query })
	t.surface(res, schema.MutationType, func(s *convert.Service) (string, string) { return s.PackageMutationType, s.MutationType },
		func(m *convert.Method) bool { return m.Mutation })
	return t
}

func (t *Table) surface(res *convert.Result, root string, blocks func(*convert.Service) (pkg, svc string), exposed func(*convert.Method) bool) {
	for _, svc := range res.Services {
		pkgType, svcType := blocks(svc)
		if svcType == "" {
			continue
		}
		pkgPath := root + "." + svc.PackageKey
		if t.byPath[pkgPath] == nil {
			t.add(&Entry{Kind: Package, ObjectType: root, Field: svc.PackageKey, Path: pkgPath, ReturnType: pkgType})
		}
		svcPath := pkgPath + "." + svc.Service.Name
		t.add(&Entry{Kind: Service, ObjectType: pkgType, Field: svc.Service.Name, Path: svcPath, ReturnType: svcType, Service: svc})
		for _, m := range svc.Methods {
			if !exposed(m) {
				continue
			}
			t.add(&Entry{
				Kind:       Method,
				ObjectType: svcType,
				Field:      m.Method.Name,
				Path:       svcPath + "." + m.Method.Name,
				ReturnType: m.ResponseType,
				Service:    svc,
				Method:     m,
			})
		}
	}
}

func (t *Table) add(e *Entry) {
	t.entries = append(t.entries, e)
	t.byField[e.Key()] = e
	t.byPath[e.Path] = e
}

// Entries returns every entry, Query surface first, in schema order.
func (t *Table) Entries() []*Entry { return t.entries }

// Lookup returns the entry for objectType.field, or nil.
func (t *Table) Lookup(objectType, field string) *Entry { return t.byField[objectType+"."+field] }

// Path returns the entry with the given dotted path, or nil.
func (t *Table) Path(path string) *Entry { return t.byPath[path] }

// Len is the number of entries.
func (t *Table) Len() int { return len(t.entries) }

// Endpoints implements the gRPC transport's endpoint provider: the configured
// host:port of a fully qualified service name.
func (t *Table) Endpoints(_ context.Context, service string) ([]string, error) {
	ep, ok := t.endpoints[service]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoEndpoint, service)
	}
	return []string{ep}, nil
}

// String lists the dotted paths, one per line, sorted.
func (t *Table) String() string {
	paths := make([]string, 0, len(t.entries))
	for _, e := range t.entries {
		paths = append(paths, e.Path)
	}
	sort.Strings(paths)
	return strings.Join(paths, "\n")
}
