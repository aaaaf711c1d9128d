// Package protoreg holds the descriptor tree consumed by the converter: a
// nested mapping of package segments to namespaces, services and messages.
package protoreg

import (
	"errors"
	"fmt"
	"strings"

	"google.golang.org/protobuf/reflect/protoreflect"
)

var (
	// ErrDuplicateDeclaration is returned when two declarations share a full name.
	ErrDuplicateDeclaration = errors.New("protoreg: duplicate declaration")
	// ErrInvalidDocument is returned for malformed tree documents.
	ErrInvalidDocument = errors.New("protoreg: invalid tree document")
	// ErrNoDescriptors is returned when an operation needs live file descriptors
	// and the tree was decoded from a document.
	ErrNoDescriptors = errors.New("protoreg: tree has no file descriptors")
)

// Tree is the root namespace plus an index of every message and enum by full
// name.
type Tree struct {
	Root *Namespace
	// Files are the source files in load order; nil for decoded documents.
	Files []protoreflect.FileDescriptor

	decls map[string]*Message
}

// Namespace is one package segment.
type Namespace struct {
	Name       string
	FullName   string
	Namespaces []*Namespace
	Services   []*Service
	Messages   []*Message
}

// Message is a message declaration, or an enum declaration when it has
// Values and no Fields.
type Message struct {
	Name     string
	FullName string
	Package  string

	Fields    []*Field
	EnumTypes []*Message
	Nested    []*Message
	Values    []string

	// Desc is a protoreflect.MessageDescriptor or protoreflect.EnumDescriptor
	// when built from live descriptors.
	Desc protoreflect.Descriptor
}

// Field is a message field.
type Field struct {
	Name string
	// Type is the descriptor type tag, e.g. TYPE_STRING or TYPE_MESSAGE.
	Type string
	// Label is LABEL_OPTIONAL, LABEL_REPEATED or LABEL_REQUIRED.
	Label string
	// TypeName references a message or enum for TYPE_MESSAGE and TYPE_ENUM.
	TypeName string

	Desc protoreflect.FieldDescriptor
}

// Service is a service declaration.
type Service struct {
	Name     string
	FullName string
	Package  string
	Methods  []*Method

	Desc protoreflect.ServiceDescriptor
}

// Method is an RPC method. RequestType and ResponseType are type names
// resolvable from the declaring package.
type Method struct {
	Name            string
	RequestType     string
	ResponseType    string
	ClientStreaming bool
	ServerStreaming bool

	Desc protoreflect.MethodDescriptor
}

// NewTree returns an empty tree.
func NewTree() *Tree {
	return &Tree{Root: &Namespace{}, decls: map[string]*Message{}}
}

// IsEnum reports whether the message is an enum declaration.
func (m *Message) IsEnum() bool { return len(m.Fields) == 0 && len(m.Values) > 0 }

// RelativeName is the full name relative to the declaring package.
func (m *Message) RelativeName() string {
	if m.Package == "" {
		return m.FullName
	}
	return strings.TrimPrefix(m.FullName, m.Package+".")
}

// Streaming reports whether either side of the method streams.
func (m *Method) Streaming() bool { return m.ClientStreaming || m.ServerStreaming }

// Lookup descends one namespace per dotted segment of name. An empty name
// returns n itself.
func (n *Namespace) Lookup(name string) *Namespace {
	if name == "" {
		return n
	}
	cur := n
	for _, seg := range strings.Split(name, ".") {
		cur = cur.child(seg)
		if cur == nil {
			return nil
		}
	}
	return cur
}

// Service returns the named service declared directly in n.
func (n *Namespace) Service(name string) *Service {
	for _, s := range n.Services {
		if s.Name == name {
			return s
		}
	}
	return nil
}

func (n *Namespace) child(name string) *Namespace {
	for _, c := range n.Namespaces {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// ensure returns the namespace for a dotted package, creating missing segments.
func (n *Namespace) ensure(pkg string) *Namespace {
	if pkg == "" {
		return n
	}
	cur := n
	for _, seg := range strings.Split(pkg, ".") {
		next := cur.child(seg)
		if next == nil {
			next = &Namespace{Name: seg, FullName: join(cur.FullName, seg)}
			cur.Namespaces = append(cur.Namespaces, next)
		}
		cur = next
	}
	return cur
}

// Lookup returns the namespace of a dotted package name.
func (t *Tree) Lookup(pkg string) *Namespace { return t.Root.Lookup(pkg) }

// Message returns the message or enum with the given full name. A leading
// dot is ignored.
func (t *Tree) Message(fullName string) *Message {
	return t.decls[strings.TrimPrefix(fullName, ".")]
}

// Resolve finds the declaration named typeName as seen from scope, searching
// the innermost scope first. A leading dot makes typeName absolute.
func (t *Tree) Resolve(scope, typeName string) *Message {
	if strings.HasPrefix(typeName, ".") {
		return t.Message(typeName)
	}
	for {
		if m := t.decls[join(scope, typeName)]; m != nil {
			return m
		}
		if scope == "" {
			return nil
		}
		if i := strings.LastIndexByte(scope, '.'); i >= 0 {
			scope = scope[:i]
		} else {
			scope = ""
		}
	}
}

// Services returns every service in the tree in declaration order.
func (t *Tree) Services() []*Service {
	var out []*Service
	var walk func(n *Namespace)
	walk = func(n *Namespace) {
		out = append(out, n.Services...)
		for _, c := range n.Namespaces {
			walk(c)
		}
	}
	walk(t.Root)
	return out
}

func (t *Tree) addService(s *Service) {
	ns := t.Root.ensure(s.Package)
	ns.Services = append(ns.Services, s)
}

func (t *Tree) addMessage(m *Message) error {
	ns := t.Root.ensure(m.Package)
	ns.Messages = append(ns.Messages, m)
	return t.index(m)
}

func (t *Tree) index(m *Message) error {
	if _, ok := t.decls[m.FullName]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateDeclaration, m.FullName)
	}
	t.decls[m.FullName] = m
	for _, e := range m.EnumTypes {
		if err := t.index(e); err != nil {
			return err
		}
	}
	for _, n := range m.Nested {
		if err := t.index(n); err != nil {
			return err
		}
	}
	return nil
}

func join(scope, name string) string {
	if scope == "" {
		return name
	}
	return scope + "." + name
}
