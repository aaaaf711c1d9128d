package protoreg

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/hanpama/protogql/internal/typemap"
	"gopkg.in/yaml.v3"
)

// A tree document is a YAML or JSON mapping. Keys are package segments (a
// dotted key expands to nested segments); an entry with a "service" key is
// a service, an entry with a "type" key is a message or enum, anything else
// is a namespace:
//
//	helloworld:
//	  HelloRequest:
//	    type:
//	      field:
//	        - {name: name, type: TYPE_STRING, label: LABEL_OPTIONAL}
//	  Greeter:
//	    service:
//	      SayHello:
//	        requestType: {type: {name: HelloRequest}}
//	        responseType: {type: {name: HelloReply}}

type docType struct {
	Name       string     `yaml:"name"`
	Field      []docField `yaml:"field"`
	NestedType []docType  `yaml:"nestedType"`
	EnumType   []docEnum  `yaml:"enumType"`
	Value      []docValue `yaml:"value"`
}

type docField struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`
	Label    string `yaml:"label"`
	TypeName string `yaml:"typeName"`
}

type docEnum struct {
	Name  string     `yaml:"name"`
	Value []docValue `yaml:"value"`
}

type docValue struct {
	Name string `yaml:"name"`
}

type docMethod struct {
	RequestType    docTypeRef `yaml:"requestType"`
	ResponseType   docTypeRef `yaml:"responseType"`
	RequestStream  bool       `yaml:"requestStream"`
	ResponseStream bool       `yaml:"responseStream"`
}

// docTypeRef accepts either a bare type name or {type: {name: ...}}.
type docTypeRef string

func (r *docTypeRef) UnmarshalYAML(n *yaml.Node) error {
	switch n.Kind {
	case yaml.ScalarNode:
		*r = docTypeRef(n.Value)
		return nil
	case yaml.MappingNode:
		var v struct {
			Name string `yaml:"name"`
			Type struct {
				Name string `yaml:"name"`
			} `yaml:"type"`
		}
		if err := n.Decode(&v); err != nil {
			return err
		}
		if v.Type.Name != "" {
			*r = docTypeRef(v.Type.Name)
		} else {
			*r = docTypeRef(v.Name)
		}
		return nil
	}
	return fmt.Errorf("%w: line %d: type reference must be a name or mapping", ErrInvalidDocument, n.Line)
}

// LoadTree reads a tree document from a file.
func LoadTree(path string) (*Tree, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return DecodeTree(f)
}

// DecodeTree reads a tree document. Declaration order is preserved.
func DecodeTree(r io.Reader) (*Tree, error) {
	var doc yaml.Node
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return NewTree(), nil
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	root := &doc
	if doc.Kind == yaml.DocumentNode && len(doc.Content) > 0 {
		root = doc.Content[0]
	}
	t := NewTree()
	if err := t.decodeNamespace("", root); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Tree) decodeNamespace(pkg string, node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("%w: line %d: %q must be a mapping", ErrInvalidDocument, node.Line, pkg)
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, val := node.Content[i].Value, node.Content[i+1]
		scope, name := pkg, key
		if j := strings.LastIndexByte(key, '.'); j >= 0 {
			scope, name = join(pkg, key[:j]), key[j+1:]
		}
		if val.Kind != yaml.MappingNode {
			return fmt.Errorf("%w: line %d: %q must be a mapping", ErrInvalidDocument, val.Line, join(scope, name))
		}
		t.Root.ensure(scope)

		if svc := mappingValue(val, "service"); svc != nil {
			s, err := decodeService(scope, name, svc)
			if err != nil {
				return err
			}
			t.addService(s)
			continue
		}
		if typ := mappingValue(val, "type"); typ != nil {
			var dt docType
			if err := typ.Decode(&dt); err != nil {
				return fmt.Errorf("%w: %s: %v", ErrInvalidDocument, join(scope, name), err)
			}
			if err := t.addMessage(dt.message(scope, scope, name)); err != nil {
				return err
			}
			continue
		}
		if err := t.decodeNamespace(join(scope, name), val); err != nil {
			return err
		}
	}
	return nil
}

func decodeService(pkg, name string, node *yaml.Node) (*Service, error) {
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: line %d: service %s must map method names", ErrInvalidDocument, node.Line, name)
	}
	s := &Service{Name: name, FullName: join(pkg, name), Package: pkg}
	for i := 0; i+1 < len(node.Content); i += 2 {
		methodName := node.Content[i].Value
		var dm docMethod
		if err := node.Content[i+1].Decode(&dm); err != nil {
			return nil, fmt.Errorf("%w: %s.%s: %v", ErrInvalidDocument, s.FullName, methodName, err)
		}
		if dm.RequestType == "" || dm.ResponseType == "" {
			return nil, fmt.Errorf("%w: %s.%s: missing request or response type", ErrInvalidDocument, s.FullName, methodName)
		}
		s.Methods = append(s.Methods, &Method{
			Name:            methodName,
			RequestType:     string(dm.RequestType),
			ResponseType:    string(dm.ResponseType),
			ClientStreaming: dm.RequestStream,
			ServerStreaming: dm.ResponseStream,
		})
	}
	return s, nil
}

func (dt docType) message(pkg, scope, name string) *Message {
	if name == "" {
		name = dt.Name
	}
	m := &Message{Name: name, FullName: join(scope, name), Package: pkg}
	for _, f := range dt.Field {
		label := f.Label
		if label == "" {
			label = typemap.LabelOptional
		}
		m.Fields = append(m.Fields, &Field{Name: f.Name, Type: f.Type, Label: label, TypeName: f.TypeName})
	}
	for _, v := range dt.Value {
		m.Values = append(m.Values, v.Name)
	}
	for _, e := range dt.EnumType {
		enum := &Message{Name: e.Name, FullName: join(m.FullName, e.Name), Package: pkg}
		for _, v := range e.Value {
			enum.Values = append(enum.Values, v.Name)
		}
		m.EnumTypes = append(m.EnumTypes, enum)
	}
	for _, n := range dt.NestedType {
		m.Nested = append(m.Nested, n.message(pkg, m.FullName, ""))
	}
	return m
}

func mappingValue(node *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			return node.Content[i+1]
		}
	}
	return nil
}
