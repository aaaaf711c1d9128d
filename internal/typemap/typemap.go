// Package typemap maps protobuf field type tags and labels onto GraphQL
// scalars, list wrapping and nullability.
package typemap

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hanpama/protogql/internal/schema"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/descriptorpb"
)

// ErrUnknownResponseType is returned when a tag maps to no scalar and no
// fallback type name is available.
var ErrUnknownResponseType = errors.New("typemap: unknown response type")

// Label strings as written in descriptors.
const (
	LabelOptional = "LABEL_OPTIONAL"
	LabelRepeated = "LABEL_REPEATED"
	LabelRequired = "LABEL_REQUIRED"
)

type rule struct {
	markers []string
	scalar  schema.Scalar
}

// rules are tested in order; the first rule with a marker contained in the
// tag wins.
var rules = []rule{
	{markers: []string{"INT", "FIXED"}, scalar: schema.Int},
	{markers: []string{"FLOAT", "DOUBLE"}, scalar: schema.Float},
	{markers: []string{"STRING", "BYTES"}, scalar: schema.String},
	{markers: []string{"BOOL"}, scalar: schema.Boolean},
}

// MapScalar returns the GraphQL scalar for a protobuf type tag such as
// TYPE_INT32 or TYPE_STRING. Message, enum and group tags do not map.
func MapScalar(tag string) (schema.Scalar, bool) {
	for _, r := range rules {
		for _, m := range r.markers {
			if strings.Contains(tag, m) {
				return r.scalar, true
			}
		}
	}
	return "", false
}

// Tag returns the descriptor type tag of a field kind.
func Tag(kind protoreflect.Kind) string {
	return descriptorpb.FieldDescriptorProto_Type(kind).String()
}

// LabelOf returns the descriptor label string of a field.
func LabelOf(fd protoreflect.FieldDescriptor) string {
	if fd.IsList() {
		return LabelRepeated
	}
	if fd.Cardinality() == protoreflect.Required {
		return LabelRequired
	}
	return LabelOptional
}

// Cardinality describes how a label wraps a type.
type Cardinality struct {
	Repeated bool
	NonNull  bool
}

// Label maps a descriptor label. Unknown labels are treated as optional.
func Label(label string) Cardinality {
	switch label {
	case LabelRepeated:
		return Cardinality{Repeated: true}
	case LabelRequired:
		return Cardinality{NonNull: true}
	}
	return Cardinality{}
}

// Options returns the schema field options for a label.
func (c Cardinality) Options() []schema.FieldOption {
	var opts []schema.FieldOption
	if c.Repeated {
		opts = append(opts, schema.List())
	}
	if c.NonNull {
		opts = append(opts, schema.NonNull())
	}
	return opts
}

// Ref resolves a field type: a scalar when the tag maps, otherwise the
// fallback type name verbatim.
func Ref(tag, fallback string) (*schema.TypeRef, error) {
	if s, ok := MapScalar(tag); ok {
		return schema.ScalarRef(s), nil
	}
	if fallback == "" {
		return nil, fmt.Errorf("%w: %s", ErrUnknownResponseType, tag)
	}
	return schema.MessageRef(fallback), nil
}
