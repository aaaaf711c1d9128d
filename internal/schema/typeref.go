package schema

// Scalar is a GraphQL built-in scalar name.
type Scalar string

const (
	Int     Scalar = "Int"
	Float   Scalar = "Float"
	String  Scalar = "String"
	Boolean Scalar = "Boolean"
	ID      Scalar = "ID"
)

// Scalars lists the built-in scalars in declaration order.
var Scalars = []Scalar{Int, Float, String, Boolean, ID}

// IsScalar reports whether name is one of the built-in scalars.
func IsScalar(name string) bool {
	for _, s := range Scalars {
		if string(s) == name {
			return true
		}
	}
	return false
}

// TypeRef is the type of a field or parameter. Exactly one of the variants
// is set; the final name is only computed when SDL is emitted.
type TypeRef struct {
	Kind    TypeRefKind
	Scalar  Scalar // For TypeRefKindScalar
	Message string // For TypeRefKindMessage
	Block   *Block // For TypeRefKindBlock
}

type TypeRefKind string

const (
	TypeRefKindScalar  TypeRefKind = "SCALAR"
	TypeRefKindMessage TypeRefKind = "MESSAGE"
	TypeRefKindBlock   TypeRefKind = "BLOCK"
)

func ScalarRef(s Scalar) *TypeRef     { return &TypeRef{Kind: TypeRefKindScalar, Scalar: s} }
func MessageRef(name string) *TypeRef { return &TypeRef{Kind: TypeRefKindMessage, Message: name} }
func BlockRef(b *Block) *TypeRef      { return &TypeRef{Kind: TypeRefKindBlock, Block: b} }

// IsBlock reports whether t points at a Block.
func (t *TypeRef) IsBlock() bool { return t != nil && t.Kind == TypeRefKindBlock && t.Block != nil }

// BlockKind returns the kind of the referenced Block, if any.
func (t *TypeRef) BlockKind() (Kind, bool) {
	if !t.IsBlock() {
		return "", false
	}
	return t.Block.Kind, true
}

// Name resolves the reference to the GraphQL type name written in SDL.
func (t *TypeRef) Name() string {
	if t == nil {
		return ""
	}
	switch t.Kind {
	case TypeRefKindScalar:
		return string(t.Scalar)
	case TypeRefKindMessage:
		return t.Message
	case TypeRefKindBlock:
		if t.Block == nil {
			return ""
		}
		return t.Block.Name
	}
	return ""
}
