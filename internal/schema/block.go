package schema

import "fmt"

// Kind determines the SDL keyword of a block.
type Kind string

const (
	KindType  Kind = "type"
	KindInput Kind = "input"
	KindEnum  Kind = "enum"
)

func (k Kind) valid() bool {
	switch k {
	case KindType, KindInput, KindEnum:
		return true
	}
	return false
}

// Block is one named SDL declaration: a type, an input or an enum.
// Fields keep their insertion order, which is also the emission order.
type Block struct {
	Name   string
	Kind   Kind
	Extend bool

	fields []*Field
	index  map[string]int
}

// Field is a member of a block. Enum members carry only a name.
type Field struct {
	Name string
	Type *TypeRef

	// Nullable is false when the field (or, for lists, each element) is non-null.
	Nullable bool
	Repeated bool
	// ListNonNull marks the list itself as non-null.
	ListNonNull bool

	// Params is nil for plain fields.
	Params []*Param
}

// Param is a named argument of a field.
type Param struct {
	Name     string
	Type     *TypeRef
	Nullable bool
	Repeated bool
}

// FieldOption adjusts nullability and repetition of a field.
type FieldOption func(*Field)

// NonNull marks the field (or each list element) as non-null.
func NonNull() FieldOption { return func(f *Field) { f.Nullable = false } }

// List wraps the field type in a list.
func List() FieldOption { return func(f *Field) { f.Repeated = true } }

// NonNullList wraps the field type in a list that is itself non-null.
func NonNullList() FieldOption {
	return func(f *Field) {
		f.Repeated = true
		f.ListNonNull = true
	}
}

// NewBlock creates a detached block. Registry is the usual way to obtain one.
func NewBlock(kind Kind, name string, extend bool) (*Block, error) {
	if !kind.valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}
	return &Block{Name: name, Kind: kind, Extend: extend, index: map[string]int{}}, nil
}

// AddField appends a plain field. Enum blocks ignore ref and store the bare
// member name.
func (b *Block) AddField(name string, ref *TypeRef, opts ...FieldOption) (*Field, error) {
	if _, ok := b.index[name]; ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrDuplicateField, b.Name, name)
	}
	if b.Kind == KindEnum {
		return b.append(&Field{Name: name, Nullable: true}), nil
	}
	if ref == nil {
		return nil, fmt.Errorf("%w: %s.%s", ErrMissingResponseType, b.Name, name)
	}
	f := &Field{Name: name, Type: ref, Nullable: true}
	for _, o := range opts {
		o(f)
	}
	return b.append(f), nil
}

// AddFieldWithParams appends a field taking arguments. Each parameter type
// must be a scalar, a raw type name, or an input or enum block.
func (b *Block) AddFieldWithParams(name string, params []*Param, ref *TypeRef, opts ...FieldOption) (*Field, error) {
	if _, ok := b.index[name]; ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrDuplicateField, b.Name, name)
	}
	if ref == nil {
		return nil, fmt.Errorf("%w: %s.%s", ErrMissingResponseType, b.Name, name)
	}
	for _, p := range params {
		if err := checkParam(p); err != nil {
			return nil, fmt.Errorf("%s.%s(%s): %w", b.Name, name, p.Name, err)
		}
	}
	f := &Field{Name: name, Type: ref, Nullable: true, Params: params}
	if f.Params == nil {
		f.Params = []*Param{}
	}
	for _, o := range opts {
		o(f)
	}
	return b.append(f), nil
}

func checkParam(p *Param) error {
	if p == nil || p.Type == nil {
		return ErrInvalidParamType
	}
	switch p.Type.Kind {
	case TypeRefKindScalar, TypeRefKindMessage:
		return nil
	case TypeRefKindBlock:
		if p.Type.Block == nil {
			return ErrInvalidParamType
		}
		if k := p.Type.Block.Kind; k != KindInput && k != KindEnum {
			return fmt.Errorf("%w: %s is a %s", ErrInvalidParamType, p.Type.Block.Name, k)
		}
		return nil
	}
	return ErrInvalidParamType
}

func (b *Block) append(f *Field) *Field {
	if b.index == nil {
		b.index = map[string]int{}
	}
	b.index[f.Name] = len(b.fields)
	b.fields = append(b.fields, f)
	return f
}

// Field returns the named field or nil.
func (b *Block) Field(name string) *Field {
	i, ok := b.index[name]
	if !ok {
		return nil
	}
	return b.fields[i]
}

// Fields returns the fields in insertion order.
func (b *Block) Fields() []*Field {
	out := make([]*Field, len(b.fields))
	copy(out, b.fields)
	return out
}

// Len returns the number of fields.
func (b *Block) Len() int { return len(b.fields) }
