package schema

import (
	"fmt"
	"strings"
)

// Root type names.
const (
	QueryType        = "Query"
	MutationType     = "Mutation"
	SubscriptionType = "Subscription"
)

// PlaceholderField is the field seeded into every base root type so that the
// root types are never empty.
const PlaceholderField = "_"

// Registry owns the root types of one conversion run and every block
// synthesized during that run. Create one per run.
type Registry struct {
	roots      [3]*Block // base Query, Mutation, Subscription
	extensions [3]*Block // extend type Query, Mutation, Subscription

	blocks []*Block
	byName map[string]*Block
}

// NewRegistry returns a registry with fresh root and extension blocks.
func NewRegistry() *Registry {
	r := &Registry{byName: map[string]*Block{}}
	for i, name := range []string{QueryType, MutationType, SubscriptionType} {
		root := &Block{Name: name, Kind: KindType, index: map[string]int{}}
		root.append(&Field{Name: PlaceholderField, Type: ScalarRef(String), Nullable: true})
		r.roots[i] = root
		r.extensions[i] = &Block{Name: name, Kind: KindType, Extend: true, index: map[string]int{}}
	}
	return r
}

// CreateType registers a new object type block.
func (r *Registry) CreateType(name string) (*Block, error) { return r.Create(KindType, name) }

// CreateInput registers a new input block.
func (r *Registry) CreateInput(name string) (*Block, error) { return r.Create(KindInput, name) }

// CreateEnum registers a new enum block.
func (r *Registry) CreateEnum(name string) (*Block, error) { return r.Create(KindEnum, name) }

// Create registers a new block of the given kind.
func (r *Registry) Create(kind Kind, name string) (*Block, error) {
	if _, ok := r.byName[name]; ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateBlock, name)
	}
	b, err := NewBlock(kind, name, false)
	if err != nil {
		return nil, err
	}
	r.byName[name] = b
	r.blocks = append(r.blocks, b)
	return b, nil
}

// Get returns the registered block with the given name, or nil.
func (r *Registry) Get(name string) *Block { return r.byName[name] }

// Blocks returns the registered blocks in registration order.
func (r *Registry) Blocks() []*Block {
	out := make([]*Block, len(r.blocks))
	copy(out, r.blocks)
	return out
}

// Query returns the extension block merged into the root Query type.
func (r *Registry) Query() *Block { return r.extensions[0] }

// Mutation returns the extension block merged into the root Mutation type.
func (r *Registry) Mutation() *Block { return r.extensions[1] }

// Subscription returns the extension block merged into the root Subscription type.
func (r *Registry) Subscription() *Block { return r.extensions[2] }

// AddToQuery adds a field to the Query extension.
func (r *Registry) AddToQuery(name string, params []*Param, ref *TypeRef, opts ...FieldOption) (*Field, error) {
	return r.Query().AddFieldWithParams(name, params, ref, opts...)
}

// AddToMutation adds a field to the Mutation extension.
func (r *Registry) AddToMutation(name string, params []*Param, ref *TypeRef, opts ...FieldOption) (*Field, error) {
	return r.Mutation().AddFieldWithParams(name, params, ref, opts...)
}

// AddToSubscription adds a field to the Subscription extension.
func (r *Registry) AddToSubscription(name string, params []*Param, ref *TypeRef, opts ...FieldOption) (*Field, error) {
	return r.Subscription().AddFieldWithParams(name, params, ref, opts...)
}

// Empty reports whether no real field was produced: every registered block
// and every root extension is empty.
func (r *Registry) Empty() bool {
	for _, b := range r.blocks {
		if b.Len() > 0 {
			return false
		}
	}
	for _, ext := range r.extensions {
		if ext.Len() > 0 {
			return false
		}
	}
	return true
}

// SDL assembles the schema document: base root types, registered blocks
// with at least one field in registration order, then the non-empty root
// extensions. ok is false when there is no schema to emit.
func (r *Registry) SDL() (sdl string, ok bool) {
	if r.Empty() {
		return "", false
	}
	var sb strings.Builder
	for _, root := range r.roots {
		renderBlock(&sb, root)
	}
	for _, b := range r.blocks {
		if b.Len() == 0 {
			continue
		}
		renderBlock(&sb, b)
	}
	for _, ext := range r.extensions {
		if ext.Len() == 0 {
			continue
		}
		renderBlock(&sb, ext)
	}
	return sb.String(), true
}
