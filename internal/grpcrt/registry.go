package grpcrt

import "github.com/hanpama/protogql/internal/binding"

// Registry maps GraphQL fields to their bindings. *binding.Table satisfies it.
type Registry interface {
	// Lookup returns the binding of objectType.field, or nil for fields read
	// from a parent message.
	Lookup(objectType, field string) *binding.Entry
}
