package executor

import (
	"context"
)

// Runtime defines the host integration surface for field resolution, batching
// and leaf-value serialization used by the Executor.
//
// General contract
//   - The Executor performs a breadth-first execution. At each depth it drains all
//     synchronous fields first via ResolveSync, then calls BatchResolveAsync ONCE
//     with all async tasks collected at that depth. The next depth does not begin
//     until BatchResolveAsync returns and those results are completed.
//   - IsAsync classifies a field. ResolveSync is never invoked for async fields,
//     and BatchResolveAsync is only invoked when there is at least one async
//     field at the current depth.
//   - Errors returned from any method are converted into located GraphQL errors.
//     If the field's return type is Non-Null, the Executor propagates the null
//     up to the nearest nullable ancestor.
//   - Implementations must be concurrency-safe and must not mutate source or
//     args values.
//
// Object/field identifiers
//   - objectType is the GraphQL type name (e.g. "Greeter_query").
//   - field is the GraphQL field name on that type (e.g. "SayHello").
//   - For root fields, objectType is the root type name (e.g. "Query").
//   - source is the parent object value (nil for root).
//   - args is the map of argument names to already-coerced Go values.
//
// Partial success and determinism
//   - BatchResolveAsync must return one AsyncResolveResult per task, in task
//     order. Failures in one result do not affect others.
type Runtime interface {
	// IsAsync reports whether a field needs remote I/O. Async fields are
	// batched per depth; everything else is resolved in place.
	IsAsync(objectType, field string) bool

	// ResolveSync resolves a synchronous field value immediately. Return
	// (nil, nil) to produce a GraphQL null for nullable fields.
	ResolveSync(ctx context.Context, objectType string, field string, source any, args map[string]any) (any, error)

	// BatchResolveAsync resolves one execution depth of async field tasks.
	// Requirements:
	// - Return len(results) == len(tasks).
	// - results[i] corresponds to tasks[i].
	// - Return independent errors per element without failing the whole batch.
	BatchResolveAsync(ctx context.Context, tasks []AsyncResolveTask) []AsyncResolveResult

	// SerializeLeafValue serializes a scalar or enum value to a JSON-safe Go
	// value. For enums, return the symbolic name as string; bytes should be
	// base64-encoded strings.
	SerializeLeafValue(ctx context.Context, scalarOrEnumTypeName string, value any) (any, error)
}

type AsyncResolveTask struct {
	// ObjectType is the parent GraphQL object type name for the field.
	ObjectType string
	// Field is the GraphQL field name to resolve.
	Field string
	// Source is the parent object value (nil for root fields).
	Source any
	// Args are the field arguments, coerced to Go values per the schema.
	Args map[string]any
}

type AsyncResolveResult struct {
	// Value is the resolved raw value prior to completion, or nil on error.
	Value any
	// Error contains a failure specific to this element; other elements in the
	// same batch are unaffected.
	Error error
}
