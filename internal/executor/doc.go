// Package executor runs GraphQL operations against a converted protobuf
// schema, one RPC batch per level of method nesting.
//
// A converted schema has two kinds of object fields. Namespace fields
// (Query.helloworld, helloworld_query.Greeter) and message fields read from a
// response are answered in memory. Method fields (Greeter_query.SayHello) need
// a backend call. The executor asks Runtime.IsAsync which kind a field is and
// treats them differently:
//
//   - Namespace and message fields go through Runtime.ResolveSync as soon as
//     they are reached. Their object values are expanded on the spot, so a
//     query like { helloworld { Greeter { SayHello(...) } } } reaches the
//     method field without spending a round.
//   - Method fields become AsyncResolveTasks. Every task found while expanding
//     the current level is handed to Runtime.BatchResolveAsync in one call,
//     which returns one result per task in task order.
//
// Selections under a method response are expanded after the batch returns.
// Method fields nested inside them wait for the next batch, so a document
// whose deepest chain crosses d method fields makes exactly d batch calls.
//
// # Running an operation
//
// ExecuteRequest picks the operation (by name, or the only one when unnamed),
// coerces variables against its definitions and selects the root type. Bad
// variables or an unknown operation return errors without touching the
// runtime. Documents are expected to have been validated by gqlparser against
// the same *language.Schema, with root extensions already merged.
//
// # Completion and errors
//
// Leaves (scalars and enums) are serialized by Runtime.SerializeLeafValue;
// bytes become base64 strings there. Lists complete element by element with
// indexed paths. A null or an error on a Non-Null position nulls the nearest
// nullable ancestor, and tasks still queued below that path are dropped
// before the next batch. Errors carry the response path and never abort
// sibling fields, so one failing RPC in a batch leaves the others intact.
//
// Interfaces and unions are never produced by conversion; fragments match
// only when their type condition names the concrete object type.
package executor
