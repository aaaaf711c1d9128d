// Package prototest builds small descriptor sets used as fixtures across the
// module's tests.
package prototest

import (
	"strings"
	"testing"

	"github.com/jhump/protoreflect/v2/protobuilder"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
)

// Files registers the given file descriptors in a fresh registry.
func Files(t testing.TB, fds ...protoreflect.FileDescriptor) *protoregistry.Files {
	t.Helper()
	files := new(protoregistry.Files)
	for _, fd := range fds {
		if err := files.RegisterFile(fd); err != nil {
			t.Fatalf("register %s: %v", fd.Path(), err)
		}
	}
	return files
}

// FileDescriptorSet converts the given file descriptors, in order, into a
// FileDescriptorSet as written by protoc --descriptor_set_out.
func FileDescriptorSet(fds ...protoreflect.FileDescriptor) *descriptorpb.FileDescriptorSet {
	set := &descriptorpb.FileDescriptorSet{}
	for _, fd := range fds {
		set.File = append(set.File, protodesc.ToFileDescriptorProto(fd))
	}
	return set
}

// Helloworld is the canonical greeter:
//
//	package helloworld;
//	service Greeter { rpc SayHello(HelloRequest) returns (HelloReply); }
func Helloworld(t testing.TB) protoreflect.FileDescriptor {
	t.Helper()
	fb := newFile("helloworld/helloworld.proto", "helloworld", protoreflect.Proto3)

	req := message("HelloRequest", field("name", scalar(protoreflect.StringKind)))
	req.SetComments(comment("The request message containing the user's name."))
	reply := message("HelloReply", field("message", scalar(protoreflect.StringKind)))
	reply.SetComments(comment("The response message containing the greetings."))
	fb.AddMessage(req)
	fb.AddMessage(reply)

	svc := protobuilder.NewService("Greeter")
	svc.SetComments(comment("The greeting service definition."))
	svc.AddMethod(unary("SayHello", req, reply))
	fb.AddService(svc)
	return build(t, fb)
}

// Calculator has one service whose request carries a repeated scalar.
func Calculator(t testing.TB) protoreflect.FileDescriptor {
	t.Helper()
	fb := newFile("calculator/calculator.proto", "calculator", protoreflect.Proto3)

	req := message("SumRequest", repeated(field("values", scalar(protoreflect.Int32Kind))))
	reply := message("SumReply",
		field("total", scalar(protoreflect.Int64Kind)),
		field("average", scalar(protoreflect.DoubleKind)),
	)
	fb.AddMessage(req)
	fb.AddMessage(reply)

	svc := protobuilder.NewService("Calculator")
	svc.AddMethod(unary("Sum", req, reply))
	fb.AddService(svc)
	return build(t, fb)
}

// OtherGreeter lives in a dotted package and reuses the helloworld message
// names.
func OtherGreeter(t testing.TB) protoreflect.FileDescriptor {
	t.Helper()
	fb := newFile("other/v1/greeter.proto", "other.v1", protoreflect.Proto3)

	req := message("HelloRequest", field("text", scalar(protoreflect.StringKind)))
	reply := message("HelloReply", field("echo", scalar(protoreflect.StringKind)))
	fb.AddMessage(req)
	fb.AddMessage(reply)

	svc := protobuilder.NewService("Greeter")
	svc.AddMethod(unary("Echo", req, reply))
	fb.AddService(svc)
	return build(t, fb)
}

// Graph is a proto2 file exercising cycles, nested types, nested enums with
// clashing names, a top-level enum, required and repeated labels, an empty
// message and a streaming method:
//
//	enum Color { RED = 0; GREEN = 1; }
//	message Node {
//	  enum Status { ACTIVE = 0; INACTIVE = 1; }
//	  message Meta { optional string note = 1; }
//	  required string id = 1;
//	  repeated Node children = 2;
//	  optional Edge edge = 3;
//	  optional Status status = 4;
//	  optional Meta meta = 5;
//	  optional Color color = 6;
//	}
//	message Edge {
//	  enum Status { OPEN = 0; CLOSED = 1; }
//	  optional Node from = 1;
//	  optional Node to = 2;
//	  optional Status status = 3;
//	  repeated double weights = 4;
//	}
//	message NodeRequest { required string id = 1; optional Color color = 2; }
//	message Empty {}
//	service Graph {
//	  rpc GetNode(NodeRequest) returns (Node);
//	  rpc Ping(Empty) returns (Empty);
//	  rpc Watch(NodeRequest) returns (stream Node);
//	}
func Graph(t testing.TB) protoreflect.FileDescriptor {
	t.Helper()
	fb := newFile("graph/graph.proto", "graph", protoreflect.Proto2)

	color := enum("Color", "RED", "GREEN")
	fb.AddEnum(color)

	node := protobuilder.NewMessage("Node")
	edge := protobuilder.NewMessage("Edge")

	nodeStatus := enum("Status", "ACTIVE", "INACTIVE")
	meta := message("Meta", optional(field("note", scalar(protoreflect.StringKind))))
	node.AddNestedEnum(nodeStatus)
	node.AddNestedMessage(meta)
	addFields(node,
		required(field("id", scalar(protoreflect.StringKind))),
		repeated(field("children", protobuilder.FieldTypeMessage(node))),
		optional(field("edge", protobuilder.FieldTypeMessage(edge))),
		optional(field("status", protobuilder.FieldTypeEnum(nodeStatus))),
		optional(field("meta", protobuilder.FieldTypeMessage(meta))),
		optional(field("color", protobuilder.FieldTypeEnum(color))),
	)

	edgeStatus := enum("Status", "OPEN", "CLOSED")
	edge.AddNestedEnum(edgeStatus)
	addFields(edge,
		optional(field("from", protobuilder.FieldTypeMessage(node))),
		optional(field("to", protobuilder.FieldTypeMessage(node))),
		optional(field("status", protobuilder.FieldTypeEnum(edgeStatus))),
		repeated(field("weights", scalar(protoreflect.DoubleKind))),
	)

	req := message("NodeRequest",
		required(field("id", scalar(protoreflect.StringKind))),
		optional(field("color", protobuilder.FieldTypeEnum(color))),
	)
	empty := protobuilder.NewMessage("Empty")
	for _, mb := range []*protobuilder.MessageBuilder{node, edge, req, empty} {
		fb.AddMessage(mb)
	}

	svc := protobuilder.NewService("Graph")
	svc.AddMethod(unary("GetNode", req, node))
	svc.AddMethod(unary("Ping", empty, empty))
	svc.AddMethod(protobuilder.NewMethod("Watch",
		protobuilder.RpcTypeMessage(req, false),
		protobuilder.RpcTypeMessage(node, true),
	))
	fb.AddService(svc)
	return build(t, fb)
}

func newFile(path, pkg string, syntax protoreflect.Syntax) *protobuilder.FileBuilder {
	fb := protobuilder.NewFile(path)
	fb.SetPackageName(protoreflect.FullName(pkg))
	fb.SetSyntax(syntax)
	return fb
}

func build(t testing.TB, fb *protobuilder.FileBuilder) protoreflect.FileDescriptor {
	t.Helper()
	fd, err := fb.Build()
	if err != nil {
		t.Fatalf("build fixture: %v", err)
	}
	return fd
}

func scalar(kind protoreflect.Kind) *protobuilder.FieldType {
	return protobuilder.FieldTypeScalar(kind)
}

func field(name string, typ *protobuilder.FieldType) *protobuilder.FieldBuilder {
	return protobuilder.NewField(protoreflect.Name(name), typ)
}

func optional(fb *protobuilder.FieldBuilder) *protobuilder.FieldBuilder {
	fb.SetOptional()
	return fb
}

func required(fb *protobuilder.FieldBuilder) *protobuilder.FieldBuilder {
	fb.SetRequired()
	return fb
}

func repeated(fb *protobuilder.FieldBuilder) *protobuilder.FieldBuilder {
	fb.SetRepeated()
	return fb
}

func message(name string, fields ...*protobuilder.FieldBuilder) *protobuilder.MessageBuilder {
	mb := protobuilder.NewMessage(protoreflect.Name(name))
	addFields(mb, fields...)
	return mb
}

// addFields appends fields numbered from 1 in declaration order.
func addFields(mb *protobuilder.MessageBuilder, fields ...*protobuilder.FieldBuilder) {
	for i, fb := range fields {
		fb.SetNumber(protoreflect.FieldNumber(i + 1))
		mb.AddField(fb)
	}
}

// enum numbers values from 0 in declaration order.
func enum(name string, values ...string) *protobuilder.EnumBuilder {
	eb := protobuilder.NewEnum(protoreflect.Name(name))
	for i, v := range values {
		evb := protobuilder.NewEnumValue(protoreflect.Name(v))
		evb.SetNumber(protoreflect.EnumNumber(i))
		eb.AddValue(evb)
	}
	return eb
}

func unary(name string, req, resp *protobuilder.MessageBuilder) *protobuilder.MethodBuilder {
	return protobuilder.NewMethod(protoreflect.Name(name),
		protobuilder.RpcTypeMessage(req, false),
		protobuilder.RpcTypeMessage(resp, false),
	)
}

func comment(desc string) protobuilder.Comments {
	lines := strings.Split(desc, "\n")
	for i, line := range lines {
		lines[i] = " " + line
	}
	return protobuilder.Comments{LeadingComment: strings.Join(lines, "\n") + "\n"}
}
