package convert_test

import (
	"context"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/hanpama/protogql/internal/convert"
	"github.com/hanpama/protogql/internal/eventbus"
	"github.com/hanpama/protogql/internal/events"
	"github.com/hanpama/protogql/internal/language"
	"github.com/hanpama/protogql/internal/protoreg"
	"github.com/hanpama/protogql/internal/prototest"
	"github.com/hanpama/protogql/internal/routing"
	"github.com/hanpama/protogql/internal/typemap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/reflect/protoreflect"
)

func treeOf(t *testing.T, fds ...protoreflect.FileDescriptor) *protoreg.Tree {
	t.Helper()
	tree, err := protoreg.FromFileDescriptors(fds...)
	require.NoError(t, err)
	return tree
}

func configOf(t *testing.T, doc string) *routing.Config {
	t.Helper()
	cfg, err := routing.Decode(strings.NewReader(doc))
	require.NoError(t, err)
	return cfg
}

// mustSDL converts and checks that the result is a valid schema.
func mustSDL(t *testing.T, tree *protoreg.Tree, cfg *routing.Config) string {
	t.Helper()
	sdl, ok, err := convert.SDL(context.Background(), tree, cfg)
	require.NoError(t, err)
	require.True(t, ok, "expected a schema")
	_, err = language.LoadSchema("schema.graphql", sdl)
	require.NoError(t, err, sdl)
	return sdl
}

func TestHelloworld(t *testing.T) {
	tree := treeOf(t, prototest.Helloworld(t))
	cfg := configOf(t, "helloworld:\n  Greeter: {}\n")

	want := `type Query {
  _: String
}
type Mutation {
  _: String
}
type Subscription {
  _: String
}
input HelloRequest {
  name: String
}
type HelloReply {
  message: String
}
type Greeter_query {
  SayHello(request: HelloRequest): HelloReply
}
type Greeter_mutate {
  SayHello(request: HelloRequest): HelloReply
}
type helloworld_query {
  Greeter: Greeter_query
}
type helloworld_mutate {
  Greeter: Greeter_mutate
}
extend type Query {
  helloworld: helloworld_query
}
extend type Mutation {
  helloworld: helloworld_mutate
}
`
	got := mustSDL(t, tree, cfg)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("SDL mismatch (-want +got):\n%s", diff)
	}
}

func TestIdempotence(t *testing.T) {
	tree := treeOf(t, prototest.Helloworld(t), prototest.Graph(t), prototest.OtherGreeter(t))
	cfg := configOf(t, `
helloworld: {Greeter: {}}
graph: {Graph: {}}
other.v1: {Greeter: {}}
`)
	first := mustSDL(t, tree, cfg)
	second := mustSDL(t, tree, cfg)
	assert.Equal(t, first, second)
}

func TestQueryGating(t *testing.T) {
	tree := treeOf(t, prototest.Helloworld(t), prototest.Calculator(t))
	cfg := configOf(t, `
- package: helloworld
  services:
    - service: Greeter
- package: calculator
  services:
    - service: Calculator
      query: false
`)
	sdl := mustSDL(t, tree, cfg)

	schema, err := language.LoadSchema("schema.graphql", sdl)
	require.NoError(t, err)

	assert.NotNil(t, schema.Query.Fields.ForName("helloworld"))
	assert.Nil(t, schema.Query.Fields.ForName("calculator"))
	assert.Nil(t, schema.Types["calculator_query"])
	assert.Nil(t, schema.Types["Calculator_query"])

	require.NotNil(t, schema.Mutation.Fields.ForName("calculator"))
	mutate := schema.Types["calculator_mutate"]
	require.NotNil(t, mutate)
	calc := mutate.Fields.ForName("Calculator")
	require.NotNil(t, calc)
	assert.Equal(t, "Calculator_mutate", calc.Type.Name())
	assert.NotNil(t, schema.Types["Calculator_mutate"].Fields.ForName("Sum"))

	assert.Contains(t, sdl, "input SumRequest {\n  values: [Int]\n}\n")
}

func TestGRPCOnlySuppression(t *testing.T) {
	tree := treeOf(t, prototest.Helloworld(t), prototest.Calculator(t))
	cfg := configOf(t, `
helloworld:
  Greeter: {}
calculator:
  Calculator: {query: false, mutate: false}
`)
	res, err := convert.Convert(context.Background(), tree, cfg)
	require.NoError(t, err)

	sdl, ok := res.Registry.SDL()
	require.True(t, ok)
	for _, absent := range []string{"calculator", "Calculator_query", "Calculator_mutate", "SumRequest", "SumReply"} {
		assert.NotContains(t, sdl, absent)
	}
	require.Len(t, res.Services, 1)
	assert.Equal(t, "Greeter", res.Services[0].Service.Name)

	t.Run("only grpcOnly services", func(t *testing.T) {
		cfg := configOf(t, "calculator:\n  Calculator: {grpcOnly: true}\n")
		sdl, ok, err := convert.SDL(context.Background(), tree, cfg)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Empty(t, sdl)
	})
}

func TestUnconfiguredServicesAreSkipped(t *testing.T) {
	tree := treeOf(t, prototest.Helloworld(t))
	cfg := configOf(t, "helloworld:\n  NotThere: {}\n")
	_, ok, err := convert.SDL(context.Background(), tree, cfg)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMethodSelection(t *testing.T) {
	tree, err := protoreg.DecodeTree(strings.NewReader(`
shop:
  Item:
    type:
      field: [{name: id, type: TYPE_STRING}]
  Shop:
    service:
      Get: {requestType: Item, responseType: Item}
      Put: {requestType: Item, responseType: Item}
      Both: {requestType: Item, responseType: Item}
      Drop: {requestType: Item, responseType: Item}
`))
	require.NoError(t, err)
	cfg := configOf(t, `
shop:
  Shop:
    query: [Get]
    mutate: [Put]
    exclude: [Drop]
`)
	res, err := convert.Convert(context.Background(), tree, cfg)
	require.NoError(t, err)

	query := res.Registry.Get("Shop_query")
	mutate := res.Registry.Get("Shop_mutate")
	require.NotNil(t, query)
	require.NotNil(t, mutate)
	assert.Equal(t, "type Shop_query {\n  Get(request: ItemInput): Item\n  Both(request: ItemInput): Item\n}\n", query.SDL())
	assert.Equal(t, "type Shop_mutate {\n  Put(request: ItemInput): Item\n  Both(request: ItemInput): Item\n}\n", mutate.SDL())

	require.Len(t, res.Services, 1)
	var got []string
	for _, m := range res.Services[0].Methods {
		got = append(got, m.Method.Name)
	}
	assert.Equal(t, []string{"Get", "Put", "Both"}, got)
}

func TestEmptySurfaceIsNotAttached(t *testing.T) {
	tree := treeOf(t, prototest.Calculator(t))
	cfg := configOf(t, "calculator:\n  Calculator: {mutate: [Sum]}\n")
	sdl := mustSDL(t, tree, cfg)

	assert.NotContains(t, sdl, "calculator_query")
	assert.NotContains(t, sdl, "Calculator_query")
	assert.Contains(t, sdl, "extend type Mutation {\n  calculator: calculator_mutate\n}\n")
}

func TestGraph(t *testing.T) {
	tree := treeOf(t, prototest.Graph(t))
	cfg := configOf(t, "graph:\n  Graph: {}\n")

	res, err := convert.Convert(context.Background(), tree, cfg)
	require.NoError(t, err)
	sdl, ok := res.Registry.SDL()
	require.True(t, ok)
	_, err = language.LoadSchema("graph.graphql", sdl)
	require.NoError(t, err, sdl)

	blocks := map[string]string{
		"Color":       "enum Color {\n  RED\n  GREEN\n}\n",
		"NodeRequest": "input NodeRequest {\n  id: String!\n  color: Color\n}\n",
		"Node_Status": "enum Node_Status {\n  ACTIVE\n  INACTIVE\n}\n",
		"Edge_Status": "enum Edge_Status {\n  OPEN\n  CLOSED\n}\n",
		"Edge":        "type Edge {\n  from: Node\n  to: Node\n  status: Edge_Status\n  weights: [Float]\n}\n",
		"Node_Meta":   "type Node_Meta {\n  note: String\n}\n",
		"Node": "type Node {\n  id: String!\n  children: [Node]\n  edge: Edge\n  status: Node_Status\n" +
			"  meta: Node_Meta\n  color: Color\n}\n",
		"EmptyInput": "input EmptyInput {\n  _: Boolean\n}\n",
		"Empty":      "type Empty {\n  _: Boolean\n}\n",
		"Graph_query": "type Graph_query {\n  GetNode(request: NodeRequest): Node\n  Ping(request: EmptyInput): Empty\n" +
			"  Watch(request: NodeRequest): Node\n}\n",
	}
	for name, want := range blocks {
		t.Run(name, func(t *testing.T) {
			b := res.Registry.Get(name)
			require.NotNil(t, b)
			assert.Equal(t, want, b.SDL())
		})
	}

	t.Run("each type is emitted once", func(t *testing.T) {
		for _, decl := range []string{"type Node {", "type Edge {", "enum Color {", "input NodeRequest {"} {
			assert.Equal(t, 1, strings.Count(sdl, decl), decl)
		}
	})

	t.Run("children are registered before parents", func(t *testing.T) {
		var order []string
		for _, b := range res.Registry.Blocks() {
			order = append(order, b.Name)
		}
		assert.Less(t, indexOf(order, "Edge"), indexOf(order, "Node"))
		assert.Less(t, indexOf(order, "Node_Meta"), indexOf(order, "Node"))
		assert.Less(t, indexOf(order, "Color"), indexOf(order, "NodeRequest"))
	})
}

func indexOf(names []string, name string) int {
	for i, n := range names {
		if n == name {
			return i
		}
	}
	return -1
}

func TestMutualRecursion(t *testing.T) {
	tree, err := protoreg.DecodeTree(strings.NewReader(`
loop:
  A:
    type:
      field: [{name: b, type: TYPE_MESSAGE, typeName: B}]
  B:
    type:
      field:
        - {name: a, type: TYPE_MESSAGE, typeName: A}
        - {name: as, type: TYPE_MESSAGE, typeName: A, label: LABEL_REPEATED}
  Loop:
    service:
      Walk: {requestType: A, responseType: B}
`))
	require.NoError(t, err)
	cfg := configOf(t, "loop:\n  Loop: {mutate: false}\n")

	sdl := mustSDL(t, tree, cfg)
	for _, decl := range []string{"input AInput {", "input BInput {", "type A {", "type B {"} {
		assert.Equal(t, 1, strings.Count(sdl, decl), decl)
	}
	assert.Contains(t, sdl, "type Loop_query {\n  Walk(request: AInput): B\n}\n")
	assert.Contains(t, sdl, "input AInput {\n  b: BInput\n}\n")
	assert.Contains(t, sdl, "input BInput {\n  a: AInput\n  as: [AInput]\n}\n")
	assert.Contains(t, sdl, "type B {\n  a: A\n  as: [A]\n}\n")
}

func TestNamingCollisions(t *testing.T) {
	tree := treeOf(t, prototest.Helloworld(t), prototest.OtherGreeter(t))
	cfg := configOf(t, `
helloworld: {Greeter: {}}
other.v1: {Greeter: {mutate: false}}
`)
	res, err := convert.Convert(context.Background(), tree, cfg)
	require.NoError(t, err)
	sdl, ok := res.Registry.SDL()
	require.True(t, ok)
	_, err = language.LoadSchema("schema.graphql", sdl)
	require.NoError(t, err, sdl)

	assert.Equal(t, "type other_v1_Greeter_query {\n  Echo(request: other_v1_HelloRequest): other_v1_HelloReply\n}\n",
		res.Registry.Get("other_v1_Greeter_query").SDL())
	assert.Equal(t, "type other_v1_query {\n  Greeter: other_v1_Greeter_query\n}\n",
		res.Registry.Get("other_v1_query").SDL())
	assert.Contains(t, sdl, "extend type Query {\n  helloworld: helloworld_query\n  other_v1: other_v1_query\n}\n")

	require.Len(t, res.Services, 2)
	assert.Equal(t, "other_v1", res.Services[1].PackageKey)
	assert.Equal(t, "other_v1_Greeter_query", res.Services[1].QueryType)
	assert.Empty(t, res.Services[1].MutationType)

	t.Run("types never take namespace names", func(t *testing.T) {
		tree, err := protoreg.DecodeTree(strings.NewReader(`
hw:
  Greeter_query:
    type:
      field: [{name: x, type: TYPE_BOOL}]
  Query:
    type:
      field: [{name: y, type: TYPE_BOOL}]
  Greeter:
    service:
      Say: {requestType: Query, responseType: Greeter_query}
`))
		require.NoError(t, err)
		sdl := mustSDL(t, tree, configOf(t, "hw: {Greeter: {}}\n"))
		assert.Contains(t, sdl, "type hw_Greeter_query {\n  x: Boolean\n}\n")
		assert.Contains(t, sdl, "input hw_Query {\n  y: Boolean\n}\n")
		assert.Contains(t, sdl, "type Greeter_query {\n  Say(request: hw_Query): hw_Greeter_query\n}\n")
	})
}

func TestErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown package", func(t *testing.T) {
		tree := treeOf(t, prototest.Helloworld(t))
		_, err := convert.Convert(ctx, tree, configOf(t, "nowhere: {Greeter: {}}\n"))
		require.ErrorIs(t, err, convert.ErrConfiguration)
		require.ErrorIs(t, err, convert.ErrUnknownPackage)
	})

	t.Run("missing routing configuration", func(t *testing.T) {
		var starts int
		bus := eventbus.New()
		eventbus.Use(bus)
		t.Cleanup(func() { eventbus.Use(nil) })
		eventbus.SubscribeTo(bus, func(context.Context, events.ConversionStart) { starts++ })

		_, err := convert.Convert(ctx, protoreg.NewTree(), nil)
		require.ErrorIs(t, err, convert.ErrConfiguration)
		require.ErrorIs(t, err, convert.ErrMissingConfig)
		assert.Zero(t, starts)
	})

	t.Run("missing descriptor tree", func(t *testing.T) {
		_, err := convert.Convert(ctx, nil, configOf(t, "helloworld: {Greeter: {}}\n"))
		require.ErrorIs(t, err, convert.ErrConfiguration)
		require.ErrorIs(t, err, convert.ErrMissingTree)

		_, _, err = convert.SDL(ctx, nil, nil)
		require.ErrorIs(t, err, convert.ErrMissingConfig)
	})

	t.Run("invalid routing configuration", func(t *testing.T) {
		tree := treeOf(t, prototest.Helloworld(t))
		cfg := &routing.Config{Packages: []*routing.Package{{Package: ""}}}
		_, err := convert.Convert(ctx, tree, cfg)
		require.ErrorIs(t, err, convert.ErrConfiguration)
		require.ErrorIs(t, err, routing.ErrInvalidConfig)
	})

	t.Run("unresolved field type", func(t *testing.T) {
		tree, err := protoreg.DecodeTree(strings.NewReader(`
p:
  Req:
    type:
      field: [{name: at, type: TYPE_MESSAGE, typeName: google.protobuf.Timestamp}]
  S:
    service:
      M: {requestType: Req, responseType: Req}
`))
		require.NoError(t, err)
		_, err = convert.Convert(ctx, tree, configOf(t, "p: {S: {}}\n"))
		require.ErrorIs(t, err, convert.ErrDataIntegrity)
		require.ErrorIs(t, err, convert.ErrUnresolvedType)
	})

	t.Run("unresolved method type", func(t *testing.T) {
		tree, err := protoreg.DecodeTree(strings.NewReader("p:\n  S:\n    service:\n      M: {requestType: Nope, responseType: Nope}\n"))
		require.NoError(t, err)
		_, err = convert.Convert(ctx, tree, configOf(t, "p: {S: {}}\n"))
		require.ErrorIs(t, err, convert.ErrDataIntegrity)
	})

	t.Run("unknown scalar without type name", func(t *testing.T) {
		tree, err := protoreg.DecodeTree(strings.NewReader(`
p:
  Req:
    type:
      field: [{name: blob, type: TYPE_MYSTERY}]
  S:
    service:
      M: {requestType: Req, responseType: Req}
`))
		require.NoError(t, err)
		_, err = convert.Convert(ctx, tree, configOf(t, "p: {S: {}}\n"))
		require.ErrorIs(t, err, convert.ErrDataIntegrity)
		require.ErrorIs(t, err, typemap.ErrUnknownResponseType)
	})
}

func TestConversionEvents(t *testing.T) {
	eventbus.Use(eventbus.New())
	t.Cleanup(func() { eventbus.Use(nil) })

	var started []events.ConversionStart
	var finished []events.ConversionFinish
	defer eventbus.Subscribe(func(_ context.Context, e events.ConversionStart) { started = append(started, e) })()
	defer eventbus.Subscribe(func(_ context.Context, e events.ConversionFinish) { finished = append(finished, e) })()

	tree := treeOf(t, prototest.Helloworld(t))
	_, err := convert.Convert(context.Background(), tree, configOf(t, "helloworld: {Greeter: {}}\n"))
	require.NoError(t, err)

	require.Len(t, started, 1)
	assert.Equal(t, 1, started[0].Packages)
	require.Len(t, finished, 1)
	assert.Equal(t, 1, finished[0].Services)
	assert.Equal(t, 1, finished[0].Methods)
	assert.Equal(t, 6, finished[0].Blocks)
	assert.False(t, finished[0].Empty)
	assert.NoError(t, finished[0].Err)

	_, err = convert.Convert(context.Background(), tree, configOf(t, "missing: {Greeter: {}}\n"))
	require.Error(t, err)
	require.Len(t, finished, 2)
	assert.ErrorIs(t, finished[1].Err, convert.ErrUnknownPackage)
}
