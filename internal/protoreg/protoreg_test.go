package protoreg_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hanpama/protogql/internal/protoreg"
	"github.com/hanpama/protogql/internal/prototest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
)

func TestFromFiles(t *testing.T) {
	files := prototest.Files(t, prototest.Helloworld(t), prototest.Graph(t))
	tree, err := protoreg.FromFiles(files)
	require.NoError(t, err)

	require.Len(t, tree.Files, 2)
	assert.Equal(t, "graph/graph.proto", tree.Files[0].Path(), "files are ordered by path")

	ns := tree.Lookup("helloworld")
	require.NotNil(t, ns)
	greeter := ns.Service("Greeter")
	require.NotNil(t, greeter)
	assert.Equal(t, "helloworld.Greeter", greeter.FullName)
	require.Len(t, greeter.Methods, 1)

	m := greeter.Methods[0]
	assert.Equal(t, "SayHello", m.Name)
	assert.Equal(t, ".helloworld.HelloRequest", m.RequestType)
	assert.Equal(t, ".helloworld.HelloReply", m.ResponseType)
	assert.False(t, m.Streaming())
	require.NotNil(t, m.Desc)
	assert.Equal(t, "helloworld.HelloRequest", string(m.Desc.Input().FullName()))

	req := tree.Resolve("helloworld", m.RequestType)
	require.NotNil(t, req)
	require.Len(t, req.Fields, 1)
	assert.Equal(t, &protoreg.Field{
		Name:  "name",
		Type:  "TYPE_STRING",
		Label: "LABEL_OPTIONAL",
		Desc:  req.Fields[0].Desc,
	}, req.Fields[0])
}

func TestFromFilesGraph(t *testing.T) {
	tree, err := protoreg.FromFileDescriptors(prototest.Graph(t))
	require.NoError(t, err)

	node := tree.Message("graph.Node")
	require.NotNil(t, node)
	assert.False(t, node.IsEnum())

	got := make(map[string][3]string)
	for _, f := range node.Fields {
		got[f.Name] = [3]string{f.Type, f.Label, f.TypeName}
	}
	assert.Equal(t, map[string][3]string{
		"id":       {"TYPE_STRING", "LABEL_REQUIRED", ""},
		"children": {"TYPE_MESSAGE", "LABEL_REPEATED", ".graph.Node"},
		"edge":     {"TYPE_MESSAGE", "LABEL_OPTIONAL", ".graph.Edge"},
		"status":   {"TYPE_ENUM", "LABEL_OPTIONAL", ".graph.Node.Status"},
		"meta":     {"TYPE_MESSAGE", "LABEL_OPTIONAL", ".graph.Node.Meta"},
		"color":    {"TYPE_ENUM", "LABEL_OPTIONAL", ".graph.Color"},
	}, got)

	require.Len(t, node.EnumTypes, 1)
	status := node.EnumTypes[0]
	assert.True(t, status.IsEnum())
	assert.Equal(t, []string{"ACTIVE", "INACTIVE"}, status.Values)
	assert.Equal(t, "Node.Status", status.RelativeName())

	color := tree.Message(".graph.Color")
	require.NotNil(t, color)
	assert.True(t, color.IsEnum())

	empty := tree.Message("graph.Empty")
	require.NotNil(t, empty)
	assert.False(t, empty.IsEnum(), "a message without fields is still a message")

	svc := tree.Lookup("graph").Service("Graph")
	require.NotNil(t, svc)
	var streaming []string
	for _, m := range svc.Methods {
		if m.Streaming() {
			streaming = append(streaming, m.Name)
		}
	}
	assert.Equal(t, []string{"Watch"}, streaming)
}

func TestResolve(t *testing.T) {
	tree, err := protoreg.FromFileDescriptors(prototest.Graph(t))
	require.NoError(t, err)

	tests := []struct {
		scope, typeName string
		want            string
	}{
		{"graph.Node", "Status", "graph.Node.Status"},
		{"graph.Edge", "Status", "graph.Edge.Status"},
		{"graph.Node.Meta", "Node", "graph.Node"},
		{"graph", "Node.Meta", "graph.Node.Meta"},
		{"graph.Edge", ".graph.Node.Status", "graph.Node.Status"},
		{"", "graph.Color", "graph.Color"},
		{"graph", "Status", ""},
		{"graph", "Missing", ""},
	}
	for _, tt := range tests {
		t.Run(tt.scope+"/"+tt.typeName, func(t *testing.T) {
			m := tree.Resolve(tt.scope, tt.typeName)
			if tt.want == "" {
				assert.Nil(t, m)
				return
			}
			require.NotNil(t, m)
			assert.Equal(t, tt.want, m.FullName)
		})
	}
}

func TestDottedPackage(t *testing.T) {
	tree, err := protoreg.FromFileDescriptors(prototest.OtherGreeter(t))
	require.NoError(t, err)

	other := tree.Lookup("other")
	require.NotNil(t, other)
	require.Len(t, other.Namespaces, 1)
	assert.Equal(t, "other.v1", other.Namespaces[0].FullName)
	assert.Same(t, other.Namespaces[0], tree.Lookup("other.v1"))
	assert.NotNil(t, tree.Lookup("other.v1").Service("Greeter"))
	assert.Nil(t, tree.Lookup("other.v2"))

	msg := tree.Message("other.v1.HelloRequest")
	require.NotNil(t, msg)
	assert.Equal(t, "HelloRequest", msg.RelativeName())
}

func TestLoadFileDescriptorSet(t *testing.T) {
	set := prototest.FileDescriptorSet(prototest.Helloworld(t), prototest.Calculator(t))
	data, err := proto.Marshal(set)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "descriptors.pb")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	tree, err := protoreg.LoadFileDescriptorSet(path)
	require.NoError(t, err)

	var names []string
	for _, ns := range tree.Root.Namespaces {
		names = append(names, ns.Name)
	}
	assert.Equal(t, []string{"helloworld", "calculator"}, names, "set order is kept")
	assert.NotNil(t, tree.Message("calculator.SumRequest"))

	_, err = protoreg.LoadFileDescriptorSet(filepath.Join(t.TempDir(), "missing.pb"))
	require.Error(t, err)
}

const helloworldYAML = `
helloworld:
  HelloRequest:
    type:
      field:
        - {name: name, type: TYPE_STRING, label: LABEL_OPTIONAL}
  HelloReply:
    type:
      field:
        - {name: message, type: TYPE_STRING}
        - {name: tags, type: TYPE_STRING, label: LABEL_REPEATED}
      enumType:
        - name: Mood
          value: [{name: HAPPY}, {name: SAD}]
      nestedType:
        - name: Detail
          field:
            - {name: mood, type: TYPE_ENUM, typeName: Mood}
  Color:
    type:
      value: [{name: RED}, {name: BLUE}]
  Greeter:
    service:
      SayHello:
        requestType: {type: {name: HelloRequest}}
        responseType: {type: {name: HelloReply}}
      Stream:
        requestType: HelloRequest
        responseType: HelloReply
        responseStream: true
other.v1:
  Ping:
    type: {}
`

func TestDecodeTree(t *testing.T) {
	tree, err := protoreg.DecodeTree(strings.NewReader(helloworldYAML))
	require.NoError(t, err)
	assert.Nil(t, tree.Files)

	var names []string
	for _, ns := range tree.Root.Namespaces {
		names = append(names, ns.FullName)
	}
	assert.Equal(t, []string{"helloworld", "other"}, names)

	hw := tree.Lookup("helloworld")
	require.NotNil(t, hw)
	var msgs []string
	for _, m := range hw.Messages {
		msgs = append(msgs, m.Name)
	}
	assert.Equal(t, []string{"HelloRequest", "HelloReply", "Color"}, msgs)

	reply := tree.Message("helloworld.HelloReply")
	require.NotNil(t, reply)
	assert.Equal(t, "LABEL_OPTIONAL", reply.Fields[0].Label, "missing label defaults to optional")
	assert.Equal(t, "LABEL_REPEATED", reply.Fields[1].Label)
	assert.Equal(t, []string{"HAPPY", "SAD"}, tree.Message("helloworld.HelloReply.Mood").Values)

	detail := tree.Message("helloworld.HelloReply.Detail")
	require.NotNil(t, detail)
	assert.Equal(t, "helloworld", detail.Package)
	mood := tree.Resolve(detail.FullName, detail.Fields[0].TypeName)
	require.NotNil(t, mood)
	assert.Equal(t, "helloworld.HelloReply.Mood", mood.FullName)

	assert.True(t, tree.Message("helloworld.Color").IsEnum())

	greeter := hw.Service("Greeter")
	require.NotNil(t, greeter)
	require.Len(t, greeter.Methods, 2)
	assert.Equal(t, "SayHello", greeter.Methods[0].Name)
	assert.Equal(t, "HelloRequest", greeter.Methods[0].RequestType)
	assert.Equal(t, "HelloReply", greeter.Methods[0].ResponseType)
	assert.Equal(t, "HelloRequest", greeter.Methods[1].RequestType)
	assert.True(t, greeter.Methods[1].ServerStreaming)

	ping := tree.Message("other.v1.Ping")
	require.NotNil(t, ping)
	assert.Equal(t, "other.v1", ping.Package)
	assert.Empty(t, ping.Fields)
}

func TestDecodeTreeJSON(t *testing.T) {
	doc := `{"calculator": {` +
		`"Calculator": {"service": {"Sum": {"requestType": {"type": {"name": "SumRequest"}}, "responseType": {"type": {"name": "SumReply"}}}}}, ` +
		`"SumRequest": {"type": {"field": [{"name": "values", "type": "TYPE_INT32", "label": "LABEL_REPEATED"}]}}, ` +
		`"SumReply": {"type": {"field": [{"name": "total", "type": "TYPE_INT64"}]}}}}`

	tree, err := protoreg.DecodeTree(strings.NewReader(doc))
	require.NoError(t, err)

	svc := tree.Lookup("calculator").Service("Calculator")
	require.NotNil(t, svc)
	assert.Equal(t, "calculator.Calculator", svc.FullName)
	assert.NotNil(t, tree.Resolve("calculator", svc.Methods[0].RequestType))
}

func TestDecodeTreeErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{name: "scalar entry", doc: "helloworld: 3\n"},
		{name: "list root", doc: "- a\n- b\n"},
		{name: "missing response type", doc: "pkg:\n  Svc:\n    service:\n      M:\n        requestType: A\n"},
		{name: "malformed yaml", doc: "pkg: {a: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := protoreg.DecodeTree(strings.NewReader(tt.doc))
			require.ErrorIs(t, err, protoreg.ErrInvalidDocument)
		})
	}

	t.Run("duplicate declaration", func(t *testing.T) {
		doc := "a:\n  B:\n    type: {}\na.B:\n  type: {}\n"
		_, err := protoreg.DecodeTree(strings.NewReader(doc))
		require.ErrorIs(t, err, protoreg.ErrDuplicateDeclaration)
	})

	t.Run("empty document", func(t *testing.T) {
		tree, err := protoreg.DecodeTree(strings.NewReader(""))
		require.NoError(t, err)
		assert.Empty(t, tree.Root.Namespaces)
	})
}

func TestRender(t *testing.T) {
	tree, err := protoreg.FromFileDescriptors(prototest.Helloworld(t))
	require.NoError(t, err)

	dir := t.TempDir()
	require.NoError(t, protoreg.Render(tree, dir))

	out, err := os.ReadFile(filepath.Join(dir, "helloworld", "helloworld.proto"))
	require.NoError(t, err)
	assert.Contains(t, string(out), "package helloworld;")
	assert.Contains(t, string(out), "service Greeter")
	assert.Contains(t, string(out), "message HelloRequest")
	assert.Contains(t, string(out), "SayHello")

	decoded, err := protoreg.DecodeTree(strings.NewReader(helloworldYAML))
	require.NoError(t, err)
	require.ErrorIs(t, protoreg.Render(decoded, dir), protoreg.ErrNoDescriptors)
}
