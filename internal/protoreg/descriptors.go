package protoreg

import (
	"fmt"
	"os"
	"sort"

	"github.com/hanpama/protogql/internal/typemap"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
)

// FromFiles builds a tree from every file in the registry, ordered by path.
func FromFiles(files *protoregistry.Files) (*Tree, error) {
	var fds []protoreflect.FileDescriptor
	files.RangeFiles(func(fd protoreflect.FileDescriptor) bool {
		fds = append(fds, fd)
		return true
	})
	sort.Slice(fds, func(i, j int) bool { return fds[i].Path() < fds[j].Path() })
	return FromFileDescriptors(fds...)
}

// FromFileDescriptorSet links the set and builds a tree keeping the order of
// the files in the set.
func FromFileDescriptorSet(set *descriptorpb.FileDescriptorSet) (*Tree, error) {
	files, err := protodesc.NewFiles(set)
	if err != nil {
		return nil, fmt.Errorf("protoreg: link descriptor set: %w", err)
	}
	fds := make([]protoreflect.FileDescriptor, 0, len(set.GetFile()))
	for _, f := range set.GetFile() {
		fd, err := files.FindFileByPath(f.GetName())
		if err != nil {
			return nil, fmt.Errorf("protoreg: %w", err)
		}
		fds = append(fds, fd)
	}
	return FromFileDescriptors(fds...)
}

// LoadFileDescriptorSet reads a binary FileDescriptorSet as written by
// protoc --descriptor_set_out or buf build -o.
func LoadFileDescriptorSet(path string) (*Tree, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	set := &descriptorpb.FileDescriptorSet{}
	if err := proto.Unmarshal(data, set); err != nil {
		return nil, fmt.Errorf("protoreg: decode %s: %w", path, err)
	}
	return FromFileDescriptorSet(set)
}

// FromFileDescriptors builds a tree from the given files in order.
func FromFileDescriptors(fds ...protoreflect.FileDescriptor) (*Tree, error) {
	t := NewTree()
	t.Files = fds
	for _, fd := range fds {
		pkg := string(fd.Package())
		t.Root.ensure(pkg)

		enums := fd.Enums()
		for i := 0; i < enums.Len(); i++ {
			if err := t.addMessage(fromEnum(pkg, enums.Get(i))); err != nil {
				return nil, err
			}
		}
		msgs := fd.Messages()
		for i := 0; i < msgs.Len(); i++ {
			if err := t.addMessage(fromMessage(pkg, msgs.Get(i))); err != nil {
				return nil, err
			}
		}
		svcs := fd.Services()
		for i := 0; i < svcs.Len(); i++ {
			t.addService(fromService(pkg, svcs.Get(i)))
		}
	}
	return t, nil
}

func fromMessage(pkg string, md protoreflect.MessageDescriptor) *Message {
	m := &Message{
		Name:     string(md.Name()),
		FullName: string(md.FullName()),
		Package:  pkg,
		Desc:     md,
	}
	fields := md.Fields()
	for i := 0; i < fields.Len(); i++ {
		fd := fields.Get(i)
		f := &Field{
			Name:  string(fd.Name()),
			Type:  typemap.Tag(fd.Kind()),
			Label: typemap.LabelOf(fd),
			Desc:  fd,
		}
		switch fd.Kind() {
		case protoreflect.MessageKind, protoreflect.GroupKind:
			f.TypeName = "." + string(fd.Message().FullName())
		case protoreflect.EnumKind:
			f.TypeName = "." + string(fd.Enum().FullName())
		}
		m.Fields = append(m.Fields, f)
	}
	enums := md.Enums()
	for i := 0; i < enums.Len(); i++ {
		m.EnumTypes = append(m.EnumTypes, fromEnum(pkg, enums.Get(i)))
	}
	nested := md.Messages()
	for i := 0; i < nested.Len(); i++ {
		m.Nested = append(m.Nested, fromMessage(pkg, nested.Get(i)))
	}
	return m
}

func fromEnum(pkg string, ed protoreflect.EnumDescriptor) *Message {
	m := &Message{
		Name:     string(ed.Name()),
		FullName: string(ed.FullName()),
		Package:  pkg,
		Desc:     ed,
	}
	values := ed.Values()
	for i := 0; i < values.Len(); i++ {
		m.Values = append(m.Values, string(values.Get(i).Name()))
	}
	return m
}

func fromService(pkg string, sd protoreflect.ServiceDescriptor) *Service {
	s := &Service{
		Name:     string(sd.Name()),
		FullName: string(sd.FullName()),
		Package:  pkg,
		Desc:     sd,
	}
	methods := sd.Methods()
	for i := 0; i < methods.Len(); i++ {
		md := methods.Get(i)
		s.Methods = append(s.Methods, &Method{
			Name:            string(md.Name()),
			RequestType:     "." + string(md.Input().FullName()),
			ResponseType:    "." + string(md.Output().FullName()),
			ClientStreaming: md.IsStreamingClient(),
			ServerStreaming: md.IsStreamingServer(),
			Desc:            md,
		})
	}
	return s
}
