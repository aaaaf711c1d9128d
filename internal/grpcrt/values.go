package grpcrt

import (
	"encoding/base64"
	"fmt"
	"math"

	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"
)

// fromProto converts a field value to a Go value for executor consumption.
// Repeated fields become []any and map fields become a list of entry messages,
// mirroring how map entries are rendered as object lists.
func fromProto(fd protoreflect.FieldDescriptor, v protoreflect.Value) any {
	switch {
	case fd.IsMap():
		entry := fd.Message()
		m := v.Map()
		out := make([]any, 0, m.Len())
		m.Range(func(k protoreflect.MapKey, mv protoreflect.Value) bool {
			msg := dynamicpb.NewMessage(entry)
			msg.Set(entry.Fields().ByNumber(1), k.Value())
			msg.Set(entry.Fields().ByNumber(2), mv)
			out = append(out, msg)
			return true
		})
		return out
	case fd.IsList():
		lst := v.List()
		out := make([]any, lst.Len())
		for i := range out {
			out[i] = fromScalar(fd, lst.Get(i))
		}
		return out
	}
	return fromScalar(fd, v)
}

func fromScalar(fd protoreflect.FieldDescriptor, v protoreflect.Value) any {
	switch fd.Kind() {
	case protoreflect.BoolKind:
		return v.Bool()
	case protoreflect.Int32Kind, protoreflect.Sint32Kind, protoreflect.Sfixed32Kind:
		return int32(v.Int())
	case protoreflect.Int64Kind, protoreflect.Sint64Kind, protoreflect.Sfixed64Kind:
		return v.Int()
	case protoreflect.Uint32Kind, protoreflect.Fixed32Kind:
		return uint32(v.Uint())
	case protoreflect.Uint64Kind, protoreflect.Fixed64Kind:
		return v.Uint()
	case protoreflect.FloatKind:
		return float32(v.Float())
	case protoreflect.DoubleKind:
		return v.Float()
	case protoreflect.StringKind:
		return v.String()
	case protoreflect.BytesKind:
		return v.Bytes()
	case protoreflect.EnumKind:
		if ev := fd.Enum().Values().ByNumber(v.Enum()); ev != nil {
			return string(ev.Name())
		}
		return int32(v.Enum())
	case protoreflect.MessageKind, protoreflect.GroupKind:
		return v.Message()
	default:
		return nil
	}
}

// setMessageFields populates msg from a coerced GraphQL input object keyed by
// proto field names. Null values leave the field unset.
func setMessageFields(msg protoreflect.Message, data map[string]any) error {
	fields := msg.Descriptor().Fields()
	for k, v := range data {
		if v == nil {
			continue
		}
		fd := fields.ByName(protoreflect.Name(k))
		if fd == nil {
			// the empty-message placeholder and unknown keys
			continue
		}
		switch {
		case fd.IsMap():
			if err := setMapField(msg, fd, v); err != nil {
				return err
			}
		case fd.IsList():
			items, ok := v.([]any)
			if !ok {
				items = []any{v}
			}
			list := msg.Mutable(fd).List()
			for _, it := range items {
				pv, err := toProto(fd, it)
				if err != nil {
					return err
				}
				list.Append(pv)
			}
		default:
			pv, err := toProto(fd, v)
			if err != nil {
				return err
			}
			msg.Set(fd, pv)
		}
	}
	return nil
}

// setMapField fills a map field from a list of {key, value} entry objects.
func setMapField(msg protoreflect.Message, fd protoreflect.FieldDescriptor, v any) error {
	items, ok := v.([]any)
	if !ok {
		items = []any{v}
	}
	keyFD, valFD := fd.MapKey(), fd.MapValue()
	m := msg.Mutable(fd).Map()
	for _, it := range items {
		entry, ok := it.(map[string]any)
		if !ok {
			return fmt.Errorf("%s: map entry must be an object, got %T", fd.Name(), it)
		}
		kv, err := toProto(keyFD, entry["key"])
		if err != nil {
			return err
		}
		if entry["value"] == nil {
			m.Set(kv.MapKey(), m.NewValue())
			continue
		}
		vv, err := toProto(valFD, entry["value"])
		if err != nil {
			return err
		}
		m.Set(kv.MapKey(), vv)
	}
	return nil
}

func toProto(fd protoreflect.FieldDescriptor, v any) (protoreflect.Value, error) {
	switch fd.Kind() {
	case protoreflect.BoolKind:
		if b, ok := v.(bool); ok {
			return protoreflect.ValueOfBool(b), nil
		}
	case protoreflect.Int32Kind, protoreflect.Sint32Kind, protoreflect.Sfixed32Kind:
		if n, ok := integer(v); ok && n >= math.MinInt32 && n <= math.MaxInt32 {
			return protoreflect.ValueOfInt32(int32(n)), nil
		}
	case protoreflect.Int64Kind, protoreflect.Sint64Kind, protoreflect.Sfixed64Kind:
		if n, ok := integer(v); ok {
			return protoreflect.ValueOfInt64(n), nil
		}
	case protoreflect.Uint32Kind, protoreflect.Fixed32Kind:
		if n, ok := integer(v); ok && n >= 0 && n <= math.MaxUint32 {
			return protoreflect.ValueOfUint32(uint32(n)), nil
		}
	case protoreflect.Uint64Kind, protoreflect.Fixed64Kind:
		if n, ok := integer(v); ok && n >= 0 {
			return protoreflect.ValueOfUint64(uint64(n)), nil
		}
	case protoreflect.FloatKind:
		if f, ok := float(v); ok {
			return protoreflect.ValueOfFloat32(float32(f)), nil
		}
	case protoreflect.DoubleKind:
		if f, ok := float(v); ok {
			return protoreflect.ValueOfFloat64(f), nil
		}
	case protoreflect.StringKind:
		if s, ok := v.(string); ok {
			return protoreflect.ValueOfString(s), nil
		}
	case protoreflect.BytesKind:
		switch b := v.(type) {
		case []byte:
			return protoreflect.ValueOfBytes(b), nil
		case string:
			raw, err := base64.StdEncoding.DecodeString(b)
			if err != nil {
				return protoreflect.Value{}, fmt.Errorf("%s: bytes must be base64: %w", fd.Name(), err)
			}
			return protoreflect.ValueOfBytes(raw), nil
		}
	case protoreflect.EnumKind:
		if s, ok := v.(string); ok {
			if val := fd.Enum().Values().ByName(protoreflect.Name(s)); val != nil {
				return protoreflect.ValueOfEnum(val.Number()), nil
			}
		}
	case protoreflect.MessageKind, protoreflect.GroupKind:
		if mv, ok := v.(map[string]any); ok {
			msg := dynamicpb.NewMessage(fd.Message())
			if err := setMessageFields(msg, mv); err != nil {
				return protoreflect.Value{}, err
			}
			return protoreflect.ValueOfMessage(msg), nil
		}
	}
	return protoreflect.Value{}, fmt.Errorf("unsupported value %v (%T) for %s", v, v, fd.FullName())
}

func integer(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint32:
		return int64(n), true
	case float64:
		if n == math.Trunc(n) {
			return int64(n), true
		}
	}
	return 0, false
}

func float(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
