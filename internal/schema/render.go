package schema

import "strings"

// SDL renders the block. Fields are newline separated and the closing brace
// is followed by a single newline:
//
//	type Greeter_query {
//	  SayHello(request: HelloRequest): HelloReply
//	}
func (b *Block) SDL() string {
	var sb strings.Builder
	renderBlock(&sb, b)
	return sb.String()
}

func renderBlock(sb *strings.Builder, b *Block) {
	if b.Extend {
		sb.WriteString("extend ")
	}
	sb.WriteString(string(b.Kind))
	sb.WriteString(" ")
	sb.WriteString(b.Name)
	sb.WriteString(" {\n")
	for i, f := range b.fields {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString("  ")
		sb.WriteString(f.Name)
		if b.Kind == KindEnum {
			continue
		}
		if len(f.Params) > 0 {
			sb.WriteString("(")
			for j, p := range f.Params {
				if j > 0 {
					sb.WriteString(", ")
				}
				sb.WriteString(p.Name)
				sb.WriteString(": ")
				sb.WriteString(label(p.Type.Name(), p.Nullable, p.Repeated, false))
			}
			sb.WriteString(")")
		}
		if t := label(f.Type.Name(), f.Nullable, f.Repeated, f.ListNonNull); t != "" {
			sb.WriteString(": ")
			sb.WriteString(t)
		}
	}
	sb.WriteString("\n}\n")
}

// label applies non-null and list wrapping to a type name.
func label(name string, nullable, repeated, listNonNull bool) string {
	if name == "" {
		return ""
	}
	out := name
	if !nullable {
		out += "!"
	}
	if repeated {
		out = "[" + out + "]"
		if listNonNull {
			out += "!"
		}
	}
	return out
}
