package convert

import (
	"fmt"
	"strings"

	"github.com/hanpama/protogql/internal/protoreg"
	"github.com/hanpama/protogql/internal/schema"
)

// names interns GraphQL type names per conversion run. Every declaration
// key owns exactly one name and every name has exactly one owner.
type names struct {
	byKey   map[string]string
	ownerOf map[string]string
}

const reservedOwner = "#reserved"

func newNames() *names {
	n := &names{byKey: map[string]string{}, ownerOf: map[string]string{}}
	for _, s := range schema.Scalars {
		n.ownerOf[string(s)] = reservedOwner
	}
	for _, r := range []string{schema.QueryType, schema.MutationType, schema.SubscriptionType} {
		n.ownerOf[r] = reservedOwner
	}
	return n
}

// claim assigns key the first free candidate, or the last candidate with a
// numeric suffix when all are taken. Claiming an already named key returns
// its name.
func (n *names) claim(key string, candidates ...string) string {
	if name, ok := n.byKey[key]; ok {
		return name
	}
	name := ""
	for _, c := range candidates {
		if _, taken := n.ownerOf[c]; !taken {
			name = c
			break
		}
	}
	if name == "" {
		last := candidates[len(candidates)-1]
		for i := 2; ; i++ {
			c := fmt.Sprintf("%s_%d", last, i)
			if _, taken := n.ownerOf[c]; !taken {
				name = c
				break
			}
		}
	}
	n.byKey[key] = name
	n.ownerOf[name] = key
	return name
}

// PackageKey is the GraphQL spelling of a protobuf package: a.b becomes a_b.
func PackageKey(pkg string) string { return underscore(pkg) }

func underscore(s string) string { return strings.ReplaceAll(s, ".", "_") }

// declKey identifies a declaration in one role. Enums are shared between
// inputs and outputs.
func declKey(m *protoreg.Message, input bool) string {
	if input && !m.IsEnum() {
		return m.FullName + "#input"
	}
	return m.FullName
}

// typeName interns the GraphQL name of a message or enum: its name relative
// to the package with dots replaced by underscores, or the full name on
// collision. Inputs of messages that are also outputs get an Input suffix.
func (c *converter) typeName(m *protoreg.Message, input bool) string {
	suffix := ""
	if input && !m.IsEnum() && c.outputs[m.FullName] {
		suffix = "Input"
	}
	return c.names.claim(declKey(m, input),
		underscore(m.RelativeName())+suffix,
		underscore(m.FullName)+suffix,
	)
}
