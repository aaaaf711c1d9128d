package routing

import (
	"fmt"
	"slices"

	"gopkg.in/yaml.v3"
)

// Selector is the value of a service's query or mutate setting: omitted,
// true, false, or a list of method names.
type Selector struct {
	set     bool
	enabled bool
	methods []string
}

// Enabled is an explicit true.
func Enabled() Selector { return Selector{set: true, enabled: true} }

// Disabled is an explicit false.
func Disabled() Selector { return Selector{set: true} }

// Methods restricts the surface to the named methods.
func Methods(names ...string) Selector {
	return Selector{set: true, enabled: true, methods: names}
}

// IsSet reports whether the setting was given at all.
func (s Selector) IsSet() bool { return s.set }

// IsDisabled reports an explicit false.
func (s Selector) IsDisabled() bool { return s.set && !s.enabled }

// Allows reports whether the surface exists; only an explicit false closes it.
func (s Selector) Allows() bool { return !s.IsDisabled() }

// Lists reports whether method is named in a method list.
func (s Selector) Lists(method string) bool { return slices.Contains(s.methods, method) }

// MethodNames returns the listed methods, nil unless the selector is a list.
func (s Selector) MethodNames() []string { return slices.Clone(s.methods) }

func (s *Selector) UnmarshalYAML(n *yaml.Node) error {
	switch n.Kind {
	case yaml.ScalarNode:
		if n.Tag == "!!null" {
			*s = Selector{}
			return nil
		}
		var b bool
		if err := n.Decode(&b); err != nil {
			return fmt.Errorf("line %d: expected a boolean or a list of method names", n.Line)
		}
		*s = Selector{set: true, enabled: b}
		return nil
	case yaml.SequenceNode:
		var names []string
		if err := n.Decode(&names); err != nil {
			return err
		}
		*s = Methods(names...)
		return nil
	}
	return fmt.Errorf("line %d: expected a boolean or a list of method names", n.Line)
}
