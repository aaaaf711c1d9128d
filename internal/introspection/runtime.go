package introspection

import (
	"context"
	"sort"
	"strings"

	"github.com/hanpama/protogql/internal/executor"
	"github.com/hanpama/protogql/internal/language"
)

// Wrap returns a Runtime that answers GraphQL introspection fields from sch
// and delegates everything else to base. The introspection types themselves
// come from the schema prelude, so sch is not modified.
func Wrap(base executor.Runtime, sch *language.Schema) executor.Runtime {
	return &runtime{base: base, schema: sch}
}

type runtime struct {
	base   executor.Runtime
	schema *language.Schema
}

func (r *runtime) IsAsync(objectType, field string) bool {
	if strings.HasPrefix(objectType, "__") || strings.HasPrefix(field, "__") {
		return false
	}
	return r.base.IsAsync(objectType, field)
}

func (r *runtime) ResolveSync(ctx context.Context, objectType, field string, source any, args map[string]any) (any, error) {
	switch src := source.(type) {
	case *language.Schema:
		if v, ok := resolveSchemaField(src, field); ok {
			return v, nil
		}
	case *language.Definition:
		if v, ok := resolveTypeField(r.schema, src, field, args); ok {
			return v, nil
		}
	case *language.Type:
		if v, ok := resolveTypeRefField(r.schema, src, field, args); ok {
			return v, nil
		}
	case *language.FieldDefinition:
		if objectType == "__Field" {
			if v, ok := resolveFieldField(src, field, args); ok {
				return v, nil
			}
		} else if v, ok := resolveInputValueField(src.Name, src.Description, src.Type, src.DefaultValue, src.Directives, field); ok {
			return v, nil
		}
	case *language.ArgumentDefinition:
		if v, ok := resolveInputValueField(src.Name, src.Description, src.Type, src.DefaultValue, src.Directives, field); ok {
			return v, nil
		}
	case *language.EnumValueDefinition:
		if v, ok := resolveEnumValueField(src, field); ok {
			return v, nil
		}
	case *language.DirectiveDefinition:
		if v, ok := resolveDirectiveField(src, field, args); ok {
			return v, nil
		}
	}

	if r.schema.Query != nil && objectType == r.schema.Query.Name {
		switch field {
		case "__schema":
			return r.schema, nil
		case "__type":
			return r.resolveTypeQuery(args), nil
		}
	}

	return r.base.ResolveSync(ctx, objectType, field, source, args)
}

func (r *runtime) BatchResolveAsync(ctx context.Context, tasks []executor.AsyncResolveTask) []executor.AsyncResolveResult {
	return r.base.BatchResolveAsync(ctx, tasks)
}

func (r *runtime) SerializeLeafValue(ctx context.Context, typ string, value any) (any, error) {
	if strings.HasPrefix(typ, "__") {
		return value, nil
	}
	return r.base.SerializeLeafValue(ctx, typ, value)
}

// --- helpers ---

func (r *runtime) resolveTypeQuery(args map[string]any) *language.Definition {
	name, _ := args["name"].(string)
	if name == "" {
		return nil
	}
	return r.schema.Types[name]
}

func resolveSchemaTypes(sch *language.Schema) []*language.Definition {
	out := make([]*language.Definition, 0, len(sch.Types))
	for _, t := range sch.Types {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func resolveSchemaDirectives(sch *language.Schema) []*language.DirectiveDefinition {
	dirs := make([]*language.DirectiveDefinition, 0, len(sch.Directives))
	for _, d := range sch.Directives {
		dirs = append(dirs, d)
	}
	sort.Slice(dirs, func(i, j int) bool { return dirs[i].Name < dirs[j].Name })
	return dirs
}

// resolveTypeFields lists output fields, hiding the meta fields the schema
// loader attaches to the query root.
func resolveTypeFields(t *language.Definition, args map[string]any) []*language.FieldDefinition {
	if t.Kind != language.Object && t.Kind != language.Interface {
		return nil
	}
	includeDeprecated := boolArg(args, "includeDeprecated", false)
	out := []*language.FieldDefinition{}
	for _, f := range t.Fields {
		if strings.HasPrefix(f.Name, "__") {
			continue
		}
		if !includeDeprecated && isDeprecated(f.Directives) {
			continue
		}
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func resolveTypeInterfaces(sch *language.Schema, t *language.Definition) []*language.Definition {
	if t.Kind != language.Object && t.Kind != language.Interface {
		return nil
	}
	out := make([]*language.Definition, 0, len(t.Interfaces))
	for _, name := range t.Interfaces {
		if def := sch.Types[name]; def != nil {
			out = append(out, def)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func resolveTypePossibleTypes(sch *language.Schema, t *language.Definition) []*language.Definition {
	if t.Kind != language.Interface && t.Kind != language.Union {
		return nil
	}
	pts := append([]*language.Definition{}, sch.GetPossibleTypes(t)...)
	sort.Slice(pts, func(i, j int) bool { return pts[i].Name < pts[j].Name })
	return pts
}

func resolveTypeEnumValues(t *language.Definition, args map[string]any) []*language.EnumValueDefinition {
	if t.Kind != language.Enum {
		return nil
	}
	includeDeprecated := boolArg(args, "includeDeprecated", false)
	out := []*language.EnumValueDefinition{}
	for _, ev := range t.EnumValues {
		if !includeDeprecated && isDeprecated(ev.Directives) {
			continue
		}
		out = append(out, ev)
	}
	return out
}

func resolveTypeInputFields(t *language.Definition, args map[string]any) []*language.FieldDefinition {
	if t.Kind != language.InputObject {
		return nil
	}
	includeDeprecated := boolArg(args, "includeDeprecated", false)
	out := []*language.FieldDefinition{}
	for _, iv := range t.Fields {
		if !includeDeprecated && isDeprecated(iv.Directives) {
			continue
		}
		out = append(out, iv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func resolveArgs(list language.ArgumentDefinitionList, args map[string]any) []*language.ArgumentDefinition {
	includeDeprecated := boolArg(args, "includeDeprecated", false)
	out := []*language.ArgumentDefinition{}
	for _, a := range list {
		if !includeDeprecated && isDeprecated(a.Directives) {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func resolveSchemaField(sch *language.Schema, field string) (any, bool) {
	switch field {
	case "types":
		return resolveSchemaTypes(sch), true
	case "queryType":
		return sch.Query, true
	case "mutationType":
		return sch.Mutation, true
	case "subscriptionType":
		return sch.Subscription, true
	case "directives":
		return resolveSchemaDirectives(sch), true
	case "description":
		return optional(sch.Description), true
	}
	return nil, false
}

func resolveTypeField(sch *language.Schema, t *language.Definition, field string, args map[string]any) (any, bool) {
	switch field {
	case "kind":
		return string(t.Kind), true
	case "name":
		return t.Name, true
	case "description":
		return optional(t.Description), true
	case "specifiedByURL":
		if d := t.Directives.ForName("specifiedBy"); d != nil {
			if arg := d.Arguments.ForName("url"); arg != nil && arg.Value != nil {
				return arg.Value.Raw, true
			}
		}
		return nil, true
	case "fields":
		return resolveTypeFields(t, args), true
	case "interfaces":
		return resolveTypeInterfaces(sch, t), true
	case "possibleTypes":
		return resolveTypePossibleTypes(sch, t), true
	case "enumValues":
		return resolveTypeEnumValues(t, args), true
	case "inputFields":
		return resolveTypeInputFields(t, args), true
	case "isOneOf":
		if t.Kind != language.InputObject {
			return nil, true
		}
		return t.Directives.ForName("oneOf") != nil, true
	case "ofType":
		// Wrapper types are *language.Type values, so named types never expose ofType.
		return nil, true
	}
	return nil, false
}

func resolveTypeRefField(sch *language.Schema, tr *language.Type, field string, args map[string]any) (any, bool) {
	switch {
	case tr.NonNull:
		return resolveWrapperField("NON_NULL", &language.Type{NamedType: tr.NamedType, Elem: tr.Elem}, field)
	case tr.Elem != nil:
		return resolveWrapperField("LIST", tr.Elem, field)
	}
	if def := sch.Types[tr.NamedType]; def != nil {
		return resolveTypeField(sch, def, field, args)
	}
	return nil, true
}

func resolveWrapperField(kind string, ofType *language.Type, field string) (any, bool) {
	switch field {
	case "kind":
		return kind, true
	case "ofType":
		return ofType, true
	}
	return nil, true
}

func resolveFieldField(f *language.FieldDefinition, field string, args map[string]any) (any, bool) {
	switch field {
	case "name":
		return f.Name, true
	case "description":
		return optional(f.Description), true
	case "args":
		return resolveArgs(f.Arguments, args), true
	case "type":
		return f.Type, true
	case "isDeprecated":
		return isDeprecated(f.Directives), true
	case "deprecationReason":
		return deprecationReason(f.Directives), true
	}
	return nil, false
}

// resolveInputValueField serves __InputValue for both arguments and input
// object fields.
func resolveInputValueField(name, description string, typ *language.Type, def *language.Value, directives language.DirectiveList, field string) (any, bool) {
	switch field {
	case "name":
		return name, true
	case "description":
		return optional(description), true
	case "type":
		return typ, true
	case "defaultValue":
		if def == nil {
			return nil, true
		}
		return def.String(), true
	case "isDeprecated":
		return isDeprecated(directives), true
	case "deprecationReason":
		return deprecationReason(directives), true
	}
	return nil, false
}

func resolveEnumValueField(ev *language.EnumValueDefinition, field string) (any, bool) {
	switch field {
	case "name":
		return ev.Name, true
	case "description":
		return optional(ev.Description), true
	case "isDeprecated":
		return isDeprecated(ev.Directives), true
	case "deprecationReason":
		return deprecationReason(ev.Directives), true
	}
	return nil, false
}

func resolveDirectiveField(d *language.DirectiveDefinition, field string, args map[string]any) (any, bool) {
	switch field {
	case "name":
		return d.Name, true
	case "description":
		return optional(d.Description), true
	case "isRepeatable":
		return d.IsRepeatable, true
	case "locations":
		locs := make([]string, len(d.Locations))
		for i, l := range d.Locations {
			locs[i] = string(l)
		}
		sort.Strings(locs)
		return locs, true
	case "args":
		return resolveArgs(d.Arguments, args), true
	}
	return nil, false
}

func isDeprecated(directives language.DirectiveList) bool {
	return directives.ForName("deprecated") != nil
}

func deprecationReason(directives language.DirectiveList) any {
	d := directives.ForName("deprecated")
	if d == nil {
		return nil
	}
	if arg := d.Arguments.ForName("reason"); arg != nil && arg.Value != nil {
		return arg.Value.Raw
	}
	return "No longer supported"
}

func optional(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolArg(args map[string]any, name string, def bool) bool {
	if args == nil {
		return def
	}
	if v, ok := args[name]; ok {
		if b, ok2 := v.(bool); ok2 {
			return b
		}
	}
	return def
}
