// Package convert walks protobuf descriptors and the routing configuration
// and populates a schema registry with the GraphQL surface of every
// configured service.
package convert

import (
	"context"
	"fmt"
	"time"

	"github.com/hanpama/protogql/internal/eventbus"
	"github.com/hanpama/protogql/internal/events"
	"github.com/hanpama/protogql/internal/protoreg"
	"github.com/hanpama/protogql/internal/routing"
	"github.com/hanpama/protogql/internal/schema"
	"github.com/hanpama/protogql/internal/typemap"
)

// RequestParam is the argument name of every method field.
const RequestParam = "request"

// Result is the outcome of one conversion run.
type Result struct {
	Registry *schema.Registry
	// Services lists the services with a GraphQL surface, in emission order.
	Services []*Service
}

// Service is a converted service.
type Service struct {
	Service *protoreg.Service
	Config  routing.Effective
	// PackageKey is the root field name of the service's package.
	PackageKey string
	// Namespace block names per surface; empty when the surface has no field.
	PackageQueryType    string
	PackageMutationType string
	QueryType           string
	MutationType        string
	Methods             []*Method
}

// Method is a method exposed on at least one surface.
type Method struct {
	Method       *protoreg.Method
	Query        bool
	Mutation     bool
	RequestType  string
	ResponseType string
}

// SDL converts and renders the schema document. ok is false when no field
// was produced.
func SDL(ctx context.Context, tree *protoreg.Tree, cfg *routing.Config) (sdl string, ok bool, err error) {
	res, err := Convert(ctx, tree, cfg)
	if err != nil {
		return "", false, err
	}
	sdl, ok = res.Registry.SDL()
	return sdl, ok, nil
}

// Convert runs one conversion with a fresh registry. It is all-or-nothing:
// any error aborts the run.
func Convert(ctx context.Context, tree *protoreg.Tree, cfg *routing.Config) (res *Result, err error) {
	if cfg == nil {
		return nil, configurationError(ErrMissingConfig)
	}
	if tree == nil {
		return nil, configurationError(ErrMissingTree)
	}
	started := time.Now()
	eventbus.Publish(ctx, events.ConversionStart{Packages: len(cfg.Packages)})
	defer func() {
		fin := events.ConversionFinish{Packages: len(cfg.Packages), Err: err, Duration: time.Since(started)}
		if res != nil {
			fin.Services = len(res.Services)
			for _, s := range res.Services {
				fin.Methods += len(s.Methods)
			}
			fin.Blocks = len(res.Registry.Blocks())
			fin.Empty = res.Registry.Empty()
		}
		eventbus.Publish(ctx, fin)
	}()

	if err := cfg.Validate(); err != nil {
		return nil, configurationError(err)
	}
	c := &converter{
		tree:       tree,
		reg:        schema.NewRegistry(),
		names:      newNames(),
		outputs:    map[string]bool{},
		blocks:     map[string]*schema.Block{},
		inProgress: map[string]bool{},
	}
	plans, err := c.plan(cfg)
	if err != nil {
		return nil, err
	}
	res = &Result{Registry: c.reg}
	for _, p := range plans {
		svc, err := c.service(p)
		if err != nil {
			return nil, err
		}
		if len(svc.Methods) > 0 {
			res.Services = append(res.Services, svc)
		}
	}
	return res, nil
}

type converter struct {
	tree  *protoreg.Tree
	reg   *schema.Registry
	names *names

	// outputs holds the full names of messages reachable from a response.
	outputs    map[string]bool
	blocks     map[string]*schema.Block
	inProgress map[string]bool
}

type servicePlan struct {
	svc       *protoreg.Service
	eff       routing.Effective
	pkgKey    string
	pkgQuery  string
	pkgMutate string
	svcQuery  string
	svcMutate string
	methods   []*protoreg.Method
	requests  []*protoreg.Message
	responses []*protoreg.Message
}

// plan selects the services with a GraphQL surface, resolves their method
// types, marks output messages and reserves namespace block names so that
// type names never collide with them.
func (c *converter) plan(cfg *routing.Config) ([]*servicePlan, error) {
	var plans []*servicePlan
	for _, pkg := range cfg.Packages {
		ns := c.tree.Lookup(pkg.Package)
		if ns == nil {
			return nil, configurationError(fmt.Errorf("%w: %s", ErrUnknownPackage, pkg.Package))
		}
		pkgKey := PackageKey(pkg.Package)
		for _, svc := range ns.Services {
			sc := cfg.Lookup(pkg.Package, svc.Name)
			if sc == nil {
				continue
			}
			eff := sc.Effective(pkg.Package)
			if eff.GRPCOnly {
				continue
			}
			p := &servicePlan{svc: svc, eff: eff, pkgKey: pkgKey}
			for _, m := range svc.Methods {
				if q, mu := eff.Surfaces(m.Name); !q && !mu {
					continue
				}
				req, err := c.methodType(svc, m, m.RequestType)
				if err != nil {
					return nil, err
				}
				resp, err := c.methodType(svc, m, m.ResponseType)
				if err != nil {
					return nil, err
				}
				p.methods = append(p.methods, m)
				p.requests = append(p.requests, req)
				p.responses = append(p.responses, resp)
				c.markOutput(resp)
			}
			plans = append(plans, p)
		}
	}

	for _, p := range plans {
		p.pkgQuery = c.names.claim("#package-query:"+p.pkgKey, p.pkgKey+"_query")
		p.pkgMutate = c.names.claim("#package-mutate:"+p.pkgKey, p.pkgKey+"_mutate")
		p.svcQuery = c.names.claim("#service-query:"+p.svc.FullName, p.svc.Name+"_query", underscore(p.svc.FullName)+"_query")
		p.svcMutate = c.names.claim("#service-mutate:"+p.svc.FullName, p.svc.Name+"_mutate", underscore(p.svc.FullName)+"_mutate")
	}
	return plans, nil
}

func (c *converter) methodType(svc *protoreg.Service, m *protoreg.Method, typeName string) (*protoreg.Message, error) {
	msg := c.tree.Resolve(svc.Package, typeName)
	if msg == nil {
		return nil, dataIntegrityError(fmt.Errorf("%w: %s.%s: %s", ErrUnresolvedType, svc.FullName, m.Name, typeName))
	}
	if msg.IsEnum() {
		return nil, dataIntegrityError(fmt.Errorf("%w: %s.%s: %s", ErrNotAMessageType, svc.FullName, m.Name, typeName))
	}
	return msg, nil
}

// markOutput marks m and every message reachable through its fields.
func (c *converter) markOutput(m *protoreg.Message) {
	if m.IsEnum() || c.outputs[m.FullName] {
		return
	}
	c.outputs[m.FullName] = true
	for _, f := range m.Fields {
		if f.TypeName == "" {
			continue
		}
		if target := c.tree.Resolve(m.FullName, f.TypeName); target != nil {
			c.markOutput(target)
		}
	}
}

func (c *converter) service(p *servicePlan) (*Service, error) {
	out := &Service{Service: p.svc, Config: p.eff, PackageKey: p.pkgKey}

	var queryBlock, mutateBlock *schema.Block
	for i, m := range p.methods {
		req, err := c.message(p.requests[i], true)
		if err != nil {
			return nil, err
		}
		resp, err := c.message(p.responses[i], false)
		if err != nil {
			return nil, err
		}
		q, mu := p.eff.Surfaces(m.Name)
		if q {
			if queryBlock, err = c.addMethod(queryBlock, p.svcQuery, m, req, resp); err != nil {
				return nil, err
			}
		}
		if mu {
			if mutateBlock, err = c.addMethod(mutateBlock, p.svcMutate, m, req, resp); err != nil {
				return nil, err
			}
		}
		out.Methods = append(out.Methods, &Method{
			Method:       m,
			Query:        q,
			Mutation:     mu,
			RequestType:  req.Name(),
			ResponseType: resp.Name(),
		})
	}

	if queryBlock != nil {
		if err := c.attach(c.reg.Query(), p.pkgQuery, p.pkgKey, p.svc.Name, queryBlock); err != nil {
			return nil, err
		}
		out.PackageQueryType, out.QueryType = p.pkgQuery, queryBlock.Name
	}
	if mutateBlock != nil {
		if err := c.attach(c.reg.Mutation(), p.pkgMutate, p.pkgKey, p.svc.Name, mutateBlock); err != nil {
			return nil, err
		}
		out.PackageMutationType, out.MutationType = p.pkgMutate, mutateBlock.Name
	}
	return out, nil
}

// addMethod adds a method field to the service namespace block, creating
// the block on first use.
func (c *converter) addMethod(b *schema.Block, name string, m *protoreg.Method, req, resp *schema.TypeRef) (*schema.Block, error) {
	if b == nil {
		var err error
		if b, err = c.reg.CreateType(name); err != nil {
			return nil, configurationError(err)
		}
	}
	params := []*schema.Param{{Name: RequestParam, Type: req, Nullable: true}}
	if _, err := b.AddFieldWithParams(m.Name, params, resp); err != nil {
		return nil, configurationError(err)
	}
	return b, nil
}

// attach registers a service namespace block under its package namespace
// block, creating the package block and its root field on first use.
func (c *converter) attach(root *schema.Block, pkgBlockName, pkgKey, svcName string, svcBlock *schema.Block) error {
	pkgBlock := c.reg.Get(pkgBlockName)
	if pkgBlock == nil {
		var err error
		if pkgBlock, err = c.reg.CreateType(pkgBlockName); err != nil {
			return configurationError(err)
		}
		if _, err := root.AddField(pkgKey, schema.BlockRef(pkgBlock)); err != nil {
			return configurationError(err)
		}
	}
	if _, err := pkgBlock.AddField(svcName, schema.BlockRef(svcBlock)); err != nil {
		return configurationError(err)
	}
	return nil
}

// message converts a message once per role. Referenced message and enum
// types are converted before the block itself is registered; a reference
// back to a message still being converted resolves to its interned name.
func (c *converter) message(m *protoreg.Message, input bool) (*schema.TypeRef, error) {
	if m.IsEnum() {
		return c.enum(m)
	}
	key := declKey(m, input)
	if b, ok := c.blocks[key]; ok {
		return schema.BlockRef(b), nil
	}
	name := c.typeName(m, input)
	if c.inProgress[key] {
		return schema.MessageRef(name), nil
	}
	c.inProgress[key] = true
	defer delete(c.inProgress, key)

	for _, e := range m.EnumTypes {
		if _, err := c.enum(e); err != nil {
			return nil, err
		}
	}
	refs := make([]*schema.TypeRef, len(m.Fields))
	for i, f := range m.Fields {
		ref, err := c.fieldType(m, f, input)
		if err != nil {
			return nil, err
		}
		refs[i] = ref
	}

	kind := schema.KindType
	if input {
		kind = schema.KindInput
	}
	b, err := c.reg.Create(kind, name)
	if err != nil {
		return nil, configurationError(err)
	}
	for i, f := range m.Fields {
		if _, err := b.AddField(f.Name, refs[i], typemap.Label(f.Label).Options()...); err != nil {
			return nil, configurationError(err)
		}
	}
	if len(m.Fields) == 0 {
		if _, err := b.AddField(schema.PlaceholderField, schema.ScalarRef(schema.Boolean)); err != nil {
			return nil, configurationError(err)
		}
	}
	c.blocks[key] = b
	return schema.BlockRef(b), nil
}

func (c *converter) fieldType(m *protoreg.Message, f *protoreg.Field, input bool) (*schema.TypeRef, error) {
	if s, ok := typemap.MapScalar(f.Type); ok {
		return schema.ScalarRef(s), nil
	}
	if f.TypeName == "" {
		_, err := typemap.Ref(f.Type, "")
		return nil, dataIntegrityError(fmt.Errorf("%s.%s: %w", m.FullName, f.Name, err))
	}
	target := c.tree.Resolve(m.FullName, f.TypeName)
	if target == nil {
		return nil, dataIntegrityError(fmt.Errorf("%w: %s.%s: %s", ErrUnresolvedType, m.FullName, f.Name, f.TypeName))
	}
	return c.message(target, input)
}

func (c *converter) enum(m *protoreg.Message) (*schema.TypeRef, error) {
	key := declKey(m, false)
	if b, ok := c.blocks[key]; ok {
		return schema.BlockRef(b), nil
	}
	b, err := c.reg.CreateEnum(c.typeName(m, false))
	if err != nil {
		return nil, configurationError(err)
	}
	for _, v := range m.Values {
		if _, err := b.AddField(v, nil); err != nil {
			return nil, configurationError(err)
		}
	}
	c.blocks[key] = b
	return schema.BlockRef(b), nil
}
