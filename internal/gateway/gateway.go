// Package gateway serves converted schemas over HTTP and forwards method
// fields to their gRPC backends.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/hanpama/protogql/internal/binding"
	"github.com/hanpama/protogql/internal/convert"
	"github.com/hanpama/protogql/internal/eventbus"
	"github.com/hanpama/protogql/internal/events"
	"github.com/hanpama/protogql/internal/grpcrt"
	"github.com/hanpama/protogql/internal/grpctp"
	"github.com/hanpama/protogql/internal/introspection"
	"github.com/hanpama/protogql/internal/language"
	"github.com/hanpama/protogql/internal/protoreg"
	"github.com/hanpama/protogql/internal/routing"
	"github.com/hanpama/protogql/internal/server"
	"github.com/rs/zerolog"
)

var (
	// ErrNoSchema is returned when the inputs produce no field at all.
	ErrNoSchema = errors.New("gateway: no schema")
	// ErrNoInput is returned when neither a descriptor set nor a tree document is given.
	ErrNoInput = errors.New("gateway: no descriptor input")
	// ErrNotLoaded is returned by Endpoints before the first successful load.
	ErrNotLoaded = errors.New("gateway: schema not loaded")
)

// Source names the input files of a build.
type Source struct {
	// DescriptorSet is a binary FileDescriptorSet (protoc --descriptor_set_out).
	DescriptorSet string
	// Tree is a JSON or YAML descriptor tree document. Methods built from it
	// carry no descriptors and cannot be called.
	Tree string
	// Config is the routing configuration.
	Config string
}

// Paths lists the non-empty input paths.
func (s Source) Paths() []string {
	var out []string
	for _, p := range []string{s.DescriptorSet, s.Tree, s.Config} {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Build is the result of converting one set of inputs.
type Build struct {
	Result *convert.Result
	SDL    string
	Schema *language.Schema
	Table  *binding.Table
}

// Load reads the inputs, converts them and validates the SDL.
func Load(ctx context.Context, src Source) (*Build, error) {
	tree, err := loadTree(src)
	if err != nil {
		return nil, err
	}
	cfg, err := routing.Load(src.Config)
	if err != nil {
		return nil, fmt.Errorf("routing config: %w", err)
	}
	return Compile(ctx, tree, cfg)
}

// Compile converts an already loaded tree and configuration.
func Compile(ctx context.Context, tree *protoreg.Tree, cfg *routing.Config) (*Build, error) {
	res, err := convert.Convert(ctx, tree, cfg)
	if err != nil {
		return nil, err
	}
	sdl, ok := res.Registry.SDL()
	if !ok {
		return nil, ErrNoSchema
	}
	sch, err := language.LoadSchema("protogql.graphql", sdl)
	if err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}
	return &Build{Result: res, SDL: sdl, Schema: sch, Table: binding.Build(res)}, nil
}

func loadTree(src Source) (*protoreg.Tree, error) {
	switch {
	case src.DescriptorSet != "":
		return protoreg.LoadFileDescriptorSet(src.DescriptorSet)
	case src.Tree != "":
		return protoreg.LoadTree(src.Tree)
	}
	return nil, ErrNoInput
}

// Gateway owns the HTTP handler and the gRPC transport, and swaps the
// schema they serve on Reload.
type Gateway struct {
	src       Source
	handler   *server.Handler
	transport grpcrt.Transport
	table     atomic.Pointer[binding.Table]
	logger    zerolog.Logger
}

// Options configures a Gateway.
type Options struct {
	Logger           zerolog.Logger
	Transport        grpcrt.Transport
	TransportOptions []grpctp.Option
	ServerOptions    []server.Option
}

type Option func(*Options)

func WithLogger(l zerolog.Logger) Option { return func(o *Options) { o.Logger = l } }

// WithTransport replaces the pooled gRPC transport, for example with a mock.
func WithTransport(t grpcrt.Transport) Option { return func(o *Options) { o.Transport = t } }

func WithTransportOptions(opts ...grpctp.Option) Option {
	return func(o *Options) { o.TransportOptions = opts }
}

func WithServerOptions(opts ...server.Option) Option {
	return func(o *Options) { o.ServerOptions = opts }
}

// New creates a gateway for src. It serves 503 until the first Reload.
func New(src Source, opts ...Option) *Gateway {
	op := Options{Logger: zerolog.Nop()}
	for _, f := range opts {
		f(&op)
	}
	g := &Gateway{
		src:     src,
		handler: server.New(op.ServerOptions...),
		logger:  op.Logger.With().Str("component", "gateway").Logger(),
	}
	g.transport = op.Transport
	if g.transport == nil {
		tpOpts := append([]grpctp.Option{grpctp.WithProvider(g)}, op.TransportOptions...)
		g.transport = grpctp.New(tpOpts...)
	}
	return g
}

// Reload rebuilds the schema from the input files. On failure the previous
// schema keeps being served.
func (g *Gateway) Reload(ctx context.Context, trigger string) error {
	start := time.Now()
	b, err := Load(ctx, g.src)
	if err == nil {
		g.apply(b)
	}
	eventbus.Publish(ctx, events.SchemaReload{Trigger: trigger, Err: err, Duration: time.Since(start)})
	if err != nil {
		g.logger.Error().Err(err).Str("trigger", trigger).Msg("schema build failed")
		return err
	}
	g.logger.Info().
		Str("trigger", trigger).
		Int("services", len(b.Result.Services)).
		Int("bindings", b.Table.Len()).
		Dur("duration", time.Since(start)).
		Msg("schema loaded")
	return nil
}

func (g *Gateway) apply(b *Build) {
	rt := introspection.Wrap(grpcrt.NewRuntime(b.Table, g.transport), b.Schema)
	g.table.Store(b.Table)
	g.handler.Update(rt, b.Schema, b.SDL)
}

// Endpoints resolves a service to the host:port of the current routing
// configuration.
func (g *Gateway) Endpoints(ctx context.Context, service string) ([]string, error) {
	t := g.table.Load()
	if t == nil {
		return nil, ErrNotLoaded
	}
	return t.Endpoints(ctx, service)
}

// Handler returns the GraphQL HTTP handler.
func (g *Gateway) Handler() *server.Handler { return g.handler }

// Routes mounts the GraphQL endpoint and the schema document on mux.
func (g *Gateway) Routes(mux *http.ServeMux) {
	mux.Handle("/graphql", g.handler)
	mux.Handle("/schema.graphql", g.handler.SchemaHandler())
}

// Source returns the inputs the gateway builds from.
func (g *Gateway) Source() Source { return g.src }

// Close releases the transport's connections.
func (g *Gateway) Close() error {
	if c, ok := g.transport.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
