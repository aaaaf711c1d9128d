package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hanpama/protogql/internal/eventbus"
	"github.com/hanpama/protogql/internal/gateway"
	"github.com/hanpama/protogql/internal/grpctp"
	"github.com/hanpama/protogql/internal/logging"
	"github.com/hanpama/protogql/internal/metrics"
	"github.com/hanpama/protogql/internal/otel"
	"github.com/hanpama/protogql/internal/protoreg"
	"github.com/hanpama/protogql/internal/server"
	"github.com/hanpama/protogql/internal/watch"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"
)

func sourceOf(c *cli.Command) gateway.Source {
	return gateway.Source{
		DescriptorSet: c.String("descriptor-set"),
		Tree:          c.String("tree"),
		Config:        c.String("config"),
	}
}

func compileSDL(ctx context.Context, out io.Writer, src gateway.Source, outFile string) error {
	b, err := gateway.Load(ctx, src)
	if errors.Is(err, gateway.ErrNoSchema) {
		log.Warn().Msg("no schema: the configuration exposes no method")
		return nil
	}
	if err != nil {
		return err
	}
	if outFile == "" {
		_, err = io.WriteString(out, b.SDL)
		return err
	}
	return os.WriteFile(outFile, []byte(b.SDL), 0644)
}

func printBindings(ctx context.Context, out io.Writer, src gateway.Source) error {
	b, err := gateway.Load(ctx, src)
	if err != nil {
		return err
	}
	for _, e := range b.Table.Entries() {
		switch {
		case e.Method != nil:
			fmt.Fprintf(out, "%s\t%s\t%s -> %s\n", e.Path, e.Kind, e.Service.Service.FullName, e.Service.Config.Endpoint())
		default:
			fmt.Fprintf(out, "%s\t%s\t%s\n", e.Path, e.Kind, e.ReturnType)
		}
	}
	return nil
}

func printProto(descriptorSet, outDir string) error {
	tree, err := protoreg.LoadFileDescriptorSet(descriptorSet)
	if err != nil {
		return fmt.Errorf("load descriptors: %w", err)
	}
	if err := protoreg.Render(tree, outDir); err != nil {
		return fmt.Errorf("render proto: %w", err)
	}
	return nil
}

func serveCommand() *cli.Command {
	flags := append(inputFlags(),
		&cli.StringFlag{Name: "addr", Usage: "HTTP listen address", Value: ":8080", Sources: cli.EnvVars("PROTOGQL_ADDR")},
		&cli.BoolFlag{Name: "pretty", Usage: "pretty-print JSON responses"},
		&cli.DurationFlag{Name: "timeout", Usage: "per-request timeout", Value: 10 * time.Second},
		&cli.StringSliceFlag{Name: "metadata-header", Usage: "forward an HTTP header to gRPC metadata (repeatable)"},
		&cli.StringSliceFlag{Name: "cors-origin", Usage: "allowed CORS origin, * for any (repeatable)"},
		&cli.BoolFlag{Name: "graphiql", Usage: "serve the GraphiQL IDE to browsers", Value: true},
		&cli.IntFlag{Name: "max-conns-per-endpoint", Usage: "gRPC connections per backend", Value: 2},
		&cli.DurationFlag{Name: "rpc-timeout", Usage: "backend RPC timeout", Value: 3 * time.Second},
		&cli.BoolFlag{Name: "watch", Usage: "rebuild the schema when an input file changes"},
		&cli.BoolFlag{Name: "metrics", Usage: "serve Prometheus metrics at /metrics", Value: true},
		&cli.StringFlag{Name: "otel-endpoint", Usage: "OTLP gRPC collector endpoint", Sources: cli.EnvVars("OTEL_EXPORTER_OTLP_ENDPOINT")},
		&cli.StringFlag{Name: "otel-service", Usage: "OpenTelemetry service name", Value: "protogql"},
		&cli.BoolFlag{Name: "otel-insecure", Usage: "connect to the collector without TLS"},
	)
	return &cli.Command{
		Name:   "serve",
		Usage:  "Run the GraphQL gateway in front of the gRPC backends",
		Flags:  flags,
		Action: serve,
	}
}

func serve(ctx context.Context, c *cli.Command) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	logger := log.Logger

	bus := eventbus.New()
	eventbus.Use(bus)
	defer logging.Subscribe(bus, logger)()

	shutdown, err := otel.Setup(ctx, c.String("otel-endpoint"), c.String("otel-service"), c.Bool("otel-insecure"))
	if err != nil {
		return fmt.Errorf("otel setup: %w", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	sopts := []server.Option{server.WithTimeout(c.Duration("timeout")), server.WithGraphiQL(c.Bool("graphiql"))}
	if c.Bool("pretty") {
		sopts = append(sopts, server.WithPretty())
	}
	if hs := c.StringSlice("metadata-header"); len(hs) > 0 {
		sopts = append(sopts, server.WithMetadataHeaders(hs...))
	}
	if origins := c.StringSlice("cors-origin"); len(origins) > 0 {
		sopts = append(sopts, server.WithCORS(origins...))
	}
	g := gateway.New(sourceOf(c),
		gateway.WithLogger(logger),
		gateway.WithServerOptions(sopts...),
		gateway.WithTransportOptions(
			grpctp.WithMaxConnsPerEndpoint(int(c.Int("max-conns-per-endpoint"))),
			grpctp.WithRPCTimeout(c.Duration("rpc-timeout")),
		),
	)
	defer g.Close()

	mux, cleanup, err := startGateway(ctx, g, bus, c.Bool("metrics"))
	if err != nil {
		return err
	}
	defer cleanup()

	if c.Bool("watch") {
		w, err := watch.New(g.Source().Paths(), 200*time.Millisecond, func(path string) {
			_ = g.Reload(ctx, path)
		}, logger)
		if err != nil {
			return err
		}
		defer w.Close()
		go func() { _ = w.Start(ctx) }()
	}

	srv := &http.Server{
		Addr:              c.String("addr"),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("GraphQL server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// startGateway mounts the gateway routes and, when enabled, the metrics
// endpoint, then loads the first schema. Collectors subscribe before the
// first reload so that the startup conversion is counted.
func startGateway(ctx context.Context, g *gateway.Gateway, bus *eventbus.Bus, withMetrics bool) (*http.ServeMux, func(), error) {
	mux := http.NewServeMux()
	g.Routes(mux)
	cleanup := func() {}
	if withMetrics {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		mc := metrics.New(metrics.Config{})
		if err := mc.Register(reg); err != nil {
			return nil, nil, err
		}
		cleanup = mc.Subscribe(bus)
		mux.Handle("/metrics", metrics.Handler(reg, reg))
	}
	if err := g.Reload(ctx, "startup"); err != nil {
		cleanup()
		return nil, nil, err
	}
	return mux, cleanup, nil
}
