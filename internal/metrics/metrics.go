// Package metrics exposes Prometheus collectors fed by bus events.
package metrics

import (
	"context"
	"net/http"
	"strconv"

	"github.com/hanpama/protogql/internal/eventbus"
	"github.com/hanpama/protogql/internal/events"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// LatencyBuckets is used by every duration histogram. Change it before
// calling New.
var LatencyBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}

// Config is the set of options for creating collectors.
type Config struct {
	Namespace string
}

// Collectors holds the gateway's metrics.
type Collectors struct {
	httpRequests    *prometheus.CounterVec
	httpDuration    prometheus.Histogram
	graphqlOps      *prometheus.CounterVec
	graphqlDuration *prometheus.HistogramVec
	grpcCalls       *prometheus.CounterVec
	grpcDuration    *prometheus.HistogramVec
	conversions     *prometheus.CounterVec
	schemaReloads   *prometheus.CounterVec
	schemaMethods   prometheus.Gauge
}

// New creates unregistered collectors. An empty namespace defaults to "protogql".
func New(cfg Config) *Collectors {
	ns := cfg.Namespace
	if ns == "" {
		ns = "protogql"
	}
	return &Collectors{
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "http", Name: "requests_total",
			Help: "HTTP requests by status code.",
		}, []string{"code"}),
		httpDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns, Subsystem: "http", Name: "request_duration_seconds",
			Help: "HTTP request latency.", Buckets: LatencyBuckets,
		}),
		graphqlOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "graphql", Name: "operations_total",
			Help: "Executed GraphQL operations by type and outcome.",
		}, []string{"type", "outcome"}),
		graphqlDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns, Subsystem: "graphql", Name: "operation_duration_seconds",
			Help: "GraphQL execution latency.", Buckets: LatencyBuckets,
		}, []string{"type"}),
		grpcCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "grpc", Name: "client_calls_total",
			Help: "Backend RPCs by service, method and status code.",
		}, []string{"service", "method", "code"}),
		grpcDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns, Subsystem: "grpc", Name: "client_call_duration_seconds",
			Help: "Backend RPC latency.", Buckets: LatencyBuckets,
		}, []string{"service", "method"}),
		conversions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "schema", Name: "conversions_total",
			Help: "Descriptor conversion runs by outcome.",
		}, []string{"outcome"}),
		schemaReloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "schema", Name: "reloads_total",
			Help: "Gateway schema reloads by outcome.",
		}, []string{"outcome"}),
		schemaMethods: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Subsystem: "schema", Name: "methods",
			Help: "Methods exposed by the last successful conversion.",
		}),
	}
}

// PrometheusCollectors returns every collector for registration.
func (c *Collectors) PrometheusCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		c.httpRequests, c.httpDuration,
		c.graphqlOps, c.graphqlDuration,
		c.grpcCalls, c.grpcDuration,
		c.conversions, c.schemaReloads, c.schemaMethods,
	}
}

// Register registers the collectors with r.
func (c *Collectors) Register(r prometheus.Registerer) error {
	for _, m := range c.PrometheusCollectors() {
		if err := r.Register(m); err != nil {
			return err
		}
	}
	return nil
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// Subscribe feeds the collectors from b.
func (c *Collectors) Subscribe(b *eventbus.Bus) (unsubscribe func()) {
	unsubs := []func(){
		eventbus.SubscribeTo(b, func(_ context.Context, e events.HTTPFinish) {
			c.httpRequests.WithLabelValues(strconv.Itoa(e.Status)).Inc()
			c.httpDuration.Observe(e.Duration.Seconds())
		}),
		eventbus.SubscribeTo(b, func(_ context.Context, e events.GraphQLFinish) {
			res := "success"
			if len(e.Errors) > 0 {
				res = "error"
			}
			c.graphqlOps.WithLabelValues(e.OperationType, res).Inc()
			c.graphqlDuration.WithLabelValues(e.OperationType).Observe(e.Duration.Seconds())
		}),
		eventbus.SubscribeTo(b, func(_ context.Context, e events.GRPCClientFinish) {
			c.grpcCalls.WithLabelValues(e.Service, e.Method, e.Code.String()).Inc()
			c.grpcDuration.WithLabelValues(e.Service, e.Method).Observe(e.Duration.Seconds())
		}),
		eventbus.SubscribeTo(b, func(_ context.Context, e events.ConversionFinish) {
			c.conversions.WithLabelValues(outcome(e.Err)).Inc()
			if e.Err == nil {
				c.schemaMethods.Set(float64(e.Methods))
			}
		}),
		eventbus.SubscribeTo(b, func(_ context.Context, e events.SchemaReload) {
			c.schemaReloads.WithLabelValues(outcome(e.Err)).Inc()
		}),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

// Handler serves the gathered metrics, instrumented with r.
func Handler(r prometheus.Registerer, g prometheus.Gatherer) http.Handler {
	return promhttp.InstrumentMetricHandler(r, promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
}
