// Package logging writes bus events to a zerolog logger.
package logging

import (
	"context"

	"github.com/hanpama/protogql/internal/eventbus"
	"github.com/hanpama/protogql/internal/events"
	"github.com/hanpama/protogql/internal/reqid"
	"github.com/rs/zerolog"
	"google.golang.org/grpc/codes"
)

// Subscribe logs HTTP, GraphQL, backend and schema events from b.
// Successful requests log at debug level; failures at warn or error.
func Subscribe(b *eventbus.Bus, logger zerolog.Logger) (unsubscribe func()) {
	unsubs := []func(){
		eventbus.SubscribeTo(b, func(ctx context.Context, e events.HTTPFinish) {
			ev := logger.Debug()
			if e.Status >= 500 {
				ev = logger.Warn()
			}
			ev = ev.Str("component", "http").
				Int("status", e.Status).
				Dur("duration", e.Duration)
			if e.Request != nil {
				ev = ev.Str("method", e.Request.Method).Str("path", e.Request.URL.Path)
			}
			ev.Str("request_id", reqid.String(ctx)).Msg("request")
		}),
		eventbus.SubscribeTo(b, func(ctx context.Context, e events.GraphQLFinish) {
			ev := logger.Debug()
			if len(e.Errors) > 0 {
				ev = logger.Info().Errs("errors", e.Errors)
			}
			ev.Str("component", "graphql").
				Str("operation", e.OperationName).
				Str("type", e.OperationType).
				Dur("duration", e.Duration).
				Str("request_id", reqid.String(ctx)).
				Msg("operation")
		}),
		eventbus.SubscribeTo(b, func(ctx context.Context, e events.GRPCClientFinish) {
			ev := logger.Debug()
			if e.Code != codes.OK {
				ev = logger.Warn().Err(e.Err)
			}
			ev.Str("component", "grpc").
				Str("service", e.Service).
				Str("method", e.Method).
				Str("target", e.Target).
				Str("code", e.Code.String()).
				Dur("duration", e.Duration).
				Str("request_id", reqid.String(ctx)).
				Msg("call")
		}),
		eventbus.SubscribeTo(b, func(_ context.Context, e events.ConversionFinish) {
			ev := logger.Debug()
			if e.Err != nil {
				ev = logger.Error().Err(e.Err)
			}
			ev.Str("component", "convert").
				Int("packages", e.Packages).
				Int("services", e.Services).
				Int("methods", e.Methods).
				Int("blocks", e.Blocks).
				Bool("empty", e.Empty).
				Dur("duration", e.Duration).
				Msg("conversion")
		}),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}
