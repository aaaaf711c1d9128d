package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hanpama/protogql/internal/eventbus"
	"github.com/hanpama/protogql/internal/events"
	"github.com/hanpama/protogql/internal/reqid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
)

func lines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, l := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if l == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(l), &m))
		out = append(out, m)
	}
	return out
}

func TestSubscribe(t *testing.T) {
	var buf bytes.Buffer
	bus := eventbus.New()
	unsubscribe := Subscribe(bus, zerolog.New(&buf).Level(zerolog.InfoLevel))
	ctx, id := reqid.NewContext(context.Background())

	// below the configured level
	eventbus.PublishTo(ctx, bus, events.HTTPFinish{Request: httptest.NewRequest("POST", "/graphql", nil), Status: 200})
	eventbus.PublishTo(ctx, bus, events.GRPCClientFinish{Service: "helloworld.Greeter", Method: "SayHello", Code: codes.OK})

	eventbus.PublishTo(ctx, bus, events.GRPCClientFinish{
		Service: "helloworld.Greeter", Method: "SayHello", Target: "localhost:50051",
		Code: codes.Unavailable, Err: errors.New("connection refused"),
	})
	eventbus.PublishTo(ctx, bus, events.ConversionFinish{Packages: 1, Err: errors.New("unknown package")})
	eventbus.PublishTo(ctx, bus, events.GraphQLFinish{OperationType: "query", Errors: []error{errors.New("boom")}})

	unsubscribe()
	eventbus.PublishTo(ctx, bus, events.ConversionFinish{Err: errors.New("ignored")})

	got := lines(t, &buf)
	require.Len(t, got, 3)

	assert.Equal(t, "warn", got[0]["level"])
	assert.Equal(t, "grpc", got[0]["component"])
	assert.Equal(t, "Unavailable", got[0]["code"])
	assert.Equal(t, "connection refused", got[0]["error"])
	assert.Equal(t, reqid.String(ctx), got[0]["request_id"])
	assert.NotZero(t, id)

	assert.Equal(t, "error", got[1]["level"])
	assert.Equal(t, "convert", got[1]["component"])

	assert.Equal(t, "info", got[2]["level"])
	assert.Equal(t, []any{"boom"}, got[2]["errors"])
}
