package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/hanpama/protogql/internal/executor"
	"github.com/hanpama/protogql/internal/language"
	"github.com/hanpama/protogql/internal/reqid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/metadata"
)

const testSDL = `type Query { hello: String }
type Mutation { touch: Boolean }
`

func newTestHandler(t *testing.T, rt executor.Runtime, opts ...Option) *Handler {
	t.Helper()
	sch, err := language.LoadSchema("test.graphql", testSDL)
	require.NoError(t, err)
	h := New(opts...)
	h.Update(rt, sch, testSDL)
	return h
}

func postQuery(h http.Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", "/", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) specResult {
	t.Helper()
	var res specResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	return res
}

func TestForwardedHeaders(t *testing.T) {
	rt := executor.NewMockRuntime(nil)
	var captured metadata.MD
	rt.SetResolver("Query", "hello", func(ctx context.Context, src any, args map[string]any) (any, error) {
		captured, _ = metadata.FromOutgoingContext(ctx)
		return "world", nil
	})
	h := newTestHandler(t, rt, WithMetadataHeaders("X-Test"))

	req := httptest.NewRequest("POST", "/", bytes.NewBufferString(`{"query":"{ hello }"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Test", "abc")
	req.Header.Set("X-Other", "nope")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	if captured == nil || captured.Get("x-test")[0] != "abc" || len(captured.Get("x-other")) > 0 {
		t.Fatalf("metadata not propagated correctly: %v", captured)
	}
}

func TestForwardedHeadersDefaultEmpty(t *testing.T) {
	rt := executor.NewMockRuntime(nil)
	var captured metadata.MD
	rt.SetResolver("Query", "hello", func(ctx context.Context, src any, args map[string]any) (any, error) {
		captured, _ = metadata.FromOutgoingContext(ctx)
		return "world", nil
	})
	h := newTestHandler(t, rt)

	req := httptest.NewRequest("POST", "/", bytes.NewBufferString(`{"query":"{ hello }"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Test", "abc")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	if captured != nil && len(captured.Get("x-test")) > 0 {
		t.Fatalf("header should not be forwarded by default: %v", captured)
	}
}

func TestCORSAndPreflight(t *testing.T) {
	rt := executor.NewMockRuntime(map[string]executor.MockResolver{
		"Query.hello": executor.NewMockValueResolver("world"),
	})
	h := newTestHandler(t, rt, WithCORS("*"))

	// simple request
	req := httptest.NewRequest("POST", "/", bytes.NewBufferString(`{"query":"{ hello }"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", "http://example.com")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("missing CORS header")
	}

	// preflight
	pre := httptest.NewRequest("OPTIONS", "/", nil)
	pre.Header.Set("Origin", "http://example.com")
	pre.Header.Set("Access-Control-Request-Headers", "X-Test")
	pw := httptest.NewRecorder()
	h.ServeHTTP(pw, pre)
	if pw.Code != http.StatusNoContent {
		t.Fatalf("preflight status %d", pw.Code)
	}
	if pw.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("preflight missing CORS header")
	}
	if pw.Header().Get("Access-Control-Allow-Headers") != "X-Test" {
		t.Fatalf("preflight missing allow headers")
	}
}

func TestCORSSpecificOrigin(t *testing.T) {
	h := newTestHandler(t, executor.NewMockRuntime(nil), WithCORS("http://a.example"))

	for origin, want := range map[string]string{
		"http://a.example": "http://a.example",
		"http://b.example": "",
	} {
		req := httptest.NewRequest("POST", "/", bytes.NewBufferString(`{"query":"{ hello }"}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Origin", origin)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		assert.Equal(t, want, w.Header().Get("Access-Control-Allow-Origin"), origin)
	}
}

func TestMaxBodyBytes(t *testing.T) {
	rt := executor.NewMockRuntime(map[string]executor.MockResolver{
		"Query.hello": executor.NewMockValueResolver("world"),
	})
	h := newTestHandler(t, rt, WithMaxBodyBytes(10))

	w := postQuery(h, `{"query":"1234567890"}`)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413 got %d", w.Code)
	}
}

func TestRequestID(t *testing.T) {
	rt := executor.NewMockRuntime(nil)
	var capturedMD metadata.MD
	var capturedID int64
	rt.SetResolver("Query", "hello", func(ctx context.Context, src any, args map[string]any) (any, error) {
		capturedMD, _ = metadata.FromOutgoingContext(ctx)
		capturedID, _ = reqid.FromContext(ctx)
		return "world", nil
	})
	h := newTestHandler(t, rt)

	w := postQuery(h, `{"query":"{ hello }"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	if capturedID == 0 {
		t.Fatalf("missing request id in context")
	}
	if got := capturedMD.Get("graphql-request-id"); len(got) == 0 || got[0] != strconv.FormatInt(capturedID, 10) {
		t.Fatalf("metadata mismatch: %v id %d", capturedMD, capturedID)
	}
}

func TestNotReady(t *testing.T) {
	h := New()
	assert.False(t, h.Ready())

	w := postQuery(h, `{"query":"{ hello }"}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	res := decode(t, w)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, errNotReadyMessage, res.Errors[0].Message)

	sw := httptest.NewRecorder()
	h.SchemaHandler().ServeHTTP(sw, httptest.NewRequest("GET", "/schema.graphql", nil))
	assert.Equal(t, http.StatusServiceUnavailable, sw.Code)
}

func TestUpdateSwapsSchema(t *testing.T) {
	rt := executor.NewMockRuntime(map[string]executor.MockResolver{
		"Query.hello": executor.NewMockValueResolver("world"),
		"Query.bye":   executor.NewMockValueResolver("moon"),
	})
	h := newTestHandler(t, rt)
	require.True(t, h.Ready())

	res := decode(t, postQuery(h, `{"query":"{ bye }"}`))
	require.Len(t, res.Errors, 1)

	next := "type Query { bye: String }\n"
	sch, err := language.LoadSchema("next.graphql", next)
	require.NoError(t, err)
	h.Update(rt, sch, next)

	res = decode(t, postQuery(h, `{"query":"{ bye }"}`))
	assert.Empty(t, res.Errors)
	assert.Equal(t, map[string]any{"bye": "moon"}, res.Data)

	sw := httptest.NewRecorder()
	h.SchemaHandler().ServeHTTP(sw, httptest.NewRequest("GET", "/schema.graphql", nil))
	assert.Equal(t, http.StatusOK, sw.Code)
	assert.True(t, strings.HasPrefix(sw.Header().Get("Content-Type"), "text/plain"))
	body, _ := io.ReadAll(sw.Body)
	assert.Equal(t, next, string(body))
}

func TestValidationErrors(t *testing.T) {
	rt := executor.NewMockRuntime(nil)
	h := newTestHandler(t, rt)

	w := postQuery(h, `{"query":"{ nope }"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	res := decode(t, w)
	assert.Nil(t, res.Data)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0].Message, `"nope"`)
	assert.Equal(t, []specLocation{{Line: 1, Column: 3}}, res.Errors[0].Locations)

	res = decode(t, postQuery(h, `{"query":"{ hello "}`))
	require.NotEmpty(t, res.Errors)
	assert.NotEmpty(t, res.Errors[0].Locations)

	assert.Empty(t, rt.GetCalls())
}

func TestGETRequests(t *testing.T) {
	rt := executor.NewMockRuntime(map[string]executor.MockResolver{
		"Query.hello":    executor.NewMockValueResolver("world"),
		"Mutation.touch": executor.NewMockValueResolver(true),
	})
	h := newTestHandler(t, rt)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/?query=%7B+hello+%7D", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]any{"hello": "world"}, decode(t, w).Data)

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/?query=mutation+%7B+touch+%7D", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)

	w = httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Accept", "text/html")
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "graphiql")

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("DELETE", "/", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestBatch(t *testing.T) {
	rt := executor.NewMockRuntime(map[string]executor.MockResolver{
		"Query.hello": executor.NewMockValueResolver("world"),
	})
	h := newTestHandler(t, rt)

	w := postQuery(h, `[{"query":"{ hello }"},{"query":"{ nope }"}]`)
	assert.Equal(t, http.StatusOK, w.Code)
	var out []specResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	require.Len(t, out, 2)
	assert.Equal(t, map[string]any{"hello": "world"}, out[0].Data)
	assert.Len(t, out[1].Errors, 1)

	w = postQuery(h, `[]`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
