package grpctp_test

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/hanpama/protogql/internal/eventbus"
	"github.com/hanpama/protogql/internal/events"
	"github.com/hanpama/protogql/internal/grpctp"
	"github.com/hanpama/protogql/internal/prototest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"
)

// greeterServer serves helloworld.Greeter/SayHello without generated code.
type greeterServer struct {
	method protoreflect.MethodDescriptor

	mu      sync.Mutex
	headers []metadata.MD
	delay   time.Duration
}

func (s *greeterServer) handle(_ any, stream grpc.ServerStream) error {
	full, _ := grpc.MethodFromServerStream(stream)
	if full != "/helloworld.Greeter/SayHello" {
		return status.Errorf(codes.Unimplemented, "unknown method %s", full)
	}
	md, _ := metadata.FromIncomingContext(stream.Context())
	s.mu.Lock()
	s.headers = append(s.headers, md)
	delay := s.delay
	s.mu.Unlock()

	req := dynamicpb.NewMessage(s.method.Input())
	if err := stream.RecvMsg(req); err != nil {
		return err
	}
	name := req.Get(s.method.Input().Fields().ByName("name")).String()
	if name == "" {
		return status.Error(codes.InvalidArgument, "name is required")
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-stream.Context().Done():
			return stream.Context().Err()
		}
	}
	resp := dynamicpb.NewMessage(s.method.Output())
	resp.Set(s.method.Output().Fields().ByName("message"), protoreflect.ValueOfString("Hello "+name))
	return stream.SendMsg(resp)
}

func startGreeter(t *testing.T) (*greeterServer, protoreflect.MethodDescriptor, grpc.DialOption) {
	t.Helper()
	md := prototest.Helloworld(t).Services().ByName("Greeter").Methods().ByName("SayHello")
	gs := &greeterServer{method: md}

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(grpc.UnknownServiceHandler(gs.handle))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	dialer := grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	})
	return gs, md, dialer
}

func request(md protoreflect.MethodDescriptor, name string) protoreflect.Message {
	req := dynamicpb.NewMessage(md.Input())
	req.Set(md.Input().Fields().ByName("name"), protoreflect.ValueOfString(name))
	return req
}

func TestCall(t *testing.T) {
	gs, md, dialer := startGreeter(t)
	tp := grpctp.New(
		grpctp.WithProvider(grpctp.NewStaticEndpoints(map[string][]string{"helloworld.Greeter": {"bufnet"}})),
		grpctp.WithDialOptions(dialer, grpc.WithTransportCredentials(insecure.NewCredentials())),
	)
	t.Cleanup(func() { _ = tp.Close() })

	bus := eventbus.New()
	eventbus.Use(bus)
	t.Cleanup(func() { eventbus.Use(nil) })
	var starts []events.GRPCClientStart
	var finishes []events.GRPCClientFinish
	eventbus.SubscribeTo(bus, func(_ context.Context, e events.GRPCClientStart) { starts = append(starts, e) })
	eventbus.SubscribeTo(bus, func(_ context.Context, e events.GRPCClientFinish) { finishes = append(finishes, e) })

	ctx := metadata.AppendToOutgoingContext(context.Background(), "authorization", "Bearer t")
	resp, err := tp.Call(ctx, md, request(md, "Ada"))
	require.NoError(t, err)
	assert.Equal(t, "Hello Ada", resp.Get(md.Output().Fields().ByName("message")).String())

	_, err = tp.Call(context.Background(), md, request(md, ""))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	require.Len(t, gs.headers, 2)
	assert.Equal(t, []string{"helloworld.Greeter"}, gs.headers[0].Get(grpctp.ServiceHeader))
	assert.Equal(t, []string{"Bearer t"}, gs.headers[0].Get("authorization"))

	require.Len(t, starts, 2)
	require.Len(t, finishes, 2)
	assert.Equal(t, starts[0].Call, finishes[0].Call)
	assert.NotEqual(t, starts[0].Call, starts[1].Call)
	assert.Equal(t, events.GRPCClientStart{Call: starts[0].Call, Service: "helloworld.Greeter", Method: "SayHello", Target: "bufnet"}, starts[0])
	assert.Equal(t, codes.OK, finishes[0].Code)
	assert.Equal(t, codes.InvalidArgument, finishes[1].Code)
	assert.Error(t, finishes[1].Err)
}

func TestRPCTimeout(t *testing.T) {
	gs, md, dialer := startGreeter(t)
	gs.delay = time.Second
	tp := grpctp.New(
		grpctp.WithProvider(grpctp.NewStaticEndpoints(map[string][]string{"helloworld.Greeter": {"bufnet"}})),
		grpctp.WithDialOptions(dialer, grpc.WithTransportCredentials(insecure.NewCredentials())),
		grpctp.WithRPCTimeout(50*time.Millisecond),
	)
	t.Cleanup(func() { _ = tp.Close() })

	_, err := tp.Call(context.Background(), md, request(md, "Ada"))
	assert.Equal(t, codes.DeadlineExceeded, status.Code(err))
}

type providerFunc func(ctx context.Context, service string) ([]string, error)

func (f providerFunc) Endpoints(ctx context.Context, service string) ([]string, error) {
	return f(ctx, service)
}

func TestEndpointErrors(t *testing.T) {
	md := prototest.Helloworld(t).Services().ByName("Greeter").Methods().ByName("SayHello")
	ctx := context.Background()

	t.Run("static provider without entry", func(t *testing.T) {
		tp := grpctp.New(grpctp.WithProvider(grpctp.NewStaticEndpoints(nil)))
		_, err := tp.Call(ctx, md, request(md, "Ada"))
		assert.ErrorIs(t, err, grpctp.ErrNoEndpoints)
	})

	t.Run("empty endpoint list", func(t *testing.T) {
		tp := grpctp.New(grpctp.WithProvider(providerFunc(func(context.Context, string) ([]string, error) { return nil, nil })))
		_, err := tp.Call(ctx, md, request(md, "Ada"))
		assert.ErrorIs(t, err, grpctp.ErrNoEndpoints)
	})

	t.Run("no provider", func(t *testing.T) {
		_, err := grpctp.New().Call(ctx, md, request(md, "Ada"))
		assert.Error(t, err)
	})

	t.Run("closed", func(t *testing.T) {
		tp := grpctp.New(grpctp.WithProvider(grpctp.NewStaticEndpoints(nil)))
		require.NoError(t, tp.Close())
		require.NoError(t, tp.Close())
		_, err := tp.Call(ctx, md, request(md, "Ada"))
		assert.Error(t, err)
	})
}
