package grpc

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/example/storefront/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

type fakeStore struct {
	down atomic.Bool
}

func (f *fakeStore) Ping(context.Context) error {
	if f.down.Load() {
		return errors.New("no reachable servers")
	}
	return nil
}

func startHealth(t *testing.T, store Pinger) (*HealthServer, grpc.DialOption) {
	t.Helper()
	cfg := &config.Config{
		Server: config.ServerConfig{Name: "storefront"},
		GRPC:   config.GRPCConfig{HealthInterval: time.Hour},
	}
	s := NewHealthServer(store, cfg, zap.NewNop())

	lis := bufconn.Listen(1 << 20)
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = s.Serve(ctx, lis) }()
	t.Cleanup(func() {
		cancel()
		s.Stop()
	})

	dialer := grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	})
	return s, dialer
}

func probe(t *testing.T, dialer grpc.DialOption, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	status, err := Probe(ctx, "passthrough:///bufnet", service, dialer)
	require.NoError(t, err)
	return status
}

func TestHealthServer_FollowsStore(t *testing.T) {
	store := &fakeStore{}
	s, dialer := startHealth(t, store)

	assert.Eventually(t, func() bool {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		status, err := Probe(ctx, "passthrough:///bufnet", "", dialer)
		return err == nil && status == healthpb.HealthCheckResponse_SERVING
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, probe(t, dialer, "storefront"))

	store.down.Store(true)
	s.Check(context.Background())
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, probe(t, dialer, ""))
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, probe(t, dialer, "storefront"))

	store.down.Store(false)
	s.Check(context.Background())
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, probe(t, dialer, "storefront"))
}

func TestProbe_UnknownService(t *testing.T) {
	_, dialer := startHealth(t, &fakeStore{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := Probe(ctx, "passthrough:///bufnet", "billing", dialer)
	assert.Error(t, err)
}

func TestHealthServer_StoppedBeforeServe(t *testing.T) {
	cfg := &config.Config{
		Server: config.ServerConfig{Name: "storefront"},
		GRPC:   config.GRPCConfig{HealthInterval: time.Hour},
	}
	s := NewHealthServer(&fakeStore{}, cfg, zap.NewNop())
	s.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	assert.NoError(t, s.Serve(ctx, bufconn.Listen(1<<20)))
}

func TestResolveTarget_WithoutDiscovery(t *testing.T) {
	assert.Equal(t, "localhost:9090",
		ResolveTarget(context.Background(), nil, "storefront-grpc", "localhost:9090", zap.NewNop()))
}
