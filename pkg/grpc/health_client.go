package grpc

import (
	"context"
	"fmt"
	"time"

	"github.com/example/storefront/pkg/discovery"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ResolveTarget looks service up in discovery and falls back to target
// when discovery is nil or knows no instance.
func ResolveTarget(ctx context.Context, disc *discovery.ServiceDiscovery, service, target string, logger *zap.Logger) string {
	if disc == nil {
		return target
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	instances, err := disc.Discover(ctx, service)
	if err == nil && len(instances) > 0 {
		logger.Info("Discovered service",
			zap.String("service", service),
			zap.String("address", instances[0].Address()))
		return instances[0].Address()
	}
	logger.Info("Using default address",
		zap.String("service", service),
		zap.String("address", target))
	return target
}

// Probe asks the health service at target for the status of service. An
// empty service asks about the server as a whole.
func Probe(ctx context.Context, target, service string, opts ...grpc.DialOption) (healthpb.HealthCheckResponse_ServingStatus, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, fmt.Errorf("failed to connect to %s: %w", target, err)
	}
	defer conn.Close()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, fmt.Errorf("health check %s: %w", target, err)
	}
	return resp.GetStatus(), nil
}
