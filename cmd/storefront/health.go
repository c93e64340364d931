package main

import (
	"context"
	"fmt"
	"time"

	"github.com/example/storefront/pkg/discovery"
	grpcserver "github.com/example/storefront/pkg/grpc"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthOptions holds flags for the health command.
type HealthOptions struct {
	*RootOptions
	Addr    string
	Timeout time.Duration
}

func NewHealthCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HealthOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Query the gRPC health service of a running instance",
		Long: `Query grpc.health.v1 on a running storefront.

Without --addr the instance is looked up in etcd (when etcd.endpoints is
set), falling back to localhost on grpc.port. Exits non-zero unless the
service reports SERVING.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHealth(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "host:port of the gRPC health service")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 5*time.Second, "probe timeout")

	return cmd
}

func runHealth(ctx context.Context, opts *HealthOptions, cmd *cobra.Command) error {
	cfg, logger, err := opts.setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	target := opts.Addr
	if target == "" {
		target = fmt.Sprintf("localhost:%d", cfg.GRPC.Port)

		var disc *discovery.ServiceDiscovery
		if len(cfg.Etcd.Endpoints) > 0 {
			if disc, err = discovery.NewServiceDiscovery(&cfg.Etcd, logger); err != nil {
				logger.Warn("Discovery unavailable", zap.Error(err))
			} else {
				defer disc.Close()
			}
		}
		target = grpcserver.ResolveTarget(ctx, disc, cfg.Server.Name+"-grpc", target, logger)
	}

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	status, err := grpcserver.Probe(ctx, target, cfg.Server.Name)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), status)
	if status != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("%s is %s", target, status)
	}
	return nil
}
