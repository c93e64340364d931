package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/example/storefront/gateway"
	"github.com/example/storefront/pkg/catalog"
	"github.com/example/storefront/pkg/collections"
	"github.com/example/storefront/pkg/config"
	"github.com/example/storefront/pkg/discovery"
	grpcserver "github.com/example/storefront/pkg/grpc"
	"github.com/example/storefront/pkg/mirror"
	"github.com/example/storefront/pkg/orders"
	"github.com/example/storefront/pkg/repository"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the gRPC health service",
		Long: `Run the storefront HTTP API.

The gRPC health service starts when grpc.port is set, and the instance is
registered in etcd when etcd.endpoints is set.

Example:
  storefront serve --config config/config.yaml
  STOREFRONT_STORE_BACKEND=memory storefront serve`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := rootOpts.setup()
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logger)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	logger.Info("Starting storefront",
		zap.String("backend", cfg.Store.Backend),
		zap.String("inventory_mode", cfg.Orders.InventoryMode))

	store, err := repository.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := store.Close(closeCtx); err != nil {
			logger.Warn("Failed to close store", zap.Error(err))
		}
	}()

	var cache catalog.Cache
	if cfg.Redis.Enabled {
		redisRepo := repository.NewRedisRepository(&cfg.Redis)
		defer redisRepo.Close()
		if err := redisRepo.Ping(ctx); err != nil {
			logger.Warn("Redis unreachable, product cache will be bypassed", zap.Error(err))
		}
		cache = redisRepo
	}

	m, err := mirror.New(store, afero.NewOsFs(), cfg.Mirror, logger)
	if err != nil {
		return err
	}
	defer m.Close()

	cat := catalog.New(store, cache, cfg.Search, logger)
	gw := gateway.NewGateway(cfg, logger, gateway.Services{
		Store:       store,
		Collections: collections.NewProxy(store, m, cat, cfg.Collections, cfg.Mirror, logger),
		Catalog:     cat,
		Orders:      orders.NewService(store, m, cat, cfg.Orders, logger),
	})

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return gw.Start(ctx)
	})

	if cfg.GRPC.Port > 0 {
		hs := grpcserver.NewHealthServer(store, cfg, logger)
		g.Go(func() error {
			return hs.Start(ctx)
		})
		g.Go(func() error {
			<-ctx.Done()
			hs.Stop()
			return nil
		})
	}

	if len(cfg.Etcd.Endpoints) > 0 {
		deregister, err := register(ctx, cfg, logger)
		if err != nil {
			logger.Error("Service registration failed", zap.Error(err))
		} else {
			defer deregister()
		}
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("storefront stopped: %w", err)
	}
	logger.Info("Storefront stopped")
	return nil
}

// register announces the HTTP (and gRPC) address in etcd. The returned
// func removes the registrations.
func register(ctx context.Context, cfg *config.Config, logger *zap.Logger) (func(), error) {
	disc, err := discovery.NewServiceDiscovery(&cfg.Etcd, logger)
	if err != nil {
		return nil, err
	}

	host := cfg.Server.Host
	if host == "" || host == "0.0.0.0" {
		if host, err = os.Hostname(); err != nil {
			disc.Close()
			return nil, fmt.Errorf("failed to resolve hostname: %w", err)
		}
	}

	instances := []*discovery.ServiceInstance{
		{Name: cfg.Server.Name, Host: host, Port: cfg.Server.Port},
	}
	if cfg.GRPC.Port > 0 {
		instances = append(instances, &discovery.ServiceInstance{Name: cfg.Server.Name + "-grpc", Host: host, Port: cfg.GRPC.Port})
	}

	for _, instance := range instances {
		if err := disc.Register(ctx, instance); err != nil {
			disc.Close()
			return nil, err
		}
	}

	return func() {
		deregCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		for _, instance := range instances {
			if err := disc.Deregister(deregCtx, instance); err != nil {
				logger.Warn("Failed to deregister", zap.String("service", instance.Name), zap.Error(err))
			}
		}
		disc.Close()
	}, nil
}
