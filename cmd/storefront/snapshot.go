package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/example/storefront/pkg/mirror"
	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/repository"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

// SnapshotOptions holds flags for the snapshot command.
type SnapshotOptions struct {
	*RootOptions
	Collections []string
}

func NewSnapshotCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SnapshotOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Write mirror files for collections and exit",
		Long: `Write the JSON mirror file of one or more collections to mirror.dir.

Example:
  storefront snapshot
  storefront snapshot --collection Products --collection Lessons`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSnapshot(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().StringSliceVar(&opts.Collections, "collection",
		[]string{models.ProductsCollection, models.OrdersCollection}, "collection to snapshot (repeatable)")

	return cmd
}

func runSnapshot(ctx context.Context, opts *SnapshotOptions, cmd *cobra.Command) error {
	cfg, logger, err := opts.setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	store, err := repository.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close(context.Background())

	m, err := mirror.New(store, afero.NewOsFs(), cfg.Mirror, logger)
	if err != nil {
		return err
	}
	defer m.Close()

	for _, collection := range opts.Collections {
		if err := m.Snapshot(ctx, collection); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), filepath.Join(cfg.Mirror.Dir, mirror.FileName(collection)))
	}
	return nil
}
