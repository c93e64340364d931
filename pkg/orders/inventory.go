package orders

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/example/storefront/pkg/apperrors"
	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/repository"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const inventoryField = "availableInventory"

// InventoryDecrementer removes the units in cart from product stock.
// Each occurrence of a product id in cart is one unit.
type InventoryDecrementer interface {
	Decrement(ctx context.Context, cart []int64) error
}

// PerUnit issues one independent -1 increment per cart occurrence, in
// parallel. Stock may go negative and nothing is rolled back: when one
// decrement fails the others still apply.
type PerUnit struct {
	store       repository.Store
	concurrency int
	logger      *zap.Logger
}

func NewPerUnit(store repository.Store, concurrency int, logger *zap.Logger) *PerUnit {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &PerUnit{store: store, concurrency: concurrency, logger: logger}
}

func (d *PerUnit) Decrement(ctx context.Context, cart []int64) error {
	var (
		g       errgroup.Group
		applied atomic.Int64
	)
	g.SetLimit(d.concurrency)

	for _, productID := range cart {
		g.Go(func() error {
			matched, err := d.store.IncrementOne(ctx, models.ProductsCollection,
				repository.ByField("id", productID), inventoryField, -1)
			if err != nil {
				return fmt.Errorf("decrement product %d: %w", productID, err)
			}
			if !matched {
				d.logger.Warn("Cart references unknown product", zap.Int64("product_id", productID))
				return nil
			}
			applied.Add(1)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		d.logger.Error("Inventory partially decremented",
			zap.Int64("applied", applied.Load()),
			zap.Int("units", len(cart)),
			zap.Error(err))
		return err
	}
	return nil
}

// Guarded decrements each product once by its unit count and fails with
// ErrInsufficientStock when any product would drop below zero. It must run
// inside Store.WithTransaction so a shortage rolls the submission back.
type Guarded struct {
	store repository.Store
}

func NewGuarded(store repository.Store) *Guarded {
	return &Guarded{store: store}
}

func (d *Guarded) Decrement(ctx context.Context, cart []int64) error {
	units := make(map[int64]int64)
	var order []int64
	for _, productID := range cart {
		if units[productID] == 0 {
			order = append(order, productID)
		}
		units[productID]++
	}

	// The increment holds the record until commit, so the read-back sees
	// no other submission's writes.
	for _, productID := range order {
		filter := repository.ByField("id", productID)
		matched, err := d.store.IncrementOne(ctx, models.ProductsCollection, filter, inventoryField, -units[productID])
		if err != nil {
			return fmt.Errorf("decrement product %d: %w", productID, err)
		}
		if !matched {
			return fmt.Errorf("%w: product %d does not exist", apperrors.ErrInsufficientStock, productID)
		}

		docs, err := d.store.Find(ctx, models.ProductsCollection, repository.Query{Filter: filter, Limit: 1})
		if err != nil {
			return err
		}
		if len(docs) == 1 && docs[0].Int64(inventoryField) < 0 {
			return fmt.Errorf("%w: product %d has %d, cart needs %d", apperrors.ErrInsufficientStock,
				productID, docs[0].Int64(inventoryField)+units[productID], units[productID])
		}
	}
	return nil
}
