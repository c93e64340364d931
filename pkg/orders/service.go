// Package orders implements the order lifecycle: start, cart updates,
// cancellation and submission with inventory decrement.
package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/example/storefront/pkg/apperrors"
	"github.com/example/storefront/pkg/config"
	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/repository"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

const (
	InventoryPerUnit       = "per_unit"
	InventoryTransactional = "transactional"
)

// Notifier receives a collection name after a successful mutation.
type Notifier interface {
	Trigger(collection string)
}

// Invalidator drops derived product data.
type Invalidator interface {
	Invalidate(ctx context.Context)
}

type Service struct {
	store         repository.Store
	inventory     InventoryDecrementer
	transactional bool
	mirror        Notifier
	products      Invalidator
	now           func() time.Time
	logger        *zap.Logger
}

// NewService wires the lifecycle to store. cfg.InventoryMode selects the
// decrementer; mirror and products may be nil.
func NewService(store repository.Store, mirror Notifier, products Invalidator, cfg config.OrdersConfig, logger *zap.Logger) *Service {
	logger = logger.Named("orders")
	s := &Service{
		store:    store,
		mirror:   mirror,
		products: products,
		now:      time.Now,
		logger:   logger,
	}
	if cfg.InventoryMode == InventoryTransactional {
		s.inventory = NewGuarded(store)
		s.transactional = true
	} else {
		s.inventory = NewPerUnit(store, cfg.DecrementConcurrency, logger)
	}
	return s
}

// Start creates an empty pending order and returns its id.
func (s *Service) Start(ctx context.Context) (primitive.ObjectID, error) {
	id, err := s.store.InsertOne(ctx, models.OrdersCollection, models.NewPendingOrder(s.now()))
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("start order: %w", err)
	}
	s.logger.Info("Order started", zap.String("order_id", id.Hex()))
	s.notify(models.OrdersCollection)
	return id, nil
}

// Get returns the stored order.
func (s *Service) Get(ctx context.Context, id primitive.ObjectID) (models.Order, error) {
	docs, err := s.store.Find(ctx, models.OrdersCollection, repository.Query{Filter: repository.ByID(id), Limit: 1})
	if err != nil {
		return models.Order{}, err
	}
	if len(docs) == 0 {
		return models.Order{}, fmt.Errorf("%w: %s", apperrors.ErrOrderNotFound, id.Hex())
	}
	order, err := models.DecodeOrder(docs[0])
	if err != nil {
		return models.Order{}, fmt.Errorf("order %s: %w", id.Hex(), err)
	}
	return order, nil
}

// SetCart replaces the cart of a pending order.
func (s *Service) SetCart(ctx context.Context, id primitive.ObjectID, cart []int64) error {
	if cart == nil {
		cart = []int64{}
	}
	if err := s.transition(ctx, id, models.Record{"cart": cart}); err != nil {
		return err
	}
	s.logger.Debug("Cart updated", zap.String("order_id", id.Hex()), zap.Int("items", len(cart)))
	s.notify(models.OrdersCollection)
	return nil
}

// Cancel deletes the order whatever its state. The result is false when
// no order has that id.
func (s *Service) Cancel(ctx context.Context, id primitive.ObjectID) (bool, error) {
	deleted, err := s.store.DeleteOne(ctx, models.OrdersCollection, repository.ByID(id))
	if err != nil {
		return false, fmt.Errorf("cancel order: %w", err)
	}
	s.logger.Info("Order cancelled", zap.String("order_id", id.Hex()), zap.Bool("deleted", deleted))
	s.notify(models.OrdersCollection)
	return deleted, nil
}

// Submit marks a pending order submitted with the checkout data in sub and
// removes its cart from inventory. Once started, a submission runs to the
// end even if ctx is cancelled; only store failures leave it partial.
func (s *Service) Submit(ctx context.Context, id primitive.ObjectID, sub models.Submission) error {
	ctx = context.WithoutCancel(ctx)
	if sub.Cart == nil {
		sub.Cart = []int64{}
	}

	submitted := false
	apply := func(ctx context.Context) error {
		if err := s.transition(ctx, id, sub.Patch(s.now())); err != nil {
			return err
		}
		submitted = true
		return s.inventory.Decrement(ctx, sub.Cart)
	}

	var err error
	if s.transactional {
		err = s.store.WithTransaction(ctx, apply)
		if err != nil {
			submitted = false
		}
	} else {
		err = apply(ctx)
	}

	if submitted {
		s.logger.Info("Order submitted",
			zap.String("order_id", id.Hex()),
			zap.Int("units", len(sub.Cart)))
		if s.products != nil {
			s.products.Invalidate(ctx)
		}
		s.notify(models.OrdersCollection)
		s.notify(models.ProductsCollection)
	}
	return err
}

// transition applies patch to the order only while it is pending.
func (s *Service) transition(ctx context.Context, id primitive.ObjectID, patch models.Record) error {
	filter := repository.ByID(id).And("status", string(models.OrderStatusPending))
	ok, err := s.store.UpdateOne(ctx, models.OrdersCollection, filter, patch)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	if ok {
		return nil
	}

	docs, err := s.store.Find(ctx, models.OrdersCollection, repository.Query{Filter: repository.ByID(id), Limit: 1})
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		return fmt.Errorf("%w: %s", apperrors.ErrOrderNotFound, id.Hex())
	}
	return fmt.Errorf("%w: order %s is %v", apperrors.ErrInvalidState, id.Hex(), docs[0]["status"])
}

func (s *Service) notify(collection string) {
	if s.mirror != nil {
		s.mirror.Trigger(collection)
	}
}
