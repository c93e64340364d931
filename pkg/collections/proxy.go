// Package collections exposes generic CRUD over named store collections.
package collections

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/example/storefront/pkg/apperrors"
	"github.com/example/storefront/pkg/config"
	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/repository"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

var validName = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// Notifier receives a collection name after a successful mutation.
// *mirror.Mirror implements it.
type Notifier interface {
	Trigger(collection string)
}

// Invalidator drops derived product data. *catalog.Catalog implements it.
type Invalidator interface {
	Invalidate(ctx context.Context)
}

// Proxy resolves collection names from requests into Collection handles.
type Proxy struct {
	store     repository.Store
	mirror    Notifier
	products  Invalidator
	allowed   map[string]bool
	mirrorAll bool
	logger    *zap.Logger
}

func NewProxy(store repository.Store, mirror Notifier, products Invalidator, cfg config.CollectionsConfig, mirrorCfg config.MirrorConfig, logger *zap.Logger) *Proxy {
	var allowed map[string]bool
	if len(cfg.Allowed) > 0 {
		allowed = make(map[string]bool, len(cfg.Allowed))
		for _, name := range cfg.Allowed {
			allowed[name] = true
		}
	}
	return &Proxy{
		store:     store,
		mirror:    mirror,
		products:  products,
		allowed:   allowed,
		mirrorAll: mirrorCfg.AllCollections,
		logger:    logger.Named("collections"),
	}
}

// Resolve returns the handle for name, or ErrUnknownCollection when the
// name is malformed, reserved or not on the allow-list.
func (p *Proxy) Resolve(name string) (*Collection, error) {
	if !validName.MatchString(name) || strings.HasPrefix(strings.ToLower(name), "system") {
		return nil, fmt.Errorf("%w: %q", apperrors.ErrUnknownCollection, name)
	}
	if p.allowed != nil && !p.allowed[name] {
		return nil, fmt.Errorf("%w: %q", apperrors.ErrUnknownCollection, name)
	}
	return &Collection{name: name, proxy: p}, nil
}

// Collection is a resolved, named collection.
type Collection struct {
	name  string
	proxy *Proxy
}

func (c *Collection) Name() string {
	return c.name
}

// List returns every record in insertion order.
func (c *Collection) List(ctx context.Context) ([]models.Record, error) {
	return c.proxy.store.Find(ctx, c.name, repository.Query{})
}

// ListBounded returns at most limit records sorted by sortField, ascending
// unless direction is "desc".
func (c *Collection) ListBounded(ctx context.Context, limit int64, sortField, direction string) ([]models.Record, error) {
	if limit <= 0 {
		return nil, apperrors.ClientErrorf("max must be a positive integer")
	}
	return c.proxy.store.Find(ctx, c.name, repository.Query{
		SortField:  sortField,
		Descending: direction == "desc",
		Limit:      limit,
	})
}

// Create inserts rec. Any client supplied _id is ignored.
func (c *Collection) Create(ctx context.Context, rec models.Record) (primitive.ObjectID, error) {
	id, err := c.proxy.store.InsertOne(ctx, c.name, rec.Without(models.IDField))
	if err != nil {
		return primitive.NilObjectID, err
	}
	c.proxy.logger.Debug("Inserted record",
		zap.String("collection", c.name),
		zap.String("id", id.Hex()))
	c.changed(ctx)
	return id, nil
}

// Update sets the fields of patch on the record with the given id.
// Identifier fields in patch are dropped. The result is false when no
// record has that id.
func (c *Collection) Update(ctx context.Context, id primitive.ObjectID, patch models.Record) (bool, error) {
	patch = patch.Without(models.IDField)
	if c.isProducts() {
		patch = patch.Without("id")
	}
	matched, err := c.proxy.store.UpdateOne(ctx, c.name, repository.ByID(id), patch)
	if err != nil {
		return false, err
	}
	c.changed(ctx)
	return matched, nil
}

// Delete removes the record with the given id. The result is false when no
// record has that id.
func (c *Collection) Delete(ctx context.Context, id primitive.ObjectID) (bool, error) {
	deleted, err := c.proxy.store.DeleteOne(ctx, c.name, repository.ByID(id))
	if err != nil {
		return false, err
	}
	c.changed(ctx)
	return deleted, nil
}

func (c *Collection) isProducts() bool {
	return c.name == models.ProductsCollection
}

// changed runs the side effects of a committed mutation.
func (c *Collection) changed(ctx context.Context) {
	if c.isProducts() && c.proxy.products != nil {
		c.proxy.products.Invalidate(ctx)
	}
	if c.proxy.mirror != nil && (c.isProducts() || c.proxy.mirrorAll) {
		c.proxy.mirror.Trigger(c.name)
	}
}

// ParseID parses a record identifier taken from a request path.
func ParseID(s string) (primitive.ObjectID, error) {
	id, err := primitive.ObjectIDFromHex(s)
	if err != nil {
		return primitive.NilObjectID, apperrors.ClientErrorf("invalid id %q", s)
	}
	return id, nil
}

// ParseMax parses the result bound of a bounded listing.
func ParseMax(s string) (int64, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return 0, apperrors.ClientErrorf("max must be a positive integer, got %q", s)
	}
	return n, nil
}
