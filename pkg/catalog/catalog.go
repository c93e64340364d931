// Package catalog serves the normalized product list and product search.
package catalog

import (
	"context"
	"regexp"
	"strconv"

	"github.com/example/storefront/pkg/apperrors"
	"github.com/example/storefront/pkg/config"
	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/repository"
	"go.uber.org/zap"
)

// SearchFields are the record fields a search query is matched against.
var SearchFields = []string{"title", "name", "location", "place", "description", "details"}

// Finder is the part of the store the catalog reads through.
type Finder interface {
	Find(ctx context.Context, collection string, q repository.Query) ([]models.Record, error)
}

// Cache holds the normalized product list between mutations.
// repository.RedisRepository implements it.
type Cache interface {
	CachedProducts(ctx context.Context) ([]models.Product, bool, error)
	CacheProducts(ctx context.Context, products []models.Product) error
	InvalidateProducts(ctx context.Context) error
}

type noCache struct{}

func (noCache) CachedProducts(context.Context) ([]models.Product, bool, error) { return nil, false, nil }
func (noCache) CacheProducts(context.Context, []models.Product) error { return nil }
func (noCache) InvalidateProducts(context.Context) error { return nil }

type Catalog struct {
	store          Finder
	cache          Cache
	includeNumeric bool
	logger         *zap.Logger
}

// New returns a Catalog reading products from store. cache may be nil.
func New(store Finder, cache Cache, cfg config.SearchConfig, logger *zap.Logger) *Catalog {
	if cache == nil {
		cache = noCache{}
	}
	return &Catalog{
		store:          store,
		cache:          cache,
		includeNumeric: cfg.IncludeNumeric,
		logger:         logger.Named("catalog"),
	}
}

// List returns every product normalized, in store order.
func (c *Catalog) List(ctx context.Context) ([]models.Product, error) {
	products, found, err := c.cache.CachedProducts(ctx)
	if err != nil {
		c.logger.Warn("Product cache read failed", zap.Error(err))
	}
	if found {
		return products, nil
	}

	records, err := c.store.Find(ctx, models.ProductsCollection, repository.Query{})
	if err != nil {
		return nil, err
	}
	products = NormalizeAll(records)

	if err := c.cache.CacheProducts(ctx, products); err != nil {
		c.logger.Warn("Product cache write failed", zap.Error(err))
	}
	return products, nil
}

// Invalidate drops the cached product list. Failures are logged only.
func (c *Catalog) Invalidate(ctx context.Context) {
	if err := c.cache.InvalidateProducts(ctx); err != nil {
		c.logger.Warn("Product cache invalidation failed", zap.Error(err))
	}
}

// Search returns the products whose title, location or description (or
// their synonyms) match query, case-insensitively, in store order. query
// is a regular expression; one that does not compile is matched literally.
func (c *Catalog) Search(ctx context.Context, query string) ([]models.Product, error) {
	if query == "" {
		return nil, apperrors.ClientErrorf("Search query is missing")
	}
	pattern := query
	if _, err := regexp.Compile(pattern); err != nil {
		pattern = regexp.QuoteMeta(query)
	}

	if c.includeNumeric {
		return c.searchNormalized(ctx, pattern)
	}

	records, err := c.store.Find(ctx, models.ProductsCollection, repository.Query{
		Filter: repository.Matching(pattern, SearchFields...),
	})
	if err != nil {
		return nil, err
	}
	c.logger.Debug("Search", zap.String("query", query), zap.Int("results", len(records)))
	return NormalizeAll(records), nil
}

// searchNormalized matches over normalized products so numeric fields can
// be searched by their decimal form.
func (c *Catalog) searchNormalized(ctx context.Context, pattern string) ([]models.Product, error) {
	re := regexp.MustCompile("(?i)" + pattern)

	records, err := c.store.Find(ctx, models.ProductsCollection, repository.Query{})
	if err != nil {
		return nil, err
	}

	out := []models.Product{}
	for _, p := range NormalizeAll(records) {
		for _, s := range []string{
			p.Title,
			p.Location,
			p.Description,
			strconv.FormatFloat(p.Price, 'f', -1, 64),
			strconv.FormatInt(p.AvailableInventory, 10),
		} {
			if re.MatchString(s) {
				out = append(out, p)
				break
			}
		}
	}
	return out, nil
}
