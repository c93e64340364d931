// Package repository implements the persistent collection store: named
// collections of schema-free records addressed by an opaque ObjectID, with
// MongoDB, SQL (gorm) and in-memory backends, plus the Redis cache.
package repository

import (
	"context"

	"github.com/example/storefront/pkg/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Store is the contract every backend satisfies. Errors returned by a
// backend wrap apperrors.ErrStoreUnavailable.
type Store interface {
	// Find returns matching records in insertion order unless q sorts them.
	Find(ctx context.Context, collection string, q Query) ([]models.Record, error)

	// InsertOne stores rec and returns its assigned identifier.
	InsertOne(ctx context.Context, collection string, rec models.Record) (primitive.ObjectID, error)

	// UpdateOne sets the given fields on the first matching record.
	// The returned bool is false when nothing matched.
	UpdateOne(ctx context.Context, collection string, f Filter, set models.Record) (bool, error)

	// IncrementOne atomically adds delta to a numeric field of the first
	// matching record. A missing field is treated as zero.
	IncrementOne(ctx context.Context, collection string, f Filter, field string, delta int64) (bool, error)

	// DeleteOne removes the first matching record.
	DeleteOne(ctx context.Context, collection string, f Filter) (bool, error)

	// WithTransaction runs fn so that every store call made with the
	// context it receives commits or rolls back together.
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error

	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// Filter selects records. All set conditions must hold; the zero Filter
// matches everything.
type Filter struct {
	ID     *primitive.ObjectID
	Equals map[string]any

	// Pattern is a case-insensitive regular expression that must match at
	// least one of PatternFields.
	Pattern       string
	PatternFields []string
}

// ByID selects the record with the given store identifier.
func ByID(id primitive.ObjectID) Filter {
	return Filter{ID: &id}
}

// ByField selects records whose field equals value. Numbers compare by
// value regardless of their concrete type.
func ByField(field string, value any) Filter {
	return Filter{Equals: map[string]any{field: value}}
}

// Matching selects records where pattern matches any of fields.
func Matching(pattern string, fields ...string) Filter {
	return Filter{Pattern: pattern, PatternFields: fields}
}

// And returns a copy of f that also requires field == value.
func (f Filter) And(field string, value any) Filter {
	eq := make(map[string]any, len(f.Equals)+1)
	for k, v := range f.Equals {
		eq[k] = v
	}
	eq[field] = value
	f.Equals = eq
	return f
}

// Query is a filtered, optionally sorted and bounded read.
type Query struct {
	Filter     Filter
	SortField  string
	Descending bool
	Limit      int64
}
