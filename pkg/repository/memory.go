package repository

import (
	"context"
	"sync"

	"github.com/example/storefront/pkg/apperrors"
	"github.com/example/storefront/pkg/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MemoryStore keeps collections in process memory, in insertion order.
// Data is lost on restart. Safe for concurrent use.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string][]models.Record
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string][]models.Record)}
}

// transaction-aware locking helpers: inside WithTransaction the write lock
// is already held, so individual operations must not take it again.
type memTxKey struct{}

func inMemTx(ctx context.Context) bool {
	b, ok := ctx.Value(memTxKey{}).(bool)
	return ok && b
}

func (m *MemoryStore) rlock(ctx context.Context) {
	if !inMemTx(ctx) {
		m.mu.RLock()
	}
}

func (m *MemoryStore) runlock(ctx context.Context) {
	if !inMemTx(ctx) {
		m.mu.RUnlock()
	}
}

func (m *MemoryStore) wlock(ctx context.Context) {
	if !inMemTx(ctx) {
		m.mu.Lock()
	}
}

func (m *MemoryStore) wunlock(ctx context.Context) {
	if !inMemTx(ctx) {
		m.mu.Unlock()
	}
}

func (m *MemoryStore) Find(ctx context.Context, collection string, q Query) ([]models.Record, error) {
	m.rlock(ctx)
	defer m.runlock(ctx)

	found := applyQuery(m.collections[collection], q)
	out := make([]models.Record, len(found))
	for i, r := range found {
		out[i] = r.Clone()
	}
	return out, nil
}

func (m *MemoryStore) InsertOne(ctx context.Context, collection string, rec models.Record) (primitive.ObjectID, error) {
	m.wlock(ctx)
	defer m.wunlock(ctx)

	doc := rec.Clone()
	if doc == nil {
		doc = models.Record{}
	}
	id, ok := doc.ObjectID()
	if !ok {
		id = primitive.NewObjectID()
		doc[models.IDField] = id
	}
	m.collections[collection] = append(m.collections[collection], doc)
	return id, nil
}

// first returns the index of the first record matching f, or -1.
func (m *MemoryStore) first(collection string, f Filter) int {
	mt := newMatcher(f)
	for i, r := range m.collections[collection] {
		if mt.matches(r) {
			return i
		}
	}
	return -1
}

func (m *MemoryStore) UpdateOne(ctx context.Context, collection string, f Filter, set models.Record) (bool, error) {
	m.wlock(ctx)
	defer m.wunlock(ctx)

	i := m.first(collection, f)
	if i < 0 {
		return false, nil
	}
	mergeSet(m.collections[collection][i], set)
	return true, nil
}

func (m *MemoryStore) IncrementOne(ctx context.Context, collection string, f Filter, field string, delta int64) (bool, error) {
	m.wlock(ctx)
	defer m.wunlock(ctx)

	i := m.first(collection, f)
	if i < 0 {
		return false, nil
	}
	doc := m.collections[collection][i]
	v, err := incremented(doc[field], delta)
	if err != nil {
		return false, apperrors.Unavailable("increment "+collection+"."+field, err)
	}
	doc[field] = v
	return true, nil
}

func (m *MemoryStore) DeleteOne(ctx context.Context, collection string, f Filter) (bool, error) {
	m.wlock(ctx)
	defer m.wunlock(ctx)

	i := m.first(collection, f)
	if i < 0 {
		return false, nil
	}
	docs := m.collections[collection]
	m.collections[collection] = append(docs[:i:i], docs[i+1:]...)
	return true, nil
}

// WithTransaction holds the write lock for the whole of fn and restores the
// previous contents if fn fails.
func (m *MemoryStore) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if inMemTx(ctx) {
		return fn(ctx)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	saved := make(map[string][]models.Record, len(m.collections))
	for name, docs := range m.collections {
		cp := make([]models.Record, len(docs))
		for i, d := range docs {
			cp[i] = d.Clone()
		}
		saved[name] = cp
	}

	if err := fn(context.WithValue(ctx, memTxKey{}, true)); err != nil {
		m.collections = saved
		return err
	}
	return nil
}

func (m *MemoryStore) Ping(context.Context) error  { return nil }
func (m *MemoryStore) Close(context.Context) error { return nil }
