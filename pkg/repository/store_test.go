package repository_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newSQLiteStore(t *testing.T) *repository.SQLStore {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "store.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// SQLite allows a single writer.
	sqlDB.SetMaxOpenConns(1)

	s, err := repository.NewSQLStore(db)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

func backends(t *testing.T) map[string]func(t *testing.T) repository.Store {
	return map[string]func(t *testing.T) repository.Store{
		"memory": func(t *testing.T) repository.Store { return repository.NewMemoryStore() },
		"sql":    func(t *testing.T) repository.Store { return newSQLiteStore(t) },
	}
}

func seedProducts(t *testing.T, s repository.Store) []primitive.ObjectID {
	t.Helper()
	ctx := context.Background()
	var ids []primitive.ObjectID
	for _, p := range []models.Record{
		{"id": int64(1), "title": "Math", "location": "Hendon", "price": 100.0, "availableInventory": int64(5)},
		{"id": int64(2), "title": "Ski lessons", "location": "Alpine Ski Village", "price": 250.0, "availableInventory": int64(3)},
		{"id": int64(3), "name": "Pottery", "place": "Camden", "cost": 80.0, "stock": int64(2)},
		{"id": int64(4), "title": "Chess", "location": "Barnet", "price": 120.0, "availableInventory": int64(9)},
	} {
		id, err := s.InsertOne(ctx, models.ProductsCollection, p)
		require.NoError(t, err)
		ids = append(ids, id)
	}
	return ids
}

func asInt(t *testing.T, v any) int64 {
	t.Helper()
	switch n := v.(type) {
	case int64:
		return n
	case int32:
		return int64(n)
	case float64:
		return int64(n)
	}
	t.Fatalf("not a number: %#v", v)
	return 0
}

func TestStore(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			runStoreTests(t, open)
		})
	}
}

func runStoreTests(t *testing.T, open func(t *testing.T) repository.Store) {
	ctx := context.Background()

	t.Run("find on unknown collection is empty", func(t *testing.T) {
		s := open(t)
		docs, err := s.Find(ctx, "Nothing", repository.Query{})
		require.NoError(t, err)
		assert.Empty(t, docs)
	})

	t.Run("insert assigns ids and keeps insertion order", func(t *testing.T) {
		s := open(t)
		ids := seedProducts(t, s)
		require.Len(t, ids, 4)
		assert.NotEqual(t, ids[0], ids[1])

		docs, err := s.Find(ctx, models.ProductsCollection, repository.Query{})
		require.NoError(t, err)
		require.Len(t, docs, 4)
		for i, d := range docs {
			got, ok := d.ObjectID()
			require.True(t, ok)
			assert.Equal(t, ids[i], got)
			assert.Equal(t, int64(i+1), asInt(t, d["id"]))
		}
	})

	t.Run("sorted and bounded", func(t *testing.T) {
		s := open(t)
		seedProducts(t, s)

		docs, err := s.Find(ctx, models.ProductsCollection, repository.Query{SortField: "price", Descending: true, Limit: 3})
		require.NoError(t, err)
		require.Len(t, docs, 3)
		// record 3 has no price field and sorts lowest
		assert.Equal(t, []any{int64(2), int64(4), int64(1)}, normalizeIDs(t, docs))

		docs, err = s.Find(ctx, models.ProductsCollection, repository.Query{SortField: "price", Limit: 2})
		require.NoError(t, err)
		assert.Equal(t, []any{int64(3), int64(1)}, normalizeIDs(t, docs))
	})

	t.Run("unknown sort field keeps stored order", func(t *testing.T) {
		s := open(t)
		seedProducts(t, s)
		docs, err := s.Find(ctx, models.ProductsCollection, repository.Query{SortField: "nope", Limit: 10})
		require.NoError(t, err)
		assert.Equal(t, []any{int64(1), int64(2), int64(3), int64(4)}, normalizeIDs(t, docs))
	})

	t.Run("pattern filter is case-insensitive OR", func(t *testing.T) {
		s := open(t)
		seedProducts(t, s)
		docs, err := s.Find(ctx, models.ProductsCollection, repository.Query{
			Filter: repository.Matching("ALPINE", "title", "location"),
		})
		require.NoError(t, err)
		assert.Equal(t, []any{int64(2)}, normalizeIDs(t, docs))
	})

	t.Run("update by id sets fields and keeps _id", func(t *testing.T) {
		s := open(t)
		ids := seedProducts(t, s)
		other := primitive.NewObjectID()
		ok, err := s.UpdateOne(ctx, models.ProductsCollection, repository.ByID(ids[0]),
			models.Record{"price": 110.0, models.IDField: other})
		require.NoError(t, err)
		assert.True(t, ok)

		docs, err := s.Find(ctx, models.ProductsCollection, repository.Query{Filter: repository.ByID(ids[0])})
		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.Equal(t, 110.0, docs[0]["price"])
		assert.Equal(t, "Math", docs[0]["title"])
	})

	t.Run("update and delete without match", func(t *testing.T) {
		s := open(t)
		seedProducts(t, s)
		missing := primitive.NewObjectID()

		ok, err := s.UpdateOne(ctx, models.ProductsCollection, repository.ByID(missing), models.Record{"price": 1.0})
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = s.DeleteOne(ctx, models.ProductsCollection, repository.ByID(missing))
		require.NoError(t, err)
		assert.False(t, ok)

		docs, err := s.Find(ctx, models.ProductsCollection, repository.Query{})
		require.NoError(t, err)
		assert.Len(t, docs, 4)
	})

	t.Run("conditional update", func(t *testing.T) {
		s := open(t)
		id, err := s.InsertOne(ctx, models.OrdersCollection, models.NewPendingOrder(time.Now()))
		require.NoError(t, err)

		f := repository.ByID(id).And("status", "pending")
		ok, err := s.UpdateOne(ctx, models.OrdersCollection, f, models.Record{"status": "submitted"})
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = s.UpdateOne(ctx, models.OrdersCollection, f, models.Record{"cart": []int64{1}})
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("increment by domain key across numeric types", func(t *testing.T) {
		s := open(t)
		seedProducts(t, s)

		ok, err := s.IncrementOne(ctx, models.ProductsCollection, repository.ByField("id", 2.0), "availableInventory", -1)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = s.IncrementOne(ctx, models.ProductsCollection, repository.ByField("id", int64(99)), "availableInventory", -1)
		require.NoError(t, err)
		assert.False(t, ok)

		docs, err := s.Find(ctx, models.ProductsCollection, repository.Query{Filter: repository.ByField("id", 2)})
		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.Equal(t, int64(2), asInt(t, docs[0]["availableInventory"]))
	})

	t.Run("increment of a missing field starts at zero", func(t *testing.T) {
		s := open(t)
		seedProducts(t, s)
		_, err := s.IncrementOne(ctx, models.ProductsCollection, repository.ByField("id", 3), "availableInventory", -1)
		require.NoError(t, err)
		docs, err := s.Find(ctx, models.ProductsCollection, repository.Query{Filter: repository.ByField("id", 3)})
		require.NoError(t, err)
		assert.Equal(t, int64(-1), asInt(t, docs[0]["availableInventory"]))
	})

	t.Run("increment of a non-numeric field fails and keeps the value", func(t *testing.T) {
		s := open(t)
		_, err := s.InsertOne(ctx, models.ProductsCollection, models.Record{"id": 9, "availableInventory": "five"})
		require.NoError(t, err)

		_, err = s.IncrementOne(ctx, models.ProductsCollection, repository.ByField("id", 9), "availableInventory", -1)
		require.ErrorIs(t, err, repository.ErrNotNumeric)

		docs, err := s.Find(ctx, models.ProductsCollection, repository.Query{Filter: repository.ByField("id", 9)})
		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.Equal(t, "five", docs[0]["availableInventory"])
	})

	t.Run("delete removes exactly one", func(t *testing.T) {
		s := open(t)
		ids := seedProducts(t, s)
		ok, err := s.DeleteOne(ctx, models.ProductsCollection, repository.ByID(ids[1]))
		require.NoError(t, err)
		assert.True(t, ok)

		docs, err := s.Find(ctx, models.ProductsCollection, repository.Query{})
		require.NoError(t, err)
		assert.Equal(t, []any{int64(1), int64(3), int64(4)}, normalizeIDs(t, docs))
	})

	t.Run("transaction rolls back on error", func(t *testing.T) {
		s := open(t)
		seedProducts(t, s)
		boom := errors.New("boom")

		err := s.WithTransaction(ctx, func(ctx context.Context) error {
			if _, err := s.IncrementOne(ctx, models.ProductsCollection, repository.ByField("id", 1), "availableInventory", -5); err != nil {
				return err
			}
			return boom
		})
		require.ErrorIs(t, err, boom)

		docs, err := s.Find(ctx, models.ProductsCollection, repository.Query{Filter: repository.ByField("id", 1)})
		require.NoError(t, err)
		assert.Equal(t, int64(5), asInt(t, docs[0]["availableInventory"]))
	})

	t.Run("transaction commits", func(t *testing.T) {
		s := open(t)
		seedProducts(t, s)
		err := s.WithTransaction(ctx, func(ctx context.Context) error {
			_, err := s.IncrementOne(ctx, models.ProductsCollection, repository.ByField("id", 1), "availableInventory", -2)
			return err
		})
		require.NoError(t, err)
		docs, err := s.Find(ctx, models.ProductsCollection, repository.Query{Filter: repository.ByField("id", 1)})
		require.NoError(t, err)
		assert.Equal(t, int64(3), asInt(t, docs[0]["availableInventory"]))
	})
}

// normalizeIDs returns the domain ids of docs as int64 for comparison.
func normalizeIDs(t *testing.T, docs []models.Record) []any {
	t.Helper()
	out := make([]any, len(docs))
	for i, d := range docs {
		out[i] = asInt(t, d["id"])
	}
	return out
}

func TestMemoryStore_ConcurrentIncrements(t *testing.T) {
	ctx := context.Background()
	s := repository.NewMemoryStore()
	_, err := s.InsertOne(ctx, models.ProductsCollection, models.Record{"id": int64(7), "availableInventory": int64(100)})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.IncrementOne(ctx, models.ProductsCollection, repository.ByField("id", 7), "availableInventory", -1)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	docs, err := s.Find(ctx, models.ProductsCollection, repository.Query{})
	require.NoError(t, err)
	assert.Equal(t, int64(50), docs[0]["availableInventory"])
}

func TestMemoryStore_FindReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := repository.NewMemoryStore()
	_, err := s.InsertOne(ctx, models.OrdersCollection, models.Record{"cart": []int64{1, 2}})
	require.NoError(t, err)

	docs, err := s.Find(ctx, models.OrdersCollection, repository.Query{})
	require.NoError(t, err)
	docs[0]["cart"].([]int64)[0] = 42

	again, err := s.Find(ctx, models.OrdersCollection, repository.Query{})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, again[0]["cart"])
}
