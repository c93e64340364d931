package mirror_test

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/example/storefront/pkg/config"
	"github.com/example/storefront/pkg/mirror"
	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/repository"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

const dir = "/var/storefront"

func newMirror(t *testing.T, source mirror.Reader, logger *zap.Logger) (*mirror.Mirror, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	m, err := mirror.New(source, fs, config.MirrorConfig{Dir: dir, Timeout: 5 * time.Second}, logger)
	require.NoError(t, err)
	t.Cleanup(m.Close)
	return m, fs
}

func readMirror(t *testing.T, fs afero.Fs, collection string) []map[string]any {
	t.Helper()
	data, err := afero.ReadFile(fs, filepath.Join(dir, mirror.FileName(collection)))
	require.NoError(t, err)
	var out []map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "products.json", mirror.FileName("Products"))
	assert.Equal(t, "orders.json", mirror.FileName("Orders"))
}

func TestSnapshot_WritesIndentedArray(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	id, err := store.InsertOne(ctx, models.ProductsCollection, models.Record{"id": int64(1), "title": "Math"})
	require.NoError(t, err)

	m, fs := newMirror(t, store, zap.NewNop())
	require.NoError(t, m.Snapshot(ctx, models.ProductsCollection))

	data, err := afero.ReadFile(fs, filepath.Join(dir, "products.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "\n  {\n    \"")

	got := readMirror(t, fs, models.ProductsCollection)
	require.Len(t, got, 1)
	assert.Equal(t, id.Hex(), got[0]["_id"])
	assert.Equal(t, "Math", got[0]["title"])

	tmp, err := afero.Exists(fs, filepath.Join(dir, "products.json.tmp"))
	require.NoError(t, err)
	assert.False(t, tmp)
}

func TestSnapshot_EmptyCollection(t *testing.T) {
	m, fs := newMirror(t, repository.NewMemoryStore(), zap.NewNop())
	require.NoError(t, m.Snapshot(context.Background(), "Lessons"))

	data, err := afero.ReadFile(fs, filepath.Join(dir, "lessons.json"))
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))
}

func TestTrigger_LastWriteWins(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	m, fs := newMirror(t, store, zap.NewNop())

	for i := 1; i <= 3; i++ {
		_, err := store.InsertOne(ctx, models.OrdersCollection, models.NewPendingOrder(time.Now()))
		require.NoError(t, err)
		m.Trigger(models.OrdersCollection)
	}
	// Mailbox order guarantees the triggers above are done once this returns.
	require.NoError(t, m.Snapshot(ctx, models.ProductsCollection))

	assert.Len(t, readMirror(t, fs, models.OrdersCollection), 3)
}

type failingReader struct{}

func (failingReader) Find(context.Context, string, repository.Query) ([]models.Record, error) {
	return nil, errors.New("connection refused")
}

func TestSnapshot_ReadFailure(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	m, fs := newMirror(t, failingReader{}, zap.New(core))

	err := m.Snapshot(context.Background(), models.ProductsCollection)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")

	m.Trigger(models.ProductsCollection)
	_ = m.Snapshot(context.Background(), models.ProductsCollection)

	exists, err := afero.Exists(fs, filepath.Join(dir, "products.json"))
	require.NoError(t, err)
	assert.False(t, exists)

	entries := logs.FilterMessage("Snapshot failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, models.ProductsCollection, entries[0].ContextMap()["collection"])
}
