package vectorstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nidhogg/mcp-server-qdrant/internal/entry"
	"github.com/nidhogg/mcp-server-qdrant/internal/errs"
)

func newTestSQLite(t *testing.T, dir string) *SQLiteBackend {
	t.Helper()
	b, err := NewSQLiteBackend(dir, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestSQLiteBackendSearchOrder(t *testing.T) {
	ctx := context.Background()
	b := newTestSQLite(t, t.TempDir())
	require.NoError(t, b.CreateCollection(ctx, "captions", CollectionSchema{VectorName: "text_dense", Size: 3, Distance: DistanceCosine}))

	require.NoError(t, b.Upsert(ctx, "captions", []Point{
		{ID: "a", VectorName: "text_dense", Vector: []float32{1, 0, 0}, Payload: map[string]any{"document": "a"}},
		{ID: "b", VectorName: "text_dense", Vector: []float32{0, 1, 0}, Payload: map[string]any{"document": "b"}},
		{ID: "c", VectorName: "text_dense", Vector: []float32{0.7, 0.7, 0}, Payload: map[string]any{"document": "c"}},
	}))

	hits, err := b.Search(ctx, "captions", Query{VectorName: "text_dense", Vector: []float32{1, 0.1, 0}, Limit: 2})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "a", hits[0].ID)
	assert.Equal(t, "c", hits[1].ID)
	assert.InDelta(t, 0.995, hits[0].Score, 0.01)
	assert.Equal(t, "a", hits[0].Payload["document"])

	info, ok, err := b.Collection(ctx, "captions")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, map[string]int{"text_dense": 3}, info.Vectors)
	assert.Equal(t, uint64(3), info.Points)
}

func TestSQLiteBackendMissingCollection(t *testing.T) {
	ctx := context.Background()
	b := newTestSQLite(t, t.TempDir())

	_, ok, err := b.Collection(ctx, "absent")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = b.Search(ctx, "absent", Query{VectorName: "v", Vector: []float32{1}, Limit: 1})
	assert.ErrorIs(t, err, ErrCollectionNotFound)
	assert.ErrorIs(t, b.Upsert(ctx, "absent", nil), ErrCollectionNotFound)
}

func TestSQLiteStorePersistsAcrossRestart(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "qdrant")
	schema := CollectionSchema{VectorName: "text_dense", Size: 3}

	b := newTestSQLite(t, dir)
	store := NewStore(b, "social-captions", schema, zap.NewNop(),
		WithFieldIndexes([]FieldIndex{{Field: "platform", Kind: IndexKeyword}}))
	require.NoError(t, store.EnsureCollection(ctx))
	_, err := store.Upsert(ctx, entry.Entry{Content: "eco-friendly lifestyle tips", Metadata: entry.Metadata{"platform": "instagram", "likes": 3}}, []float32{1, 0, 0})
	require.NoError(t, err)
	_, err = store.Upsert(ctx, entry.Entry{Content: "hot takes", Metadata: entry.Metadata{"platform": "twitter", "likes": 9}}, []float32{0.9, 0.1, 0})
	require.NoError(t, err)
	require.NoError(t, b.Close())

	reopened := NewStore(newTestSQLite(t, dir), "social-captions", schema, zap.NewNop())
	require.NoError(t, reopened.EnsureCollection(ctx))

	results, err := reopened.Search(ctx, []float32{1, 0, 0}, 10, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "eco-friendly lifestyle tips", results[0].Content)
	assert.Equal(t, "instagram", results[0].Metadata["platform"])

	results, err = reopened.Search(ctx, []float32{1, 0, 0}, 10, map[string]any{"platform": "twitter"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "hot takes", results[0].Content)

	results, err = reopened.Search(ctx, []float32{1, 0, 0}, 10, map[string]any{"likes": float64(3)})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "eco-friendly lifestyle tips", results[0].Content)

	conflicting := NewStore(reopened.backend, "social-captions", CollectionSchema{VectorName: "text_dense", Size: 4}, zap.NewNop())
	assert.True(t, errs.Is(conflicting.EnsureCollection(ctx), errs.KindSchemaConflict))
}
