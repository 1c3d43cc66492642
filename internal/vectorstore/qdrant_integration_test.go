//go:build integration

package vectorstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcqdrant "github.com/testcontainers/testcontainers-go/modules/qdrant"
	"go.uber.org/zap"

	"github.com/nidhogg/mcp-server-qdrant/internal/entry"
	"github.com/nidhogg/mcp-server-qdrant/internal/errs"
)

// startQdrant starts a Qdrant testcontainer and returns its gRPC url.
func startQdrant(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	container, err := tcqdrant.Run(ctx, "qdrant/qdrant:v1.13.4")
	require.NoError(t, err, "start qdrant")
	t.Cleanup(func() { container.Terminate(ctx) })

	endpoint, err := container.GRPCEndpoint(ctx)
	require.NoError(t, err, "qdrant grpc endpoint")
	return "http://" + endpoint
}

func TestQdrantBackendStoreAndFind(t *testing.T) {
	ctx := context.Background()
	backend, err := NewQdrantBackend(QdrantConfig{URL: startQdrant(t)}, zap.NewNop())
	require.NoError(t, err)
	defer backend.Close()

	schema := CollectionSchema{VectorName: "text_dense", Size: 3}
	store := NewStore(backend, "social-captions", schema, zap.NewNop(),
		WithFieldIndexes([]FieldIndex{{Field: "platform", Kind: IndexKeyword}}))

	results, err := store.Search(ctx, []float32{1, 0, 0}, 5, nil)
	require.NoError(t, err)
	assert.Empty(t, results, "missing collection yields no results")

	require.NoError(t, store.EnsureCollection(ctx))
	_, err = store.Upsert(ctx, entry.Entry{Content: "eco-friendly lifestyle tips", Metadata: entry.Metadata{"platform": "instagram", "likes": float64(5)}}, []float32{1, 0, 0})
	require.NoError(t, err)
	_, err = store.Upsert(ctx, entry.Entry{Content: "quarterly earnings", Metadata: entry.Metadata{"platform": "linkedin", "likes": float64(12)}}, []float32{0, 1, 0})
	require.NoError(t, err)

	results, err = store.Search(ctx, []float32{0.9, 0.1, 0}, 1, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "eco-friendly lifestyle tips", results[0].Content)
	assert.Equal(t, entry.Metadata{"platform": "instagram", "likes": float64(5)}, results[0].Metadata)

	results, err = store.Search(ctx, []float32{0.9, 0.1, 0}, 5, map[string]any{"platform": "linkedin"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "quarterly earnings", results[0].Content)

	// Numbers decoded from JSON arrive as float64, Go callers may pass ints.
	for _, likes := range []any{float64(12), 12, int64(12)} {
		results, err = store.Search(ctx, []float32{0.9, 0.1, 0}, 5, map[string]any{"likes": likes})
		require.NoError(t, err)
		require.Len(t, results, 1, "likes=%v (%T)", likes, likes)
		assert.Equal(t, "quarterly earnings", results[0].Content)
	}

	info, ok, err := backend.Collection(ctx, "social-captions")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, map[string]int{"text_dense": 3}, info.Vectors)

	conflicting := NewStore(backend, "social-captions", CollectionSchema{VectorName: "text_dense", Size: 8}, zap.NewNop())
	assert.True(t, errs.Is(conflicting.EnsureCollection(ctx), errs.KindSchemaConflict))
}
