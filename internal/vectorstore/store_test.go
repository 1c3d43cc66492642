package vectorstore

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nidhogg/mcp-server-qdrant/internal/entry"
	"github.com/nidhogg/mcp-server-qdrant/internal/errs"
)

var testSchema = CollectionSchema{VectorName: "text_dense", Size: 3}

// recordingBackend wraps a MemoryBackend and counts calls.
type recordingBackend struct {
	*MemoryBackend
	mu        sync.Mutex
	calls     map[string]int
	searchErr error
	lastQuery Query
}

func newRecordingBackend() *recordingBackend {
	return &recordingBackend{MemoryBackend: NewMemoryBackend(), calls: make(map[string]int)}
}

func (b *recordingBackend) count(op string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[op]
}

func (b *recordingBackend) record(op string) {
	b.mu.Lock()
	b.calls[op]++
	b.mu.Unlock()
}

func (b *recordingBackend) Collection(ctx context.Context, name string) (CollectionInfo, bool, error) {
	b.record("collection")
	return b.MemoryBackend.Collection(ctx, name)
}

func (b *recordingBackend) CreateCollection(ctx context.Context, name string, schema CollectionSchema) error {
	b.record("create")
	return b.MemoryBackend.CreateCollection(ctx, name, schema)
}

func (b *recordingBackend) CreatePayloadIndex(ctx context.Context, name string, index FieldIndex) error {
	b.record("index")
	return b.MemoryBackend.CreatePayloadIndex(ctx, name, index)
}

func (b *recordingBackend) Upsert(ctx context.Context, name string, points []Point) error {
	b.record("upsert")
	return b.MemoryBackend.Upsert(ctx, name, points)
}

func (b *recordingBackend) Search(ctx context.Context, name string, q Query) ([]ScoredPoint, error) {
	b.record("search")
	b.mu.Lock()
	b.lastQuery = q
	err := b.searchErr
	b.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return b.MemoryBackend.Search(ctx, name, q)
}

func mustEntry(t *testing.T, content string, md entry.Metadata) entry.Entry {
	t.Helper()
	e, err := entry.New(content, md)
	require.NoError(t, err)
	return e
}

func TestStoreUpsertAndSearch(t *testing.T) {
	backend := newRecordingBackend()
	store := NewStore(backend, "captions", testSchema, zap.NewNop(),
		WithFieldIndexes([]FieldIndex{{Field: "platform", Kind: IndexKeyword}}))
	ctx := context.Background()

	id, err := store.Upsert(ctx, mustEntry(t, "eco-friendly lifestyle tips", entry.Metadata{"platform": "instagram"}), []float32{1, 0, 0})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	_, err = store.Upsert(ctx, mustEntry(t, "stock market news", nil), []float32{0, 1, 0})
	require.NoError(t, err)

	assert.Equal(t, 1, backend.count("create"))
	assert.Equal(t, 1, backend.count("index"))
	assert.Equal(t, []FieldIndex{{Field: "metadata.platform", Kind: IndexKeyword}}, backend.collections["captions"].indexes)

	results, err := store.Search(ctx, []float32{0.9, 0.1, 0}, 10, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "eco-friendly lifestyle tips", results[0].Content)
	assert.Equal(t, entry.Metadata{"platform": "instagram"}, results[0].Metadata)
	assert.Greater(t, results[0].Score, results[1].Score)
	assert.Nil(t, results[1].Metadata)

	results, err = store.Search(ctx, []float32{0.9, 0.1, 0}, 1, nil)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestStorePayloadLayout(t *testing.T) {
	backend := newRecordingBackend()
	store := NewStore(backend, "captions", testSchema, zap.NewNop())
	md := entry.Metadata{"platform": "instagram"}

	id, err := store.Upsert(context.Background(), mustEntry(t, "hello", md), []float32{1, 0, 0})
	require.NoError(t, err)

	p := backend.collections["captions"].points[id]
	assert.Equal(t, "text_dense", p.VectorName)
	assert.Equal(t, map[string]any{
		"document": "hello",
		"metadata": map[string]any{"platform": "instagram"},
	}, p.Payload)

	md["platform"] = "changed"
	assert.Equal(t, "instagram", p.Payload["metadata"].(map[string]any)["platform"], "stored metadata is a copy")
}

func TestStoreNestedMetadataIsNotShared(t *testing.T) {
	store := NewStore(NewMemoryBackend(), "captions", testSchema, zap.NewNop())
	ctx := context.Background()
	md := entry.Metadata{"author": map[string]any{"handle": "@eco"}, "tags": []any{"green"}}

	_, err := store.Upsert(ctx, mustEntry(t, "hello", md), []float32{1, 0, 0})
	require.NoError(t, err)
	md["author"].(map[string]any)["handle"] = "@caller"
	md["tags"].([]any)[0] = "caller"

	first, err := store.Search(ctx, []float32{1, 0, 0}, 1, nil)
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, "@eco", first[0].Metadata["author"].(map[string]any)["handle"])
	assert.Equal(t, "green", first[0].Metadata["tags"].([]any)[0])

	first[0].Metadata["author"].(map[string]any)["handle"] = "@reader"
	again, err := store.Search(ctx, []float32{1, 0, 0}, 1, nil)
	require.NoError(t, err)
	assert.Equal(t, "@eco", again[0].Metadata["author"].(map[string]any)["handle"])
}

func TestStoreReadOnlyNeverWrites(t *testing.T) {
	backend := newRecordingBackend()
	store := NewStore(backend, "captions", testSchema, zap.NewNop(), WithReadOnly(true))
	assert.True(t, store.ReadOnly())

	_, err := store.Upsert(context.Background(), mustEntry(t, "hello", nil), []float32{1, 0, 0})
	assert.True(t, errs.Is(err, errs.KindReadOnlyViolation), "got %v", err)
	assert.Zero(t, backend.count("collection"))
	assert.Zero(t, backend.count("create"))
	assert.Zero(t, backend.count("upsert"))

	require.NoError(t, store.EnsureCollection(context.Background()))
	assert.Zero(t, backend.count("create"), "read-only stores do not create collections")
}

func TestStoreRejectsBadInput(t *testing.T) {
	backend := newRecordingBackend()
	store := NewStore(backend, "captions", testSchema, zap.NewNop())
	ctx := context.Background()

	_, err := store.Upsert(ctx, entry.Entry{Content: "   "}, []float32{1, 0, 0})
	assert.True(t, errs.Is(err, errs.KindValidation), "got %v", err)

	_, err = store.Upsert(ctx, mustEntry(t, "hello", nil), []float32{1, 0})
	assert.True(t, errs.Is(err, errs.KindSchemaConflict), "got %v", err)

	_, err = store.Search(ctx, []float32{1, 0, 0}, 0, nil)
	assert.True(t, errs.Is(err, errs.KindValidation), "got %v", err)

	_, err = store.Search(ctx, []float32{1, 0, 0}, 5, map[string]any{"bad key": "x"})
	assert.True(t, errs.Is(err, errs.KindValidation), "got %v", err)

	assert.Zero(t, backend.count("upsert"))
	assert.Zero(t, backend.count("search"))
}

func TestStoreSearchMissingCollection(t *testing.T) {
	store := NewStore(newRecordingBackend(), "absent", testSchema, zap.NewNop())
	results, err := store.Search(context.Background(), []float32{1, 0, 0}, 5, nil)
	require.NoError(t, err)
	assert.NotNil(t, results)
	assert.Empty(t, results)
}

func TestStoreSearchBackendFailure(t *testing.T) {
	backend := newRecordingBackend()
	backend.searchErr = errors.New("connection refused")
	store := NewStore(backend, "captions", testSchema, zap.NewNop())

	_, err := store.Search(context.Background(), []float32{1, 0, 0}, 5, nil)
	assert.True(t, errs.Is(err, errs.KindStorageUnavailable), "got %v", err)
}

func TestStoreSearchTimeout(t *testing.T) {
	backend := newRecordingBackend()
	backend.searchErr = context.DeadlineExceeded
	store := NewStore(backend, "captions", testSchema, zap.NewNop())

	_, err := store.Search(context.Background(), []float32{1, 0, 0}, 5, nil)
	assert.True(t, errs.Is(err, errs.KindTimeout), "got %v", err)
}

func TestStoreFilterIsPrefixed(t *testing.T) {
	backend := newRecordingBackend()
	store := NewStore(backend, "captions", testSchema, zap.NewNop())
	ctx := context.Background()

	_, err := store.Upsert(ctx, mustEntry(t, "a", entry.Metadata{"platform": "instagram"}), []float32{1, 0, 0})
	require.NoError(t, err)
	_, err = store.Upsert(ctx, mustEntry(t, "b", entry.Metadata{"platform": "twitter"}), []float32{1, 0, 0})
	require.NoError(t, err)

	results, err := store.Search(ctx, []float32{1, 0, 0}, 5, map[string]any{"platform": "twitter"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "b", results[0].Content)
	assert.Equal(t, Filter{"metadata.platform": "twitter"}, backend.lastQuery.Filter)
	assert.Equal(t, "text_dense", backend.lastQuery.VectorName)
}

func TestEnsureCollectionSchemaConflict(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name     string
		existing CollectionSchema
	}{
		{"different size", CollectionSchema{VectorName: "text_dense", Size: 4, Distance: DistanceCosine}},
		{"different vector name", CollectionSchema{VectorName: "fast-all-minilm-l6-v2", Size: 3, Distance: DistanceCosine}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := NewMemoryBackend()
			require.NoError(t, backend.CreateCollection(ctx, "captions", tt.existing))

			store := NewStore(backend, "captions", testSchema, zap.NewNop())
			err := store.EnsureCollection(ctx)
			assert.True(t, errs.Is(err, errs.KindSchemaConflict), "got %v", err)
			assert.True(t, errs.IsFatal(err))

			_, err = store.Upsert(ctx, mustEntry(t, "hello", nil), []float32{1, 0, 0})
			assert.True(t, errs.Is(err, errs.KindSchemaConflict), "got %v", err)
		})
	}
}

func TestEnsureCollectionIsMemoized(t *testing.T) {
	backend := newRecordingBackend()
	store := NewStore(backend, "captions", testSchema, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, store.EnsureCollection(ctx))
	require.NoError(t, store.EnsureCollection(ctx))
	_, err := store.Upsert(ctx, mustEntry(t, "hello", nil), []float32{1, 0, 0})
	require.NoError(t, err)
	assert.Equal(t, 1, backend.count("collection"))
	assert.Equal(t, 1, backend.count("create"))
}

func TestDecodeEntry(t *testing.T) {
	tests := []struct {
		name    string
		payload map[string]any
		want    entry.Entry
	}{
		{
			name:    "document",
			payload: map[string]any{"document": "new", "text": "old", "metadata": map[string]any{"k": "v"}},
			want:    entry.Entry{Content: "new", Metadata: entry.Metadata{"k": "v"}, Score: 0.5},
		},
		{
			name:    "legacy text",
			payload: map[string]any{"text": "old"},
			want:    entry.Entry{Content: "old", Score: 0.5},
		},
		{
			name:    "empty document falls back",
			payload: map[string]any{"document": "", "text": "old"},
			want:    entry.Entry{Content: "old", Score: 0.5},
		},
		{
			name:    "no content",
			payload: map[string]any{"metadata": "not a map"},
			want:    entry.Entry{Score: 0.5},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, decodeEntry(ScoredPoint{ID: "x", Score: 0.5, Payload: tt.payload}))
		})
	}
}

func TestParseIndexKind(t *testing.T) {
	k, err := ParseIndexKind(" Keyword ")
	require.NoError(t, err)
	assert.Equal(t, IndexKeyword, k)

	_, err = ParseIndexKind("geo")
	assert.Error(t, err)
}
