package vectorstore

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nidhogg/mcp-server-qdrant/internal/entry"
	"github.com/nidhogg/mcp-server-qdrant/internal/errs"
)

// Payload field names. Points written by older deployments carry the
// content under "text" instead of "document".
const (
	PayloadDocument   = "document"
	PayloadMetadata   = "metadata"
	PayloadLegacyText = "text"
)

// Option configures a Store.
type Option func(*Store)

// WithReadOnly rejects every write before it reaches the backend.
func WithReadOnly(readOnly bool) Option {
	return func(s *Store) { s.readOnly = readOnly }
}

// WithFieldIndexes creates payload indexes on metadata fields when the
// collection is created.
func WithFieldIndexes(indexes []FieldIndex) Option {
	return func(s *Store) { s.indexes = append([]FieldIndex(nil), indexes...) }
}

// Store maps entries to points of one collection. It owns the payload
// layout; backends only see opaque payload maps.
type Store struct {
	backend    Backend
	collection string
	schema     CollectionSchema
	readOnly   bool
	indexes    []FieldIndex
	logger     *zap.Logger

	mu      sync.Mutex
	ensured bool
}

// NewStore creates a Store for collection. schema is the layout written
// by this process: the embedding provider's vector name and size.
func NewStore(backend Backend, collection string, schema CollectionSchema, logger *zap.Logger, opts ...Option) *Store {
	if schema.Distance == "" {
		schema.Distance = DistanceCosine
	}
	s := &Store{
		backend:    backend,
		collection: collection,
		schema:     schema,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ReadOnly reports whether writes are rejected.
func (s *Store) ReadOnly() bool { return s.readOnly }

// Collection returns the collection name.
func (s *Store) Collection() string { return s.collection }

// Schema returns the vector layout written by this store.
func (s *Store) Schema() CollectionSchema { return s.schema }

// EnsureCollection creates the collection if it is missing and checks that
// an existing one matches the schema. It is called once at startup, where
// a SchemaConflict is fatal, and again lazily before the first write.
// A read-only store never creates anything.
func (s *Store) EnsureCollection(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ensured {
		return nil
	}

	info, exists, err := s.backend.Collection(ctx, s.collection)
	if err != nil {
		return errs.WrapContext(ctx, err, errs.KindStorageUnavailable, "vectorstore: inspect collection", "collection", s.collection)
	}
	if exists {
		if err := s.checkSchema(info); err != nil {
			return err
		}
		s.ensured = true
		return nil
	}
	if s.readOnly {
		s.logger.Warn("collection does not exist; read-only mode will not create it", zap.String("collection", s.collection))
		return nil
	}

	if err := s.create(ctx); err != nil {
		return err
	}
	s.ensured = true
	return nil
}

func (s *Store) create(ctx context.Context) error {
	err := s.backend.CreateCollection(ctx, s.collection, s.schema)
	if err != nil {
		// Another writer may have created it first.
		info, exists, lookupErr := s.backend.Collection(ctx, s.collection)
		if lookupErr != nil || !exists {
			return errs.WrapContext(ctx, err, errs.KindStorageUnavailable, "vectorstore: create collection", "collection", s.collection)
		}
		return s.checkSchema(info)
	}

	for _, idx := range s.indexes {
		idx.Field = PayloadMetadata + "." + idx.Field
		if err := s.backend.CreatePayloadIndex(ctx, s.collection, idx); err != nil {
			return errs.WrapContext(ctx, err, errs.KindStorageUnavailable, "vectorstore: create payload index",
				"collection", s.collection, "field", idx.Field)
		}
	}
	s.logger.Info("collection created",
		zap.String("collection", s.collection),
		zap.String("vector", s.schema.VectorName),
		zap.Int("dim", s.schema.Size),
		zap.Int("indexes", len(s.indexes)),
	)
	return nil
}

func (s *Store) checkSchema(info CollectionInfo) error {
	size, ok := info.Vectors[s.schema.VectorName]
	if !ok {
		return errs.New(errs.KindSchemaConflict, "collection has no vector with the configured name",
			"collection", s.collection, "vector", s.schema.VectorName, "existing", vectorNames(info))
	}
	if size != s.schema.Size {
		return errs.New(errs.KindSchemaConflict, "collection vector size differs from the embedding model",
			"collection", s.collection, "vector", s.schema.VectorName, "existing_size", size, "model_size", s.schema.Size)
	}
	return nil
}

func vectorNames(info CollectionInfo) []string {
	names := make([]string, 0, len(info.Vectors))
	for name := range info.Vectors {
		names = append(names, name)
	}
	return names
}

// Upsert stores e under vector and returns the generated point id.
func (s *Store) Upsert(ctx context.Context, e entry.Entry, vector []float32) (string, error) {
	if s.readOnly {
		return "", errs.New(errs.KindReadOnlyViolation, "store is read-only", "collection", s.collection)
	}
	if err := e.Validate(); err != nil {
		return "", err
	}
	if len(vector) != s.schema.Size {
		return "", errs.New(errs.KindSchemaConflict, "vector size differs from the collection",
			"collection", s.collection, "got", len(vector), "want", s.schema.Size)
	}
	if err := s.EnsureCollection(ctx); err != nil {
		return "", err
	}

	id := uuid.New().String()
	payload := map[string]any{PayloadDocument: e.Content}
	if e.Metadata != nil {
		payload[PayloadMetadata] = e.Clone().Metadata
	}
	err := s.backend.Upsert(ctx, s.collection, []Point{{
		ID:         id,
		VectorName: s.schema.VectorName,
		Vector:     vector,
		Payload:    payload,
	}})
	if err != nil {
		return "", errs.WrapContext(ctx, err, errs.KindStorageUnavailable, "vectorstore: upsert", "collection", s.collection)
	}
	return id, nil
}

// Search returns up to limit entries nearest to vector, best first. filter
// holds equality predicates on metadata keys. A missing collection yields
// no results.
func (s *Store) Search(ctx context.Context, vector []float32, limit int, filter map[string]any) ([]entry.Entry, error) {
	if limit <= 0 {
		return nil, errs.New(errs.KindValidation, "limit must be positive", "limit", limit)
	}
	if len(vector) != s.schema.Size {
		return nil, errs.New(errs.KindSchemaConflict, "vector size differs from the collection",
			"collection", s.collection, "got", len(vector), "want", s.schema.Size)
	}
	var f Filter
	if len(filter) > 0 {
		f = make(Filter, len(filter))
		for k, v := range filter {
			if !ValidFieldName(k) {
				return nil, errs.New(errs.KindValidation, "invalid filter key", "key", k)
			}
			f[PayloadMetadata+"."+k] = v
		}
	}

	hits, err := s.backend.Search(ctx, s.collection, Query{
		VectorName: s.schema.VectorName,
		Vector:     vector,
		Limit:      limit,
		Filter:     f,
	})
	if errors.Is(err, ErrCollectionNotFound) {
		s.logger.Debug("search on missing collection", zap.String("collection", s.collection))
		return []entry.Entry{}, nil
	}
	if err != nil {
		return nil, errs.WrapContext(ctx, err, errs.KindStorageUnavailable, "vectorstore: search", "collection", s.collection)
	}

	out := make([]entry.Entry, 0, min(len(hits), limit))
	for _, h := range hits {
		if len(out) == limit {
			break
		}
		out = append(out, decodeEntry(h))
	}
	return out, nil
}

// decodeEntry maps a point back to an entry. Content comes from the
// document field, falling back to the legacy text field.
func decodeEntry(p ScoredPoint) entry.Entry {
	e := entry.Entry{Score: p.Score}
	if doc, ok := p.Payload[PayloadDocument].(string); ok && doc != "" {
		e.Content = doc
	} else if text, ok := p.Payload[PayloadLegacyText].(string); ok {
		e.Content = text
	}
	if md, ok := p.Payload[PayloadMetadata].(map[string]any); ok {
		e.Metadata = md
	}
	return e.Clone()
}

// Close releases the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}
