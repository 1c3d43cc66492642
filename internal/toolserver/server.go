// Package toolserver implements the store and find operations and exposes
// them as MCP tools.
package toolserver

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nidhogg/mcp-server-qdrant/internal/embedding"
	"github.com/nidhogg/mcp-server-qdrant/internal/entry"
	"github.com/nidhogg/mcp-server-qdrant/internal/errs"
)

const (
	DefaultSearchLimit = 10
	DefaultTimeout     = 30 * time.Second
)

// EntryStore persists entries with their vectors.
type EntryStore interface {
	Upsert(ctx context.Context, e entry.Entry, vector []float32) (string, error)
	Search(ctx context.Context, vector []float32, limit int, filter map[string]any) ([]entry.Entry, error)
	ReadOnly() bool
	Collection() string
}

// Options tune the tool behaviour.
type Options struct {
	// DefaultLimit applies when find is called without a positive limit.
	DefaultLimit int
	// MaxLimit caps the find limit. Zero means no cap.
	MaxLimit int
	// Timeout bounds each call.
	Timeout          time.Duration
	StoreDescription string
	FindDescription  string
}

func (o Options) withDefaults() Options {
	if o.DefaultLimit <= 0 {
		o.DefaultLimit = DefaultSearchLimit
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.StoreDescription == "" {
		o.StoreDescription = DefaultStoreDescription
	}
	if o.FindDescription == "" {
		o.FindDescription = DefaultFindDescription
	}
	return o
}

// Server embeds text and reads and writes entries. It keeps no state
// between calls.
type Server struct {
	provider embedding.Provider
	store    EntryStore
	opts     Options
	logger   *zap.Logger
}

// New creates a Server.
func New(provider embedding.Provider, store EntryStore, opts Options, logger *zap.Logger) *Server {
	return &Server{
		provider: provider,
		store:    store,
		opts:     opts.withDefaults(),
		logger:   logger,
	}
}

// Store embeds information and saves it with metadata. It returns a
// confirmation message.
func (s *Server) Store(ctx context.Context, information string, metadata map[string]any) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	if s.store.ReadOnly() {
		return "", errs.New(errs.KindReadOnlyViolation, "store is disabled in read-only mode")
	}
	e, err := entry.New(information, metadata)
	if err != nil {
		return "", err
	}

	vecs, err := s.provider.EmbedDocuments(ctx, []string{e.Content})
	if err != nil {
		return "", err
	}
	if len(vecs) != 1 {
		return "", errs.Errorf(errs.KindEmbedding, "provider returned %d vectors for one document", len(vecs))
	}
	id, err := s.store.Upsert(ctx, e, vecs[0])
	if err != nil {
		return "", err
	}
	s.logger.Debug("stored entry", zap.String("id", id), zap.Int("metadata_keys", len(metadata)))
	return fmt.Sprintf("Remembered: %s in collection %s", e.Content, s.store.Collection()), nil
}

// Find returns the entries most similar to query, best first.
func (s *Server) Find(ctx context.Context, query string, limit int, filter map[string]any) ([]entry.Entry, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	if strings.TrimSpace(query) == "" {
		return nil, errs.New(errs.KindValidation, "query must not be empty")
	}
	limit = s.Limit(limit)

	vec, err := s.provider.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	results, err := s.store.Search(ctx, vec, limit, filter)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("find", zap.Int("limit", limit), zap.Int("results", len(results)))
	return results, nil
}

// Limit resolves the effective find limit.
func (s *Server) Limit(requested int) int {
	limit := requested
	if limit <= 0 {
		limit = s.opts.DefaultLimit
	}
	if s.opts.MaxLimit > 0 && limit > s.opts.MaxLimit {
		limit = s.opts.MaxLimit
	}
	return limit
}
