package vectorstore

import (
	"context"
	"fmt"
	"math"
	"slices"
	"strings"
	"sync"
)

// MemoryBackend keeps collections in process memory and searches them by
// brute force. Nothing survives a restart.
type MemoryBackend struct {
	mu          sync.RWMutex
	collections map[string]*memCollection
}

type memCollection struct {
	schema  CollectionSchema
	indexes []FieldIndex
	order   []string
	points  map[string]Point
}

// NewMemoryBackend returns an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{collections: make(map[string]*memCollection)}
}

func (m *MemoryBackend) Collection(_ context.Context, name string) (CollectionInfo, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.collections[name]
	if !ok {
		return CollectionInfo{}, false, nil
	}
	return CollectionInfo{
		Vectors:  map[string]int{c.schema.VectorName: c.schema.Size},
		Points:   uint64(len(c.points)),
		Distance: c.schema.Distance,
	}, true, nil
}

func (m *MemoryBackend) CreateCollection(_ context.Context, name string, schema CollectionSchema) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.collections[name]; ok {
		return fmt.Errorf("collection %s already exists", name)
	}
	m.collections[name] = &memCollection{schema: schema, points: make(map[string]Point)}
	return nil
}

// CreatePayloadIndex records the index. Searches scan every point anyway.
func (m *MemoryBackend) CreatePayloadIndex(_ context.Context, name string, index FieldIndex) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.collections[name]
	if !ok {
		return ErrCollectionNotFound
	}
	c.indexes = append(c.indexes, index)
	return nil
}

func (m *MemoryBackend) Upsert(_ context.Context, name string, points []Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.collections[name]
	if !ok {
		return ErrCollectionNotFound
	}
	for _, p := range points {
		if p.VectorName != c.schema.VectorName || len(p.Vector) != c.schema.Size {
			return fmt.Errorf("point %s does not match collection %s", p.ID, name)
		}
	}
	for _, p := range points {
		if _, exists := c.points[p.ID]; !exists {
			c.order = append(c.order, p.ID)
		}
		p.Vector = slices.Clone(p.Vector)
		c.points[p.ID] = p
	}
	return nil
}

func (m *MemoryBackend) Search(ctx context.Context, name string, q Query) ([]ScoredPoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.collections[name]
	if !ok {
		return nil, ErrCollectionNotFound
	}
	if q.VectorName != c.schema.VectorName {
		return nil, fmt.Errorf("collection %s has no vector %q", name, q.VectorName)
	}

	hits := make([]ScoredPoint, 0, len(c.points))
	for _, id := range c.order {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p := c.points[id]
		if !matchFilter(p.Payload, q.Filter) {
			continue
		}
		hits = append(hits, ScoredPoint{
			ID:      p.ID,
			Score:   cosineSimilarity(q.Vector, p.Vector),
			Payload: p.Payload,
		})
	}
	slices.SortStableFunc(hits, func(a, b ScoredPoint) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		return 0
	})
	if len(hits) > q.Limit {
		hits = hits[:q.Limit]
	}
	return hits, nil
}

func (m *MemoryBackend) Close() error { return nil }

func matchFilter(payload map[string]any, f Filter) bool {
	for path, want := range f {
		got, ok := lookupPath(payload, path)
		if !ok || !equalValues(got, want) {
			return false
		}
	}
	return true
}

func lookupPath(payload map[string]any, path string) (any, bool) {
	var cur any = payload
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = m[part]; !ok {
			return nil, false
		}
	}
	return cur, true
}

// equalValues compares payload values with JSON semantics: all numbers
// are compared as float64.
func equalValues(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		return ok && fa == fb
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// cosineSimilarity calculates the cosine similarity between two vectors.
func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
