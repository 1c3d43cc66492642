package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrCollectionNotFound is returned by backends when the collection does not exist.
var ErrCollectionNotFound = errors.New("vectorstore: collection not found")

// Distance is the similarity metric of a collection.
type Distance string

const DistanceCosine Distance = "cosine"

// IndexKind is the value type of a payload index.
type IndexKind string

const (
	IndexKeyword  IndexKind = "keyword"
	IndexInteger  IndexKind = "integer"
	IndexFloat    IndexKind = "float"
	IndexBool     IndexKind = "bool"
	IndexText     IndexKind = "text"
	IndexDatetime IndexKind = "datetime"
)

// ParseIndexKind validates an index kind name.
func ParseIndexKind(s string) (IndexKind, error) {
	k := IndexKind(strings.ToLower(strings.TrimSpace(s)))
	switch k {
	case IndexKeyword, IndexInteger, IndexFloat, IndexBool, IndexText, IndexDatetime:
		return k, nil
	}
	return "", fmt.Errorf("unsupported index type %q", s)
}

// FieldIndex is a payload index on metadata.<Field>.
type FieldIndex struct {
	Field string
	Kind  IndexKind
}

var fieldPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*$`)

// ValidFieldName reports whether name can be used as an index or filter key.
func ValidFieldName(name string) bool {
	return fieldPattern.MatchString(name)
}

// CollectionSchema describes the single named vector of a collection.
type CollectionSchema struct {
	VectorName string
	Size       int
	Distance   Distance
}

// CollectionInfo is what a backend reports about an existing collection.
type CollectionInfo struct {
	// Vectors maps each named vector to its size.
	Vectors  map[string]int
	Points   uint64
	Distance Distance
}

// Point is a vector plus payload as written to a backend.
type Point struct {
	ID         string
	VectorName string
	Vector     []float32
	Payload    map[string]any
}

// ScoredPoint is one search hit. Higher scores are more similar.
type ScoredPoint struct {
	ID      string
	Score   float32
	Payload map[string]any
}

// Filter is a conjunction of equality predicates on payload paths.
type Filter map[string]any

// Query is a nearest-neighbour search request.
type Query struct {
	VectorName string
	Vector     []float32
	Limit      int
	Filter     Filter
}

// Backend is a vector database. Implementations must be safe for concurrent use.
type Backend interface {
	// Collection reports whether name exists and, if so, its layout.
	Collection(ctx context.Context, name string) (CollectionInfo, bool, error)
	CreateCollection(ctx context.Context, name string, schema CollectionSchema) error
	CreatePayloadIndex(ctx context.Context, name string, index FieldIndex) error
	Upsert(ctx context.Context, name string, points []Point) error
	// Search returns hits ordered by descending score, or ErrCollectionNotFound.
	Search(ctx context.Context, name string, q Query) ([]ScoredPoint, error)
	Close() error
}
