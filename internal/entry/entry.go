// Package entry holds the storage-agnostic representation of a stored item.
package entry

import (
	"strings"

	"github.com/nidhogg/mcp-server-qdrant/internal/errs"
)

// Metadata is opaque, caller-supplied structured data attached to an Entry.
type Metadata = map[string]any

// Entry is one stored item: the embedded text plus its metadata.
// Score is only set on entries returned by a search.
type Entry struct {
	Content  string
	Metadata Metadata
	Score    float32
}

// New builds an Entry from untrusted input and validates it.
func New(content string, metadata Metadata) (Entry, error) {
	e := Entry{Content: content, Metadata: metadata}
	if err := e.Validate(); err != nil {
		return Entry{}, err
	}
	return e, nil
}

// Validate rejects entries that must never reach an embedding provider.
func (e Entry) Validate() error {
	if strings.TrimSpace(e.Content) == "" {
		return errs.New(errs.KindValidation, "content must not be empty")
	}
	return nil
}

// Clone returns a copy whose metadata shares no map or slice with e, at any
// depth.
func (e Entry) Clone() Entry {
	out := e
	if e.Metadata != nil {
		out.Metadata = cloneMap(e.Metadata)
	}
	return out
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		if val == nil {
			return val
		}
		return cloneMap(val)
	case []any:
		if val == nil {
			return val
		}
		out := make([]any, len(val))
		for i, x := range val {
			out[i] = cloneValue(x)
		}
		return out
	default:
		return v
	}
}
