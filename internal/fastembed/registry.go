package fastembed

import (
	"slices"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Registry is the process-wide set of model descriptors. Construct one at
// startup with NewRegistry and share it; it is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	models map[string]ModelDescriptor
	logger *zap.Logger
}

// NewRegistry returns a registry seeded with the built-in Catalog.
func NewRegistry(logger *zap.Logger) *Registry {
	r := &Registry{
		models: make(map[string]ModelDescriptor),
		logger: logger,
	}
	for _, d := range Catalog() {
		r.models[key(d.Name)] = d
	}
	return r
}

func key(name string) string { return strings.ToLower(name) }

// Lookup returns the descriptor registered under name.
func (r *Registry) Lookup(name string) (ModelDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.models[key(name)]
	return d, ok
}

// AddCustomModel registers d. Registering a name that is already known is
// not an error: the existing descriptor is returned unchanged and nothing is
// downloaded.
func (r *Registry) AddCustomModel(d ModelDescriptor) (ModelDescriptor, error) {
	if err := d.validate(); err != nil {
		return ModelDescriptor{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.models[key(d.Name)]; ok {
		r.logger.Debug("model already registered", zap.String("model", d.Name), zap.String("source", existing.Source))
		return existing, nil
	}
	r.models[key(d.Name)] = d
	r.logger.Info("registered custom model",
		zap.String("model", d.Name),
		zap.String("source", d.Source),
		zap.Int("dim", d.Dim),
	)
	return d, nil
}

// List returns all descriptors sorted by name.
func (r *Registry) List() []ModelDescriptor {
	r.mu.RLock()
	out := make([]ModelDescriptor, 0, len(r.models))
	for _, d := range r.models {
		out = append(out, d)
	}
	r.mu.RUnlock()
	slices.SortFunc(out, func(a, b ModelDescriptor) int { return strings.Compare(a.Name, b.Name) })
	return out
}
