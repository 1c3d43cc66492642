package fastembed

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Embedder embeds text with one registered model. The model is loaded on
// first use; a failed load is not remembered, so the next call retries it.
// Loading is serialized per Embedder; a caller waiting on another load gives
// up when its own context ends.
type Embedder struct {
	desc   ModelDescriptor
	cache  *Cache
	engine Engine
	logger *zap.Logger

	sem   chan struct{} // held while model is read or loaded
	model Model
}

// NewEmbedder returns an Embedder for the model registered under name.
func NewEmbedder(reg *Registry, name string, cache *Cache, engine Engine, logger *zap.Logger) (*Embedder, error) {
	d, ok := reg.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("fastembed: model %q is not supported", name)
	}
	if engine.NeedsArtifacts() && cache == nil {
		return nil, fmt.Errorf("fastembed: engine %s needs a model cache", engine.Name())
	}
	return &Embedder{desc: d, cache: cache, engine: engine, logger: logger, sem: make(chan struct{}, 1)}, nil
}

// Descriptor returns the model descriptor.
func (e *Embedder) Descriptor() ModelDescriptor { return e.desc }

// Load loads the model if it is not loaded yet.
func (e *Embedder) Load(ctx context.Context) error {
	_, err := e.load(ctx)
	return err
}

func (e *Embedder) load(ctx context.Context) (Model, error) {
	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("fastembed: waiting for %s to load: %w", e.desc.Name, ctx.Err())
	}
	defer func() { <-e.sem }()
	if e.model != nil {
		return e.model, nil
	}

	var dir string
	if e.engine.NeedsArtifacts() {
		var err error
		dir, err = e.cache.Ensure(ctx, e.desc)
		if err != nil {
			return nil, err
		}
	}
	m, err := e.engine.Load(ctx, e.desc, dir)
	if err != nil {
		return nil, fmt.Errorf("fastembed: load %s: %w", e.desc.Name, err)
	}
	e.logger.Info("model loaded", zap.String("model", e.desc.Name), zap.String("engine", e.engine.Name()))
	e.model = m
	return m, nil
}

// PassageEmbed embeds documents.
func (e *Embedder) PassageEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	return e.embed(ctx, texts)
}

// QueryEmbed embeds search queries.
func (e *Embedder) QueryEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	return e.embed(ctx, texts)
}

func (e *Embedder) embed(ctx context.Context, texts []string) ([][]float32, error) {
	m, err := e.load(ctx)
	if err != nil {
		return nil, err
	}
	vecs, err := m.Embed(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("fastembed: %s returned %d vectors for %d texts", e.desc.Name, len(vecs), len(texts))
	}
	for i, v := range vecs {
		if len(v) != e.desc.Dim {
			return nil, fmt.Errorf("fastembed: %s vector %d has dimension %d, want %d", e.desc.Name, i, len(v), e.desc.Dim)
		}
	}
	return vecs, nil
}
