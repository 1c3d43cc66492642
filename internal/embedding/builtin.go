package embedding

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/nidhogg/mcp-server-qdrant/internal/errs"
	"github.com/nidhogg/mcp-server-qdrant/internal/fastembed"
)

// FastEmbedProvider embeds text with a model from the fastembed registry.
// The built-in kind serves catalog models and never applies a query
// prefix; the custom kind registers its own model and prefixes queries.
type FastEmbedProvider struct {
	embedder    *fastembed.Embedder
	vectorName  string
	queryPrefix string
}

// NewFastEmbedProvider creates a provider for a catalog model.
func NewFastEmbedProvider(cfg Config, deps Deps) (Provider, error) {
	deps = deps.withDefaults()
	if deps.Registry == nil {
		return nil, fmt.Errorf("embedding: fastembed needs a model registry")
	}
	d, ok := deps.Registry.Lookup(cfg.Model)
	if !ok {
		return nil, errs.New(errs.KindConfiguration, "embedding model is not in the fastembed catalog", "model", cfg.Model)
	}
	if cfg.QueryPrefix != "" {
		deps.Logger.Warn("query prefix is ignored by the fastembed provider", zap.String("model", cfg.Model))
	}
	return newFastEmbedProvider(d, "fast-"+d.ShortName(), "", cfg, deps)
}

func newFastEmbedProvider(d fastembed.ModelDescriptor, vectorName, prefix string, cfg Config, deps Deps) (Provider, error) {
	cache := deps.Cache
	if cache == nil && cfg.CacheDir != "" && deps.Engine.NeedsArtifacts() {
		cache = fastembed.NewCache(cfg.CacheDir, fastembed.NewHub(fastembed.DefaultHubEndpoint, ""), deps.Logger)
	}
	emb, err := fastembed.NewEmbedder(deps.Registry, d.Name, cache, deps.Engine, deps.Logger)
	if err != nil {
		return nil, err
	}
	return &FastEmbedProvider{embedder: emb, vectorName: vectorName, queryPrefix: prefix}, nil
}

func (p *FastEmbedProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vecs, err := p.embedder.PassageEmbed(ctx, texts)
	if err != nil {
		return nil, errs.WrapContext(ctx, err, errs.KindEmbedding, "embedding: embed documents",
			"model", p.embedder.Descriptor().Name)
	}
	return vecs, nil
}

func (p *FastEmbedProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := p.embedder.QueryEmbed(ctx, []string{p.queryPrefix + text})
	if err != nil {
		return nil, errs.WrapContext(ctx, err, errs.KindEmbedding, "embedding: embed query",
			"model", p.embedder.Descriptor().Name)
	}
	return vecs[0], nil
}

func (p *FastEmbedProvider) VectorSize() int { return p.embedder.Descriptor().Dim }

func (p *FastEmbedProvider) VectorName() string { return p.vectorName }

// QueryPrefix returns the text prepended to queries, "" for catalog models.
func (p *FastEmbedProvider) QueryPrefix() string { return p.queryPrefix }

// Warmup loads the model so the first tool call does not pay for it.
func (p *FastEmbedProvider) Warmup(ctx context.Context) error {
	if err := p.embedder.Load(ctx); err != nil {
		return errs.WrapContext(ctx, err, errs.KindEmbedding, "embedding: warm up",
			"model", p.embedder.Descriptor().Name)
	}
	return nil
}
