package embedding

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/nidhogg/mcp-server-qdrant/internal/errs"
)

// OpenAIProvider implements Provider using an OpenAI-compatible embeddings API.
type OpenAIProvider struct {
	client     openai.Client
	model      string
	dimension  int
	vectorName string
}

// NewOpenAIProvider creates an OpenAIProvider from the given Config. The
// dimension must be configured because the collection is created before
// the first embedding is requested.
func NewOpenAIProvider(cfg Config, deps Deps) (Provider, error) {
	if cfg.Model == "" {
		return nil, errs.New(errs.KindConfiguration, "openai provider needs a model name")
	}
	if cfg.Dimension <= 0 {
		return nil, errs.New(errs.KindConfiguration, "openai provider needs a vector dimension", "model", cfg.Model)
	}
	opts := []option.RequestOption{option.WithMaxRetries(0)}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithBaseURL(cfg.Endpoint))
	}
	vectorName := cfg.VectorName
	if vectorName == "" {
		vectorName = "openai-" + shortName(cfg.Model)
	}
	return &OpenAIProvider{
		client:     openai.NewClient(opts...),
		model:      cfg.Model,
		dimension:  cfg.Dimension,
		vectorName: vectorName,
	}, nil
}

// EmbedDocuments sends texts to the embeddings endpoint in one request.
func (p *OpenAIProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vecs, err := p.embed(ctx, texts)
	if err != nil {
		return nil, errs.WrapContext(ctx, err, errs.KindEmbedding, "embedding: openai embed documents", "model", p.model)
	}
	return vecs, nil
}

func (p *OpenAIProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := p.embed(ctx, []string{text})
	if err != nil {
		return nil, errs.WrapContext(ctx, err, errs.KindEmbedding, "embedding: openai embed query", "model", p.model)
	}
	return vecs[0], nil
}

func (p *OpenAIProvider) embed(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := p.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model:          openai.EmbeddingModel(p.model),
		Input:          openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		EncodingFormat: openai.EmbeddingNewParamsEncodingFormatFloat,
	})
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("got %d embeddings for %d inputs", len(resp.Data), len(texts))
	}

	embeddings := make([][]float32, len(texts))
	for _, d := range resp.Data {
		idx := int(d.Index)
		if idx < 0 || idx >= len(embeddings) {
			return nil, fmt.Errorf("embedding index %d out of range", idx)
		}
		if len(d.Embedding) != p.dimension {
			return nil, fmt.Errorf("got dimension %d, want %d", len(d.Embedding), p.dimension)
		}
		vec := make([]float32, len(d.Embedding))
		for i, v := range d.Embedding {
			vec[i] = float32(v)
		}
		embeddings[idx] = vec
	}
	return embeddings, nil
}

// VectorSize returns the configured embedding dimension.
func (p *OpenAIProvider) VectorSize() int { return p.dimension }

func (p *OpenAIProvider) VectorName() string { return p.vectorName }
