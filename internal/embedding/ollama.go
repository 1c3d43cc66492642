package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/nidhogg/mcp-server-qdrant/internal/errs"
)

const defaultOllamaEndpoint = "http://localhost:11434"

// OllamaProvider implements Provider using an Ollama-compatible embeddings API.
type OllamaProvider struct {
	endpoint   string
	model      string
	dimension  int
	vectorName string
	client     *http.Client
}

// NewOllamaProvider creates an OllamaProvider from the given Config.
func NewOllamaProvider(cfg Config, _ Deps) (Provider, error) {
	if cfg.Model == "" {
		return nil, errs.New(errs.KindConfiguration, "ollama provider needs a model name")
	}
	if cfg.Dimension <= 0 {
		return nil, errs.New(errs.KindConfiguration, "ollama provider needs a vector dimension", "model", cfg.Model)
	}
	endpoint := strings.TrimRight(cfg.Endpoint, "/")
	if endpoint == "" {
		endpoint = defaultOllamaEndpoint
	}
	vectorName := cfg.VectorName
	if vectorName == "" {
		vectorName = "ollama-" + shortName(cfg.Model)
	}
	return &OllamaProvider{
		endpoint:   endpoint,
		model:      cfg.Model,
		dimension:  cfg.Dimension,
		vectorName: vectorName,
		client:     http.DefaultClient,
	}, nil
}

type ollamaRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaResponse struct {
	Embedding []float32 `json:"embedding"`
}

// EmbedDocuments sends each text to the endpoint and returns embeddings in order.
func (p *OllamaProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	embeddings := make([][]float32, 0, len(texts))
	for _, text := range texts {
		vec, err := p.embedSingle(ctx, text)
		if err != nil {
			return nil, errs.WrapContext(ctx, err, errs.KindEmbedding, "embedding: ollama embed documents", "model", p.model)
		}
		embeddings = append(embeddings, vec)
	}
	return embeddings, nil
}

func (p *OllamaProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vec, err := p.embedSingle(ctx, text)
	if err != nil {
		return nil, errs.WrapContext(ctx, err, errs.KindEmbedding, "embedding: ollama embed query", "model", p.model)
	}
	return vec, nil
}

func (p *OllamaProvider) embedSingle(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(ollamaRequest{
		Model:  p.model,
		Prompt: text,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var result ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(result.Embedding) != p.dimension {
		return nil, fmt.Errorf("got dimension %d, want %d", len(result.Embedding), p.dimension)
	}
	return result.Embedding, nil
}

// VectorSize returns the configured embedding dimension.
func (p *OllamaProvider) VectorSize() int { return p.dimension }

func (p *OllamaProvider) VectorName() string { return p.vectorName }

func shortName(model string) string {
	model = model[strings.LastIndex(model, "/")+1:]
	if i := strings.IndexByte(model, ':'); i >= 0 {
		model = model[:i]
	}
	return strings.ToLower(model)
}
