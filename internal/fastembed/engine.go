package fastembed

import (
	"context"
	"fmt"
	"math"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"
)

// Model is a loaded embedding model.
type Model interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Engine loads models for inference.
type Engine interface {
	Name() string
	// NeedsArtifacts reports whether Load expects the model files on disk.
	NeedsArtifacts() bool
	// Load prepares d for inference. dir is the snapshot directory holding
	// the artifacts, or "" when NeedsArtifacts is false.
	Load(ctx context.Context, d ModelDescriptor, dir string) (Model, error)
}

// RemoteEngine runs inference on an OpenAI-compatible embeddings server
// (text-embeddings-inference, infinity, vLLM). The server owns its weights,
// so by default nothing is downloaded locally.
type RemoteEngine struct {
	client openai.Client
	logger *zap.Logger
	shared bool
}

// RemoteOption configures a RemoteEngine.
type RemoteOption func(*RemoteEngine)

// WithSharedArtifacts makes the engine fill the artifact cache before the
// first request, for servers that load models from the same cache volume.
func WithSharedArtifacts() RemoteOption {
	return func(e *RemoteEngine) { e.shared = true }
}

// NewRemoteEngine creates an engine for the server at endpoint.
func NewRemoteEngine(endpoint, apiKey string, logger *zap.Logger, opts ...RemoteOption) *RemoteEngine {
	reqOpts := []option.RequestOption{
		option.WithBaseURL(endpoint),
		option.WithMaxRetries(0),
	}
	if apiKey != "" {
		reqOpts = append(reqOpts, option.WithAPIKey(apiKey))
	}
	e := &RemoteEngine{
		client: openai.NewClient(reqOpts...),
		logger: logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *RemoteEngine) Name() string { return "remote" }

func (e *RemoteEngine) NeedsArtifacts() bool { return e.shared }

func (e *RemoteEngine) Load(_ context.Context, d ModelDescriptor, dir string) (Model, error) {
	e.logger.Info("remote model ready",
		zap.String("model", d.Name),
		zap.String("artifacts", dir),
		zap.String("pooling", string(d.Pooling)),
	)
	return &remoteModel{client: e.client, desc: d}, nil
}

type remoteModel struct {
	client openai.Client
	desc   ModelDescriptor
}

func (m *remoteModel) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	resp, err := m.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model:          openai.EmbeddingModel(m.desc.Name),
		Input:          openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		EncodingFormat: openai.EmbeddingNewParamsEncodingFormatFloat,
	})
	if err != nil {
		return nil, fmt.Errorf("fastembed: remote embed: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("fastembed: remote returned %d embeddings for %d inputs", len(resp.Data), len(texts))
	}

	out := make([][]float32, len(texts))
	for _, item := range resp.Data {
		idx := int(item.Index)
		if idx < 0 || idx >= len(out) || out[idx] != nil {
			return nil, fmt.Errorf("fastembed: remote returned bad embedding index %d", idx)
		}
		vec := make([]float32, len(item.Embedding))
		for i, v := range item.Embedding {
			vec[i] = float32(v)
		}
		if m.desc.Normalize {
			normalize(vec)
		}
		out[idx] = vec
	}
	return out, nil
}

func normalize(vec []float32) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range vec {
		vec[i] *= inv
	}
}
