package embedding

import (
	"fmt"

	"github.com/nidhogg/mcp-server-qdrant/internal/errs"
	"github.com/nidhogg/mcp-server-qdrant/internal/fastembed"
)

// NewCustomProvider registers a Hugging Face model with the fastembed
// registry and creates a provider for it.
//
// Settings resolve as follows:
//   - remote id: RemoteModel, else Model verbatim
//   - query prefix: QueryPrefix, else DefaultCustomQueryPrefix
//   - dimension: Dimension, else the known size of Model, else 1024
//   - vector name: VectorName, else DefaultCustomVectorName
//
// Registering a model name that is already known keeps the existing
// descriptor and downloads nothing.
func NewCustomProvider(cfg Config, deps Deps) (Provider, error) {
	deps = deps.withDefaults()
	if deps.Registry == nil {
		return nil, fmt.Errorf("embedding: custom-fastembed needs a model registry")
	}
	if cfg.Model == "" {
		return nil, errs.New(errs.KindConfiguration, "custom-fastembed needs a model name")
	}

	d, err := deps.Registry.AddCustomModel(CustomDescriptor(cfg))
	if err != nil {
		return nil, errs.Wrap(err, errs.KindConfiguration, "embedding: register custom model", "model", cfg.Model)
	}

	prefix := cfg.QueryPrefix
	if prefix == "" {
		prefix = DefaultCustomQueryPrefix
	}
	vectorName := cfg.VectorName
	if vectorName == "" {
		vectorName = DefaultCustomVectorName
	}
	return newFastEmbedProvider(d, vectorName, prefix, cfg, deps)
}

// CustomDescriptor is the model descriptor the custom provider registers
// for cfg.
func CustomDescriptor(cfg Config) fastembed.ModelDescriptor {
	source := cfg.RemoteModel
	if source == "" {
		source = cfg.Model
	}
	return fastembed.ModelDescriptor{
		Name:            cfg.Model,
		Source:          source,
		Dim:             dimensionFor(cfg.Model, cfg.Dimension),
		Pooling:         fastembed.PoolingMean,
		Normalize:       true,
		ModelFile:       "onnx/model.onnx",
		AdditionalFiles: []string{"onnx/model.onnx_data"},
	}
}
