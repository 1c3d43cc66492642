package fastembed

// Catalog returns the pre-trained models available without registration.
func Catalog() []ModelDescriptor {
	return []ModelDescriptor{
		{
			Name:      "sentence-transformers/all-MiniLM-L6-v2",
			Source:    "qdrant/all-MiniLM-L6-v2-onnx",
			Dim:       384,
			Pooling:   PoolingMean,
			Normalize: true,
			ModelFile: "model.onnx",
		},
		{
			Name:      "BAAI/bge-small-en-v1.5",
			Source:    "qdrant/bge-small-en-v1.5-onnx-q",
			Dim:       384,
			Pooling:   PoolingCLS,
			Normalize: true,
			ModelFile: "model_optimized.onnx",
		},
		{
			Name:      "BAAI/bge-base-en-v1.5",
			Source:    "qdrant/bge-base-en-v1.5-onnx-q",
			Dim:       768,
			Pooling:   PoolingCLS,
			Normalize: true,
			ModelFile: "model_optimized.onnx",
		},
		{
			Name:      "nomic-ai/nomic-embed-text-v1.5",
			Source:    "nomic-ai/nomic-embed-text-v1.5",
			Dim:       768,
			Pooling:   PoolingMean,
			Normalize: true,
			ModelFile: "onnx/model.onnx",
		},
		{
			Name:            "intfloat/multilingual-e5-large",
			Source:          "qdrant/multilingual-e5-large-onnx",
			Dim:             1024,
			Pooling:         PoolingMean,
			Normalize:       true,
			ModelFile:       "model.onnx",
			AdditionalFiles: []string{"model.onnx_data"},
		},
	}
}
