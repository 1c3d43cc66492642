package fastembed

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRegistryHasCatalog(t *testing.T) {
	reg := NewRegistry(zap.NewNop())
	d, ok := reg.Lookup("sentence-transformers/all-MiniLM-L6-v2")
	require.True(t, ok)
	assert.Equal(t, 384, d.Dim)
	assert.Equal(t, "all-minilm-l6-v2", d.ShortName())

	_, ok = reg.Lookup("SENTENCE-TRANSFORMERS/ALL-MINILM-L6-V2")
	assert.True(t, ok, "lookup is case-insensitive")
	assert.Len(t, reg.List(), len(Catalog()))
}

func TestAddCustomModelIsIdempotent(t *testing.T) {
	reg := NewRegistry(zap.NewNop())
	first, err := reg.AddCustomModel(testDescriptor())
	require.NoError(t, err)

	again := testDescriptor()
	again.Dim = 16
	second, err := reg.AddCustomModel(again)
	require.NoError(t, err)
	assert.Equal(t, first, second, "re-registration returns the existing descriptor")

	got, ok := reg.Lookup(testDescriptor().Name)
	require.True(t, ok)
	assert.Equal(t, 8, got.Dim)
	assert.Len(t, reg.List(), len(Catalog())+1)
}

func TestAddCustomModelValidates(t *testing.T) {
	reg := NewRegistry(zap.NewNop())
	_, err := reg.AddCustomModel(ModelDescriptor{Name: "broken", Pooling: "max"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "source is required")
	assert.Contains(t, err.Error(), "dimension must be positive")
	assert.Contains(t, err.Error(), `unsupported pooling "max"`)

	_, ok := reg.Lookup("broken")
	assert.False(t, ok)
}

func TestRequiredFiles(t *testing.T) {
	d := testDescriptor()
	assert.Equal(t, []string{
		"config.json",
		"tokenizer.json",
		"tokenizer_config.json",
		"special_tokens_map.json",
		"onnx/model.onnx",
		"onnx/model.onnx_data",
	}, d.RequiredFiles())

	d.TokenizerFiles = []string{}
	assert.Equal(t, []string{"onnx/model.onnx", "onnx/model.onnx_data"}, d.RequiredFiles())
}
