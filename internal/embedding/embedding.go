package embedding

import (
	"context"
	"strings"
)

// Provider turns text into vectors of a fixed size.
type Provider interface {
	// EmbedDocuments embeds texts for storage. Output order matches input order.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	// EmbedQuery embeds a search query.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	// VectorSize is the length of every vector the provider returns.
	VectorSize() int
	// VectorName is the named vector slot the provider's vectors are stored under.
	VectorName() string
}

// Warmer is implemented by providers that can load their model ahead of the
// first call.
type Warmer interface {
	Warmup(ctx context.Context) error
}

// Kind selects a provider implementation.
type Kind string

const (
	KindFastEmbed       Kind = "fastembed"
	KindCustomFastEmbed Kind = "custom-fastembed"
	KindOpenAI          Kind = "openai"
	KindOllama          Kind = "ollama"
)

// DefaultCustomQueryPrefix is prepended to queries by the custom provider
// when no prefix is configured. It is the instruction format used by the
// e5 instruct family.
const DefaultCustomQueryPrefix = "Instruct: Given a query of a social media caption, find other social media captions that are most relevant. Query: "

// DefaultCustomVectorName is the vector name used by the custom provider.
const DefaultCustomVectorName = "text_dense"

// Config holds embedding provider configuration.
type Config struct {
	Kind        Kind   `mapstructure:"provider"`
	Model       string `mapstructure:"model"`
	RemoteModel string `mapstructure:"remote_model"` // custom only
	QueryPrefix string `mapstructure:"query_prefix"` // custom only
	CacheDir    string `mapstructure:"cache_dir"`
	Dimension   int    `mapstructure:"dimension"`
	VectorName  string `mapstructure:"vector_name"` // custom only
	Endpoint    string `mapstructure:"endpoint"`
	APIKey      string `mapstructure:"api_key"`
}

// knownDimensions maps a model's short name to its output size.
var knownDimensions = map[string]int{
	"multilingual-e5-large-instruct": 1024,
	"multilingual-e5-base":           768,
	"multilingual-e5-small":          384,
}

const fallbackDimension = 1024

// dimensionFor resolves the vector size of a custom model.
func dimensionFor(model string, override int) int {
	if override > 0 {
		return override
	}
	short := strings.ToLower(model[strings.LastIndex(model, "/")+1:])
	if dim, ok := knownDimensions[short]; ok {
		return dim
	}
	return fallbackDimension
}
