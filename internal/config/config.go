// Package config loads the server configuration from the environment and an
// optional config file.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"

	"github.com/nidhogg/mcp-server-qdrant/internal/embedding"
	"github.com/nidhogg/mcp-server-qdrant/internal/errs"
	"github.com/nidhogg/mcp-server-qdrant/internal/fastembed"
	"github.com/nidhogg/mcp-server-qdrant/internal/toolserver"
	"github.com/nidhogg/mcp-server-qdrant/internal/vectorstore"
)

const (
	TransportStdio = "stdio"
	TransportHTTP  = "streamable-http"

	EngineRemote = "remote"
	EngineHash   = "hash"

	// MemoryPath selects the in-process backend that keeps nothing on disk.
	MemoryPath = ":memory:"
)

// Config is the top-level configuration.
type Config struct {
	Qdrant    QdrantConfig     `mapstructure:"qdrant"`
	Embedding embedding.Config `mapstructure:"embedding"`
	Engine    EngineConfig     `mapstructure:"engine"`
	Tools     ToolsConfig      `mapstructure:"tools"`
	Server    ServerConfig     `mapstructure:"server"`
}

// QdrantConfig selects and tunes the vector store.
type QdrantConfig struct {
	URL            string `mapstructure:"url"`
	APIKey         string `mapstructure:"api_key"`
	LocalPath      string `mapstructure:"local_path"`
	Collection     string `mapstructure:"collection_name"`
	SearchLimit    int    `mapstructure:"search_limit"`
	SearchMaxLimit int    `mapstructure:"search_max_limit"`
	ReadOnly       bool   `mapstructure:"read_only"`
	// FieldIndexes is a comma separated list of field:type pairs.
	FieldIndexes string `mapstructure:"field_indexes"`
}

// EngineConfig picks the inference engine behind the fastembed providers and
// the hub the model artifacts come from.
type EngineConfig struct {
	Kind        string `mapstructure:"kind"`
	HubEndpoint string `mapstructure:"hub_endpoint"`
	HubToken    string `mapstructure:"hub_token"`
	// SharedCache fills MODEL_CACHE_DIR before remote inference, for servers
	// that mount the same volume.
	SharedCache bool   `mapstructure:"shared_cache"`
}

type ToolsConfig struct {
	StoreDescription string        `mapstructure:"store_description"`
	FindDescription  string        `mapstructure:"find_description"`
	Timeout          time.Duration `mapstructure:"timeout"`
}

type ServerConfig struct {
	Transport string `mapstructure:"transport"`
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	LogLevel  string `mapstructure:"log_level"`
}

// envKeys maps config keys to the environment variables that set them.
var envKeys = map[string]string{
	"qdrant.url":              "QDRANT_URL",
	"qdrant.api_key":          "QDRANT_API_KEY",
	"qdrant.local_path":       "QDRANT_LOCAL_PATH",
	"qdrant.collection_name":  "COLLECTION_NAME",
	"qdrant.search_limit":     "QDRANT_SEARCH_LIMIT",
	"qdrant.search_max_limit": "QDRANT_SEARCH_MAX_LIMIT",
	"qdrant.read_only":        "QDRANT_READ_ONLY",
	"qdrant.field_indexes":    "QDRANT_FIELD_INDEXES",

	"embedding.provider":     "EMBEDDING_PROVIDER",
	"embedding.model":        "EMBEDDING_MODEL",
	"embedding.remote_model": "CUSTOM_HF_MODEL_ID",
	"embedding.query_prefix": "CUSTOM_QUERY_PREFIX",
	"embedding.dimension":    "CUSTOM_VECTOR_DIMENSION",
	"embedding.vector_name":  "QDRANT_VECTOR_NAME",
	"embedding.cache_dir":    "MODEL_CACHE_DIR",
	"embedding.endpoint":     "EMBEDDING_ENDPOINT",
	"embedding.api_key":      "EMBEDDING_API_KEY",

	"engine.kind":         "EMBEDDING_ENGINE",
	"engine.hub_endpoint": "HF_ENDPOINT",
	"engine.hub_token":    "HF_TOKEN",
	"engine.shared_cache": "EMBEDDING_SHARED_CACHE",

	"tools.store_description": "TOOL_STORE_DESCRIPTION",
	"tools.find_description":  "TOOL_FIND_DESCRIPTION",
	"tools.timeout":           "TOOL_TIMEOUT",

	"server.transport": "MCP_TRANSPORT",
	"server.host":      "FASTMCP_HOST",
	"server.port":      "FASTMCP_PORT",
	"server.log_level": "LOG_LEVEL",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("qdrant.search_limit", toolserver.DefaultSearchLimit)
	v.SetDefault("qdrant.search_max_limit", 0)
	v.SetDefault("qdrant.read_only", false)

	v.SetDefault("embedding.provider", string(embedding.KindFastEmbed))
	v.SetDefault("embedding.model", "sentence-transformers/all-MiniLM-L6-v2")
	v.SetDefault("embedding.dimension", 0)
	v.SetDefault("embedding.cache_dir", "/mnt/mcp_model")

	v.SetDefault("engine.kind", EngineRemote)
	v.SetDefault("engine.hub_endpoint", fastembed.DefaultHubEndpoint)
	v.SetDefault("engine.shared_cache", false)

	v.SetDefault("tools.timeout", toolserver.DefaultTimeout)

	v.SetDefault("server.transport", TransportStdio)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
}

// Load reads configuration from the environment, with the file at path (if
// any) underneath. The environment wins over the file.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	for key, env := range envKeys {
		if err := v.BindEnv(key, env); err != nil {
			return nil, errs.Wrap(err, errs.KindConfiguration, "binding "+env)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errs.Wrap(err, errs.KindConfiguration, "reading config "+path)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errs.Wrap(err, errs.KindConfiguration, "unmarshalling config")
	}

	if problems := cfg.Validate(); len(problems) > 0 {
		return nil, errs.Wrap(errors.Join(problems...), errs.KindConfiguration, "validating config")
	}
	return &cfg, nil
}

// Validate checks the configuration for logical errors. It collects every
// problem instead of stopping at the first one.
func (c *Config) Validate() []error {
	var problems []error
	problems = append(problems, c.validateQdrant()...)
	problems = append(problems, c.validateEngine()...)
	problems = append(problems, c.validateServer()...)
	if c.Tools.Timeout <= 0 {
		problems = append(problems, fmt.Errorf("tools.timeout: must be positive, got %s", c.Tools.Timeout))
	}
	return problems
}

func (c *Config) validateQdrant() []error {
	var problems []error
	q := c.Qdrant
	switch {
	case q.URL != "" && q.LocalPath != "":
		problems = append(problems, errors.New("qdrant: QDRANT_URL and QDRANT_LOCAL_PATH are mutually exclusive"))
	case q.URL == "" && q.LocalPath == "":
		problems = append(problems, errors.New("qdrant: one of QDRANT_URL or QDRANT_LOCAL_PATH is required"))
	case q.URL != "":
		if u, err := url.Parse(q.URL); err != nil || u.Host == "" {
			problems = append(problems, fmt.Errorf("qdrant.url: %q is not a valid url", q.URL))
		}
		if q.APIKey == "" {
			problems = append(problems, errors.New("qdrant.api_key: required with QDRANT_URL"))
		}
	}
	if strings.TrimSpace(q.Collection) == "" {
		problems = append(problems, errors.New("qdrant.collection_name: COLLECTION_NAME is required"))
	}
	if q.SearchLimit <= 0 {
		problems = append(problems, fmt.Errorf("qdrant.search_limit: must be positive, got %d", q.SearchLimit))
	}
	if q.SearchMaxLimit < 0 {
		problems = append(problems, fmt.Errorf("qdrant.search_max_limit: must not be negative, got %d", q.SearchMaxLimit))
	}
	if _, err := q.Indexes(); err != nil {
		problems = append(problems, fmt.Errorf("qdrant.field_indexes: %v", err))
	}
	return problems
}

func (c *Config) validateEngine() []error {
	var problems []error
	switch c.Engine.Kind {
	case EngineRemote:
		kind := c.Embedding.Kind
		if (kind == embedding.KindFastEmbed || kind == embedding.KindCustomFastEmbed) && c.Embedding.Endpoint == "" {
			problems = append(problems, errors.New("engine: EMBEDDING_ENDPOINT is required by the remote engine"))
		}
	case EngineHash:
	default:
		problems = append(problems, fmt.Errorf("engine.kind: must be %q or %q, got %q", EngineRemote, EngineHash, c.Engine.Kind))
	}
	return problems
}

func (c *Config) validateServer() []error {
	var problems []error
	s := c.Server
	switch s.Transport {
	case TransportStdio, TransportHTTP:
	default:
		problems = append(problems, fmt.Errorf("server.transport: must be %q or %q, got %q", TransportStdio, TransportHTTP, s.Transport))
	}
	if s.Transport == TransportHTTP && (s.Port < 1 || s.Port > 65535) {
		problems = append(problems, fmt.Errorf("server.port: must be between 1 and 65535, got %d", s.Port))
	}
	if _, err := zapcore.ParseLevel(s.LogLevel); err != nil {
		problems = append(problems, fmt.Errorf("server.log_level: %v", err))
	}
	return problems
}

// Indexes parses FieldIndexes. An empty list yields no indexes.
func (q QdrantConfig) Indexes() ([]vectorstore.FieldIndex, error) {
	if strings.TrimSpace(q.FieldIndexes) == "" {
		return nil, nil
	}
	var out []vectorstore.FieldIndex
	for _, pair := range strings.Split(q.FieldIndexes, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		field, kindName, ok := strings.Cut(pair, ":")
		if !ok {
			return nil, fmt.Errorf("%q: want field:type", pair)
		}
		field = strings.TrimSpace(field)
		if !vectorstore.ValidFieldName(field) {
			return nil, fmt.Errorf("%q: invalid field name", field)
		}
		kind, err := vectorstore.ParseIndexKind(kindName)
		if err != nil {
			return nil, fmt.Errorf("%q: %v", field, err)
		}
		out = append(out, vectorstore.FieldIndex{Field: field, Kind: kind})
	}
	return out, nil
}

// Level returns the zap level. Invalid levels fall back to info.
func (s ServerConfig) Level() zapcore.Level {
	lvl, err := zapcore.ParseLevel(s.LogLevel)
	if err != nil {
		return zapcore.InfoLevel
	}
	return lvl
}

// Addr is the HTTP listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// ToolOptions converts the tool settings for toolserver.New.
func (c *Config) ToolOptions() toolserver.Options {
	return toolserver.Options{
		DefaultLimit:     c.Qdrant.SearchLimit,
		MaxLimit:         c.Qdrant.SearchMaxLimit,
		Timeout:          c.Tools.Timeout,
		StoreDescription: c.Tools.StoreDescription,
		FindDescription:  c.Tools.FindDescription,
	}
}

// InMemory reports whether the embedded backend should keep nothing on disk.
func (q QdrantConfig) InMemory() bool {
	return q.LocalPath == MemoryPath
}
