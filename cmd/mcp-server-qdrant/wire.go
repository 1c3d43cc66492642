package main

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/nidhogg/mcp-server-qdrant/internal/config"
	"github.com/nidhogg/mcp-server-qdrant/internal/embedding"
	"github.com/nidhogg/mcp-server-qdrant/internal/errs"
	"github.com/nidhogg/mcp-server-qdrant/internal/fastembed"
	"github.com/nidhogg/mcp-server-qdrant/internal/toolserver"
	"github.com/nidhogg/mcp-server-qdrant/internal/vectorstore"
)

// startupTimeout bounds collection setup and model warmup.
const startupTimeout = 5 * time.Minute

// app holds the wired components of a running server.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	cache    *fastembed.Cache
	provider embedding.Provider
	store    *vectorstore.Store
	tools    *toolserver.Server
}

// newLogger writes to stderr so the stdio transport stays clean.
func newLogger(level zapcore.Level) (*zap.Logger, error) {
	zcfg := zap.NewDevelopmentConfig()
	zcfg.Level = zap.NewAtomicLevelAt(level)
	zcfg.OutputPaths = []string{"stderr"}
	zcfg.ErrorOutputPaths = []string{"stderr"}
	return zcfg.Build()
}

func newEngine(cfg *config.Config, logger *zap.Logger) fastembed.Engine {
	if cfg.Engine.Kind == config.EngineHash {
		logger.Warn("hash engine selected; vectors are not semantic")
		return fastembed.HashEngine{}
	}
	var opts []fastembed.RemoteOption
	if cfg.Engine.SharedCache {
		opts = append(opts, fastembed.WithSharedArtifacts())
	}
	return fastembed.NewRemoteEngine(cfg.Embedding.Endpoint, cfg.Embedding.APIKey, logger, opts...)
}

func newCache(cfg *config.Config, logger *zap.Logger) *fastembed.Cache {
	hub := fastembed.NewHub(cfg.Engine.HubEndpoint, cfg.Engine.HubToken)
	return fastembed.NewCache(cfg.Embedding.CacheDir, hub, logger)
}

func newBackend(cfg *config.Config, logger *zap.Logger) (vectorstore.Backend, error) {
	q := cfg.Qdrant
	switch {
	case q.URL != "":
		b, err := vectorstore.NewQdrantBackend(vectorstore.QdrantConfig{URL: q.URL, APIKey: q.APIKey}, logger)
		if err != nil {
			return nil, errs.Wrap(err, errs.KindConfiguration, "qdrant backend")
		}
		return b, nil
	case q.InMemory():
		logger.Info("in-memory backend; entries are lost on exit")
		return vectorstore.NewMemoryBackend(), nil
	default:
		b, err := vectorstore.NewSQLiteBackend(q.LocalPath, logger)
		if err != nil {
			return nil, errs.Wrap(err, errs.KindStorageUnavailable, "local backend")
		}
		return b, nil
	}
}

// build wires every component. Fatal errors stop startup before serving.
func build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	cache := newCache(cfg, logger)
	factory := embedding.NewFactory(embedding.Deps{
		Registry: fastembed.NewRegistry(logger),
		Cache:    cache,
		Engine:   newEngine(cfg, logger),
		Logger:   logger,
	})
	provider, err := factory.Create(cfg.Embedding)
	if err != nil {
		return nil, err
	}

	indexes, err := cfg.Qdrant.Indexes()
	if err != nil {
		return nil, errs.Wrap(err, errs.KindConfiguration, "field indexes")
	}
	backend, err := newBackend(cfg, logger)
	if err != nil {
		return nil, err
	}
	store := vectorstore.NewStore(backend, cfg.Qdrant.Collection,
		vectorstore.CollectionSchema{VectorName: provider.VectorName(), Size: provider.VectorSize()},
		logger,
		vectorstore.WithReadOnly(cfg.Qdrant.ReadOnly),
		vectorstore.WithFieldIndexes(indexes),
	)

	setupCtx, cancel := context.WithTimeout(ctx, startupTimeout)
	defer cancel()
	if err := store.EnsureCollection(setupCtx); err != nil {
		if errs.IsFatal(err) {
			return nil, errors.Join(err, store.Close())
		}
		// The store retries on the first call.
		logger.Warn("collection setup deferred", zap.Error(err))
	}

	if w, ok := provider.(embedding.Warmer); ok {
		if err := w.Warmup(setupCtx); err != nil {
			logger.Warn("model warmup failed; the first call will retry", zap.Error(err))
		}
	}

	return &app{
		cfg:      cfg,
		logger:   logger,
		cache:    cache,
		provider: provider,
		store:    store,
		tools:    toolserver.New(provider, store, cfg.ToolOptions(), logger),
	}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}
