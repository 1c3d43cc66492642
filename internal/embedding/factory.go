package embedding

import (
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/nidhogg/mcp-server-qdrant/internal/errs"
	"github.com/nidhogg/mcp-server-qdrant/internal/fastembed"
)

// Deps are the shared runtime pieces handed to every constructor.
type Deps struct {
	Registry *fastembed.Registry
	Cache    *fastembed.Cache
	Engine   fastembed.Engine
	Logger   *zap.Logger
}

func (d Deps) withDefaults() Deps {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Engine == nil {
		d.Engine = fastembed.HashEngine{}
	}
	return d
}

// Constructor builds a Provider of one kind.
type Constructor func(cfg Config, deps Deps) (Provider, error)

// Factory maps provider kinds to constructors.
type Factory struct {
	mu    sync.RWMutex
	kinds map[Kind]Constructor
	deps  Deps
}

// NewFactory returns a factory with every built-in kind registered.
func NewFactory(deps Deps) *Factory {
	f := &Factory{kinds: make(map[Kind]Constructor), deps: deps.withDefaults()}
	f.Register(KindFastEmbed, NewFastEmbedProvider)
	f.Register(KindCustomFastEmbed, NewCustomProvider)
	f.Register(KindOpenAI, NewOpenAIProvider)
	f.Register(KindOllama, NewOllamaProvider)
	return f
}

// Register adds or replaces the constructor for kind.
func (f *Factory) Register(kind Kind, c Constructor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.kinds[kind] = c
}

// Kinds lists the registered kinds.
func (f *Factory) Kinds() []Kind {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]Kind, 0, len(f.kinds))
	for k := range f.kinds {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// Create builds the provider selected by cfg.Kind.
func (f *Factory) Create(cfg Config) (Provider, error) {
	f.mu.RLock()
	c, ok := f.kinds[cfg.Kind]
	f.mu.RUnlock()
	if !ok {
		return nil, errs.New(errs.KindUnknownProviderKind, "unknown embedding provider kind",
			"kind", string(cfg.Kind), "supported", f.Kinds())
	}
	p, err := c(cfg, f.deps)
	if err != nil {
		return nil, errs.Wrap(err, errs.KindConfiguration, "embedding: create "+string(cfg.Kind)+" provider")
	}
	f.deps.Logger.Info("embedding provider ready",
		zap.String("kind", string(cfg.Kind)),
		zap.String("model", cfg.Model),
		zap.Int("dim", p.VectorSize()),
		zap.String("vector", p.VectorName()),
	)
	return p, nil
}
