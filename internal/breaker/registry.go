package breaker

import (
	"context"
	"sort"
	"sync"

	"github.com/rs/zerolog"
)

// Registry holds one breaker per operation name. It is built once at startup
// and passed to whatever needs it.
type Registry struct {
	cfg      Config
	log      zerolog.Logger
	observer StateObserver

	mu       sync.RWMutex
	breakers map[string]*Breaker
}

// Option customizes a Registry
type Option func(*Registry)

// WithObserver adds a state transition observer (for metrics)
func WithObserver(o StateObserver) Option {
	return func(r *Registry) {
		r.observer = o
	}
}

// NewRegistry creates an empty registry
func NewRegistry(cfg Config, log zerolog.Logger, opts ...Option) *Registry {
	r := &Registry{
		cfg:      cfg,
		log:      log,
		breakers: make(map[string]*Breaker),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Get returns the breaker for name, creating it on first use
func (r *Registry) Get(name string) *Breaker {
	r.mu.RLock()
	b, ok := r.breakers[name]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[name]; ok {
		return b
	}
	b = New(name, r.cfg, r.onStateChange)
	r.breakers[name] = b
	return b
}

// Execute runs fn through the named breaker
func (r *Registry) Execute(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	return r.Get(name).Execute(ctx, fn)
}

// Reset closes the named breaker. It reports false if no such breaker exists.
func (r *Registry) Reset(name string) bool {
	r.mu.RLock()
	b, ok := r.breakers[name]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	b.Reset()
	r.log.Info().Str("breaker", name).Msg("circuit breaker reset")
	return true
}

// ResetAll closes every breaker
func (r *Registry) ResetAll() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, b := range r.breakers {
		b.Reset()
	}
	r.log.Info().Int("count", len(r.breakers)).Msg("all circuit breakers reset")
}

// Snapshots returns every breaker's state sorted by name
func (r *Registry) Snapshots() []Snapshot {
	r.mu.RLock()
	out := make([]Snapshot, 0, len(r.breakers))
	for _, b := range r.breakers {
		out = append(out, b.Snapshot())
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (r *Registry) onStateChange(name, from, to string) {
	ev := r.log.Info()
	if to == StateOpen {
		ev = r.log.Warn()
	}
	ev.Str("breaker", name).Str("from", from).Str("to", to).Msg("circuit breaker state change")
	if r.observer != nil {
		r.observer(name, from, to)
	}
}
