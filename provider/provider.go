package provider

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/sig-0/fxcache/types"
)

var (
	ErrUnknownSource        = errors.New("unknown rate source")
	ErrDuplicateSource      = errors.New("rate source already registered")
	ErrUnsuccessfulResponse = errors.New("unsuccessful rate response")

	errInvalidProvider = errors.New("invalid provider")
)

// Provider is a single remote exchange rate service
type Provider interface {
	// Source returns the identifier stored alongside the fetched rates
	Source() types.Source

	// SourceURL returns the human-facing URL the rates for the base come from
	SourceURL(base types.Currency) string

	// Fetch returns the target -> rate mapping for the given base, using
	// exactly one remote call. Targets the service does not quote are left out
	Fetch(ctx context.Context, base types.Currency, targets []types.Currency) (map[types.Currency]float64, error)
}

// Registry maps source identifiers to their providers
type Registry struct {
	providers map[types.Source]Provider
	mu        sync.RWMutex
}

// NewRegistry creates a registry holding the given providers
func NewRegistry(providers ...Provider) (*Registry, error) {
	r := &Registry{
		providers: make(map[types.Source]Provider, len(providers)),
	}

	for _, p := range providers {
		if err := r.Register(p); err != nil {
			return nil, err
		}
	}

	return r, nil
}

// Register adds a provider, keyed by its source
func (r *Registry) Register(p Provider) error {
	if p == nil || p.Source() == "" {
		return errInvalidProvider
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.providers[p.Source()]; ok {
		return ErrDuplicateSource
	}

	r.providers[p.Source()] = p

	return nil
}

// Get returns the provider registered for the source
func (r *Registry) Get(source types.Source) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[source]
	if !ok {
		return nil, ErrUnknownSource
	}

	return p, nil
}

// Sources lists the registered sources, sorted
func (r *Registry) Sources() []types.Source {
	r.mu.RLock()

	out := make([]types.Source, 0, len(r.providers))
	for src := range r.providers {
		out = append(out, src)
	}

	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i] < out[j]
	})

	return out
}
