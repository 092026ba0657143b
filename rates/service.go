package rates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/sig-0/fxcache/cache"
	"github.com/sig-0/fxcache/metrics"
	"github.com/sig-0/fxcache/provider"
	"github.com/sig-0/fxcache/storage"
	"github.com/sig-0/fxcache/types"
)

// DefaultTTL is how long a fetched rate is considered current
const DefaultTTL = 40 * time.Minute

var (
	ErrProviderFetch = errors.New("unable to fetch rates")
	ErrMissingRate   = errors.New("missing rate")
)

// Service answers rate requests out of the store,
// refreshing it from the source's provider when needed
type Service struct {
	store     *cache.Store
	providers *provider.Registry
	storage   storage.Storage

	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	// in-flight refreshes, keyed by base, source and target list
	inflight singleflight.Group

	// serializes snapshot + write, so the last write holds the newest snapshot
	persistMu sync.Mutex

	ttl time.Duration
}

// New creates a new rate service
func New(
	store *cache.Store,
	providers *provider.Registry,
	storage storage.Storage,
	opts ...Option,
) *Service {
	s := &Service{
		store:     store,
		providers: providers,
		storage:   storage,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:       time.Now,
		ttl:       DefaultTTL,
	}

	// Apply the options
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// TTL returns the staleness window of the service
func (s *Service) TTL() time.Duration {
	return s.ttl
}

// RatesFor returns the rates from base to every target, in target order.
// If any target is stale or missing, the whole target list is refetched
// with a single provider call. Stale data is never returned
func (s *Service) RatesFor(
	ctx context.Context,
	base types.Currency,
	source types.Source,
	targets []types.Currency,
) (types.Rates, error) {
	p, err := s.providers.Get(source)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", err, source)
	}

	now := s.now()

	if s.anyStale(base, source, targets, now) {
		s.metrics.CacheRefresh(source)

		if err := s.refresh(ctx, p, base, targets); err != nil {
			return nil, err
		}
	} else {
		s.metrics.CacheHit(source)
	}

	return s.collect(base, source, targets, now)
}

// CurrentRates returns the cached rates from base to the targets, without
// any remote call. Targets with no entry are left out
func (s *Service) CurrentRates(
	base types.Currency,
	source types.Source,
	targets []types.Currency,
) types.Rates {
	out := make(types.Rates, 0, len(targets))
	seen := make(map[types.Currency]struct{}, len(targets))

	for _, target := range targets {
		if _, ok := seen[target]; ok {
			continue
		}

		seen[target] = struct{}{}

		e, ok := s.store.Get(types.Key{Base: base, Target: target, Source: source})
		if !ok {
			continue
		}

		out = append(out, types.Rate{Currency: target, Rate: e.Rate})
	}

	return out
}

// EarliestFetch returns the earliest fetch time of the source's unexpired cached rates
func (s *Service) EarliestFetch(source types.Source) (time.Time, bool) {
	return s.store.EarliestFetch(source, s.now(), s.ttl)
}

// SourceURL returns the human-facing URL of the source's rates for the base
func (s *Service) SourceURL(source types.Source, base types.Currency) (string, error) {
	p, err := s.providers.Get(source)
	if err != nil {
		return "", fmt.Errorf("%w: %s", err, source)
	}

	return p.SourceURL(base), nil
}

// Prune drops expired entries and persists the store if anything changed.
// It returns the earliest fetch time of the remaining entries
func (s *Service) Prune(ctx context.Context) time.Time {
	before := s.store.Len()
	earliest := s.store.Prune(s.now(), s.ttl)
	after := s.store.Len()

	s.metrics.StoreEntries(after)

	if after != before {
		s.logger.Debug(
			"pruned expired rates",
			"removed", before-after,
			"remaining", after,
		)

		s.persist(ctx)
	}

	return earliest
}

// Load restores the persisted store, then prunes it.
// Storage failures are logged, and the service keeps running on an empty store
func (s *Service) Load(ctx context.Context) {
	items, err := s.storage.Get(ctx, storage.NamespaceLocal, storage.KeyExchangeRates)
	if err != nil {
		s.logger.Error(
			"unable to load persisted rates",
			"err", err,
		)

		return
	}

	raw, ok := items[storage.KeyExchangeRates]
	if !ok {
		return
	}

	var records []types.Record
	if err := json.Unmarshal(raw, &records); err != nil {
		s.logger.Error(
			"unable to parse persisted rates",
			"err", err,
		)

		return
	}

	s.store.Load(records)
	s.store.Prune(s.now(), s.ttl)
	s.metrics.StoreEntries(s.store.Len())

	s.logger.Info(
		"loaded persisted rates",
		"entries", s.store.Len(),
	)
}

// anyStale checks whether any of the targets needs a refresh
func (s *Service) anyStale(
	base types.Currency,
	source types.Source,
	targets []types.Currency,
	now time.Time,
) bool {
	for _, target := range targets {
		if s.store.IsStale(types.Key{Base: base, Target: target, Source: source}, now, s.ttl) {
			return true
		}
	}

	return false
}

// refresh fetches the full target list and writes every returned rate.
// Overlapping refreshes for the same request share a single fetch
func (s *Service) refresh(
	ctx context.Context,
	p provider.Provider,
	base types.Currency,
	targets []types.Currency,
) error {
	source := p.Source()

	_, err, _ := s.inflight.Do(inflightKey(base, source, targets), func() (any, error) {
		// The fetch is shared, so no single caller may cancel it
		fetchCtx := context.WithoutCancel(ctx)

		s.store.Prune(s.now(), s.ttl)

		start := time.Now()
		fetched, err := p.Fetch(fetchCtx, base, targets)
		s.metrics.Fetch(source, time.Since(start), err)

		if err != nil {
			s.logger.Error(
				"unable to fetch rates",
				"source", source.String(),
				"base", base.String(),
				"err", err,
			)

			return nil, fmt.Errorf("%w from %s: %w", ErrProviderFetch, source, err)
		}

		fetchedAt := s.now()

		for _, target := range targets {
			rate, ok := fetched[target]
			if !ok {
				continue
			}

			s.store.Put(types.Key{Base: base, Target: target, Source: source}, rate, fetchedAt)
		}

		s.metrics.StoreEntries(s.store.Len())

		s.logger.Info(
			"fetched rates",
			"source", source.String(),
			"base", base.String(),
			"count", len(fetched),
		)

		s.persist(fetchCtx)

		return nil, nil //nolint:nilnil // nothing to share beyond the error
	})

	return err
}

// collect assembles the ordered result, failing if any target has no fresh entry
func (s *Service) collect(
	base types.Currency,
	source types.Source,
	targets []types.Currency,
	now time.Time,
) (types.Rates, error) {
	var (
		out     = make(types.Rates, 0, len(targets))
		seen    = make(map[types.Currency]struct{}, len(targets))
		missing []string
	)

	for _, target := range targets {
		if _, ok := seen[target]; ok {
			continue
		}

		seen[target] = struct{}{}

		key := types.Key{Base: base, Target: target, Source: source}

		e, ok := s.store.Get(key)
		if !ok || s.store.IsStale(key, now, s.ttl) {
			missing = append(missing, target.String())

			continue
		}

		out = append(out, types.Rate{Currency: target, Rate: e.Rate})
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf(
			"%w: %s -> %s from %s",
			ErrMissingRate,
			base,
			strings.Join(missing, ","),
			source,
		)
	}

	return out, nil
}

// persist writes the store to the local namespace. Failures are only logged
func (s *Service) persist(ctx context.Context) {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	raw, err := json.Marshal(s.store.Snapshot())
	if err != nil {
		s.logger.Error(
			"unable to encode rates",
			"err", err,
		)

		return
	}

	if err := s.storage.Set(
		ctx,
		storage.NamespaceLocal,
		map[string][]byte{storage.KeyExchangeRates: raw},
	); err != nil {
		s.logger.Error(
			"unable to persist rates",
			"err", err,
		)
	}
}

func inflightKey(base types.Currency, source types.Source, targets []types.Currency) string {
	var b strings.Builder

	b.WriteString(source.String())
	b.WriteByte('|')
	b.WriteString(base.String())

	for _, target := range targets {
		b.WriteByte('|')
		b.WriteString(target.String())
	}

	return b.String()
}
