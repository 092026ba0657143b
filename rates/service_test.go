package rates

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sig-0/fxcache/cache"
	"github.com/sig-0/fxcache/provider"
	"github.com/sig-0/fxcache/storage"
	"github.com/sig-0/fxcache/storage/memory"
	"github.com/sig-0/fxcache/storage/mock"
	"github.com/sig-0/fxcache/types"
)

const testSource types.Source = "exchangerate_api"

var t0 = time.Date(2026, time.January, 10, 12, 0, 0, 0, time.UTC)

// hkdTable is the provider side rate table for an hkd base
var hkdTable = map[types.Currency]float64{
	"usd": 0.128,
	"jpy": 19.1,
	"cny": 0.92,
	"eur": 0.118,
}

// countingProvider serves hkdTable and records every call
type countingProvider struct {
	*mockProvider

	calls     atomic.Int32
	lastMu    sync.Mutex
	lastAsked []types.Currency
}

func newCountingProvider() *countingProvider {
	p := &countingProvider{}

	p.mockProvider = &mockProvider{
		source: testSource,
		fetchFn: func(_ context.Context, _ types.Currency, targets []types.Currency) (map[types.Currency]float64, error) {
			p.calls.Add(1)

			p.lastMu.Lock()
			p.lastAsked = append([]types.Currency(nil), targets...)
			p.lastMu.Unlock()

			out := make(map[types.Currency]float64, len(targets))

			for _, target := range targets {
				if rate, ok := hkdTable[target]; ok {
					out[target] = rate
				}
			}

			return out, nil
		},
	}

	return p
}

func (p *countingProvider) asked() []types.Currency {
	p.lastMu.Lock()
	defer p.lastMu.Unlock()

	return p.lastAsked
}

func newTestService(
	t *testing.T,
	p provider.Provider,
	st storage.Storage,
	clock *testClock,
	ttl time.Duration,
) (*Service, *cache.Store) {
	t.Helper()

	registry, err := provider.NewRegistry(p)
	require.NoError(t, err)

	store := cache.NewStore()

	return New(
		store,
		registry,
		st,
		WithClock(clock.Now),
		WithTTL(ttl),
	), store
}

func TestService_New(t *testing.T) {
	t.Parallel()

	registry, err := provider.NewRegistry()
	require.NoError(t, err)

	s := New(cache.NewStore(), registry, memory.NewStorage())

	assert.Equal(t, DefaultTTL, s.TTL())
	assert.NotNil(t, s.logger)
	assert.NotNil(t, s.now)
}

func TestService_RatesFor(t *testing.T) {
	t.Parallel()

	t.Run("unknown source", func(t *testing.T) {
		t.Parallel()

		s, _ := newTestService(t, newCountingProvider(), memory.NewStorage(), newTestClock(t0), time.Minute)

		_, err := s.RatesFor(context.Background(), "hkd", "other", []types.Currency{"usd"})
		assert.ErrorIs(t, err, provider.ErrUnknownSource)
	})

	t.Run("single fetch for the full target list", func(t *testing.T) {
		t.Parallel()

		var (
			p        = newCountingProvider()
			clock    = newTestClock(t0)
			s, store = newTestService(t, p, memory.NewStorage(), clock, time.Minute)
			targets  = []types.Currency{"usd", "jpy", "cny"}
		)

		// Only usd is fresh, the rest is missing
		store.Put(types.Key{Base: "hkd", Target: "usd", Source: testSource}, 0.127, t0)

		rates, err := s.RatesFor(context.Background(), "hkd", testSource, targets)
		require.NoError(t, err)

		assert.Equal(t, int32(1), p.calls.Load())
		assert.Equal(t, targets, p.asked())

		// The refetched usd rate replaces the old one
		assert.Equal(t, types.Rates{
			{Currency: "usd", Rate: 0.128},
			{Currency: "jpy", Rate: 19.1},
			{Currency: "cny", Rate: 0.92},
		}, rates)
	})

	t.Run("order follows the target list", func(t *testing.T) {
		t.Parallel()

		var (
			p    = newCountingProvider()
			s, _ = newTestService(t, p, memory.NewStorage(), newTestClock(t0), time.Minute)
		)

		rates, err := s.RatesFor(context.Background(), "hkd", testSource, []types.Currency{"jpy", "eur", "usd", "jpy"})
		require.NoError(t, err)

		assert.Equal(t, []types.Currency{"jpy", "eur", "usd"}, rates.Currencies())
	})

	t.Run("cache hit skips the provider", func(t *testing.T) {
		t.Parallel()

		var (
			p       = newCountingProvider()
			clock   = newTestClock(t0)
			s, _    = newTestService(t, p, memory.NewStorage(), clock, time.Minute)
			targets = []types.Currency{"usd", "jpy"}
		)

		first, err := s.RatesFor(context.Background(), "hkd", testSource, targets)
		require.NoError(t, err)

		clock.Set(t0.Add(30 * time.Second))

		second, err := s.RatesFor(context.Background(), "hkd", testSource, targets)
		require.NoError(t, err)

		assert.Equal(t, first, second)
		assert.Equal(t, int32(1), p.calls.Load())
	})

	t.Run("provider failure returns an error", func(t *testing.T) {
		t.Parallel()

		var (
			p = &mockProvider{
				source: testSource,
				fetchFn: func(context.Context, types.Currency, []types.Currency) (map[types.Currency]float64, error) {
					return nil, errors.New("network down")
				},
			}
			clock    = newTestClock(t0)
			s, store = newTestService(t, p, memory.NewStorage(), clock, time.Minute)
			key      = types.Key{Base: "hkd", Target: "usd", Source: testSource}
		)

		store.Put(key, 0.127, t0.Add(-2*time.Minute))

		_, err := s.RatesFor(context.Background(), "hkd", testSource, []types.Currency{"usd"})
		assert.ErrorIs(t, err, ErrProviderFetch)
		assert.ErrorContains(t, err, "network down")

		// The pre-fetch prune is the only thing allowed to drop the stale entry
		_, ok := store.Get(key)
		assert.False(t, ok)
	})

	t.Run("provider failure keeps fresh entries", func(t *testing.T) {
		t.Parallel()

		var (
			p = &mockProvider{
				source: testSource,
				fetchFn: func(context.Context, types.Currency, []types.Currency) (map[types.Currency]float64, error) {
					return nil, errors.New("network down")
				},
			}
			s, store = newTestService(t, p, memory.NewStorage(), newTestClock(t0), time.Minute)
			key      = types.Key{Base: "hkd", Target: "usd", Source: testSource}
		)

		store.Put(key, 0.127, t0)

		_, err := s.RatesFor(context.Background(), "hkd", testSource, []types.Currency{"usd", "jpy"})
		assert.ErrorIs(t, err, ErrProviderFetch)

		e, ok := store.Get(key)
		require.True(t, ok)
		assert.Equal(t, 0.127, e.Rate)
		assert.Equal(t, t0, e.FetchedAt)
	})

	t.Run("omitted target fails the request", func(t *testing.T) {
		t.Parallel()

		var (
			p    = newCountingProvider()
			s, _ = newTestService(t, p, memory.NewStorage(), newTestClock(t0), time.Minute)
		)

		rates, err := s.RatesFor(context.Background(), "hkd", testSource, []types.Currency{"usd", "xau"})

		assert.Nil(t, rates)
		assert.ErrorIs(t, err, ErrMissingRate)
		assert.ErrorContains(t, err, "xau")
	})

	t.Run("fresh entries survive a partial fetch", func(t *testing.T) {
		t.Parallel()

		var (
			p        = newCountingProvider()
			s, store = newTestService(t, p, memory.NewStorage(), newTestClock(t0), time.Minute)
		)

		// The provider does not quote xau, but a fresh entry exists
		store.Put(types.Key{Base: "hkd", Target: "xau", Source: testSource}, 0.00005, t0)

		rates, err := s.RatesFor(context.Background(), "hkd", testSource, []types.Currency{"usd", "xau"})
		require.NoError(t, err)

		rate, ok := rates.Get("xau")
		require.True(t, ok)
		assert.Equal(t, 0.00005, rate)
	})

	t.Run("new base triggers a fetch", func(t *testing.T) {
		t.Parallel()

		var (
			p        = newCountingProvider()
			s, store = newTestService(t, p, memory.NewStorage(), newTestClock(t0), time.Minute)
		)

		store.Put(types.Key{Base: "hkd", Target: "jpy", Source: testSource}, 19.1, t0)

		_, err := s.RatesFor(context.Background(), "usd", testSource, []types.Currency{"jpy"})
		require.NoError(t, err)

		assert.Equal(t, int32(1), p.calls.Load())

		_, ok := store.Get(types.Key{Base: "usd", Target: "jpy", Source: testSource})
		assert.True(t, ok)
	})

	t.Run("successful fetch is persisted", func(t *testing.T) {
		t.Parallel()

		var (
			saved   []byte
			savedNS storage.Namespace

			st = &mock.Storage{
				SetFn: func(_ context.Context, ns storage.Namespace, items map[string][]byte) error {
					savedNS = ns
					saved = items[storage.KeyExchangeRates]

					return nil
				},
			}
			s, _ = newTestService(t, newCountingProvider(), st, newTestClock(t0), time.Minute)
		)

		_, err := s.RatesFor(context.Background(), "hkd", testSource, []types.Currency{"usd"})
		require.NoError(t, err)

		assert.Equal(t, storage.NamespaceLocal, savedNS)

		var records []types.Record
		require.NoError(t, json.Unmarshal(saved, &records))

		require.Len(t, records, 1)
		assert.Equal(t, types.Currency("usd"), records[0].Target)
		assert.Equal(t, t0, records[0].FetchedAt)
	})

	t.Run("persist failure does not fail the request", func(t *testing.T) {
		t.Parallel()

		var (
			st = &mock.Storage{
				SetFn: func(context.Context, storage.Namespace, map[string][]byte) error {
					return errors.New("quota exceeded")
				},
			}
			s, _ = newTestService(t, newCountingProvider(), st, newTestClock(t0), time.Minute)
		)

		rates, err := s.RatesFor(context.Background(), "hkd", testSource, []types.Currency{"usd"})
		require.NoError(t, err)
		assert.Len(t, rates, 1)
	})

	t.Run("overlapping refreshes share one fetch", func(t *testing.T) {
		t.Parallel()

		var (
			calls   atomic.Int32
			release = make(chan struct{})
			entered = make(chan struct{}, 1)

			p = &mockProvider{
				source: testSource,
				fetchFn: func(context.Context, types.Currency, []types.Currency) (map[types.Currency]float64, error) {
					calls.Add(1)

					entered <- struct{}{}
					<-release

					return map[types.Currency]float64{"usd": 0.128}, nil
				},
			}
			s, _ = newTestService(t, p, memory.NewStorage(), newTestClock(t0), time.Minute)

			wg   sync.WaitGroup
			errs = make(chan error, 2)
		)

		call := func() {
			defer wg.Done()

			_, err := s.RatesFor(context.Background(), "hkd", testSource, []types.Currency{"usd"})
			errs <- err
		}

		wg.Add(1)

		go call()

		// Wait for the first fetch to be in flight
		<-entered

		wg.Add(1)

		go call()

		// Give the second caller time to join the in-flight fetch
		time.Sleep(50 * time.Millisecond)
		close(release)

		wg.Wait()
		close(errs)

		for err := range errs {
			assert.NoError(t, err)
		}

		assert.Equal(t, int32(1), calls.Load())
	})
}

func TestService_PersistOrder(t *testing.T) {
	t.Parallel()

	var (
		setCalls atomic.Int32
		release  = make(chan struct{})
		entered  = make(chan struct{})

		writesMu sync.Mutex
		writes   [][]types.Record

		st = &mock.Storage{
			SetFn: func(_ context.Context, _ storage.Namespace, items map[string][]byte) error {
				if setCalls.Add(1) == 1 {
					close(entered)
					<-release
				}

				var records []types.Record
				if err := json.Unmarshal(items[storage.KeyExchangeRates], &records); err != nil {
					return err
				}

				writesMu.Lock()
				writes = append(writes, records)
				writesMu.Unlock()

				return nil
			},
		}
		s, store = newTestService(t, newCountingProvider(), st, newTestClock(t0), time.Minute)

		wg sync.WaitGroup
	)

	call := func(target types.Currency) {
		defer wg.Done()

		_, err := s.RatesFor(context.Background(), "hkd", testSource, []types.Currency{target})
		assert.NoError(t, err)
	}

	wg.Add(1)

	go call("usd")

	// The first write holds a single record, and is stuck
	<-entered

	wg.Add(1)

	go call("jpy")

	require.Eventually(t, func() bool {
		return store.Len() == 2
	}, time.Second, time.Millisecond)

	// Let the second refresh reach its write
	time.Sleep(50 * time.Millisecond)
	close(release)

	wg.Wait()

	writesMu.Lock()
	defer writesMu.Unlock()

	require.Len(t, writes, 2)

	// The newest snapshot lands last
	assert.Len(t, writes[0], 1)
	assert.Len(t, writes[1], 2)
}

func TestService_RatesFor_TTLScenario(t *testing.T) {
	t.Parallel()

	var (
		p        = newCountingProvider()
		clock    = newTestClock(t0)
		s, store = newTestService(t, p, memory.NewStorage(), clock, 10*time.Second)
		targets  = []types.Currency{"usd", "jpy"}
	)

	// Empty store, one fetch
	_, err := s.RatesFor(context.Background(), "hkd", testSource, targets)
	require.NoError(t, err)

	require.Equal(t, int32(1), p.calls.Load())
	require.Equal(t, 2, store.Len())

	for _, target := range targets {
		e, ok := store.Get(types.Key{Base: "hkd", Target: target, Source: testSource})
		require.True(t, ok)
		assert.Equal(t, t0, e.FetchedAt)
	}

	// Within the ttl, cache hit
	clock.Set(t0.Add(5 * time.Second))

	_, err = s.RatesFor(context.Background(), "hkd", testSource, targets)
	require.NoError(t, err)
	require.Equal(t, int32(1), p.calls.Load())

	// Past the ttl, refetch and overwrite
	refetchAt := t0.Add(15 * time.Second)
	clock.Set(refetchAt)

	_, err = s.RatesFor(context.Background(), "hkd", testSource, targets)
	require.NoError(t, err)
	require.Equal(t, int32(2), p.calls.Load())

	for _, target := range targets {
		e, ok := store.Get(types.Key{Base: "hkd", Target: target, Source: testSource})
		require.True(t, ok)
		assert.Equal(t, refetchAt, e.FetchedAt)
	}
}

func TestService_CurrentRates(t *testing.T) {
	t.Parallel()

	var (
		p        = newCountingProvider()
		s, store = newTestService(t, p, memory.NewStorage(), newTestClock(t0), time.Minute)
	)

	store.Put(types.Key{Base: "hkd", Target: "jpy", Source: testSource}, 19.1, t0)
	store.Put(types.Key{Base: "hkd", Target: "usd", Source: testSource}, 0.128, t0.Add(-time.Hour))

	rates := s.CurrentRates("hkd", testSource, []types.Currency{"usd", "cny", "jpy"})

	assert.Equal(t, types.Rates{
		{Currency: "usd", Rate: 0.128},
		{Currency: "jpy", Rate: 19.1},
	}, rates)
	assert.Equal(t, int32(0), p.calls.Load())
}

func TestService_SourceURL(t *testing.T) {
	t.Parallel()

	s, _ := newTestService(t, newCountingProvider(), memory.NewStorage(), newTestClock(t0), time.Minute)

	url, err := s.SourceURL(testSource, "hkd")
	require.NoError(t, err)
	assert.Equal(t, "https://rates.test/HKD", url)

	_, err = s.SourceURL("other", "hkd")
	assert.ErrorIs(t, err, provider.ErrUnknownSource)
}

func TestService_Prune(t *testing.T) {
	t.Parallel()

	var (
		persisted atomic.Int32

		st = &mock.Storage{
			SetFn: func(context.Context, storage.Namespace, map[string][]byte) error {
				persisted.Add(1)

				return nil
			},
		}
		clock    = newTestClock(t0)
		s, store = newTestService(t, newCountingProvider(), st, clock, 10*time.Second)
	)

	store.Put(types.Key{Base: "hkd", Target: "usd", Source: testSource}, 0.128, t0.Add(-11*time.Second))
	store.Put(types.Key{Base: "hkd", Target: "jpy", Source: testSource}, 19.1, t0.Add(-time.Second))

	earliest := s.Prune(context.Background())

	assert.Equal(t, t0.Add(-time.Second), earliest)
	assert.Equal(t, 1, store.Len())
	assert.Equal(t, int32(1), persisted.Load())

	// Nothing left to drop, nothing persisted
	s.Prune(context.Background())
	assert.Equal(t, int32(1), persisted.Load())

	fetched, ok := s.EarliestFetch(testSource)
	require.True(t, ok)
	assert.Equal(t, t0.Add(-time.Second), fetched)
}

func TestService_EarliestFetch(t *testing.T) {
	t.Parallel()

	var (
		clock    = newTestClock(t0)
		s, store = newTestService(t, newCountingProvider(), memory.NewStorage(), clock, 10*time.Second)
	)

	store.Put(types.Key{Base: "hkd", Target: "usd", Source: testSource}, 0.128, t0.Add(-10*time.Second))
	store.Put(types.Key{Base: "hkd", Target: "jpy", Source: testSource}, 19.1, t0.Add(-time.Second))

	// The expired usd entry is still held, but not reported
	fetched, ok := s.EarliestFetch(testSource)
	require.True(t, ok)
	assert.Equal(t, t0.Add(-time.Second), fetched)
	assert.Equal(t, 2, store.Len())

	clock.Set(t0.Add(9 * time.Second))

	_, ok = s.EarliestFetch(testSource)
	assert.False(t, ok)
}

func TestService_Load(t *testing.T) {
	t.Parallel()

	t.Run("restores and prunes", func(t *testing.T) {
		t.Parallel()

		records := []types.Record{
			{
				Key:   types.Key{Base: "hkd", Target: "usd", Source: testSource},
				Entry: types.Entry{Rate: 0.128, FetchedAt: t0.Add(-time.Second)},
			},
			{
				Key:   types.Key{Base: "hkd", Target: "jpy", Source: testSource},
				Entry: types.Entry{Rate: 19.1, FetchedAt: t0.Add(-time.Hour)},
			},
		}

		raw, err := json.Marshal(records)
		require.NoError(t, err)

		st := memory.NewStorage()
		require.NoError(t, st.Set(
			context.Background(),
			storage.NamespaceLocal,
			map[string][]byte{storage.KeyExchangeRates: raw},
		))

		s, store := newTestService(t, newCountingProvider(), st, newTestClock(t0), time.Minute)
		s.Load(context.Background())

		assert.Equal(t, 1, store.Len())

		e, ok := store.Get(types.Key{Base: "hkd", Target: "usd", Source: testSource})
		require.True(t, ok)
		assert.Equal(t, 0.128, e.Rate)
	})

	t.Run("storage failure keeps an empty store", func(t *testing.T) {
		t.Parallel()

		st := &mock.Storage{
			GetFn: func(context.Context, storage.Namespace, ...string) (map[string][]byte, error) {
				return nil, errors.New("storage unavailable")
			},
		}

		s, store := newTestService(t, newCountingProvider(), st, newTestClock(t0), time.Minute)

		assert.NotPanics(t, func() {
			s.Load(context.Background())
		})
		assert.Equal(t, 0, store.Len())
	})

	t.Run("malformed data is ignored", func(t *testing.T) {
		t.Parallel()

		st := memory.NewStorage()
		require.NoError(t, st.Set(
			context.Background(),
			storage.NamespaceLocal,
			map[string][]byte{storage.KeyExchangeRates: []byte(`{"hkd_usd": 1}`)},
		))

		s, store := newTestService(t, newCountingProvider(), st, newTestClock(t0), time.Minute)
		s.Load(context.Background())

		assert.Equal(t, 0, store.Len())
	})
}
