package cache

import (
	"sort"
	"sync"
	"time"

	"github.com/sig-0/fxcache/types"
)

// Store is the in-memory rate cache, keyed by (base, target, source).
// Each key is replaced whole on Put, so readers never see a partial entry
type Store struct {
	data map[types.Key]types.Entry

	mu sync.RWMutex
}

// NewStore creates an empty rate store
func NewStore() *Store {
	return &Store{
		data: make(map[types.Key]types.Entry),
	}
}

// Get returns the entry for the given key, if any
func (s *Store) Get(key types.Key) (types.Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.data[key]

	return e, ok
}

// Put replaces the entry for the given key
func (s *Store) Put(key types.Key, rate float64, fetchedAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[key] = types.Entry{
		Rate:      rate,
		FetchedAt: fetchedAt.UTC(),
	}
}

// IsStale reports whether the key is absent, or was fetched at least ttl before now
func (s *Store) IsStale(key types.Key, now time.Time, ttl time.Duration) bool {
	e, ok := s.Get(key)
	if !ok {
		return true
	}

	return expired(e, now, ttl)
}

// Prune drops every entry with fetchedAt + ttl <= now, and returns
// the earliest fetch time of the remaining entries (zero if none remain)
func (s *Store) Prune(now time.Time, ttl time.Duration) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k, e := range s.data {
		if expired(e, now, ttl) {
			delete(s.data, k)
		}
	}

	var earliest time.Time

	for _, e := range s.data {
		if earliest.IsZero() || e.FetchedAt.Before(earliest) {
			earliest = e.FetchedAt
		}
	}

	return earliest
}

// EarliestFetch returns the earliest fetch time among the live entries
// of the given source. Expired entries are skipped even if not yet pruned
func (s *Store) EarliestFetch(
	source types.Source,
	now time.Time,
	ttl time.Duration,
) (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		earliest time.Time
		found    bool
	)

	for k, e := range s.data {
		if k.Source != source || expired(e, now, ttl) {
			continue
		}

		if !found || e.FetchedAt.Before(earliest) {
			earliest = e.FetchedAt
			found = true
		}
	}

	return earliest, found
}

// Len returns the number of entries held, stale ones included
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.data)
}

// Snapshot returns a copy of all entries, sorted by key
func (s *Store) Snapshot() []types.Record {
	s.mu.RLock()

	out := make([]types.Record, 0, len(s.data))
	for k, e := range s.data {
		out = append(out, types.Record{Key: k, Entry: e})
	}

	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Key, out[j].Key

		if a.Base != b.Base {
			return a.Base < b.Base
		}

		if a.Target != b.Target {
			return a.Target < b.Target
		}

		return a.Source < b.Source
	})

	return out
}

// Load replaces the store contents with the given records
func (s *Store) Load(records []types.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data = make(map[types.Key]types.Entry, len(records))

	for _, r := range records {
		r.FetchedAt = r.FetchedAt.UTC()
		s.data[r.Key] = r.Entry
	}
}

func expired(e types.Entry, now time.Time, ttl time.Duration) bool {
	return !now.Before(e.FetchedAt.Add(ttl))
}
