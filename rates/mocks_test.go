package rates

import (
	"context"
	"sync"
	"time"

	"github.com/sig-0/fxcache/types"
)

type fetchDelegate func(context.Context, types.Currency, []types.Currency) (map[types.Currency]float64, error)

type mockProvider struct {
	fetchFn fetchDelegate
	source  types.Source
}

func (m *mockProvider) Source() types.Source {
	return m.source
}

func (m *mockProvider) SourceURL(base types.Currency) string {
	return "https://rates.test/" + base.Upper()
}

func (m *mockProvider) Fetch(
	ctx context.Context,
	base types.Currency,
	targets []types.Currency,
) (map[types.Currency]float64, error) {
	if m.fetchFn != nil {
		return m.fetchFn(ctx, base, targets)
	}

	return nil, nil
}

// testClock is a manually advanced time source
type testClock struct {
	t  time.Time
	mu sync.Mutex
}

func newTestClock(t time.Time) *testClock {
	return &testClock{t: t}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.t
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.t = t
}
