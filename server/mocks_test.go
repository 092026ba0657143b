package server

import (
	"context"

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
