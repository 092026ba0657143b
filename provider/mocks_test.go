package provider

import (
	"context"

	"github.com/sig-0/fxcache/types"
)

type mockProvider struct {
	source types.Source
}

func (m *mockProvider) Source() types.Source {
	return m.source
}

func (m *mockProvider) SourceURL(_ types.Currency) string {
	return ""
}

func (m *mockProvider) Fetch(
	_ context.Context,
	_ types.Currency,
	_ []types.Currency,
) (map[types.Currency]float64, error) {
	return nil, nil
}
