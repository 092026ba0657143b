package router

import (
	"context"
	"time"

	"github.com/sig-0/fxcache/types"
)

type (
	ratesForDelegate      func(context.Context, types.Currency, types.Source, []types.Currency) (types.Rates, error)
	currentRatesDelegate  func(types.Currency, types.Source, []types.Currency) types.Rates
	earliestFetchDelegate func(types.Source) (time.Time, bool)
	sourceURLDelegate     func(types.Source, types.Currency) (string, error)
)

type mockRateService struct {
	ratesForFn      ratesForDelegate
	currentRatesFn  currentRatesDelegate
	earliestFetchFn earliestFetchDelegate
	sourceURLFn     sourceURLDelegate
}

func (m *mockRateService) RatesFor(
	ctx context.Context,
	base types.Currency,
	source types.Source,
	targets []types.Currency,
) (types.Rates, error) {
	if m.ratesForFn != nil {
		return m.ratesForFn(ctx, base, source, targets)
	}

	return nil, nil
}

func (m *mockRateService) CurrentRates(
	base types.Currency,
	source types.Source,
	targets []types.Currency,
) types.Rates {
	if m.currentRatesFn != nil {
		return m.currentRatesFn(base, source, targets)
	}

	return nil
}

func (m *mockRateService) EarliestFetch(source types.Source) (time.Time, bool) {
	if m.earliestFetchFn != nil {
		return m.earliestFetchFn(source)
	}

	return time.Time{}, false
}

func (m *mockRateService) SourceURL(source types.Source, base types.Currency) (string, error) {
	if m.sourceURLFn != nil {
		return m.sourceURLFn(source, base)
	}

	return "", nil
}
