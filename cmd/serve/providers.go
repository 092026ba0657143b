package serve

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/sig-0/fxcache/cmd/env"
	"github.com/sig-0/fxcache/provider"
	"github.com/sig-0/fxcache/provider/bcv"
	"github.com/sig-0/fxcache/provider/erapi"
	"github.com/sig-0/fxcache/provider/erapipro"
	"github.com/sig-0/fxcache/server/config"
)

// defaultProviders returns the registry of the available rate sources
func defaultProviders(
	cfg *config.Providers,
	timeout time.Duration,
	logger *slog.Logger,
) (*provider.Registry, error) {
	registry, err := provider.NewRegistry(
		// Open-access ExchangeRate-API
		erapi.New(cfg.ExchangeRateAPIURL, timeout),

		// Official BCV rates
		bcv.New(cfg.BCVURL, timeout),
	)
	if err != nil {
		return nil, err
	}

	// Keyed ExchangeRate-API, if a key is available
	apiKey := os.Getenv(env.Prefix + env.ProAPIKeySuffix)
	if apiKey == "" {
		logger.Info(
			"keyed rate source disabled",
			"source", erapipro.Source.String(),
			"missing", env.Prefix+env.ProAPIKeySuffix,
		)

		return registry, nil
	}

	pro, err := erapipro.New(cfg.ExchangeRateAPIProURL, apiKey, timeout)
	if err != nil {
		return nil, fmt.Errorf("unable to create %s provider: %w", erapipro.Source, err)
	}

	if err := registry.Register(pro); err != nil {
		return nil, err
	}

	return registry, nil
}
