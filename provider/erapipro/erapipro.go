//nolint:tagliatelle // ExchangeRate-API uses snake case
package erapipro

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sig-0/fxcache/provider"
	"github.com/sig-0/fxcache/types"
)

// Source is the identifier of the keyed ExchangeRate-API
const Source types.Source = "exchangerate_api_pro"

const (
	// DefaultURL is the keyed API root
	DefaultURL = "https://v6.exchangerate-api.com/v6"

	// homeURL is shown to users instead of the keyed URL
	homeURL = "https://www.exchangerate-api.com"
)

var errMissingAPIKey = errors.New("missing API key")

type latestResponse struct {
	Result          string             `json:"result"`
	ErrorType       string             `json:"error-type"`
	BaseCode        string             `json:"base_code"`
	ConversionRates map[string]float64 `json:"conversion_rates"`
}

// Provider fetches rates from the keyed ExchangeRate-API
type Provider struct {
	client *http.Client
	url    string
	apiKey string
}

// New creates a new keyed ExchangeRate-API provider
func New(url, apiKey string, timeout time.Duration) (*Provider, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errMissingAPIKey
	}

	return &Provider{
		client: provider.NewHTTPClient(timeout),
		url:    strings.TrimSuffix(url, "/"),
		apiKey: apiKey,
	}, nil
}

func (p *Provider) Source() types.Source {
	return Source
}

// SourceURL leaves the API key out
func (p *Provider) SourceURL(_ types.Currency) string {
	return homeURL
}

func (p *Provider) Fetch(
	ctx context.Context,
	base types.Currency,
	targets []types.Currency,
) (map[types.Currency]float64, error) {
	var (
		body latestResponse
		url  = fmt.Sprintf("%s/latest/%s", p.url, base.Upper())
	)

	// the key goes in the header, never in the URL
	err := provider.GetJSON(ctx, p.client, url, &body, provider.WithBearerToken(p.apiKey))
	if err != nil {
		return nil, fmt.Errorf("unable to fetch %s rates: %w", base.Upper(), err)
	}

	if body.Result != "success" {
		return nil, fmt.Errorf(
			"%w: got %q (%s) for %s",
			provider.ErrUnsuccessfulResponse,
			body.Result,
			body.ErrorType,
			base.Upper(),
		)
	}

	return provider.PickTargets(body.ConversionRates, targets), nil
}
