//nolint:tagliatelle // ExchangeRate-API uses snake case
package erapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sig-0/fxcache/provider"
	"github.com/sig-0/fxcache/types"
)

// Source is the identifier of the open-access ExchangeRate-API
const Source types.Source = "exchangerate_api"

// DefaultURL is the open-access latest rates endpoint
const DefaultURL = "https://open.er-api.com/v6/latest"

type latestResponse struct {
	Result    string             `json:"result"`
	ErrorType string             `json:"error-type"`
	BaseCode  string             `json:"base_code"`
	Rates     map[string]float64 `json:"rates"`
}

// Provider fetches rates from the open-access ExchangeRate-API
type Provider struct {
	client *http.Client
	url    string
}

// New creates a new open-access ExchangeRate-API provider
func New(url string, timeout time.Duration) *Provider {
	return &Provider{
		client: provider.NewHTTPClient(timeout),
		url:    strings.TrimSuffix(url, "/"),
	}
}

func (p *Provider) Source() types.Source {
	return Source
}

func (p *Provider) SourceURL(base types.Currency) string {
	return fmt.Sprintf("%s/%s", p.url, base.Upper())
}

func (p *Provider) Fetch(
	ctx context.Context,
	base types.Currency,
	targets []types.Currency,
) (map[types.Currency]float64, error) {
	var body latestResponse

	if err := provider.GetJSON(ctx, p.client, p.SourceURL(base), &body); err != nil {
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

	return provider.PickTargets(body.Rates, targets), nil
}
