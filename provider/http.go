package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sig-0/fxcache/types"
)

// NewHTTPClient creates the client used for remote rate calls
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
	}
}

// RequestOption modifies an outgoing request before it is sent
type RequestOption func(*http.Request)

// WithBearerToken sets the Authorization header to the given token
func WithBearerToken(token string) RequestOption {
	return func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+token)
	}
}

// Get executes a single GET request and hands back the response,
// failing on transport errors and non-2xx status codes.
// Transport errors never carry the request URL.
// The caller closes the body
func Get(
	ctx context.Context,
	client *http.Client,
	rawURL string,
	opts ...RequestOption,
) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}

		return nil, fmt.Errorf("unable to create new GET request: %w", err)
	}

	for _, opt := range opts {
		opt(req)
	}

	resp, err := client.Do(req)
	if err != nil {
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}

		return nil, fmt.Errorf("unable to execute GET request: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_ = resp.Body.Close()

		return nil, fmt.Errorf("%w: status code %d", ErrUnsuccessfulResponse, resp.StatusCode)
	}

	return resp, nil
}

// GetJSON executes a single GET request and decodes the JSON body into v
func GetJSON(
	ctx context.Context,
	client *http.Client,
	rawURL string,
	v any,
	opts ...RequestOption,
) error {
	resp, err := Get(ctx, client, rawURL, opts...)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("unable to decode response: %w", err)
	}

	return nil
}

// PickTargets selects the requested targets out of an upper-case keyed rate table
func PickTargets(table map[string]float64, targets []types.Currency) map[types.Currency]float64 {
	out := make(map[types.Currency]float64, len(targets))

	for _, target := range targets {
		rate, ok := table[target.Upper()]
		if !ok {
			continue
		}

		out[target] = rate
	}

	return out
}
