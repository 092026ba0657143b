// Package bcv provides rates scraped from the Banco Central de Venezuela
// website (https://www.bcv.org.ve/).
//
// The page publishes the official VES price of USD, EUR, CNY, TRY and RUB.
// Any pair among those currencies and VES is derived from the published table
package bcv

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/sig-0/fxcache/provider"
	"github.com/sig-0/fxcache/provider/currencies"
	"github.com/sig-0/fxcache/types"
)

// Source is the identifier of the BCV provider
const Source types.Source = "bcv"

// DefaultURL is the BCV home page, holding the official rates
const DefaultURL = "https://www.bcv.org.ve/"

var (
	errInvalidRate     = errors.New("invalid rate")
	errUnsupportedBase = errors.New("base currency not published by BCV")
	errNoRates         = errors.New("no rates found on page")
)

// sectionIDs maps the page section IDs to the currency they price
var sectionIDs = map[string]types.Currency{
	"dolar": currencies.USD,
	"euro":  currencies.EUR,
	"yuan":  currencies.CNY,
	"lira":  currencies.TRY,
	"rublo": currencies.RUB,
}

// Provider is the BCV website scraping provider
type Provider struct {
	client *http.Client
	url    string
}

// New creates a new instance of the BCV website provider
func New(url string, timeout time.Duration) *Provider {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.TLSClientConfig = &tls.Config{
		InsecureSkipVerify: true, //nolint:gosec // BCV serves an incomplete chain
	}

	return &Provider{
		client: &http.Client{
			Timeout:   timeout,
			Transport: tr,
		},
		url: url,
	}
}

func (p *Provider) Source() types.Source {
	return Source
}

func (p *Provider) SourceURL(_ types.Currency) string {
	return p.url
}

func (p *Provider) Fetch(
	ctx context.Context,
	base types.Currency,
	targets []types.Currency,
) (map[types.Currency]float64, error) {
	resp, err := provider.Get(ctx, p.client, p.url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	// Construct document for parsing
	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("unable to construct query doc: %w", err)
	}

	// VES price of one unit of each published currency
	vesPrice := parsePriceTable(doc)
	if len(vesPrice) == 0 {
		return nil, errNoRates
	}

	vesPrice[currencies.VES] = 1

	basePrice, ok := vesPrice[base]
	if !ok {
		return nil, fmt.Errorf("%w: %s", errUnsupportedBase, base.Upper())
	}

	out := make(map[types.Currency]float64, len(targets))

	for _, target := range targets {
		targetPrice, ok := vesPrice[target]
		if !ok {
			continue
		}

		out[target] = basePrice / targetPrice
	}

	return out, nil
}

// parsePriceTable reads the VES price of every published currency.
// Sections that fail to parse are skipped
func parsePriceTable(doc *goquery.Document) map[types.Currency]float64 {
	out := make(map[types.Currency]float64, len(sectionIDs))

	for id, currency := range sectionIDs {
		sel := doc.Find("#" + id)
		if sel.Length() == 0 {
			continue
		}

		txt := sel.Find(".col-sm-6.col-xs-6.centrado").First().Text()
		if strings.TrimSpace(txt) == "" {
			txt = sel.Find(".centrado").First().Text()
		}

		v, err := parseBCVNumber(txt)
		if err != nil || v <= 0 {
			continue
		}

		out[currency] = math.Round(v*1e4) / 1e4
	}

	return out
}

// parseBCVNumber parses a rate number as printed by BCV
func parseBCVNumber(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errInvalidRate
	}

	// Comma decimal separator, dot thousands separator:
	// "1.234,56" -> "1234.56"
	s = strings.ReplaceAll(s, ".", "")
	s = strings.ReplaceAll(s, ",", ".")

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("unable to parse rate %q: %w", s, err)
	}

	return f, nil
}
