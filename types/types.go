package types

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var errInvalidRates = errors.New("rates must be a JSON object of code to number")

// Currency is a lower-case currency code, such as "hkd"
type Currency string

// NormalizeCurrency trims and lower-cases the given code
func NormalizeCurrency(v string) Currency {
	return Currency(strings.ToLower(strings.TrimSpace(v)))
}

func (c Currency) String() string {
	return string(c)
}

// Upper returns the code as remote rate APIs expect it
func (c Currency) Upper() string {
	return strings.ToUpper(string(c))
}

// Source identifies the remote rate provider that populated an entry
type Source string

func (s Source) String() string {
	return string(s)
}

// Key is the composite identity of a cached rate
type Key struct {
	Base   Currency `json:"base"`
	Target Currency `json:"target"`
	Source Source   `json:"source"`
}

// Entry is a single fetched rate
type Entry struct {
	FetchedAt time.Time `json:"fetched_at"`
	Rate      float64   `json:"rate"`
}

// Record is the serialized form of a cached rate
type Record struct {
	Key
	Entry
}

// Rate is a single target rate in an ordered result
type Rate struct {
	Currency Currency
	Rate     float64
}

// Rates is an ordered target -> rate mapping.
// It encodes as a JSON object, keeping the element order
type Rates []Rate

// Get returns the rate for the given currency, if present
func (r Rates) Get(c Currency) (float64, bool) {
	for _, rate := range r {
		if rate.Currency == c {
			return rate.Rate, true
		}
	}

	return 0, false
}

// Currencies returns the currency codes, in order
func (r Rates) Currencies() []Currency {
	out := make([]Currency, 0, len(r))

	for _, rate := range r {
		out = append(out, rate.Currency)
	}

	return out
}

func (r Rates) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte('{')

	for i, rate := range r {
		if i > 0 {
			buf.WriteByte(',')
		}

		k, err := json.Marshal(rate.Currency.String())
		if err != nil {
			return nil, err
		}

		v, err := json.Marshal(rate.Rate)
		if err != nil {
			return nil, err
		}

		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}

	buf.WriteByte('}')

	return buf.Bytes(), nil
}

func (r *Rates) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return err
	}

	if tok == nil {
		// null leaves the value untouched
		return nil
	}

	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("%w: unexpected %v", errInvalidRates, tok)
	}

	out := make(Rates, 0)

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}

		code, ok := tok.(string)
		if !ok {
			return fmt.Errorf("%w: unexpected key %v", errInvalidRates, tok)
		}

		var v float64
		if err := dec.Decode(&v); err != nil {
			return err
		}

		out = append(out, Rate{Currency: Currency(code), Rate: v})
	}

	*r = out

	return nil
}
