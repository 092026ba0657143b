package router

import (
	"github.com/sig-0/fxcache/types"
)

// Tag names a request kind
type Tag string

const (
	TagList                   Tag = "list"
	TagGetBaseCurrency        Tag = "get-base-currency"
	TagSetBaseCurrency        Tag = "set-base-currency"
	TagGetCurrentRates        Tag = "get-current-rates"
	TagReorderList            Tag = "reorder-list"
	TagReplaceForeignCurrency Tag = "replace-foreign-currency"
	TagGetInputAmount         Tag = "get-input-amount"
	TagSetInputAmount         Tag = "set-input-amount"
)

// Request is a single inbound message.
// Only the fields of the given tag are read
type Request struct {
	From         *int     `json:"from,omitempty"`
	To           *int     `json:"to,omitempty"`
	Amount       *float64 `json:"amount,omitempty"`
	Greeting     Tag      `json:"greeting"`
	Currency     string   `json:"currency,omitempty"`
	WithCurrency string   `json:"with_currency,omitempty"`
}

// ListResponse is the full popup view
type ListResponse struct {
	// Earliest fetch time of the active source's rates, in Unix milliseconds
	FetchTime *int64 `json:"fetch_time,omitempty"`

	BaseCurrency  types.Currency   `json:"base_currency"`
	FetchFrom     string           `json:"fetch_from"`
	CurrencyRates types.Rates      `json:"currency_rates"`
	CurrentList   []types.Currency `json:"current_list"`
}

// InputAmountResponse holds the last entered input amount, null if none
type InputAmountResponse struct {
	Amount *float64 `json:"amount"`
}
