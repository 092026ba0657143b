package currencies

import "github.com/sig-0/fxcache/types"

var (
	HKD types.Currency = "hkd"
	USD types.Currency = "usd"
	EUR types.Currency = "eur"
	CNY types.Currency = "cny"
	JPY types.Currency = "jpy"
	TWD types.Currency = "twd"
	AUD types.Currency = "aud"
	GBP types.Currency = "gbp"
	TRY types.Currency = "try"
	RUB types.Currency = "rub"
	VES types.Currency = "ves"
)

// DefaultList is the tracked list used until the user picks their own
func DefaultList() []types.Currency {
	return []types.Currency{USD, CNY, JPY, TWD, AUD, GBP, EUR}
}
