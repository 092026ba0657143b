package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"regexp"
	"slices"
	"sync"

	"github.com/sig-0/fxcache/provider/currencies"
	"github.com/sig-0/fxcache/provider/erapi"
	"github.com/sig-0/fxcache/storage"
	"github.com/sig-0/fxcache/types"
)

var (
	ErrInvalidIndex    = errors.New("index out of range")
	ErrInvalidCurrency = errors.New("invalid currency code")
	ErrInvalidAmount   = errors.New("invalid amount")
)

var currencyRegex = regexp.MustCompile(`^[a-z]{3}$`)

// State is a point-in-time copy of the session configuration
type State struct {
	BaseCurrency types.Currency   `json:"base_currency"`
	Source       types.Source     `json:"source_api"`
	TrackedList  []types.Currency `json:"current_list"`
}

// BaseChange is the outcome of a base currency switch
type BaseChange struct {
	OldCurrency types.Currency `json:"old_currency"`
	NewCurrency types.Currency `json:"new_currency"`
}

// DefaultState returns the configuration used when nothing is persisted
func DefaultState() State {
	return State{
		BaseCurrency: currencies.HKD,
		Source:       erapi.Source,
		TrackedList:  currencies.DefaultList(),
	}
}

// ValidateCurrency normalizes the code, and checks it is a 3-letter one
func ValidateCurrency(code string) (types.Currency, error) {
	c := types.NormalizeCurrency(code)

	if !currencyRegex.MatchString(c.String()) {
		return "", fmt.Errorf("%w: %q", ErrInvalidCurrency, code)
	}

	return c, nil
}

// Session is the process-wide user configuration: the base currency,
// the active rate source and the ordered list of tracked currencies.
// Every mutation is persisted to the sync namespace. Persistence failures
// are logged, and the in-memory state stays authoritative
type Session struct {
	storage storage.Storage
	logger  *slog.Logger

	base   types.Currency
	source types.Source
	list   []types.Currency

	amount    float64
	hasAmount bool

	// mu is held across persistence, so writes land in mutation order
	mu sync.RWMutex
}

// New creates a session holding the default state.
// Call Load to restore the persisted configuration
func New(storage storage.Storage, opts ...Option) *Session {
	def := DefaultState()

	s := &Session{
		storage: storage,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		base:    def.BaseCurrency,
		source:  def.Source,
		list:    def.TrackedList,
	}

	// Apply the options
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Load restores the persisted configuration. Absent or malformed
// keys keep their current (default) values
func (s *Session) Load(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.loadSync(ctx)
	s.loadLocal(ctx)

	s.logger.Info(
		"loaded session",
		"base", s.base.String(),
		"source", s.source.String(),
		"tracked", len(s.list),
	)
}

func (s *Session) loadSync(ctx context.Context) {
	items, err := s.storage.Get(
		ctx,
		storage.NamespaceSync,
		storage.KeyBaseCurrency,
		storage.KeySourceAPI,
		storage.KeyCurrencyList,
	)
	if err != nil {
		s.logger.Error(
			"unable to load session",
			"namespace", storage.NamespaceSync.String(),
			"err", err,
		)

		return
	}

	if raw, ok := items[storage.KeyBaseCurrency]; ok {
		var code string

		if s.decode(storage.KeyBaseCurrency, raw, &code) {
			if base, err := ValidateCurrency(code); err == nil {
				s.base = base
			}
		}
	}

	if raw, ok := items[storage.KeySourceAPI]; ok {
		var source string

		if s.decode(storage.KeySourceAPI, raw, &source) && source != "" {
			s.source = types.Source(source)
		}
	}

	if raw, ok := items[storage.KeyCurrencyList]; ok {
		var codes []string

		if s.decode(storage.KeyCurrencyList, raw, &codes) {
			list := make([]types.Currency, 0, len(codes))

			for _, code := range codes {
				c, err := ValidateCurrency(code)
				if err != nil {
					s.logger.Warn(
						"dropping invalid tracked currency",
						"code", code,
					)

					continue
				}

				list = append(list, c)
			}

			s.list = list
		}
	}
}

func (s *Session) loadLocal(ctx context.Context) {
	items, err := s.storage.Get(ctx, storage.NamespaceLocal, storage.KeyInputAmount)
	if err != nil {
		s.logger.Error(
			"unable to load session",
			"namespace", storage.NamespaceLocal.String(),
			"err", err,
		)

		return
	}

	raw, ok := items[storage.KeyInputAmount]
	if !ok {
		return
	}

	var amount float64
	if s.decode(storage.KeyInputAmount, raw, &amount) && validAmount(amount) {
		s.amount = amount
		s.hasAmount = true
	}
}

// decode unmarshals a persisted value, logging malformed ones
func (s *Session) decode(key string, raw []byte, v any) bool {
	if err := json.Unmarshal(raw, v); err != nil {
		s.logger.Warn(
			"ignoring malformed persisted value",
			"key", key,
			"err", err,
		)

		return false
	}

	return true
}

// State returns a copy of the current configuration
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return State{
		BaseCurrency: s.base,
		Source:       s.source,
		TrackedList:  slices.Clone(s.list),
	}
}

// BaseCurrency returns the active base currency
func (s *Session) BaseCurrency() types.Currency {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.base
}

// SetBaseCurrency swaps the active base currency. The rate store is not touched
func (s *Session) SetBaseCurrency(ctx context.Context, code string) (BaseChange, error) {
	base, err := ValidateCurrency(code)
	if err != nil {
		return BaseChange{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	change := BaseChange{
		OldCurrency: s.base,
		NewCurrency: base,
	}

	s.base = base

	s.persist(ctx, storage.NamespaceSync, storage.KeyBaseCurrency, base)

	return change, nil
}

// ReorderTrackedList moves the currency at from to the to position,
// shifting the ones in between. Both indices must be within the list
func (s *Session) ReorderTrackedList(ctx context.Context, from, to int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if from < 0 || from >= len(s.list) || to < 0 || to >= len(s.list) {
		return fmt.Errorf(
			"%w: from %d, to %d, length %d",
			ErrInvalidIndex,
			from,
			to,
			len(s.list),
		)
	}

	moved := s.list[from]

	s.list = slices.Delete(s.list, from, from+1)
	s.list = slices.Insert(s.list, to, moved)

	s.persist(ctx, storage.NamespaceSync, storage.KeyCurrencyList, s.list)

	return nil
}

// ReplaceEntryEqualToBase replaces the tracked currency equal to the base
// currency, if any, with the given one. It reports whether the list changed
func (s *Session) ReplaceEntryEqualToBase(ctx context.Context, code string) (bool, error) {
	replacement, err := ValidateCurrency(code)
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idx := slices.Index(s.list, s.base)
	if idx < 0 {
		return false, nil
	}

	s.list[idx] = replacement

	s.persist(ctx, storage.NamespaceSync, storage.KeyCurrencyList, s.list)

	return true, nil
}

// InputAmount returns the last entered input amount, if any
func (s *Session) InputAmount() (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.amount, s.hasAmount
}

// SetInputAmount saves the last entered input amount
func (s *Session) SetInputAmount(ctx context.Context, amount float64) error {
	if !validAmount(amount) {
		return fmt.Errorf("%w: %v", ErrInvalidAmount, amount)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.amount = amount
	s.hasAmount = true

	s.persist(ctx, storage.NamespaceLocal, storage.KeyInputAmount, amount)

	return nil
}

// persist writes a single value. Failures are only logged
func (s *Session) persist(ctx context.Context, ns storage.Namespace, key string, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		s.logger.Error(
			"unable to encode session value",
			"key", key,
			"err", err,
		)

		return
	}

	if err := s.storage.Set(ctx, ns, map[string][]byte{key: raw}); err != nil {
		s.logger.Error(
			"unable to persist session value",
			"namespace", ns.String(),
			"key", key,
			"err", err,
		)
	}
}

func validAmount(v float64) bool {
	return v >= 0 && !math.IsNaN(v) && !math.IsInf(v, 0)
}
