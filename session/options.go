package session

import (
	"log/slog"

	"github.com/sig-0/fxcache/types"
)

type Option func(s *Session)

// WithLogger specifies the logger for the session
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		s.logger = l
	}
}

// WithDefaults specifies the state used for keys absent from storage.
// Defaults to DefaultState()
func WithDefaults(state State) Option {
	return func(s *Session) {
		s.base = state.BaseCurrency
		s.source = state.Source
		s.list = append([]types.Currency(nil), state.TrackedList...)
	}
}
