package router

import (
	"log/slog"
)

type Option func(r *Router)

// WithLogger specifies the logger for the router
func WithLogger(l *slog.Logger) Option {
	return func(r *Router) {
		r.logger = l
	}
}
