package janitor

import (
	"log/slog"
	"time"
)

type Option func(j *Janitor)

// WithLogger specifies the logger for the janitor
func WithLogger(l *slog.Logger) Option {
	return func(j *Janitor) {
		j.logger = l
	}
}

// WithQueryInterval specifies how often the janitor checks for due jobs.
// Defaults to 1s
func WithQueryInterval(q time.Duration) Option {
	return func(j *Janitor) {
		j.queryInterval = q
	}
}

// WithRetryDelay specifies how soon a failed job is run again.
// Defaults to 10s
func WithRetryDelay(d time.Duration) Option {
	return func(j *Janitor) {
		j.retryDelay = d
	}
}
