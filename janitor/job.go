package janitor

import (
	"context"
	"log/slog"
	"time"
)

// Job is a single periodic maintenance task
type Job interface {
	// Name returns the human-readable name of the job
	Name() string

	// Interval returns the interval at which the job should run
	Interval() time.Duration

	// Run executes the job once
	Run(context.Context) error
}

// RunFunc is the body of a function-backed job
type RunFunc func(context.Context) error

type funcJob struct {
	run      RunFunc
	name     string
	interval time.Duration
}

// NewJob creates a job out of the given function
func NewJob(name string, interval time.Duration, run RunFunc) Job {
	return &funcJob{
		name:     name,
		interval: interval,
		run:      run,
	}
}

func (j *funcJob) Name() string {
	return j.name
}

func (j *funcJob) Interval() time.Duration {
	return j.interval
}

func (j *funcJob) Run(ctx context.Context) error {
	if j.run == nil {
		return nil
	}

	return j.run(ctx)
}

// Pruner drops expired cached data
type Pruner interface {
	// Prune drops the expired entries, returning the earliest remaining fetch time
	Prune(ctx context.Context) time.Time
}

// PruneJob periodically drops expired rates from the store
func PruneJob(p Pruner, interval time.Duration, logger *slog.Logger) Job {
	return NewJob("prune", interval, func(ctx context.Context) error {
		earliest := p.Prune(ctx)

		if !earliest.IsZero() {
			logger.Debug(
				"prune pass done",
				"earliest_fetch", earliest.String(),
			)
		}

		return nil
	})
}

// HeartbeatJob keeps the process visibly alive. It has no data effect
func HeartbeatJob(interval time.Duration, logger *slog.Logger) Job {
	return NewJob("heartbeat", interval, func(context.Context) error {
		logger.Debug("heartbeat")

		return nil
	})
}
