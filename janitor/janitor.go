package janitor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/rs/xid"
	"github.com/sig-0/iq"
)

var (
	errInvalidJob      = errors.New("invalid job")
	errInvalidInterval = errors.New("invalid interval")
)

// Janitor runs the registered maintenance jobs, each on its own interval
type Janitor struct {
	logger *slog.Logger

	registeredJobs sync.Map

	q             iq.Queue[scheduledRun]
	queryInterval time.Duration
	retryDelay    time.Duration
	qMux          sync.Mutex
}

// New creates a new Janitor instance
func New(opts ...Option) *Janitor {
	j := &Janitor{
		logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		q:             iq.NewQueue[scheduledRun](),
		queryInterval: time.Second,
		retryDelay:    10 * time.Second,
	}

	// Apply the options
	for _, opt := range opts {
		opt(j)
	}

	return j
}

// Register registers a new job with the janitor.
// The job first runs one interval from now
func (j *Janitor) Register(job Job) error {
	if job == nil || job.Name() == "" {
		return errInvalidJob
	}

	if job.Interval() <= 0 {
		return errInvalidInterval
	}

	id := xid.New()
	j.registeredJobs.Store(id, job)

	j.logger.Info(
		"registered new job",
		"name", job.Name(),
		"interval", job.Interval().String(),
	)

	j.scheduleRun(
		time.Now().UTC().Add(job.Interval()),
		id,
		job,
	)

	return nil
}

// Start starts the janitor service loop [BLOCKING]
func (j *Janitor) Start(ctx context.Context) error {
	collectorCh := make(chan *workerResponse, 16)

	ticker := time.NewTicker(j.queryInterval)
	defer ticker.Stop()

	// handleDue starts every job that is due
	handleDue := func() {
		for {
			select {
			case <-ctx.Done():
				return
			default:
				next := j.nextRun()
				if next == nil {
					return
				}

				go handleJob(ctx, &workerInfo{
					job:   next.job,
					jobID: next.jobID,
					resCh: collectorCh,
				})
			}
		}
	}

	handleDue()

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("janitor service shut down")

			return nil
		case <-ticker.C:
			handleDue()
		case response := <-collectorCh:
			now := time.Now().UTC()

			jobRaw, ok := j.registeredJobs.Load(response.jobID)
			if !ok {
				j.logger.Error(
					"unable to load registered job",
					"id", response.jobID.String(),
				)

				continue
			}

			job, _ := jobRaw.(Job)

			if response.error != nil {
				j.logger.Error(
					"job run failed",
					"name", job.Name(),
					"id", response.jobID.String(),
					"err", response.error,
				)

				j.scheduleRun(now.Add(j.retryDelay), response.jobID, job)

				continue
			}

			j.logger.Debug(
				"job run done",
				"name", job.Name(),
				"took", response.took.String(),
			)

			j.scheduleRun(now.Add(job.Interval()), response.jobID, job)
		}
	}
}

// scheduleRun schedules a future job run
func (j *Janitor) scheduleRun(
	at time.Time,
	jobID xid.ID,
	job Job,
) {
	j.qMux.Lock()
	defer j.qMux.Unlock()

	j.q.Push(scheduledRun{
		at:    at,
		jobID: jobID,
		job:   job,
	})
}

// nextRun pops the next due job run, as of the moment of calling
func (j *Janitor) nextRun() *scheduledRun {
	j.qMux.Lock()
	defer j.qMux.Unlock()

	if j.q.Len() == 0 {
		return nil
	}

	if j.q.Index(0).at.After(time.Now().UTC()) {
		return nil
	}

	return j.q.PopFront()
}
