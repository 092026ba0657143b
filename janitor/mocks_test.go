package janitor

import (
	"context"
	"time"
)

type (
	nameDelegate     func() string
	intervalDelegate func() time.Duration
	runDelegate      func(context.Context) error
	pruneDelegate    func(context.Context) time.Time
)

type mockJob struct {
	nameFn     nameDelegate
	intervalFn intervalDelegate
	runFn      runDelegate
}

func (m *mockJob) Name() string {
	if m.nameFn != nil {
		return m.nameFn()
	}

	return ""
}

func (m *mockJob) Interval() time.Duration {
	if m.intervalFn != nil {
		return m.intervalFn()
	}

	return 0
}

func (m *mockJob) Run(ctx context.Context) error {
	if m.runFn != nil {
		return m.runFn(ctx)
	}

	return nil
}

type mockPruner struct {
	pruneFn pruneDelegate
}

func (m *mockPruner) Prune(ctx context.Context) time.Time {
	if m.pruneFn != nil {
		return m.pruneFn(ctx)
	}

	return time.Time{}
}
