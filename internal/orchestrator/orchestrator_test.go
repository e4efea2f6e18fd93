package orchestrator

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/bcgov/sbc-pay-sub002/internal/appctx"
	"github.com/bcgov/sbc-pay-sub002/internal/bus"
)

func newTestTaskContext() *appctx.TaskContext {
	return appctx.New(zerolog.Nop(), nil, nil, nil, bus.Noop{}, nil, nil)
}

func TestOrchestratorRunsEachJobOnStart(t *testing.T) {
	var calls int32
	o := New(newTestTaskContext(), []Job{
		{Name: "job_a", Interval: time.Hour, Run: func(ctx context.Context, tc *appctx.TaskContext) error {
			atomic.AddInt32(&calls, 1)
			return nil
		}},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	o.Start(ctx)
	defer o.Stop()

	require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) >= 1 }, time.Second, 5*time.Millisecond)
}

func TestOrchestratorRunNowUnknownJob(t *testing.T) {
	o := New(newTestTaskContext(), []Job{{Name: "known", Interval: time.Hour, Run: func(context.Context, *appctx.TaskContext) error { return nil }}})

	err := o.RunNow(context.Background(), "unknown")
	require.Error(t, err)
}

func TestOrchestratorRunNowPropagatesJobError(t *testing.T) {
	wantErr := errors.New("boom")
	o := New(newTestTaskContext(), []Job{{Name: "known", Interval: time.Hour, Run: func(context.Context, *appctx.TaskContext) error { return wantErr }}})

	err := o.RunNow(context.Background(), "known")
	require.ErrorIs(t, err, wantErr)
}

func TestOrchestratorStopWaitsForGoroutines(t *testing.T) {
	jobs := []Job{
		{Name: "a", Interval: time.Hour, Run: func(context.Context, *appctx.TaskContext) error { return nil }},
		{Name: "b", Interval: time.Hour, Run: func(context.Context, *appctx.TaskContext) error { return nil }},
	}
	o := New(newTestTaskContext(), jobs)
	ctx := context.Background()
	o.Start(ctx)
	o.Stop()
	// Start again after Stop should be allowed (running flag reset).
	o.Start(ctx)
	o.Stop()
}

func TestDefaultJobsNamesAreUnique(t *testing.T) {
	seen := map[string]bool{}
	for _, j := range DefaultJobs() {
		require.False(t, seen[j.Name], "duplicate job name %s", j.Name)
		seen[j.Name] = true
	}
}
