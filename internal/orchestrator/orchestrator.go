// Package orchestrator schedules the reconciliation engine's recurring jobs,
// generalizing the teacher's ProjectionWorker ticker-loop (one named worker
// per background concern, Start/Stop, a running flag guarded by a mutex)
// into a set of named jobs run by one Orchestrator.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/bcgov/sbc-pay-sub002/internal/appctx"
	"github.com/bcgov/sbc-pay-sub002/internal/opsfeed"
	"github.com/bcgov/sbc-pay-sub002/internal/task"
	"github.com/bcgov/sbc-pay-sub002/internal/telemetry"
)

// JobFunc runs one pass of a named job against tc.
type JobFunc func(ctx context.Context, tc *appctx.TaskContext) error

// Job pairs a name and interval with the function it ticks.
type Job struct {
	Name     string
	Interval time.Duration
	Run      JobFunc
}

// DefaultJobs returns the engine's periodic jobs in their fixed dispatch
// order (spec §4.3), plus the EFT credit-link apply job (spec §4.8). File
// reconciliation (CAS/TDI17/JV) is event-triggered, not ticked - see
// FileEventRouter.
func DefaultJobs() []Job {
	return []Job{
		{Name: "invoice_dispatch", Interval: 15 * time.Minute, Run: task.RunDispatch},
		{Name: "eft_credit_link_apply", Interval: 30 * time.Minute, Run: task.RunEFTCreditLinkApply},
	}
}

// Orchestrator runs a fixed set of named jobs on independent tickers,
// each guarded against overlapping runs of itself.
type Orchestrator struct {
	tc   *appctx.TaskContext
	jobs []Job
	log  zerolog.Logger
	feed opsfeed.Publisher

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// New builds an Orchestrator over jobs, sharing one TaskContext across all
// of them the way the teacher's workers share one repository pool. Run
// events go to a no-op feed until WithFeed supplies a real one.
func New(tc *appctx.TaskContext, jobs []Job) *Orchestrator {
	return &Orchestrator{
		tc:   tc,
		jobs: jobs,
		log:  tc.Log.With().Str("component", "orchestrator").Logger(),
		feed: opsfeed.NoOpPublisher{},
	}
}

// WithFeed sets the ops-liveness feed run events are published to.
func (o *Orchestrator) WithFeed(feed opsfeed.Publisher) *Orchestrator {
	o.feed = feed
	return o
}

// Start launches one goroutine per job and returns immediately.
func (o *Orchestrator) Start(ctx context.Context) {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return
	}
	o.running = true
	o.stopCh = make(chan struct{})
	o.doneCh = make(chan struct{}, len(o.jobs))
	o.mu.Unlock()

	for _, j := range o.jobs {
		go o.runJob(ctx, j)
	}
}

// Stop signals every job goroutine to exit and waits for them to finish.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return
	}
	n := len(o.jobs)
	close(o.stopCh)
	o.mu.Unlock()

	for i := 0; i < n; i++ {
		<-o.doneCh
	}

	o.mu.Lock()
	o.running = false
	o.mu.Unlock()
}

func (o *Orchestrator) runJob(ctx context.Context, j Job) {
	defer func() { o.doneCh <- struct{}{} }()

	log := o.log.With().Str("job", j.Name).Logger()
	o.tick(ctx, log, j)

	ticker := time.NewTicker(j.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-o.stopCh:
			return
		case <-ticker.C:
			o.tick(ctx, log, j)
		}
	}
}

func (o *Orchestrator) tick(ctx context.Context, log zerolog.Logger, j Job) {
	if m := telemetry.Global; m != nil {
		m.RunsStarted.WithLabelValues(j.Name).Inc()
	}
	o.feed.Publish(opsfeed.RunStarted(j.Name, nil))

	start := time.Now()
	err := j.Run(ctx, o.tc)
	elapsed := time.Since(start)

	if m := telemetry.Global; m != nil {
		m.RunDuration.WithLabelValues(j.Name).Observe(elapsed.Seconds())
	}

	if err != nil {
		log.Error().Err(err).Dur("elapsed", elapsed).Msg("job run failed")
		if m := telemetry.Global; m != nil {
			m.RunsFailed.WithLabelValues(j.Name).Inc()
		}
		o.feed.Publish(opsfeed.RunFailed(j.Name, map[string]string{"error": err.Error()}))
		return
	}

	log.Info().Dur("elapsed", elapsed).Msg("job run completed")
	if m := telemetry.Global; m != nil {
		m.RunsSucceeded.WithLabelValues(j.Name).Inc()
	}
	o.feed.Publish(opsfeed.RunCompleted(j.Name, map[string]string{"elapsed": elapsed.String()}))
}

// RunNow triggers one job by name synchronously, for the admin HTTP surface's
// manual-trigger endpoints (spec §9's cron-vs-HTTP split).
func (o *Orchestrator) RunNow(ctx context.Context, name string) error {
	for _, j := range o.jobs {
		if j.Name == name {
			return j.Run(ctx, o.tc)
		}
	}
	return errUnknownJob(name)
}

type errUnknownJob string

func (e errUnknownJob) Error() string { return "orchestrator: unknown job " + string(e) }
