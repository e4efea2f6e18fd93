package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/bcgov/sbc-pay-sub002/internal/appctx"
	"github.com/bcgov/sbc-pay-sub002/internal/bus"
	"github.com/bcgov/sbc-pay-sub002/internal/reconciler"
	"github.com/bcgov/sbc-pay-sub002/internal/telemetry"
)

// FileSubscriber is the subset of bus.NATSFileSubscriber the router needs,
// narrowed to allow a fake in tests.
type FileSubscriber interface {
	Poll(ctx context.Context, batch int, handle bus.FileEventHandler) error
}

// FileEventRouter polls for file-uploaded events and dispatches each to the
// reconciler matching its FileType (spec §4.4, §4.7, §4.9). Unlike the
// ticked jobs in Orchestrator, reconciliation only runs when CAS, TDI17, or
// JV feedback files actually arrive.
type FileEventRouter struct {
	tc   *appctx.TaskContext
	sub  FileSubscriber
	log  zerolog.Logger
	stop chan struct{}
	done chan struct{}
}

// NewFileEventRouter builds a router over an already-connected subscriber.
func NewFileEventRouter(tc *appctx.TaskContext, sub FileSubscriber) *FileEventRouter {
	return &FileEventRouter{
		tc:   tc,
		sub:  sub,
		log:  tc.Log.With().Str("component", "file_event_router").Logger(),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// Start polls for file events every pollInterval until ctx is cancelled or
// Stop is called.
func (r *FileEventRouter) Start(ctx context.Context, pollInterval time.Duration) {
	go r.run(ctx, pollInterval)
}

// Stop signals the poll loop to exit and waits for it to finish.
func (r *FileEventRouter) Stop() {
	close(r.stop)
	<-r.done
}

func (r *FileEventRouter) run(ctx context.Context, pollInterval time.Duration) {
	defer close(r.done)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stop:
			return
		case <-ticker.C:
			if err := r.sub.Poll(ctx, 10, r.handle); err != nil {
				r.log.Error().Err(err).Msg("poll for file events failed")
			}
		}
	}
}

func (r *FileEventRouter) handle(ctx context.Context, payload bus.FileUploadedPayload) error {
	log := r.log.With().
		Str("file_type", payload.FileType).
		Str("file_name", payload.FileName).
		Logger()
	log.Info().Msg("processing file-upload event")

	job := "file_reconcile_" + payload.FileType
	if m := telemetry.Global; m != nil {
		m.RunsStarted.WithLabelValues(job).Inc()
	}
	start := time.Now()

	var err error
	switch payload.FileType {
	case "CAS":
		err = reconciler.RunCASReconciliation(ctx, r.tc, payload.Location, payload.FileName)
	case "TDI17":
		err = reconciler.RunTDI17Reconciliation(ctx, r.tc, payload.Location, payload.FileName)
	case "JV":
		err = reconciler.RunJVFeedbackReconciliation(ctx, r.tc, payload.Location, payload.FileName)
	default:
		err = fmt.Errorf("unknown file type %q for file %s", payload.FileType, payload.FileName)
	}

	if m := telemetry.Global; m != nil {
		m.RunDuration.WithLabelValues(job).Observe(time.Since(start).Seconds())
		if err != nil {
			m.RunsFailed.WithLabelValues(job).Inc()
		} else {
			m.RunsSucceeded.WithLabelValues(job).Inc()
		}
	}
	return err
}
