package outreach

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"outreach_backend/internal/events"
	"outreach_backend/platform/apperr"
)

// Processing state keys.
const (
	StateKeyLastCycleAt = "last_cycle_at"
	StateKeyLastCycleID = "last_cycle_id"
)

// ErrCycleInProgress is returned when a cycle is already running.
var ErrCycleInProgress = apperr.Conflict("outreach cycle already in progress")

var errCycleLockLost = errors.New("cycle lock lost")

// Orchestrator runs the four stages once per cycle.
type Orchestrator struct {
	deps      *Deps
	newLeads  *NewLeadHandler
	replies   *ReplyHandler
	bookings  *BookingHandler
	followUps *FollowUpHandler
	lock      CycleLock
	archiver  Archiver

	runMu   sync.Mutex
	running bool
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithCycleLock adds a cross-process guard.
func WithCycleLock(lock CycleLock) Option {
	return func(o *Orchestrator) { o.lock = lock }
}

// WithArchiver stores every finished report.
func WithArchiver(a Archiver) Option {
	return func(o *Orchestrator) { o.archiver = a }
}

func NewOrchestrator(deps *Deps, opts ...Option) *Orchestrator {
	deps.normalize()
	o := &Orchestrator{
		deps:      deps,
		newLeads:  NewNewLeadHandler(deps),
		replies:   NewReplyHandler(deps),
		bookings:  NewBookingHandler(deps),
		followUps: NewFollowUpHandler(deps),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// FollowUps exposes the follow-up handler for schedule queries.
func (o *Orchestrator) FollowUps() *FollowUpHandler { return o.followUps }

func (o *Orchestrator) markRunning() bool {
	o.runMu.Lock()
	defer o.runMu.Unlock()
	if o.running {
		return false
	}
	o.running = true
	return true
}

func (o *Orchestrator) markComplete() {
	o.runMu.Lock()
	defer o.runMu.Unlock()
	o.running = false
}

type stage struct {
	name string
	run  func(context.Context) ([]Outcome, error)
	dest *[]Outcome
}

// RunOnce executes one cycle. Stage failures are recorded in the report and
// never stop sibling stages; the only errors are overlap and lock failures.
func (o *Orchestrator) RunOnce(ctx context.Context) (*CycleReport, error) {
	if !o.markRunning() {
		return nil, ErrCycleInProgress
	}
	defer o.markComplete()

	if o.lock != nil {
		ok, err := o.lock.TryLock(ctx)
		if err != nil {
			return nil, apperr.External("acquire cycle lock", err).WithOp("outreach.run_once")
		}
		if !ok {
			return nil, ErrCycleInProgress
		}
		defer func() {
			if err := o.lock.Unlock(context.WithoutCancel(ctx)); err != nil {
				o.deps.Log.Warn("failed to release cycle lock", "error", err)
			}
		}()
	}

	report := newCycleReport(uuid.NewString(), o.deps.now())
	log := o.deps.Log.WithCycleID(report.ID)
	log.Info("cycle started")

	if o.lock != nil {
		var stop func()
		ctx, stop = o.keepLock(ctx)
		defer stop()
	}

	settings := o.deps.Settings
	stages := []stage{
		{StageNewLeads, o.newLeads.Process, &report.NewLeads},
		{StageReplies, func(ctx context.Context) ([]Outcome, error) {
			return o.replies.Process(ctx, settings.ReplyLookbackHours)
		}, &report.Replies},
		{StageBookings, func(ctx context.Context) ([]Outcome, error) {
			return o.bookings.Process(ctx, settings.BookingLookbackHours)
		}, &report.Bookings},
		{StageFollowUps, o.followUps.Process, &report.FollowUps},
	}

	for _, s := range stages {
		if err := context.Cause(ctx); err != nil {
			report.addError(s.name, err)
			continue
		}
		outcomes, err := runStage(ctx, s)
		if outcomes != nil {
			*s.dest = outcomes
		}
		if err != nil {
			log.StageError(s.name, err)
			report.addError(s.name, err)
			continue
		}
		log.Info("stage complete", "stage", s.name, "count", len(outcomes))
	}

	report.finalize(o.deps.now())
	o.afterCycle(ctx, report)
	return report, nil
}

// keepLock renews the cycle lock in the background. The returned context is
// cancelled with errCycleLockLost when renewal fails.
func (o *Orchestrator) keepLock(ctx context.Context) (context.Context, func()) {
	cycleCtx, cancel := context.WithCancelCause(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := o.lock.Keep(cycleCtx); err != nil && cycleCtx.Err() == nil {
			o.deps.Log.Error("cycle lock lost, stopping cycle", "error", err)
			cancel(fmt.Errorf("%w: %v", errCycleLockLost, err))
		}
	}()
	return cycleCtx, func() {
		cancel(nil)
		<-done
	}
}

func runStage(ctx context.Context, s stage) (outcomes []Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("stage %s panicked: %v", s.name, r)
		}
	}()
	return s.run(ctx)
}

func (o *Orchestrator) afterCycle(ctx context.Context, report *CycleReport) {
	d := o.deps
	sum := report.Summary
	d.Log.CycleSummary(report.ID, sum.DurationSeconds, sum.TotalNewLeadsProcessed, sum.TotalRepliesProcessed,
		sum.TotalBookingsDetected, sum.TotalFollowUpsSent, sum.TotalErrors)

	bg := context.WithoutCancel(ctx)
	if err := d.Memory.SetState(bg, StateKeyLastCycleAt, report.FinishedAt.Format(time.RFC3339)); err != nil {
		d.Log.Warn("failed to store last cycle time", "error", err)
	}
	if err := d.Memory.SetState(bg, StateKeyLastCycleID, report.ID); err != nil {
		d.Log.Warn("failed to store last cycle id", "error", err)
	}

	d.publish(bg, events.CycleCompleted{
		BaseEvent:       events.NewBaseEvent(),
		CycleID:         report.ID,
		DurationSeconds: sum.DurationSeconds,
		NewLeads:        sum.TotalNewLeadsProcessed,
		Replies:         sum.TotalRepliesProcessed,
		Bookings:        sum.TotalBookingsDetected,
		FollowUps:       sum.TotalFollowUpsSent,
		Errors:          sum.TotalErrors,
	})

	if o.archiver != nil {
		if err := o.archiver.ArchiveCycleReport(bg, report); err != nil {
			d.Log.Warn("failed to archive cycle report", "cycle_id", report.ID, "error", err)
		}
	}
}

// RunContinuous runs cycles every interval until ctx is cancelled, then
// closes the memory store.
func (o *Orchestrator) RunContinuous(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return apperr.Validation("poll interval must be positive")
	}
	defer func() {
		if err := o.deps.Memory.Close(); err != nil {
			o.deps.Log.Warn("failed to close memory store", "error", err)
		}
	}()

	o.deps.Log.Info("continuous mode started", "interval", interval.String())
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			o.deps.Log.Info("continuous mode stopped")
			return nil
		case <-timer.C:
		}

		if _, err := o.RunOnce(ctx); err != nil {
			if errors.Is(err, ErrCycleInProgress) {
				o.deps.Log.Info("previous cycle still running, skipping")
			} else {
				o.deps.Log.Error("cycle failed", "error", err)
			}
		}
		timer.Reset(interval)
	}
}
