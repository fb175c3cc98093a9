package outreach

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	apptrepo "outreach_backend/internal/appointments/repository"
	"outreach_backend/internal/events"
	"outreach_backend/internal/leads/domain"
	"outreach_backend/platform/apperr"
)

type fakeArchiver struct {
	mu      sync.Mutex
	reports []*CycleReport
}

func (a *fakeArchiver) ArchiveCycleReport(_ context.Context, r *CycleReport) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reports = append(a.reports, r)
	return nil
}

type fakeLock struct {
	acquire  bool
	err      error
	unlocked int
	lose     chan struct{}
}

func (l *fakeLock) TryLock(context.Context) (bool, error) { return l.acquire, l.err }

func (l *fakeLock) Keep(ctx context.Context) error {
	select {
	case <-l.lose:
		return errBoom
	case <-ctx.Done():
		return nil
	}
}

func (l *fakeLock) Unlock(context.Context) error {
	l.unlocked++
	return nil
}

func TestRunOnceIsolatesStageFailures(t *testing.T) {
	h := newHarness(t, newSubmission())
	h.channel.inboxErr = errBoom
	archiver := &fakeArchiver{}
	bus := events.NewInMemoryBus(nil)
	var (
		mu        sync.Mutex
		completed []events.CycleCompleted
	)
	bus.Subscribe(events.CycleCompleted{}.EventName(), events.HandlerFunc(func(_ context.Context, e events.Event) error {
		mu.Lock()
		defer mu.Unlock()
		completed = append(completed, e.(events.CycleCompleted))
		return nil
	}))
	h.deps.Bus = bus
	ctx := context.Background()

	report, err := NewOrchestrator(h.deps, WithArchiver(archiver)).RunOnce(ctx)
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	bus.Wait()

	if len(report.NewLeads) != 1 || report.NewLeads[0].Action != OutcomeBookingInviteSent {
		t.Fatalf("expected new lead stage to run, got %+v", report.NewLeads)
	}
	if len(report.Errors) != 1 || report.Errors[0].Stage != StageReplies {
		t.Fatalf("expected one replies error, got %+v", report.Errors)
	}
	if report.Replies == nil || len(report.Replies) != 0 {
		t.Fatalf("expected empty replies list, got %+v", report.Replies)
	}
	if report.Summary.TotalErrors != 1 || report.Summary.TotalNewLeadsProcessed != 1 {
		t.Fatalf("unexpected summary %+v", report.Summary)
	}

	id, ok, err := h.memory.GetState(ctx, StateKeyLastCycleID)
	if err != nil || !ok || id != report.ID {
		t.Fatalf("expected last cycle id %s, got %q %v %v", report.ID, id, ok, err)
	}
	if len(archiver.reports) != 1 || archiver.reports[0].ID != report.ID {
		t.Fatalf("expected report to be archived")
	}
	if len(completed) != 1 || completed[0].CycleID != report.ID || completed[0].Errors != 1 {
		t.Fatalf("expected one cycle completed event, got %+v", completed)
	}
}

func TestRunOnceRepeatedCycleSendsNothingNew(t *testing.T) {
	h := newHarness(t, newSubmission())
	o := NewOrchestrator(h.deps)
	ctx := context.Background()

	if _, err := o.RunOnce(ctx); err != nil {
		t.Fatalf("first cycle: %v", err)
	}
	h.clock.Advance(time.Minute)
	report, err := o.RunOnce(ctx)
	if err != nil {
		t.Fatalf("second cycle: %v", err)
	}
	if h.channel.sendCount() != 1 {
		t.Fatalf("expected a single send across cycles, got %d", h.channel.sendCount())
	}
	if report.Summary.TotalNewLeadsProcessed != 0 || report.Summary.TotalFollowUpsSent != 0 {
		t.Fatalf("expected an idle second cycle, got %+v", report.Summary)
	}
}

func TestRunOnceRejectsOverlap(t *testing.T) {
	h := newHarness(t)
	o := NewOrchestrator(h.deps)
	if !o.markRunning() {
		t.Fatalf("expected to mark running")
	}
	if _, err := o.RunOnce(context.Background()); !errors.Is(err, ErrCycleInProgress) {
		t.Fatalf("expected ErrCycleInProgress, got %v", err)
	}
	o.markComplete()
	if _, err := o.RunOnce(context.Background()); err != nil {
		t.Fatalf("expected cycle after completion, got %v", err)
	}
}

func TestRunOnceHonoursCycleLock(t *testing.T) {
	h := newHarness(t)
	held := &fakeLock{acquire: false}
	_, err := NewOrchestrator(h.deps, WithCycleLock(held)).RunOnce(context.Background())
	if !errors.Is(err, ErrCycleInProgress) || !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict when lock is held elsewhere, got %v", err)
	}

	broken := &fakeLock{err: errBoom}
	_, err = NewOrchestrator(h.deps, WithCycleLock(broken)).RunOnce(context.Background())
	if !apperr.Is(err, apperr.KindExternal) {
		t.Fatalf("expected external error, got %v", err)
	}

	free := &fakeLock{acquire: true}
	if _, err := NewOrchestrator(h.deps, WithCycleLock(free)).RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if free.unlocked != 1 {
		t.Fatalf("expected lock release, got %d", free.unlocked)
	}
}

// stallingCalendar drops the cycle lock mid-cycle and waits for the cycle to notice.
type stallingCalendar struct {
	*fakeCalendar
	lose chan struct{}
}

func (c *stallingCalendar) RecentEvents(ctx context.Context, _ float64) ([]apptrepo.Event, error) {
	close(c.lose)
	<-ctx.Done()
	return nil, context.Cause(ctx)
}

func TestRunOnceStopsWhenCycleLockIsLost(t *testing.T) {
	h := newHarness(t, leadIn(domain.StateBookingInviteSent))
	lost := make(chan struct{})
	h.deps.Calendar = &stallingCalendar{fakeCalendar: h.calendar, lose: lost}
	lock := &fakeLock{acquire: true, lose: lost}

	report, err := NewOrchestrator(h.deps, WithCycleLock(lock)).RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	stages := map[string]string{}
	for _, e := range report.Errors {
		stages[e.Stage] = e.Error
	}
	if !strings.Contains(stages[StageFollowUps], errCycleLockLost.Error()) {
		t.Fatalf("expected follow-ups skipped after losing the lock, got %+v", report.Errors)
	}
	if _, ok := stages[StageBookings]; !ok {
		t.Fatalf("expected the stalled booking stage to report an error, got %+v", report.Errors)
	}
	if h.decider.count("follow_up") != 0 || h.channel.sendCount() != 0 {
		t.Fatalf("expected no follow-up work after the lock was lost")
	}
	if lock.unlocked != 1 {
		t.Fatalf("expected lock release, got %d", lock.unlocked)
	}
}

func TestRunOnceCancelledContextRecordsErrors(t *testing.T) {
	h := newHarness(t, newSubmission())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := NewOrchestrator(h.deps).RunOnce(ctx)
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if len(report.Errors) != 4 || h.channel.sendCount() != 0 {
		t.Fatalf("expected every stage skipped, got %+v", report.Errors)
	}
}

func TestRunContinuousValidatesInterval(t *testing.T) {
	h := newHarness(t)
	err := NewOrchestrator(h.deps).RunContinuous(context.Background(), 0)
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestRunContinuousStopsOnCancel(t *testing.T) {
	h := newHarness(t, newSubmission())
	archiver := &fakeArchiver{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- NewOrchestrator(h.deps, WithArchiver(archiver)).RunContinuous(ctx, time.Hour)
	}()

	deadline := time.After(5 * time.Second)
	for {
		archiver.mu.Lock()
		n := len(archiver.reports)
		archiver.mu.Unlock()
		if n > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for the first cycle")
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run continuous: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("continuous mode did not stop")
	}
}
