package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"outreach_backend/internal/outreach"

	"github.com/hibiken/asynq"
)

type fakeRunner struct {
	calls int
	err   error
}

func (r *fakeRunner) RunOnce(context.Context) (*outreach.CycleReport, error) {
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	return &outreach.CycleReport{ID: "cycle-1"}, nil
}

type testSchedulerConfig struct {
	url   string
	queue string
	ttl   time.Duration
}

func (c testSchedulerConfig) GetRedisURL() string            { return c.url }
func (c testSchedulerConfig) GetRedisTLSInsecure() bool      { return false }
func (c testSchedulerConfig) GetAsynqQueueName() string      { return c.queue }
func (c testSchedulerConfig) GetCycleLockTTL() time.Duration { return c.ttl }
func (c testSchedulerConfig) IsSchedulerEnabled() bool       { return c.url != "" }

func TestHandleCycleRunsOnce(t *testing.T) {
	runner := &fakeRunner{}
	w := newWorker(runner, nil)
	task, err := NewCycleTask(CyclePayload{Trigger: TriggerAPI})
	if err != nil {
		t.Fatalf("new task: %v", err)
	}

	if err := w.handleCycle(context.Background(), task); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if runner.calls != 1 {
		t.Fatalf("expected one cycle, got %d", runner.calls)
	}
}

func TestHandleCycleSkipsOverlap(t *testing.T) {
	runner := &fakeRunner{err: outreach.ErrCycleInProgress}
	w := newWorker(runner, nil)
	task, _ := NewCycleTask(CyclePayload{Trigger: TriggerPeriodic})

	if err := w.handleCycle(context.Background(), task); err != nil {
		t.Fatalf("expected overlap to be swallowed, got %v", err)
	}
}

func TestHandleCycleRejectsBadPayload(t *testing.T) {
	w := newWorker(&fakeRunner{}, nil)
	err := w.handleCycle(context.Background(), asynq.NewTask(TaskOutreachCycle, []byte("{")))
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected SkipRetry, got %v", err)
	}
}

func TestHandleCyclePropagatesFailures(t *testing.T) {
	boom := errors.New("lock unavailable")
	w := newWorker(&fakeRunner{err: boom}, nil)
	task, _ := NewCycleTask(CyclePayload{Trigger: TriggerCLI})
	if err := w.handleCycle(context.Background(), task); !errors.Is(err, boom) {
		t.Fatalf("expected runner error, got %v", err)
	}
}

func TestSchedulerConfigDefaults(t *testing.T) {
	cfg := testSchedulerConfig{}
	if queueName(cfg) != "default" || uniqueTTL(cfg) != defaultUniqueTTL {
		t.Fatalf("unexpected defaults %s %s", queueName(cfg), uniqueTTL(cfg))
	}
	cfg = testSchedulerConfig{queue: "outreach", ttl: time.Minute}
	if queueName(cfg) != "outreach" || uniqueTTL(cfg) != time.Minute {
		t.Fatalf("expected configured values")
	}
	if got := cronSpec(5 * time.Minute); got != "@every 5m0s" {
		t.Fatalf("unexpected cron spec %q", got)
	}
	if _, err := NewClient(cfg); err == nil {
		t.Fatalf("expected missing redis url to be rejected")
	}
}

func TestRedisClientOptParsesURL(t *testing.T) {
	opt, err := redisClientOpt("rediss://:secret@cache.internal:6380/2", true)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if opt.Addr != "cache.internal:6380" || opt.Password != "secret" || opt.DB != 2 {
		t.Fatalf("unexpected options %+v", opt)
	}
	if opt.TLSConfig == nil || !opt.TLSConfig.InsecureSkipVerify {
		t.Fatalf("expected insecure TLS config")
	}
}
