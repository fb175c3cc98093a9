package scheduler

import (
	"context"
	"fmt"
	"time"

	"outreach_backend/platform/config"
	"outreach_backend/platform/logger"

	"github.com/hibiken/asynq"
)

// Periodic enqueues an outreach cycle every poll interval.
type Periodic struct {
	scheduler *asynq.Scheduler
	queue     string
	uniqueTTL time.Duration
	interval  time.Duration
	log       *logger.Logger
}

func NewPeriodic(cfg config.SchedulerConfig, interval time.Duration, log *logger.Logger) (*Periodic, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("poll interval must be positive")
	}
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	return &Periodic{
		scheduler: asynq.NewScheduler(opt, &asynq.SchedulerOpts{Location: time.UTC}),
		queue:     queueName(cfg),
		uniqueTTL: uniqueTTL(cfg),
		interval:  interval,
		log:       log,
	}, nil
}

func cronSpec(interval time.Duration) string {
	return "@every " + interval.String()
}

// Run registers the periodic task and blocks until ctx is cancelled.
func (p *Periodic) Run(ctx context.Context) error {
	task, err := NewCycleTask(CyclePayload{Trigger: TriggerPeriodic})
	if err != nil {
		return err
	}
	entryID, err := p.scheduler.Register(cronSpec(p.interval), task, cycleTaskOptions(p.queue, p.uniqueTTL)...)
	if err != nil {
		return fmt.Errorf("register periodic cycle: %w", err)
	}
	if err := p.scheduler.Start(); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	p.log.Info("periodic cycle scheduled", "entry_id", entryID, "interval", p.interval.String())

	<-ctx.Done()
	p.scheduler.Shutdown()
	return nil
}
