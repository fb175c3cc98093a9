package scheduler

import (
	"context"
	"errors"
	"fmt"

	"outreach_backend/internal/outreach"
	"outreach_backend/platform/config"
	"outreach_backend/platform/logger"

	"github.com/hibiken/asynq"
)

// CycleRunner runs one outreach cycle.
type CycleRunner interface {
	RunOnce(ctx context.Context) (*outreach.CycleReport, error)
}

type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	runner CycleRunner
	log    *logger.Logger
}

// NewWorker builds an asynq server with concurrency 1 so queued cycles never overlap.
func NewWorker(cfg config.SchedulerConfig, runner CycleRunner, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: 1,
		Queues: map[string]int{
			queueName(cfg): 1,
		},
	})

	w := newWorker(runner, log)
	w.server = server
	return w, nil
}

func newWorker(runner CycleRunner, log *logger.Logger) *Worker {
	if log == nil {
		log = logger.Discard()
	}
	w := &Worker{mux: asynq.NewServeMux(), runner: runner, log: log}
	w.mux.HandleFunc(TaskOutreachCycle, w.handleCycle)
	return w
}

func (w *Worker) handleCycle(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseCyclePayload(task)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	report, err := w.runner.RunOnce(ctx)
	if errors.Is(err, outreach.ErrCycleInProgress) {
		w.log.Info("queued cycle skipped, another cycle is running", "trigger", payload.Trigger)
		return nil
	}
	if err != nil {
		return err
	}
	w.log.Info("queued cycle finished",
		"trigger", payload.Trigger,
		"cycle_id", report.ID,
		"errors", report.Summary.TotalErrors,
	)
	return nil
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}
