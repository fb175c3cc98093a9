package main

import (
	"context"
	"fmt"
	"time"

	apptrepo "outreach_backend/internal/appointments/repository"
	"outreach_backend/internal/archive"
	"outreach_backend/internal/decision"
	"outreach_backend/internal/email"
	"outreach_backend/internal/events"
	leadrepo "outreach_backend/internal/leads/repository"
	"outreach_backend/internal/memory"
	"outreach_backend/internal/notification"
	"outreach_backend/internal/notification/sse"
	"outreach_backend/internal/outreach"
	"outreach_backend/internal/scheduler"
	"outreach_backend/platform/ai/claude"
	"outreach_backend/platform/ai/moonshot"
	"outreach_backend/platform/config"
	"outreach_backend/platform/db"
	"outreach_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/viper"
	"google.golang.org/adk/model"
)

// app is the composition root shared by every command that touches the funnel.
type app struct {
	cfg    *config.Config
	log    *logger.Logger
	pool   *pgxpool.Pool
	memory memory.Store
	bus    *events.InMemoryBus
	leads  *leadrepo.Repository
	texts  *outreach.Copy
	sse    *sse.Service
	notify *notification.Module
	deps   *outreach.Deps

	closers []func()
}

func loadConfig() (*config.Config, *logger.Logger, error) {
	cfg, err := config.LoadFile(viper.GetString("env-file"))
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, logger.New(cfg.Env), nil
}

func connect(ctx context.Context, cfg *config.Config, log *logger.Logger) (*pgxpool.Pool, error) {
	var pool *pgxpool.Pool
	err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	return pool, nil
}

func bootstrap(ctx context.Context) (*app, error) {
	cfg, log, err := loadConfig()
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, log: log}
	if err := a.init(ctx); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *app) init(ctx context.Context) error {
	cfg, log := a.cfg, a.log

	pool, err := connect(ctx, cfg, log)
	if err != nil {
		return err
	}
	a.pool = pool
	a.closers = append(a.closers, pool.Close)

	mem, err := openMemory(ctx, cfg, pool, log)
	if err != nil {
		return err
	}
	a.memory = mem
	a.closers = append(a.closers, func() {
		if err := mem.Close(); err != nil {
			log.Warn("failed to close memory store", "error", err)
		}
	})

	texts, err := outreach.LoadCopy(cfg.GetFromName())
	if err != nil {
		return fmt.Errorf("load copy: %w", err)
	}
	a.texts = texts

	decider, err := newDecider(cfg, mem, log)
	if err != nil {
		return err
	}

	sender := email.NewSender(cfg)

	a.sse = sse.New(log)
	a.closers = append(a.closers, a.sse.Close)

	// Registered after the feed so pending handlers drain before it closes.
	a.bus = events.NewInMemoryBus(log)
	a.closers = append(a.closers, a.bus.Wait)

	a.notify = notification.New(sender, cfg, texts, log)
	a.notify.SetSSE(a.sse)
	a.notify.RegisterHandlers(a.bus)

	a.leads = leadrepo.New(pool)
	a.deps = &outreach.Deps{
		Leads:    a.leads,
		Channel:  email.Channel{Sender: sender, Inbox: email.NewInbox(cfg)},
		Calendar: apptrepo.New(pool),
		Decider:  decider,
		Memory:   mem,
		Bus:      a.bus,
		Copy:     texts,
		Settings: outreach.SettingsFromConfig(cfg),
		Log:      log,
	}
	return nil
}

// cycleOptions adds the redis lock and the report archive when configured.
func (a *app) cycleOptions(ctx context.Context) ([]outreach.Option, error) {
	var opts []outreach.Option

	if a.cfg.IsSchedulerEnabled() {
		lock, err := scheduler.NewRedisLock(a.cfg)
		if err != nil {
			return nil, fmt.Errorf("init cycle lock: %w", err)
		}
		a.closers = append(a.closers, func() { _ = lock.Close() })
		opts = append(opts, outreach.WithCycleLock(lock))
	}

	if a.cfg.IsMinIOEnabled() {
		var store *archive.MinIOStore
		err := withRetry(ctx, a.log, "ensure cycle report bucket", 5, 2*time.Second, func() error {
			s, err := archive.NewMinIOStore(ctx, a.cfg)
			if err != nil {
				return err
			}
			store = s
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("init report archive: %w", err)
		}
		opts = append(opts, outreach.WithArchiver(archive.New(store)))
	} else {
		a.log.Warn("MINIO_ENDPOINT not configured; cycle reports are not archived")
	}

	return opts, nil
}

func (a *app) orchestrator(ctx context.Context) (*outreach.Orchestrator, error) {
	opts, err := a.cycleOptions(ctx)
	if err != nil {
		return nil, err
	}
	return outreach.NewOrchestrator(a.deps, opts...), nil
}

// close runs closers in reverse order.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func openMemory(ctx context.Context, cfg config.MemoryConfig, pool *pgxpool.Pool, log *logger.Logger) (memory.Store, error) {
	switch cfg.GetMemoryDriver() {
	case "postgres":
		store, err := memory.NewPostgres(ctx, pool, log)
		if err != nil {
			return nil, fmt.Errorf("open postgres memory: %w", err)
		}
		return store, nil
	default:
		store, err := memory.OpenSQLite(ctx, cfg.GetMemoryDBPath(), log)
		if err != nil {
			return nil, fmt.Errorf("open sqlite memory: %w", err)
		}
		return store, nil
	}
}

func newDecider(cfg *config.Config, history decision.HistorySource, log *logger.Logger) (*decision.Client, error) {
	var llm model.LLM
	switch cfg.GetAIProvider() {
	case "moonshot":
		llm = moonshot.NewModel(moonshot.Config{
			APIKey:    cfg.GetMoonshotAPIKey(),
			Model:     cfg.GetMoonshotModel(),
			MaxTokens: cfg.GetDecisionMaxTokens(),
		})
	default:
		llm = claude.NewModel(claude.Config{
			APIKey:    cfg.GetAnthropicAPIKey(),
			Model:     cfg.GetAnthropicModel(),
			MaxTokens: cfg.GetDecisionMaxTokens(),
		})
	}

	completer, err := decision.NewAgentCompleter(llm, history, cfg.GetFromName(), log)
	if err != nil {
		return nil, fmt.Errorf("init decision agents: %w", err)
	}
	return decision.NewClient(completer, decision.Config{
		Timeout:     cfg.GetDecisionTimeout(),
		BookingLink: cfg.GetBookingLink(),
		FromName:    cfg.GetFromName(),
	}, log), nil
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return fmt.Errorf("%s failed after %d attempts: %w", name, attempts, lastErr)
}
