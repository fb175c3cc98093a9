package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	apphttp "outreach_backend/internal/http"
	"outreach_backend/internal/http/router"
	"outreach_backend/internal/outreach"
	outreachhandler "outreach_backend/internal/outreach/handler"
	"outreach_backend/internal/scheduler"
	"outreach_backend/internal/webhook"
	"outreach_backend/platform/validator"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the intake webhook and the admin API",
		Long: `Serves the intake webhook and the admin API.

With --worker the process also consumes queued cycles and enqueues one every
POLL_INTERVAL. Without a worker (or without REDIS_URL) POST /admin/cycles runs
the cycle inside the request.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				return serve(ctx, a, viper.GetBool("worker"))
			})
		},
	}
	cmd.Flags().Bool("worker", false, "also run the cycle worker and the periodic scheduler")
	_ = viper.BindPFlag("worker", cmd.Flags().Lookup("worker"))
	return cmd
}

func workerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Consume queued cycles and enqueue one every POLL_INTERVAL",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				orch, err := a.orchestrator(ctx)
				if err != nil {
					return err
				}
				g, gctx := errgroup.WithContext(ctx)
				if err := startWorker(gctx, g, a, orch); err != nil {
					return err
				}
				return g.Wait()
			})
		},
	}
}

func serve(ctx context.Context, a *app, withWorker bool) error {
	orch, err := a.orchestrator(ctx)
	if err != nil {
		return err
	}

	var enqueuer outreachhandler.CycleEnqueuer
	if a.cfg.IsSchedulerEnabled() {
		client, err := scheduler.NewClient(a.cfg)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() { _ = client.Close() })
		enqueuer = client
	}

	engine := router.New(&apphttp.App{
		Config:   a.cfg,
		Logger:   a.log,
		Health:   a.pool,
		EventBus: a.bus,
		Modules: []apphttp.Module{
			webhook.NewModule(a.leads, a.cfg, a.bus, validator.New(), a.log),
			outreachhandler.NewModule(
				outreach.NewInsights(a.deps),
				orch.FollowUps(),
				outreach.NewQualifier(a.deps),
				orch,
				enqueuer,
				a.log,
			),
			a.notify,
		},
	})

	srv := &http.Server{
		Addr:              a.cfg.GetHTTPAddr(),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.log.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.log.Info("shutdown signal received, gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		// SSE streams stay open until their clients go away.
		a.sse.Close()
		return srv.Shutdown(shutdownCtx)
	})

	if withWorker {
		if err := startWorker(gctx, g, a, orch); err != nil {
			return err
		}
	}

	return g.Wait()
}

// startWorker adds the asynq worker and the periodic enqueuer to g.
func startWorker(ctx context.Context, g *errgroup.Group, a *app, orch *outreach.Orchestrator) error {
	if !a.cfg.IsSchedulerEnabled() {
		a.log.Warn("REDIS_URL not configured; running cycles in-process")
		g.Go(func() error { return orch.RunContinuous(ctx, a.cfg.GetPollInterval()) })
		return nil
	}

	worker, err := scheduler.NewWorker(a.cfg, orch, a.log)
	if err != nil {
		return err
	}
	periodic, err := scheduler.NewPeriodic(a.cfg, a.cfg.GetPollInterval(), a.log)
	if err != nil {
		return err
	}

	g.Go(func() error {
		worker.Run(ctx)
		return nil
	})
	g.Go(func() error { return periodic.Run(ctx) })
	return nil
}
