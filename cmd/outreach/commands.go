package main

import (
	"context"
	"fmt"
	"time"

	"outreach_backend/internal/outreach"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// withApp bootstraps the composition root for one command and tears it down after.
func withApp(ctx context.Context, fn func(ctx context.Context, a *app) error) error {
	a, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer a.close()
	return fn(ctx, a)
}

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run cycles continuously until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				orch, err := a.orchestrator(ctx)
				if err != nil {
					return err
				}
				interval := viper.GetDuration("interval")
				if interval == 0 {
					interval = a.cfg.GetPollInterval()
				}
				return orch.RunContinuous(ctx, interval)
			})
		},
	}
	cmd.Flags().Duration("interval", 0, "time between cycles (defaults to POLL_INTERVAL)")
	_ = viper.BindPFlag("interval", cmd.Flags().Lookup("interval"))
	return cmd
}

func onceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "once",
		Short: "Run a single cycle and print its report",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				orch, err := a.orchestrator(ctx)
				if err != nil {
					return err
				}
				report, err := orch.RunOnce(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(report)
				}
				printCycleReport(report)
				return nil
			})
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the pipeline summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				summary, err := outreach.NewInsights(a.deps).PipelineSummary(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(summary)
				}
				printPipelineSummary(summary)
				return nil
			})
		},
	}
}

func scheduleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schedule",
		Short: "List upcoming follow-ups",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				entries, err := outreach.NewFollowUpHandler(a.deps).Schedule(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(entries)
				}
				printSchedule(entries)
				return nil
			})
		},
	}
}

func leadCmd() *cobra.Command {
	lead := &cobra.Command{Use: "lead", Short: "Inspect a lead and run post-call steps"}
	lead.AddCommand(
		&cobra.Command{
			Use:   "show <email>",
			Short: "Show a lead with its recent actions",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
					status, err := outreach.NewInsights(a.deps).LeadStatus(ctx, args[0])
					if err != nil {
						return err
					}
					if viper.GetBool("json") {
						return printJSON(status)
					}
					printLeadStatus(status)
					return nil
				})
			},
		},
		qualificationCmd("complete-call", "Mark the diagnostic call as held", (*outreach.Qualifier).CompleteCall),
		qualificationCmd("qualify", "Score the lead after the call", (*outreach.Qualifier).Qualify),
		qualificationCmd("scorecard", "Send the scorecard to a qualified lead", (*outreach.Qualifier).DeliverScorecard),
	)
	return lead
}

type qualificationStep func(q *outreach.Qualifier, ctx context.Context, leadEmail string) (outreach.Outcome, error)

func qualificationCmd(use, short string, step qualificationStep) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <email>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				out, err := step(outreach.NewQualifier(a.deps), ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(out)
				}
				printOutcomes("Result", []outreach.Outcome{out})
				return nil
			})
		},
	}
}

func reportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "report <key>",
		Short: "Fetch an archived cycle report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			if !cfg.IsMinIOEnabled() {
				return fmt.Errorf("MINIO_ENDPOINT is not configured")
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			report, err := fetchReport(ctx, cfg, args[0])
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(report)
			}
			printCycleReport(report)
			return nil
		},
	}
}
