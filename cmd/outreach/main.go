package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "outreach",
	Short: "Lead outreach funnel",
	Long: `Drives inbound leads from form submission to a booked diagnostic call.

Each cycle runs four stages in order: new leads get a booking invite, replies
are triaged, calendar bookings are detected, and due follow-ups go out. After
the call an operator completes, qualifies and delivers the scorecard by hand.

Configuration comes from the environment (see .env.example). CLI options can
also be set as OUTREACH_<FLAG> variables.`,
	SilenceUsage: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("OUTREACH")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().String("env-file", "", "env file to load before reading configuration")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	_ = viper.BindPFlag("env-file", rootCmd.PersistentFlags().Lookup("env-file"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func registerCommands() {
	rootCmd.AddCommand(
		runCmd(),
		onceCmd(),
		statusCmd(),
		scheduleCmd(),
		leadCmd(),
		serveCmd(),
		workerCmd(),
		migrateCmd(),
		reportCmd(),
		tokenCmd(),
		webhookKeyCmd(),
	)
}
