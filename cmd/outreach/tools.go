package main

import (
	"context"
	"fmt"
	"time"

	"outreach_backend/internal/archive"
	"outreach_backend/internal/outreach"
	"outreach_backend/internal/webhook"
	"outreach_backend/platform/config"
	"outreach_backend/platform/db"
	"outreach_backend/platform/httpkit"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the lead store and calendar migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			pool, err := connect(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer pool.Close()
			return db.RunMigrations(cmd.Context(), pool, log)
		},
	}
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an admin API token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			secret := cfg.GetAdminJWTSecret()
			if secret == "" {
				return fmt.Errorf("ADMIN_JWT_SECRET is not configured")
			}
			subject := viper.GetString("subject")
			token, err := httpkit.IssueToken(secret, subject, []string{httpkit.RoleAdmin}, viper.GetDuration("ttl"))
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(map[string]string{"subject": subject, "token": token})
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().String("subject", "operator", "token subject")
	cmd.Flags().Duration("ttl", 24*time.Hour, "token lifetime")
	_ = viper.BindPFlag("subject", cmd.Flags().Lookup("subject"))
	_ = viper.BindPFlag("ttl", cmd.Flags().Lookup("ttl"))
	return cmd
}

func webhookKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "webhook-key",
		Short: "Generate an intake API key and its WEBHOOK_API_KEY_HASH",
		RunE: func(cmd *cobra.Command, args []string) error {
			plaintext, hash, err := webhook.GenerateAPIKey()
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(map[string]string{"key": plaintext, "hash": hash})
			}
			fmt.Printf("key:  %s\n", plaintext)
			fmt.Printf("WEBHOOK_API_KEY_HASH=%s\n", hash)
			return nil
		},
	}
}

func fetchReport(ctx context.Context, cfg config.ArchiveConfig, key string) (*outreach.CycleReport, error) {
	store, err := archive.NewMinIOStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return archive.New(store).Fetch(ctx, key)
}
