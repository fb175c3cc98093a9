// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"outreach_backend/platform/apperr"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
	GetDatabaseMaxConns() int32
}

// MemoryConfig selects the ledger / conversation log backend.
type MemoryConfig interface {
	GetMemoryDriver() string
	GetMemoryDBPath() string
}

// OutreachConfig provides funnel timing and sender identity.
type OutreachConfig interface {
	GetPollInterval() time.Duration
	GetFollowUpHours() []int
	GetMaxFollowUps() int
	GetMinHoursBetweenEmails() float64
	GetReplyLookbackHours() float64
	GetBookingLookbackHours() float64
	GetAnalyzingRetryAfter() time.Duration
	GetBookingLink() string
	GetFromName() string
	GetFromEmail() string
	GetEscalationEmail() string
}

// DecisionConfig provides settings for the external reasoning service.
type DecisionConfig interface {
	GetAIProvider() string
	GetAnthropicAPIKey() string
	GetAnthropicModel() string
	GetMoonshotAPIKey() string
	GetMoonshotModel() string
	GetDecisionTimeout() time.Duration
	GetDecisionMaxTokens() int64
}

// NotificationConfig provides the operator notification settings.
type NotificationConfig interface {
	GetEscalationEmail() string
	GetFromName() string
}

// EmailConfig provides SMTP settings for outbound mail.
type EmailConfig interface {
	GetEmailEnabled() bool
	GetSMTPHost() string
	GetSMTPPort() int
	GetSMTPUsername() string
	GetSMTPPassword() string
	GetFromName() string
	GetFromEmail() string
}

// IMAPConfig provides settings for the inbound reply mailbox.
type IMAPConfig interface {
	GetIMAPHost() string
	GetIMAPPort() int
	GetIMAPUsername() string
	GetIMAPPassword() string
	GetIMAPFolder() string
	IsIMAPEnabled() bool
}

// SchedulerConfig provides settings for asynq and redis.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetCycleLockTTL() time.Duration
	IsSchedulerEnabled() bool
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetAdminJWTSecret() string
}

// WebhookConfig provides settings for the lead intake webhook.
type WebhookConfig interface {
	GetWebhookAPIKeyHash() string
	GetPhoneDefaultRegion() string
}

// ArchiveConfig provides settings for cycle report archiving to MinIO.
type ArchiveConfig interface {
	GetMinIOEndpoint() string
	GetMinIOAccessKey() string
	GetMinIOSecretKey() string
	GetMinIOUseSSL() bool
	GetMinioBucketCycleReports() string
	IsMinIOEnabled() bool
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env                     string
	HTTPAddr                string
	DatabaseURL             string
	DatabaseMaxConns        int32
	MemoryDriver            string
	MemoryDBPath            string
	PollInterval            time.Duration
	FollowUpHours           []int
	MaxFollowUps            int
	MinHoursBetweenEmails   float64
	ReplyLookbackHours      float64
	BookingLookbackHours    float64
	AnalyzingRetryAfter     time.Duration
	BookingLink             string
	FromName                string
	FromEmail               string
	EscalationEmail         string
	AIProvider              string
	AnthropicAPIKey         string
	AnthropicModel          string
	MoonshotAPIKey          string
	MoonshotModel           string
	DecisionTimeout         time.Duration
	DecisionMaxTokens       int64
	EmailEnabled            bool
	SMTPHost                string
	SMTPPort                int
	SMTPUsername            string
	SMTPPassword            string
	IMAPHost                string
	IMAPPort                int
	IMAPUsername            string
	IMAPPassword            string
	IMAPFolder              string
	RedisURL                string
	RedisTLSInsecure        bool
	AsynqQueueName          string
	CycleLockTTL            time.Duration
	CORSAllowAll            bool
	CORSOrigins             []string
	AdminJWTSecret          string
	WebhookAPIKeyHash       string
	PhoneDefaultRegion      string
	MinIOEndpoint           string
	MinIOAccessKey          string
	MinIOSecretKey          string
	MinIOUseSSL             bool
	MinioBucketCycleReports string
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string     { return c.DatabaseURL }
func (c *Config) GetDatabaseMaxConns() int32 { return c.DatabaseMaxConns }

// MemoryConfig implementation
func (c *Config) GetMemoryDriver() string { return c.MemoryDriver }
func (c *Config) GetMemoryDBPath() string { return c.MemoryDBPath }

// OutreachConfig implementation
func (c *Config) GetPollInterval() time.Duration        { return c.PollInterval }
func (c *Config) GetFollowUpHours() []int               { return c.FollowUpHours }
func (c *Config) GetMaxFollowUps() int                  { return c.MaxFollowUps }
func (c *Config) GetMinHoursBetweenEmails() float64     { return c.MinHoursBetweenEmails }
func (c *Config) GetReplyLookbackHours() float64        { return c.ReplyLookbackHours }
func (c *Config) GetBookingLookbackHours() float64      { return c.BookingLookbackHours }
func (c *Config) GetAnalyzingRetryAfter() time.Duration { return c.AnalyzingRetryAfter }
func (c *Config) GetBookingLink() string                { return c.BookingLink }
func (c *Config) GetFromName() string                   { return c.FromName }
func (c *Config) GetFromEmail() string                  { return c.FromEmail }
func (c *Config) GetEscalationEmail() string            { return c.EscalationEmail }

// DecisionConfig implementation
func (c *Config) GetAIProvider() string             { return c.AIProvider }
func (c *Config) GetAnthropicAPIKey() string        { return c.AnthropicAPIKey }
func (c *Config) GetAnthropicModel() string         { return c.AnthropicModel }
func (c *Config) GetMoonshotAPIKey() string         { return c.MoonshotAPIKey }
func (c *Config) GetMoonshotModel() string          { return c.MoonshotModel }
func (c *Config) GetDecisionTimeout() time.Duration { return c.DecisionTimeout }
func (c *Config) GetDecisionMaxTokens() int64       { return c.DecisionMaxTokens }

// EmailConfig implementation
func (c *Config) GetEmailEnabled() bool   { return c.EmailEnabled }
func (c *Config) GetSMTPHost() string     { return c.SMTPHost }
func (c *Config) GetSMTPPort() int        { return c.SMTPPort }
func (c *Config) GetSMTPUsername() string { return c.SMTPUsername }
func (c *Config) GetSMTPPassword() string { return c.SMTPPassword }

// IMAPConfig implementation
func (c *Config) GetIMAPHost() string     { return c.IMAPHost }
func (c *Config) GetIMAPPort() int        { return c.IMAPPort }
func (c *Config) GetIMAPUsername() string { return c.IMAPUsername }
func (c *Config) GetIMAPPassword() string { return c.IMAPPassword }
func (c *Config) GetIMAPFolder() string   { return c.IMAPFolder }
func (c *Config) IsIMAPEnabled() bool     { return c.IMAPHost != "" && c.IMAPUsername != "" }

// SchedulerConfig implementation
func (c *Config) GetRedisURL() string            { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool      { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string      { return c.AsynqQueueName }
func (c *Config) GetCycleLockTTL() time.Duration { return c.CycleLockTTL }
func (c *Config) IsSchedulerEnabled() bool       { return c.RedisURL != "" }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string       { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool     { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string  { return c.CORSOrigins }
func (c *Config) GetAdminJWTSecret() string { return c.AdminJWTSecret }

// WebhookConfig implementation
func (c *Config) GetWebhookAPIKeyHash() string  { return c.WebhookAPIKeyHash }
func (c *Config) GetPhoneDefaultRegion() string { return c.PhoneDefaultRegion }

// ArchiveConfig implementation
func (c *Config) GetMinIOEndpoint() string           { return c.MinIOEndpoint }
func (c *Config) GetMinIOAccessKey() string          { return c.MinIOAccessKey }
func (c *Config) GetMinIOSecretKey() string          { return c.MinIOSecretKey }
func (c *Config) GetMinIOUseSSL() bool               { return c.MinIOUseSSL }
func (c *Config) GetMinioBucketCycleReports() string { return c.MinioBucketCycleReports }
func (c *Config) IsMinIOEnabled() bool               { return c.MinIOEndpoint != "" }

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:4200"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	var env envReader
	followUpHours, err := parseIntList(getEnv("FOLLOW_UP_HOURS", "24,72,168"))
	if err != nil {
		env.fail("FOLLOW_UP_HOURS", err)
	}

	cfg := &Config{
		Env:                     getEnv("APP_ENV", "development"),
		HTTPAddr:                getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:             getEnv("DATABASE_URL", ""),
		DatabaseMaxConns:        int32(env.int("DATABASE_MAX_CONNS", "10")),
		MemoryDriver:            strings.ToLower(getEnv("MEMORY_DRIVER", "sqlite")),
		MemoryDBPath:            getEnv("MEMORY_DB_PATH", "agent_memory.db"),
		PollInterval:            env.duration("POLL_INTERVAL", "300s"),
		FollowUpHours:           followUpHours,
		MaxFollowUps:            env.int("MAX_FOLLOW_UPS", "3"),
		MinHoursBetweenEmails:   env.float("MIN_HOURS_BETWEEN_EMAILS", "12"),
		ReplyLookbackHours:      env.float("REPLY_LOOKBACK_HOURS", "6"),
		BookingLookbackHours:    env.float("BOOKING_LOOKBACK_HOURS", "24"),
		AnalyzingRetryAfter:     env.duration("ANALYZING_RETRY_AFTER", "1h"),
		BookingLink:             getEnv("BOOKING_LINK", ""),
		FromName:                getEnv("FROM_NAME", "BizDeedz"),
		FromEmail:               getEnv("FROM_EMAIL", ""),
		EscalationEmail:         getEnv("ESCALATION_EMAIL", ""),
		AIProvider:              strings.ToLower(getEnv("AI_PROVIDER", "anthropic")),
		AnthropicAPIKey:         getEnv("ANTHROPIC_API_KEY", ""),
		AnthropicModel:          getEnv("ANTHROPIC_MODEL", "claude-sonnet-4-20250514"),
		MoonshotAPIKey:          getEnv("MOONSHOT_API_KEY", ""),
		MoonshotModel:           getEnv("MOONSHOT_MODEL", "kimi-k2.5"),
		DecisionTimeout:         env.duration("DECISION_TIMEOUT", "90s"),
		DecisionMaxTokens:       env.int64("DECISION_MAX_TOKENS", "4096"),
		EmailEnabled:            strings.EqualFold(getEnv("EMAIL_ENABLED", "true"), "true"),
		SMTPHost:                getEnv("SMTP_HOST", ""),
		SMTPPort:                env.int("SMTP_PORT", "587"),
		SMTPUsername:            getEnv("SMTP_USERNAME", ""),
		SMTPPassword:            getEnv("SMTP_PASSWORD", ""),
		IMAPHost:                getEnv("IMAP_HOST", ""),
		IMAPPort:                env.int("IMAP_PORT", "993"),
		IMAPUsername:            getEnv("IMAP_USERNAME", ""),
		IMAPPassword:            getEnv("IMAP_PASSWORD", ""),
		IMAPFolder:              getEnv("IMAP_FOLDER", "INBOX"),
		RedisURL:                getEnv("REDIS_URL", ""),
		RedisTLSInsecure:        strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueueName:          getEnv("ASYNQ_QUEUE", "outreach"),
		CycleLockTTL:            env.duration("CYCLE_LOCK_TTL", "30m"),
		CORSAllowAll:            corsAllowAll,
		CORSOrigins:             corsOrigins,
		AdminJWTSecret:          getEnv("ADMIN_JWT_SECRET", ""),
		WebhookAPIKeyHash:       getEnv("WEBHOOK_API_KEY_HASH", ""),
		PhoneDefaultRegion:      strings.ToUpper(getEnv("PHONE_DEFAULT_REGION", "US")),
		MinIOEndpoint:           getEnv("MINIO_ENDPOINT", ""),
		MinIOAccessKey:          getEnv("MINIO_ACCESS_KEY", ""),
		MinIOSecretKey:          getEnv("MINIO_SECRET_KEY", ""),
		MinIOUseSSL:             strings.EqualFold(getEnv("MINIO_USE_SSL", "false"), "true"),
		MinioBucketCycleReports: getEnv("MINIO_BUCKET_CYCLE_REPORTS", "outreach-cycle-reports"),
	}

	if err := env.err(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFile reads an env file into the environment before Load.
// Variables already set in the environment win.
func LoadFile(path string) (*Config, error) {
	if path != "" {
		if err := godotenv.Load(path); err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}
	return Load()
}

// Validate reports the first missing or inconsistent setting.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return apperr.Config("DATABASE_URL is required")
	}
	if c.FromEmail == "" {
		return apperr.Config("FROM_EMAIL is required")
	}
	if c.BookingLink == "" {
		return apperr.Config("BOOKING_LINK is required")
	}
	switch c.AIProvider {
	case "anthropic":
		if c.AnthropicAPIKey == "" {
			return apperr.Config("ANTHROPIC_API_KEY is required when AI_PROVIDER is anthropic")
		}
	case "moonshot":
		if c.MoonshotAPIKey == "" {
			return apperr.Config("MOONSHOT_API_KEY is required when AI_PROVIDER is moonshot")
		}
	default:
		return apperr.Config(fmt.Sprintf("AI_PROVIDER must be anthropic or moonshot, got %q", c.AIProvider))
	}
	switch c.MemoryDriver {
	case "sqlite":
		if c.MemoryDBPath == "" {
			return apperr.Config("MEMORY_DB_PATH is required when MEMORY_DRIVER is sqlite")
		}
	case "postgres":
	default:
		return apperr.Config(fmt.Sprintf("MEMORY_DRIVER must be sqlite or postgres, got %q", c.MemoryDriver))
	}
	if c.EmailEnabled && c.SMTPHost == "" {
		return apperr.Config("SMTP_HOST is required when EMAIL_ENABLED is true")
	}
	if c.PollInterval <= 0 {
		return apperr.Config("POLL_INTERVAL must be a positive duration")
	}
	if c.MaxFollowUps < 0 || c.MaxFollowUps > 3 {
		return apperr.Config("MAX_FOLLOW_UPS must be between 0 and 3")
	}
	if len(c.FollowUpHours) < c.MaxFollowUps {
		return apperr.Config("FOLLOW_UP_HOURS needs at least MAX_FOLLOW_UPS entries")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

// envReader parses typed variables and keeps every malformed one so Load
// can report them together.
type envReader struct {
	errs []error
}

func (r *envReader) fail(key string, err error) {
	r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
}

func (r *envReader) err() error {
	if len(r.errs) == 0 {
		return nil
	}
	return apperr.Wrap(apperr.KindConfig, "invalid configuration", errors.Join(r.errs...))
}

func (r *envReader) duration(key, fallback string) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(getEnv(key, fallback)))
	if err != nil {
		r.fail(key, err)
	}
	return d
}

func (r *envReader) int(key, fallback string) int {
	v, err := strconv.Atoi(strings.TrimSpace(getEnv(key, fallback)))
	if err != nil {
		r.fail(key, err)
	}
	return v
}

func (r *envReader) int64(key, fallback string) int64 {
	v, err := strconv.ParseInt(strings.TrimSpace(getEnv(key, fallback)), 10, 64)
	if err != nil {
		r.fail(key, err)
	}
	return v
}

func (r *envReader) float(key, fallback string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(getEnv(key, fallback)), 64)
	if err != nil {
		r.fail(key, err)
	}
	return v
}

func parseIntList(value string) ([]int, error) {
	parts := splitCSV(value)
	out := make([]int, 0, len(parts))
	for _, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid hour value %q", part)
		}
		out = append(out, n)
	}
	return out, nil
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}

func containsWildcard(values []string) bool {
	for _, value := range values {
		if value == "*" {
			return true
		}
	}
	return false
}
