// Package webhook provides the lead intake module. Website forms post new
// leads here; the orchestrator picks them up on its next cycle.
package webhook

import (
	"outreach_backend/internal/events"
	apphttp "outreach_backend/internal/http"
	"outreach_backend/internal/leads/repository"
	"outreach_backend/platform/config"
	"outreach_backend/platform/httpkit"
	"outreach_backend/platform/logger"
	"outreach_backend/platform/validator"
)

// Module is the webhook bounded context module implementing http.Module.
type Module struct {
	handler *Handler
	keyHash string
	limiter *httpkit.IPRateLimiter
}

// NewModule creates and initializes the webhook module with all its dependencies.
func NewModule(leads repository.LeadCreator, cfg config.WebhookConfig, eventBus events.Bus, val *validator.Validator, log *logger.Logger) *Module {
	service := NewService(leads, eventBus, cfg.GetPhoneDefaultRegion(), log)
	return &Module{
		handler: NewHandler(service, val),
		keyHash: cfg.GetWebhookAPIKeyHash(),
		limiter: httpkit.NewIntakeRateLimiter(log),
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "webhook"
}

// RegisterRoutes mounts webhook routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	// Public intake endpoint (API key auth, no JWT)
	webhookGroup := ctx.V1.Group("/webhook")
	webhookGroup.Use(m.limiter.RateLimit(), APIKeyAuthMiddleware(m.keyHash))
	webhookGroup.POST("/leads", m.handler.HandleLeadSubmission)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
