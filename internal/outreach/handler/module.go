package handler

import (
	apphttp "outreach_backend/internal/http"
	"outreach_backend/platform/logger"
)

// Module is the outreach admin module implementing http.Module.
type Module struct {
	handler *Handler
}

// NewModule wires the admin handler. enqueuer may be nil, in which case
// POST /cycles runs the cycle inside the request.
func NewModule(pipeline Pipeline, schedule FollowUpSchedule, qualifier Qualification, runner CycleRunner, enqueuer CycleEnqueuer, log *logger.Logger) *Module {
	return &Module{handler: &Handler{
		pipeline:  pipeline,
		schedule:  schedule,
		qualifier: qualifier,
		runner:    runner,
		enqueuer:  enqueuer,
		log:       log,
	}}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "outreach"
}

// RegisterRoutes mounts the admin routes.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	h := m.handler
	ctx.Admin.GET("/pipeline", h.GetPipeline)
	ctx.Admin.GET("/follow-ups", h.ListFollowUps)
	ctx.Admin.POST("/cycles", h.TriggerCycle)

	leads := ctx.Admin.Group("/leads/:email")
	leads.GET("", h.GetLead)
	leads.POST("/call-completed", h.CompleteCall)
	leads.POST("/qualify", h.Qualify)
	leads.POST("/scorecard", h.DeliverScorecard)
}

var _ apphttp.Module = (*Module)(nil)
