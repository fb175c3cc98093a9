// Package handler exposes the outreach funnel to operators over HTTP.
package handler

import (
	"context"
	"strings"

	"outreach_backend/internal/outreach"
	"outreach_backend/internal/scheduler"
	"outreach_backend/platform/apperr"
	"outreach_backend/platform/httpkit"
	"outreach_backend/platform/logger"

	"github.com/gin-gonic/gin"
)

const errMissingEmail = "lead email is required"

// Pipeline answers read-only queries.
type Pipeline interface {
	PipelineSummary(ctx context.Context) (*outreach.PipelineSummary, error)
	LeadStatus(ctx context.Context, leadEmail string) (*outreach.LeadStatus, error)
}

// FollowUpSchedule lists upcoming follow-ups.
type FollowUpSchedule interface {
	Schedule(ctx context.Context) ([]outreach.ScheduleEntry, error)
}

// Qualification runs the operator-triggered post-call steps.
type Qualification interface {
	CompleteCall(ctx context.Context, leadEmail string) (outreach.Outcome, error)
	Qualify(ctx context.Context, leadEmail string) (outreach.Outcome, error)
	DeliverScorecard(ctx context.Context, leadEmail string) (outreach.Outcome, error)
}

// CycleRunner runs a cycle in-process.
type CycleRunner interface {
	RunOnce(ctx context.Context) (*outreach.CycleReport, error)
}

// CycleEnqueuer hands a cycle to the background worker.
type CycleEnqueuer interface {
	EnqueueCycle(ctx context.Context, trigger string) (string, error)
}

// Handler serves the admin API.
type Handler struct {
	pipeline  Pipeline
	schedule  FollowUpSchedule
	qualifier Qualification
	runner    CycleRunner
	enqueuer  CycleEnqueuer
	log       *logger.Logger
}

// CycleAccepted is returned when a cycle was queued for the worker.
type CycleAccepted struct {
	TaskID  string `json:"taskId"`
	Message string `json:"message"`
}

// GetPipeline returns counts by status and priority.
// GET /api/v1/admin/pipeline
func (h *Handler) GetPipeline(c *gin.Context) {
	summary, err := h.pipeline.PipelineSummary(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, summary)
}

// GetLead returns one lead with its conversation and ledger context.
// GET /api/v1/admin/leads/:email
func (h *Handler) GetLead(c *gin.Context) {
	leadEmail, ok := leadParam(c)
	if !ok {
		return
	}
	status, err := h.pipeline.LeadStatus(c.Request.Context(), leadEmail)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, status)
}

// ListFollowUps returns the follow-up queue ordered by due time.
// GET /api/v1/admin/follow-ups
func (h *Handler) ListFollowUps(c *gin.Context) {
	entries, err := h.schedule.Schedule(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}
	if entries == nil {
		entries = []outreach.ScheduleEntry{}
	}
	httpkit.OK(c, entries)
}

// TriggerCycle queues a cycle when a worker is configured and otherwise runs it inline.
// POST /api/v1/admin/cycles
func (h *Handler) TriggerCycle(c *gin.Context) {
	if h.enqueuer != nil {
		taskID, err := h.enqueuer.EnqueueCycle(c.Request.Context(), scheduler.TriggerAPI)
		if httpkit.HandleError(c, err) {
			return
		}
		h.log.Info("cycle queued", "task_id", taskID, "by", httpkit.GetIdentity(c).Subject())
		httpkit.Accepted(c, CycleAccepted{TaskID: taskID, Message: "cycle queued"})
		return
	}

	report, err := h.runner.RunOnce(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, report)
}

// CompleteCall marks the diagnostic call as held.
// POST /api/v1/admin/leads/:email/call-completed
func (h *Handler) CompleteCall(c *gin.Context) {
	h.qualification(c, h.qualifier.CompleteCall)
}

// Qualify scores the lead after the call.
// POST /api/v1/admin/leads/:email/qualify
func (h *Handler) Qualify(c *gin.Context) {
	h.qualification(c, h.qualifier.Qualify)
}

// DeliverScorecard sends the scorecard to a qualified lead.
// POST /api/v1/admin/leads/:email/scorecard
func (h *Handler) DeliverScorecard(c *gin.Context) {
	h.qualification(c, h.qualifier.DeliverScorecard)
}

func (h *Handler) qualification(c *gin.Context, op func(context.Context, string) (outreach.Outcome, error)) {
	leadEmail, ok := leadParam(c)
	if !ok {
		return
	}
	out, err := op(c.Request.Context(), leadEmail)
	if httpkit.HandleError(c, err) {
		return
	}
	h.log.Info("qualification step applied", "lead", out.Email, "action", out.Action, "by", httpkit.GetIdentity(c).Subject())
	httpkit.OK(c, out)
}

func leadParam(c *gin.Context) (string, bool) {
	leadEmail := strings.TrimSpace(c.Param("email"))
	if leadEmail == "" {
		httpkit.HandleError(c, apperr.BadRequest(errMissingEmail))
		return "", false
	}
	return leadEmail, true
}
