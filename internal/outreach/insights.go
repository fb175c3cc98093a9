package outreach

import (
	"context"
	"time"

	"outreach_backend/internal/leads/domain"
	"outreach_backend/internal/memory"
)

// Insights answers read-only questions about the pipeline.
type Insights struct {
	deps      *Deps
	followUps *FollowUpHandler
}

func NewInsights(deps *Deps) *Insights {
	deps.normalize()
	return &Insights{deps: deps, followUps: NewFollowUpHandler(deps)}
}

// PipelineSummary counts leads by status and priority.
type PipelineSummary struct {
	Total         int             `json:"total"`
	ByStatus      map[string]int  `json:"by_status"`
	ByPriority    map[string]int  `json:"by_priority"`
	FollowUpQueue []ScheduleEntry `json:"follow_up_queue"`
	LastCycleID   string          `json:"last_cycle_id,omitempty"`
	LastCycleAt   *time.Time      `json:"last_cycle_at,omitempty"`
}

// PipelineSummary loads every lead once.
func (i *Insights) PipelineSummary(ctx context.Context) (*PipelineSummary, error) {
	d := i.deps
	leads, err := d.Leads.ListLeads(ctx)
	if err != nil {
		return nil, storeErr("list leads", err)
	}
	sum := &PipelineSummary{
		Total:      len(leads),
		ByStatus:   make(map[string]int),
		ByPriority: map[string]int{"high": 0, "medium": 0, "low": 0, "unset": 0},
	}
	for _, lead := range leads {
		sum.ByStatus[string(lead.Status)]++
		sum.ByPriority[lead.PriorityOrUnset()]++
	}

	queue, err := i.followUps.Schedule(ctx)
	if err != nil {
		return nil, err
	}
	sum.FollowUpQueue = queue

	if id, ok, err := d.Memory.GetState(ctx, StateKeyLastCycleID); err == nil && ok {
		sum.LastCycleID = id
	}
	if raw, ok, err := d.Memory.GetState(ctx, StateKeyLastCycleAt); err == nil && ok {
		if at, err := time.Parse(time.RFC3339, raw); err == nil {
			sum.LastCycleAt = &at
		}
	}
	return sum, nil
}

// LeadStatus is the detailed view of one lead.
type LeadStatus struct {
	Lead          *domain.Lead          `json:"lead"`
	ValidTriggers []string              `json:"valid_triggers"`
	MessageCount  int                   `json:"message_count"`
	RecentActions []memory.ActionRecord `json:"recent_actions"`
	Analysis      *memory.Analysis      `json:"analysis,omitempty"`
}

// LeadStatus returns repository.ErrNotFound for unknown leads.
func (i *Insights) LeadStatus(ctx context.Context, leadEmail string) (*LeadStatus, error) {
	d := i.deps
	lead, err := d.Leads.GetLead(ctx, leadEmail)
	if err != nil {
		return nil, storeErr("get lead", err)
	}
	count, err := d.Memory.CountMessages(ctx, lead.Email)
	if err != nil {
		return nil, storeErr("count messages", err)
	}
	actions, err := d.Memory.RecentActions(ctx, lead.Email, "", 10)
	if err != nil {
		return nil, storeErr("recent actions", err)
	}
	analysis, err := d.Memory.GetAnalysis(ctx, lead.Email)
	if err != nil {
		return nil, storeErr("get analysis", err)
	}
	return &LeadStatus{
		Lead:          lead,
		ValidTriggers: domain.ValidTriggers(lead.Status),
		MessageCount:  count,
		RecentActions: actions,
		Analysis:      analysis,
	}, nil
}
