package outreach

import (
	"context"
	"encoding/json"

	"outreach_backend/internal/decision"
	"outreach_backend/internal/leads/domain"
	"outreach_backend/internal/memory"
)

// StageNewLeads is the report key of the new-lead stage.
const StageNewLeads = "new_leads"

// NewLeadHandler analyzes fresh submissions and sends the booking invite.
type NewLeadHandler struct {
	deps *Deps
}

func NewNewLeadHandler(deps *Deps) *NewLeadHandler {
	deps.normalize()
	return &NewLeadHandler{deps: deps}
}

// Eligible returns NEW_SUBMISSION leads plus ANALYZING leads left behind by
// a failed send once AnalyzingRetryAfter has passed.
func (h *NewLeadHandler) Eligible(ctx context.Context) ([]domain.Lead, error) {
	leads, err := h.deps.Leads.ListLeads(ctx, domain.StateNewSubmission, domain.StateAnalyzing)
	if err != nil {
		return nil, storeErr("list leads", err)
	}
	now := h.deps.now()
	out := leads[:0]
	for _, lead := range leads {
		if lead.Status == domain.StateAnalyzing && now.Sub(lead.UpdatedAt) < h.deps.Settings.AnalyzingRetryAfter {
			continue
		}
		out = append(out, lead)
	}
	return out, nil
}

// Process handles every eligible lead sequentially.
func (h *NewLeadHandler) Process(ctx context.Context) ([]Outcome, error) {
	leads, err := h.Eligible(ctx)
	if err != nil {
		return nil, err
	}
	outcomes := make([]Outcome, 0, len(leads))
	for i := range leads {
		lead := leads[i]
		outcomes = append(outcomes, h.deps.safely(StageNewLeads, lead.Email, func() Outcome {
			return h.processLead(ctx, lead)
		}))
	}
	return outcomes, nil
}

func (h *NewLeadHandler) processLead(ctx context.Context, lead domain.Lead) Outcome {
	d := h.deps
	log := d.Log.WithLead(lead.Email)

	unlock := d.locks.Lock(lockKey(lead.Email, ActionSendBookingInvite))
	defer unlock()

	dup, err := d.wasTaken(ctx, lead.Email, ActionSendBookingInvite, OutboundDedupWindow)
	if err != nil {
		return failed(lead.Email, OutcomeError, err)
	}
	if dup {
		if lead.Status == domain.StateAnalyzing {
			// The invite went out but the status write after it did not.
			if err := d.repairAfterSend(ctx, &lead, domain.TriggerSendBookingInvite, "Booking invite status repaired"); err != nil {
				return failed(lead.Email, OutcomeError, err)
			}
			log.Warn("booking invite already sent, status repaired")
			return Outcome{Email: lead.Email, Action: OutcomeStatusRepaired, Success: true, Status: string(lead.Status), Detail: ActionSendBookingInvite}
		}
		log.Info("booking invite already sent, skipping")
		return Outcome{Email: lead.Email, Action: OutcomeSkippedDuplicate, Success: true, Status: string(lead.Status)}
	}

	if lead.Status == domain.StateNewSubmission {
		if _, err := d.transition(ctx, &lead, domain.TriggerAnalyze); err != nil {
			return failed(lead.Email, OutcomeError, err)
		}
	}

	analysis, err := h.analyze(ctx, &lead)
	if err != nil {
		d.Log.LeadError(StageNewLeads, lead.Email, err)
		return failed(lead.Email, OutcomeAnalysisFailed, err)
	}

	msg, err := d.composeEmail(ctx, lead, decision.EmailBookingInvite, "AI Analysis: "+analysis.PersonalizationNotes)
	if err != nil {
		d.Log.LeadError(StageNewLeads, lead.Email, err)
		return failed(lead.Email, OutcomeError, err)
	}

	result, err := d.deliver(ctx, delivery{
		lead:      lead,
		action:    ActionSendBookingInvite,
		emailType: decision.EmailBookingInvite,
		msg:       msg,
	})
	if err != nil {
		return failed(lead.Email, OutcomeError, err)
	}
	if !result.Success {
		return Outcome{
			Email:  lead.Email,
			Action: OutcomeSendFailed,
			Status: string(lead.Status),
			Error:  result.Error,
		}
	}

	if _, err := d.transition(ctx, &lead, domain.TriggerSendBookingInvite); err != nil {
		return failed(lead.Email, OutcomeError, err)
	}
	if err := d.markSent(ctx, &lead, "Booking invite sent: "+msg.Subject); err != nil {
		return failed(lead.Email, OutcomeError, err)
	}

	log.Info("booking invite sent", "priority", analysis.Priority, "message_id", result.MessageID)
	return Outcome{
		Email:     lead.Email,
		Action:    OutcomeBookingInviteSent,
		Success:   true,
		Status:    string(lead.Status),
		Detail:    "priority=" + analysis.Priority,
		MessageID: result.MessageID,
	}
}

// analyze runs the lead analysis, caches it and copies priority and score onto the lead.
func (h *NewLeadHandler) analyze(ctx context.Context, lead *domain.Lead) (decision.Analysis, error) {
	d := h.deps
	res, err := d.Decider.AnalyzeLead(ctx, *lead)
	if err != nil {
		return decision.Analysis{}, err
	}

	var analysis decision.Analysis
	switch r := res.(type) {
	case decision.Analysis:
		analysis = r
	case decision.Unparsed:
		d.Log.Warn("analysis unparsed, using fallback", "lead", lead.Email, "reason", r.Reason)
		analysis = decision.FallbackAnalysis(r.Raw)
	default:
		analysis = decision.FallbackAnalysis("")
	}

	if err := d.Memory.SaveAnalysis(ctx, memory.Analysis{
		LeadEmail:          lead.Email,
		Analysis:           analysis.ToMap(),
		Priority:           analysis.Priority,
		QualificationScore: analysis.Score,
		UpdatedAt:          d.now(),
	}); err != nil {
		return analysis, storeErr("save analysis", err)
	}

	summary, _ := json.Marshal(analysis.ToMap())
	fields := []fieldUpdate{
		{domain.FieldPriority, analysis.Priority},
		{domain.FieldAIAnalysis, string(summary)},
	}
	if analysis.Score != nil {
		fields = append(fields, fieldUpdate{domain.FieldQualificationScore, *analysis.Score})
	}
	for _, f := range fields {
		if err := d.Leads.SetField(ctx, lead.Email, f.name, f.value); err != nil {
			return analysis, storeErr("set "+f.name, err)
		}
	}

	priority := analysis.Priority
	lead.Priority = &priority
	lead.AIAnalysis = string(summary)
	lead.QualificationScore = analysis.Score
	return analysis, nil
}

type fieldUpdate struct {
	name  string
	value any
}
