package outreach

import (
	"context"
	"fmt"
	"strings"

	"outreach_backend/internal/decision"
	"outreach_backend/internal/leads/domain"
	"outreach_backend/internal/memory"
	"outreach_backend/platform/apperr"
)

// Qualification outcome actions.
const (
	OutcomeCallCompleted = "call_completed"
	OutcomeQualified     = "qualified"
	OutcomeNotAFit       = "not_a_fit"
	OutcomeScorecardSent = "scorecard_sent"
)

// Qualifier runs the post-call operations an operator triggers by hand.
type Qualifier struct {
	deps *Deps
}

func NewQualifier(deps *Deps) *Qualifier {
	deps.normalize()
	return &Qualifier{deps: deps}
}

func (q *Qualifier) load(ctx context.Context, leadEmail, trigger string) (*domain.Lead, error) {
	lead, err := q.deps.Leads.GetLead(ctx, leadEmail)
	if err != nil {
		return nil, storeErr("get lead", err)
	}
	if !domain.CanTransition(lead.Status, trigger) {
		return nil, apperr.Conflict(fmt.Sprintf("lead is %s; %s is not allowed", lead.Status, trigger)).
			WithDetails(map[string]any{"status": string(lead.Status), "valid_triggers": domain.ValidTriggers(lead.Status)})
	}
	return lead, nil
}

// CompleteCall marks the diagnostic call as held.
func (q *Qualifier) CompleteCall(ctx context.Context, leadEmail string) (Outcome, error) {
	d := q.deps
	unlock := d.locks.Lock(lockKey(leadEmail, ActionCompleteCall))
	defer unlock()

	lead, err := q.load(ctx, leadEmail, domain.TriggerCompleteCall)
	if err != nil {
		return Outcome{}, err
	}
	if _, err := d.transition(ctx, lead, domain.TriggerCompleteCall); err != nil {
		return Outcome{}, err
	}
	if err := d.note(ctx, lead.Email, "Diagnostic call completed"); err != nil {
		return Outcome{}, err
	}
	if err := d.record(ctx, lead.Email, ActionCompleteCall, true, nil, nil); err != nil {
		return Outcome{}, err
	}
	return Outcome{Email: lead.Email, Action: OutcomeCallCompleted, Success: true, Status: string(lead.Status)}, nil
}

// Qualify scores a completed call and moves the lead to QUALIFIED or NOT_A_FIT.
func (q *Qualifier) Qualify(ctx context.Context, leadEmail string) (Outcome, error) {
	d := q.deps
	unlock := d.locks.Lock(lockKey(leadEmail, ActionQualify))
	defer unlock()

	lead, err := q.load(ctx, leadEmail, domain.TriggerQualify)
	if err != nil {
		return Outcome{}, err
	}
	history, err := d.history(ctx, lead.Email)
	if err != nil {
		return Outcome{}, err
	}
	res, err := d.Decider.QualifyLead(ctx, *lead, history)
	if err != nil {
		return Outcome{}, err
	}

	var verdict decision.Qualification
	switch r := res.(type) {
	case decision.Qualification:
		verdict = r
	case decision.Unparsed:
		d.Log.Warn("qualification unparsed, using fallback", "lead", lead.Email, "reason", r.Reason)
		verdict = decision.FallbackQualification(r.Raw)
	default:
		verdict = decision.FallbackQualification("")
	}

	score := verdict.Score
	if err := d.Leads.SetField(ctx, lead.Email, domain.FieldQualificationScore, score); err != nil {
		return Outcome{}, storeErr("set qualification_score", err)
	}
	if err := q.cache(ctx, lead.Email, verdict); err != nil {
		return Outcome{}, err
	}

	trigger, action := domain.TriggerQualify, OutcomeQualified
	if !verdict.Qualified {
		trigger, action = domain.TriggerDisqualify, OutcomeNotAFit
	}
	if _, err := d.transition(ctx, lead, trigger); err != nil {
		return Outcome{}, err
	}

	note := fmt.Sprintf("Qualification: %s (score %.0f)", action, score)
	if len(verdict.Reasons) > 0 {
		note += ": " + strings.Join(verdict.Reasons, "; ")
	}
	if err := d.note(ctx, lead.Email, note); err != nil {
		return Outcome{}, err
	}
	if err := d.record(ctx, lead.Email, ActionQualify, true, map[string]any{
		"qualified": verdict.Qualified,
		"score":     score,
		"concerns":  verdict.Concerns,
	}, nil); err != nil {
		return Outcome{}, err
	}

	return Outcome{
		Email:   lead.Email,
		Action:  action,
		Success: true,
		Status:  string(lead.Status),
		Detail:  verdict.NextSteps,
	}, nil
}

// cache merges the verdict into the lead's cached analysis.
func (q *Qualifier) cache(ctx context.Context, leadEmail string, verdict decision.Qualification) error {
	d := q.deps
	existing, err := d.Memory.GetAnalysis(ctx, leadEmail)
	if err != nil {
		return storeErr("get analysis", err)
	}
	entry := memory.Analysis{LeadEmail: leadEmail, Analysis: map[string]any{}}
	if existing != nil {
		entry = *existing
		if entry.Analysis == nil {
			entry.Analysis = map[string]any{}
		}
	}
	entry.Analysis["qualification"] = map[string]any{
		"qualified":          verdict.Qualified,
		"score":              verdict.Score,
		"reasons":            verdict.Reasons,
		"concerns":           verdict.Concerns,
		"next_steps":         verdict.NextSteps,
		"ideal_customer_fit": verdict.IdealCustomerFit,
	}
	score := verdict.Score
	entry.QualificationScore = &score
	entry.UpdatedAt = d.now()
	return storeErr("save analysis", d.Memory.SaveAnalysis(ctx, entry))
}

// DeliverScorecard sends the scorecard to a QUALIFIED lead once.
func (q *Qualifier) DeliverScorecard(ctx context.Context, leadEmail string) (Outcome, error) {
	d := q.deps
	unlock := d.locks.Lock(lockKey(leadEmail, ActionDeliverScorecard))
	defer unlock()

	lead, err := q.load(ctx, leadEmail, domain.TriggerDeliverScorecard)
	if err != nil {
		return Outcome{}, err
	}
	dup, err := d.wasTaken(ctx, lead.Email, ActionDeliverScorecard, OutboundDedupWindow)
	if err != nil {
		return Outcome{}, err
	}
	if dup {
		return Outcome{Email: lead.Email, Action: OutcomeSkippedDuplicate, Success: true, Status: string(lead.Status)}, nil
	}

	msg, err := d.composeEmail(ctx, *lead, decision.EmailScorecard, "")
	if err != nil {
		return Outcome{}, err
	}
	result, err := d.deliver(ctx, delivery{
		lead:      *lead,
		action:    ActionDeliverScorecard,
		emailType: decision.EmailScorecard,
		msg:       msg,
	})
	if err != nil {
		return Outcome{}, err
	}
	if !result.Success {
		return Outcome{Email: lead.Email, Action: OutcomeSendFailed, Status: string(lead.Status), Error: result.Error}, nil
	}
	if _, err := d.transition(ctx, lead, domain.TriggerDeliverScorecard); err != nil {
		return Outcome{}, err
	}
	if err := d.markSent(ctx, lead, "Scorecard delivered"); err != nil {
		return Outcome{}, err
	}
	return Outcome{
		Email:     lead.Email,
		Action:    OutcomeScorecardSent,
		Success:   true,
		Status:    string(lead.Status),
		MessageID: result.MessageID,
	}, nil
}
