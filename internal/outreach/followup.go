package outreach

import (
	"context"
	"math"
	"sort"
	"strconv"

	"outreach_backend/internal/decision"
	"outreach_backend/internal/leads/domain"
)

// StageFollowUps is the report key of the follow-up stage.
const StageFollowUps = "follow_ups"

var outreachStates = []domain.State{
	domain.StateBookingInviteSent,
	domain.StateFollowUp1,
	domain.StateFollowUp2,
	domain.StateFollowUp3,
}

// FollowUpHandler sends the timed follow-up sequence.
type FollowUpHandler struct {
	deps *Deps
}

func NewFollowUpHandler(deps *Deps) *FollowUpHandler {
	deps.normalize()
	return &FollowUpHandler{deps: deps}
}

// Eligible returns outreach-sequence leads whose last email is at least
// MinHoursBetweenEmails old. Leads never emailed count from creation.
func (h *FollowUpHandler) Eligible(ctx context.Context) ([]domain.Lead, error) {
	leads, err := h.deps.Leads.ListLeads(ctx, outreachStates...)
	if err != nil {
		return nil, storeErr("list leads", err)
	}
	now := h.deps.now()
	out := leads[:0]
	for _, lead := range leads {
		if lead.HoursSinceLastContact(now) >= h.deps.Settings.MinHoursBetweenEmails {
			out = append(out, lead)
		}
	}
	return out, nil
}

// Process decides and sends follow-ups for every eligible lead.
func (h *FollowUpHandler) Process(ctx context.Context) ([]Outcome, error) {
	leads, err := h.Eligible(ctx)
	if err != nil {
		return nil, err
	}
	outcomes := make([]Outcome, 0, len(leads))
	for i := range leads {
		lead := leads[i]
		outcomes = append(outcomes, h.deps.safely(StageFollowUps, lead.Email, func() Outcome {
			return h.processLead(ctx, lead)
		}))
	}
	return outcomes, nil
}

func (h *FollowUpHandler) processLead(ctx context.Context, lead domain.Lead) Outcome {
	d := h.deps
	stage := domain.FollowUpStage(lead.Status)
	hoursSince := lead.HoursSinceLastContact(d.now())

	history, err := d.history(ctx, lead.Email)
	if err != nil {
		return failed(lead.Email, OutcomeError, err)
	}
	res, err := d.Decider.DecideFollowUp(ctx, decision.FollowUpRequest{
		Lead:          lead,
		HoursSince:    hoursSince,
		FollowUpCount: stage,
		MaxFollowUps:  d.Settings.MaxFollowUps,
		Intervals:     d.Settings.FollowUpHours,
		History:       history,
	})
	if err != nil {
		d.Log.LeadError(StageFollowUps, lead.Email, err)
		return failed(lead.Email, OutcomeError, err)
	}

	var dec decision.FollowUpDecision
	switch r := res.(type) {
	case decision.FollowUpDecision:
		dec = r
	case decision.Unparsed:
		d.Log.Warn("follow-up decision unparsed, using fallback", "lead", lead.Email, "reason", r.Reason)
		dec = decision.FallbackFollowUp(r.Raw)
	default:
		dec = decision.FallbackFollowUp("")
	}

	base := Outcome{Email: lead.Email, Success: true, Status: string(lead.Status)}
	if !dec.ShouldFollowUp {
		base.Action, base.Detail = OutcomeNoFollowUp, dec.Reason
		return base
	}
	if dec.WaitHours != nil && *dec.WaitHours > hoursSince {
		base.Action = OutcomeWait
		base.Detail = "wait_hours=" + strconv.FormatFloat(*dec.WaitHours, 'f', -1, 64)
		return base
	}

	next := stage + 1
	if _, ok := domain.FollowUpState(next); !ok || next > d.Settings.MaxFollowUps {
		base.Action = OutcomeMaxFollowUpsReached
		return base
	}

	action := SendFollowUpAction(next)
	unlock := d.locks.Lock(lockKey(lead.Email, action))
	defer unlock()

	dup, err := d.wasTaken(ctx, lead.Email, action, OutboundDedupWindow)
	if err != nil {
		return failed(lead.Email, OutcomeError, err)
	}
	if dup {
		// Follow-up next went out but the lead never left its stage.
		if err := h.advance(ctx, &lead, next, "Follow-up "+strconv.Itoa(next)+" status repaired"); err != nil {
			return failed(lead.Email, OutcomeError, err)
		}
		d.Log.Warn("follow-up already sent, status repaired", "lead", lead.Email, "follow_up", next)
		return Outcome{Email: lead.Email, Action: OutcomeStatusRepaired, Success: true, Status: string(lead.Status), Detail: action}
	}

	emailType := decision.FollowUpEmailType(next)
	var msg decision.Email
	if dec.Email != nil && dec.Email.Body != "" {
		msg = *dec.Email
	} else {
		msg, err = d.composeEmail(ctx, lead, emailType, dec.Reason)
		if err != nil {
			return failed(lead.Email, OutcomeError, err)
		}
	}

	result, err := d.deliver(ctx, delivery{lead: lead, action: action, emailType: emailType, msg: msg})
	if err != nil {
		return failed(lead.Email, OutcomeError, err)
	}
	if !result.Success {
		return Outcome{Email: lead.Email, Action: OutcomeSendFailed, Status: string(lead.Status), Error: result.Error}
	}

	if err := h.advance(ctx, &lead, next, "Follow-up "+strconv.Itoa(next)+" sent"); err != nil {
		return failed(lead.Email, OutcomeError, err)
	}

	return Outcome{
		Email:     lead.Email,
		Action:    OutcomeFollowUpSent(next),
		Success:   true,
		Status:    string(lead.Status),
		MessageID: result.MessageID,
	}
}

// advance moves the lead to follow-up stage next after its email went out.
func (h *FollowUpHandler) advance(ctx context.Context, lead *domain.Lead, next int, note string) error {
	d := h.deps
	if err := d.repairAfterSend(ctx, lead, domain.FollowUpTrigger(next), note); err != nil {
		return err
	}
	if err := d.Leads.SetField(ctx, lead.Email, domain.FieldFollowUpStage, next); err != nil {
		return storeErr("set follow_up_stage", err)
	}
	lead.FollowUpStage = next
	return nil
}

// ScheduleEntry is one lead in the upcoming follow-up queue.
type ScheduleEntry struct {
	Email          string  `json:"email"`
	Name           string  `json:"name"`
	Status         string  `json:"status"`
	CurrentStage   int     `json:"current_stage"`
	NextStage      int     `json:"next_stage"`
	HoursSince     float64 `json:"hours_since_last_contact"`
	HoursUntil     float64 `json:"hours_until_due"`
	TargetInterval int     `json:"target_interval_hours"`
}

// Schedule lists outreach-sequence leads that still have a follow-up left,
// soonest first.
func (h *FollowUpHandler) Schedule(ctx context.Context) ([]ScheduleEntry, error) {
	d := h.deps
	leads, err := d.Leads.ListLeads(ctx, outreachStates...)
	if err != nil {
		return nil, storeErr("list leads", err)
	}
	now := d.now()
	entries := make([]ScheduleEntry, 0, len(leads))
	for _, lead := range leads {
		stage := domain.FollowUpStage(lead.Status)
		next := stage + 1
		if stage < 0 || next > d.Settings.MaxFollowUps || stage >= len(d.Settings.FollowUpHours) {
			continue
		}
		interval := d.Settings.FollowUpHours[stage]
		since := lead.HoursSinceLastContact(now)
		entries = append(entries, ScheduleEntry{
			Email:          lead.Email,
			Name:           lead.Name,
			Status:         string(lead.Status),
			CurrentStage:   stage,
			NextStage:      next,
			HoursSince:     round2(since),
			HoursUntil:     round2(math.Max(0, float64(interval)-since)),
			TargetInterval: interval,
		})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].HoursUntil != entries[j].HoursUntil {
			return entries[i].HoursUntil < entries[j].HoursUntil
		}
		return entries[i].Email < entries[j].Email
	})
	return entries, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
