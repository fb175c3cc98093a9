package outreach

import (
	"context"
	"testing"
	"time"

	"outreach_backend/internal/decision"
	"outreach_backend/internal/leads/domain"
)

func contactedLead(status domain.State, hoursAgo float64) domain.Lead {
	sent := testEpoch.Add(-time.Duration(hoursAgo * float64(time.Hour)))
	return domain.Lead{
		Email:         adaEmail,
		Name:          "Ada Lovelace",
		Status:        status,
		LastEmailSent: &sent,
		CreatedAt:     testEpoch.Add(-400 * time.Hour),
	}
}

func TestFollowUpSendsNextStage(t *testing.T) {
	h := newHarness(t, contactedLead(domain.StateBookingInviteSent, 30))
	handler := NewFollowUpHandler(h.deps)
	ctx := context.Background()

	outcomes, err := handler.Process(ctx)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(outcomes) != 1 || outcomes[0].Action != OutcomeFollowUpSent(1) || !outcomes[0].Sent() {
		t.Fatalf("unexpected outcomes %+v", outcomes)
	}
	lead := h.leads.get(adaEmail)
	if lead.Status != domain.StateFollowUp1 || lead.FollowUpStage != 1 {
		t.Fatalf("expected FOLLOW_UP_1 at stage 1, got %s / %d", lead.Status, lead.FollowUpStage)
	}
	if h.decider.emailTypes[0] != "follow_up_1" {
		t.Fatalf("expected generated follow_up_1 email, got %v", h.decider.emailTypes)
	}

	// The email was just sent, so the lead is no longer eligible.
	outcomes, err = handler.Process(ctx)
	if err != nil {
		t.Fatalf("second process: %v", err)
	}
	if len(outcomes) != 0 || h.channel.sendCount() != 1 {
		t.Fatalf("expected no second send, got %+v", outcomes)
	}
}

func TestFollowUpRepairsStatusAfterLostWrite(t *testing.T) {
	h := newHarness(t, contactedLead(domain.StateBookingInviteSent, 30))
	h.leads.failStatusTo = domain.StateFollowUp1
	h.leads.failStatusN = 1
	handler := NewFollowUpHandler(h.deps)
	ctx := context.Background()

	outcomes, err := handler.Process(ctx)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(outcomes) != 1 || outcomes[0].Success {
		t.Fatalf("expected failed outcome, got %+v", outcomes)
	}
	if got := h.leads.get(adaEmail).Status; got != domain.StateBookingInviteSent {
		t.Fatalf("expected lead left in BOOKING_INVITE_SENT, got %s", got)
	}

	outcomes, err = handler.Process(ctx)
	if err != nil {
		t.Fatalf("second process: %v", err)
	}
	if len(outcomes) != 1 || outcomes[0].Action != OutcomeStatusRepaired {
		t.Fatalf("expected status_repaired, got %+v", outcomes)
	}
	lead := h.leads.get(adaEmail)
	if lead.Status != domain.StateFollowUp1 || lead.FollowUpStage != 1 || lead.LastEmailSent == nil || !lead.LastEmailSent.Equal(testEpoch) {
		t.Fatalf("expected FOLLOW_UP_1 at stage 1 stamped now, got %s / %d / %v", lead.Status, lead.FollowUpStage, lead.LastEmailSent)
	}
	if h.channel.sendCount() != 1 {
		t.Fatalf("expected follow-up 1 sent once, got %d", h.channel.sendCount())
	}
}

func TestFollowUpCeiling(t *testing.T) {
	h := newHarness(t, contactedLead(domain.StateFollowUp3, 200))

	outcomes, err := NewFollowUpHandler(h.deps).Process(context.Background())
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(outcomes) != 1 || outcomes[0].Action != OutcomeMaxFollowUpsReached {
		t.Fatalf("expected max_follow_ups_reached, got %+v", outcomes)
	}
	if h.channel.sendCount() != 0 {
		t.Fatalf("expected no send")
	}
}

func TestFollowUpDecisionBranches(t *testing.T) {
	wait := 48.0
	cases := []struct {
		name   string
		result decision.Result
		want   string
	}{
		{"declined", decision.FollowUpDecision{ShouldFollowUp: false, Reason: "they replied elsewhere"}, OutcomeNoFollowUp},
		{"wait", decision.FollowUpDecision{ShouldFollowUp: true, WaitHours: &wait}, OutcomeWait},
		{"unparsed", decision.Unparsed{Task: decision.TaskFollowUp, Raw: "hmm", Reason: decision.ReasonNoJSON}, OutcomeNoFollowUp},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, contactedLead(domain.StateBookingInviteSent, 30))
			h.decider.followUp = tc.result
			outcomes, err := NewFollowUpHandler(h.deps).Process(context.Background())
			if err != nil {
				t.Fatalf("process: %v", err)
			}
			if len(outcomes) != 1 || outcomes[0].Action != tc.want {
				t.Fatalf("got %+v, want action %s", outcomes, tc.want)
			}
			if h.channel.sendCount() != 0 {
				t.Fatalf("expected no send")
			}
		})
	}
}

func TestFollowUpUsesDecisionEmail(t *testing.T) {
	h := newHarness(t, contactedLead(domain.StateFollowUp1, 80))
	h.decider.followUp = decision.FollowUpDecision{
		ShouldFollowUp: true,
		Email:          &decision.Email{Subject: "Quick check-in", Body: "Still interested?"},
	}

	outcomes, err := NewFollowUpHandler(h.deps).Process(context.Background())
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(outcomes) != 1 || outcomes[0].Action != OutcomeFollowUpSent(2) {
		t.Fatalf("unexpected outcomes %+v", outcomes)
	}
	if h.channel.sent[0].Subject != "Quick check-in" || h.decider.count("email") != 0 {
		t.Fatalf("expected the decision's email to be sent as-is")
	}
	if recs := h.actions(t, adaEmail, SendFollowUpAction(2)); len(recs) != 1 || !recs[0].Success {
		t.Fatalf("expected send_follow_up_2 record, got %+v", recs)
	}
}

func TestFollowUpEligibilityRespectsMinimumGap(t *testing.T) {
	h := newHarness(t, contactedLead(domain.StateBookingInviteSent, 2))
	eligible, err := NewFollowUpHandler(h.deps).Eligible(context.Background())
	if err != nil {
		t.Fatalf("eligible: %v", err)
	}
	if len(eligible) != 0 {
		t.Fatalf("expected lead emailed 2h ago to be ineligible")
	}
}

func TestFollowUpSchedule(t *testing.T) {
	h := newHarness(t,
		contactedLead(domain.StateBookingInviteSent, 10),
		domain.Lead{Email: "bob@firm.test", Status: domain.StateFollowUp1, CreatedAt: testEpoch.Add(-100 * time.Hour)},
		domain.Lead{Email: "cy@firm.test", Status: domain.StateFollowUp3, CreatedAt: testEpoch.Add(-500 * time.Hour)},
	)

	entries, err := NewFollowUpHandler(h.deps).Schedule(context.Background())
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected two scheduled leads, got %+v", entries)
	}
	if entries[0].Email != "bob@firm.test" || entries[0].HoursUntil != 0 || entries[0].TargetInterval != 72 {
		t.Fatalf("unexpected first entry %+v", entries[0])
	}
	if entries[1].Email != adaEmail || entries[1].HoursUntil != 14 || entries[1].NextStage != 1 {
		t.Fatalf("unexpected second entry %+v", entries[1])
	}
}
