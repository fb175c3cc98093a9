package notification

import (
	"context"
	"strings"
	"sync"
	"testing"

	"outreach_backend/internal/email"
	"outreach_backend/internal/events"
	"outreach_backend/internal/notification/sse"
	"outreach_backend/platform/logger"
)

type testNotificationConfig struct {
	escalation string
}

func (c testNotificationConfig) GetEscalationEmail() string { return c.escalation }
func (c testNotificationConfig) GetFromName() string        { return "BizDeedz" }

type testSender struct {
	mu   sync.Mutex
	sent []email.OutboundEmail
	fail bool
}

func (s *testSender) Send(_ context.Context, msg email.OutboundEmail) email.SendResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, msg)
	if s.fail {
		return email.SendResult{Error: "relay refused"}
	}
	return email.SendResult{Success: true, MessageID: "esc-1"}
}

const testLeadEmail = "lead@example.com"

func escalatedEvent() events.LeadEscalated {
	return events.LeadEscalated{
		BaseEvent: events.NewBaseEvent(),
		Email:     testLeadEmail,
		Name:      "Grace Hopper",
		FirmName:  "Hopper & Co",
		Reason:    "asks about a contract",
		Subject:   "Re: AI Readiness Scorecard",
		Reply:     "Can you review our retainer agreement?",
		MessageID: "m1",
	}
}

func TestEscalationIsEmailedToOperator(t *testing.T) {
	sender := &testSender{}
	m := New(sender, testNotificationConfig{escalation: "ops@example.com"}, nil, logger.New("development"))

	if err := m.Handle(context.Background(), escalatedEvent()); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("expected one escalation email, got %d", len(sender.sent))
	}
	msg := sender.sent[0]
	if msg.To != "ops@example.com" || !strings.Contains(msg.Subject, testLeadEmail) {
		t.Fatalf("unexpected envelope %+v", msg)
	}
	if !strings.Contains(msg.Body, "retainer agreement") || !strings.Contains(msg.Body, "asks about a contract") {
		t.Fatalf("expected reply and reason in body, got %q", msg.Body)
	}
}

func TestEscalationWithoutAddressIsOnlyLogged(t *testing.T) {
	sender := &testSender{}
	m := New(sender, testNotificationConfig{}, nil, logger.New("development"))

	if err := m.Handle(context.Background(), escalatedEvent()); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(sender.sent) != 0 {
		t.Fatalf("expected no email without an escalation address")
	}
}

func TestEscalationSendFailureIsReturned(t *testing.T) {
	sender := &testSender{fail: true}
	m := New(sender, testNotificationConfig{escalation: "ops@example.com"}, nil, logger.New("development"))

	if err := m.Handle(context.Background(), escalatedEvent()); err == nil {
		t.Fatalf("expected send failure to surface")
	}
}

func TestRenderEscalationTruncatesLongReplies(t *testing.T) {
	e := escalatedEvent()
	e.Reply = strings.Repeat("a", maxReplyExcerpt+50)
	body, err := renderEscalation(e, "BizDeedz")
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(body, "[truncated]") || strings.Contains(body, strings.Repeat("a", maxReplyExcerpt+1)) {
		t.Fatalf("expected truncated reply")
	}
}

func TestRegisteredHandlersReachTheBus(t *testing.T) {
	sender := &testSender{}
	m := New(sender, testNotificationConfig{escalation: "ops@example.com"}, nil, logger.New("development"))
	m.SetSSE(sse.New(nil))
	bus := events.NewInMemoryBus(logger.New("development"))
	m.RegisterHandlers(bus)

	bus.Publish(context.Background(), escalatedEvent())
	bus.Publish(context.Background(), events.LeadStatusChanged{
		BaseEvent: events.NewBaseEvent(),
		Email:     testLeadEmail,
		From:      "REPLY_RECEIVED",
		To:        "ESCALATED",
		Trigger:   "escalate",
	})
	bus.Wait()

	if len(sender.sent) != 1 {
		t.Fatalf("expected the escalation to be emailed once, got %d", len(sender.sent))
	}
}
