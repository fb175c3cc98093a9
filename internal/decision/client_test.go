package decision

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"outreach_backend/internal/leads/domain"
	"outreach_backend/internal/memory"
	"outreach_backend/platform/apperr"
)

type fakeCompleter struct {
	completion Completion
	err        error
	requests   []Request
	deadline   bool
}

func (f *fakeCompleter) Complete(ctx context.Context, req Request) (Completion, error) {
	f.requests = append(f.requests, req)
	_, f.deadline = ctx.Deadline()
	return f.completion, f.err
}

func testLead() domain.Lead {
	return domain.Lead{Email: "ada@firm.test", Name: "Ada Lovelace", FirmName: "Lovelace LLP", Status: domain.StateNewSubmission}
}

func TestDecideUsesDefaultCeilingAndTimeout(t *testing.T) {
	fc := &fakeCompleter{completion: Completion{Text: `{"action":"book"}`, Steps: 1}}
	client := NewClient(fc, Config{Timeout: time.Second, BookingLink: "https://book.test"}, nil)

	res, err := client.HandleReply(context.Background(), testLead(), "Yes, let's talk", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r, ok := res.(ReplyAction); !ok || r.Action != ActionBook {
		t.Fatalf("expected book action, got %#v", res)
	}
	if len(fc.requests) != 1 || fc.requests[0].MaxSteps != 5 || fc.requests[0].Task != TaskReply {
		t.Fatalf("unexpected request %+v", fc.requests)
	}
	if !fc.deadline {
		t.Fatalf("expected decision call to carry a deadline")
	}
	if !strings.Contains(fc.requests[0].Prompt, "https://book.test") {
		t.Fatalf("expected booking link in prompt context")
	}
}

func TestDecideExhaustedBecomesUnparsed(t *testing.T) {
	fc := &fakeCompleter{completion: Completion{Text: "", Steps: 3, Exhausted: true}}
	client := NewClient(fc, Config{}, nil)

	res, err := client.AnalyzeLead(context.Background(), testLead())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	u, ok := res.(Unparsed)
	if !ok || u.Reason != ReasonMaxIterations || u.Task != TaskAnalysis {
		t.Fatalf("expected max_iterations unparsed, got %#v", res)
	}
}

func TestDecideTransportErrorIsExternal(t *testing.T) {
	fc := &fakeCompleter{err: errors.New("connection reset")}
	client := NewClient(fc, Config{}, nil)

	_, err := client.QualifyLead(context.Background(), testLead(), "")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !apperr.Is(err, apperr.KindExternal) {
		t.Fatalf("expected external error kind, got %v", err)
	}
}

func TestGenerateEmailPrefersLeadBookingLink(t *testing.T) {
	fc := &fakeCompleter{completion: Completion{Text: `{"subject":"s","body":"b"}`}}
	client := NewClient(fc, Config{BookingLink: "https://default.test"}, nil)

	lead := testLead()
	lead.BookingLink = "https://lead.test"
	if _, err := client.GenerateEmail(context.Background(), EmailRequest{Lead: lead, EmailType: EmailBookingInvite}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	prompt := fc.requests[0].Prompt
	if !strings.Contains(prompt, "https://lead.test") || strings.Contains(prompt, "https://default.test") {
		t.Fatalf("expected lead booking link only, got %s", prompt)
	}
}

type fakeHistory struct{}

func (fakeHistory) RecentActions(context.Context, string, string, int) ([]memory.ActionRecord, error) {
	return []memory.ActionRecord{{ActionType: "send_booking_invite", Success: true, Timestamp: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)}}, nil
}

func (fakeHistory) ConversationText(context.Context, string, int) (string, error) {
	return "AGENT (2024-01-02T03:04:05Z): hello", nil
}

func TestLookupLeadHistory(t *testing.T) {
	out, err := lookupLeadHistory(context.Background(), fakeHistory{}, GetLeadHistoryInput{Email: "ada@firm.test"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out.Actions) != 1 || out.Actions[0].Timestamp != "2024-01-02T03:04:05Z" {
		t.Fatalf("unexpected actions %+v", out.Actions)
	}
	if _, err := lookupLeadHistory(context.Background(), fakeHistory{}, GetLeadHistoryInput{}); err == nil {
		t.Fatalf("expected missing email to fail")
	}
}
