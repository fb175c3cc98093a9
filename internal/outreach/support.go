package outreach

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"outreach_backend/internal/decision"
	"outreach_backend/internal/email"
	"outreach_backend/internal/events"
	"outreach_backend/internal/leads/domain"
	"outreach_backend/internal/memory"
	"outreach_backend/platform/apperr"
)

const errEmptyBody = "empty email body"

// storeErr keeps typed errors intact and marks everything else as a collaborator failure.
func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return err
	}
	return apperr.External(op+" failed", err).WithOp("outreach." + strings.ReplaceAll(op, " ", "_"))
}

func lockKey(leadEmail, action string) string {
	return domain.NormalizeEmail(leadEmail) + "|" + action
}

// safely runs fn and turns a panic into a failed outcome for the lead.
func (d *Deps) safely(stage, leadEmail string, fn func() Outcome) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic: %v", r)
			d.Log.LeadError(stage, leadEmail, err)
			out = failed(leadEmail, OutcomeError, err)
		}
	}()
	return fn()
}

func (d *Deps) wasTaken(ctx context.Context, leadEmail, action string, window time.Duration) (bool, error) {
	taken, err := d.Memory.WasActionTaken(ctx, leadEmail, action, window)
	return taken, storeErr("check ledger", err)
}

func (d *Deps) record(ctx context.Context, leadEmail, action string, success bool, details, result map[string]any) error {
	err := d.Memory.RecordAction(ctx, memory.ActionRecord{
		ActionType: action,
		LeadEmail:  leadEmail,
		Timestamp:  d.now(),
		Details:    details,
		Result:     result,
		Success:    success,
	})
	return storeErr("record action", err)
}

func (d *Deps) publish(ctx context.Context, evt events.Event) {
	if d.Bus != nil {
		d.Bus.Publish(ctx, evt)
	}
}

// transition applies trigger when it is legal from the lead's current state.
// An illegal trigger is not an error: it reports false and leaves the store alone.
func (d *Deps) transition(ctx context.Context, lead *domain.Lead, trigger string) (bool, error) {
	next, ok := domain.NextState(lead.Status, trigger)
	if !ok {
		return false, nil
	}
	if err := d.Leads.SetStatus(ctx, lead.Email, next); err != nil {
		return false, storeErr("set status", err)
	}
	from := lead.Status
	lead.Status = next

	d.Log.Info("lead transitioned", "lead", lead.Email, "from", string(from), "to", string(next), "trigger", trigger)
	d.publish(ctx, events.LeadStatusChanged{
		BaseEvent: events.NewBaseEvent(),
		Email:     lead.Email,
		From:      string(from),
		To:        string(next),
		Trigger:   trigger,
	})
	return true, nil
}

// repairAfterSend applies the transition that should have followed a send
// the ledger already holds, then stamps last_email_sent.
func (d *Deps) repairAfterSend(ctx context.Context, lead *domain.Lead, trigger, note string) error {
	moved, err := d.transition(ctx, lead, trigger)
	if err != nil || !moved {
		return err
	}
	return d.markSent(ctx, lead, note)
}

// advanceConversation moves a replying lead into (or keeps it in) CONVERSATION_ACTIVE.
func (d *Deps) advanceConversation(ctx context.Context, lead *domain.Lead) error {
	moved, err := d.transition(ctx, lead, domain.TriggerEngageConversation)
	if err != nil || moved {
		return err
	}
	_, err = d.transition(ctx, lead, domain.TriggerContinueConversation)
	return err
}

func (d *Deps) history(ctx context.Context, leadEmail string) (string, error) {
	text, err := d.Memory.ConversationText(ctx, leadEmail, 0)
	return text, storeErr("load conversation", err)
}

// composeEmail asks the decider for copy of emailType, falling back to the raw text.
func (d *Deps) composeEmail(ctx context.Context, lead domain.Lead, emailType, additional string) (decision.Email, error) {
	history, err := d.history(ctx, lead.Email)
	if err != nil {
		return decision.Email{}, err
	}
	res, err := d.Decider.GenerateEmail(ctx, decision.EmailRequest{
		Lead:              lead,
		EmailType:         emailType,
		History:           history,
		AdditionalContext: additional,
	})
	if err != nil {
		return decision.Email{}, err
	}
	switch r := res.(type) {
	case decision.Email:
		return r, nil
	case decision.Unparsed:
		d.Log.Warn("email decision unparsed, using fallback", "lead", lead.Email, "email_type", emailType, "reason", r.Reason)
		return decision.FallbackEmail(r.Raw), nil
	default:
		return decision.Email{}, fmt.Errorf("unexpected email decision %T", res)
	}
}

// delivery is one outbound email and how to account for it.
type delivery struct {
	lead      domain.Lead
	action    string // ledger action; empty when the caller records its own
	emailType string
	msg       decision.Email
	inReplyTo string
}

// deliver sends the email, logs the agent message on success and records
// the ledger action either way. An empty body is never sent.
func (d *Deps) deliver(ctx context.Context, dl delivery) (email.SendResult, error) {
	var result email.SendResult
	if strings.TrimSpace(dl.msg.Body) == "" {
		result = email.SendResult{Success: false, Error: errEmptyBody}
	} else {
		result = d.Channel.Send(ctx, email.OutboundEmail{
			To:        dl.lead.Email,
			Subject:   dl.msg.Subject,
			Body:      dl.msg.Body,
			InReplyTo: dl.inReplyTo,
		})
	}

	details := map[string]any{"email_type": dl.emailType, "subject": dl.msg.Subject}
	if dl.inReplyTo != "" {
		details["in_reply_to"] = dl.inReplyTo
	}

	if !result.Success {
		d.Log.Warn("email send failed", "lead", dl.lead.Email, "email_type", dl.emailType, "error", result.Error)
		if dl.action == "" {
			return result, nil
		}
		return result, d.record(ctx, dl.lead.Email, dl.action, false, details, map[string]any{"error": result.Error})
	}

	err := d.Memory.AppendMessage(ctx, dl.lead.Email, memory.Message{
		Role:      memory.RoleAgent,
		Content:   dl.msg.Body,
		Timestamp: d.now(),
		MessageID: result.MessageID,
		Subject:   dl.msg.Subject,
		Metadata:  map[string]any{"email_type": dl.emailType},
	})
	if err != nil {
		return result, storeErr("append message", err)
	}
	if dl.action == "" {
		return result, nil
	}
	return result, d.record(ctx, dl.lead.Email, dl.action, true, details, map[string]any{"message_id": result.MessageID})
}

// markSent stamps last_email_sent on the lead.
func (d *Deps) markSent(ctx context.Context, lead *domain.Lead, note string) error {
	if err := d.Leads.RecordEmailSent(ctx, lead.Email, note); err != nil {
		return storeErr("record email sent", err)
	}
	now := d.now()
	lead.LastEmailSent = &now
	return nil
}

func (d *Deps) note(ctx context.Context, leadEmail, note string) error {
	return storeErr("append note", d.Leads.AppendNote(ctx, leadEmail, note))
}

// hasMessage reports whether the conversation already holds messageID.
func (d *Deps) hasMessage(ctx context.Context, leadEmail, messageID string) (bool, error) {
	if messageID == "" {
		return false, nil
	}
	msgs, err := d.Memory.RecentMessages(ctx, leadEmail, memory.DefaultMessageLimit)
	if err != nil {
		return false, storeErr("load messages", err)
	}
	for _, m := range msgs {
		if m.MessageID == messageID {
			return true, nil
		}
	}
	return false, nil
}
