package outreach

import (
	"context"
	"errors"
	"regexp"
	"strconv"

	"outreach_backend/internal/decision"
	"outreach_backend/internal/email"
	"outreach_backend/internal/events"
	"outreach_backend/internal/leads/domain"
	"outreach_backend/internal/leads/repository"
	"outreach_backend/internal/memory"
)

// StageReplies is the report key of the reply stage.
const StageReplies = "replies"

var senderPattern = regexp.MustCompile(`[\w.-]+@[\w.-]+\.\w+`)

// ExtractSender returns the first address in a From header, lowercased.
func ExtractSender(from string) string {
	return domain.NormalizeEmail(senderPattern.FindString(from))
}

// ReplyHandler triages inbound replies from known leads.
type ReplyHandler struct {
	deps *Deps
}

func NewReplyHandler(deps *Deps) *ReplyHandler {
	deps.normalize()
	return &ReplyHandler{deps: deps}
}

// Process reads replies received within hoursBack. A zero value uses the configured lookback.
func (h *ReplyHandler) Process(ctx context.Context, hoursBack float64) ([]Outcome, error) {
	if hoursBack <= 0 {
		hoursBack = h.deps.Settings.ReplyLookbackHours
	}
	inbound, err := h.deps.Channel.RecentInbound(ctx, hoursBack)
	if err != nil {
		return nil, storeErr("read inbox", err)
	}

	var outcomes []Outcome
	for _, msg := range inbound {
		sender := ExtractSender(msg.From)
		if sender == "" {
			h.deps.Log.Debug("reply without a sender address, skipping", "message_id", msg.MessageID)
			continue
		}
		var known bool
		outcome := h.deps.safely(StageReplies, sender, func() Outcome {
			var o Outcome
			o, known = h.processMessage(ctx, sender, msg)
			return o
		})
		if known || outcome.Error != "" {
			outcomes = append(outcomes, outcome)
		}
	}
	return outcomes, nil
}

// processMessage reports false when the sender is not a lead.
func (h *ReplyHandler) processMessage(ctx context.Context, sender string, msg email.InboundEmail) (Outcome, bool) {
	d := h.deps
	lead, err := d.Leads.GetLead(ctx, sender)
	if errors.Is(err, repository.ErrNotFound) {
		d.Log.Debug("reply from unknown sender, skipping", "from", sender)
		return Outcome{}, false
	}
	if err != nil {
		return failed(sender, OutcomeError, storeErr("get lead", err)), true
	}

	action := ProcessReplyAction(msg.MessageID)
	unlock := d.locks.Lock(lockKey(lead.Email, action))
	defer unlock()

	dup, err := d.wasTaken(ctx, lead.Email, action, ReplyDedupWindow)
	if err != nil {
		return failed(lead.Email, OutcomeError, err), true
	}
	if dup {
		return Outcome{Email: lead.Email, Action: OutcomeSkippedDuplicate, Success: true, Status: string(lead.Status)}, true
	}

	if domain.IsTerminal(lead.Status) || lead.Status == domain.StateEscalated {
		h.markRead(ctx, msg.MessageID)
		return Outcome{Email: lead.Email, Action: OutcomeSkippedInactive, Success: true, Status: string(lead.Status)}, true
	}

	seen, err := d.hasMessage(ctx, lead.Email, msg.MessageID)
	if err != nil {
		return failed(lead.Email, OutcomeError, err), true
	}
	if !seen {
		if err := d.Memory.AppendMessage(ctx, lead.Email, memory.Message{
			Role:      memory.RoleLead,
			Content:   msg.Body,
			Timestamp: d.now(),
			MessageID: msg.MessageID,
			Subject:   msg.Subject,
		}); err != nil {
			return failed(lead.Email, OutcomeError, storeErr("append message", err)), true
		}
	}

	if lead.Status == domain.StatePaused {
		if _, err := d.transition(ctx, lead, domain.TriggerResume); err != nil {
			return failed(lead.Email, OutcomeError, err), true
		}
	}
	if _, err := d.transition(ctx, lead, domain.TriggerReceiveReply); err != nil {
		return failed(lead.Email, OutcomeError, err), true
	}

	history, err := d.history(ctx, lead.Email)
	if err != nil {
		return failed(lead.Email, OutcomeError, err), true
	}
	res, err := d.Decider.HandleReply(ctx, *lead, msg.Body, history)
	if err != nil {
		// Left unread and unrecorded so the next cycle retries it.
		d.Log.LeadError(StageReplies, lead.Email, err)
		return failed(lead.Email, OutcomeError, err), true
	}

	var reply decision.ReplyAction
	switch r := res.(type) {
	case decision.ReplyAction:
		reply = r
	case decision.Unparsed:
		d.Log.Warn("reply decision unparsed, using fallback", "lead", lead.Email, "reason", r.Reason)
		reply = decision.FallbackReply(r.Raw)
	default:
		reply = decision.FallbackReply("")
	}

	var outcome Outcome
	switch reply.Action {
	case decision.ActionPause:
		outcome = h.acknowledge(ctx, lead, msg, domain.TriggerPause, OutcomePaused, "Lead requested pause via email", d.Copy.PauseAck)
	case decision.ActionUnsubscribe:
		outcome = h.acknowledge(ctx, lead, msg, domain.TriggerUnsubscribe, OutcomeUnsubscribed, "Lead unsubscribed via email", d.Copy.UnsubscribeAck)
	case decision.ActionEscalate:
		outcome = h.escalate(ctx, lead, msg, reply.Notes)
	case decision.ActionBook:
		outcome = h.bookingIntent(ctx, lead, msg, reply)
	default:
		outcome = h.respond(ctx, lead, msg, reply)
	}

	// Failed branches stay unread so the next cycle sees the message again.
	if outcome.Success {
		h.markRead(ctx, msg.MessageID)
	}
	result := map[string]any{"action": outcome.Action}
	if outcome.Error != "" {
		result["error"] = outcome.Error
	}
	if err := d.record(ctx, lead.Email, action, outcome.Success, map[string]any{
		"reply_subject":   msg.Subject,
		"analysis_action": reply.Action,
		"intent":          reply.IntentDetected,
	}, result); err != nil {
		return failed(lead.Email, OutcomeError, err), true
	}
	return outcome, true
}

func (h *ReplyHandler) markRead(ctx context.Context, messageID string) {
	if err := h.deps.Channel.MarkRead(ctx, messageID); err != nil {
		h.deps.Log.Warn("failed to mark reply read", "message_id", messageID, "error", err)
	}
}

// acknowledge stops outreach and always sends the fixed acknowledgment.
// The outcome succeeds whether or not the acknowledgment went out. When the
// lead's state has no edge for trigger the reply goes to a human instead and
// no acknowledgment is sent.
func (h *ReplyHandler) acknowledge(ctx context.Context, lead *domain.Lead, msg email.InboundEmail, trigger, action, note string, ack Message) Outcome {
	d := h.deps
	moved, err := d.transition(ctx, lead, trigger)
	if err != nil {
		return failed(lead.Email, action, err)
	}
	if !moved {
		return h.escalate(ctx, lead, msg, "Lead asked to "+trigger+" while "+string(lead.Status))
	}
	if err := d.note(ctx, lead.Email, note); err != nil {
		return failed(lead.Email, action, err)
	}

	result, err := d.deliver(ctx, delivery{
		lead:      *lead,
		emailType: action + "_ack",
		msg:       decision.Email{Subject: ack.Subject, Body: ack.Body},
		inReplyTo: msg.MessageID,
	})
	if err != nil {
		d.Log.LeadError(StageReplies, lead.Email, err)
	}
	if result.Success {
		if err := d.markSent(ctx, lead, "Acknowledgment sent"); err != nil {
			d.Log.LeadError(StageReplies, lead.Email, err)
		}
	}
	return Outcome{
		Email:     lead.Email,
		Action:    action,
		Success:   true,
		Status:    string(lead.Status),
		Detail:    "ack_sent=" + strconv.FormatBool(result.Success),
		MessageID: result.MessageID,
	}
}

// escalate hands the lead to a human. Leads past booking keep their state;
// the note and the event still go out.
func (h *ReplyHandler) escalate(ctx context.Context, lead *domain.Lead, msg email.InboundEmail, reason string) Outcome {
	d := h.deps
	if reason == "" {
		reason = "Complex reply needs human review"
	}
	if _, err := d.transition(ctx, lead, domain.TriggerEscalate); err != nil {
		return failed(lead.Email, OutcomeEscalated, err)
	}
	if err := d.note(ctx, lead.Email, "Escalated: "+reason); err != nil {
		return failed(lead.Email, OutcomeEscalated, err)
	}
	d.publish(ctx, events.LeadEscalated{
		BaseEvent: events.NewBaseEvent(),
		Email:     lead.Email,
		Name:      lead.Name,
		FirmName:  lead.FirmName,
		Reason:    reason,
		Subject:   msg.Subject,
		Reply:     msg.Body,
		MessageID: msg.MessageID,
	})
	d.Log.Info("lead escalated", "lead", lead.Email, "reason", reason)
	return Outcome{Email: lead.Email, Action: OutcomeEscalated, Success: true, Status: string(lead.Status), Detail: reason}
}

func (h *ReplyHandler) bookingIntent(ctx context.Context, lead *domain.Lead, msg email.InboundEmail, reply decision.ReplyAction) Outcome {
	d := h.deps
	var out decision.Email
	if reply.Response != nil && reply.Response.Body != "" {
		out = *reply.Response
	} else {
		generated, err := d.composeEmail(ctx, *lead, decision.EmailBookingConfirmation, "Lead expressed interest in booking")
		if err != nil {
			return failed(lead.Email, OutcomeBookingIntent, err)
		}
		out = generated
	}
	if out.Subject == "" {
		out.Subject = d.Copy.BookingIntentSubject
	}

	result, err := d.deliver(ctx, delivery{
		lead:      *lead,
		emailType: "booking_intent_response",
		msg:       out,
		inReplyTo: msg.MessageID,
	})
	if err != nil {
		return failed(lead.Email, OutcomeBookingIntent, err)
	}
	if result.Success {
		if err := d.markSent(ctx, lead, "Booking intent response sent"); err != nil {
			return failed(lead.Email, OutcomeBookingIntent, err)
		}
	}
	if err := d.advanceConversation(ctx, lead); err != nil {
		return failed(lead.Email, OutcomeBookingIntent, err)
	}
	return Outcome{
		Email:     lead.Email,
		Action:    OutcomeBookingIntent,
		Success:   result.Success,
		Status:    string(lead.Status),
		MessageID: result.MessageID,
		Error:     result.Error,
	}
}

func (h *ReplyHandler) respond(ctx context.Context, lead *domain.Lead, msg email.InboundEmail, reply decision.ReplyAction) Outcome {
	d := h.deps
	if reply.Response == nil || reply.Response.Body == "" {
		d.Log.Warn("no response body in reply decision", "lead", lead.Email)
		return Outcome{Email: lead.Email, Action: OutcomeResponded, Status: string(lead.Status), Error: "no response body"}
	}
	out := *reply.Response
	if out.Subject == "" {
		out.Subject = decision.FallbackReplySubject
	}

	result, err := d.deliver(ctx, delivery{
		lead:      *lead,
		emailType: decision.EmailReplyResponse,
		msg:       out,
		inReplyTo: msg.MessageID,
	})
	if err != nil {
		return failed(lead.Email, OutcomeResponded, err)
	}
	if !result.Success {
		return Outcome{Email: lead.Email, Action: OutcomeResponded, Status: string(lead.Status), Error: result.Error}
	}

	if err := d.markSent(ctx, lead, "Reply response sent"); err != nil {
		return failed(lead.Email, OutcomeResponded, err)
	}
	if err := h.applyStatusUpdate(ctx, lead, reply.StatusUpdate); err != nil {
		return failed(lead.Email, OutcomeResponded, err)
	}
	return Outcome{
		Email:     lead.Email,
		Action:    OutcomeResponded,
		Success:   true,
		Status:    string(lead.Status),
		MessageID: result.MessageID,
	}
}

// applyStatusUpdate moves the lead to the decision's requested state when a
// legal trigger leads there, otherwise it just advances the conversation.
func (h *ReplyHandler) applyStatusUpdate(ctx context.Context, lead *domain.Lead, update string) error {
	d := h.deps
	if target, ok := domain.ParseState(update); ok && target != lead.Status {
		if trigger, ok := domain.TriggerTowards(lead.Status, target); ok {
			_, err := d.transition(ctx, lead, trigger)
			return err
		}
		d.Log.Info("ignoring illegal status update", "lead", lead.Email, "from", string(lead.Status), "to", string(target))
	}
	return d.advanceConversation(ctx, lead)
}
