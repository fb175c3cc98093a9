package outreach

import (
	"context"
	"errors"
	"fmt"
	"time"

	apptrepo "outreach_backend/internal/appointments/repository"
	"outreach_backend/internal/decision"
	"outreach_backend/internal/leads/domain"
	"outreach_backend/internal/leads/repository"
)

// StageBookings is the report key of the booking stage.
const StageBookings = "bookings"

// bookableStates are the states that may take detect_booking.
var bookableStates = []domain.State{
	domain.StateBookingInviteSent,
	domain.StateFollowUp1,
	domain.StateFollowUp2,
	domain.StateFollowUp3,
	domain.StateReplyReceived,
	domain.StateConversationActive,
}

// BookingHandler detects booked calls and sends the pre-call checklist.
type BookingHandler struct {
	deps *Deps
}

func NewBookingHandler(deps *Deps) *BookingHandler {
	deps.normalize()
	return &BookingHandler{deps: deps}
}

// Process scans recent calendar events, then checks every bookable lead by
// attendee, then sends checklists to leads that were marked BOOKED by hand.
func (h *BookingHandler) Process(ctx context.Context, hoursBack float64) ([]Outcome, error) {
	d := h.deps
	if hoursBack <= 0 {
		hoursBack = d.Settings.BookingLookbackHours
	}

	var (
		outcomes []Outcome
		errs     []error
		handled  = make(map[string]bool)
	)

	recent, err := d.Calendar.RecentEvents(ctx, hoursBack)
	if err != nil {
		errs = append(errs, storeErr("list calendar events", err))
	}
	for _, ev := range recent {
		for _, attendee := range ev.Attendees {
			addr := domain.NormalizeEmail(attendee)
			if addr == "" || handled[addr] {
				continue
			}
			lead, err := d.Leads.GetLead(ctx, addr)
			if errors.Is(err, repository.ErrNotFound) {
				continue
			}
			if err != nil {
				errs = append(errs, storeErr("get lead", err))
				continue
			}
			if !domain.CanTransition(lead.Status, domain.TriggerDetectBooking) {
				continue
			}
			handled[addr] = true
			if o, ok := h.detectSafely(ctx, *lead, ev); ok {
				outcomes = append(outcomes, o)
			}
		}
	}

	active, err := d.Leads.ListLeads(ctx, bookableStates...)
	if err != nil {
		errs = append(errs, storeErr("list leads", err))
	}
	for _, lead := range active {
		if handled[domain.NormalizeEmail(lead.Email)] {
			continue
		}
		dup, err := d.wasTaken(ctx, lead.Email, ActionDetectBooking, OutboundDedupWindow)
		if err != nil {
			outcomes = append(outcomes, failed(lead.Email, OutcomeError, err))
			continue
		}
		if dup {
			continue
		}
		ev, err := d.Calendar.FindEventByAttendee(ctx, lead.Email)
		if err != nil {
			outcomes = append(outcomes, failed(lead.Email, OutcomeError, storeErr("find calendar event", err)))
			continue
		}
		if ev == nil {
			continue
		}
		handled[domain.NormalizeEmail(lead.Email)] = true
		if o, ok := h.detectSafely(ctx, lead, *ev); ok {
			outcomes = append(outcomes, o)
		}
	}

	booked, err := d.Leads.ListLeads(ctx, domain.StateBooked)
	if err != nil {
		errs = append(errs, storeErr("list booked leads", err))
	}
	for _, lead := range booked {
		if handled[domain.NormalizeEmail(lead.Email)] {
			continue
		}
		checklist := d.safely(StageBookings, lead.Email, func() Outcome {
			return h.sendChecklist(ctx, &lead, nil)
		})
		if checklist.Action == OutcomeSkippedDuplicate {
			continue
		}
		outcomes = append(outcomes, checklist)
	}

	return outcomes, errors.Join(errs...)
}

func (h *BookingHandler) detectSafely(ctx context.Context, lead domain.Lead, ev apptrepo.Event) (Outcome, bool) {
	var detected bool
	o := h.deps.safely(StageBookings, lead.Email, func() Outcome {
		var out Outcome
		out, detected = h.detect(ctx, lead, ev)
		return out
	})
	return o, detected || o.Error != ""
}

// detect transitions the lead to BOOKED once and sends the checklist.
// It reports false when the booking was already handled.
func (h *BookingHandler) detect(ctx context.Context, lead domain.Lead, ev apptrepo.Event) (Outcome, bool) {
	d := h.deps
	unlock := d.locks.Lock(lockKey(lead.Email, ActionDetectBooking))
	defer unlock()

	dup, err := d.wasTaken(ctx, lead.Email, ActionDetectBooking, OutboundDedupWindow)
	if err != nil {
		return failed(lead.Email, OutcomeError, err), true
	}
	if dup || !domain.CanTransition(lead.Status, domain.TriggerDetectBooking) {
		return Outcome{}, false
	}

	if _, err := d.transition(ctx, &lead, domain.TriggerDetectBooking); err != nil {
		return failed(lead.Email, OutcomeError, err), true
	}
	start := ev.Start.UTC().Format(time.RFC3339)
	if err := d.note(ctx, lead.Email, fmt.Sprintf("Booking detected: %s at %s", ev.Summary, start)); err != nil {
		return failed(lead.Email, OutcomeError, err), true
	}
	if err := d.record(ctx, lead.Email, ActionDetectBooking, true, map[string]any{
		"event_id": ev.ID,
		"summary":  ev.Summary,
		"start":    start,
	}, nil); err != nil {
		return failed(lead.Email, OutcomeError, err), true
	}
	d.Log.Info("booking detected", "lead", lead.Email, "event_id", ev.ID, "start", start)

	checklist := h.sendChecklist(ctx, &lead, &ev)
	return Outcome{
		Email:     lead.Email,
		Action:    OutcomeBookingDetected,
		Success:   true,
		Booked:    true,
		Status:    string(lead.Status),
		Detail:    ev.Summary,
		Checklist: &checklist,
	}, true
}

// sendChecklist sends the pre-call checklist at most once per dedup window.
func (h *BookingHandler) sendChecklist(ctx context.Context, lead *domain.Lead, ev *apptrepo.Event) Outcome {
	d := h.deps
	unlock := d.locks.Lock(lockKey(lead.Email, ActionSendChecklist))
	defer unlock()

	dup, err := d.wasTaken(ctx, lead.Email, ActionSendChecklist, OutboundDedupWindow)
	if err != nil {
		return failed(lead.Email, OutcomeError, err)
	}
	if dup {
		return Outcome{Email: lead.Email, Action: OutcomeSkippedDuplicate, Success: true, Status: string(lead.Status)}
	}

	extra := "Lead booked a diagnostic call"
	if ev != nil {
		extra = fmt.Sprintf("Call booked: %s at %s", ev.Summary, ev.Start.UTC().Format(time.RFC3339))
	}
	msg, err := d.composeEmail(ctx, *lead, decision.EmailPreCallChecklist, extra)
	if err != nil {
		return failed(lead.Email, OutcomeError, err)
	}
	result, err := d.deliver(ctx, delivery{
		lead:      *lead,
		action:    ActionSendChecklist,
		emailType: decision.EmailPreCallChecklist,
		msg:       msg,
	})
	if err != nil {
		return failed(lead.Email, OutcomeError, err)
	}
	if !result.Success {
		return Outcome{Email: lead.Email, Action: OutcomeSendFailed, Status: string(lead.Status), Error: result.Error}
	}
	if _, err := d.transition(ctx, lead, domain.TriggerSendChecklist); err != nil {
		return failed(lead.Email, OutcomeError, err)
	}
	if err := d.markSent(ctx, lead, "Pre-call checklist sent"); err != nil {
		return failed(lead.Email, OutcomeError, err)
	}
	return Outcome{
		Email:     lead.Email,
		Action:    OutcomeChecklistSent,
		Success:   true,
		Status:    string(lead.Status),
		MessageID: result.MessageID,
	}
}
