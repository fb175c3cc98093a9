// Package outreach drives leads through the funnel: the four stage handlers,
// the post-call qualification operations, and the orchestrator that runs the
// stages once per polling cycle.
package outreach

import (
	"strconv"
	"strings"
	"time"

	"outreach_backend/internal/events"
	"outreach_backend/internal/leads/domain"
	"outreach_backend/internal/memory"
	"outreach_backend/platform/config"
	"outreach_backend/platform/logger"
)

// Dedup windows for the action ledger.
const (
	OutboundDedupWindow = 168 * time.Hour
	ReplyDedupWindow    = 24 * time.Hour
)

// Ledger action types.
const (
	ActionSendBookingInvite = "send_booking_invite"
	ActionDetectBooking     = "detect_booking"
	ActionSendChecklist     = "send_checklist"
	ActionCompleteCall      = "complete_call"
	ActionQualify           = "qualify_lead"
	ActionDeliverScorecard  = "deliver_scorecard"
	ActionEscalationNotice  = "notify_escalation"
)

// ProcessReplyAction is the ledger key for one inbound message.
func ProcessReplyAction(messageID string) string {
	return "process_reply_" + messageID
}

// SendFollowUpAction is the ledger key for follow-up n.
func SendFollowUpAction(n int) string {
	return domain.FollowUpTrigger(n)
}

// Outcome actions reported in cycle reports.
const (
	OutcomeSkippedDuplicate    = "skipped_duplicate"
	OutcomeSkippedInactive     = "skipped_inactive"
	OutcomeStatusRepaired      = "status_repaired"
	OutcomeBookingInviteSent   = "booking_invite_sent"
	OutcomeAnalysisFailed      = "analysis_failed"
	OutcomeSendFailed          = "send_failed"
	OutcomePaused              = "paused"
	OutcomeUnsubscribed        = "unsubscribed"
	OutcomeEscalated           = "escalated"
	OutcomeBookingIntent       = "booking_intent_response"
	OutcomeResponded           = "responded"
	OutcomeBookingDetected     = "booking_detected"
	OutcomeChecklistSent       = "checklist_sent"
	OutcomeNoFollowUp          = "no_follow_up"
	OutcomeWait                = "wait"
	OutcomeMaxFollowUpsReached = "max_follow_ups_reached"
	OutcomeError               = "error"
)

// OutcomeFollowUpSent is the action reported after follow-up n went out.
func OutcomeFollowUpSent(n int) string {
	return "sent_follow_up_" + strconv.Itoa(n)
}

// Outcome is the per-lead result of a stage handler.
type Outcome struct {
	Email     string   `json:"email"`
	Action    string   `json:"action"`
	Success   bool     `json:"success"`
	Booked    bool     `json:"booked,omitempty"`
	Status    string   `json:"status,omitempty"`
	Detail    string   `json:"detail,omitempty"`
	MessageID string   `json:"message_id,omitempty"`
	Error     string   `json:"error,omitempty"`
	Checklist *Outcome `json:"checklist,omitempty"`
}

// Sent reports whether the outcome represents a delivered email.
func (o Outcome) Sent() bool {
	return strings.Contains(o.Action, "sent")
}

func failed(email, action string, err error) Outcome {
	return Outcome{Email: email, Action: action, Success: false, Error: err.Error()}
}

// Settings are the funnel timing knobs.
type Settings struct {
	FollowUpHours         []int
	MaxFollowUps          int
	MinHoursBetweenEmails float64
	ReplyLookbackHours    float64
	BookingLookbackHours  float64
	AnalyzingRetryAfter   time.Duration
}

// DefaultSettings mirrors the configuration defaults.
func DefaultSettings() Settings {
	return Settings{
		FollowUpHours:         []int{24, 72, 168},
		MaxFollowUps:          3,
		MinHoursBetweenEmails: 12,
		ReplyLookbackHours:    6,
		BookingLookbackHours:  24,
		AnalyzingRetryAfter:   time.Hour,
	}
}

// SettingsFromConfig reads Settings from the outreach configuration.
func SettingsFromConfig(cfg config.OutreachConfig) Settings {
	return Settings{
		FollowUpHours:         cfg.GetFollowUpHours(),
		MaxFollowUps:          cfg.GetMaxFollowUps(),
		MinHoursBetweenEmails: cfg.GetMinHoursBetweenEmails(),
		ReplyLookbackHours:    cfg.GetReplyLookbackHours(),
		BookingLookbackHours:  cfg.GetBookingLookbackHours(),
		AnalyzingRetryAfter:   cfg.GetAnalyzingRetryAfter(),
	}
}

// Deps are the collaborators shared by every handler. Bus is optional.
type Deps struct {
	Leads    LeadStore
	Channel  Channel
	Calendar Calendar
	Decider  Decider
	Memory   memory.Store
	Bus      events.Bus
	Copy     *Copy
	Settings Settings
	Log      *logger.Logger
	Now      func() time.Time

	locks *KeyedMutex
}

func (d *Deps) normalize() {
	if d.Log == nil {
		d.Log = logger.Discard()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Copy == nil {
		d.Copy = DefaultCopy()
	}
	if d.locks == nil {
		d.locks = NewKeyedMutex()
	}
	if len(d.Settings.FollowUpHours) == 0 && d.Settings.MaxFollowUps == 0 {
		d.Settings = DefaultSettings()
	}
}

func (d *Deps) now() time.Time {
	return d.Now().UTC()
}
