// Package events defines the funnel's domain events. The bus itself lives
// in platform/events and is re-exported here so modules import one package.
package events

import (
	"outreach_backend/platform/events"
	"outreach_backend/platform/logger"
)

type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
	InMemoryBus = events.InMemoryBus
)

var NewBaseEvent = events.NewBaseEvent

func NewInMemoryBus(log *logger.Logger) *InMemoryBus {
	return events.NewInMemoryBus(log)
}

// =============================================================================
// Lead Events
// =============================================================================

// LeadCreated is published when a lead arrives through the intake webhook.
type LeadCreated struct {
	BaseEvent
	Email    string `json:"email"`
	Name     string `json:"name"`
	FirmName string `json:"firmName,omitempty"`
	Source   string `json:"source"`
}

func (e LeadCreated) EventName() string { return "leads.lead.created" }

// LeadStatusChanged is published after every applied state transition.
type LeadStatusChanged struct {
	BaseEvent
	Email   string `json:"email"`
	From    string `json:"from"`
	To      string `json:"to"`
	Trigger string `json:"trigger"`
}

func (e LeadStatusChanged) EventName() string { return "leads.status.changed" }

// LeadEscalated is published when a reply needs a human.
type LeadEscalated struct {
	BaseEvent
	Email     string `json:"email"`
	Name      string `json:"name"`
	FirmName  string `json:"firmName,omitempty"`
	Reason    string `json:"reason"`
	Subject   string `json:"subject,omitempty"`
	Reply     string `json:"reply"`
	MessageID string `json:"messageId,omitempty"`
}

func (e LeadEscalated) EventName() string { return "leads.lead.escalated" }

// =============================================================================
// Cycle Events
// =============================================================================

// CycleCompleted is published after each orchestrator cycle.
type CycleCompleted struct {
	BaseEvent
	CycleID         string  `json:"cycleId"`
	DurationSeconds float64 `json:"durationSeconds"`
	NewLeads        int     `json:"newLeads"`
	Replies         int     `json:"replies"`
	Bookings        int     `json:"bookings"`
	FollowUps       int     `json:"followUps"`
	Errors          int     `json:"errors"`
}

func (e CycleCompleted) EventName() string { return "outreach.cycle.completed" }
