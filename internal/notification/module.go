// Package notification turns domain events into operator notifications:
// escalation emails to the configured address and the admin live feed.
// Outreach code publishes events and never talks to these channels directly.
package notification

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"text/template"

	"outreach_backend/internal/email"
	"outreach_backend/internal/events"
	apphttp "outreach_backend/internal/http"
	"outreach_backend/internal/notification/sse"
	"outreach_backend/internal/outreach"
	"outreach_backend/platform/config"
	"outreach_backend/platform/httpkit"
	"outreach_backend/platform/logger"
)

const maxReplyExcerpt = 2000

var escalationTemplate = template.Must(template.New("escalation").Parse(`A lead reply needs human review.

Lead:    {{.Name}} <{{.Email}}>
Firm:    {{.FirmName}}
Reason:  {{.Reason}}
Subject: {{.Subject}}

--- reply ---
{{.Reply}}

-- {{.From}} outreach
`))

// Module handles all notification-related event subscriptions.
type Module struct {
	sender email.Sender
	cfg    config.NotificationConfig
	texts  *outreach.Copy
	sse    *sse.Service
	log    *logger.Logger
}

// New creates the notification module. sender may be nil, in which case
// escalations are only logged.
func New(sender email.Sender, cfg config.NotificationConfig, texts *outreach.Copy, log *logger.Logger) *Module {
	if texts == nil {
		texts = outreach.DefaultCopy()
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Module{sender: sender, cfg: cfg, texts: texts, log: log}
}

func (m *Module) Name() string { return "notification" }

// SetSSE attaches the admin live feed.
func (m *Module) SetSSE(s *sse.Service) { m.sse = s }

// RegisterRoutes mounts the admin live feed when one is attached.
// GET /api/v1/admin/events (the token query parameter works for EventSource)
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	if m.sse == nil {
		return
	}
	ctx.Admin.GET("/events", m.sse.Handler(httpkit.SubjectFromContext))
}

// RegisterHandlers subscribes to the outreach events on the event bus.
func (m *Module) RegisterHandlers(bus *events.InMemoryBus) {
	bus.Subscribe(events.LeadCreated{}.EventName(), m)
	bus.Subscribe(events.LeadStatusChanged{}.EventName(), m)
	bus.Subscribe(events.LeadEscalated{}.EventName(), m)
	bus.Subscribe(events.CycleCompleted{}.EventName(), m)

	m.log.Info("notification module registered event handlers")
}

var _ apphttp.Module = (*Module)(nil)

// Handle routes events to the appropriate handler method.
func (m *Module) Handle(ctx context.Context, event events.Event) error {
	switch e := event.(type) {
	case events.LeadCreated:
		m.push(sse.Event{ID: e.EventID(), Type: sse.EventLeadCreated, Lead: e.Email, Data: e})
		return nil
	case events.LeadStatusChanged:
		m.push(sse.Event{
			ID:      e.EventID(),
			Type:    sse.EventLeadStatusChanged,
			Lead:    e.Email,
			Message: fmt.Sprintf("%s -> %s", e.From, e.To),
			Data:    e,
		})
		return nil
	case events.LeadEscalated:
		return m.handleLeadEscalated(ctx, e)
	case events.CycleCompleted:
		m.push(sse.Event{ID: e.EventID(), Type: sse.EventCycleCompleted, Message: e.CycleID, Data: e})
		return nil
	default:
		m.log.Debug("unhandled event", "event", event.EventName())
		return nil
	}
}

func (m *Module) push(e sse.Event) {
	if m.sse != nil {
		m.sse.Broadcast(e)
	}
}

func (m *Module) handleLeadEscalated(ctx context.Context, e events.LeadEscalated) error {
	m.push(sse.Event{ID: e.EventID(), Type: sse.EventLeadEscalated, Lead: e.Email, Message: e.Reason, Data: e})

	to := ""
	if m.cfg != nil {
		to = strings.TrimSpace(m.cfg.GetEscalationEmail())
	}
	if to == "" || m.sender == nil {
		m.log.Warn("escalation not emailed: no escalation address configured", "lead", e.Email, "reason", e.Reason)
		return nil
	}

	body, err := renderEscalation(e, m.fromName())
	if err != nil {
		return err
	}
	result := m.sender.Send(ctx, email.OutboundEmail{
		To:      to,
		Subject: m.texts.Escalation(e.Email),
		Body:    body,
	})
	if !result.Success {
		m.log.Error("failed to send escalation email", "lead", e.Email, "to", to, "error", result.Error)
		return fmt.Errorf("send escalation for %s: %s", e.Email, result.Error)
	}
	m.log.Info("escalation email sent", "lead", e.Email, "to", to, "message_id", result.MessageID)
	return nil
}

func (m *Module) fromName() string {
	if m.cfg == nil || m.cfg.GetFromName() == "" {
		return "BizDeedz"
	}
	return m.cfg.GetFromName()
}

func renderEscalation(e events.LeadEscalated, from string) (string, error) {
	reply := strings.TrimSpace(e.Reply)
	if len(reply) > maxReplyExcerpt {
		reply = reply[:maxReplyExcerpt] + "\n[truncated]"
	}
	var buf bytes.Buffer
	err := escalationTemplate.Execute(&buf, map[string]any{
		"Name":     e.Name,
		"Email":    e.Email,
		"FirmName": e.FirmName,
		"Reason":   e.Reason,
		"Subject":  e.Subject,
		"Reply":    reply,
		"From":     from,
	})
	if err != nil {
		return "", fmt.Errorf("render escalation: %w", err)
	}
	return buf.String(), nil
}
