// Package email is the messaging channel: SMTP for outbound mail and IMAP
// for lead replies.
package email

import (
	"context"
	"time"
)

// OutboundEmail is a plain-text message to a lead.
type OutboundEmail struct {
	To        string
	Subject   string
	Body      string
	InReplyTo string
}

// SendResult reports a delivery attempt. Failures are values, not errors,
// so callers can record them in the ledger.
type SendResult struct {
	Success   bool
	MessageID string
	Error     string
}

// InboundEmail is a reply read from the mailbox.
type InboundEmail struct {
	MessageID  string
	From       string
	Subject    string
	Body       string
	ReceivedAt time.Time
}

// Sender delivers outbound mail.
type Sender interface {
	Send(ctx context.Context, msg OutboundEmail) SendResult
}

// Inbox reads replies.
type Inbox interface {
	RecentInbound(ctx context.Context, hoursBack float64) ([]InboundEmail, error)
	MarkRead(ctx context.Context, messageID string) error
}

// Channel combines Sender and Inbox.
type Channel struct {
	Sender
	Inbox
}

// NoopSender accepts every message without delivering it. Used when EMAIL_ENABLED=false.
type NoopSender struct{}

func (NoopSender) Send(_ context.Context, msg OutboundEmail) SendResult {
	return SendResult{Success: true, MessageID: "noop-" + msg.To}
}

// NoopInbox never has replies. Used when IMAP is not configured.
type NoopInbox struct{}

func (NoopInbox) RecentInbound(context.Context, float64) ([]InboundEmail, error) { return nil, nil }

func (NoopInbox) MarkRead(context.Context, string) error { return nil }
