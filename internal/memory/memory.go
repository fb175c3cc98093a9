// Package memory persists the action ledger, the per-lead conversation log,
// the analysis cache and small pieces of processing state.
//
// Ledger and log rows are append-only. All timestamps are stored as UTC unix
// milliseconds so the same queries serve the SQLite and Postgres backends.
package memory

import (
	"context"
	"time"
)

// DefaultMessageLimit is used by RecentMessages when limit <= 0.
const DefaultMessageLimit = 50

// DefaultTranscriptLimit is used by ConversationText when limit <= 0.
const DefaultTranscriptLimit = 20

// Role identifies who authored a conversation message.
type Role string

const (
	RoleAgent  Role = "agent"
	RoleLead   Role = "lead"
	RoleSystem Role = "system"
)

// Message is one entry of a lead's conversation log.
type Message struct {
	Role      Role           `json:"role"`
	Content   string         `json:"content"`
	Timestamp time.Time      `json:"timestamp"`
	MessageID string         `json:"message_id,omitempty"`
	Subject   string         `json:"subject,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// ActionRecord is one ledger entry.
type ActionRecord struct {
	ActionType string         `json:"action_type"`
	LeadEmail  string         `json:"lead_email"`
	Timestamp  time.Time      `json:"timestamp"`
	Details    map[string]any `json:"details,omitempty"`
	Result     map[string]any `json:"result,omitempty"`
	Success    bool           `json:"success"`
}

// Analysis is the cached decision output for a lead. It is not part of the ledger.
type Analysis struct {
	LeadEmail          string         `json:"lead_email"`
	Analysis           map[string]any `json:"analysis"`
	Priority           string         `json:"priority,omitempty"`
	QualificationScore *float64       `json:"qualification_score,omitempty"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

// Ledger records side-effecting actions and answers windowed dedup queries.
type Ledger interface {
	RecordAction(ctx context.Context, rec ActionRecord) error
	WasActionTaken(ctx context.Context, leadEmail, actionType string, window time.Duration) (bool, error)
	RecentActions(ctx context.Context, leadEmail, actionType string, limit int) ([]ActionRecord, error)
}

// ConversationLog stores the message history per lead.
type ConversationLog interface {
	AppendMessage(ctx context.Context, leadEmail string, msg Message) error
	RecentMessages(ctx context.Context, leadEmail string, limit int) ([]Message, error)
	ConversationText(ctx context.Context, leadEmail string, limit int) (string, error)
	CountMessages(ctx context.Context, leadEmail string) (int, error)
}

// Store is the full memory surface used by the outreach core.
type Store interface {
	Ledger
	ConversationLog
	SaveAnalysis(ctx context.Context, a Analysis) error
	// GetAnalysis returns nil when nothing is cached for the lead.
	GetAnalysis(ctx context.Context, leadEmail string) (*Analysis, error)
	SetState(ctx context.Context, key, value string) error
	GetState(ctx context.Context, key string) (string, bool, error)
	Close() error
}

// Option configures a store.
type Option func(*sqlStore)

// WithClock overrides the time source used for record timestamps and window bounds.
func WithClock(now func() time.Time) Option {
	return func(s *sqlStore) {
		if now != nil {
			s.now = now
		}
	}
}
