package outreach

import (
	"context"

	apptrepo "outreach_backend/internal/appointments/repository"
	"outreach_backend/internal/decision"
	"outreach_backend/internal/email"
	"outreach_backend/internal/leads/domain"
)

// LeadStore is the system of record for leads. Implementations must be
// read-after-write consistent; handlers re-read leads on every pass.
type LeadStore interface {
	ListLeads(ctx context.Context, statuses ...domain.State) ([]domain.Lead, error)
	// GetLead returns repository.ErrNotFound for unknown emails.
	GetLead(ctx context.Context, email string) (*domain.Lead, error)
	SetStatus(ctx context.Context, email string, status domain.State) error
	SetField(ctx context.Context, email, field string, value any) error
	AppendNote(ctx context.Context, email, note string) error
	RecordEmailSent(ctx context.Context, email, note string) error
}

// Channel sends mail to leads and reads their replies.
type Channel interface {
	email.Sender
	email.Inbox
}

// Calendar exposes booked diagnostic calls.
type Calendar interface {
	RecentEvents(ctx context.Context, hoursBack float64) ([]apptrepo.Event, error)
	// FindEventByAttendee returns nil when no event matches.
	FindEventByAttendee(ctx context.Context, email string) (*apptrepo.Event, error)
}

// Decider is the reasoning service. Every method returns a decision.Result
// variant; callers substitute a fallback for decision.Unparsed.
type Decider interface {
	AnalyzeLead(ctx context.Context, lead domain.Lead) (decision.Result, error)
	GenerateEmail(ctx context.Context, req decision.EmailRequest) (decision.Result, error)
	HandleReply(ctx context.Context, lead domain.Lead, reply, history string) (decision.Result, error)
	DecideFollowUp(ctx context.Context, req decision.FollowUpRequest) (decision.Result, error)
	QualifyLead(ctx context.Context, lead domain.Lead, history string) (decision.Result, error)
}

// Archiver persists finished cycle reports.
type Archiver interface {
	ArchiveCycleReport(ctx context.Context, report *CycleReport) error
}

// CycleLock keeps cycles from overlapping across processes.
type CycleLock interface {
	// TryLock returns false when another process holds the lock.
	TryLock(ctx context.Context) (bool, error)
	// Keep renews the hold until ctx is done. A non-nil error means the
	// lock was lost and the cycle must stop.
	Keep(ctx context.Context) error
	Unlock(ctx context.Context) error
}
