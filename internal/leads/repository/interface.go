package repository

import (
	"context"

	"outreach_backend/internal/leads/domain"
)

// =====================================
// Segregated Interfaces (Interface Segregation Principle)
// =====================================

// LeadReader provides read-only access to lead data.
type LeadReader interface {
	ListLeads(ctx context.Context, statuses ...domain.State) ([]domain.Lead, error)
	GetLead(ctx context.Context, email string) (*domain.Lead, error)
}

// LeadCreator inserts new leads. Intake uses it; the funnel never does.
type LeadCreator interface {
	Create(ctx context.Context, l domain.Lead) (*domain.Lead, error)
}

// LeadWriter provides the mutations the funnel applies to existing leads.
type LeadWriter interface {
	SetStatus(ctx context.Context, email string, status domain.State) error
	SetField(ctx context.Context, email, field string, value any) error
	AppendNote(ctx context.Context, email, note string) error
	RecordEmailSent(ctx context.Context, email, note string) error
}

// LeadsRepository is the full lead store.
type LeadsRepository interface {
	LeadReader
	LeadCreator
	LeadWriter
}

var _ LeadsRepository = (*Repository)(nil)
