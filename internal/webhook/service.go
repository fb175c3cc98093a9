package webhook

import (
	"context"
	"errors"

	"outreach_backend/internal/events"
	"outreach_backend/internal/leads/domain"
	"outreach_backend/internal/leads/repository"
	"outreach_backend/platform/apperr"
	"outreach_backend/platform/logger"
	"outreach_backend/platform/phone"
	"outreach_backend/platform/sanitize"
)

const defaultSource = "webhook"

// IntakeRequest is one lead submission from the booking form or a site builder.
type IntakeRequest struct {
	Email        string `json:"email" form:"email" validate:"required,email,max=254"`
	Name         string `json:"name" form:"name" validate:"required,min=1,max=200"`
	Phone        string `json:"phone,omitempty" form:"phone" validate:"omitempty,max=40"`
	FirmName     string `json:"firmName,omitempty" form:"firmName" validate:"max=200"`
	PracticeArea string `json:"practiceArea,omitempty" form:"practiceArea" validate:"max=200"`
	MonthlyLeads string `json:"monthlyLeads,omitempty" form:"monthlyLeads" validate:"max=100"`
	PrimaryNeed  string `json:"primaryNeed,omitempty" form:"primaryNeed" validate:"max=2000"`
	Source       string `json:"source,omitempty" form:"source" validate:"max=100"`
}

// IntakeResponse is returned to the caller on success.
type IntakeResponse struct {
	Email   string `json:"email"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Service stores inbound leads and announces them on the bus.
type Service struct {
	leads    repository.LeadCreator
	eventBus events.Bus
	region   string
	log      *logger.Logger
}

// NewService creates the intake service. region is the default phone region.
func NewService(leads repository.LeadCreator, eventBus events.Bus, region string, log *logger.Logger) *Service {
	if region == "" {
		region = phone.DefaultRegion
	}
	return &Service{leads: leads, eventBus: eventBus, region: region, log: log}
}

// Submit creates the lead in NEW_SUBMISSION. The next cycle picks it up.
func (s *Service) Submit(ctx context.Context, req IntakeRequest) (*IntakeResponse, error) {
	lead := domain.Lead{
		Email:        domain.NormalizeEmail(req.Email),
		Name:         sanitize.Line(req.Name),
		Phone:        phone.NormalizeE164In(req.Phone, s.region),
		FirmName:     sanitize.Line(req.FirmName),
		PracticeArea: sanitize.Line(req.PracticeArea),
		MonthlyLeads: sanitize.Line(req.MonthlyLeads),
		PrimaryNeed:  sanitize.Text(req.PrimaryNeed),
		Status:       domain.StateNewSubmission,
	}

	if lead.Name == "" {
		return nil, apperr.Validation("name is empty after sanitizing").WithOp("webhook.Submit")
	}

	created, err := s.leads.Create(ctx, lead)
	if errors.Is(err, repository.ErrAlreadyExists) {
		return nil, apperr.Conflict("a lead with this email already exists").WithOp("webhook.Submit")
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to store lead", err).WithOp("webhook.Submit")
	}

	source := sanitize.Line(req.Source)
	if source == "" {
		source = defaultSource
	}

	s.log.Info("lead received", "email", created.Email, "source", source)
	if s.eventBus != nil {
		s.eventBus.Publish(ctx, events.LeadCreated{
			BaseEvent: events.NewBaseEvent(),
			Email:     created.Email,
			Name:      created.Name,
			FirmName:  created.FirmName,
			Source:    source,
		})
	}

	return &IntakeResponse{
		Email:   created.Email,
		Status:  string(created.Status),
		Message: "lead received",
	}, nil
}
