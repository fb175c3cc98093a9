package domain

import (
	"strings"
	"time"
)

// Lead fields that may be written through the lead store's SetField.
const (
	FieldPriority           = "priority"
	FieldQualificationScore = "qualification_score"
	FieldAIAnalysis         = "ai_analysis"
	FieldFollowUpStage      = "follow_up_stage"
	FieldBookingLink        = "booking_link"
)

var writableFields = map[string]struct{}{
	FieldPriority:           {},
	FieldQualificationScore: {},
	FieldAIAnalysis:         {},
	FieldFollowUpStage:      {},
	FieldBookingLink:        {},
}

// IsWritableField reports whether name is a lead field the core may update.
func IsWritableField(name string) bool {
	_, ok := writableFields[name]
	return ok
}

// Lead is the outreach record keyed by email address.
type Lead struct {
	Email              string     `json:"email"`
	Name               string     `json:"name"`
	Phone              string     `json:"phone,omitempty"`
	FirmName           string     `json:"firm_name,omitempty"`
	PracticeArea       string     `json:"practice_area,omitempty"`
	MonthlyLeads       string     `json:"monthly_leads,omitempty"`
	PrimaryNeed        string     `json:"primary_need,omitempty"`
	Status             State      `json:"status"`
	BookingLink        string     `json:"booking_link,omitempty"`
	FollowUpStage      int        `json:"follow_up_stage"`
	Notes              string     `json:"notes,omitempty"`
	AIAnalysis         string     `json:"ai_analysis,omitempty"`
	Priority           *string    `json:"priority,omitempty"`
	QualificationScore *float64   `json:"qualification_score,omitempty"`
	LastEmailSent      *time.Time `json:"last_email_sent,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// NormalizeEmail is the canonical key form of an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// FirstName returns the first word of the lead's name.
func (l Lead) FirstName() string {
	parts := strings.Fields(l.Name)
	if len(parts) == 0 {
		return ""
	}
	return parts[0]
}

// LastContact is the reference time for follow-up timing.
func (l Lead) LastContact() time.Time {
	if l.LastEmailSent != nil {
		return *l.LastEmailSent
	}
	return l.CreatedAt
}

// HoursSinceLastContact reports elapsed hours relative to now.
func (l Lead) HoursSinceLastContact(now time.Time) float64 {
	last := l.LastContact()
	if last.IsZero() {
		return 0
	}
	return now.Sub(last).Hours()
}

// PriorityOrUnset returns the lowercase priority or "unset".
func (l Lead) PriorityOrUnset() string {
	if l.Priority == nil {
		return "unset"
	}
	p := strings.ToLower(strings.TrimSpace(*l.Priority))
	switch p {
	case "high", "medium", "low":
		return p
	default:
		return "unset"
	}
}

// Profile is the subset of lead data handed to the decision service.
func (l Lead) Profile() map[string]any {
	profile := map[string]any{
		"email":         l.Email,
		"name":          l.Name,
		"firm_name":     l.FirmName,
		"practice_area": l.PracticeArea,
		"monthly_leads": l.MonthlyLeads,
		"primary_need":  l.PrimaryNeed,
		"status":        string(l.Status),
		"follow_up":     l.FollowUpStage,
	}
	if l.Priority != nil {
		profile["priority"] = *l.Priority
	}
	if l.AIAnalysis != "" {
		profile["ai_analysis"] = l.AIAnalysis
	}
	if l.Notes != "" {
		profile["notes"] = l.Notes
	}
	return profile
}
