package outreach

import (
	"time"
)

// StageError is a stage-level failure recorded in a cycle report.
type StageError struct {
	Stage string `json:"stage"`
	Error string `json:"error"`
}

// CycleSummary totals a cycle.
type CycleSummary struct {
	DurationSeconds        float64 `json:"duration_seconds"`
	TotalNewLeadsProcessed int     `json:"total_new_leads_processed"`
	TotalRepliesProcessed  int     `json:"total_replies_processed"`
	TotalBookingsDetected  int     `json:"total_bookings_detected"`
	TotalFollowUpsSent     int     `json:"total_follow_ups_sent"`
	TotalErrors            int     `json:"total_errors"`
}

// CycleReport is the result of one orchestrator cycle. The core never persists it.
type CycleReport struct {
	ID         string       `json:"id"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	NewLeads   []Outcome    `json:"new_leads"`
	Replies    []Outcome    `json:"replies"`
	Bookings   []Outcome    `json:"bookings"`
	FollowUps  []Outcome    `json:"follow_ups"`
	Errors     []StageError `json:"errors"`
	Summary    CycleSummary `json:"summary"`
}

func newCycleReport(id string, started time.Time) *CycleReport {
	return &CycleReport{
		ID:        id,
		StartedAt: started,
		NewLeads:  []Outcome{},
		Replies:   []Outcome{},
		Bookings:  []Outcome{},
		FollowUps: []Outcome{},
		Errors:    []StageError{},
	}
}

func (r *CycleReport) addError(stage string, err error) {
	r.Errors = append(r.Errors, StageError{Stage: stage, Error: err.Error()})
}

// finalize computes the summary.
func (r *CycleReport) finalize(finished time.Time) {
	r.FinishedAt = finished
	bookings := 0
	for _, o := range r.Bookings {
		if o.Booked {
			bookings++
		}
	}
	sent := 0
	for _, o := range r.FollowUps {
		if o.Sent() {
			sent++
		}
	}
	r.Summary = CycleSummary{
		DurationSeconds:        round2(finished.Sub(r.StartedAt).Seconds()),
		TotalNewLeadsProcessed: len(r.NewLeads),
		TotalRepliesProcessed:  len(r.Replies),
		TotalBookingsDetected:  bookings,
		TotalFollowUpsSent:     sent,
		TotalErrors:            len(r.Errors),
	}
}
