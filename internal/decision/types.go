// Package decision turns lead context into structured decisions using an
// external generative model. Every call yields one Result variant; output that
// cannot be parsed becomes Unparsed so callers always have a fallback path.
package decision

import "strconv"

// Task names a decision request kind.
type Task string

const (
	TaskAnalysis      Task = "analysis"
	TaskEmail         Task = "email"
	TaskReply         Task = "reply"
	TaskFollowUp      Task = "follow_up"
	TaskQualification Task = "qualification"
)

// Default model-turn ceilings per task.
var defaultMaxSteps = map[Task]int{
	TaskAnalysis:      3,
	TaskEmail:         3,
	TaskReply:         5,
	TaskFollowUp:      3,
	TaskQualification: 3,
}

// MaxSteps returns the default iteration ceiling for task.
func MaxSteps(task Task) int {
	if n, ok := defaultMaxSteps[task]; ok {
		return n
	}
	return 3
}

// Reply actions.
const (
	ActionRespond     = "respond"
	ActionBook        = "book"
	ActionPause       = "pause"
	ActionUnsubscribe = "unsubscribe"
	ActionEscalate    = "escalate"
)

// Email types passed to GenerateEmail.
const (
	EmailBookingInvite       = "booking_invite"
	EmailBookingConfirmation = "booking_confirmation"
	EmailPreCallChecklist    = "pre_call_checklist"
	EmailReplyResponse       = "reply_response"
	EmailScorecard           = "scorecard"
)

// FollowUpEmailType names the email for follow-up n.
func FollowUpEmailType(n int) string {
	return "follow_up_" + strconv.Itoa(n)
}

// Result is one of Analysis, Email, ReplyAction, FollowUpDecision, Qualification or Unparsed.
type Result interface {
	task() Task
}

// Analysis is the lead engagement assessment.
type Analysis struct {
	Priority             string   `json:"priority"`
	Score                *float64 `json:"score,omitempty"`
	PersonalizationNotes string   `json:"personalization_notes"`
	RecommendedApproach  string   `json:"recommended_approach"`
	PainPoints           []string `json:"pain_points,omitempty"`
	PracticeAreaInsights string   `json:"practice_area_insights,omitempty"`
	RedFlags             []string `json:"red_flags,omitempty"`
}

// Email is generated outbound copy.
type Email struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// ReplyAction is the decision for an inbound reply.
type ReplyAction struct {
	Action         string `json:"action"`
	IntentDetected string `json:"intent_detected,omitempty"`
	Response       *Email `json:"response_email,omitempty"`
	StatusUpdate   string `json:"status_update,omitempty"`
	Notes          string `json:"notes,omitempty"`
}

// FollowUpDecision says whether to send the next follow-up.
type FollowUpDecision struct {
	ShouldFollowUp bool     `json:"should_follow_up"`
	WaitHours      *float64 `json:"wait_hours,omitempty"`
	Reason         string   `json:"reason"`
	Email          *Email   `json:"email,omitempty"`
}

// Qualification is the post-call fit assessment.
type Qualification struct {
	Qualified        bool     `json:"qualified"`
	Score            float64  `json:"score"`
	Reasons          []string `json:"reasons,omitempty"`
	Concerns         []string `json:"concerns,omitempty"`
	NextSteps        string   `json:"next_steps,omitempty"`
	IdealCustomerFit string   `json:"ideal_customer_fit,omitempty"`
}

// Unparsed carries model output that did not yield the expected structure.
type Unparsed struct {
	Task   Task
	Raw    string
	Reason string
}

func (Analysis) task() Task         { return TaskAnalysis }
func (Email) task() Task            { return TaskEmail }
func (ReplyAction) task() Task      { return TaskReply }
func (FollowUpDecision) task() Task { return TaskFollowUp }
func (Qualification) task() Task    { return TaskQualification }
func (u Unparsed) task() Task       { return u.Task }

// Unparsed reasons.
const (
	ReasonNoJSON        = "no_json"
	ReasonInvalidJSON   = "invalid_json"
	ReasonMaxIterations = "max_iterations"
)

// ToMap renders an analysis for the lead store cache.
func (a Analysis) ToMap() map[string]any {
	m := map[string]any{
		"priority":              a.Priority,
		"personalization_notes": a.PersonalizationNotes,
		"recommended_approach":  a.RecommendedApproach,
	}
	if a.Score != nil {
		m["score"] = *a.Score
	}
	if len(a.PainPoints) > 0 {
		m["pain_points"] = a.PainPoints
	}
	if a.PracticeAreaInsights != "" {
		m["practice_area_insights"] = a.PracticeAreaInsights
	}
	if len(a.RedFlags) > 0 {
		m["red_flags"] = a.RedFlags
	}
	return m
}
