package decision

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Fallback copy used when the model output cannot be parsed.
const (
	FallbackEmailSubject = "AI Readiness Scorecard - Next Steps"
	FallbackReplySubject = "Re: AI Readiness Scorecard"
)

// jsonObject spans from the first '{' to the last '}'.
var jsonObject = regexp.MustCompile(`\{[\s\S]*\}`)

func extractJSON(text string) (string, bool) {
	match := jsonObject.FindString(text)
	return match, match != ""
}

// Parse maps raw model text to the Result variant for task.
func Parse(task Task, text string) Result {
	raw, ok := extractJSON(text)
	if !ok {
		return Unparsed{Task: task, Raw: text, Reason: ReasonNoJSON}
	}

	var (
		result Result
		err    error
	)
	switch task {
	case TaskAnalysis:
		var a Analysis
		err = json.Unmarshal([]byte(raw), &a)
		a.Priority = normalizePriority(a.Priority)
		if a.RecommendedApproach == "" {
			a.RecommendedApproach = "standard"
		}
		result = a
	case TaskEmail:
		var e Email
		err = json.Unmarshal([]byte(raw), &e)
		if err == nil && strings.TrimSpace(e.Subject) == "" && strings.TrimSpace(e.Body) == "" {
			return Unparsed{Task: task, Raw: text, Reason: ReasonInvalidJSON}
		}
		result = e
	case TaskReply:
		var r ReplyAction
		err = json.Unmarshal([]byte(raw), &r)
		r.Action = normalizeReplyAction(r.Action)
		r.StatusUpdate = normalizeStatusUpdate(r.StatusUpdate)
		result = r
	case TaskFollowUp:
		var f FollowUpDecision
		err = json.Unmarshal([]byte(raw), &f)
		result = f
	case TaskQualification:
		var q Qualification
		err = json.Unmarshal([]byte(raw), &q)
		result = q
	default:
		return Unparsed{Task: task, Raw: text, Reason: ReasonInvalidJSON}
	}
	if err != nil {
		return Unparsed{Task: task, Raw: text, Reason: ReasonInvalidJSON}
	}
	return result
}

func normalizePriority(p string) string {
	switch v := strings.ToLower(strings.TrimSpace(p)); v {
	case "high", "medium", "low":
		return v
	default:
		return "medium"
	}
}

func normalizeReplyAction(a string) string {
	switch v := strings.ToLower(strings.TrimSpace(a)); v {
	case ActionRespond, ActionBook, ActionPause, ActionUnsubscribe, ActionEscalate:
		return v
	default:
		return ActionRespond
	}
}

func normalizeStatusUpdate(s string) string {
	v := strings.ToUpper(strings.TrimSpace(s))
	if v == "NULL" || v == "NONE" {
		return ""
	}
	return v
}

// FallbackAnalysis is used when analysis output is unparsed.
func FallbackAnalysis(raw string) Analysis {
	return Analysis{
		Priority:             "medium",
		PersonalizationNotes: raw,
		RecommendedApproach:  "standard",
	}
}

// FallbackEmail recovers a leading "Subject:" line when present.
func FallbackEmail(raw string) Email {
	email := Email{Subject: FallbackEmailSubject, Body: raw}
	lines := strings.Split(strings.TrimSpace(raw), "\n")
	for i, line := range lines {
		if strings.HasPrefix(strings.ToLower(line), "subject:") {
			email.Subject = strings.TrimSpace(line[len("subject:"):])
			email.Body = strings.TrimSpace(strings.Join(lines[i+1:], "\n"))
			break
		}
	}
	return email
}

// FallbackReply answers with the raw text.
func FallbackReply(raw string) ReplyAction {
	return ReplyAction{
		Action:   ActionRespond,
		Response: &Email{Subject: FallbackReplySubject, Body: raw},
		Notes:    "Generated response",
	}
}

// FallbackFollowUp declines to follow up.
func FallbackFollowUp(raw string) FollowUpDecision {
	return FollowUpDecision{ShouldFollowUp: false, Reason: raw}
}

// FallbackQualification qualifies with a neutral score.
func FallbackQualification(raw string) Qualification {
	return Qualification{Qualified: true, Score: 50, Reasons: []string{raw}}
}
