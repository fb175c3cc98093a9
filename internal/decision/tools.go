package decision

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/adk/tool"
	"google.golang.org/adk/tool/functiontool"

	"outreach_backend/internal/memory"
)

// HistorySource is the read-only memory surface exposed to the model.
type HistorySource interface {
	RecentActions(ctx context.Context, leadEmail, actionType string, limit int) ([]memory.ActionRecord, error)
	ConversationText(ctx context.Context, leadEmail string, limit int) (string, error)
}

type GetLeadHistoryInput struct {
	Email string `json:"email"`
	Limit int    `json:"limit,omitempty"`
}

type HistoryAction struct {
	Action    string `json:"action"`
	Success   bool   `json:"success"`
	Timestamp string `json:"timestamp"`
}

type GetLeadHistoryOutput struct {
	Transcript string          `json:"transcript"`
	Actions    []HistoryAction `json:"actions"`
	Message    string          `json:"message,omitempty"`
}

const maxHistoryLimit = 50

func lookupLeadHistory(ctx context.Context, source HistorySource, input GetLeadHistoryInput) (GetLeadHistoryOutput, error) {
	if input.Email == "" {
		return GetLeadHistoryOutput{Message: "email is required"}, fmt.Errorf("missing email")
	}
	limit := input.Limit
	if limit <= 0 || limit > maxHistoryLimit {
		limit = 10
	}

	transcript, err := source.ConversationText(ctx, input.Email, memory.DefaultTranscriptLimit)
	if err != nil {
		return GetLeadHistoryOutput{Message: "history unavailable"}, err
	}
	records, err := source.RecentActions(ctx, input.Email, "", limit)
	if err != nil {
		return GetLeadHistoryOutput{Message: "history unavailable"}, err
	}

	actions := make([]HistoryAction, 0, len(records))
	for _, rec := range records {
		actions = append(actions, HistoryAction{
			Action:    rec.ActionType,
			Success:   rec.Success,
			Timestamp: rec.Timestamp.UTC().Format(time.RFC3339),
		})
	}
	return GetLeadHistoryOutput{Transcript: transcript, Actions: actions}, nil
}

func createGetLeadHistoryTool(source HistorySource) (tool.Tool, error) {
	return functiontool.New(functiontool.Config{
		Name:        "GetLeadHistory",
		Description: "Returns the lead's recent conversation transcript and the most recent actions taken for them (emails sent, bookings detected). Read-only.",
	}, func(ctx tool.Context, input GetLeadHistoryInput) (GetLeadHistoryOutput, error) {
		return lookupLeadHistory(ctx, source, input)
	})
}
