package decision

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"google.golang.org/adk/agent"
	"google.golang.org/adk/agent/llmagent"
	"google.golang.org/adk/model"
	"google.golang.org/adk/runner"
	"google.golang.org/adk/session"
	"google.golang.org/adk/tool"
	"google.golang.org/genai"

	"outreach_backend/platform/logger"
)

const appName = "outreach-decisions"

var agentNames = map[Task]string{
	TaskAnalysis:      "LeadAnalyst",
	TaskEmail:         "EmailWriter",
	TaskReply:         "ReplyTriage",
	TaskFollowUp:      "FollowUpPlanner",
	TaskQualification: "LeadQualifier",
}

// AgentCompleter runs decisions through ADK agents, one per task, sharing a
// model adapter and the read-only history tool.
type AgentCompleter struct {
	runners        map[Task]*runner.Runner
	sessionService session.Service
	log            *logger.Logger
	runMu          sync.Mutex
}

// NewAgentCompleter builds the per-task agents on llm.
func NewAgentCompleter(llm model.LLM, history HistorySource, fromName string, log *logger.Logger) (*AgentCompleter, error) {
	if log == nil {
		log = logger.Discard()
	}

	historyTool, err := createGetLeadHistoryTool(history)
	if err != nil {
		return nil, fmt.Errorf("failed to build GetLeadHistory tool: %w", err)
	}

	sessionService := session.InMemoryService()
	runners := make(map[Task]*runner.Runner, len(agentNames))
	for task, name := range agentNames {
		adkAgent, err := llmagent.New(llmagent.Config{
			Name:        name,
			Model:       llm,
			Description: fmt.Sprintf("Outreach decision agent for the %s task.", task),
			Instruction: SystemPrompt(task, fromName),
			Tools:       []tool.Tool{historyTool},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create %s agent: %w", name, err)
		}

		r, err := runner.New(runner.Config{
			AppName:        appName,
			Agent:          adkAgent,
			SessionService: sessionService,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create %s runner: %w", name, err)
		}
		runners[task] = r
	}

	return &AgentCompleter{
		runners:        runners,
		sessionService: sessionService,
		log:            log,
	}, nil
}

// Complete runs one request in a fresh session and stops once MaxSteps model
// turns have been taken.
func (a *AgentCompleter) Complete(ctx context.Context, req Request) (Completion, error) {
	r, ok := a.runners[req.Task]
	if !ok {
		return Completion{}, fmt.Errorf("unknown decision task %q", req.Task)
	}

	a.runMu.Lock()
	defer a.runMu.Unlock()

	userID := "lead-" + req.LeadEmail
	sessionID := uuid.New().String()
	if _, err := a.sessionService.Create(ctx, &session.CreateRequest{
		AppName:   appName,
		UserID:    userID,
		SessionID: sessionID,
	}); err != nil {
		return Completion{}, fmt.Errorf("failed to create decision session: %w", err)
	}
	defer func() {
		if err := a.sessionService.Delete(context.WithoutCancel(ctx), &session.DeleteRequest{
			AppName:   appName,
			UserID:    userID,
			SessionID: sessionID,
		}); err != nil {
			a.log.Warn("failed to delete decision session", "error", err)
		}
	}()

	userMessage := &genai.Content{
		Role:  "user",
		Parts: []*genai.Part{{Text: req.Prompt}},
	}

	var completion Completion
	runConfig := agent.RunConfig{StreamingMode: agent.StreamingModeNone}
	for event, err := range r.Run(ctx, userID, sessionID, userMessage, runConfig) {
		if err != nil {
			return Completion{}, fmt.Errorf("decision run failed: %w", err)
		}
		if event == nil || event.Content == nil || event.Content.Role != genai.RoleModel {
			continue
		}

		completion.Steps++
		if !hasFunctionCall(event.Content) {
			completion.Text = collectContentText(event.Content)
			continue
		}
		if completion.Steps >= req.MaxSteps {
			completion.Exhausted = true
			break
		}
	}
	return completion, nil
}

func hasFunctionCall(content *genai.Content) bool {
	for _, part := range content.Parts {
		if part != nil && part.FunctionCall != nil {
			return true
		}
	}
	return false
}

func collectContentText(content *genai.Content) string {
	var sb strings.Builder
	for _, part := range content.Parts {
		if part != nil {
			sb.WriteString(part.Text)
		}
	}
	return sb.String()
}
