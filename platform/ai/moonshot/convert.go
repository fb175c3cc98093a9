package moonshot

import (
	"encoding/json"
	"strings"

	"google.golang.org/genai"
)

const (
	roleSystem    = "system"
	roleUser      = "user"
	roleAssistant = "assistant"
	roleTool      = "tool"
)

type chatMessage struct {
	Role       string     `json:"role"`
	Content    string     `json:"content,omitempty"`
	Name       string     `json:"name,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolCalls  []toolCall `json:"tool_calls,omitempty"`
}

type toolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function functionCall `json:"function"`
}

type functionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type toolDef struct {
	Type     string      `json:"type"`
	Function functionDef `json:"function"`
}

type functionDef struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Parameters  any    `json:"parameters,omitempty"`
}

// toMessages flattens genai contents. Function responses become separate
// tool messages placed before the turn that carried them.
func toMessages(contents []*genai.Content) []chatMessage {
	out := make([]chatMessage, 0, len(contents))
	for _, content := range contents {
		if content == nil {
			continue
		}
		turn := chatMessage{Role: roleUser}
		if content.Role == genai.RoleModel {
			turn.Role = roleAssistant
		}

		var text []string
		for _, part := range content.Parts {
			switch {
			case part == nil:
			case part.FunctionResponse != nil:
				payload, _ := json.Marshal(part.FunctionResponse.Response)
				out = append(out, chatMessage{
					Role:       roleTool,
					Name:       part.FunctionResponse.Name,
					ToolCallID: part.FunctionResponse.ID,
					Content:    string(payload),
				})
			case part.FunctionCall != nil:
				args, _ := json.Marshal(part.FunctionCall.Args)
				turn.ToolCalls = append(turn.ToolCalls, toolCall{
					ID:       part.FunctionCall.ID,
					Type:     "function",
					Function: functionCall{Name: part.FunctionCall.Name, Arguments: string(args)},
				})
			case strings.TrimSpace(part.Text) != "":
				text = append(text, part.Text)
			}
		}

		turn.Content = strings.TrimSpace(strings.Join(text, "\n"))
		if turn.Content != "" || len(turn.ToolCalls) > 0 {
			out = append(out, turn)
		}
	}
	return out
}

func fromMessage(msg chatMessage) []*genai.Part {
	parts := make([]*genai.Part, 0, 1+len(msg.ToolCalls))
	if strings.TrimSpace(msg.Content) != "" {
		parts = append(parts, genai.NewPartFromText(msg.Content))
	}
	for _, tc := range msg.ToolCalls {
		args := map[string]any{}
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				args = map[string]any{"_raw": tc.Function.Arguments}
			}
		}
		parts = append(parts, &genai.Part{FunctionCall: &genai.FunctionCall{
			ID:   tc.ID,
			Name: tc.Function.Name,
			Args: args,
		}})
	}
	return parts
}

func toToolDefs(tools []*genai.Tool) []toolDef {
	var out []toolDef
	for _, t := range tools {
		if t == nil {
			continue
		}
		for _, decl := range t.FunctionDeclarations {
			if decl == nil || decl.Name == "" {
				continue
			}
			var params any
			if decl.ParametersJsonSchema != nil {
				params = decl.ParametersJsonSchema
			} else if decl.Parameters != nil {
				params = decl.Parameters
			}
			out = append(out, toolDef{
				Type:     "function",
				Function: functionDef{Name: decl.Name, Description: decl.Description, Parameters: params},
			})
		}
	}
	return out
}

func joinText(content *genai.Content) string {
	if content == nil {
		return ""
	}
	var text []string
	for _, part := range content.Parts {
		if part != nil && strings.TrimSpace(part.Text) != "" {
			text = append(text, part.Text)
		}
	}
	return strings.TrimSpace(strings.Join(text, "\n"))
}
