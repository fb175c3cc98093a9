// Package claude adapts the Anthropic Messages API to the ADK model.LLM interface.
package claude

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"
	"google.golang.org/adk/model"
	"google.golang.org/genai"
)

// Config for Claude
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int64
	Temperature float64
}

// Model adapts Claude to the ADK model.LLM interface
type Model struct {
	config Config
	client *anthropic.Client
}

func NewModel(cfg Config) *Model {
	if cfg.Model == "" {
		cfg.Model = "claude-sonnet-4-20250514"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = 0.4
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := anthropic.NewClient(opts...)

	return &Model{config: cfg, client: &client}
}

func (m *Model) Name() string {
	return m.config.Model
}

// GenerateContent sends one non-streaming Messages request per call.
func (m *Model) GenerateContent(ctx context.Context, req *model.LLMRequest, stream bool) iter.Seq2[*model.LLMResponse, error] {
	return func(yield func(*model.LLMResponse, error) bool) {
		resp, err := m.generate(ctx, req)
		yield(resp, err)
	}
}

func (m *Model) generate(ctx context.Context, req *model.LLMRequest) (*model.LLMResponse, error) {
	params := m.buildParams(req)

	resp, err := m.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("claude api error: %w", err)
	}

	parts := make([]*genai.Part, 0, len(resp.Content))
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			if text := block.AsText().Text; strings.TrimSpace(text) != "" {
				parts = append(parts, genai.NewPartFromText(text))
			}
		case "tool_use":
			use := block.AsToolUse()
			args := map[string]any{}
			if len(use.Input) > 0 {
				if err := json.Unmarshal(use.Input, &args); err != nil {
					args = map[string]any{"_raw": string(use.Input)}
				}
			}
			parts = append(parts, &genai.Part{
				FunctionCall: &genai.FunctionCall{
					ID:   use.ID,
					Name: use.Name,
					Args: args,
				},
			})
		}
	}

	return &model.LLMResponse{
		Content: &genai.Content{
			Role:  genai.RoleModel,
			Parts: parts,
		},
	}, nil
}

func (m *Model) buildParams(req *model.LLMRequest) anthropic.MessageNewParams {
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(m.config.Model),
		Messages:    convertMessages(req.Contents),
		MaxTokens:   m.config.MaxTokens,
		Temperature: anthropic.Float(m.config.Temperature),
	}
	if req.Config == nil {
		return params
	}

	if req.Config.Temperature != nil {
		params.Temperature = anthropic.Float(float64(*req.Config.Temperature))
	}
	if req.Config.MaxOutputTokens > 0 {
		params.MaxTokens = int64(req.Config.MaxOutputTokens)
	}
	if system := contentText(req.Config.SystemInstruction); system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if tools := convertTools(req.Config.Tools); len(tools) > 0 {
		params.Tools = tools
	}
	return params
}

// convertMessages maps ADK contents to alternating user/assistant messages.
// Function responses become tool_result blocks inside the following user turn.
func convertMessages(contents []*genai.Content) []anthropic.MessageParam {
	var (
		messages []anthropic.MessageParam
		blocks   []anthropic.ContentBlockParamUnion
		role     string
	)
	flush := func() {
		if len(blocks) == 0 {
			return
		}
		if role == "assistant" {
			messages = append(messages, anthropic.NewAssistantMessage(blocks...))
		} else {
			messages = append(messages, anthropic.NewUserMessage(blocks...))
		}
		blocks = nil
	}

	for _, content := range contents {
		if content == nil {
			continue
		}
		next := "user"
		if content.Role == genai.RoleModel {
			next = "assistant"
		}
		if next != role {
			flush()
			role = next
		}
		blocks = append(blocks, convertParts(content.Parts)...)
	}
	flush()
	return messages
}

func convertParts(parts []*genai.Part) []anthropic.ContentBlockParamUnion {
	blocks := make([]anthropic.ContentBlockParamUnion, 0, len(parts))
	for _, part := range parts {
		if part == nil {
			continue
		}
		switch {
		case part.FunctionCall != nil:
			args := part.FunctionCall.Args
			if args == nil {
				args = map[string]any{}
			}
			blocks = append(blocks, anthropic.NewToolUseBlock(part.FunctionCall.ID, args, part.FunctionCall.Name))
		case part.FunctionResponse != nil:
			payload, _ := json.Marshal(part.FunctionResponse.Response)
			blocks = append(blocks, anthropic.NewToolResultBlock(part.FunctionResponse.ID, string(payload), false))
		case strings.TrimSpace(part.Text) != "":
			blocks = append(blocks, anthropic.NewTextBlock(part.Text))
		}
	}
	return blocks
}

func contentText(content *genai.Content) string {
	if content == nil {
		return ""
	}
	texts := make([]string, 0, len(content.Parts))
	for _, part := range content.Parts {
		if part != nil && strings.TrimSpace(part.Text) != "" {
			texts = append(texts, part.Text)
		}
	}
	return strings.Join(texts, "\n\n")
}

func convertTools(tools []*genai.Tool) []anthropic.ToolUnionParam {
	var out []anthropic.ToolUnionParam
	for _, gt := range tools {
		if gt == nil {
			continue
		}
		for _, decl := range gt.FunctionDeclarations {
			if decl == nil || decl.Name == "" {
				continue
			}
			schema := inputSchema(decl)
			tool := anthropic.ToolUnionParamOfTool(schema, decl.Name)
			if decl.Description != "" && tool.OfTool != nil {
				tool.OfTool.Description = anthropic.String(decl.Description)
			}
			out = append(out, tool)
		}
	}
	return out
}

// inputSchema reduces a declaration's JSON schema to the properties and
// required list the Messages API accepts.
func inputSchema(decl *genai.FunctionDeclaration) anthropic.ToolInputSchemaParam {
	schema := anthropic.ToolInputSchemaParam{Type: constant.Object("object")}

	var source any
	switch {
	case decl.ParametersJsonSchema != nil:
		source = decl.ParametersJsonSchema
	case decl.Parameters != nil:
		source = decl.Parameters
	default:
		return schema
	}

	raw, err := json.Marshal(source)
	if err != nil {
		return schema
	}
	var generic struct {
		Properties map[string]any `json:"properties"`
		Required   []string       `json:"required"`
	}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return schema
	}
	if len(generic.Properties) > 0 {
		schema.Properties = lowerSchemaTypes(generic.Properties)
	}
	schema.Required = generic.Required
	return schema
}

// lowerSchemaTypes rewrites genai's upper-case type names ("STRING") to JSON schema form.
func lowerSchemaTypes(v map[string]any) map[string]any {
	for key, val := range v {
		switch typed := val.(type) {
		case map[string]any:
			v[key] = lowerSchemaTypes(typed)
		case string:
			if key == "type" {
				v[key] = strings.ToLower(typed)
			}
		}
	}
	return v
}
