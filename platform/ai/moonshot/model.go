// Package moonshot adapts Moonshot's OpenAI-compatible chat completions API
// to the ADK model.LLM interface. It is the alternative decision provider
// (AI_PROVIDER=moonshot).
package moonshot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strings"

	"google.golang.org/adk/model"
	"google.golang.org/genai"
)

const (
	defaultBaseURL = "https://api.moonshot.ai/v1"
	defaultModel   = "kimi-k2.5"

	maxErrorBody = 2048
)

type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	// DisableThinking turns off kimi-k2.5 thinking mode. The API then
	// fixes temperature itself, so request temperatures are not sent.
	DisableThinking bool
	MaxTokens       int64
	HTTPClient      *http.Client
}

// Model implements model.LLM with one non-streaming request per call.
type Model struct {
	config Config
	client *http.Client
}

func NewModel(cfg Config) *Model {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	return &Model{config: cfg, client: client}
}

func (m *Model) Name() string {
	return m.config.Model
}

func (m *Model) GenerateContent(ctx context.Context, req *model.LLMRequest, stream bool) iter.Seq2[*model.LLMResponse, error] {
	return func(yield func(*model.LLMResponse, error) bool) {
		yield(m.generate(ctx, req))
	}
}

type chatRequest struct {
	Model       string         `json:"model"`
	Messages    []chatMessage  `json:"messages"`
	Tools       []toolDef      `json:"tools,omitempty"`
	ToolChoice  string         `json:"tool_choice,omitempty"`
	Temperature *float64       `json:"temperature,omitempty"`
	MaxTokens   int64          `json:"max_tokens,omitempty"`
	Thinking    *thinkingParam `json:"thinking,omitempty"`
}

type thinkingParam struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

func (m *Model) buildRequest(req *model.LLMRequest) chatRequest {
	body := chatRequest{
		Model:     m.config.Model,
		Messages:  toMessages(req.Contents),
		MaxTokens: m.config.MaxTokens,
	}

	cfg := req.Config
	if cfg == nil {
		return body
	}
	if system := joinText(cfg.SystemInstruction); system != "" {
		body.Messages = append([]chatMessage{{Role: roleSystem, Content: system}}, body.Messages...)
	}
	if cfg.MaxOutputTokens > 0 {
		body.MaxTokens = int64(cfg.MaxOutputTokens)
	}
	switch {
	case m.config.DisableThinking:
		body.Thinking = &thinkingParam{Type: "disabled"}
	case cfg.Temperature != nil:
		t := float64(*cfg.Temperature)
		body.Temperature = &t
	}
	if tools := toToolDefs(cfg.Tools); len(tools) > 0 {
		body.Tools = tools
		body.ToolChoice = "auto"
	}
	return body
}

func (m *Model) generate(ctx context.Context, req *model.LLMRequest) (*model.LLMResponse, error) {
	payload, err := json.Marshal(m.buildRequest(req))
	if err != nil {
		return nil, fmt.Errorf("moonshot: encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, m.config.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("moonshot: build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+m.config.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("moonshot: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("moonshot: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("moonshot: decode response: %w", err)
	}
	if out.Error != nil {
		return nil, fmt.Errorf("moonshot: %s: %s", out.Error.Type, out.Error.Message)
	}
	if len(out.Choices) == 0 {
		return nil, fmt.Errorf("moonshot: response has no choices")
	}

	return &model.LLMResponse{
		Content: &genai.Content{
			Role:  genai.RoleModel,
			Parts: fromMessage(out.Choices[0].Message),
		},
	}, nil
}
