package claude

import (
	"encoding/json"
	"strings"
	"testing"

	"google.golang.org/adk/model"
	"google.golang.org/genai"
)

func TestConvertMessagesMergesToolResultsIntoUserTurn(t *testing.T) {
	contents := []*genai.Content{
		{Role: "user", Parts: []*genai.Part{{Text: "Analyze this lead"}}},
		{Role: genai.RoleModel, Parts: []*genai.Part{{FunctionCall: &genai.FunctionCall{ID: "call_1", Name: "GetLeadHistory", Args: map[string]any{"email": "a@b.test"}}}}},
		{Role: "user", Parts: []*genai.Part{{FunctionResponse: &genai.FunctionResponse{ID: "call_1", Name: "GetLeadHistory", Response: map[string]any{"transcript": ""}}}}},
		{Role: "user", Parts: []*genai.Part{{Text: "  "}}},
	}

	messages := convertMessages(contents)
	if len(messages) != 3 {
		t.Fatalf("expected 3 alternating messages, got %d", len(messages))
	}
	raw, err := json.Marshal(messages)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	body := string(raw)
	for _, want := range []string{`"tool_use"`, `"tool_result"`, `"call_1"`, `"assistant"`} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %s in %s", want, body)
		}
	}
}

func TestBuildParamsUsesSystemInstruction(t *testing.T) {
	m := NewModel(Config{APIKey: "test"})
	temp := float32(0.1)
	params := m.buildParams(&model.LLMRequest{
		Contents: []*genai.Content{{Role: "user", Parts: []*genai.Part{{Text: "hi"}}}},
		Config: &genai.GenerateContentConfig{
			SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: "You are helpful."}}},
			Temperature:       &temp,
		},
	})
	if len(params.System) != 1 || params.System[0].Text != "You are helpful." {
		t.Fatalf("expected system prompt to be forwarded, got %+v", params.System)
	}
	if params.MaxTokens != 4096 {
		t.Fatalf("expected default max tokens, got %d", params.MaxTokens)
	}
}

func TestInputSchemaLowersTypes(t *testing.T) {
	decl := &genai.FunctionDeclaration{
		Name: "GetLeadHistory",
		Parameters: &genai.Schema{
			Type:       genai.TypeObject,
			Properties: map[string]*genai.Schema{"email": {Type: genai.TypeString}},
			Required:   []string{"email"},
		},
	}
	schema := inputSchema(decl)
	props, ok := schema.Properties.(map[string]any)
	if !ok {
		t.Fatalf("expected properties map, got %T", schema.Properties)
	}
	email := props["email"].(map[string]any)
	if email["type"] != "string" {
		t.Fatalf("expected lower-case type, got %v", email["type"])
	}
	if len(schema.Required) != 1 || schema.Required[0] != "email" {
		t.Fatalf("unexpected required %v", schema.Required)
	}
}
