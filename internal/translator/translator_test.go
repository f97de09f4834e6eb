package translator

import (
	"encoding/json"
	"errors"
	"testing"

	"research-relay/internal/models"
)

func TestResearchRequestToPayload(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		wantContent string
	}{
		{
			name:        "query and context",
			body:        `{"query":"quantum computing","context":"for a lecture"}`,
			wantContent: "Research Query: quantum computing\nContext: for a lecture",
		},
		{
			name:        "context omitted",
			body:        `{"query":"graphene"}`,
			wantContent: "Research Query: graphene\nContext: ",
		},
		{
			name:        "context null",
			body:        `{"query":"graphene","context":null}`,
			wantContent: "Research Query: graphene\nContext: ",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var req ResearchRequest
			if err := json.Unmarshal([]byte(tc.body), &req); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}

			payload := req.ToPayload()
			if len(payload.Messages) != 2 {
				t.Fatalf("len(messages) = %d, want 2", len(payload.Messages))
			}
			if payload.Messages[0].Role != models.RoleSystem || payload.Messages[0].Content != SystemPrompt {
				t.Errorf("system message = %+v", payload.Messages[0])
			}
			if payload.Messages[1].Role != models.RoleUser {
				t.Errorf("second role = %q, want user", payload.Messages[1].Role)
			}
			if payload.Messages[1].Content != tc.wantContent {
				t.Errorf("user content = %q, want %q", payload.Messages[1].Content, tc.wantContent)
			}
		})
	}
}

func TestResearchRequestValidation(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantMsg string
	}{
		{"missing query", `{"context":"x"}`, "query is required"},
		{"null query", `{"query":null}`, "query is required"},
		{"blank query", `{"query":"   "}`, "query is required"},
		{"numeric query", `{"query":42}`, "query must be a string"},
		{"numeric context", `{"query":"q","context":7}`, "context must be a string"},
		{"array body", `["query"]`, "request body must be a JSON object"},
		{"null body", `null`, "query is required"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var req ResearchRequest
			err := json.Unmarshal([]byte(tc.body), &req)

			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("error = %v (%T), want *ValidationError", err, err)
			}
			if vErr.Message != tc.wantMsg {
				t.Errorf("message = %q, want %q", vErr.Message, tc.wantMsg)
			}
		})
	}
}

func TestChatRequest(t *testing.T) {
	var req ChatRequest
	body := `{"messages":[{"role":"system","content":"be brief"},{"role":"user","content":"hi"}]}`
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	payload := req.ToPayload()
	if len(payload.Messages) != 2 || payload.Messages[1].Content != "hi" {
		t.Errorf("payload = %+v", payload)
	}

	payload.Messages[0].Content = "mutated"
	if req.Messages[0].Content != "be brief" {
		t.Error("ToPayload must copy messages")
	}
}

func TestChatRequestValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing messages", `{}`},
		{"empty messages", `{"messages":[]}`},
		{"unknown role", `{"messages":[{"role":"robot","content":"x"}]}`},
		{"empty content", `{"messages":[{"role":"user","content":" "}]}`},
		{"non object message", `{"messages":["hello"]}`},
		{"messages not array", `{"messages":"hello"}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var req ChatRequest
			err := json.Unmarshal([]byte(tc.body), &req)

			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("error = %v (%T), want *ValidationError", err, err)
			}
		})
	}
}
