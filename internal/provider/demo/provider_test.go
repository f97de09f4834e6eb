package demo

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"research-relay/internal/models"
)

func TestQueryPicksTopic(t *testing.T) {
	p := New("", 0)

	tests := []struct {
		content string
		want    string
	}{
		{"Research Query: Quantum Computing basics\nContext: ", "Quantum computing leverages"},
		{"Research Query: machine learning\nContext: ", "Machine learning is a subset"},
		{"Research Query: medieval trade routes\nContext: ", "This is a demo response"},
	}

	for _, tc := range tests {
		payload := models.InferencePayload{Messages: []models.Message{
			{Role: models.RoleSystem, Content: "ignored: machine learning"},
			{Role: models.RoleUser, Content: tc.content},
		}}

		raw, err := p.Query(context.Background(), payload)
		if err != nil {
			t.Fatalf("Query() error = %v", err)
		}

		var got answer
		if err := json.Unmarshal(raw, &got); err != nil {
			t.Fatalf("decode answer: %v", err)
		}
		if !got.DemoMode {
			t.Error("demo_mode = false, want true")
		}
		if !strings.HasPrefix(got.GeneratedText, tc.want) {
			t.Errorf("generated_text = %q, want prefix %q", got.GeneratedText, tc.want)
		}
	}
}

func TestQueryHonoursContext(t *testing.T) {
	p := New("demo", time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := p.Query(ctx, models.InferencePayload{})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Query() error = %v, want deadline exceeded", err)
	}
}

func TestFetchToken(t *testing.T) {
	tok, err := New("demo", 0).FetchToken(context.Background())
	if err != nil {
		t.Fatalf("FetchToken() error = %v", err)
	}
	if tok != Token {
		t.Errorf("FetchToken() = %q, want %q", tok, Token)
	}
}
