// Package demo answers inference requests offline with canned text. It is
// selected when the configured API key is DEMO_MODE.
package demo

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"research-relay/internal/models"
)

// Token is the fixed session token the demo provider hands out.
const Token = "demo_token_12345"

const defaultAnswer = "This is a demo response for your query. In production, this would be processed by IBM Watson ML to provide comprehensive research insights about your topic."

// topics are checked in order; the first keyword found in the user message wins.
var topics = []struct {
	keyword string
	answer  string
}{
	{"artificial intelligence", "Artificial Intelligence (AI) refers to computer systems that can perform tasks typically requiring human intelligence, such as learning, reasoning, and problem-solving."},
	{"quantum computing", "Quantum computing leverages quantum mechanical phenomena to process information in ways that classical computers cannot, potentially solving complex problems exponentially faster."},
	{"machine learning", "Machine learning is a subset of AI that enables computers to learn and improve from experience without being explicitly programmed for every task."},
}

type answer struct {
	GeneratedText string `json:"generated_text"`
	DemoMode      bool   `json:"demo_mode"`
}

// Provider simulates the inference deployment.
type Provider struct {
	name  string
	delay time.Duration
}

// New creates a demo provider that waits delay before answering.
func New(name string, delay time.Duration) *Provider {
	if name == "" {
		name = "demo"
	}
	return &Provider{name: name, delay: delay}
}

func (p *Provider) Name() string {
	return p.name
}

func (p *Provider) FetchToken(ctx context.Context) (string, error) {
	return Token, nil
}

func (p *Provider) Query(ctx context.Context, payload models.InferencePayload) (json.RawMessage, error) {
	if p.delay > 0 {
		timer := time.NewTimer(p.delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	resp := answer{GeneratedText: pick(firstUserMessage(payload.Messages)), DemoMode: true}
	data, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("marshal demo answer: %w", err)
	}
	return data, nil
}

func firstUserMessage(messages []models.Message) string {
	for _, msg := range messages {
		if msg.Role == models.RoleUser {
			return msg.Content
		}
	}
	return ""
}

func pick(query string) string {
	lower := strings.ToLower(query)
	for _, topic := range topics {
		if strings.Contains(lower, topic.keyword) {
			return topic.answer
		}
	}
	return defaultAnswer
}
