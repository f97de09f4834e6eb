package models

import "encoding/json"

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"

	StatusSuccess = "success"
	StatusError   = "error"
	StatusHealthy = "healthy"
)

// Message is a single chat turn sent to the inference deployment.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// InferencePayload is the request body of one inference call.
type InferencePayload struct {
	Messages []Message `json:"messages"`
}

// ResearchResponse wraps a successful upstream answer to a research query.
type ResearchResponse struct {
	Query    string          `json:"query"`
	Response json.RawMessage `json:"response"`
	Status   string          `json:"status"`
}

// ChatResponse wraps a successful upstream answer to a chat exchange.
type ChatResponse struct {
	Response json.RawMessage `json:"response"`
	Status   string          `json:"status"`
}

// ErrorResponse is returned for every failed request.
type ErrorResponse struct {
	Error  string `json:"error"`
	Status string `json:"status"`
}

type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

// ConnectionResponse reports the outcome of an identity service round-trip.
type ConnectionResponse struct {
	Status       string  `json:"status"`
	Message      string  `json:"message"`
	TokenPreview *string `json:"token_preview"`
}
