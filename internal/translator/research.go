package translator

import (
	"encoding/json"
	"strings"

	"research-relay/internal/models"
)

// SystemPrompt is the fixed instruction sent ahead of every research query.
const SystemPrompt = "You are a helpful research assistant. Provide comprehensive, accurate, and well-structured responses based on the user's query."

// ValidationError reports a request body the relay refuses to forward.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func invalid(msg string) error {
	return &ValidationError{Message: msg}
}

// ResearchRequest models the /research request payload.
type ResearchRequest struct {
	Query   string
	Context string
}

// UnmarshalJSON implements custom parsing to enforce validation.
func (r *ResearchRequest) UnmarshalJSON(data []byte) error {
	var raw struct {
		Query   json.RawMessage `json:"query"`
		Context json.RawMessage `json:"context"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return invalid("request body must be a JSON object")
	}

	if isAbsent(raw.Query) {
		return invalid("query is required")
	}
	var query string
	if err := json.Unmarshal(raw.Query, &query); err != nil {
		return invalid("query must be a string")
	}
	if strings.TrimSpace(query) == "" {
		return invalid("query is required")
	}

	var context string
	if !isAbsent(raw.Context) {
		if err := json.Unmarshal(raw.Context, &context); err != nil {
			return invalid("context must be a string")
		}
	}

	r.Query = query
	r.Context = context
	return nil
}

// ToPayload composes the two-message inference payload for the query.
func (r ResearchRequest) ToPayload() models.InferencePayload {
	return models.InferencePayload{
		Messages: []models.Message{
			{Role: models.RoleSystem, Content: SystemPrompt},
			{Role: models.RoleUser, Content: "Research Query: " + r.Query + "\nContext: " + r.Context},
		},
	}
}

func isAbsent(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}
