package translator

import (
	"encoding/json"
	"fmt"
	"strings"

	"research-relay/internal/models"
)

var allowedRoles = map[string]struct{}{
	models.RoleSystem:    {},
	models.RoleUser:      {},
	models.RoleAssistant: {},
}

// ChatRequest models the /chat request payload: a caller-built conversation
// forwarded as-is.
type ChatRequest struct {
	Messages []models.Message
}

// UnmarshalJSON implements custom parsing to enforce validation.
func (r *ChatRequest) UnmarshalJSON(data []byte) error {
	var raw struct {
		Messages []json.RawMessage `json:"messages"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return invalid("messages must be an array of {role, content} objects")
	}
	if len(raw.Messages) == 0 {
		return invalid("messages are required")
	}

	messages := make([]models.Message, 0, len(raw.Messages))
	for i, item := range raw.Messages {
		var msg models.Message
		if err := json.Unmarshal(item, &msg); err != nil {
			return invalid(fmt.Sprintf("messages[%d] must have string role and content", i))
		}
		if _, ok := allowedRoles[msg.Role]; !ok {
			return invalid(fmt.Sprintf("messages[%d] has invalid role %q", i, msg.Role))
		}
		if strings.TrimSpace(msg.Content) == "" {
			return invalid(fmt.Sprintf("messages[%d] content must not be empty", i))
		}
		messages = append(messages, msg)
	}

	r.Messages = messages
	return nil
}

func (r ChatRequest) ToPayload() models.InferencePayload {
	messages := make([]models.Message, len(r.Messages))
	copy(messages, r.Messages)
	return models.InferencePayload{Messages: messages}
}
