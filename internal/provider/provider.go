package provider

import (
	"context"
	"encoding/json"

	"research-relay/internal/models"
)

// Provider defines the behaviour required to serve inference requests.
type Provider interface {
	Name() string

	// FetchToken obtains a fresh session token, stores it for subsequent
	// queries and returns it.
	FetchToken(ctx context.Context) (string, error)

	// Query sends one inference payload and returns the upstream JSON body.
	Query(ctx context.Context, payload models.InferencePayload) (json.RawMessage, error)
}

// KeyRotator is implemented by providers that can swap their API key at runtime.
type KeyRotator interface {
	SetAPIKey(key string)
}

const previewLen = 20

// Preview shortens a credential for logs and diagnostics.
func Preview(secret string) string {
	if len(secret) <= previewLen {
		return secret
	}
	return secret[:previewLen] + "..."
}
