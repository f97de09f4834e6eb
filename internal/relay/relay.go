package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"research-relay/internal/models"
	"research-relay/internal/provider"
	"research-relay/internal/translator"
)

// Relay forwards validated requests to the inference provider and wraps the
// answers in response envelopes.
type Relay struct {
	provider provider.Provider
}

// New constructs a relay backed by p.
func New(p provider.Provider) (*Relay, error) {
	if p == nil {
		return nil, errors.New("provider must not be nil")
	}
	return &Relay{provider: p}, nil
}

// Provider returns the backing provider.
func (r *Relay) Provider() provider.Provider {
	return r.provider
}

// Research composes the research payload for req and returns the upstream
// answer unchanged inside a success envelope.
func (r *Relay) Research(ctx context.Context, req translator.ResearchRequest) (*models.ResearchResponse, error) {
	slog.Info("forwarding research query",
		"provider", r.provider.Name(),
		"query_len", len(req.Query),
		"context_len", len(req.Context),
	)

	raw, err := r.provider.Query(ctx, req.ToPayload())
	if err != nil {
		return nil, fmt.Errorf("provider %s research request: %w", r.provider.Name(), err)
	}

	return &models.ResearchResponse{
		Query:    req.Query,
		Response: raw,
		Status:   models.StatusSuccess,
	}, nil
}

// Chat forwards a caller-built conversation.
func (r *Relay) Chat(ctx context.Context, req translator.ChatRequest) (*models.ChatResponse, error) {
	raw, err := r.provider.Query(ctx, req.ToPayload())
	if err != nil {
		return nil, fmt.Errorf("provider %s chat request: %w", r.provider.Name(), err)
	}

	return &models.ChatResponse{
		Response: raw,
		Status:   models.StatusSuccess,
	}, nil
}

// CheckConnection fetches a fresh session token. On failure the returned
// response describes the error and err carries the cause.
func (r *Relay) CheckConnection(ctx context.Context) (models.ConnectionResponse, error) {
	token, err := r.provider.FetchToken(ctx)
	if err != nil {
		err = fmt.Errorf("provider %s token request: %w", r.provider.Name(), err)
		return models.ConnectionResponse{
			Status:  models.StatusError,
			Message: "Connection failed: " + err.Error(),
		}, err
	}

	resp := models.ConnectionResponse{
		Status:  models.StatusSuccess,
		Message: "Successfully connected to " + r.provider.Name(),
	}
	if token != "" {
		preview := provider.Preview(token)
		resp.TokenPreview = &preview
	}
	return resp, nil
}
