package provider

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"research-relay/internal/models"
)

type countingProvider struct {
	fetches atomic.Int32
}

func (p *countingProvider) Name() string { return "counting" }

func (p *countingProvider) FetchToken(ctx context.Context) (string, error) {
	p.fetches.Add(1)
	return "token", nil
}

func (p *countingProvider) Query(ctx context.Context, payload models.InferencePayload) (json.RawMessage, error) {
	return nil, nil
}

func TestScheduleTokenRefreshRejectsBadSchedule(t *testing.T) {
	if _, err := ScheduleTokenRefresh(context.Background(), &countingProvider{}, "not a schedule"); err == nil {
		t.Fatal("expected error for invalid schedule")
	}
}

func TestScheduleTokenRefreshFetches(t *testing.T) {
	p := &countingProvider{}
	stop, err := ScheduleTokenRefresh(context.Background(), p, "@every 1s")
	if err != nil {
		t.Fatalf("ScheduleTokenRefresh() error = %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for p.fetches.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
	stop()

	if p.fetches.Load() == 0 {
		t.Fatal("no scheduled fetch within 5s")
	}
}

func TestPreview(t *testing.T) {
	tests := map[string]string{
		"short":                       "short",
		"exactly-twenty-chars":        "exactly-twenty-chars",
		"a-token-longer-than-twenty!": "a-token-longer-than-...",
	}
	for in, want := range tests {
		if got := Preview(in); got != want {
			t.Errorf("Preview(%q) = %q, want %q", in, got, want)
		}
	}
}
