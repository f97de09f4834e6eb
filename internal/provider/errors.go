package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
)

const (
	StageIdentity  = "identity"
	StageInference = "inference"
)

// maxErrorBody caps how much of an upstream body is carried in an error.
const maxErrorBody = 512

// AuthError reports a rejected credential: a non-200 answer from the identity
// service, or an inference 401 that survived every token refresh.
type AuthError struct {
	Provider   string
	Stage      string
	StatusCode int
	Body       string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("provider %q %s authentication failed (status %d)%s",
		e.Provider, e.Stage, e.StatusCode, bodySuffix(e.Body))
}

// InferenceError reports a non-200, non-401 answer from the inference service.
type InferenceError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("provider %q inference error (status %d)%s", e.Provider, e.StatusCode, bodySuffix(e.Body))
}

// MalformedResponseError reports an upstream body that is not valid JSON or
// lacks a required field.
type MalformedResponseError struct {
	Provider string
	Stage    string
	Body     string
	Cause    error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("provider %q returned a malformed %s response: %v", e.Provider, e.Stage, e.Cause)
}

func (e *MalformedResponseError) Unwrap() error {
	return e.Cause
}

// TransportError reports a request that never produced an HTTP response.
type TransportError struct {
	Provider string
	Stage    string
	Cause    error
}

func (e *TransportError) Error() string {
	if e.Timeout() {
		return fmt.Sprintf("provider %q %s request timed out: %v", e.Provider, e.Stage, e.Cause)
	}
	return fmt.Sprintf("provider %q %s request failed: %v", e.Provider, e.Stage, e.Cause)
}

func (e *TransportError) Unwrap() error {
	return e.Cause
}

// Timeout reports whether the request was abandoned because a deadline passed.
func (e *TransportError) Timeout() bool {
	if errors.Is(e.Cause, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(e.Cause, &netErr) && netErr.Timeout()
}

// Truncate shortens an upstream body for inclusion in an error.
func Truncate(body []byte) string {
	if len(body) <= maxErrorBody {
		return string(body)
	}
	return string(body[:maxErrorBody]) + "..."
}

func bodySuffix(body string) string {
	if body == "" {
		return ""
	}
	return ": " + body
}
