package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"research-relay/internal/models"
	"research-relay/internal/provider"
	"research-relay/internal/translator"
)

type requestError struct {
	Status  int
	Message string
}

func (e requestError) Error() string {
	return e.Message
}

func writeError(c echo.Context, status int, message string) error {
	return c.JSON(status, models.ErrorResponse{
		Error:  message,
		Status: models.StatusError,
	})
}

func relayErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var reqErr requestError
	if errors.As(err, &reqErr) {
		_ = writeError(c, reqErr.Status, reqErr.Message)
		return
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		if he.Code == http.StatusMethodNotAllowed {
			_ = c.NoContent(he.Code)
			return
		}
		message := http.StatusText(he.Code)
		if m, ok := he.Message.(string); ok {
			message = m
		}
		_ = writeError(c, he.Code, message)
		return
	}

	slog.Error("unhandled error", "error", err)
	_ = writeError(c, http.StatusInternalServerError, "internal server error")
}

func toHTTPError(err error) error {
	reqErr := classify(err)
	if reqErr.Status >= http.StatusInternalServerError {
		slog.Error("relay request failed", "status", reqErr.Status, "error", err)
	}
	return reqErr
}

// classify maps relay failures onto a status code and client-facing message.
func classify(err error) requestError {
	var (
		reqErr        requestError
		validationErr *translator.ValidationError
		authErr       *provider.AuthError
		inferErr      *provider.InferenceError
		malformedErr  *provider.MalformedResponseError
		transportErr  *provider.TransportError
	)

	switch {
	case errors.As(err, &reqErr):
		return reqErr
	case errors.As(err, &validationErr):
		return requestError{Status: http.StatusBadRequest, Message: validationErr.Message}
	case errors.As(err, &transportErr) && transportErr.Timeout(),
		errors.Is(err, context.DeadlineExceeded):
		return requestError{Status: http.StatusGatewayTimeout, Message: "upstream request timed out"}
	case errors.As(err, &authErr):
		return requestError{Status: http.StatusBadGateway, Message: authErr.Error()}
	case errors.As(err, &inferErr):
		return requestError{Status: http.StatusBadGateway, Message: inferErr.Error()}
	case errors.As(err, &malformedErr):
		return requestError{Status: http.StatusBadGateway, Message: malformedErr.Error()}
	case errors.As(err, &transportErr):
		return requestError{Status: http.StatusBadGateway, Message: transportErr.Error()}
	default:
		return requestError{Status: http.StatusInternalServerError, Message: "internal server error"}
	}
}
