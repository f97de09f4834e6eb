package watsonx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"research-relay/internal/metrics"
	"research-relay/internal/models"
	"research-relay/internal/provider"
)

const (
	contentTypeJSON      = "application/json"
	userAgent            = "research-relay/0.1"
	maxResponseBytes     = 10 << 20 // 10 MiB
	defaultRetryInterval = 250 * time.Millisecond
)

// Options configures a Client.
type Options struct {
	Name         string
	APIKey       string
	IAMURL       string
	InferenceURL string

	// MaxAuthRetries bounds how many times a 401 from the inference service
	// triggers a token refresh and another attempt.
	MaxAuthRetries int

	// RetryInterval is the initial backoff between auth retries. Zero selects
	// the default.
	RetryInterval time.Duration

	Metrics *metrics.Collector
}

// Client talks to an IBM watsonx.ai deployment, authenticating through IAM.
type Client struct {
	name           string
	iamURL         string
	inferenceURL   string
	client         *http.Client
	maxAuthRetries int
	retryInterval  time.Duration
	metrics        *metrics.Collector

	mu      sync.RWMutex
	apiKey  string
	keyGen  uint64
	token   *oauth2.Token
	refresh singleflight.Group
}

// New creates a watsonx client that sends requests through client.
func New(opts Options, client *http.Client) (*Client, error) {
	if client == nil {
		return nil, errors.New("http client must not be nil")
	}
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("api key must not be empty")
	}
	if opts.IAMURL == "" {
		return nil, errors.New("iam url must not be empty")
	}
	if opts.InferenceURL == "" {
		return nil, errors.New("inference url must not be empty")
	}
	if opts.MaxAuthRetries < 0 {
		return nil, fmt.Errorf("max auth retries must not be negative, got %d", opts.MaxAuthRetries)
	}

	name := opts.Name
	if name == "" {
		name = "watsonx"
	}
	interval := opts.RetryInterval
	if interval <= 0 {
		interval = defaultRetryInterval
	}

	return &Client{
		name:           name,
		iamURL:         opts.IAMURL,
		inferenceURL:   opts.InferenceURL,
		client:         client,
		maxAuthRetries: opts.MaxAuthRetries,
		retryInterval:  interval,
		metrics:        opts.Metrics,
		apiKey:         opts.APIKey,
	}, nil
}

func (c *Client) Name() string {
	return c.name
}

// Query posts payload to the deployment. A 401 answer refreshes the token and
// retries, at most MaxAuthRetries times; every other failure is returned at
// once as one of the provider error types.
func (c *Client) Query(ctx context.Context, payload models.InferencePayload) (json.RawMessage, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	var rejected *oauth2.Token
	operation := func() (json.RawMessage, error) {
		var tok *oauth2.Token
		var err error
		if rejected == nil {
			tok, err = c.currentToken(ctx)
		} else {
			tok, err = c.replaceToken(ctx, rejected)
		}
		if err != nil {
			return nil, backoff.Permanent(err)
		}

		raw, err := c.infer(ctx, tok, body)
		if err == nil {
			return raw, nil
		}

		var authErr *provider.AuthError
		if errors.As(err, &authErr) {
			rejected = tok
			return nil, err
		}
		return nil, backoff.Permanent(err)
	}

	raw, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(c.newBackOff()),
		backoff.WithMaxTries(uint(c.maxAuthRetries)+1),
		backoff.WithNotify(func(err error, wait time.Duration) {
			slog.Info("inference rejected session token, refreshing",
				"provider", c.name,
				"retry_in", wait,
			)
		}),
	)
	if err != nil {
		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) {
			err = permanent.Err
		}
		return nil, err
	}
	return raw, nil
}

func (c *Client) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retryInterval
	b.MaxInterval = 8 * c.retryInterval
	return b
}

func (c *Client) infer(ctx context.Context, tok *oauth2.Token, body []byte) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.inferenceURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("construct inference request: %w", err)
	}
	req.Header.Set("Content-Type", contentTypeJSON+"; charset=UTF-8")
	req.Header.Set("Accept", contentTypeJSON)
	req.Header.Set("User-Agent", userAgent)
	tok.SetAuthHeader(req)

	start := time.Now()
	raw, err := c.doInfer(req)
	c.metrics.ObserveUpstream(provider.StageInference, outcome(err), time.Since(start))
	if err != nil {
		slog.Warn("inference request failed", "provider", c.name, "error", err)
		return nil, err
	}

	slog.Info("inference response received", "provider", c.name, "bytes", len(raw))
	return raw, nil
}

func (c *Client) doInfer(req *http.Request) (json.RawMessage, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &provider.TransportError{Provider: c.name, Stage: provider.StageInference, Cause: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &provider.TransportError{Provider: c.name, Stage: provider.StageInference, Cause: fmt.Errorf("read inference response: %w", err)}
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, &provider.AuthError{
			Provider:   c.name,
			Stage:      provider.StageInference,
			StatusCode: resp.StatusCode,
			Body:       provider.Truncate(data),
		}
	case resp.StatusCode != http.StatusOK:
		return nil, &provider.InferenceError{
			Provider:   c.name,
			StatusCode: resp.StatusCode,
			Body:       provider.Truncate(data),
		}
	}

	if !json.Valid(data) {
		return nil, &provider.MalformedResponseError{
			Provider: c.name,
			Stage:    provider.StageInference,
			Body:     provider.Truncate(data),
			Cause:    errors.New("body is not valid JSON"),
		}
	}
	return json.RawMessage(data), nil
}

func outcome(err error) string {
	if err == nil {
		return metrics.OutcomeSuccess
	}

	var (
		authErr      *provider.AuthError
		inferErr     *provider.InferenceError
		malformedErr *provider.MalformedResponseError
		transportErr *provider.TransportError
	)
	switch {
	case errors.As(err, &authErr):
		return metrics.OutcomeAuth
	case errors.As(err, &inferErr):
		return metrics.OutcomeUpstream
	case errors.As(err, &malformedErr):
		return metrics.OutcomeMalformed
	case errors.As(err, &transportErr):
		if transportErr.Timeout() {
			return metrics.OutcomeTimeout
		}
		return metrics.OutcomeTransport
	default:
		return metrics.OutcomeTransport
	}
}
