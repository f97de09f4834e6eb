package watsonx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"research-relay/internal/provider"
)

const (
	contentTypeForm = "application/x-www-form-urlencoded"
	grantTypeAPIKey = "urn:ibm:params:oauth:grant-type:apikey"
	// Cloud Pak for Data keys need the IAM response type spelled out.
	cpdKeyPrefix    = "cpd-apikey"
	maxTokenBody    = 64 * 1024
	refreshGroupKey = "token"
)

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	Expiration   int64  `json:"expiration"`
}

func (r tokenResponse) toToken(now time.Time) *oauth2.Token {
	tok := &oauth2.Token{
		AccessToken:  r.AccessToken,
		TokenType:    r.TokenType,
		RefreshToken: r.RefreshToken,
	}
	switch {
	case r.ExpiresIn > 0:
		tok.Expiry = now.Add(time.Duration(r.ExpiresIn) * time.Second)
	case r.Expiration > 0:
		tok.Expiry = time.Unix(r.Expiration, 0)
	}
	return tok
}

// FetchToken exchanges the API key for a new session token, stores it and
// returns the access token. Concurrent callers share one identity call.
func (c *Client) FetchToken(ctx context.Context) (string, error) {
	tok, err := c.fetchShared(ctx)
	if err != nil {
		return "", err
	}
	return tok.AccessToken, nil
}

// SetAPIKey swaps the API key and drops the held token so the next request
// authenticates with the new key.
func (c *Client) SetAPIKey(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if key == c.apiKey {
		return
	}
	c.apiKey = key
	c.token = nil
	c.keyGen++
	slog.Info("api key rotated", "provider", c.name, "key", provider.Preview(key))
}

// currentToken returns the held token, fetching one if none is held or the
// held one is past its expiry.
func (c *Client) currentToken(ctx context.Context) (*oauth2.Token, error) {
	c.mu.RLock()
	tok := c.token
	c.mu.RUnlock()

	if tok.Valid() {
		return tok, nil
	}
	return c.fetchShared(ctx)
}

// replaceToken is called after the inference service rejected rejected. When
// another request has already installed a different token that one is reused.
func (c *Client) replaceToken(ctx context.Context, rejected *oauth2.Token) (*oauth2.Token, error) {
	c.mu.RLock()
	held := c.token
	c.mu.RUnlock()

	if held != nil && held != rejected && held.Valid() {
		return held, nil
	}
	return c.fetchShared(ctx)
}

func (c *Client) fetchShared(ctx context.Context) (*oauth2.Token, error) {
	// The shared fetch must not die with whichever caller happened to start it.
	fetchCtx := context.WithoutCancel(ctx)
	ch := c.refresh.DoChan(refreshGroupKey, func() (any, error) {
		return c.fetchAndStore(fetchCtx)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*oauth2.Token), nil
	}
}

func (c *Client) fetchAndStore(ctx context.Context) (*oauth2.Token, error) {
	c.mu.RLock()
	apiKey, gen := c.apiKey, c.keyGen
	c.mu.RUnlock()

	start := time.Now()
	tok, err := c.exchange(ctx, apiKey)
	c.metrics.ObserveUpstream(provider.StageIdentity, outcome(err), time.Since(start))
	c.metrics.ObserveTokenRefresh(err == nil)
	if err != nil {
		slog.Error("token request failed", "provider", c.name, "error", err)
		return nil, err
	}

	c.mu.Lock()
	if gen == c.keyGen {
		c.token = tok
	}
	c.mu.Unlock()

	slog.Info("obtained session token",
		"provider", c.name,
		"token", provider.Preview(tok.AccessToken),
		"expiry", tok.Expiry,
	)
	return tok, nil
}

func (c *Client) exchange(ctx context.Context, apiKey string) (*oauth2.Token, error) {
	form := url.Values{}
	form.Set("grant_type", grantTypeAPIKey)
	form.Set("apikey", apiKey)
	if strings.HasPrefix(apiKey, cpdKeyPrefix) {
		form.Set("response_type", "cloud_iam")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.iamURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("construct token request: %w", err)
	}
	req.Header.Set("Content-Type", contentTypeForm)
	req.Header.Set("Accept", contentTypeJSON)
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &provider.TransportError{Provider: c.name, Stage: provider.StageIdentity, Cause: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTokenBody))
	if err != nil {
		return nil, &provider.TransportError{Provider: c.name, Stage: provider.StageIdentity, Cause: fmt.Errorf("read token response: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &provider.AuthError{
			Provider:   c.name,
			Stage:      provider.StageIdentity,
			StatusCode: resp.StatusCode,
			Body:       provider.Truncate(body),
		}
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, &provider.MalformedResponseError{
			Provider: c.name,
			Stage:    provider.StageIdentity,
			Body:     provider.Truncate(body),
			Cause:    fmt.Errorf("decode token response: %w", err),
		}
	}
	if tr.AccessToken == "" {
		return nil, &provider.MalformedResponseError{
			Provider: c.name,
			Stage:    provider.StageIdentity,
			Body:     provider.Truncate(body),
			Cause:    errors.New("access_token missing"),
		}
	}

	return tr.toToken(time.Now()), nil
}
