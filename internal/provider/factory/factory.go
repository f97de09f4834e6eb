package factory

import (
	"fmt"
	"net"
	"net/http"
	"time"

	"research-relay/internal/config"
	"research-relay/internal/metrics"
	"research-relay/internal/provider"
	demoProvider "research-relay/internal/provider/demo"
	watsonxProvider "research-relay/internal/provider/watsonx"
)

const (
	defaultHTTPTimeout     = 30 * time.Second
	defaultDialTimeout     = 10 * time.Second
	defaultKeepAlive       = 30 * time.Second
	defaultIdleConnTimeout = 90 * time.Second
)

// New constructs the provider selected by cfg: the offline demo provider when
// the API key is DEMO_MODE, the watsonx client otherwise.
func New(cfg config.Config, collector *metrics.Collector) (provider.Provider, error) {
	if cfg.IsDemo() {
		return demoProvider.New("demo", cfg.DemoDelay), nil
	}

	client := newHTTPClient(cfg.RequestTimeout)
	p, err := watsonxProvider.New(watsonxProvider.Options{
		Name:           "watsonx",
		APIKey:         cfg.APIKey,
		IAMURL:         cfg.IAMURL,
		InferenceURL:   cfg.InferenceURL(),
		MaxAuthRetries: cfg.MaxAuthRetries,
		Metrics:        collector,
	}, client)
	if err != nil {
		return nil, fmt.Errorf("initialise watsonx provider: %w", err)
	}
	return p, nil
}

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: defaultDialTimeout, KeepAlive: defaultKeepAlive}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          20,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       defaultIdleConnTimeout,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}
