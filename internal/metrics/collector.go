package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "research_relay"

// Outcome labels for upstream calls.
const (
	OutcomeSuccess   = "success"
	OutcomeAuth      = "auth_error"
	OutcomeUpstream  = "upstream_error"
	OutcomeMalformed = "malformed"
	OutcomeTransport = "transport_error"
	OutcomeTimeout   = "timeout"
)

// Collector owns the relay's Prometheus series. A nil *Collector is valid and
// records nothing, which keeps call sites free of guards.
type Collector struct {
	registry *prometheus.Registry

	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
	upstreamRequests *prometheus.CounterVec
	upstreamDuration *prometheus.HistogramVec
	tokenRefreshes   *prometheus.CounterVec
}

// NewCollector registers all series on a private registry.
func NewCollector() *Collector {
	// Inference calls routinely take seconds.
	buckets := []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60}

	c := &Collector{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests served, by route, method and status code.",
			},
			[]string{"route", "method", "code"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "End-to-end HTTP request latency.",
				Buckets:   buckets,
			},
			[]string{"route"},
		),
		upstreamRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "upstream_requests_total",
				Help:      "Calls to the identity and inference services, by outcome.",
			},
			[]string{"stage", "outcome"},
		),
		upstreamDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "upstream_duration_seconds",
				Help:      "Latency of identity and inference calls.",
				Buckets:   buckets,
			},
			[]string{"stage"},
		),
		tokenRefreshes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "token_refreshes_total",
				Help:      "Session token fetches, by result.",
			},
			[]string{"result"},
		),
	}

	c.registry.MustRegister(
		c.httpRequests,
		c.httpDuration,
		c.upstreamRequests,
		c.upstreamDuration,
		c.tokenRefreshes,
	)
	return c
}

// ObserveHTTP records one served request.
func (c *Collector) ObserveHTTP(route, method string, code int, duration time.Duration) {
	if c == nil {
		return
	}
	c.httpRequests.WithLabelValues(route, method, strconv.Itoa(code)).Inc()
	c.httpDuration.WithLabelValues(route).Observe(duration.Seconds())
}

// ObserveUpstream records one identity or inference call.
func (c *Collector) ObserveUpstream(stage, outcome string, duration time.Duration) {
	if c == nil {
		return
	}
	c.upstreamRequests.WithLabelValues(stage, outcome).Inc()
	c.upstreamDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// ObserveTokenRefresh records a token fetch attempt.
func (c *Collector) ObserveTokenRefresh(success bool) {
	if c == nil {
		return
	}
	result := OutcomeSuccess
	if !success {
		result = "failure"
	}
	c.tokenRefreshes.WithLabelValues(result).Inc()
}

// Handler exposes the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}

// Registry exposes the underlying registry for tests and extra collectors.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}
