package client

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for Graph API client operations.
var (
	graphRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "graph_requests_total",
		Help: "Total Graph API requests by endpoint and status",
	}, []string{"endpoint", "status"})

	graphRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "graph_request_duration_seconds",
		Help:    "Graph API request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"endpoint"})

	graphErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "graph_errors_total",
		Help: "Total Graph API errors by class",
	}, []string{"class"})

	graphRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "graph_retries_total",
		Help: "Total number of rate-limit retry attempts",
	})

	graphRetryBackoffSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "graph_retry_backoff_seconds",
		Help:    "Backoff duration before rate-limit retries",
		Buckets: []float64{0.4, 0.8, 1.6, 3.2, 6.4, 12.8},
	})

	graphRetryExhaustedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "graph_retry_exhausted_total",
		Help: "Total number of requests that exhausted their retry budget",
	})

	graphCircuitBreakerState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "graph_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
	})
)

// ErrorClass represents a classification of request errors.
type ErrorClass string

const (
	// ErrorClassRateLimit represents throttling error envelopes (codes 17, 80004).
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassUpstream represents any other Graph API error envelope.
	ErrorClassUpstream ErrorClass = "upstream"

	// ErrorClassClient represents 4xx responses without an error envelope.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx responses without an error envelope.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassCredential represents a missing access token.
	ErrorClassCredential ErrorClass = "credential"
)

// endpointLabel collapses object ids in path so metric cardinality stays
// bounded: "/act_123/insights" -> "/{id}/insights".
func endpointLabel(path string) string {
	segments := strings.Split(path, "/")
	for i, s := range segments {
		if isObjectID(s) {
			segments[i] = "{id}"
		}
	}
	return strings.Join(segments, "/")
}

func isObjectID(segment string) bool {
	s := strings.TrimPrefix(segment, "act_")
	if s == "" {
		return false
	}
	for _, r := range s {
		if (r < '0' || r > '9') && r != '_' {
			return false
		}
	}
	return true
}
