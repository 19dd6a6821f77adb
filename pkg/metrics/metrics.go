// Package metrics documents the Prometheus metrics exported by the ads proxy.
// All metrics are defined in their respective packages (client, pagination,
// ratelimit, server) to keep those packages self-contained.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by the proxy.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Handler returns the HTTP handler serving the metrics in Registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - graph_requests_total{endpoint, status} (Counter): Graph API requests by path template and outcome
//   - graph_request_duration_seconds{endpoint} (Histogram): Request duration by path template
//   - graph_errors_total{class} (Counter): Errors by class (rate_limit, upstream, client, server, network, credential)
//   - graph_circuit_breaker_state (Gauge): 0=closed, 1=half-open, 2=open
//
// Retry Metrics (pkg/client):
//   - graph_retries_total (Counter): Rate-limit retry attempts
//   - graph_retry_backoff_seconds (Histogram): Backoff before each retry
//   - graph_retry_exhausted_total (Counter): Requests that exhausted their retry budget
//
// Pagination Metrics (pkg/pagination):
//   - graph_pages_fetched_total (Counter): Listing pages fetched
//   - graph_items_fetched_total (Counter): Listing items fetched
//   - graph_pagination_truncated_total (Counter): Listings stopped by the page ceiling
//
// Usage Metrics (pkg/ratelimit):
//   - graph_app_usage_percent{dimension} (Gauge): Latest X-App-Usage values
//   - graph_ad_account_usage_percent (Gauge): Latest X-Ad-Account-Usage utilisation
//   - graph_usage_warnings_total{level} (Counter): Responses above the warning/critical thresholds
//
// Proxy Metrics (internal/server):
//   - proxy_http_requests_total{route, status} (Counter): Proxy requests by route pattern
//
// Example Prometheus Queries:
//
//   # Rate-limit retry rate
//   rate(graph_retries_total[5m])
//
//   # Share of listings truncated by the page ceiling
//   rate(graph_pagination_truncated_total[1h])
//
//   # Quota headroom
//   max(graph_app_usage_percent) > 75
//
//   # P95 Graph API latency
//   histogram_quantile(0.95, rate(graph_request_duration_seconds_bucket[5m]))
