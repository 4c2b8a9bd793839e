// Package metrics documents the Prometheus metrics exported by ibreport.
// All metrics are defined in their respective packages (pagination, jobpoll, client,
// cache, ratelimit, cmd/report-server) to maintain modularity and avoid circular dependencies.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by ibreport.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Handler serves the metrics registered with Registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Names lists every ibreport metric family.
var Names = []string{
	"ibreport_pagination_pages_total",
	"ibreport_pagination_rows_total",
	"ibreport_pagination_stops_total",
	"ibreport_pagination_duration_seconds",
	"ibreport_pagination_fetch_errors_total",
	"ibreport_pagination_bound_exceeded_total",
	"ibreport_job_polls_total",
	"ibreport_job_outcomes_total",
	"ibreport_http_requests_total",
	"ibreport_http_request_duration_seconds",
	"ibreport_http_errors_total",
	"ibreport_retries_total",
	"ibreport_retry_backoff_seconds",
	"ibreport_retry_exhausted_total",
	"ibreport_throttle_blocked_seconds",
	"ibreport_throttle_responses_total",
	"ibreport_throttle_waits_total",
	"ibreport_cache_hits_total",
	"ibreport_cache_misses_total",
	"ibreport_cache_stored_bytes",
	"ibreport_cache_errors_total",
	"ibreport_export_requests_total",
}

// Metrics Documentation
//
// Pagination Metrics (pkg/pagination):
//   - ibreport_pagination_pages_total{source} (Counter): Pages fetched successfully
//   - ibreport_pagination_rows_total{source} (Counter): Rows accumulated
//   - ibreport_pagination_stops_total{source, reason} (Counter): Fetches ended by stop reason
//   - ibreport_pagination_duration_seconds{source} (Histogram): Duration of whole fetches
//   - ibreport_pagination_fetch_errors_total{source} (Counter): Page fetch failures (partial results)
//   - ibreport_pagination_bound_exceeded_total{source} (Counter): Fetches cut by the iteration bound
//
// Job Metrics (pkg/jobpoll):
//   - ibreport_job_polls_total{kind} (Counter): Status polls
//   - ibreport_job_outcomes_total{kind, outcome} (Counter): Finished waits by outcome
//
// Request Metrics (pkg/client):
//   - ibreport_http_requests_total{service, status} (Counter): Requests by service and HTTP status
//   - ibreport_http_request_duration_seconds{service} (Histogram): Request duration by service
//   - ibreport_http_errors_total{service, class} (Counter): Errors by class (client, server, rate_limit, network)
//
// Retry Metrics (pkg/client):
//   - ibreport_retries_total{error_class} (Counter): Retry attempts by error class
//   - ibreport_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - ibreport_retry_exhausted_total{error_class} (Counter): Calls that exhausted max retries
//
// Throttle Metrics (pkg/ratelimit):
//   - ibreport_throttle_blocked_seconds{service} (Gauge): Remaining block window
//   - ibreport_throttle_responses_total{service} (Counter): 429/503 responses
//   - ibreport_throttle_waits_total{service} (Counter): Requests delayed by a block window
//
// Cache Metrics (pkg/cache):
//   - ibreport_cache_hits_total{source} (Counter): Cache hits
//   - ibreport_cache_misses_total{source} (Counter): Cache misses
//   - ibreport_cache_stored_bytes{source} (Histogram): Encoded size of stored tables
//   - ibreport_cache_errors_total{operation} (Counter): Cache operation errors
//
// Server Metrics (cmd/report-server):
//   - ibreport_export_requests_total{status} (Counter): Redash export requests by response status
//
// Example Prometheus Queries:
//
//   # Share of truncated fetches
//   sum(rate(ibreport_pagination_stops_total{reason=~"fetch_failed|max_iterations|declined"}[1h])) /
//   sum(rate(ibreport_pagination_stops_total[1h]))
//
//   # Throttled services
//   ibreport_throttle_blocked_seconds > 0
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(ibreport_http_request_duration_seconds_bucket[5m]))
