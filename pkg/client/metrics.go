package client

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for outbound API requests.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ibreport_http_requests_total",
		Help: "Total upstream API requests by service and status",
	}, []string{"service", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ibreport_http_request_duration_seconds",
		Help:    "Upstream API request duration in seconds by service",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"service"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ibreport_http_errors_total",
		Help: "Total upstream API errors by service and class",
	}, []string{"service", "class"})

	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ibreport_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	retryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ibreport_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error class",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"error_class"})

	retryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ibreport_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error class",
	}, []string{"error_class"})
)
