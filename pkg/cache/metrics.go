package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks cache hits by source
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ibreport_cache_hits_total",
			Help: "Total number of table cache hits",
		},
		[]string{"source"},
	)

	// CacheMisses tracks cache misses by source
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ibreport_cache_misses_total",
			Help: "Total number of table cache misses",
		},
		[]string{"source"},
	)

	// CacheStoredBytes tracks the encoded size of stored tables
	CacheStoredBytes = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ibreport_cache_stored_bytes",
			Help:    "Encoded size of cached tables in bytes",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 8),
		},
		[]string{"source"},
	)

	// CacheErrors tracks cache operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ibreport_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "get", "set", "delete"
	)
)
