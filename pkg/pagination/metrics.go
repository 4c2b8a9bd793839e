package pagination

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	paginationPagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ibreport_pagination_pages_total",
		Help: "Total pages fetched by source",
	}, []string{"source"})

	paginationRowsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ibreport_pagination_rows_total",
		Help: "Total rows accumulated by source",
	}, []string{"source"})

	paginationStopsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ibreport_pagination_stops_total",
		Help: "Total finished fetches by source and stop reason",
	}, []string{"source", "reason"})

	paginationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ibreport_pagination_duration_seconds",
		Help:    "Duration of complete paginated fetches by source",
		Buckets: []float64{0.5, 1, 5, 15, 30, 60, 300},
	}, []string{"source"})
)
