package pagination

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var (
	paginationFetchErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ibreport_pagination_fetch_errors_total",
		Help: "Total page fetch failures reported by source",
	}, []string{"source"})

	paginationBoundExceededTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ibreport_pagination_bound_exceeded_total",
		Help: "Total fetches stopped by the max iterations bound by source",
	}, []string{"source"})
)

// Reporter is told when a fetch fails or the iteration bound is hit.
type Reporter interface {
	ReportFetchError(ctx context.Context, err *FetchError)
	ReportBoundExceeded(ctx context.Context, p Progress)
}

// LogReporter writes reports to a zerolog logger.
type LogReporter struct {
	logger zerolog.Logger
}

// NewLogReporter creates a reporter logging through logger.
func NewLogReporter(logger zerolog.Logger) *LogReporter {
	return &LogReporter{logger: logger}
}

// ReportFetchError implements Reporter.
func (r *LogReporter) ReportFetchError(_ context.Context, err *FetchError) {
	r.logger.Error().
		Err(err.Err).
		Str("source", err.Source).
		Int("iteration", err.Iteration).
		Int("offset", err.Offset).
		Msg("Page fetch failed")
}

// ReportBoundExceeded implements Reporter.
func (r *LogReporter) ReportBoundExceeded(_ context.Context, p Progress) {
	r.logger.Warn().
		Str("source", p.Source).
		Int("pages", p.Pages).
		Int("rows", p.Rows).
		Msg("Max iterations reached - results are truncated")
}

// MetricsReporter counts reports in Prometheus.
type MetricsReporter struct{}

// ReportFetchError implements Reporter.
func (MetricsReporter) ReportFetchError(_ context.Context, err *FetchError) {
	paginationFetchErrorsTotal.WithLabelValues(err.Source).Inc()
}

// ReportBoundExceeded implements Reporter.
func (MetricsReporter) ReportBoundExceeded(_ context.Context, p Progress) {
	paginationBoundExceededTotal.WithLabelValues(p.Source).Inc()
}

// Reporters fans every report out to each reporter in order.
type Reporters []Reporter

// ReportFetchError implements Reporter.
func (rs Reporters) ReportFetchError(ctx context.Context, err *FetchError) {
	for _, r := range rs {
		r.ReportFetchError(ctx, err)
	}
}

// ReportBoundExceeded implements Reporter.
func (rs Reporters) ReportBoundExceeded(ctx context.Context, p Progress) {
	for _, r := range rs {
		r.ReportBoundExceeded(ctx, p)
	}
}

// ReporterFuncs adapts plain functions to Reporter. Nil fields are skipped.
type ReporterFuncs struct {
	OnFetchError    func(ctx context.Context, err *FetchError)
	OnBoundExceeded func(ctx context.Context, p Progress)
}

// ReportFetchError implements Reporter.
func (f ReporterFuncs) ReportFetchError(ctx context.Context, err *FetchError) {
	if f.OnFetchError != nil {
		f.OnFetchError(ctx, err)
	}
}

// ReportBoundExceeded implements Reporter.
func (f ReporterFuncs) ReportBoundExceeded(ctx context.Context, p Progress) {
	if f.OnBoundExceeded != nil {
		f.OnBoundExceeded(ctx, p)
	}
}
