// Package report pairs a fetched table with the outcome of the fetch that produced it.
package report

import (
	"github.com/rs/zerolog"

	"github.com/rebase-analytics/ibreport/pkg/pagination"
	"github.com/rebase-analytics/ibreport/pkg/table"
)

// Report is the result of a paginated wrapper call.
type Report struct {
	Table *table.Table

	// Pages is the number of fetch calls made.
	Pages int

	// Truncated is set when more data may exist than Table holds.
	Truncated bool

	// Reason tells why fetching stopped.
	Reason pagination.StopReason

	// Err is the page fetch failure when Reason is StopFetchFailed.
	Err error
}

// New builds a report from an accumulated fetch. columns fixes the column order;
// columns first seen in later rows are appended.
func New(columns []string, res pagination.Result[table.Row]) *Report {
	t := table.New(columns...)
	t.Append(res.Rows...)
	return FromResult(t, res)
}

// FromResult pairs t, built from res.Rows by the caller, with the outcome of res.
func FromResult[R any](t *table.Table, res pagination.Result[R]) *Report {
	return &Report{
		Table:     t,
		Pages:     res.Pages,
		Truncated: res.Truncated,
		Reason:    res.Reason,
		Err:       res.Err,
	}
}

// Single wraps a table fetched with one call that asked for up to pageSize rows.
// A full page is reported as truncated with StopFullPage; pageSize 0 means the
// call had no row limit.
func Single(t *table.Table, pageSize int) *Report {
	if pageSize > 0 && t.Len() >= pageSize {
		return &Report{Table: t, Pages: 1, Truncated: true, Reason: pagination.StopFullPage}
	}
	return &Report{Table: t, Pages: 1, Reason: pagination.StopShortPage}
}

// Log writes a one-line summary, at warn level when truncated.
func (r *Report) Log(logger zerolog.Logger, source string) {
	event := logger.Info()
	if r.Truncated {
		event = logger.Warn().AnErr("fetch_error", r.Err)
	}
	event.
		Str("source", source).
		Int("pages", r.Pages).
		Int("rows", r.Table.Len()).
		Str("reason", string(r.Reason)).
		Bool("truncated", r.Truncated).
		Msg("Report fetched")
}
