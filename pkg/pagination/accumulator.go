// Package pagination provides the paginated fetch accumulator shared by every report wrapper.
package pagination

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ErrInvalidConfig is returned by FetchAll before any fetch when Config is unusable.
var ErrInvalidConfig = errors.New("invalid pagination config")

// StopReason tells why FetchAll stopped fetching.
type StopReason string

const (
	// StopShortPage means the last page held fewer rows than requested: no more data.
	StopShortPage StopReason = "short_page"

	// StopRowLimit means the cumulative row count reached Config.RowLimit.
	StopRowLimit StopReason = "row_limit"

	// StopMaxIterations means Config.MaxIterations pages were fetched without a short page.
	StopMaxIterations StopReason = "max_iterations"

	// StopDeclined means the Confirm callback refused to continue.
	StopDeclined StopReason = "declined"

	// StopFetchFailed means a page fetch returned an error.
	StopFetchFailed StopReason = "fetch_failed"

	// StopFullPage means a single, unpaginated call returned a full page, so more
	// rows may exist. FetchAll never reports it.
	StopFullPage StopReason = "full_page"
)

// Cursor is the position handed to a PageFunc.
type Cursor struct {
	// Offset is the number of rows fetched so far.
	Offset int

	// PageSize is the effective (clamped) number of rows requested.
	PageSize int

	// Iteration is the zero-based index of the page being fetched.
	Iteration int
}

// PageFunc fetches one page at cursor. params is passed through from FetchAll unmodified.
type PageFunc[R any, P any] func(ctx context.Context, cursor Cursor, params P) ([]R, error)

// Progress describes the accumulator state after a page, for Confirm and Reporter callbacks.
type Progress struct {
	// Source names the paginated source (see WithSource).
	Source string

	// Pages is the number of fetch calls made so far.
	Pages int

	// Rows is the cumulative number of rows fetched.
	Rows int

	// LastPage is the number of rows in the page just fetched.
	LastPage int

	// Offset is the cursor offset for the next page.
	Offset int

	// PageSize is the effective (clamped) page size.
	PageSize int

	// Iteration is the zero-based index of the page just fetched.
	Iteration int
}

// ConfirmFunc decides whether fetching continues after a full page.
type ConfirmFunc func(ctx context.Context, p Progress) bool

// Config bounds a single FetchAll invocation.
type Config struct {
	// PageSize is the number of rows requested per call. Must be positive.
	PageSize int

	// MaxPageSize is the service's hard page size maximum; PageSize is clamped to it (0 = none).
	MaxPageSize int

	// MaxIterations is the safety bound on the number of calls. Must be positive.
	MaxIterations int

	// RowLimit is a soft cap on cumulative rows (0 = unlimited).
	RowLimit int

	// Confirm, when set, is asked before every further page.
	Confirm ConfirmFunc
}

// EffectivePageSize returns PageSize clamped to MaxPageSize.
func (c Config) EffectivePageSize() int {
	if c.MaxPageSize > 0 && c.PageSize > c.MaxPageSize {
		return c.MaxPageSize
	}
	return c.PageSize
}

// Validate reports a descriptive ErrInvalidConfig for unusable settings.
func (c Config) Validate() error {
	switch {
	case c.PageSize <= 0:
		return fmt.Errorf("%w: page size must be positive (got %d)", ErrInvalidConfig, c.PageSize)
	case c.MaxIterations <= 0:
		return fmt.Errorf("%w: max iterations must be positive (got %d)", ErrInvalidConfig, c.MaxIterations)
	case c.MaxPageSize < 0:
		return fmt.Errorf("%w: max page size must not be negative (got %d)", ErrInvalidConfig, c.MaxPageSize)
	case c.RowLimit < 0:
		return fmt.Errorf("%w: row limit must not be negative (got %d)", ErrInvalidConfig, c.RowLimit)
	}
	return nil
}

// FetchError is a single failed page fetch. It is reported, never returned by FetchAll.
type FetchError struct {
	Source    string
	Iteration int
	Offset    int
	Err       error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s page %d (offset %d): %v", e.Source, e.Iteration, e.Offset, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// Result is the accumulated outcome of FetchAll.
type Result[R any] struct {
	// Rows is the concatenation of all fetched pages in call order.
	Rows []R

	// Pages is the number of fetch calls made, including a failed one.
	Pages int

	// Truncated is true when fetching stopped before no more data was confirmed.
	Truncated bool

	// Reason is why fetching stopped.
	Reason StopReason

	// Err is the *FetchError when Reason is StopFetchFailed.
	Err error
}

type options struct {
	source   string
	reporter Reporter
	logger   *zerolog.Logger
}

// Option customizes FetchAll.
type Option func(*options)

// WithSource names the paginated source in logs and metrics.
func WithSource(source string) Option {
	return func(o *options) { o.source = source }
}

// WithReporter sets the collaborator told about fetch failures and bound violations.
func WithReporter(r Reporter) Option {
	return func(o *options) { o.reporter = r }
}

// WithLogger overrides the logger used for progress messages.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = &l }
}

// FetchAll calls fetch with an advancing cursor until the source is exhausted or a bound is hit.
//
// The returned error is non-nil only for configuration errors, in which case fetch is never called.
// Fetch failures end the loop and are exposed through Result.Err with Result.Truncated set.
func FetchAll[R any, P any](ctx context.Context, fetch PageFunc[R, P], params P, cfg Config, opts ...Option) (Result[R], error) {
	if fetch == nil {
		return Result[R]{}, fmt.Errorf("%w: fetch function is required", ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return Result[R]{}, err
	}

	o := options{source: "default"}
	for _, opt := range opts {
		opt(&o)
	}
	if o.reporter == nil {
		o.reporter = NewLogReporter(log.Logger)
	}
	logger := log.With().Str("component", "pagination").Logger()
	if o.logger != nil {
		logger = *o.logger
	}
	logger = logger.With().Str("source", o.source).Logger()

	pageSize := cfg.EffectivePageSize()
	if pageSize != cfg.PageSize {
		logger.Debug().
			Int("requested", cfg.PageSize).
			Int("page_size", pageSize).
			Msg("Page size clamped to service maximum")
	}

	start := time.Now()
	var res Result[R]
	offset := 0

	finish := func(reason StopReason, truncated bool) Result[R] {
		res.Reason = reason
		res.Truncated = truncated
		paginationStopsTotal.WithLabelValues(o.source, string(reason)).Inc()
		paginationDuration.WithLabelValues(o.source).Observe(time.Since(start).Seconds())
		logger.Info().
			Int("pages", res.Pages).
			Int("rows", len(res.Rows)).
			Str("reason", string(reason)).
			Bool("truncated", truncated).
			Dur("duration", time.Since(start)).
			Msg("Fetch complete")
		return res
	}

	for iteration := 0; ; iteration++ {
		cursor := Cursor{Offset: offset, PageSize: pageSize, Iteration: iteration}

		page, err := fetchPage(ctx, fetch, cursor, params)
		res.Pages++
		if err != nil {
			fetchErr := &FetchError{Source: o.source, Iteration: iteration, Offset: offset, Err: err}
			res.Err = fetchErr
			o.reporter.ReportFetchError(ctx, fetchErr)
			logger.Warn().
				Err(err).
				Int("iteration", iteration).
				Int("offset", offset).
				Int("rows", len(res.Rows)).
				Msg("Page fetch failed - returning partial results")
			return finish(StopFetchFailed, true), nil
		}

		res.Rows = append(res.Rows, page...)
		offset += len(page)
		paginationPagesTotal.WithLabelValues(o.source).Inc()
		paginationRowsTotal.WithLabelValues(o.source).Add(float64(len(page)))

		logger.Debug().
			Int("iteration", iteration).
			Int("page_rows", len(page)).
			Int("total_rows", offset).
			Msg("Fetched page")

		progress := Progress{
			Source:    o.source,
			Pages:     res.Pages,
			Rows:      len(res.Rows),
			LastPage:  len(page),
			Offset:    offset,
			PageSize:  pageSize,
			Iteration: iteration,
		}

		if len(page) < pageSize {
			return finish(StopShortPage, false), nil
		}
		if cfg.RowLimit > 0 && offset >= cfg.RowLimit {
			return finish(StopRowLimit, false), nil
		}
		if res.Pages >= cfg.MaxIterations {
			o.reporter.ReportBoundExceeded(ctx, progress)
			return finish(StopMaxIterations, true), nil
		}
		if cfg.Confirm != nil && !cfg.Confirm(ctx, progress) {
			return finish(StopDeclined, true), nil
		}
	}
}

// fetchPage shields the loop from cancelled contexts and panicking fetchers.
func fetchPage[R any, P any](ctx context.Context, fetch PageFunc[R, P], cursor Cursor, params P) (page []R, err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("page fetch panicked: %v", r)
		}
	}()
	return fetch(ctx, cursor, params)
}
