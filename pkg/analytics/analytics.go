// Package analytics fetches Google Analytics (Reporting API v4) reports as tables.
package analytics

import (
	"context"
	"fmt"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/analyticsreporting/v4"
	"google.golang.org/api/option"

	"github.com/rebase-analytics/ibreport/pkg/client"
	"github.com/rebase-analytics/ibreport/pkg/pagination"
	"github.com/rebase-analytics/ibreport/pkg/report"
	"github.com/rebase-analytics/ibreport/pkg/table"
)

const (
	// ServiceName labels logs and metrics.
	ServiceName = "analytics"

	// MaxPageSize is the largest page the API returns.
	MaxPageSize = 100000

	// DefaultMaxIterations bounds All.
	DefaultMaxIterations = 100
)

// Config configures a Client.
type Config struct {
	// ViewID is the Analytics view to report on.
	ViewID string

	// Retry applies to every batchGet call (default 3 tries, 2s, doubling).
	Retry client.RetryConfig
}

// Client fetches reports for one view.
type Client struct {
	svc    *analyticsreporting.Service
	viewID string
	retry  client.RetryConfig
	logger zerolog.Logger
}

// New creates a client. opts usually carry an authenticated HTTP client from googleauth.
func New(ctx context.Context, cfg Config, opts ...option.ClientOption) (*Client, error) {
	if cfg.ViewID == "" {
		return nil, fmt.Errorf("analytics view id is required")
	}
	svc, err := analyticsreporting.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create analytics reporting service: %w", err)
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = client.DefaultRetryConfig()
	}
	return &Client{
		svc:    svc,
		viewID: cfg.ViewID,
		retry:  cfg.Retry,
		logger: log.With().Str("component", "analytics").Str("view_id", cfg.ViewID).Logger(),
	}, nil
}

// Page fetches up to pageSize rows starting at offset with one batchGet call.
func (c *Client) Page(ctx context.Context, req ReportRequest, offset, pageSize int) (*table.Table, error) {
	req, err := req.Normalize()
	if err != nil {
		return nil, err
	}
	if pageSize <= 0 || pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	return c.page(ctx, req, offset, pageSize)
}

func (c *Client) page(ctx context.Context, req ReportRequest, offset, pageSize int) (*table.Table, error) {
	body := &analyticsreporting.GetReportsRequest{
		ReportRequests: []*analyticsreporting.ReportRequest{req.build(c.viewID, strconv.Itoa(offset), pageSize)},
	}

	var resp *analyticsreporting.GetReportsResponse
	err := client.Retry(ctx, c.retry, nil, func(ctx context.Context) error {
		var err error
		resp, err = c.svc.Reports.BatchGet(body).Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("analytics batchGet: %w", err)
	}

	t, next, err := reshape(resp, req.DateRanges[0])
	if err != nil {
		return nil, fmt.Errorf("reshape analytics report: %w", err)
	}
	c.logger.Debug().
		Int("offset", offset).
		Int("rows", t.Len()).
		Str("next_page_token", next).
		Msg("Fetched report page")
	return t, nil
}

// AllOptions bounds All.
type AllOptions struct {
	// PageSize defaults to MaxPageSize.
	PageSize int

	// MaxIterations defaults to DefaultMaxIterations.
	MaxIterations int

	// RowLimit stops fetching once reached (0 = unlimited).
	RowLimit int

	Confirm pagination.ConfirmFunc
}

// All fetches every page of the report. The offset of each page is sent as its page token.
// Page failures end the fetch and are reported on the returned Report.
func (c *Client) All(ctx context.Context, req ReportRequest, opts AllOptions) (*report.Report, error) {
	req, err := req.Normalize()
	if err != nil {
		return nil, err
	}
	if opts.PageSize == 0 {
		opts.PageSize = MaxPageSize
	}
	if opts.MaxIterations == 0 {
		opts.MaxIterations = DefaultMaxIterations
	}

	var columns []string
	fetch := func(ctx context.Context, cursor pagination.Cursor, req ReportRequest) ([]table.Row, error) {
		t, err := c.page(ctx, req, cursor.Offset, cursor.PageSize)
		if err != nil {
			return nil, err
		}
		if columns == nil {
			columns = t.Columns
		}
		return t.Rows, nil
	}

	res, err := pagination.FetchAll(ctx, fetch, req, pagination.Config{
		PageSize:      opts.PageSize,
		MaxPageSize:   MaxPageSize,
		MaxIterations: opts.MaxIterations,
		RowLimit:      opts.RowLimit,
		Confirm:       opts.Confirm,
	}, pagination.WithSource(ServiceName))
	if err != nil {
		return nil, err
	}

	r := report.New(columns, res)
	if len(req.Dimensions) > 0 && r.Table.HasColumn(req.Dimensions[0]) {
		r.Table = r.Table.SortBy(req.Dimensions[0], true)
	}
	r.Log(c.logger, ServiceName)
	return r, nil
}
