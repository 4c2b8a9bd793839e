// Package searchconsole fetches Google Search Console search analytics as tables.
//
// A Client is bound to one property (site URL) and a set of default query
// parameters. Fields left empty in a QueryRequest are filled from those defaults,
// so callers usually set only dimensions, filters and the date window.
package searchconsole

import (
	"context"
	"fmt"
	"strings"

	"dario.cat/mergo"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"
	"google.golang.org/api/searchconsole/v1"

	"github.com/rebase-analytics/ibreport/pkg/client"
	"github.com/rebase-analytics/ibreport/pkg/pagination"
	"github.com/rebase-analytics/ibreport/pkg/report"
	"github.com/rebase-analytics/ibreport/pkg/table"
)

const (
	// ServiceName labels logs and metrics.
	ServiceName = "searchconsole"

	// DefaultMaxIterations bounds paginated queries.
	DefaultMaxIterations = 100

	unverifiedPermission = "siteUnverifiedUser"
)

// Config configures a Client.
type Config struct {
	// SiteURL is the property, e.g. https://www.example.com/ or sc-domain:example.com.
	SiteURL string

	// Defaults fill the zero fields of every request. See DefaultQuery.
	Defaults QueryRequest

	Retry client.RetryConfig
}

// Client queries one Search Console property.
type Client struct {
	svc      *searchconsole.Service
	siteURL  string
	defaults QueryRequest
	retry    client.RetryConfig
	logger   zerolog.Logger
}

// New creates a client. opts usually carry an authenticated HTTP client from googleauth.
func New(ctx context.Context, cfg Config, opts ...option.ClientOption) (*Client, error) {
	if cfg.SiteURL == "" {
		return nil, fmt.Errorf("search console site url is required")
	}
	svc, err := searchconsole.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create search console service: %w", err)
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = client.DefaultRetryConfig()
	}
	return &Client{
		svc:      svc,
		siteURL:  cfg.SiteURL,
		defaults: cfg.Defaults,
		retry:    cfg.Retry,
		logger:   log.With().Str("component", "searchconsole").Str("site_url", cfg.SiteURL).Logger(),
	}, nil
}

// SiteURL returns the property the client queries.
func (c *Client) SiteURL() string {
	return c.siteURL
}

// withDefaults fills zero query fields from the client's defaults. The paging
// controls All, Confirm and MaxIterations always come from req.
func (c *Client) withDefaults(req QueryRequest) (QueryRequest, error) {
	all, confirm, maxIter := req.All, req.Confirm, req.MaxIterations
	if err := mergo.Merge(&req, c.defaults); err != nil {
		return req, fmt.Errorf("apply query defaults: %w", err)
	}
	req.All, req.Confirm, req.MaxIterations = all, confirm, maxIter

	if err := req.validate(); err != nil {
		return req, err
	}
	return req, nil
}

// Query runs a search analytics query. With req.All set it pages through the result
// using startRow; page failures end the fetch and are reported on the Report.
func (c *Client) Query(ctx context.Context, req QueryRequest) (*report.Report, error) {
	req, err := c.withDefaults(req)
	if err != nil {
		return nil, err
	}

	if !req.All {
		limit := min(req.RowLimit, MaxRowLimit)
		t, err := c.page(ctx, req, req.StartRow, limit)
		if err != nil {
			return nil, err
		}
		return report.Single(t, limit), nil
	}

	maxIter := req.MaxIterations
	if maxIter == 0 {
		maxIter = DefaultMaxIterations
	}

	fetch := func(ctx context.Context, cursor pagination.Cursor, req QueryRequest) ([]table.Row, error) {
		t, err := c.page(ctx, req, req.StartRow+cursor.Offset, cursor.PageSize)
		if err != nil {
			return nil, err
		}
		return t.Rows, nil
	}

	res, err := pagination.FetchAll(ctx, fetch, req, pagination.Config{
		PageSize:      req.RowLimit,
		MaxPageSize:   MaxRowLimit,
		MaxIterations: maxIter,
		RowLimit:      req.RowLimit,
		Confirm:       req.Confirm,
	}, pagination.WithSource(ServiceName))
	if err != nil {
		return nil, err
	}

	r := report.New(Columns(len(req.Dimensions)), res)
	r.Log(c.logger, ServiceName)
	return r, nil
}

func (c *Client) page(ctx context.Context, req QueryRequest, startRow, rowLimit int) (*table.Table, error) {
	body := &searchconsole.SearchAnalyticsQueryRequest{
		StartDate:  req.StartDate,
		EndDate:    req.EndDate,
		Dimensions: req.Dimensions,
		SearchType: req.SearchType,
		RowLimit:   int64(rowLimit),
		StartRow:   int64(startRow),
	}
	if len(req.Filters) > 0 {
		group := &searchconsole.ApiDimensionFilterGroup{GroupType: "and"}
		for _, f := range req.Filters {
			group.Filters = append(group.Filters, &searchconsole.ApiDimensionFilter{
				Dimension:  f.Dimension,
				Operator:   f.Operator,
				Expression: f.Expression,
			})
		}
		body.DimensionFilterGroups = []*searchconsole.ApiDimensionFilterGroup{group}
	}

	var resp *searchconsole.SearchAnalyticsQueryResponse
	err := client.Retry(ctx, c.retry, nil, func(ctx context.Context) error {
		var err error
		resp, err = c.svc.Searchanalytics.Query(c.siteURL, body).Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("search analytics query: %w", err)
	}

	if len(resp.Rows) == 0 {
		c.logger.Info().Int("start_row", startRow).Msg("Query returned no rows")
	}
	return reshape(resp.Rows, req), nil
}

// TopQueries reports clicks, impressions, ctr and position per query.
func (c *Client) TopQueries(ctx context.Context, req QueryRequest) (*report.Report, error) {
	if len(req.Dimensions) == 0 {
		req.Dimensions = []string{"query"}
	}
	return c.Query(ctx, req)
}

// TopPages reports clicks, impressions, ctr and position per page.
func (c *Client) TopPages(ctx context.Context, req QueryRequest) (*report.Report, error) {
	if len(req.Dimensions) == 0 {
		req.Dimensions = []string{"page"}
	}
	return c.Query(ctx, req)
}

// DatesWithData reports the dates in the window that have data.
func (c *Client) DatesWithData(ctx context.Context, req QueryRequest) (*report.Report, error) {
	req.Dimensions = []string{"date"}
	req.All = false
	return c.Query(ctx, req)
}

// TopSearchAppearance groups results by search appearance. The API does not
// combine searchAppearance with other dimensions.
func (c *Client) TopSearchAppearance(ctx context.Context, req QueryRequest) (*report.Report, error) {
	req.Dimensions = []string{"searchAppearance"}
	req.All = false
	return c.Query(ctx, req)
}

// Sites lists the verified http(s) properties the credentials can access.
func (c *Client) Sites(ctx context.Context) ([]string, error) {
	var resp *searchconsole.SitesListResponse
	err := client.Retry(ctx, c.retry, nil, func(ctx context.Context) error {
		var err error
		resp, err = c.svc.Sites.List().Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list sites: %w", err)
	}

	var sites []string
	for _, s := range resp.SiteEntry {
		if s.PermissionLevel == unverifiedPermission || !strings.HasPrefix(s.SiteUrl, "http") {
			continue
		}
		sites = append(sites, s.SiteUrl)
	}
	return sites, nil
}

// Sitemaps lists the sitemap paths submitted for site (default: the client's site).
func (c *Client) Sitemaps(ctx context.Context, site string) ([]string, error) {
	if site == "" {
		site = c.siteURL
	}
	var resp *searchconsole.SitemapsListResponse
	err := client.Retry(ctx, c.retry, nil, func(ctx context.Context) error {
		var err error
		resp, err = c.svc.Sitemaps.List(site).Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list sitemaps for %s: %w", site, err)
	}

	paths := make([]string, 0, len(resp.Sitemap))
	for _, s := range resp.Sitemap {
		paths = append(paths, s.Path)
	}
	return paths, nil
}
