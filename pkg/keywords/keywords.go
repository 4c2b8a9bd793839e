// Package keywords looks up monthly search volumes of keywords through the Google Ads
// keyword planner (generateKeywordHistoricalMetrics).
package keywords

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/rebase-analytics/ibreport/pkg/client"
	"github.com/rebase-analytics/ibreport/pkg/pagination"
	"github.com/rebase-analytics/ibreport/pkg/report"
	"github.com/rebase-analytics/ibreport/pkg/table"
)

const (
	// ServiceName labels logs, metrics and throttle state.
	ServiceName = "googleads"

	DefaultEndpoint   = "https://googleads.googleapis.com"
	DefaultAPIVersion = "v17"
	DefaultLanguage   = "languageConstants/1000"
	DefaultNetwork    = "GOOGLE_SEARCH"

	// BatchSize is the number of keywords sent per request.
	BatchSize = 600

	// DefaultMaxIterations bounds the number of batches.
	DefaultMaxIterations = 100
)

// Columns of the volume table besides the YYYYMM month columns.
const (
	KeywordColumn = "keyword"
	MeanColumn    = "mean"
)

// Config configures a Client.
type Config struct {
	Endpoint   string
	APIVersion string

	// CustomerID is the Ads account the request is made for. Dashes are ignored.
	CustomerID string

	// LoginCustomerID is the manager account, when accessing through one.
	LoginCustomerID string

	DeveloperToken string

	// Language is a language constant resource name (default "languageConstants/1000", English).
	Language string

	// GeoTargets are geo target constant resource names, e.g. "geoTargetConstants/2392".
	GeoTargets []string

	// Network defaults to GOOGLE_SEARCH.
	Network string

	// BatchSize overrides the number of keywords per request.
	BatchSize int

	// MaxIterations defaults to DefaultMaxIterations.
	MaxIterations int

	UserAgent string

	// HTTPClient must carry OAuth2 credentials with the adwords scope.
	HTTPClient *http.Client
	Throttle   client.Throttle
	Retry      client.RetryConfig
}

// Client queries keyword search volumes.
type Client struct {
	api     *client.Client
	path    string
	request historicalMetricsRequest
	batch   int
	maxIter int
	logger  zerolog.Logger
}

// New creates a client.
func New(cfg Config) (*Client, error) {
	customer := strings.ReplaceAll(cfg.CustomerID, "-", "")
	if customer == "" {
		return nil, fmt.Errorf("ads customer id is required")
	}
	if cfg.DeveloperToken == "" {
		return nil, fmt.Errorf("ads developer token is required")
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = DefaultAPIVersion
	}
	if cfg.Language == "" {
		cfg.Language = DefaultLanguage
	}
	if cfg.Network == "" {
		cfg.Network = DefaultNetwork
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = BatchSize
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}

	apiCfg := client.DefaultConfig(ServiceName, cfg.Endpoint, cfg.UserAgent)
	apiCfg.HTTPClient = cfg.HTTPClient
	apiCfg.Throttle = cfg.Throttle
	if cfg.Retry.MaxAttempts > 0 {
		apiCfg.Retry = cfg.Retry
	}
	apiCfg.Headers = map[string]string{"developer-token": cfg.DeveloperToken}
	if login := strings.ReplaceAll(cfg.LoginCustomerID, "-", ""); login != "" {
		apiCfg.Headers["login-customer-id"] = login
	}
	api, err := client.New(apiCfg)
	if err != nil {
		return nil, fmt.Errorf("create ads client: %w", err)
	}

	return &Client{
		api:  api,
		path: fmt.Sprintf("/%s/customers/%s:generateKeywordHistoricalMetrics", cfg.APIVersion, customer),
		request: historicalMetricsRequest{
			Language:           cfg.Language,
			GeoTargetConstants: cfg.GeoTargets,
			KeywordPlanNetwork: cfg.Network,
		},
		batch:   cfg.BatchSize,
		maxIter: cfg.MaxIterations,
		logger:  log.With().Str("component", "keywords").Str("customer_id", customer).Logger(),
	}, nil
}

// SearchVolumes returns one row per keyword with a YYYYMM column per month of
// history and the average monthly searches in "mean". Keywords are sent in batches;
// a failed batch ends the lookup and is reported on the Report.
func (c *Client) SearchVolumes(ctx context.Context, keywords []string) (*report.Report, error) {
	fetch := func(ctx context.Context, cursor pagination.Cursor, keywords []string) ([]table.Row, error) {
		if cursor.Offset >= len(keywords) {
			return nil, nil
		}
		batch := keywords[cursor.Offset:min(cursor.Offset+cursor.PageSize, len(keywords))]
		return c.fetchBatch(ctx, batch)
	}

	res, err := pagination.FetchAll(ctx, fetch, keywords, pagination.Config{
		PageSize:      c.batch,
		MaxIterations: c.maxIter,
	}, pagination.WithSource(ServiceName))
	if err != nil {
		return nil, err
	}

	r := report.New(volumeColumns(res.Rows), res)
	r.Log(c.logger, ServiceName)
	return r, nil
}

// fetchBatch returns exactly one row per requested keyword, in request order.
func (c *Client) fetchBatch(ctx context.Context, batch []string) ([]table.Row, error) {
	body := c.request
	body.Keywords = batch

	var resp historicalMetricsResponse
	if err := c.api.Post(ctx, c.path, nil, body, &resp); err != nil {
		return nil, err
	}

	byText := make(map[string]*KeywordResult, len(resp.Results))
	for i := range resp.Results {
		res := &resp.Results[i]
		byText[normalize(res.Text)] = res
		for _, v := range res.CloseVariants {
			if _, ok := byText[normalize(v)]; !ok {
				byText[normalize(v)] = res
			}
		}
	}

	rows := make([]table.Row, 0, len(batch))
	missing := 0
	for _, kw := range batch {
		res, ok := byText[normalize(kw)]
		if !ok {
			missing++
		}
		rows = append(rows, volumeRow(kw, res))
	}

	c.logger.Debug().
		Int("keywords", len(batch)).
		Int("results", len(resp.Results)).
		Int("missing", missing).
		Msg("Fetched keyword batch")
	return rows, nil
}

func volumeRow(keyword string, res *KeywordResult) table.Row {
	row := table.Row{KeywordColumn: keyword}
	if res == nil || res.KeywordMetrics == nil {
		return row
	}
	for _, v := range res.KeywordMetrics.MonthlySearchVolumes {
		if ym, ok := v.YearMonth(); ok {
			row[ym] = int64(v.MonthlySearches)
		}
	}
	row[MeanColumn] = int64(res.KeywordMetrics.AvgMonthlySearches)
	return row
}

// volumeColumns orders the keyword column first, then months ascending, then the mean.
func volumeColumns(rows []table.Row) []string {
	seen := map[string]bool{}
	var monthCols []string
	for _, row := range rows {
		for col := range row {
			if col == KeywordColumn || col == MeanColumn || seen[col] {
				continue
			}
			seen[col] = true
			monthCols = append(monthCols, col)
		}
	}
	sort.Strings(monthCols)

	cols := append([]string{KeywordColumn}, monthCols...)
	return append(cols, MeanColumn)
}

func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// GenerateKeywords combines every distinct item of a with every distinct item of b
// as "a b", in first-seen order.
func GenerateKeywords(a, b []string) []string {
	a, b = distinct(a), distinct(b)
	out := make([]string, 0, len(a)*len(b))
	for _, x := range a {
		for _, y := range b {
			out = append(out, x+" "+y)
		}
	}
	return out
}

func distinct(items []string) []string {
	seen := make(map[string]bool, len(items))
	out := make([]string, 0, len(items))
	for _, s := range items {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
