// Package redash runs saved Redash queries and returns their results as tables.
//
// A query execution either returns a cached result immediately or a job handle. Jobs are
// polled through jobpoll.Wait until Redash reports success, failure or cancellation.
// SafeQuery pages through large results with the offset_rows and limit_rows query
// parameters, which the saved query must declare.
package redash

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/rebase-analytics/ibreport/pkg/cache"
	"github.com/rebase-analytics/ibreport/pkg/client"
	"github.com/rebase-analytics/ibreport/pkg/jobpoll"
	"github.com/rebase-analytics/ibreport/pkg/pagination"
	"github.com/rebase-analytics/ibreport/pkg/report"
	"github.com/rebase-analytics/ibreport/pkg/table"
)

const (
	// ServiceName labels logs, metrics, throttle state and cache keys.
	ServiceName = "redash"

	// DefaultSafeQueryLimit is the page size used by SafeQuery.
	DefaultSafeQueryLimit = 10000

	// DefaultSafeQueryMaxIter bounds the number of SafeQuery pages.
	DefaultSafeQueryMaxIter = 100

	// OffsetParam and LimitParam are the query parameters SafeQuery sets on every page.
	OffsetParam = "offset_rows"
	LimitParam  = "limit_rows"
)

// ErrNoQueryResult is returned when a finished job does not reference a result.
var ErrNoQueryResult = errors.New("redash job finished without a query result")

// Params are query parameter values. Values are sent as strings.
type Params map[string]any

// Config configures a Client.
type Config struct {
	// URL is the Redash base URL, e.g. https://redash.example.com.
	URL string

	// APIKey is a user API key.
	APIKey string

	UserAgent string

	// PollInterval separates job status polls (default 1s).
	PollInterval time.Duration

	// MaxPolls bounds job polling (0 = until ctx is done).
	MaxPolls int

	// CacheTTL enables result caching when positive and a cache is set.
	CacheTTL time.Duration

	HTTPClient *http.Client
	Throttle   client.Throttle
	Retry      client.RetryConfig
}

// Client executes saved queries.
type Client struct {
	api      *client.Client
	apiKey   string
	poll     jobpoll.Config
	cache    *cache.Manager
	cacheTTL time.Duration
	logger   zerolog.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithCache stores query results in m for Config.CacheTTL.
func WithCache(m *cache.Manager) Option {
	return func(c *Client) { c.cache = m }
}

// WithPollSleep replaces the timer between job polls.
func WithPollSleep(sleep jobpoll.SleepFunc) Option {
	return func(c *Client) { c.poll.Sleep = sleep }
}

// New creates a Redash client.
func New(cfg Config, opts ...Option) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("redash api key is required")
	}

	apiCfg := client.DefaultConfig(ServiceName, cfg.URL, cfg.UserAgent)
	apiCfg.HTTPClient = cfg.HTTPClient
	apiCfg.Throttle = cfg.Throttle
	if cfg.Retry.MaxAttempts > 0 {
		apiCfg.Retry = cfg.Retry
	}
	api, err := client.New(apiCfg)
	if err != nil {
		return nil, fmt.Errorf("create redash client: %w", err)
	}

	poll := jobpoll.DefaultConfig(ServiceName)
	if cfg.PollInterval > 0 {
		poll.Interval = cfg.PollInterval
	}
	poll.MaxPolls = cfg.MaxPolls

	c := &Client{
		api:      api,
		apiKey:   cfg.APIKey,
		poll:     poll,
		cacheTTL: cfg.CacheTTL,
		logger:   log.With().Str("component", "redash").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Query executes a saved query and returns its result.
//
// maxAge is the age in seconds of a cached Redash result that is still acceptable;
// 0 forces a fresh execution. A response without a result yields an empty table.
func (c *Client) Query(ctx context.Context, queryID int, params Params, maxAge int) (*table.Table, error) {
	values := stringParams(params)
	if !c.cacheEnabled() {
		return c.execute(ctx, queryID, values, maxAge)
	}

	key := cache.Key{Source: ServiceName, Resource: "query/" + strconv.Itoa(queryID), Params: url.Values{}}
	for k, v := range values {
		key.Params.Set(k, v)
	}
	key.Params.Set("max_age", strconv.Itoa(maxAge))

	t, hit, err := c.cache.GetOrLoad(ctx, key, c.cacheTTL, func(ctx context.Context) (*table.Table, error) {
		return c.execute(ctx, queryID, values, maxAge)
	})
	if hit {
		c.logger.Debug().Int("query_id", queryID).Msg("Query result served from cache")
	}
	return t, err
}

// execute runs the query on the server, waiting for its job when one is started.
func (c *Client) execute(ctx context.Context, queryID int, values map[string]string, maxAge int) (*table.Table, error) {
	query := c.auth()
	for k, v := range values {
		query.Set("p_"+k, v)
	}

	var resp resultsResponse
	path := fmt.Sprintf("/api/queries/%d/results", queryID)
	body := resultsRequest{Parameters: values, MaxAge: maxAge}
	if err := c.api.Post(ctx, path, query, body, &resp); err != nil {
		return nil, fmt.Errorf("execute redash query %d: %w", queryID, err)
	}

	result := resp.QueryResult
	if resp.Job != nil && result == nil {
		var err error
		result, err = c.waitForResult(ctx, *resp.Job)
		if err != nil {
			return nil, fmt.Errorf("redash query %d: %w", queryID, err)
		}
	}

	if result == nil {
		c.logger.Warn().Int("query_id", queryID).Msg("Response carried no query result - returning empty table")
		return table.New(), nil
	}

	t := toTable(result)
	c.logger.Info().
		Int("query_id", queryID).
		Int("rows", t.Len()).
		Float64("runtime", result.Runtime).
		Msg("Fetched query result")
	return t, nil
}

// SafeQueryOptions bounds SafeQuery.
type SafeQueryOptions struct {
	// Limit is the number of rows per page (default 10000).
	Limit int

	// MaxIter is the maximum number of pages (default 100).
	MaxIter int

	// MaxAge is passed to every page query.
	MaxAge int
}

// SafeQuery pages through a query that declares offset_rows and limit_rows parameters.
// Page failures end the fetch and are reported on the returned Report.
func (c *Client) SafeQuery(ctx context.Context, queryID int, params Params, opts SafeQueryOptions) (*report.Report, error) {
	if opts.Limit == 0 {
		opts.Limit = DefaultSafeQueryLimit
	}
	if opts.MaxIter == 0 {
		opts.MaxIter = DefaultSafeQueryMaxIter
	}

	var columns []string
	fetch := func(ctx context.Context, cursor pagination.Cursor, p Params) ([]table.Row, error) {
		page := make(Params, len(p)+2)
		for k, v := range p {
			page[k] = v
		}
		page[OffsetParam] = cursor.Offset
		page[LimitParam] = cursor.PageSize

		t, err := c.Query(ctx, queryID, page, opts.MaxAge)
		if err != nil {
			return nil, err
		}
		if columns == nil && len(t.Columns) > 0 {
			columns = t.Columns
		}
		return t.Rows, nil
	}

	res, err := pagination.FetchAll(ctx, fetch, params, pagination.Config{
		PageSize:      opts.Limit,
		MaxIterations: opts.MaxIter,
	}, pagination.WithSource(ServiceName))
	if err != nil {
		return nil, err
	}

	r := report.New(columns, res)
	r.Log(c.logger, ServiceName)
	return r, nil
}

func (c *Client) waitForResult(ctx context.Context, job Job) (*QueryResult, error) {
	resultID, err := jobpoll.Wait(ctx, c.poll, func(ctx context.Context) (jobpoll.Job[int], error) {
		var resp jobResponse
		if err := c.api.Get(ctx, "/api/jobs/"+url.PathEscape(job.ID), c.auth(), &resp); err != nil {
			return jobpoll.Job[int]{}, err
		}
		return toPollJob(job.ID, resp.Job), nil
	})
	if err != nil {
		return nil, err
	}

	var resp queryResultResponse
	if err := c.api.Get(ctx, fmt.Sprintf("/api/query_results/%d", resultID), c.auth(), &resp); err != nil {
		return nil, fmt.Errorf("fetch query result %d: %w", resultID, err)
	}
	return resp.QueryResult, nil
}

func (c *Client) auth() url.Values {
	return url.Values{"api_key": {c.apiKey}}
}

func (c *Client) cacheEnabled() bool {
	return c.cache != nil && c.cacheTTL > 0
}

func toPollJob(id string, job Job) jobpoll.Job[int] {
	if job.ID != "" {
		id = job.ID
	}
	out := jobpoll.Job[int]{ID: id, Value: job.QueryResultID}
	switch job.Status {
	case JobSuccess:
		out.Status = jobpoll.StatusDone
		if job.QueryResultID == 0 {
			out.Status = jobpoll.StatusFailed
			out.Message = ErrNoQueryResult.Error()
		}
	case JobFailure:
		out.Status = jobpoll.StatusFailed
		out.Message = job.Error
	case JobCancelled:
		out.Status = jobpoll.StatusFailed
		out.Message = "job cancelled"
		if job.Error != "" {
			out.Message = job.Error
		}
	default:
		out.Status = jobpoll.StatusPending
	}
	return out
}

func toTable(result *QueryResult) *table.Table {
	columns := make([]string, 0, len(result.Data.Columns))
	for _, col := range result.Data.Columns {
		columns = append(columns, col.Name)
	}
	t := table.New(columns...)
	for _, row := range result.Data.Rows {
		t.Append(table.Row(row))
	}
	return t
}

func stringParams(params Params) map[string]string {
	out := make(map[string]string, len(params))
	for k, v := range params {
		out[k] = paramString(v)
	}
	return out
}

func paramString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case time.Time:
		return x.Format(time.DateOnly)
	default:
		return fmt.Sprint(x)
	}
}
