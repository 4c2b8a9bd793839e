// Package client provides the shared HTTP transport for upstream reporting APIs,
// with throttle tracking, retries and error classification.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Throttle gates requests to a service after it signalled overload.
// *ratelimit.Tracker implements it.
type Throttle interface {
	Wait(ctx context.Context, service string) error
	UpdateFromResponse(ctx context.Context, service string, status int, headers http.Header) error
}

// Config holds the client configuration.
type Config struct {
	// Service names the upstream API in logs, metrics and throttle state.
	Service string

	// BaseURL is prefixed to every request path.
	BaseURL string

	// UserAgent header sent with every request.
	UserAgent string

	// Timeout per attempt (0 keeps the HTTP client's own timeout).
	Timeout time.Duration

	// HTTPClient carries authentication (e.g. an OAuth2 transport). Optional.
	HTTPClient *http.Client

	// Headers are added to every request.
	Headers map[string]string

	// Throttle is consulted before and updated after every attempt. Optional.
	Throttle Throttle

	// Retry controls retries of server, rate limit and network errors.
	Retry RetryConfig
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(service, baseURL, userAgent string) Config {
	return Config{
		Service:   service,
		BaseURL:   baseURL,
		UserAgent: userAgent,
		Timeout:   60 * time.Second,
		Retry:     DefaultRetryConfig(),
	}
}

// Client performs JSON requests against one upstream API.
type Client struct {
	rest   *resty.Client
	config Config
	logger zerolog.Logger
}

// Request describes one API call.
type Request struct {
	Method  string
	Path    string
	Query   url.Values
	Headers map[string]string

	// Body is encoded as JSON when non-nil.
	Body any

	// Result receives the decoded JSON response body when non-nil.
	Result any
}

// Response is a successful (2xx/3xx) API response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// New creates a new client.
func New(cfg Config) (*Client, error) {
	if cfg.Service == "" {
		return nil, fmt.Errorf("service name is required")
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = DefaultRetryConfig()
	}

	rest := resty.New()
	if cfg.HTTPClient != nil {
		rest = resty.NewWithClient(cfg.HTTPClient)
	}
	rest.SetBaseURL(strings.TrimRight(cfg.BaseURL, "/"))
	rest.SetHeader("User-Agent", cfg.UserAgent)
	rest.SetHeader("Accept", "application/json")
	rest.SetHeaders(cfg.Headers)
	if cfg.Timeout > 0 {
		rest.SetTimeout(cfg.Timeout)
	}
	instrument(rest, cfg.Service)

	return &Client{
		rest:   rest,
		config: cfg,
		logger: log.With().Str("component", "http-client").Str("service", cfg.Service).Logger(),
	}, nil
}

// Service returns the configured service name.
func (c *Client) Service() string {
	return c.config.Service
}

// Do performs a request with throttling, retries and error classification.
// Non-2xx/3xx responses are returned as *APIError; 4xx responses are not retried.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	var out *Response
	err := Retry(ctx, c.config.Retry, ClassifyError, func(ctx context.Context) error {
		resp, err := c.attempt(ctx, method, req)
		if err != nil {
			return err
		}
		out = resp
		return nil
	})
	if err != nil {
		return nil, err
	}

	if req.Result != nil && len(out.Body) > 0 {
		if err := json.Unmarshal(out.Body, req.Result); err != nil {
			return nil, fmt.Errorf("decode %s response: %w", c.config.Service, err)
		}
	}
	return out, nil
}

func (c *Client) attempt(ctx context.Context, method string, req Request) (*Response, error) {
	if c.config.Throttle != nil {
		if err := c.config.Throttle.Wait(ctx, c.config.Service); err != nil {
			return nil, fmt.Errorf("wait for throttle window: %w", err)
		}
	}

	startTime := time.Now()
	defer func() {
		requestDuration.WithLabelValues(c.config.Service).Observe(time.Since(startTime).Seconds())
	}()

	r := c.rest.R().SetContext(ctx)
	if len(req.Query) > 0 {
		r.SetQueryParamsFromValues(req.Query)
	}
	if len(req.Headers) > 0 {
		r.SetHeaders(req.Headers)
	}
	if req.Body != nil {
		r.SetHeader("Content-Type", "application/json")
		r.SetBody(req.Body)
	}

	c.logger.Debug().
		Str("method", method).
		Str("path", req.Path).
		Msg("Executing request")

	resp, err := r.Execute(method, req.Path)
	if err != nil {
		class := ClassifyError(err)
		errorsTotal.WithLabelValues(c.config.Service, string(class)).Inc()
		requestsTotal.WithLabelValues(c.config.Service, "network_error").Inc()
		c.logger.Error().Err(err).Str("path", req.Path).Msg("HTTP request failed")
		return nil, err
	}

	status := resp.StatusCode()
	requestsTotal.WithLabelValues(c.config.Service, strconv.Itoa(status)).Inc()

	if c.config.Throttle != nil {
		if err := c.config.Throttle.UpdateFromResponse(ctx, c.config.Service, status, resp.Header()); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to update throttle state from response")
		}
	}

	if status >= 400 {
		class := ClassifyStatus(status)
		errorsTotal.WithLabelValues(c.config.Service, string(class)).Inc()
		c.logger.Warn().
			Str("path", req.Path).
			Int("status", status).
			Str("error_class", string(class)).
			Msg("API request error")
		return nil, &APIError{
			Service:    c.config.Service,
			StatusCode: status,
			ErrorClass: class,
			Message:    errorMessage(resp),
		}
	}

	return &Response{
		StatusCode: status,
		Header:     resp.Header(),
		Body:       resp.Body(),
	}, nil
}

// Get performs a GET request and decodes the JSON response into result.
func (c *Client) Get(ctx context.Context, path string, query url.Values, result any) error {
	_, err := c.Do(ctx, Request{Method: http.MethodGet, Path: path, Query: query, Result: result})
	return err
}

// Post performs a POST request with a JSON body and decodes the JSON response into result.
func (c *Client) Post(ctx context.Context, path string, query url.Values, body, result any) error {
	_, err := c.Do(ctx, Request{Method: http.MethodPost, Path: path, Query: query, Body: body, Result: result})
	return err
}

const maxErrorBody = 512

// errorMessage extracts a short message from an error response.
func errorMessage(resp *resty.Response) string {
	body := strings.TrimSpace(string(resp.Body()))
	if body == "" {
		return resp.Status()
	}
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody] + "..."
	}
	return body
}
