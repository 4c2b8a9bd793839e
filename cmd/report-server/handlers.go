package main

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/rebase-analytics/ibreport/pkg/logging"
	"github.com/rebase-analytics/ibreport/pkg/redash"
	"github.com/rebase-analytics/ibreport/pkg/report"
	"github.com/rebase-analytics/ibreport/pkg/table"
)

// TruncatedHeader carries the stop reason of an incomplete safe export.
const TruncatedHeader = "X-Ibreport-Truncated"

// RequestIDHeader echoes the caller's request id, or a generated one.
const RequestIDHeader = "X-Request-Id"

const readyTimeout = 2 * time.Second

var exportRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "ibreport_export_requests_total",
	Help: "Total number of Redash export requests by response status",
}, []string{"status"})

// queryRunner is the part of *redash.Client the export endpoint uses.
type queryRunner interface {
	Query(ctx context.Context, queryID int, params redash.Params, maxAge int) (*table.Table, error)
	SafeQuery(ctx context.Context, queryID int, params redash.Params, opts redash.SafeQueryOptions) (*report.Report, error)
}

// requestID makes sure every export response carries a request id and that
// the id is attached to the request's log context.
func requestID(next http.Handler) http.Handler {
	base := logging.NewLogger("export")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)

		logger := base.With().Str("request_id", id).Logger()
		next.ServeHTTP(w, r.WithContext(logger.WithContext(r.Context())))
	})
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

// readyHandler pings Redis when one is configured.
func readyHandler(redisClient *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if redisClient != nil {
			ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
			defer cancel()
			if err := redisClient.Ping(ctx).Err(); err != nil {
				http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "OK")
	}
}

type exportOptions struct {
	params redash.Params
	maxAge int
	safe   bool
	limit  int
	format table.Format
}

// parseExportOptions reads p_<name> query parameters as Redash parameters, plus
// max_age, safe, limit and format.
func parseExportOptions(q url.Values) (exportOptions, error) {
	opts := exportOptions{params: redash.Params{}, format: table.FormatCSV}
	for key, values := range q {
		if name, ok := strings.CutPrefix(key, "p_"); ok && name != "" && len(values) > 0 {
			opts.params[name] = values[0]
		}
	}

	var err error
	if v := q.Get("max_age"); v != "" {
		if opts.maxAge, err = strconv.Atoi(v); err != nil || opts.maxAge < 0 {
			return opts, fmt.Errorf("invalid max_age %q", v)
		}
	}
	if v := q.Get("safe"); v != "" {
		if opts.safe, err = strconv.ParseBool(v); err != nil {
			return opts, fmt.Errorf("invalid safe %q", v)
		}
	}
	if v := q.Get("limit"); v != "" {
		if opts.limit, err = strconv.Atoi(v); err != nil || opts.limit <= 0 {
			return opts, fmt.Errorf("invalid limit %q", v)
		}
	}
	switch f := table.Format(q.Get("format")); f {
	case "":
	case table.FormatCSV, table.FormatMarkdown, table.FormatTable:
		opts.format = f
	default:
		return opts, fmt.Errorf("invalid format %q", f)
	}
	return opts, nil
}

func contentType(f table.Format) string {
	switch f {
	case table.FormatCSV:
		return "text/csv; charset=utf-8"
	case table.FormatMarkdown:
		return "text/markdown; charset=utf-8"
	default:
		return "text/plain; charset=utf-8"
	}
}

// exportHandler serves GET /redash/{id}: the query result as CSV by default.
// With safe=true the query is read in offset_rows/limit_rows batches and an
// incomplete result is flagged by TruncatedHeader.
func exportHandler(queries queryRunner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := zerolog.Ctx(r.Context())
		id, err := strconv.Atoi(r.PathValue("id"))
		if err != nil || id <= 0 {
			exportRequestsTotal.WithLabelValues(strconv.Itoa(http.StatusBadRequest)).Inc()
			http.Error(w, "invalid query id", http.StatusBadRequest)
			return
		}
		opts, err := parseExportOptions(r.URL.Query())
		if err != nil {
			exportRequestsTotal.WithLabelValues(strconv.Itoa(http.StatusBadRequest)).Inc()
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		var t *table.Table
		if opts.safe {
			var rep *report.Report
			rep, err = queries.SafeQuery(r.Context(), id, opts.params, redash.SafeQueryOptions{
				Limit:  opts.limit,
				MaxAge: opts.maxAge,
			})
			if err == nil {
				t = rep.Table
				if rep.Truncated {
					w.Header().Set(TruncatedHeader, string(rep.Reason))
				}
			}
		} else {
			t, err = queries.Query(r.Context(), id, opts.params, opts.maxAge)
		}
		if err != nil {
			logger.Error().Err(err).Int("query_id", id).Msg("Export failed")
			exportRequestsTotal.WithLabelValues(strconv.Itoa(http.StatusBadGateway)).Inc()
			http.Error(w, fmt.Sprintf("query %d failed: %v", id, err), http.StatusBadGateway)
			return
		}

		logger.Debug().Int("query_id", id).Int("rows", t.Len()).Bool("safe", opts.safe).Msg("Exporting query result")
		exportRequestsTotal.WithLabelValues(strconv.Itoa(http.StatusOK)).Inc()
		w.Header().Set("Content-Type", contentType(opts.format))
		t.Write(w, opts.format)
	}
}
