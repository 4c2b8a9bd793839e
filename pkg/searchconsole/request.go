package searchconsole

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/rebase-analytics/ibreport/pkg/pagination"
)

// MaxRowLimit is the largest number of rows one query call returns.
const MaxRowLimit = 5000

// Legal request values.
var (
	Dimensions = []string{"country", "device", "page", "query", "searchAppearance", "date"}
	Operators  = []string{"contains", "equals", "notContains", "notEquals"}
	Devices    = []string{"DESKTOP", "MOBILE", "TABLET"}
	Metrics    = []string{"clicks", "ctr", "impressions", "position"}
)

var (
	ErrInvalidFilter  = errors.New("invalid search analytics filter")
	ErrInvalidRequest = errors.New("invalid search analytics request")
)

// Filter restricts rows by one dimension.
type Filter struct {
	Dimension  string
	Operator   string
	Expression string
}

// AddFilter validates a filter and returns filters with it appended.
func AddFilter(filters []Filter, dimension, operator, expression string) ([]Filter, error) {
	if dimension == "" || operator == "" || expression == "" {
		return filters, fmt.Errorf("%w: dimension, operator and expression are required", ErrInvalidFilter)
	}
	if !slices.Contains(Dimensions, dimension) {
		return filters, fmt.Errorf("%w: dimension %q, choose from %v", ErrInvalidFilter, dimension, Dimensions)
	}
	if !slices.Contains(Operators, operator) {
		return filters, fmt.Errorf("%w: operator %q, choose from %v", ErrInvalidFilter, operator, Operators)
	}
	out := slices.Clip(filters)
	return append(out, Filter{Dimension: dimension, Operator: operator, Expression: expression}), nil
}

// QueryRequest describes a search analytics query. Zero fields are taken from the
// client's defaults, except All, Confirm and MaxIterations which are per call.
type QueryRequest struct {
	// StartDate and EndDate are YYYY-MM-DD.
	StartDate string
	EndDate   string

	Dimensions []string
	Filters    []Filter

	// SearchType is web, image, video, news, discover or googleNews.
	SearchType string

	// RowLimit is the page size of a single call (clamped to MaxRowLimit) and the
	// total row cap when All is set.
	RowLimit int

	// StartRow is the zero-based row to start at.
	StartRow int

	// All pages through the result until it is exhausted or RowLimit is reached.
	All bool

	// Confirm is asked before every further page when All is set.
	Confirm pagination.ConfirmFunc

	// MaxIterations bounds All (default DefaultMaxIterations).
	MaxIterations int
}

// DefaultQuery covers the 30 days before now, ending yesterday, with 5000 rows.
func DefaultQuery(now time.Time) QueryRequest {
	return QueryRequest{
		StartDate: now.AddDate(0, 0, -30).Format(time.DateOnly),
		EndDate:   now.AddDate(0, 0, -1).Format(time.DateOnly),
		RowLimit:  MaxRowLimit,
	}
}

func (r QueryRequest) validate() error {
	if r.StartDate == "" || r.EndDate == "" {
		return fmt.Errorf("%w: start and end date are required", ErrInvalidRequest)
	}
	for _, d := range []string{r.StartDate, r.EndDate} {
		if _, err := time.Parse(time.DateOnly, d); err != nil {
			return fmt.Errorf("%w: date %q is not YYYY-MM-DD", ErrInvalidRequest, d)
		}
	}
	if r.RowLimit <= 0 {
		return fmt.Errorf("%w: row limit must be positive (got %d)", ErrInvalidRequest, r.RowLimit)
	}
	if r.StartRow < 0 {
		return fmt.Errorf("%w: start row must not be negative (got %d)", ErrInvalidRequest, r.StartRow)
	}
	for _, d := range r.Dimensions {
		if !slices.Contains(Dimensions, d) {
			return fmt.Errorf("%w: dimension %q, choose from %v", ErrInvalidRequest, d, Dimensions)
		}
	}
	return nil
}
