package searchconsole

import (
	"context"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/rebase-analytics/ibreport/pkg/table"
)

// Columns added by MostImportantChanges.
const (
	ImportanceColumn = "importance"
	LogChangeColumn  = "log_change"
)

// Suffixes distinguish the two periods of a comparison.
var Suffixes = [2]string{"_1", "_2"}

// CompareRequest compares two date windows.
type CompareRequest struct {
	// Period1Start and Period1End are required.
	Period1Start string
	Period1End   string

	// Period2Start and Period2End default to period 1 shifted back by 7 days.
	Period2Start string
	Period2End   string

	// Query supplies dimensions (default query), filters and other parameters.
	// Its dates are replaced by each period.
	Query QueryRequest
}

func (r CompareRequest) periods() ([2][2]string, error) {
	var out [2][2]string
	if r.Period1Start == "" || r.Period1End == "" {
		return out, fmt.Errorf("%w: period 1 is required", ErrInvalidRequest)
	}
	start, err := time.Parse(time.DateOnly, r.Period1Start)
	if err != nil {
		return out, fmt.Errorf("%w: period 1 start: %v", ErrInvalidRequest, err)
	}
	end, err := time.Parse(time.DateOnly, r.Period1End)
	if err != nil {
		return out, fmt.Errorf("%w: period 1 end: %v", ErrInvalidRequest, err)
	}

	out[0] = [2]string{r.Period1Start, r.Period1End}
	out[1] = [2]string{r.Period2Start, r.Period2End}
	if r.Period2Start == "" || r.Period2End == "" {
		out[1] = [2]string{
			start.AddDate(0, 0, -7).Format(time.DateOnly),
			end.AddDate(0, 0, -7).Format(time.DateOnly),
		}
	}
	return out, nil
}

// CompareTopQueries fetches all rows of both periods and joins them on the key
// columns. Columns of period 1 carry the suffix _1, those of period 2 the suffix _2.
// Keys present in only one period have no values for the other.
func (c *Client) CompareTopQueries(ctx context.Context, req CompareRequest) (*table.Table, error) {
	periods, err := req.periods()
	if err != nil {
		return nil, err
	}

	q := req.Query
	if len(q.Dimensions) == 0 {
		q.Dimensions = []string{"query"}
	}
	q.All = true

	var tables [2]*table.Table
	for i, p := range periods {
		q.StartDate, q.EndDate = p[0], p[1]
		r, err := c.Query(ctx, q)
		if err != nil {
			return nil, fmt.Errorf("period %d: %w", i+1, err)
		}
		if r.Truncated {
			c.logger.Warn().
				AnErr("fetch_error", r.Err).
				Str("start_date", p[0]).
				Str("end_date", p[1]).
				Str("reason", string(r.Reason)).
				Msg("Comparison period is incomplete")
		}
		tables[i] = r.Table
	}

	return table.Merge(tables[0], tables[1], KeyColumns(len(q.Dimensions)), Suffixes)
}

// MostImportantChanges ranks the rows of a CompareTopQueries table by the change of
// changesCol between the periods, weighted by the row's share of importanceCol:
//
//	importance = importanceCol / sum(importanceCol)
//	log_change = ln(changesCol_1 / changesCol_2) * importance
//
// Rows with a missing value or an infinite or undefined change (keys new in or
// dropped from a period) are excluded. Rows are sorted by log_change, largest first.
func MostImportantChanges(t *table.Table, changesCol, importanceCol string) (*table.Table, error) {
	if !slices.Contains(Metrics, changesCol) {
		return nil, fmt.Errorf("%w: changes column %q, choose from %v", ErrInvalidRequest, changesCol, Metrics)
	}
	if !t.HasColumn(importanceCol) {
		return nil, fmt.Errorf("%w: importance column %q not found", ErrInvalidRequest, importanceCol)
	}
	col1, col2 := changesCol+Suffixes[0], changesCol+Suffixes[1]
	if !t.HasColumn(col1) || !t.HasColumn(col2) {
		return nil, fmt.Errorf("%w: columns %s and %s are required", ErrInvalidRequest, col1, col2)
	}

	var total float64
	for _, v := range t.Column(importanceCol) {
		if f, ok := table.Float(v); ok && !math.IsNaN(f) {
			total += f
		}
	}

	out := table.New(append(slices.Clone(t.Columns), ImportanceColumn, LogChangeColumn)...)
	for _, row := range t.Rows {
		if hasMissing(row, t.Columns) {
			continue
		}
		weight, _ := table.Float(row[importanceCol])
		importance := weight / total
		if math.IsNaN(importance) || math.IsInf(importance, 0) {
			importance = 0
		}
		a, _ := table.Float(row[col1])
		b, _ := table.Float(row[col2])
		change := math.Log(a/b) * importance
		if math.IsNaN(change) || math.IsInf(change, 0) {
			continue
		}

		r := make(table.Row, len(row)+2)
		for k, v := range row {
			r[k] = v
		}
		r[ImportanceColumn] = importance
		r[LogChangeColumn] = change
		out.Append(r)
	}
	return out.SortBy(LogChangeColumn, false), nil
}

func hasMissing(row table.Row, cols []string) bool {
	for _, col := range cols {
		v, ok := row[col]
		if !ok || v == nil {
			return true
		}
		if f, isNum := v.(float64); isNum && math.IsNaN(f) {
			return true
		}
	}
	return false
}
