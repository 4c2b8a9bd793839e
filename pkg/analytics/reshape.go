package analytics

import (
	"fmt"
	"strconv"

	"google.golang.org/api/analyticsreporting/v4"

	"github.com/rebase-analytics/ibreport/pkg/table"
)

// Columns added to every report row.
const (
	StartDateColumn = "startDate"
	EndDateColumn   = "endDate"
)

// reshape turns the first report of resp into a table: one column per dimension, one
// float64 column per metric of the first date range, then the first date range bounds.
// Rows are sorted by the first dimension.
func reshape(resp *analyticsreporting.GetReportsResponse, dateRange DateRange) (*table.Table, string, error) {
	if resp == nil || len(resp.Reports) == 0 {
		return table.New(), "", nil
	}
	rep := resp.Reports[0]

	var dims, metrics []string
	if rep.ColumnHeader != nil {
		dims = rep.ColumnHeader.Dimensions
		if rep.ColumnHeader.MetricHeader != nil {
			for _, entry := range rep.ColumnHeader.MetricHeader.MetricHeaderEntries {
				metrics = append(metrics, entry.Name)
			}
		}
	}

	columns := make([]string, 0, len(dims)+len(metrics)+2)
	columns = append(columns, dims...)
	columns = append(columns, metrics...)
	columns = append(columns, StartDateColumn, EndDateColumn)
	t := table.New(columns...)

	if rep.Data == nil {
		return t, rep.NextPageToken, nil
	}

	for i, r := range rep.Data.Rows {
		row := make(table.Row, len(columns))
		for j, dim := range dims {
			if j < len(r.Dimensions) {
				row[dim] = r.Dimensions[j]
			}
		}
		if len(r.Metrics) > 0 {
			values := r.Metrics[0].Values
			for j, name := range metrics {
				if j >= len(values) {
					break
				}
				f, err := strconv.ParseFloat(values[j], 64)
				if err != nil {
					return nil, "", fmt.Errorf("row %d metric %s: %w", i, name, err)
				}
				row[name] = f
			}
		}
		row[StartDateColumn] = dateRange.StartDate
		row[EndDateColumn] = dateRange.EndDate
		t.Append(row)
	}

	if len(dims) > 0 {
		t = t.SortBy(dims[0], true)
	}
	return t, rep.NextPageToken, nil
}
