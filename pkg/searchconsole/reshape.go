package searchconsole

import (
	"strconv"

	"google.golang.org/api/searchconsole/v1"

	"github.com/rebase-analytics/ibreport/pkg/table"
)

// Column names.
const (
	StartDateColumn = "startDate"
	EndDateColumn   = "endDate"
	KeysColumn      = "keys"
)

// KeyColumn names the i-th key column of a multi-dimension query.
func KeyColumn(i int) string {
	return "key_" + strconv.Itoa(i)
}

// KeyColumns returns the key columns of a query with n dimensions.
func KeyColumns(n int) []string {
	switch n {
	case 0:
		return nil
	case 1:
		return []string{KeysColumn}
	}
	cols := make([]string, n)
	for i := range cols {
		cols[i] = KeyColumn(i)
	}
	return cols
}

// Columns returns the table columns of a query with n dimensions:
// the date window, the key columns, then the metrics.
func Columns(n int) []string {
	cols := []string{StartDateColumn, EndDateColumn}
	cols = append(cols, KeyColumns(n)...)
	return append(cols, Metrics...)
}

func reshape(rows []*searchconsole.ApiDataRow, req QueryRequest) *table.Table {
	keyCols := KeyColumns(len(req.Dimensions))
	t := table.New(Columns(len(req.Dimensions))...)

	for _, r := range rows {
		row := table.Row{
			StartDateColumn: req.StartDate,
			EndDateColumn:   req.EndDate,
			"clicks":        r.Clicks,
			"ctr":           r.Ctr,
			"impressions":   r.Impressions,
			"position":      r.Position,
		}
		for i, col := range keyCols {
			if i < len(r.Keys) {
				row[col] = r.Keys[i]
			}
		}
		t.Append(row)
	}
	return t
}
