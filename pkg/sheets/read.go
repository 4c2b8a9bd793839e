package sheets

import (
	"context"
	"fmt"

	"github.com/rebase-analytics/ibreport/pkg/pagination"
	"github.com/rebase-analytics/ibreport/pkg/report"
	"github.com/rebase-analytics/ibreport/pkg/table"
)

// Defaults for ReadAll.
const (
	DefaultReadPageSize      = 1000
	DefaultReadMaxIterations = 1000
)

// ReadOptions bounds ReadAll.
type ReadOptions struct {
	// PageSize is the number of rows per request (default DefaultReadPageSize).
	PageSize int

	// MaxIterations defaults to DefaultReadMaxIterations.
	MaxIterations int

	// RowLimit stops reading once reached (0 = unlimited).
	RowLimit int
}

// ReadAll reads a large sheet in row ranges below the header row. A failed range
// ends the read and is reported on the returned Report.
func (c *Client) ReadAll(ctx context.Context, ref SheetRef, opts ReadOptions) (*report.Report, error) {
	if opts.PageSize == 0 {
		opts.PageSize = DefaultReadPageSize
	}
	if opts.MaxIterations == 0 {
		opts.MaxIterations = DefaultReadMaxIterations
	}

	ref, err := c.resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	header, err := c.values(ctx, ref.SpreadsheetID, quoteSheet(ref.Sheet)+"!1:1")
	if err != nil {
		return nil, err
	}
	if len(header) == 0 {
		return report.Single(table.New(), 0), nil
	}

	// Pages hold raw records; numbers are coerced once over whole columns.
	fetch := func(ctx context.Context, cursor pagination.Cursor, ref SheetRef) ([][]any, error) {
		first := cursor.Offset + 2
		last := first + cursor.PageSize - 1
		return c.values(ctx, ref.SpreadsheetID, fmt.Sprintf("%s!%d:%d", quoteSheet(ref.Sheet), first, last))
	}

	res, err := pagination.FetchAll(ctx, fetch, ref, pagination.Config{
		PageSize:      opts.PageSize,
		MaxIterations: opts.MaxIterations,
		RowLimit:      opts.RowLimit,
	}, pagination.WithSource(ServiceName))
	if err != nil {
		return nil, err
	}

	t := table.FromRecords(append([][]any{header[0]}, res.Rows...), true)
	r := report.FromResult(t, res)
	r.Log(c.logger, ServiceName)
	return r, nil
}
