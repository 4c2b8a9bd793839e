// Package pagination drives paged remote sources to completion.
//
// Report APIs hand out data a page at a time: Redash queries through offset_rows/limit_rows
// parameters, the Analytics Reporting API through pageToken, Search Console through startRow.
// FetchAll owns the cursor so wrappers only describe how to fetch a single page.
//
// Example usage:
//
//	res, err := pagination.FetchAll(ctx, fetchPage, params, pagination.Config{
//		PageSize:      5000,
//		MaxPageSize:   5000,
//		MaxIterations: 100,
//	}, pagination.WithSource("searchconsole"))
//	if err != nil {
//		return err // invalid config, nothing was fetched
//	}
//	if res.Truncated {
//		// res.Reason tells whether a bound, a refusal or a fetch failure cut the data short
//	}
//
// Stop conditions are checked after each page in this order:
//   - page shorter than the page size (no more data)
//   - cumulative rows reached RowLimit
//   - MaxIterations pages fetched (truncated)
//   - Confirm returned false (truncated)
//
// A failed page ends the fetch with the rows gathered so far; the failure is handed to the
// Reporter and stored in Result.Err but never returned as an error.
package pagination
