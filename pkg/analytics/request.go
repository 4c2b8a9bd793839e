package analytics

import (
	"errors"
	"fmt"
	"slices"

	"google.golang.org/api/analyticsreporting/v4"
)

// SegmentDimension is added to the dimensions of every segmented report.
const SegmentDimension = "ga:segment"

// ErrInvalidRequest is returned for report requests the API would reject.
var ErrInvalidRequest = errors.New("invalid analytics report request")

// SortOrder orders report rows by ReportRequest.SortBy.
type SortOrder string

const (
	Ascending  SortOrder = "ASCENDING"
	Descending SortOrder = "DESCENDING"
)

// DateRange is an inclusive date window. Dates are YYYY-MM-DD or relative
// values such as "7daysAgo", "yesterday" and "today".
type DateRange struct {
	StartDate string
	EndDate   string
}

// ReportRequest describes one report.
type ReportRequest struct {
	// Metrics are metric expressions such as "ga:sessions". At least one is required.
	Metrics []string

	// Dimensions such as "ga:date".
	Dimensions []string

	// DateRanges defaults to the last 7 days.
	DateRanges []DateRange

	// SortBy defaults to the first metric.
	SortBy string

	// SortOrder defaults to Descending.
	SortOrder SortOrder

	Segments []*analyticsreporting.Segment

	// FiltersExpression restricts rows, e.g. "ga:browser=~^Firefox".
	FiltersExpression string
}

// DefaultRequest returns sessions per date over the last 7 days.
func DefaultRequest() ReportRequest {
	return ReportRequest{
		Metrics:    []string{"ga:sessions"},
		Dimensions: []string{"ga:date"},
		DateRanges: []DateRange{{StartDate: "7daysAgo", EndDate: "today"}},
	}
}

// Normalize validates r and fills in defaults. r itself is not modified.
func (r ReportRequest) Normalize() (ReportRequest, error) {
	if len(r.Metrics) == 0 {
		return r, fmt.Errorf("%w: specify at least one metric", ErrInvalidRequest)
	}

	out := r
	out.Metrics = slices.Clone(r.Metrics)
	out.Dimensions = slices.Clone(r.Dimensions)
	out.DateRanges = slices.Clone(r.DateRanges)

	if out.SortBy == "" {
		out.SortBy = out.Metrics[0]
	}
	if out.SortOrder == "" {
		out.SortOrder = Descending
	}
	if out.SortOrder != Ascending && out.SortOrder != Descending {
		return r, fmt.Errorf("%w: sort order %q, choose from %s or %s", ErrInvalidRequest, out.SortOrder, Ascending, Descending)
	}
	if len(out.DateRanges) == 0 {
		out.DateRanges = DefaultRequest().DateRanges
	}
	for i, dr := range out.DateRanges {
		if dr.StartDate == "" || dr.EndDate == "" {
			return r, fmt.Errorf("%w: date range %d needs a start and an end date", ErrInvalidRequest, i)
		}
	}
	if len(out.Segments) > 0 && !slices.Contains(out.Dimensions, SegmentDimension) {
		out.Dimensions = append(out.Dimensions, SegmentDimension)
	}
	return out, nil
}

// build converts a normalized request to the API form.
func (r ReportRequest) build(viewID, pageToken string, pageSize int) *analyticsreporting.ReportRequest {
	req := &analyticsreporting.ReportRequest{
		ViewId:            viewID,
		PageSize:          int64(pageSize),
		PageToken:         pageToken,
		HideTotals:        true,
		HideValueRanges:   true,
		Segments:          r.Segments,
		FiltersExpression: r.FiltersExpression,
		OrderBys: []*analyticsreporting.OrderBy{{
			FieldName: r.SortBy,
			OrderType: "VALUE",
			SortOrder: string(r.SortOrder),
		}},
	}
	for _, dr := range r.DateRanges {
		req.DateRanges = append(req.DateRanges, &analyticsreporting.DateRange{StartDate: dr.StartDate, EndDate: dr.EndDate})
	}
	for _, m := range r.Metrics {
		req.Metrics = append(req.Metrics, &analyticsreporting.Metric{Expression: m})
	}
	for _, d := range r.Dimensions {
		req.Dimensions = append(req.Dimensions, &analyticsreporting.Dimension{Name: d})
	}
	return req
}

// GoogleOrganic segments users whose source/medium is google / organic.
func GoogleOrganic() []*analyticsreporting.Segment {
	return []*analyticsreporting.Segment{{
		DynamicSegment: &analyticsreporting.DynamicSegment{
			Name: "googleOrganic",
			UserSegment: &analyticsreporting.SegmentDefinition{
				SegmentFilters: []*analyticsreporting.SegmentFilter{{
					Not: false,
					SimpleSegment: &analyticsreporting.SimpleSegment{
						OrFiltersForSegment: []*analyticsreporting.OrFiltersForSegment{{
							SegmentFilterClauses: []*analyticsreporting.SegmentFilterClause{{
								DimensionFilter: &analyticsreporting.SegmentDimensionFilter{
									DimensionName: "ga:sourceMedium",
									Expressions:   []string{"google / organic"},
								},
							}},
						}},
					},
				}},
			},
		},
	}}
}
