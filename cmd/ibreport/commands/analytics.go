package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rebase-analytics/ibreport/internal/googleauth"
	"github.com/rebase-analytics/ibreport/pkg/analytics"
)

var (
	gaViewID     string
	gaMetrics    []string
	gaDimensions []string
	gaDateRanges []string
	gaSortBy     string
	gaAscending  bool
	gaFilters    string
	gaOrganic    bool
	gaPageSize   int
	gaMaxIter    int
	gaRowLimit   int
)

var analyticsCmd = &cobra.Command{
	Use:   "analytics",
	Short: "Queries the Analytics Reporting API.",
}

var analyticsReportCmd = &cobra.Command{
	Use:   "report",
	Short: "Fetches every page of a report.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := analyticsRequest()
		if err != nil {
			return err
		}
		viewID := gaViewID
		if viewID == "" {
			viewID = cfg.Google.AnalyticsViewID
		}

		ctx := cmd.Context()
		opts, err := googleOptions(ctx, googleauth.AnalyticsScopes)
		if err != nil {
			return err
		}
		c, err := analytics.New(ctx, analytics.Config{ViewID: viewID}, opts...)
		if err != nil {
			return err
		}

		r, err := c.All(ctx, req, analytics.AllOptions{
			PageSize:      gaPageSize,
			MaxIterations: gaMaxIter,
			RowLimit:      gaRowLimit,
		})
		if err != nil {
			return err
		}
		return writeReport(cmd, r)
	},
}

func init() {
	def := analytics.DefaultRequest()
	flags := analyticsReportCmd.Flags()
	flags.StringVar(&gaViewID, "view", "", "View ID. Defaults to google.analyticsViewId.")
	flags.StringSliceVarP(&gaMetrics, "metric", "m", def.Metrics, "Metric expressions.")
	flags.StringSliceVarP(&gaDimensions, "dimension", "d", def.Dimensions, "Dimensions.")
	flags.StringSliceVar(&gaDateRanges, "date-range", nil, "Date ranges as start:end, e.g. 30daysAgo:yesterday.")
	flags.StringVar(&gaSortBy, "sort-by", "", "Field to order by. Defaults to the first metric.")
	flags.BoolVar(&gaAscending, "ascending", false, "Sort ascending instead of descending.")
	flags.StringVar(&gaFilters, "filter", "", "Filters expression, e.g. ga:country==Germany.")
	flags.BoolVar(&gaOrganic, "organic", false, "Restrict to the Google organic traffic segment.")
	flags.IntVar(&gaPageSize, "page-size", analytics.MaxPageSize, "Rows per request.")
	flags.IntVar(&gaMaxIter, "max-iter", analytics.DefaultMaxIterations, "Maximum number of requests.")
	flags.IntVar(&gaRowLimit, "row-limit", 0, "Stop after this many rows (0 = all).")

	analyticsCmd.AddCommand(analyticsReportCmd)
	rootCmd.AddCommand(analyticsCmd)
}

func analyticsRequest() (analytics.ReportRequest, error) {
	req := analytics.ReportRequest{
		Metrics:           gaMetrics,
		Dimensions:        gaDimensions,
		SortBy:            gaSortBy,
		FiltersExpression: gaFilters,
	}
	if gaAscending {
		req.SortOrder = analytics.Ascending
	}
	if gaOrganic {
		req.Segments = analytics.GoogleOrganic()
	}
	ranges, err := parseDateRanges(gaDateRanges)
	if err != nil {
		return req, err
	}
	req.DateRanges = ranges
	return req, nil
}

func parseDateRanges(values []string) ([]analytics.DateRange, error) {
	var out []analytics.DateRange
	for _, v := range values {
		start, end, ok := strings.Cut(v, ":")
		if !ok || start == "" || end == "" {
			return nil, fmt.Errorf("invalid date range %q (want start:end)", v)
		}
		out = append(out, analytics.DateRange{StartDate: start, EndDate: end})
	}
	return out, nil
}
