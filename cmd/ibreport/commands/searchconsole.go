package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rebase-analytics/ibreport/internal/googleauth"
	"github.com/rebase-analytics/ibreport/pkg/report"
	"github.com/rebase-analytics/ibreport/pkg/searchconsole"
)

var (
	scSite       string
	scStart      string
	scEnd        string
	scDimensions []string
	scFilters    []string
	scSearchType string
	scRowLimit   int
	scStartRow   int
	scAll        bool
	scConfirm    bool
	scMaxIter    int

	scP1Start    string
	scP1End      string
	scP2Start    string
	scP2End      string
	scChanges    string
	scImportance string
)

var searchConsoleCmd = &cobra.Command{
	Use:     "searchconsole",
	Aliases: []string{"sc"},
	Short:   "Queries Search Console search analytics.",
}

var scTopQueriesCmd = &cobra.Command{
	Use:   "top-queries",
	Short: "Clicks, impressions, CTR and position per query.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSearchQuery(cmd, (*searchconsole.Client).TopQueries)
	},
}

var scTopPagesCmd = &cobra.Command{
	Use:   "top-pages",
	Short: "Clicks, impressions, CTR and position per page.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSearchQuery(cmd, (*searchconsole.Client).TopPages)
	},
}

var scCompareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Joins the top queries of two periods; --changes ranks them by change.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		c, err := newSearchConsoleClient(ctx)
		if err != nil {
			return err
		}
		q, closeFn, err := searchQuery()
		if err != nil {
			return err
		}
		defer closeFn()

		t, err := c.CompareTopQueries(ctx, searchconsole.CompareRequest{
			Period1Start: scP1Start,
			Period1End:   scP1End,
			Period2Start: scP2Start,
			Period2End:   scP2End,
			Query:        q,
		})
		if err != nil {
			return err
		}
		if scChanges != "" {
			importance := scImportance
			if importance == "" {
				importance = scChanges + searchconsole.Suffixes[0]
			}
			if t, err = searchconsole.MostImportantChanges(t, scChanges, importance); err != nil {
				return err
			}
		}
		return writeTable(cmd, t)
	},
}

var scSitesCmd = &cobra.Command{
	Use:   "sites",
	Short: "Lists the verified properties of the service account.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		c, err := newSearchConsoleClient(ctx)
		if err != nil {
			return err
		}
		sites, err := c.Sites(ctx)
		if err != nil {
			return err
		}
		for _, s := range sites {
			fmt.Fprintln(cmd.OutOrStdout(), s)
		}
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{scTopQueriesCmd, scTopPagesCmd, scCompareCmd} {
		flags := c.Flags()
		flags.StringSliceVarP(&scDimensions, "dimension", "d", nil, "Dimensions: "+strings.Join(searchconsole.Dimensions, ", ")+".")
		flags.StringArrayVar(&scFilters, "filter", nil, "Filter as dimension:operator:expression, e.g. query:contains:shoes (repeatable).")
		flags.StringVar(&scSearchType, "search-type", "", "web, image, video, news, discover or googleNews.")
		flags.IntVar(&scRowLimit, "row-limit", searchconsole.MaxRowLimit, "Rows per request; with --all, the total row cap.")
		flags.BoolVar(&scConfirm, "confirm", false, "Ask before fetching every further page.")
		flags.IntVar(&scMaxIter, "max-iter", searchconsole.DefaultMaxIterations, "Maximum number of requests with --all.")
	}
	for _, c := range []*cobra.Command{scTopQueriesCmd, scTopPagesCmd} {
		c.Flags().StringVar(&scStart, "start", "", "Start date YYYY-MM-DD. Defaults to 30 days ago.")
		c.Flags().StringVar(&scEnd, "end", "", "End date YYYY-MM-DD. Defaults to yesterday.")
		c.Flags().IntVar(&scStartRow, "start-row", 0, "Zero-based first row.")
		c.Flags().BoolVar(&scAll, "all", false, "Page through the whole result.")
	}

	flags := scCompareCmd.Flags()
	flags.StringVar(&scP1Start, "period1-start", "", "First period start date (required).")
	flags.StringVar(&scP1End, "period1-end", "", "First period end date (required).")
	flags.StringVar(&scP2Start, "period2-start", "", "Second period start date. Defaults to period 1 minus 7 days.")
	flags.StringVar(&scP2End, "period2-end", "", "Second period end date. Defaults to period 1 minus 7 days.")
	flags.StringVar(&scChanges, "changes", "", "Rank rows by the change of this metric: "+strings.Join(searchconsole.Metrics, ", ")+".")
	flags.StringVar(&scImportance, "importance", "", "Column weighting the change. Defaults to the --changes metric of period 1.")
	_ = scCompareCmd.MarkFlagRequired("period1-start")
	_ = scCompareCmd.MarkFlagRequired("period1-end")

	for _, c := range []*cobra.Command{scTopQueriesCmd, scTopPagesCmd, scCompareCmd, scSitesCmd} {
		c.Flags().StringVar(&scSite, "site", "", "Property URL. Defaults to google.searchConsoleSite.")
	}

	searchConsoleCmd.AddCommand(scTopQueriesCmd, scTopPagesCmd, scCompareCmd, scSitesCmd)
	rootCmd.AddCommand(searchConsoleCmd)
}

type searchFunc func(c *searchconsole.Client, ctx context.Context, req searchconsole.QueryRequest) (*report.Report, error)

func runSearchQuery(cmd *cobra.Command, run searchFunc) error {
	ctx := cmd.Context()
	c, err := newSearchConsoleClient(ctx)
	if err != nil {
		return err
	}
	req, closeFn, err := searchQuery()
	if err != nil {
		return err
	}
	defer closeFn()

	r, err := run(c, ctx, req)
	if err != nil {
		return err
	}
	return writeReport(cmd, r)
}

func newSearchConsoleClient(ctx context.Context) (*searchconsole.Client, error) {
	site := scSite
	if site == "" {
		site = cfg.Google.SearchConsoleSite
	}
	opts, err := googleOptions(ctx, googleauth.SearchConsoleScopes)
	if err != nil {
		return nil, err
	}
	return searchconsole.New(ctx, searchconsole.Config{
		SiteURL:  site,
		Defaults: searchconsole.DefaultQuery(time.Now()),
	}, opts...)
}

// searchQuery builds the request from flags. The returned func releases the
// confirmation prompt, if one was opened.
func searchQuery() (searchconsole.QueryRequest, func(), error) {
	req := searchconsole.QueryRequest{
		StartDate:     scStart,
		EndDate:       scEnd,
		Dimensions:    scDimensions,
		SearchType:    scSearchType,
		RowLimit:      scRowLimit,
		StartRow:      scStartRow,
		All:           scAll,
		MaxIterations: scMaxIter,
	}
	filters, err := parseFilters(scFilters)
	if err != nil {
		return req, nil, err
	}
	req.Filters = filters

	closeFn := func() {}
	if scConfirm {
		read, closePrompt, err := terminalPrompt()
		if err != nil {
			return req, nil, err
		}
		req.Confirm = confirmFunc(read)
		closeFn = closePrompt
	}
	return req, closeFn, nil
}

func parseFilters(values []string) ([]searchconsole.Filter, error) {
	var filters []searchconsole.Filter
	for _, v := range values {
		parts := strings.SplitN(v, ":", 3)
		if len(parts) != 3 {
			return nil, fmt.Errorf("invalid filter %q (want dimension:operator:expression)", v)
		}
		var err error
		if filters, err = searchconsole.AddFilter(filters, parts[0], parts[1], parts[2]); err != nil {
			return nil, err
		}
	}
	return filters, nil
}
