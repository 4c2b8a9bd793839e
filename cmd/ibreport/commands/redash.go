package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/rebase-analytics/ibreport/pkg/redash"
)

var (
	redashParams  map[string]string
	redashMaxAge  int
	redashLimit   int
	redashMaxIter int
)

var redashCmd = &cobra.Command{
	Use:   "redash",
	Short: "Runs saved Redash queries.",
}

var redashQueryCmd = &cobra.Command{
	Use:   "query <query-id>",
	Short: "Runs a saved query and prints its result.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseQueryID(args[0])
		if err != nil {
			return err
		}
		c, closeFn, err := newRedashClient(cmd)
		if err != nil {
			return err
		}
		defer closeFn()

		t, err := c.Query(cmd.Context(), id, toParams(redashParams), redashMaxAge)
		if err != nil {
			return err
		}
		return writeTable(cmd, t)
	},
}

var redashSafeQueryCmd = &cobra.Command{
	Use:   "safe-query <query-id>",
	Short: "Runs a saved query that takes offset_rows/limit_rows parameters, batch by batch.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseQueryID(args[0])
		if err != nil {
			return err
		}
		c, closeFn, err := newRedashClient(cmd)
		if err != nil {
			return err
		}
		defer closeFn()

		r, err := c.SafeQuery(cmd.Context(), id, toParams(redashParams), redash.SafeQueryOptions{
			Limit:   redashLimit,
			MaxIter: redashMaxIter,
			MaxAge:  redashMaxAge,
		})
		if err != nil {
			return err
		}
		return writeReport(cmd, r)
	},
}

func init() {
	for _, c := range []*cobra.Command{redashQueryCmd, redashSafeQueryCmd} {
		c.Flags().StringToStringVarP(&redashParams, "param", "p", nil, "Query parameter as name=value (repeatable).")
		c.Flags().IntVar(&redashMaxAge, "max-age", 0, "Accept a cached Redash result up to this many seconds old.")
	}
	redashSafeQueryCmd.Flags().IntVar(&redashLimit, "limit", redash.DefaultSafeQueryLimit, "Rows per batch.")
	redashSafeQueryCmd.Flags().IntVar(&redashMaxIter, "max-iter", redash.DefaultSafeQueryMaxIter, "Maximum number of batches.")

	redashCmd.AddCommand(redashQueryCmd, redashSafeQueryCmd)
	rootCmd.AddCommand(redashCmd)
}

func newRedashClient(cmd *cobra.Command) (*redash.Client, func(), error) {
	if cfg.Redash.URL == "" {
		return nil, nil, fmt.Errorf("redash.url is not configured")
	}
	deps, err := newShared(cmd.Context())
	if err != nil {
		return nil, nil, err
	}

	var opts []redash.Option
	if deps.cache != nil {
		opts = append(opts, redash.WithCache(deps.cache))
	}
	c, err := redash.New(redash.Config{
		URL:          cfg.Redash.URL,
		APIKey:       cfg.Redash.APIKey,
		UserAgent:    cfg.UserAgent,
		PollInterval: cfg.Redash.PollIntervalDuration(),
		CacheTTL:     cfg.Redash.CacheTTLDuration(),
		Throttle:     deps.throttle,
	}, opts...)
	if err != nil {
		deps.Close()
		return nil, nil, err
	}
	return c, deps.Close, nil
}

func parseQueryID(s string) (int, error) {
	id, err := strconv.Atoi(s)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid query id %q", s)
	}
	return id, nil
}

func toParams(values map[string]string) redash.Params {
	params := make(redash.Params, len(values))
	for k, v := range values {
		params[k] = v
	}
	return params
}
