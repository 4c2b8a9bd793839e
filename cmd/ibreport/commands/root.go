// Package commands implements the ibreport command line.
package commands

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/rebase-analytics/ibreport/internal/config"
	"github.com/rebase-analytics/ibreport/internal/telemetry"
	"github.com/rebase-analytics/ibreport/pkg/logging"
	"github.com/rebase-analytics/ibreport/pkg/table"
)

const defaultConfigPath = "ibreport.json5"

var (
	configPath string
	logLevel   string
	format     string
	outputPath string

	// cfg is loaded before any subcommand runs.
	cfg *config.Config

	shutdownTracing telemetry.Shutdown
)

var rootCmd = &cobra.Command{
	Use:          "ibreport",
	Short:        "ibreport fetches BI queries, analytics, search and keyword reports as tables.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		path := configPath
		if !cmd.Flags().Changed("config") {
			if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
				path = ""
			}
		}
		loaded, err := config.Load(path)
		if err != nil {
			return err
		}

		levelName := loaded.Log.Level
		if logLevel != "" {
			levelName = logLevel
		}
		logCfg, err := logging.NewConfig(levelName, loaded.Log.Format, "ibreport", cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		logging.Setup(logCfg)

		switch table.Format(format) {
		case table.FormatTable, table.FormatCSV, table.FormatMarkdown:
		default:
			return fmt.Errorf("unknown format %q (want table, csv or markdown)", format)
		}

		shutdown, err := telemetry.Setup(cmd.Context(), "ibreport", loaded.Telemetry)
		if err != nil {
			return err
		}
		shutdownTracing = shutdown

		cfg = loaded
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if shutdownTracing == nil {
			return nil
		}
		return shutdownTracing(context.WithoutCancel(cmd.Context()))
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", defaultConfigPath, "Configuration file (JSON5). A missing default file is ignored.")
	flags.StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn or error. Overrides the config file.")
	flags.StringVarP(&format, "format", "f", string(table.FormatTable), "Output format: table, csv or markdown.")
	flags.StringVarP(&outputPath, "output", "o", "", "Write the result to this file instead of stdout.")
}

// ExecuteContext runs the command line and exits non-zero on error.
func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
