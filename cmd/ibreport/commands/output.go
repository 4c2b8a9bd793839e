package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/rebase-analytics/ibreport/pkg/pagination"
	"github.com/rebase-analytics/ibreport/pkg/report"
	"github.com/rebase-analytics/ibreport/pkg/table"
)

// writeTable writes t to --output, or to the command's stdout.
func writeTable(cmd *cobra.Command, t *table.Table) (err error) {
	var w io.Writer = cmd.OutOrStdout()
	if outputPath != "" {
		f, err := os.Create(outputPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer func() {
			if cerr := f.Close(); cerr != nil && err == nil {
				err = fmt.Errorf("close output file: %w", cerr)
			}
		}()
		w = f
	}
	t.Write(w, table.Format(format))
	return nil
}

// writeReport writes whatever was fetched and notes on stderr when it is incomplete.
func writeReport(cmd *cobra.Command, r *report.Report) error {
	if r.Truncated {
		msg := fmt.Sprintf("result is incomplete after %d pages (%s)", r.Pages, r.Reason)
		if r.Err != nil {
			msg += ": " + r.Err.Error()
		}
		fmt.Fprintln(cmd.ErrOrStderr(), msg)
	}
	return writeTable(cmd, r.Table)
}

// lineReader shows prompt and returns the line typed in answer.
type lineReader func(prompt string) (string, error)

// confirmFunc asks before every further page. Empty, "y" and "yes" continue;
// anything else, or a read error, stops.
func confirmFunc(read lineReader) pagination.ConfirmFunc {
	return func(ctx context.Context, p pagination.Progress) bool {
		if ctx.Err() != nil {
			return false
		}
		line, err := read(fmt.Sprintf("Fetched %d rows in %d pages. Continue? [Y/n] ", p.Rows, p.Pages))
		if err != nil {
			return false
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "", "y", "yes":
			return true
		default:
			return false
		}
	}
}

// terminalPrompt reads answers from the terminal, printing prompts on stderr so
// stdout only carries the table.
func terminalPrompt() (lineReader, func(), error) {
	rl, err := readline.NewEx(&readline.Config{
		InterruptPrompt: "^C",
		Stdout:          os.Stderr,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("open prompt: %w", err)
	}
	read := func(prompt string) (string, error) {
		rl.SetPrompt(prompt)
		return rl.Readline()
	}
	return read, func() { rl.Close() }, nil
}
