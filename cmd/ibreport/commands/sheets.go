package commands

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/rebase-analytics/ibreport/internal/googleauth"
	"github.com/rebase-analytics/ibreport/pkg/sheets"
	"github.com/rebase-analytics/ibreport/pkg/table"
)

var (
	sheetName     string
	sheetAll      bool
	sheetPageSize int
	sheetRowLimit int
	sheetInput    string
	sheetTitle    string
	sheetFolder   string
	sheetShare    bool
)

var sheetsCmd = &cobra.Command{
	Use:   "sheets",
	Short: "Reads and writes Google spreadsheets.",
}

var sheetsReadCmd = &cobra.Command{
	Use:   "read <spreadsheet-id>",
	Short: "Prints a sheet, its first row used as the header.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		c, err := newSheetsClient(ctx)
		if err != nil {
			return err
		}
		ref := sheets.SheetRef{SpreadsheetID: args[0], Sheet: sheetName}

		if !sheetAll {
			t, err := c.Read(ctx, ref)
			if err != nil {
				return err
			}
			return writeTable(cmd, t)
		}
		r, err := c.ReadAll(ctx, ref, sheets.ReadOptions{PageSize: sheetPageSize, RowLimit: sheetRowLimit})
		if err != nil {
			return err
		}
		return writeReport(cmd, r)
	},
}

var sheetsSaveCmd = &cobra.Command{
	Use:   "save",
	Short: "Saves a CSV file (header first) as a new spreadsheet and prints its URL.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := readCSVInput(cmd)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		c, err := newSheetsClient(ctx)
		if err != nil {
			return err
		}

		s, err := c.SaveTable(ctx, t, sheets.SaveOptions{FolderID: sheetFolder, Title: sheetTitle})
		if err != nil {
			return err
		}
		if sheetShare && len(cfg.Google.ShareWith) > 0 {
			if err := c.Share(ctx, s.ID, cfg.Google.ShareWith...); err != nil {
				return err
			}
		}
		fmt.Fprintln(cmd.OutOrStdout(), s.URL)
		return nil
	},
}

var sheetsAppendCmd = &cobra.Command{
	Use:   "append <spreadsheet-id>",
	Short: "Appends the rows of a CSV file to a sheet with the same header.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := readCSVInput(cmd)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		c, err := newSheetsClient(ctx)
		if err != nil {
			return err
		}
		out, err := c.Append(ctx, sheets.SheetRef{SpreadsheetID: args[0], Sheet: sheetName}, t)
		if err != nil {
			return err
		}
		return writeTable(cmd, out)
	},
}

func init() {
	sheetsReadCmd.Flags().StringVar(&sheetName, "sheet", "", "Sheet title. Defaults to the first sheet.")
	sheetsReadCmd.Flags().BoolVar(&sheetAll, "all", false, "Read in row ranges, for sheets too large for one request.")
	sheetsReadCmd.Flags().IntVar(&sheetPageSize, "page-size", sheets.DefaultReadPageSize, "Rows per request with --all.")
	sheetsReadCmd.Flags().IntVar(&sheetRowLimit, "row-limit", 0, "Stop after this many rows with --all (0 = all).")

	sheetsSaveCmd.Flags().StringVarP(&sheetInput, "input", "i", "-", "CSV file to upload, - for stdin.")
	sheetsSaveCmd.Flags().StringVar(&sheetTitle, "title", sheets.DefaultTitle, "Spreadsheet title.")
	sheetsSaveCmd.Flags().StringVar(&sheetFolder, "folder", "", "Drive folder ID. Defaults to google.driveFolderId.")
	sheetsSaveCmd.Flags().BoolVar(&sheetShare, "share", false, "Give google.shareWith write access.")

	sheetsAppendCmd.Flags().StringVarP(&sheetInput, "input", "i", "-", "CSV file to append, - for stdin.")
	sheetsAppendCmd.Flags().StringVar(&sheetName, "sheet", "", "Sheet title. Defaults to the first sheet.")

	sheetsCmd.AddCommand(sheetsReadCmd, sheetsSaveCmd, sheetsAppendCmd)
	rootCmd.AddCommand(sheetsCmd)
}

func newSheetsClient(ctx context.Context) (*sheets.Client, error) {
	opts, err := googleOptions(ctx, googleauth.SheetsScopes)
	if err != nil {
		return nil, err
	}
	return sheets.New(ctx, sheets.Config{FolderID: cfg.Google.DriveFolderID}, opts...)
}

func readCSVInput(cmd *cobra.Command) (*table.Table, error) {
	var r io.Reader = cmd.InOrStdin()
	if sheetInput != "-" {
		f, err := os.Open(sheetInput)
		if err != nil {
			return nil, fmt.Errorf("open input: %w", err)
		}
		defer f.Close()
		r = f
	}
	return readCSV(r)
}

// readCSV parses CSV with a header line, coercing numeric cells.
func readCSV(r io.Reader) (*table.Table, error) {
	lines, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("read csv: no header line")
	}
	records := make([][]any, len(lines))
	for i, line := range lines {
		rec := make([]any, len(line))
		for j, v := range line {
			rec[j] = v
		}
		records[i] = rec
	}
	return table.FromRecords(records, true), nil
}
