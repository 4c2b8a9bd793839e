// Package sheets stores tables in Google Sheets and reads them back.
//
// Spreadsheets are created through the Sheets API and filed into a Drive folder
// through the Drive API. Every operation that rewrites a sheet (Concat,
// DropDuplicates, Sort, Update) reads the current content, transforms it as a
// table and replaces the sheet content with the result.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/rebase-analytics/ibreport/pkg/client"
	"github.com/rebase-analytics/ibreport/pkg/table"
)

const (
	// ServiceName labels logs and metrics.
	ServiceName = "sheets"

	// DefaultTitle names spreadsheets saved without a title.
	DefaultTitle = "Untitled"

	valueInputRaw     = "RAW"
	renderUnformatted = "UNFORMATTED_VALUE"
)

// ErrNoFolder is returned by SaveTable when no destination folder is configured.
var ErrNoFolder = errors.New("destination folder is required")

// Config configures a Client.
type Config struct {
	// FolderID is the Drive folder SaveTable files spreadsheets into when
	// SaveOptions.FolderID is empty.
	FolderID string

	Retry client.RetryConfig
}

// Client reads and writes spreadsheets.
type Client struct {
	sheets   *sheets.Service
	drive    *drive.Service
	folderID string
	retry    client.RetryConfig
	logger   zerolog.Logger
}

// New creates a client. opts usually carry an authenticated HTTP client from googleauth
// with both the spreadsheets and drive scopes.
func New(ctx context.Context, cfg Config, opts ...option.ClientOption) (*Client, error) {
	sheetsSvc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	driveSvc, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = client.DefaultRetryConfig()
	}
	return &Client{
		sheets:   sheetsSvc,
		drive:    driveSvc,
		folderID: cfg.FolderID,
		retry:    cfg.Retry,
		logger:   log.With().Str("component", "sheets").Logger(),
	}, nil
}

// Spreadsheet identifies a saved spreadsheet.
type Spreadsheet struct {
	ID    string
	URL   string
	Title string

	// Sheet is the title of the sheet the table was written to.
	Sheet string
}

// Ref returns a reference to the spreadsheet's data sheet.
func (s *Spreadsheet) Ref() SheetRef {
	return SheetRef{SpreadsheetID: s.ID, Sheet: s.Sheet}
}

// SheetRef addresses one sheet. An empty Sheet means the first sheet.
type SheetRef struct {
	SpreadsheetID string
	Sheet         string
}

// SaveOptions controls SaveTable.
type SaveOptions struct {
	// FolderID overrides Config.FolderID.
	FolderID string

	// Title defaults to DefaultTitle.
	Title string
}

// SaveTable creates a spreadsheet holding t (header row first) and moves it into the
// destination folder. Missing values are written as empty cells.
func (c *Client) SaveTable(ctx context.Context, t *table.Table, opts SaveOptions) (*Spreadsheet, error) {
	folder := opts.FolderID
	if folder == "" {
		folder = c.folderID
	}
	if folder == "" {
		return nil, ErrNoFolder
	}
	title := opts.Title
	if title == "" {
		title = DefaultTitle
	}

	var created *sheets.Spreadsheet
	err := c.do(ctx, func(ctx context.Context) error {
		var err error
		created, err = c.sheets.Spreadsheets.Create(&sheets.Spreadsheet{
			Properties: &sheets.SpreadsheetProperties{Title: title},
		}).Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create spreadsheet %q: %w", title, err)
	}

	s := &Spreadsheet{ID: created.SpreadsheetId, URL: created.SpreadsheetUrl, Title: title}
	if len(created.Sheets) > 0 && created.Sheets[0].Properties != nil {
		s.Sheet = created.Sheets[0].Properties.Title
	}
	ref := s.Ref()
	if s.Sheet == "" {
		if s.Sheet, err = c.sheetTitle(ctx, ref); err != nil {
			return nil, err
		}
		ref.Sheet = s.Sheet
	}

	if err := c.write(ctx, ref, t.Records(true)); err != nil {
		return nil, err
	}
	if err := c.move(ctx, s.ID, folder); err != nil {
		return nil, err
	}

	c.logger.Info().
		Str("spreadsheet_id", s.ID).
		Str("title", title).
		Str("folder_id", folder).
		Int("rows", t.Len()).
		Msg("Saved table to spreadsheet")
	return s, nil
}

// Read returns the sheet content with the first row as column names.
func (c *Client) Read(ctx context.Context, ref SheetRef) (*table.Table, error) {
	ref, err := c.resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	values, err := c.values(ctx, ref.SpreadsheetID, quoteSheet(ref.Sheet))
	if err != nil {
		return nil, err
	}
	return table.FromRecords(values, true), nil
}

// Append adds t below the existing content. The header row is repeated only when the
// sheet's header does not match t's columns; an empty sheet gets a header row.
// The updated sheet content is returned.
func (c *Client) Append(ctx context.Context, ref SheetRef, t *table.Table) (*table.Table, error) {
	ref, err := c.resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	current, err := c.values(ctx, ref.SpreadsheetID, quoteSheet(ref.Sheet))
	if err != nil {
		return nil, err
	}

	records := t.Records(true)
	if len(current) > 0 && headerAligned(current[0], t.Columns) {
		records = records[1:]
	}

	err = c.do(ctx, func(ctx context.Context) error {
		_, err := c.sheets.Spreadsheets.Values.Append(ref.SpreadsheetID, quoteSheet(ref.Sheet), &sheets.ValueRange{Values: records}).
			ValueInputOption(valueInputRaw).
			InsertDataOption("INSERT_ROWS").
			Context(ctx).
			Do()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("append to %s: %w", ref, err)
	}
	return c.Read(ctx, ref)
}

// Concat appends t's rows to the sheet content, aligning columns by name.
func (c *Client) Concat(ctx context.Context, ref SheetRef, t *table.Table) (*table.Table, error) {
	return c.rewrite(ctx, ref, func(current *table.Table) (*table.Table, error) {
		return table.Concat(current, t), nil
	})
}

// DropDuplicates removes duplicate rows, keeping the last occurrence. Rows are compared
// on cols, or on all columns when cols is empty.
func (c *Client) DropDuplicates(ctx context.Context, ref SheetRef, cols ...string) (*table.Table, error) {
	return c.rewrite(ctx, ref, func(current *table.Table) (*table.Table, error) {
		for _, col := range cols {
			if !current.HasColumn(col) {
				return nil, fmt.Errorf("column %q not found", col)
			}
		}
		return current.DropDuplicates(cols...), nil
	})
}

// Sort orders the sheet content by col.
func (c *Client) Sort(ctx context.Context, ref SheetRef, col string, ascending bool) (*table.Table, error) {
	return c.rewrite(ctx, ref, func(current *table.Table) (*table.Table, error) {
		if !current.HasColumn(col) {
			return nil, fmt.Errorf("column %q not found", col)
		}
		return current.SortBy(col, ascending), nil
	})
}

// Update replaces the sheet content with t.
func (c *Client) Update(ctx context.Context, ref SheetRef, t *table.Table) (*table.Table, error) {
	ref, err := c.resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	err = c.do(ctx, func(ctx context.Context) error {
		_, err := c.sheets.Spreadsheets.Values.Clear(ref.SpreadsheetID, quoteSheet(ref.Sheet), &sheets.ClearValuesRequest{}).
			Context(ctx).
			Do()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("clear %s: %w", ref, err)
	}
	if err := c.write(ctx, ref, t.Records(true)); err != nil {
		return nil, err
	}
	return t, nil
}

// Share grants each email writer access to the spreadsheet.
func (c *Client) Share(ctx context.Context, spreadsheetID string, emails ...string) error {
	for _, email := range emails {
		err := c.do(ctx, func(ctx context.Context) error {
			_, err := c.drive.Permissions.Create(spreadsheetID, &drive.Permission{
				Type:         "user",
				Role:         "writer",
				EmailAddress: email,
			}).Context(ctx).Do()
			return err
		})
		if err != nil {
			return fmt.Errorf("share %s with %s: %w", spreadsheetID, email, err)
		}
		c.logger.Info().Str("spreadsheet_id", spreadsheetID).Str("email", email).Msg("Shared spreadsheet")
	}
	return nil
}

func (c *Client) rewrite(ctx context.Context, ref SheetRef, transform func(*table.Table) (*table.Table, error)) (*table.Table, error) {
	ref, err := c.resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	current, err := c.Read(ctx, ref)
	if err != nil {
		return nil, err
	}
	updated, err := transform(current)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", ref, err)
	}
	return c.Update(ctx, ref, updated)
}

func (c *Client) write(ctx context.Context, ref SheetRef, records [][]any) error {
	err := c.do(ctx, func(ctx context.Context) error {
		_, err := c.sheets.Spreadsheets.Values.Update(ref.SpreadsheetID, quoteSheet(ref.Sheet)+"!A1", &sheets.ValueRange{Values: records}).
			ValueInputOption(valueInputRaw).
			Context(ctx).
			Do()
		return err
	})
	if err != nil {
		return fmt.Errorf("write %s: %w", ref, err)
	}
	return nil
}

func (c *Client) values(ctx context.Context, spreadsheetID, rng string) ([][]any, error) {
	var resp *sheets.ValueRange
	err := c.do(ctx, func(ctx context.Context) error {
		var err error
		resp, err = c.sheets.Spreadsheets.Values.Get(spreadsheetID, rng).
			ValueRenderOption(renderUnformatted).
			Context(ctx).
			Do()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("read %s %s: %w", spreadsheetID, rng, err)
	}
	return resp.Values, nil
}

// move makes folderID the only parent of the file.
func (c *Client) move(ctx context.Context, fileID, folderID string) error {
	var f *drive.File
	err := c.do(ctx, func(ctx context.Context) error {
		var err error
		f, err = c.drive.Files.Get(fileID).Fields("parents").Context(ctx).Do()
		return err
	})
	if err != nil {
		return fmt.Errorf("get parents of %s: %w", fileID, err)
	}

	err = c.do(ctx, func(ctx context.Context) error {
		_, err := c.drive.Files.Update(fileID, &drive.File{}).
			AddParents(folderID).
			RemoveParents(strings.Join(f.Parents, ",")).
			Fields("id, parents").
			Context(ctx).
			Do()
		return err
	})
	if err != nil {
		return fmt.Errorf("move %s to folder %s: %w", fileID, folderID, err)
	}
	return nil
}

func (c *Client) resolve(ctx context.Context, ref SheetRef) (SheetRef, error) {
	if ref.SpreadsheetID == "" {
		return ref, fmt.Errorf("spreadsheet id is required")
	}
	if ref.Sheet != "" {
		return ref, nil
	}
	title, err := c.sheetTitle(ctx, ref)
	if err != nil {
		return ref, err
	}
	ref.Sheet = title
	return ref, nil
}

func (c *Client) sheetTitle(ctx context.Context, ref SheetRef) (string, error) {
	var s *sheets.Spreadsheet
	err := c.do(ctx, func(ctx context.Context) error {
		var err error
		s, err = c.sheets.Spreadsheets.Get(ref.SpreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
		return err
	})
	if err != nil {
		return "", fmt.Errorf("get spreadsheet %s: %w", ref.SpreadsheetID, err)
	}
	if len(s.Sheets) == 0 || s.Sheets[0].Properties == nil {
		return "", fmt.Errorf("spreadsheet %s has no sheets", ref.SpreadsheetID)
	}
	return s.Sheets[0].Properties.Title, nil
}

func (c *Client) do(ctx context.Context, fn func(ctx context.Context) error) error {
	return client.Retry(ctx, c.retry, nil, fn)
}

// String implements fmt.Stringer.
func (r SheetRef) String() string {
	if r.Sheet == "" {
		return r.SpreadsheetID
	}
	return r.SpreadsheetID + "/" + r.Sheet
}

func quoteSheet(name string) string {
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}

// headerAligned reports whether the overlapping part of header matches columns.
func headerAligned(header []any, columns []string) bool {
	for i := 0; i < len(header) && i < len(columns); i++ {
		if fmt.Sprint(header[i]) != columns[i] {
			return false
		}
	}
	return true
}
