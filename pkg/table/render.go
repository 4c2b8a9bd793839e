package table

import (
	"io"

	prettytable "github.com/jedib0t/go-pretty/v6/table"
)

// Format selects how a table is written.
type Format string

const (
	// FormatTable renders a boxed, human readable table.
	FormatTable Format = "table"

	// FormatCSV renders comma separated values with a header line.
	FormatCSV Format = "csv"

	// FormatMarkdown renders a markdown table.
	FormatMarkdown Format = "markdown"
)

// Write renders t to w in the given format.
func (t *Table) Write(w io.Writer, format Format) {
	tw := t.writer(w)
	switch format {
	case FormatCSV:
		tw.RenderCSV()
	case FormatMarkdown:
		tw.RenderMarkdown()
	default:
		tw.SetStyle(prettytable.StyleRounded)
		tw.Render()
	}
}

// Render writes a boxed table to w.
func (t *Table) Render(w io.Writer) {
	t.Write(w, FormatTable)
}

// WriteCSV writes t as CSV to w.
func (t *Table) WriteCSV(w io.Writer) {
	t.Write(w, FormatCSV)
}

func (t *Table) writer(w io.Writer) prettytable.Writer {
	tw := prettytable.NewWriter()
	tw.SetOutputMirror(w)

	header := make(prettytable.Row, len(t.Columns))
	for i, c := range t.Columns {
		header[i] = c
	}
	tw.AppendHeader(header)

	for _, rec := range t.Records(false) {
		tw.AppendRow(prettytable.Row(rec))
	}
	return tw
}
