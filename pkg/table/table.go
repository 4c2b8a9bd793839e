// Package table holds fetched report data as rows of named columns.
package table

import (
	"fmt"
	"strconv"
	"strings"
)

// Row maps a column name to a scalar value.
type Row map[string]any

// Table is an ordered list of rows with an ordered column set.
type Table struct {
	Columns []string
	Rows    []Row
}

// New creates an empty table with the given columns.
func New(columns ...string) *Table {
	return &Table{Columns: append([]string(nil), columns...)}
}

// Append adds rows; keys missing from Columns are added in first-seen order (sorted per row).
func (t *Table) Append(rows ...Row) {
	known := make(map[string]bool, len(t.Columns))
	for _, c := range t.Columns {
		known[c] = true
	}
	for _, r := range rows {
		var extra []string
		for k := range r {
			if !known[k] {
				extra = append(extra, k)
				known[k] = true
			}
		}
		sortStrings(extra)
		t.Columns = append(t.Columns, extra...)
		t.Rows = append(t.Rows, r)
	}
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// HasColumn reports whether name is one of the columns.
func (t *Table) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// Column returns every value of one column, nil where a row lacks it.
func (t *Table) Column(name string) []any {
	out := make([]any, len(t.Rows))
	for i, r := range t.Rows {
		out[i] = r[name]
	}
	return out
}

// Value returns the value at row i, column col.
func (t *Table) Value(i int, col string) any {
	return t.Rows[i][col]
}

// Clone returns a copy whose rows can be modified independently.
func (t *Table) Clone() *Table {
	out := New(t.Columns...)
	out.Rows = make([]Row, len(t.Rows))
	for i, r := range t.Rows {
		out.Rows[i] = cloneRow(r)
	}
	return out
}

// Select returns a table restricted to cols, in that order.
func (t *Table) Select(cols ...string) (*Table, error) {
	for _, c := range cols {
		if !t.HasColumn(c) {
			return nil, fmt.Errorf("select: unknown column %q", c)
		}
	}
	out := New(cols...)
	out.Rows = make([]Row, len(t.Rows))
	for i, r := range t.Rows {
		row := make(Row, len(cols))
		for _, c := range cols {
			if v, ok := r[c]; ok {
				row[c] = v
			}
		}
		out.Rows[i] = row
	}
	return out, nil
}

// SetColumn sets col to value on every row, adding the column if needed.
func (t *Table) SetColumn(col string, value any) {
	if !t.HasColumn(col) {
		t.Columns = append(t.Columns, col)
	}
	for _, r := range t.Rows {
		r[col] = value
	}
}

// FromRecords builds a table from a list of records such as a spreadsheet range.
// With header the first record names the columns, otherwise columns are "0", "1", ...
// A column whose non-empty string values all parse as numbers is converted
// with CoerceColumn; any other column keeps its values unchanged.
func FromRecords(records [][]any, header bool) *Table {
	if len(records) == 0 {
		return New()
	}

	var columns []string
	body := records
	if header {
		for _, v := range records[0] {
			columns = append(columns, fmt.Sprint(v))
		}
		body = records[1:]
	}

	width := len(columns)
	for _, rec := range body {
		if len(rec) > width {
			width = len(rec)
		}
	}
	for i := len(columns); i < width; i++ {
		columns = append(columns, strconv.Itoa(i))
	}

	t := New(columns...)
	t.Rows = make([]Row, 0, len(body))
	for _, rec := range body {
		row := make(Row, len(columns))
		for i, c := range columns {
			if i < len(rec) {
				row[c] = rec[i]
			} else {
				row[c] = nil
			}
		}
		t.Rows = append(t.Rows, row)
	}
	for _, c := range columns {
		values := CoerceColumn(t.Column(c))
		for i, r := range t.Rows {
			r[c] = values[i]
		}
	}
	return t
}

// Records converts the table to records. Missing and nil values become "".
func (t *Table) Records(header bool) [][]any {
	out := make([][]any, 0, len(t.Rows)+1)
	if header {
		h := make([]any, len(t.Columns))
		for i, c := range t.Columns {
			h[i] = c
		}
		out = append(out, h)
	}
	for _, r := range t.Rows {
		rec := make([]any, len(t.Columns))
		for i, c := range t.Columns {
			if v, ok := r[c]; ok && v != nil {
				rec[i] = v
			} else {
				rec[i] = ""
			}
		}
		out = append(out, rec)
	}
	return out
}

// CoerceColumn converts a column of values to numbers when every non-empty
// string in it parses: int64 when all of them are integers, float64 otherwise.
// Empty strings, nil and non-string values are kept as they are. When any
// string does not parse, values is returned unchanged.
func CoerceColumn(values []any) []any {
	parsed := make([]any, len(values))
	copy(parsed, values)

	converted, allInts := false, true
	for i, v := range values {
		s, ok := v.(string)
		if !ok || strings.TrimSpace(s) == "" {
			continue
		}
		trimmed := strings.TrimSpace(s)
		if n, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
			parsed[i] = n
		} else if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
			parsed[i] = f
			allInts = false
		} else {
			return values
		}
		converted = true
	}
	if !converted {
		return values
	}

	if !allInts {
		for i, v := range parsed {
			if n, ok := v.(int64); ok {
				if _, wasString := values[i].(string); wasString {
					parsed[i] = float64(n)
				}
			}
		}
	}
	return parsed
}

// Float converts a numeric value, or a string holding one, to float64.
func Float(v any) (float64, bool) {
	if s, ok := v.(string); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		return f, err == nil
	}
	return number(v)
}

// number converts values of a numeric type to float64. Strings are not numbers.
func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func cloneRow(r Row) Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
