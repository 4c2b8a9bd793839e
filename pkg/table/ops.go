package table

import (
	"cmp"
	"fmt"
	"sort"
	"strings"
)

// Concat stacks tables vertically. Columns are the union of all columns in first-seen order.
func Concat(tables ...*Table) *Table {
	out := New()
	seen := map[string]bool{}
	for _, t := range tables {
		if t == nil {
			continue
		}
		for _, c := range t.Columns {
			if !seen[c] {
				seen[c] = true
				out.Columns = append(out.Columns, c)
			}
		}
		for _, r := range t.Rows {
			out.Rows = append(out.Rows, cloneRow(r))
		}
	}
	return out
}

// DropDuplicates keeps the last row for each distinct value of cols (all columns when empty).
// Surviving rows keep their original relative order.
func (t *Table) DropDuplicates(cols ...string) *Table {
	if len(cols) == 0 {
		cols = t.Columns
	}
	last := make(map[string]int, len(t.Rows))
	for i, r := range t.Rows {
		last[rowKey(r, cols)] = i
	}
	out := New(t.Columns...)
	for i, r := range t.Rows {
		if last[rowKey(r, cols)] == i {
			out.Rows = append(out.Rows, cloneRow(r))
		}
	}
	return out
}

// SortBy returns a copy sorted by col. Numbers compare numerically and sort
// before text, nil sorts last.
func (t *Table) SortBy(col string, ascending bool) *Table {
	out := t.Clone()
	sort.SliceStable(out.Rows, func(i, j int) bool {
		a, b := out.Rows[i][col], out.Rows[j][col]
		if a == nil || b == nil {
			return a != nil && b == nil
		}
		if ascending {
			return compare(a, b) < 0
		}
		return compare(a, b) > 0
	})
	return out
}

// Merge performs a full outer join of left and right on the key columns.
// Non-key columns present on both sides are renamed with suffixes[0] and suffixes[1].
func Merge(left, right *Table, on []string, suffixes [2]string) (*Table, error) {
	for _, k := range on {
		if !left.HasColumn(k) || !right.HasColumn(k) {
			return nil, fmt.Errorf("merge: key column %q missing", k)
		}
	}

	isKey := make(map[string]bool, len(on))
	for _, k := range on {
		isKey[k] = true
	}
	shared := map[string]bool{}
	for _, c := range left.Columns {
		if !isKey[c] && right.HasColumn(c) {
			shared[c] = true
		}
	}
	rename := func(c, suffix string) string {
		if shared[c] {
			return c + suffix
		}
		return c
	}

	out := New(on...)
	for _, c := range left.Columns {
		if !isKey[c] {
			out.Columns = append(out.Columns, rename(c, suffixes[0]))
		}
	}
	for _, c := range right.Columns {
		if !isKey[c] {
			out.Columns = append(out.Columns, rename(c, suffixes[1]))
		}
	}

	rightIndex := make(map[string][]int)
	for i, r := range right.Rows {
		k := rowKey(r, on)
		rightIndex[k] = append(rightIndex[k], i)
	}
	matched := make([]bool, len(right.Rows))

	build := func(l, r Row) Row {
		row := make(Row, len(out.Columns))
		for _, c := range out.Columns {
			row[c] = nil
		}
		for _, k := range on {
			if l != nil {
				row[k] = l[k]
			} else {
				row[k] = r[k]
			}
		}
		if l != nil {
			for c, v := range l {
				if !isKey[c] {
					row[rename(c, suffixes[0])] = v
				}
			}
		}
		if r != nil {
			for c, v := range r {
				if !isKey[c] {
					row[rename(c, suffixes[1])] = v
				}
			}
		}
		return row
	}

	for _, l := range left.Rows {
		idx := rightIndex[rowKey(l, on)]
		if len(idx) == 0 {
			out.Rows = append(out.Rows, build(l, nil))
			continue
		}
		for _, i := range idx {
			matched[i] = true
			out.Rows = append(out.Rows, build(l, right.Rows[i]))
		}
	}
	for i, r := range right.Rows {
		if !matched[i] {
			out.Rows = append(out.Rows, build(nil, r))
		}
	}
	return out, nil
}

func rowKey(r Row, cols []string) string {
	var b strings.Builder
	for i, c := range cols {
		if i > 0 {
			b.WriteByte(0)
		}
		if f, ok := number(r[c]); ok {
			fmt.Fprintf(&b, "n:%v", f)
			continue
		}
		fmt.Fprintf(&b, "%T:%v", r[c], r[c])
	}
	return b.String()
}

// compare orders numbers numerically and before every other value, which
// compare as text. Numeric-looking strings are text.
func compare(a, b any) int {
	fa, aok := number(a)
	fb, bok := number(b)
	switch {
	case aok && bok:
		return cmp.Compare(fa, fb)
	case aok:
		return -1
	case bok:
		return 1
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func sortStrings(s []string) {
	sort.Strings(s)
}
