package cache

import (
	"time"

	"github.com/rebase-analytics/ibreport/pkg/table"
)

// Entry is a cached table.
type Entry struct {
	// Columns are the table's column names in order.
	Columns []string `json:"columns"`

	// Records are the row values in column order.
	Records [][]any `json:"records"`

	// CachedAt is when the table was stored.
	CachedAt time.Time `json:"cached_at"`

	// Expires is when the entry becomes stale.
	Expires time.Time `json:"expires"`
}

// NewEntry snapshots t for ttl from now.
func NewEntry(t *table.Table, ttl time.Duration) *Entry {
	now := time.Now()
	return &Entry{
		Columns:  append([]string(nil), t.Columns...),
		Records:  t.Records(false),
		CachedAt: now,
		Expires:  now.Add(ttl),
	}
}

// Table rebuilds the cached table. JSON numbers come back as float64.
func (e *Entry) Table() *table.Table {
	t := table.New(e.Columns...)
	for _, rec := range e.Records {
		row := make(table.Row, len(e.Columns))
		for i, c := range e.Columns {
			if i < len(rec) {
				row[c] = rec[i]
			}
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

// IsExpired returns true if the cache entry has expired.
func (e *Entry) IsExpired() bool {
	return time.Now().After(e.Expires)
}

// TTL returns the time until expiration.
// Returns 0 if already expired.
func (e *Entry) TTL() time.Duration {
	ttl := time.Until(e.Expires)
	if ttl < 0 {
		return 0
	}
	return ttl
}
