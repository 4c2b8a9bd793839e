package cache

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// Key identifies a cached table.
type Key struct {
	// Source is the wrapper producing the table (e.g. "redash").
	Source string

	// Resource is the source-specific object (e.g. a query ID).
	Resource string

	// Params are the request parameters that shape the result.
	Params url.Values
}

// String generates a deterministic cache key string.
// Format: ibreport:source:resource:param1=val1,val2:param2=val1
//
// Example:
//
//	ibreport:redash:query/42:date_from=2024-01-01:limit_rows=10000
func (k Key) String() string {
	parts := []string{"ibreport"}

	if src := strings.Trim(k.Source, ":"); src != "" {
		parts = append(parts, src)
	}
	if res := strings.Trim(k.Resource, "/"); res != "" {
		parts = append(parts, res)
	}

	if len(k.Params) > 0 {
		names := make([]string, 0, len(k.Params))
		for name := range k.Params {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			parts = append(parts, fmt.Sprintf("%s=%s", name, strings.Join(k.Params[name], ",")))
		}
	}

	return strings.Join(parts, ":")
}
