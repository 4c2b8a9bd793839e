package keywords

import (
	"bytes"
	"fmt"
	"strconv"
)

// Int64 decodes int64 values that the REST API sends as JSON strings.
type Int64 int64

// UnmarshalJSON accepts both "123" and 123.
func (n *Int64) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	if len(data) == 0 || string(data) == "null" {
		*n = 0
		return nil
	}
	v, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("parse int64 %q: %w", data, err)
	}
	*n = Int64(v)
	return nil
}

type historicalMetricsRequest struct {
	Keywords           []string `json:"keywords"`
	Language           string   `json:"language,omitempty"`
	GeoTargetConstants []string `json:"geoTargetConstants,omitempty"`
	KeywordPlanNetwork string   `json:"keywordPlanNetwork,omitempty"`
}

type historicalMetricsResponse struct {
	Results []KeywordResult `json:"results"`
}

// KeywordResult holds the historical metrics of one keyword.
type KeywordResult struct {
	Text           string          `json:"text"`
	CloseVariants  []string        `json:"closeVariants"`
	KeywordMetrics *KeywordMetrics `json:"keywordMetrics"`
}

// KeywordMetrics are the search statistics of a keyword.
type KeywordMetrics struct {
	AvgMonthlySearches   Int64           `json:"avgMonthlySearches"`
	MonthlySearchVolumes []MonthlyVolume `json:"monthlySearchVolumes"`
	Competition          string          `json:"competition"`
	CompetitionIndex     Int64           `json:"competitionIndex"`
}

// MonthlyVolume is the search count of one month.
type MonthlyVolume struct {
	Month           string `json:"month"`
	Year            Int64  `json:"year"`
	MonthlySearches Int64  `json:"monthlySearches"`
}

var months = map[string]int{
	"JANUARY": 1, "FEBRUARY": 2, "MARCH": 3, "APRIL": 4, "MAY": 5, "JUNE": 6,
	"JULY": 7, "AUGUST": 8, "SEPTEMBER": 9, "OCTOBER": 10, "NOVEMBER": 11, "DECEMBER": 12,
}

// YearMonth formats the volume's month as YYYYMM. ok is false for unknown months.
func (v MonthlyVolume) YearMonth() (string, bool) {
	m, ok := months[v.Month]
	if !ok || v.Year <= 0 {
		return "", false
	}
	return fmt.Sprintf("%04d%02d", v.Year, m), true
}
