package searchconsole

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/api/searchconsole/v1"

	"github.com/rebase-analytics/ibreport/internal/testutil"
	"github.com/rebase-analytics/ibreport/pkg/client"
	"github.com/rebase-analytics/ibreport/pkg/pagination"
)

const (
	testSite  = "sc-domain:example.com"
	queryPath = "/webmasters/v3/sites/" + testSite + "/searchAnalytics/query"
)

var testNow = time.Date(2024, 3, 31, 12, 0, 0, 0, time.UTC)

func newTestClient(t *testing.T, mock *testutil.MockAPI) *Client {
	t.Helper()
	c, err := New(context.Background(), Config{
		SiteURL:  testSite,
		Defaults: DefaultQuery(testNow),
		Retry:    client.RetryConfig{MaxAttempts: 1},
	}, option.WithEndpoint(mock.URL()+"/"), option.WithHTTPClient(mock.Client()))
	require.NoError(t, err)
	return c
}

func dataRow(clicks float64, keys ...string) *searchconsole.ApiDataRow {
	return &searchconsole.ApiDataRow{
		Keys:        keys,
		Clicks:      clicks,
		Impressions: clicks * 10,
		Ctr:         0.1,
		Position:    3.5,
	}
}

func decodeQuery(t *testing.T, rec testutil.RecordedRequest) searchconsole.SearchAnalyticsQueryRequest {
	t.Helper()
	var body searchconsole.SearchAnalyticsQueryRequest
	require.NoError(t, rec.JSON(&body))
	return body
}

func TestAddFilter(t *testing.T) {
	filters, err := AddFilter(nil, "query", "contains", "kaigishitsu")
	require.NoError(t, err)
	filters, err = AddFilter(filters, "page", "equals", "https://www.example.com/tokyo")
	require.NoError(t, err)
	assert.Equal(t, []Filter{
		{Dimension: "query", Operator: "contains", Expression: "kaigishitsu"},
		{Dimension: "page", Operator: "equals", Expression: "https://www.example.com/tokyo"},
	}, filters)

	tests := []struct {
		name          string
		dim, op, expr string
	}{
		{"empty expression", "query", "contains", ""},
		{"unknown dimension", "keyword", "contains", "x"},
		{"unknown operator", "query", "startsWith", "x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := AddFilter(filters, tt.dim, tt.op, tt.expr)
			assert.ErrorIs(t, err, ErrInvalidFilter)
			assert.Len(t, got, 2)
		})
	}
}

func TestAddFilterDoesNotShareBackingArray(t *testing.T) {
	base := make([]Filter, 1, 4)
	base[0] = Filter{Dimension: "query", Operator: "equals", Expression: "a"}

	a, err := AddFilter(base, "page", "equals", "b")
	require.NoError(t, err)
	b, err := AddFilter(base, "page", "equals", "c")
	require.NoError(t, err)

	assert.Equal(t, "b", a[1].Expression)
	assert.Equal(t, "c", b[1].Expression)
}

func TestDefaultQuery(t *testing.T) {
	q := DefaultQuery(testNow)
	assert.Equal(t, "2024-03-01", q.StartDate)
	assert.Equal(t, "2024-03-30", q.EndDate)
	assert.Equal(t, MaxRowLimit, q.RowLimit)
	assert.False(t, q.All)
}

func TestQuery_Single(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()

	mock.SetResponse("POST "+queryPath, testutil.NewJSONResponse(searchconsole.SearchAnalyticsQueryResponse{
		Rows: []*searchconsole.ApiDataRow{dataRow(40, "kaigishitsu"), dataRow(12, "rental space")},
	}))

	c := newTestClient(t, mock)
	filters, err := AddFilter(nil, "country", "equals", "jpn")
	require.NoError(t, err)

	r, err := c.Query(context.Background(), QueryRequest{
		Dimensions: []string{"query"},
		Filters:    filters,
		RowLimit:   25000,
	})
	require.NoError(t, err)

	assert.Equal(t, 1, r.Pages)
	assert.False(t, r.Truncated)
	assert.Equal(t, []string{StartDateColumn, EndDateColumn, KeysColumn, "clicks", "ctr", "impressions", "position"}, r.Table.Columns)
	require.Equal(t, 2, r.Table.Len())
	assert.Equal(t, "kaigishitsu", r.Table.Value(0, KeysColumn))
	assert.Equal(t, 40.0, r.Table.Value(0, "clicks"))
	assert.Equal(t, 120.0, r.Table.Value(1, "impressions"))
	assert.Equal(t, "2024-03-01", r.Table.Value(1, StartDateColumn))

	reqs := mock.RequestsTo(queryPath)
	require.Len(t, reqs, 1)
	body := decodeQuery(t, reqs[0])
	assert.Equal(t, "2024-03-01", body.StartDate)
	assert.Equal(t, "2024-03-30", body.EndDate)
	assert.Equal(t, int64(MaxRowLimit), body.RowLimit)
	require.Len(t, body.DimensionFilterGroups, 1)
	require.Len(t, body.DimensionFilterGroups[0].Filters, 1)
	assert.Equal(t, "country", body.DimensionFilterGroups[0].Filters[0].Dimension)
	assert.Equal(t, "jpn", body.DimensionFilterGroups[0].Filters[0].Expression)
}

func TestQuery_MultipleDimensions(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()

	mock.SetResponse("POST "+queryPath, testutil.NewJSONResponse(searchconsole.SearchAnalyticsQueryResponse{
		Rows: []*searchconsole.ApiDataRow{dataRow(5, "kaigishitsu", "https://www.example.com/tokyo")},
	}))

	c := newTestClient(t, mock)
	r, err := c.TopPages(context.Background(), QueryRequest{Dimensions: []string{"query", "page"}})
	require.NoError(t, err)

	assert.Equal(t, []string{StartDateColumn, EndDateColumn, "key_0", "key_1", "clicks", "ctr", "impressions", "position"}, r.Table.Columns)
	assert.Equal(t, "https://www.example.com/tokyo", r.Table.Value(0, "key_1"))
}

func TestQuery_EmptyResponse(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()
	mock.SetResponse("POST "+queryPath, testutil.NewJSONResponse(map[string]any{}))

	c := newTestClient(t, mock)
	r, err := c.TopQueries(context.Background(), QueryRequest{})
	require.NoError(t, err)
	assert.Equal(t, 0, r.Table.Len())
	assert.Contains(t, r.Table.Columns, KeysColumn)

	body := decodeQuery(t, mock.Requests()[0])
	assert.Equal(t, []string{"query"}, body.Dimensions)
}

func TestQuery_InvalidRequest(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()

	c := newTestClient(t, mock)
	tests := []QueryRequest{
		{StartDate: "01/03/2024"},
		{Dimensions: []string{"keyword"}},
		{StartRow: -1},
	}
	for _, req := range tests {
		_, err := c.Query(context.Background(), req)
		assert.ErrorIs(t, err, ErrInvalidRequest)
	}
	assert.Equal(t, 0, mock.GetRequestCount())
}

// pagedRows serves total rows selected by startRow and rowLimit.
func pagedRows(t *testing.T, total int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body searchconsole.SearchAnalyticsQueryRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		resp := searchconsole.SearchAnalyticsQueryResponse{}
		for i := int(body.StartRow); i < int(body.StartRow+body.RowLimit) && i < total; i++ {
			resp.Rows = append(resp.Rows, dataRow(float64(i), fmt.Sprintf("q%d", i)))
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}
}

func TestQuery_All(t *testing.T) {
	declineAll := func(context.Context, pagination.Progress) bool { return false }

	tests := []struct {
		name      string
		total     int
		req       QueryRequest
		wantRows  int
		wantStart []int64
		reason    pagination.StopReason
		truncated bool
	}{
		{
			name:      "exhausted",
			total:     12000,
			req:       QueryRequest{RowLimit: 25000},
			wantRows:  12000,
			wantStart: []int64{0, 5000, 10000},
			reason:    pagination.StopShortPage,
		},
		{
			name:      "row limit is a soft cap",
			total:     20000,
			req:       QueryRequest{RowLimit: 7000},
			wantRows:  10000,
			wantStart: []int64{0, 5000},
			reason:    pagination.StopRowLimit,
		},
		{
			name:      "small row limit",
			total:     20000,
			req:       QueryRequest{RowLimit: 100},
			wantRows:  100,
			wantStart: []int64{0},
			reason:    pagination.StopRowLimit,
		},
		{
			name:      "declined",
			total:     20000,
			req:       QueryRequest{RowLimit: 25000, Confirm: declineAll},
			wantRows:  5000,
			wantStart: []int64{0},
			reason:    pagination.StopDeclined,
			truncated: true,
		},
		{
			name:      "start row offsets every page",
			total:     6000,
			req:       QueryRequest{RowLimit: 25000, StartRow: 500},
			wantRows:  5500,
			wantStart: []int64{500, 5500},
			reason:    pagination.StopShortPage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := testutil.NewMockAPI()
			defer mock.Close()
			mock.SetHandler("POST "+queryPath, pagedRows(t, tt.total))

			c := newTestClient(t, mock)
			req := tt.req
			req.All = true
			r, err := c.TopQueries(context.Background(), req)
			require.NoError(t, err)

			assert.Equal(t, tt.wantRows, r.Table.Len())
			assert.Equal(t, tt.reason, r.Reason)
			assert.Equal(t, tt.truncated, r.Truncated)

			var starts []int64
			for _, rec := range mock.RequestsTo(queryPath) {
				starts = append(starts, decodeQuery(t, rec).StartRow)
			}
			assert.Equal(t, tt.wantStart, starts)
		})
	}
}

func TestQuery_AllFailureKeepsRows(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()

	page := searchconsole.SearchAnalyticsQueryResponse{}
	for i := 0; i < MaxRowLimit; i++ {
		page.Rows = append(page.Rows, dataRow(1, fmt.Sprintf("q%d", i)))
	}
	mock.SetSequence("POST "+queryPath,
		testutil.NewJSONResponse(page),
		testutil.NewErrorResponse(http.StatusInternalServerError, "backend error"),
	)

	c := newTestClient(t, mock)
	r, err := c.Query(context.Background(), QueryRequest{Dimensions: []string{"query"}, RowLimit: 25000, All: true})
	require.NoError(t, err)

	assert.Equal(t, MaxRowLimit, r.Table.Len())
	assert.True(t, r.Truncated)
	assert.Equal(t, pagination.StopFetchFailed, r.Reason)
	var fetchErr *pagination.FetchError
	assert.ErrorAs(t, r.Err, &fetchErr)
}

func TestDatesWithDataAndSearchAppearance(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()
	mock.SetResponse("POST "+queryPath, testutil.NewJSONResponse(searchconsole.SearchAnalyticsQueryResponse{
		Rows: []*searchconsole.ApiDataRow{dataRow(1, "2024-03-02")},
	}))

	c := newTestClient(t, mock)
	_, err := c.DatesWithData(context.Background(), QueryRequest{Dimensions: []string{"query"}, All: true})
	require.NoError(t, err)
	_, err = c.TopSearchAppearance(context.Background(), QueryRequest{})
	require.NoError(t, err)

	reqs := mock.RequestsTo(queryPath)
	require.Len(t, reqs, 2)
	assert.Equal(t, []string{"date"}, decodeQuery(t, reqs[0]).Dimensions)
	assert.Equal(t, []string{"searchAppearance"}, decodeQuery(t, reqs[1]).Dimensions)
}

func TestSites(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()
	mock.SetResponse("GET /webmasters/v3/sites", testutil.NewJSONResponse(searchconsole.SitesListResponse{
		SiteEntry: []*searchconsole.WmxSite{
			{SiteUrl: "https://www.example.com/", PermissionLevel: "siteOwner"},
			{SiteUrl: "https://blog.example.com/", PermissionLevel: "siteUnverifiedUser"},
			{SiteUrl: "sc-domain:example.com", PermissionLevel: "siteFullUser"},
			{SiteUrl: "http://old.example.com/", PermissionLevel: "siteRestrictedUser"},
		},
	}))

	c := newTestClient(t, mock)
	sites, err := c.Sites(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"https://www.example.com/", "http://old.example.com/"}, sites)
}

func TestSitemaps(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()
	mock.SetResponse("GET /webmasters/v3/sites/"+testSite+"/sitemaps", testutil.NewJSONResponse(searchconsole.SitemapsListResponse{
		Sitemap: []*searchconsole.WmxSitemap{{Path: "https://www.example.com/sitemap.xml"}},
	}))

	c := newTestClient(t, mock)
	paths, err := c.Sitemaps(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://www.example.com/sitemap.xml"}, paths)
}

func TestQuery_SingleFullPageIsTruncated(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()
	mock.SetResponse("POST "+queryPath, testutil.NewJSONResponse(searchconsole.SearchAnalyticsQueryResponse{
		Rows: []*searchconsole.ApiDataRow{dataRow(3, "a"), dataRow(2, "b")},
	}))

	c := newTestClient(t, mock)
	r, err := c.Query(context.Background(), QueryRequest{Dimensions: []string{"query"}, RowLimit: 2})
	require.NoError(t, err)

	assert.Equal(t, 1, r.Pages)
	assert.True(t, r.Truncated)
	assert.Equal(t, pagination.StopFullPage, r.Reason)
}

func TestQuery_PagingControlsNotTakenFromDefaults(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()
	rows := make([]*searchconsole.ApiDataRow, MaxRowLimit)
	for i := range rows {
		rows[i] = dataRow(1, fmt.Sprintf("row-%d", i))
	}
	mock.SetResponse("POST "+queryPath, testutil.NewJSONResponse(searchconsole.SearchAnalyticsQueryResponse{Rows: rows}))

	defaults := DefaultQuery(testNow)
	defaults.RowLimit = 2 * MaxRowLimit
	defaults.All = true
	defaults.MaxIterations = 5
	c, err := New(context.Background(), Config{
		SiteURL:  testSite,
		Defaults: defaults,
		Retry:    client.RetryConfig{MaxAttempts: 1},
	}, option.WithEndpoint(mock.URL()+"/"), option.WithHTTPClient(mock.Client()))
	require.NoError(t, err)

	r, err := c.DatesWithData(context.Background(), QueryRequest{})
	require.NoError(t, err)

	assert.Len(t, mock.RequestsTo(queryPath), 1, "DatesWithData must not paginate")
	assert.Equal(t, 1, r.Pages)
	assert.Equal(t, MaxRowLimit, r.Table.Len())
	assert.Equal(t, pagination.StopFullPage, r.Reason)
}
