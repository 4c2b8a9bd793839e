package pagination

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/rs/zerolog"
)

// pageSource serves fixed pages and records the cursors it was called with.
type pageSource struct {
	pages   [][]int
	failAt  int // 1-based call number that fails (0 = never)
	cursors []Cursor
}

func (s *pageSource) fetch(_ context.Context, c Cursor, _ struct{}) ([]int, error) {
	s.cursors = append(s.cursors, c)
	call := len(s.cursors)
	if s.failAt > 0 && call == s.failAt {
		return nil, errors.New("remote returned 503")
	}
	if call > len(s.pages) {
		return nil, nil
	}
	return s.pages[call-1], nil
}

// countingReporter records how often each report was made.
type countingReporter struct {
	fetchErrors   []*FetchError
	boundExceeded []Progress
}

func (r *countingReporter) ReportFetchError(_ context.Context, err *FetchError) {
	r.fetchErrors = append(r.fetchErrors, err)
}

func (r *countingReporter) ReportBoundExceeded(_ context.Context, p Progress) {
	r.boundExceeded = append(r.boundExceeded, p)
}

func seq(from, n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = from + i
	}
	return out
}

func quiet() Option {
	return WithLogger(zerolog.Nop())
}

func TestFetchAll_ShortPageCompletes(t *testing.T) {
	src := &pageSource{pages: [][]int{seq(0, 3), seq(3, 3), seq(6, 2)}}
	rep := &countingReporter{}

	res, err := FetchAll(context.Background(), src.fetch, struct{}{}, Config{PageSize: 3, MaxIterations: 10}, WithReporter(rep), quiet())
	if err != nil {
		t.Fatalf("FetchAll returned error: %v", err)
	}

	if diff := cmp.Diff(seq(0, 8), res.Rows); diff != "" {
		t.Errorf("Rows mismatch (-want +got):\n%s", diff)
	}
	if res.Truncated {
		t.Error("Expected Truncated = false")
	}
	if res.Reason != StopShortPage {
		t.Errorf("Reason = %s, want %s", res.Reason, StopShortPage)
	}
	if res.Pages != 3 {
		t.Errorf("Pages = %d, want 3", res.Pages)
	}
	if len(rep.fetchErrors) != 0 || len(rep.boundExceeded) != 0 {
		t.Errorf("Unexpected reports: %+v", rep)
	}
}

func TestFetchAll_CursorAdvancesByFetchedRows(t *testing.T) {
	src := &pageSource{pages: [][]int{seq(0, 4), seq(4, 4), seq(8, 1)}}

	_, err := FetchAll(context.Background(), src.fetch, struct{}{}, Config{PageSize: 4, MaxIterations: 10}, quiet())
	if err != nil {
		t.Fatalf("FetchAll returned error: %v", err)
	}

	want := []Cursor{
		{Offset: 0, PageSize: 4, Iteration: 0},
		{Offset: 4, PageSize: 4, Iteration: 1},
		{Offset: 8, PageSize: 4, Iteration: 2},
	}
	if diff := cmp.Diff(want, src.cursors); diff != "" {
		t.Errorf("Cursors mismatch (-want +got):\n%s", diff)
	}
}

func TestFetchAll_MaxIterationsTruncates(t *testing.T) {
	src := &pageSource{pages: [][]int{seq(0, 2), seq(2, 2), seq(4, 2), seq(6, 2)}}
	rep := &countingReporter{}

	res, err := FetchAll(context.Background(), src.fetch, struct{}{}, Config{PageSize: 2, MaxIterations: 3}, WithReporter(rep), quiet())
	if err != nil {
		t.Fatalf("FetchAll returned error: %v", err)
	}

	if diff := cmp.Diff(seq(0, 6), res.Rows); diff != "" {
		t.Errorf("Rows mismatch (-want +got):\n%s", diff)
	}
	if !res.Truncated {
		t.Error("Expected Truncated = true")
	}
	if res.Reason != StopMaxIterations {
		t.Errorf("Reason = %s, want %s", res.Reason, StopMaxIterations)
	}
	if len(src.cursors) != 3 {
		t.Errorf("Fetch calls = %d, want 3", len(src.cursors))
	}
	if len(rep.boundExceeded) != 1 {
		t.Errorf("ReportBoundExceeded calls = %d, want 1", len(rep.boundExceeded))
	}
}

func TestFetchAll_RowLimitBelowPageSize(t *testing.T) {
	src := &pageSource{pages: [][]int{seq(0, 10), seq(10, 10)}}

	res, err := FetchAll(context.Background(), src.fetch, struct{}{}, Config{PageSize: 10, MaxIterations: 5, RowLimit: 4}, quiet())
	if err != nil {
		t.Fatalf("FetchAll returned error: %v", err)
	}

	// A whole page comes back, not exactly RowLimit rows.
	if len(res.Rows) != 10 {
		t.Errorf("Rows = %d, want 10", len(res.Rows))
	}
	if res.Reason != StopRowLimit {
		t.Errorf("Reason = %s, want %s", res.Reason, StopRowLimit)
	}
	if res.Truncated {
		t.Error("Expected Truncated = false when stopping at the row limit")
	}
	if len(src.cursors) != 1 {
		t.Errorf("Fetch calls = %d, want 1", len(src.cursors))
	}
}

func TestFetchAll_ShortPageWinsOverRowLimit(t *testing.T) {
	src := &pageSource{pages: [][]int{seq(0, 5), seq(5, 3)}}

	res, err := FetchAll(context.Background(), src.fetch, struct{}{}, Config{PageSize: 5, MaxIterations: 2, RowLimit: 8}, quiet())
	if err != nil {
		t.Fatalf("FetchAll returned error: %v", err)
	}

	if res.Reason != StopShortPage {
		t.Errorf("Reason = %s, want %s", res.Reason, StopShortPage)
	}
	if res.Truncated {
		t.Error("Expected Truncated = false")
	}
}

func TestFetchAll_FetchErrorReturnsPartial(t *testing.T) {
	for _, k := range []int{1, 2, 3} {
		src := &pageSource{pages: [][]int{seq(0, 2), seq(2, 2), seq(4, 2), seq(6, 2)}, failAt: k}
		rep := &countingReporter{}

		res, err := FetchAll(context.Background(), src.fetch, struct{}{}, Config{PageSize: 2, MaxIterations: 10}, WithReporter(rep), WithSource("test"), quiet())
		if err != nil {
			t.Fatalf("k=%d: FetchAll returned error: %v", k, err)
		}

		if diff := cmp.Diff(seq(0, 2*(k-1)), res.Rows, cmpopts.EquateEmpty()); diff != "" {
			t.Errorf("k=%d: Rows mismatch (-want +got):\n%s", k, diff)
		}
		if !res.Truncated {
			t.Errorf("k=%d: expected Truncated = true", k)
		}
		if res.Reason != StopFetchFailed {
			t.Errorf("k=%d: Reason = %s, want %s", k, res.Reason, StopFetchFailed)
		}
		if len(rep.fetchErrors) != 1 {
			t.Fatalf("k=%d: ReportFetchError calls = %d, want 1", k, len(rep.fetchErrors))
		}

		var fetchErr *FetchError
		if !errors.As(res.Err, &fetchErr) {
			t.Fatalf("k=%d: Result.Err = %v, want *FetchError", k, res.Err)
		}
		if fetchErr.Iteration != k-1 || fetchErr.Offset != 2*(k-1) || fetchErr.Source != "test" {
			t.Errorf("k=%d: FetchError = %+v", k, fetchErr)
		}
	}
}

func TestFetchAll_PanickingFetcherIsContained(t *testing.T) {
	fetch := func(context.Context, Cursor, struct{}) ([]int, error) {
		panic("decoder blew up")
	}
	rep := &countingReporter{}

	res, err := FetchAll(context.Background(), fetch, struct{}{}, Config{PageSize: 2, MaxIterations: 2}, WithReporter(rep), quiet())
	if err != nil {
		t.Fatalf("FetchAll returned error: %v", err)
	}
	if res.Reason != StopFetchFailed || !res.Truncated {
		t.Errorf("Result = %+v, want truncated fetch failure", res)
	}
	if len(rep.fetchErrors) != 1 {
		t.Errorf("ReportFetchError calls = %d, want 1", len(rep.fetchErrors))
	}
}

func TestFetchAll_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	src := &pageSource{pages: [][]int{seq(0, 2)}}

	res, err := FetchAll(ctx, src.fetch, struct{}{}, Config{PageSize: 2, MaxIterations: 2}, quiet(), WithReporter(&countingReporter{}))
	if err != nil {
		t.Fatalf("FetchAll returned error: %v", err)
	}
	if !errors.Is(res.Err, context.Canceled) {
		t.Errorf("Result.Err = %v, want context.Canceled", res.Err)
	}
	if len(src.cursors) != 0 {
		t.Errorf("Fetch calls = %d, want 0", len(src.cursors))
	}
}

func TestFetchAll_ConfirmDeclined(t *testing.T) {
	src := &pageSource{pages: [][]int{seq(0, 2), seq(2, 2), seq(4, 2)}}
	asked := 0
	confirm := func(_ context.Context, p Progress) bool {
		asked++
		return p.Pages < 2
	}

	res, err := FetchAll(context.Background(), src.fetch, struct{}{}, Config{PageSize: 2, MaxIterations: 10, Confirm: confirm}, quiet())
	if err != nil {
		t.Fatalf("FetchAll returned error: %v", err)
	}

	if len(res.Rows) != 4 {
		t.Errorf("Rows = %d, want 4", len(res.Rows))
	}
	if res.Reason != StopDeclined || !res.Truncated {
		t.Errorf("Result = %+v, want truncated declined", res)
	}
	if asked != 2 {
		t.Errorf("Confirm calls = %d, want 2", asked)
	}
}

func TestFetchAll_ConfirmProgress(t *testing.T) {
	src := &pageSource{pages: [][]int{seq(0, 3), seq(3, 3)}}
	var got []Progress
	confirm := func(_ context.Context, p Progress) bool {
		got = append(got, p)
		return true
	}

	_, err := FetchAll(context.Background(), src.fetch, struct{}{}, Config{PageSize: 3, MaxIterations: 10, Confirm: confirm}, quiet(), WithSource("sheets"))
	if err != nil {
		t.Fatalf("FetchAll returned error: %v", err)
	}

	want := []Progress{
		{Source: "sheets", Pages: 1, Rows: 3, LastPage: 3, Offset: 3, PageSize: 3, Iteration: 0},
		{Source: "sheets", Pages: 2, Rows: 6, LastPage: 3, Offset: 6, PageSize: 3, Iteration: 1},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Progress mismatch (-want +got):\n%s", diff)
	}
}

func TestFetchAll_ConfirmNotAskedAfterShortPage(t *testing.T) {
	src := &pageSource{pages: [][]int{seq(0, 1)}}
	confirm := func(context.Context, Progress) bool {
		t.Error("Confirm should not be called after a short page")
		return true
	}

	if _, err := FetchAll(context.Background(), src.fetch, struct{}{}, Config{PageSize: 2, MaxIterations: 10, Confirm: confirm}, quiet()); err != nil {
		t.Fatalf("FetchAll returned error: %v", err)
	}
}

func TestFetchAll_ClampsPageSize(t *testing.T) {
	src := &pageSource{pages: [][]int{seq(0, 5), seq(5, 1)}}

	res, err := FetchAll(context.Background(), src.fetch, struct{}{}, Config{PageSize: 100, MaxPageSize: 5, MaxIterations: 10}, quiet())
	if err != nil {
		t.Fatalf("FetchAll returned error: %v", err)
	}

	if src.cursors[0].PageSize != 5 {
		t.Errorf("Cursor.PageSize = %d, want 5", src.cursors[0].PageSize)
	}
	// A page of 5 is full after clamping, so a second call happens.
	if res.Pages != 2 || len(res.Rows) != 6 {
		t.Errorf("Pages = %d, Rows = %d, want 2 and 6", res.Pages, len(res.Rows))
	}
}

func TestFetchAll_PassesParamsThrough(t *testing.T) {
	type params struct {
		QueryID int
		Filter  string
	}
	want := params{QueryID: 2880, Filter: "station=shibuya"}

	fetch := func(_ context.Context, _ Cursor, p params) ([]string, error) {
		if p != want {
			t.Errorf("params = %+v, want %+v", p, want)
		}
		return nil, nil
	}

	if _, err := FetchAll(context.Background(), fetch, want, Config{PageSize: 1, MaxIterations: 1}, quiet()); err != nil {
		t.Fatalf("FetchAll returned error: %v", err)
	}
}

func TestFetchAll_Idempotent(t *testing.T) {
	run := func() Result[int] {
		src := &pageSource{pages: [][]int{seq(0, 3), seq(3, 3), seq(6, 1)}}
		res, err := FetchAll(context.Background(), src.fetch, struct{}{}, Config{PageSize: 3, MaxIterations: 10}, quiet())
		if err != nil {
			t.Fatalf("FetchAll returned error: %v", err)
		}
		return res
	}

	if diff := cmp.Diff(run(), run()); diff != "" {
		t.Errorf("Results differ between runs (-first +second):\n%s", diff)
	}
}

func TestFetchAll_KeywordBatchBoundary(t *testing.T) {
	keywords := make([]string, 1800)
	for i := range keywords {
		keywords[i] = "kw"
	}
	fetch := func(_ context.Context, c Cursor, all []string) ([]string, error) {
		if c.Offset >= len(all) {
			return nil, nil
		}
		end := c.Offset + c.PageSize
		if end > len(all) {
			end = len(all)
		}
		return all[c.Offset:end], nil
	}

	t.Run("empty fourth call completes", func(t *testing.T) {
		res, err := FetchAll(context.Background(), fetch, keywords, Config{PageSize: 600, MaxIterations: 10}, quiet())
		if err != nil {
			t.Fatalf("FetchAll returned error: %v", err)
		}
		if len(res.Rows) != 1800 {
			t.Errorf("Rows = %d, want 1800", len(res.Rows))
		}
		if res.Truncated {
			t.Error("Expected Truncated = false")
		}
		// Three full batches do not signal completion; the empty fourth call does.
		if res.Pages != 4 {
			t.Errorf("Pages = %d, want 4", res.Pages)
		}
	})

	t.Run("three iterations cannot confirm completion", func(t *testing.T) {
		res, err := FetchAll(context.Background(), fetch, keywords, Config{PageSize: 600, MaxIterations: 3}, quiet(), WithReporter(&countingReporter{}))
		if err != nil {
			t.Fatalf("FetchAll returned error: %v", err)
		}
		if len(res.Rows) != 1800 {
			t.Errorf("Rows = %d, want 1800", len(res.Rows))
		}
		if !res.Truncated || res.Reason != StopMaxIterations {
			t.Errorf("Result reason = %s truncated = %v, want max_iterations and true", res.Reason, res.Truncated)
		}
	})
}

func TestFetchAll_InvalidConfig(t *testing.T) {
	noop := func(context.Context, Cursor, struct{}) ([]int, error) {
		t.Error("fetch must not be called for an invalid config")
		return nil, nil
	}

	tests := []struct {
		name   string
		config Config
		fetch  PageFunc[int, struct{}]
	}{
		{name: "zero page size", config: Config{PageSize: 0, MaxIterations: 1}, fetch: noop},
		{name: "negative page size", config: Config{PageSize: -5, MaxIterations: 1}, fetch: noop},
		{name: "zero max iterations", config: Config{PageSize: 10}, fetch: noop},
		{name: "negative max page size", config: Config{PageSize: 10, MaxIterations: 1, MaxPageSize: -1}, fetch: noop},
		{name: "negative row limit", config: Config{PageSize: 10, MaxIterations: 1, RowLimit: -1}, fetch: noop},
		{name: "nil fetch", config: Config{PageSize: 10, MaxIterations: 1}, fetch: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FetchAll(context.Background(), tt.fetch, struct{}{}, tt.config, quiet())
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("err = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestReporters_FanOut(t *testing.T) {
	a, b := &countingReporter{}, &countingReporter{}
	rs := Reporters{a, b, MetricsReporter{}, ReporterFuncs{}}

	rs.ReportFetchError(context.Background(), &FetchError{Source: "x", Err: errors.New("boom")})
	rs.ReportBoundExceeded(context.Background(), Progress{Source: "x"})

	for i, r := range []*countingReporter{a, b} {
		if len(r.fetchErrors) != 1 || len(r.boundExceeded) != 1 {
			t.Errorf("reporter %d got %d errors, %d bounds, want 1 each", i, len(r.fetchErrors), len(r.boundExceeded))
		}
	}
}
