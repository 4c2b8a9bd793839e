package sheets

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/sheets/v4"
)

// book is one spreadsheet held by fakeGoogle.
type book struct {
	title   string
	sheets  []string
	grids   map[string][][]any
	parents []string
	perms   []*drive.Permission
}

// fakeGoogle serves the subset of the Sheets v4 and Drive v3 APIs used by Client.
type fakeGoogle struct {
	t      *testing.T
	server *httptest.Server

	mu     sync.Mutex
	books  map[string]*book
	nextID int
	ranges []string
	failAt string
}

func newFakeGoogle(t *testing.T) *fakeGoogle {
	f := &fakeGoogle{t: t, books: map[string]*book{}}
	f.server = httptest.NewServer(f)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeGoogle) addBook(id string, rows [][]any) *book {
	f.mu.Lock()
	defer f.mu.Unlock()
	b := &book{title: id, sheets: []string{"Sheet1"}, grids: map[string][][]any{"Sheet1": rows}, parents: []string{"root"}}
	f.books[id] = b
	return b
}

func (f *fakeGoogle) grid(id string) [][]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	b := f.books[id]
	return b.grids[b.sheets[0]]
}

func (f *fakeGoogle) reply(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		f.t.Errorf("encode response: %v", err)
	}
}

func (f *fakeGoogle) fail(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprintf(w, `{"error": {"code": %d, "message": %q}}`, status, msg)
}

func (f *fakeGoogle) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := r.URL.Path
	switch {
	case r.Method == http.MethodPost && path == "/v4/spreadsheets":
		var req sheets.Spreadsheet
		json.NewDecoder(r.Body).Decode(&req)
		f.nextID++
		id := "book-" + strconv.Itoa(f.nextID)
		f.books[id] = &book{
			title:   req.Properties.Title,
			sheets:  []string{"Sheet1"},
			grids:   map[string][][]any{},
			parents: []string{"root"},
		}
		f.reply(w, sheets.Spreadsheet{
			SpreadsheetId:  id,
			SpreadsheetUrl: "https://docs.google.com/spreadsheets/d/" + id,
			Properties:     req.Properties,
			Sheets:         []*sheets.Sheet{{Properties: &sheets.SheetProperties{Title: "Sheet1"}}},
		})

	case strings.HasPrefix(path, "/v4/spreadsheets/"):
		id, tail, _ := strings.Cut(strings.TrimPrefix(path, "/v4/spreadsheets/"), "/")
		b, ok := f.books[id]
		if !ok {
			f.fail(w, http.StatusNotFound, "spreadsheet not found")
			return
		}
		if tail == "" {
			resp := sheets.Spreadsheet{SpreadsheetId: id}
			for _, s := range b.sheets {
				resp.Sheets = append(resp.Sheets, &sheets.Sheet{Properties: &sheets.SheetProperties{Title: s}})
			}
			f.reply(w, resp)
			return
		}
		f.serveValues(w, r, b, strings.TrimPrefix(tail, "values/"))

	case strings.HasPrefix(path, "/files/"):
		id, tail, _ := strings.Cut(strings.TrimPrefix(path, "/files/"), "/")
		b, ok := f.books[id]
		if !ok {
			f.fail(w, http.StatusNotFound, "file not found")
			return
		}
		switch {
		case tail == "permissions" && r.Method == http.MethodPost:
			var p drive.Permission
			json.NewDecoder(r.Body).Decode(&p)
			b.perms = append(b.perms, &p)
			f.reply(w, p)
		case r.Method == http.MethodGet:
			f.reply(w, drive.File{Id: id, Parents: b.parents})
		case r.Method == http.MethodPatch:
			remove := strings.Split(r.URL.Query().Get("removeParents"), ",")
			var parents []string
			for _, p := range b.parents {
				if !contains(remove, p) {
					parents = append(parents, p)
				}
			}
			b.parents = append(parents, r.URL.Query().Get("addParents"))
			f.reply(w, drive.File{Id: id, Parents: b.parents})
		default:
			f.fail(w, http.StatusMethodNotAllowed, r.Method)
		}

	default:
		f.fail(w, http.StatusNotFound, "no route for "+path)
	}
}

func (f *fakeGoogle) serveValues(w http.ResponseWriter, r *http.Request, b *book, rng string) {
	action := ""
	for _, suffix := range []string{":clear", ":append"} {
		if strings.HasSuffix(rng, suffix) {
			action, rng = suffix, strings.TrimSuffix(rng, suffix)
		}
	}
	f.ranges = append(f.ranges, r.Method+action+" "+rng)
	if rng == f.failAt {
		f.fail(w, http.StatusBadRequest, "unable to parse range")
		return
	}

	sheet, area, err := parseRange(rng)
	if err != nil {
		f.fail(w, http.StatusBadRequest, err.Error())
		return
	}
	grid := b.grids[sheet]

	switch {
	case action == ":clear":
		b.grids[sheet] = nil
		f.reply(w, sheets.ClearValuesResponse{ClearedRange: rng})
	case action == ":append":
		var vr sheets.ValueRange
		json.NewDecoder(r.Body).Decode(&vr)
		b.grids[sheet] = append(grid, vr.Values...)
		f.reply(w, sheets.AppendValuesResponse{})
	case r.Method == http.MethodPut:
		var vr sheets.ValueRange
		json.NewDecoder(r.Body).Decode(&vr)
		if r.URL.Query().Get("valueInputOption") != "RAW" {
			f.fail(w, http.StatusBadRequest, "valueInputOption required")
			return
		}
		for i, row := range vr.Values {
			if i < len(grid) {
				grid[i] = row
			} else {
				grid = append(grid, row)
			}
		}
		b.grids[sheet] = grid
		f.reply(w, sheets.UpdateValuesResponse{UpdatedRows: int64(len(vr.Values))})
	case r.Method == http.MethodGet:
		resp := sheets.ValueRange{Range: rng}
		first, last := 1, len(grid)
		if area != "" {
			a, z, _ := strings.Cut(area, ":")
			first, _ = strconv.Atoi(a)
			last, _ = strconv.Atoi(z)
		}
		for i := first; i <= last && i <= len(grid); i++ {
			resp.Values = append(resp.Values, grid[i-1])
		}
		f.reply(w, resp)
	default:
		f.fail(w, http.StatusMethodNotAllowed, r.Method)
	}
}

// parseRange splits 'Name'!area into the sheet name and the area.
func parseRange(rng string) (string, string, error) {
	if !strings.HasPrefix(rng, "'") {
		return "", "", fmt.Errorf("unquoted range %q", rng)
	}
	end := strings.LastIndex(rng, "'")
	if end == 0 {
		return "", "", fmt.Errorf("bad range %q", rng)
	}
	name := strings.ReplaceAll(rng[1:end], "''", "'")
	area := strings.TrimPrefix(rng[end+1:], "!")
	if area == "A1" {
		area = ""
	}
	return name, area, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
