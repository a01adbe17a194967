package google

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	goption "google.golang.org/api/option"

	"lifedash/internal/core"
)

// fakeSheets serves the handful of Sheets API calls the client makes.
type fakeSheets struct {
	mu      sync.Mutex
	titles  []string
	values  map[string][][]any
	cleared []string
	calls   []string
}

func (f *fakeSheets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := strings.TrimPrefix(r.URL.Path, "/v4/spreadsheets/")
	f.calls = append(f.calls, r.Method+" "+path)
	w.Header().Set("Content-Type", "application/json")

	switch {
	case r.Method == http.MethodGet && path == "sheet-1":
		sheets := make([]map[string]any, 0, len(f.titles))
		for _, title := range f.titles {
			sheets = append(sheets, map[string]any{"properties": map[string]any{"title": title}})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"spreadsheetId": "sheet-1", "sheets": sheets})

	case r.Method == http.MethodPost && path == "sheet-1:batchUpdate":
		var req struct {
			Requests []struct {
				AddSheet struct {
					Properties struct{ Title string } `json:"properties"`
				} `json:"addSheet"`
			} `json:"requests"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		for _, rq := range req.Requests {
			f.titles = append(f.titles, rq.AddSheet.Properties.Title)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"spreadsheetId": "sheet-1"})

	case r.Method == http.MethodPost && strings.HasSuffix(path, ":clear"):
		rng := strings.TrimSuffix(strings.TrimPrefix(path, "sheet-1/values/"), ":clear")
		f.cleared = append(f.cleared, rng)
		_ = json.NewEncoder(w).Encode(map[string]any{"clearedRange": rng})

	case r.Method == http.MethodPut && strings.HasPrefix(path, "sheet-1/values/"):
		rng := strings.TrimPrefix(path, "sheet-1/values/")
		var vr struct {
			Values [][]any `json:"values"`
		}
		_ = json.NewDecoder(r.Body).Decode(&vr)
		f.values[sheetOf(rng)] = vr.Values
		_ = json.NewEncoder(w).Encode(map[string]any{"updatedRange": rng})

	case r.Method == http.MethodGet && strings.HasPrefix(path, "sheet-1/values/"):
		rng := strings.TrimPrefix(path, "sheet-1/values/")
		vals, ok := f.values[sheetOf(rng)]
		if !ok {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"code": 400, "message": "Unable to parse range: " + rng}})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"range": rng, "values": vals})

	default:
		http.NotFound(w, r)
	}
}

func sheetOf(rng string) string {
	name, _, _ := strings.Cut(rng, "!")
	return name
}

func newTestClient(t *testing.T, fake *fakeSheets) *Client {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	c, err := New(context.Background(), "sheet-1", "",
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithoutAuthentication())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestNew_MissingSpreadsheetID(t *testing.T) {
	_, err := New(context.Background(), " ", "Budget", goption.WithoutAuthentication())
	if err == nil || err.Error() != "missing GOOGLE_SPREADSHEET_ID" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestNewFromEnv_MissingCredentials(t *testing.T) {
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_JSON", "")
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_FILE", "")
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")

	_, err := NewFromEnv(context.Background(), "sheet-1", "Budget")
	if err == nil || !strings.Contains(err.Error(), "missing service account credentials") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestClient_ExportOverviewCreatesSheet(t *testing.T) {
	fake := &fakeSheets{titles: []string{"Budget 2024-02"}, values: map[string][][]any{}}
	c := newTestClient(t, fake)

	o := core.NewBudgetOverview("u1", "2024-03", []core.BudgetCategory{
		{Name: "Groceries", TargetAmount: core.Cents(45000), SpentAmount: core.Cents(12345)},
	})
	ref, err := c.ExportOverview(context.Background(), o)
	if err != nil {
		t.Fatalf("ExportOverview: %v", err)
	}
	if ref != "Budget 2024-03!A1:E3" {
		t.Errorf("ref = %q", ref)
	}
	if len(fake.titles) != 2 || fake.titles[1] != "Budget 2024-03" {
		t.Errorf("titles = %v, want the month sheet added", fake.titles)
	}
	if len(fake.cleared) != 1 || fake.cleared[0] != "Budget 2024-03!A:E" {
		t.Errorf("cleared = %v", fake.cleared)
	}
	rows := fake.values["Budget 2024-03"]
	if len(rows) != 3 || rows[1][0] != "Groceries" || rows[2][0] != "Total" {
		t.Errorf("written rows = %v", rows)
	}

	// A second export reuses the sheet.
	fake.calls = nil
	if _, err := c.ExportOverview(context.Background(), o); err != nil {
		t.Fatalf("second ExportOverview: %v", err)
	}
	for _, call := range fake.calls {
		if strings.Contains(call, "batchUpdate") {
			t.Errorf("sheet added twice: %v", fake.calls)
		}
	}
}

func TestClient_ReadTargets(t *testing.T) {
	fake := &fakeSheets{values: map[string][][]any{
		"Budget 2024-03": {
			{"Category", "Target", "Spent"},
			{"Groceries", 500.0, 123.45},
			{"Dining", 80.0, 0.0},
			{"Total", 580.0, 123.45},
		},
	}}
	c := newTestClient(t, fake)

	targets, err := c.ReadTargets(context.Background(), "2024-03")
	if err != nil {
		t.Fatalf("ReadTargets: %v", err)
	}
	if len(targets) != 2 || targets[0].Category != "Groceries" || targets[0].Amount.Cents != 50000 {
		t.Errorf("targets = %+v", targets)
	}

	if _, err := c.ReadTargets(context.Background(), "2024-04"); err == nil {
		t.Error("expected an error for a missing sheet")
	}
}
