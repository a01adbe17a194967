package trace

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	applog "lifedash/internal/log"
)

func TestMiddleware_GeneratesRequestID(t *testing.T) {
	m := NewMiddleware(func(*http.Request) string { return "192.0.2.1" }, applog.Discard())

	var seen string
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
		w.WriteHeader(http.StatusAccepted)
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/budget", nil))

	if !strings.HasPrefix(seen, "req_") {
		t.Errorf("request id = %q, want req_ prefix", seen)
	}
	if rr.Header().Get(HeaderRequestID) != seen {
		t.Errorf("response header = %q, want %q", rr.Header().Get(HeaderRequestID), seen)
	}
	if rr.Code != http.StatusAccepted {
		t.Errorf("status = %d", rr.Code)
	}
}

func TestMiddleware_HonorsIncomingRequestID(t *testing.T) {
	m := NewMiddleware(nil, nil)

	var seen string
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderRequestID, "upstream-123")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if seen != "upstream-123" {
		t.Errorf("request id = %q, want upstream-123", seen)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderRequestID, strings.Repeat("x", maxRequestIDLen+1))
	h.ServeHTTP(httptest.NewRecorder(), req)
	if !strings.HasPrefix(seen, "req_") {
		t.Errorf("oversized request id should be replaced, got %q", seen)
	}
}

func TestMiddleware_Metrics(t *testing.T) {
	m := NewMiddleware(nil, applog.Discard())
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/fail" {
			w.WriteHeader(http.StatusInternalServerError)
			w.WriteHeader(http.StatusOK)
		}
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ok", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/fail", nil))

	got := m.GetMetrics()
	if got.TotalRequests != 2 {
		t.Errorf("TotalRequests = %d, want 2", got.TotalRequests)
	}
	if got.ServerErrors != 1 {
		t.Errorf("ServerErrors = %d, want 1", got.ServerErrors)
	}
}

func TestGenerateRequestID_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for range 100 {
		id := GenerateRequestID()
		if seen[id] {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = true
	}
}
