package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestLimiter(perMinute int, now *time.Time) *Limiter {
	rl := NewLimiter(Config{RequestsPerMinute: perMinute, CleanupInterval: time.Hour})
	rl.now = func() time.Time { return *now }
	return rl
}

func TestLimiter_Allow(t *testing.T) {
	now := time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC)
	rl := newTestLimiter(3, &now)
	defer rl.Stop()

	for i := 0; i < 3; i++ {
		if !rl.Allow("10.0.0.1") {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if rl.Allow("10.0.0.1") {
		t.Error("fourth request in the window should be rejected")
	}
	if !rl.Allow("10.0.0.2") {
		t.Error("other clients have their own window")
	}

	// Steady traffic must not extend the window.
	now = now.Add(61 * time.Second)
	if !rl.Allow("10.0.0.1") {
		t.Error("request in a new window should be allowed")
	}
	if rl.Hits() != 1 {
		t.Errorf("Hits() = %d, want 1", rl.Hits())
	}
}

func TestLimiter_CleanupStaleEntries(t *testing.T) {
	now := time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC)
	rl := newTestLimiter(10, &now)
	defer rl.Stop()

	rl.Allow("a")
	now = now.Add(5 * time.Minute)
	rl.Allow("b")
	now = now.Add(6 * time.Minute)

	rl.cleanupStaleEntries()
	if got := rl.ActiveClients(); got != 1 {
		t.Errorf("ActiveClients() = %d, want 1", got)
	}
}

func TestLimiter_Middleware(t *testing.T) {
	now := time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC)
	rl := newTestLimiter(1, &now)
	defer rl.Stop()
	rl.Stop() // idempotent

	h := rl.Middleware(func(r *http.Request) string { return r.Header.Get("X-Client") }, nil)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) }))

	codes := []int{}
	for i := 0; i < 2; i++ {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/ingest", nil)
		req.Header.Set("X-Client", "c1")
		h.ServeHTTP(rr, req)
		codes = append(codes, rr.Code)
		if rr.Code == http.StatusTooManyRequests && rr.Header().Get("Retry-After") != "60" {
			t.Error("missing Retry-After header")
		}
	}
	if codes[0] != http.StatusNoContent || codes[1] != http.StatusTooManyRequests {
		t.Errorf("status codes = %v", codes)
	}
}
