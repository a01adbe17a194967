package http

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": s.now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(s.appMetrics.started).Round(time.Second).String(),
	})
}

// handleReady performs readiness check with dependency verification
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]any)

	if s.deps.Reader == nil {
		checks["database"] = "not_configured"
		status, httpStatus = "not_ready", http.StatusServiceUnavailable
	} else if err := s.deps.Reader.Ping(ctx); err != nil {
		checks["database"] = fmt.Sprintf("failed: %v", err)
		status, httpStatus = "not_ready", http.StatusServiceUnavailable
	} else {
		checks["database"] = "ok"
	}

	if s.deps.Publisher != nil {
		checks["queue"] = "configured"
	} else {
		checks["queue"] = "disabled"
	}

	checks["rate_limiter"] = map[string]any{
		"active_clients": s.rateLimiter.ActiveClients(),
		"status":         "ok",
	}

	writeJSON(w, httpStatus, map[string]any{
		"status":    status,
		"timestamp": s.now().UTC().Format(time.RFC3339),
		"checks":    checks,
	})
}

// handleMetrics provides application and security metrics in plain text format
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	traceMetrics := s.traceMiddleware.GetMetrics()
	securityMetrics := s.securityDetector.GetMetrics()

	metric := func(name, kind, help string, value any) {
		fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		fmt.Fprintf(w, "# TYPE %s %s\n", name, kind)
		fmt.Fprintf(w, "%s %v\n\n", name, value)
	}

	metric("http_requests_total", "counter", "Total number of HTTP requests", traceMetrics.TotalRequests)
	metric("http_server_errors_total", "counter", "Responses with a 5xx status", traceMetrics.ServerErrors)

	fmt.Fprintf(w, "# HELP ingests_total Accepted ingest submissions\n")
	fmt.Fprintf(w, "# TYPE ingests_total counter\n")
	fmt.Fprintf(w, "ingests_total{type=\"budget\"} %d\n", atomic.LoadInt64(&s.appMetrics.budgetIngests))
	fmt.Fprintf(w, "ingests_total{type=\"health\"} %d\n\n", atomic.LoadInt64(&s.appMetrics.healthIngests))

	metric("provider_syncs_total", "counter", "Provider syncs run by the API", atomic.LoadInt64(&s.appMetrics.syncRuns))
	metric("provider_sync_failures_total", "counter", "Provider syncs that failed", atomic.LoadInt64(&s.appMetrics.syncFailures))
	metric("sync_requests_queued_total", "counter", "Sync requests published to the queue", atomic.LoadInt64(&s.appMetrics.syncQueued))

	fmt.Fprintf(w, "# HELP provider_connections_total OAuth callbacks by outcome\n")
	fmt.Fprintf(w, "# TYPE provider_connections_total counter\n")
	fmt.Fprintf(w, "provider_connections_total{result=\"connected\"} %d\n", atomic.LoadInt64(&s.appMetrics.authConnected))
	fmt.Fprintf(w, "provider_connections_total{result=\"failed\"} %d\n\n", atomic.LoadInt64(&s.appMetrics.authFailed))

	metric("rate_limit_hits_total", "counter", "Total rate limit hits", s.rateLimiter.Hits())
	metric("active_rate_limit_clients", "gauge", "Currently tracked rate limit clients", s.rateLimiter.ActiveClients())
	metric("unauthorized_requests_total", "counter", "Requests rejected for a missing or wrong API key", s.apiKey.Rejected())
	metric("suspicious_requests_total", "counter", "Total suspicious requests detected", securityMetrics.SuspiciousRequests)
	metric("uptime_seconds", "gauge", "Application uptime in seconds", int64(time.Since(s.appMetrics.started).Seconds()))
}
