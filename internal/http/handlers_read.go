package http

import (
	"net/http"
	"time"

	"lifedash/internal/core"
	applog "lifedash/internal/log"
)

const (
	defaultHealthDays   = 7
	maxHealthDays       = 366
	defaultGlucoseHours = 24
	maxGlucoseHours     = 24 * 30
)

// handleBudget returns the budget overview of ?month (default: current).
func (s *Server) handleBudget(w http.ResponseWriter, r *http.Request, userID string) {
	month, err := ParseMonthParam(r.URL.Query(), s.now())
	if err != nil {
		writeError(w, r, applog.OpRead, err)
		return
	}
	rows, err := s.deps.Reader.ListBudgetCategories(r.Context(), userID, month)
	if err != nil {
		writeError(w, r, applog.OpRead, err)
		return
	}
	writeSuccess(w, core.NewBudgetOverview(userID, month, rows))
}

// handleHealthData returns the daily metrics of the last ?days days,
// today included.
func (s *Server) handleHealthData(w http.ResponseWriter, r *http.Request, userID string) {
	days, err := ParseIntParam(r.URL.Query(), "days", defaultHealthDays, maxHealthDays)
	if err != nil {
		writeError(w, r, applog.OpRead, err)
		return
	}
	to := core.DateOf(s.now())
	from := core.Date{Time: to.AddDate(0, 0, -(days - 1))}

	rows, err := s.deps.Reader.ListHealth(r.Context(), userID, from, to)
	if err != nil {
		writeError(w, r, applog.OpRead, err)
		return
	}
	if rows == nil {
		rows = []core.HealthMetrics{}
	}
	writeSuccess(w, rows)
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request, userID string) {
	month, err := ParseMonthParam(r.URL.Query(), s.now())
	if err != nil {
		writeError(w, r, applog.OpRead, err)
		return
	}
	rows, err := s.deps.Reader.ListTransactions(r.Context(), userID, month)
	if err != nil {
		writeError(w, r, applog.OpRead, err)
		return
	}
	if rows == nil {
		rows = []core.Transaction{}
	}
	writeSuccess(w, rows)
}

func (s *Server) handleGlucose(w http.ResponseWriter, r *http.Request, userID string) {
	hours, err := ParseIntParam(r.URL.Query(), "hours", defaultGlucoseHours, maxGlucoseHours)
	if err != nil {
		writeError(w, r, applog.OpRead, err)
		return
	}
	since := s.now().Add(-time.Duration(hours) * time.Hour)

	rows, err := s.deps.Reader.ListGlucoseReadings(r.Context(), userID, since)
	if err != nil {
		writeError(w, r, applog.OpRead, err)
		return
	}
	if rows == nil {
		rows = []core.GlucoseReading{}
	}
	writeSuccess(w, rows)
}
