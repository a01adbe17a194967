package http

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"lifedash/internal/core"
	applog "lifedash/internal/log"
)

const (
	ingestTypeBudget = "budget"
	ingestTypeHealth = "health"
)

type ingestRequest struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type healthPayload struct {
	SleepHours *float64 `json:"sleep_hours"`
	Steps      *int64   `json:"steps"`
	Glucose    *float64 `json:"glucose"`
	Calories   *int64   `json:"calories"`
	Protein    *float64 `json:"protein"`
}

func (s *Server) handleIngestInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": s.now().UTC().Format(time.RFC3339),
		"endpoints": map[string]string{
			"POST": "Ingest health or budget data",
		},
		"types": []string{ingestTypeBudget, ingestTypeHealth},
	})
}

// handleIngest accepts {"type": "budget"|"health", "data": {...}}.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request, userID string) {
	var req ingestRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(w, r, applog.OpIngest, err)
		return
	}
	data := strings.TrimSpace(string(req.Data))
	if req.Type == "" || data == "" || data == "null" {
		writeErrorMessage(w, http.StatusBadRequest, "Invalid request body. Required: type, data")
		return
	}

	switch req.Type {
	case ingestTypeBudget:
		var sub core.BudgetSubmission
		if err := unmarshalData(req.Data, &sub); err != nil {
			writeError(w, r, applog.OpIngest, err)
			return
		}
		stored, err := s.deps.Ingest.SubmitBudget(r.Context(), userID, sub)
		if err != nil {
			writeError(w, r, applog.OpIngest, err)
			return
		}
		atomic.AddInt64(&s.appMetrics.budgetIngests, 1)
		writeSuccess(w, stored)

	case ingestTypeHealth:
		var p healthPayload
		if err := unmarshalData(req.Data, &p); err != nil {
			writeError(w, r, applog.OpIngest, err)
			return
		}
		stored, err := s.deps.Ingest.SubmitHealth(r.Context(), userID, core.HealthMetrics{
			SleepHours: p.SleepHours,
			Steps:      p.Steps,
			Glucose:    p.Glucose,
			Calories:   p.Calories,
			Protein:    p.Protein,
		})
		if err != nil {
			writeError(w, r, applog.OpIngest, err)
			return
		}
		atomic.AddInt64(&s.appMetrics.healthIngests, 1)
		writeSuccess(w, stored)

	default:
		writeErrorMessage(w, http.StatusBadRequest, `Invalid type. Must be "health" or "budget"`)
	}
}

func unmarshalData(raw json.RawMessage, dst any) error {
	if err := json.Unmarshal(raw, dst); err != nil {
		if core.IsValidation(err) {
			return err
		}
		return core.NewValidationError("data", "must be a JSON object with valid fields")
	}
	return nil
}
