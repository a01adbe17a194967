package http

import (
	"net/http"
	"sync/atomic"

	applog "lifedash/internal/log"
	"lifedash/internal/services"
)

type syncRequest struct {
	Services []string `json:"services"`
}

type syncAllResponse struct {
	Success bool                              `json:"success"`
	Results map[string]services.ServiceResult `json:"results"`
	Summary string                            `json:"summary"`
}

type syncQueuedResponse struct {
	Success   bool     `json:"success"`
	Queued    bool     `json:"queued"`
	MessageID string   `json:"message_id"`
	Services  []string `json:"services"`
}

// handleSyncAll syncs the services in the optional body, all of them by
// default. The response is 200 even when some providers failed.
func (s *Server) handleSyncAll(w http.ResponseWriter, r *http.Request, userID string) {
	var req syncRequest
	if err := decodeJSON(w, r, &req, true); err != nil {
		writeError(w, r, applog.OpSync, err)
		return
	}
	names, err := s.deps.Sync.Resolve(req.Services)
	if err != nil {
		writeError(w, r, applog.OpSync, err)
		return
	}
	if ParseBoolParam(r.URL.Query(), "async") {
		s.queueSync(w, r, userID, names)
		return
	}

	report, err := s.deps.Sync.Sync(r.Context(), userID, names)
	if err != nil {
		writeError(w, r, applog.OpSync, err)
		return
	}
	s.countSync(report)
	writeJSON(w, http.StatusOK, syncAllResponse{
		Success: report.Succeeded() > 0,
		Results: report.Results,
		Summary: report.Summary,
	})
}

// handleSyncService syncs one provider; its failure becomes the response
// status.
func (s *Server) handleSyncService(w http.ResponseWriter, r *http.Request, userID string) {
	names, err := s.deps.Sync.Resolve([]string{r.PathValue("service")})
	if err != nil {
		writeError(w, r, applog.OpSync, err)
		return
	}
	if ParseBoolParam(r.URL.Query(), "async") {
		s.queueSync(w, r, userID, names)
		return
	}

	report, err := s.deps.Sync.Sync(r.Context(), userID, names)
	if err != nil {
		writeError(w, r, applog.OpSync, err)
		return
	}
	s.countSync(report)

	result := report.Results[names[0]]
	if !result.Success {
		writeError(w, r, applog.OpSync, result.Err())
		return
	}
	writeSuccess(w, result)
}

func (s *Server) handleSyncStatus(w http.ResponseWriter, r *http.Request, userID string) {
	status, err := s.deps.Sync.Status(r.Context(), userID)
	if err != nil {
		writeError(w, r, applog.OpRead, err)
		return
	}
	writeSuccess(w, status)
}

func (s *Server) queueSync(w http.ResponseWriter, r *http.Request, userID string, names []string) {
	if s.deps.Publisher == nil {
		writeErrorMessage(w, http.StatusServiceUnavailable, "Sync queue is not configured")
		return
	}
	id, err := s.deps.Publisher.PublishSyncRequest(r.Context(), userID, names)
	if err != nil {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Failed to queue sync request",
			applog.NewFields().WithUser(userID).WithOperation(applog.OpPublish).WithError(err, applog.ErrorTypeInternal).ToSlice()...)
		writeErrorMessage(w, http.StatusServiceUnavailable, "Sync queue unavailable")
		return
	}
	atomic.AddInt64(&s.appMetrics.syncQueued, 1)
	writeJSON(w, http.StatusAccepted, syncQueuedResponse{Success: true, Queued: true, MessageID: id, Services: names})
}
