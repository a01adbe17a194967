package http

import (
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"

	applog "lifedash/internal/log"
)

// handleAuthStart returns the consent URL for {provider}.
func (s *Server) handleAuthStart(w http.ResponseWriter, r *http.Request, userID string) {
	provider := strings.ToLower(r.PathValue("provider"))

	state, err := s.deps.States.Issue(provider, userID)
	if err != nil {
		writeError(w, r, applog.OpAuthorize, err)
		return
	}
	authURL, err := s.deps.Connector.AuthCodeURL(provider, state)
	if err != nil {
		writeError(w, r, applog.OpAuthorize, err)
		return
	}

	applog.FromContext(r.Context()).InfoContext(r.Context(), "Provider consent started",
		applog.NewFields().WithUser(userID).WithProvider(provider).WithOperation(applog.OpAuthorize).ToSlice()...)
	writeJSON(w, http.StatusOK, map[string]string{"authUrl": authURL})
}

// handleAuthCallback finishes the consent and redirects to the dashboard. The
// user comes from the signed state, not from a header.
func (s *Server) handleAuthCallback(w http.ResponseWriter, r *http.Request) {
	provider := strings.ToLower(r.PathValue("provider"))
	query := r.URL.Query()
	logger := applog.FromContext(r.Context()).With(applog.FieldProvider, provider, applog.FieldOperation, applog.OpCallback)
	failed := callbackKey(provider) + "_auth_failed"

	if e := query.Get("error"); e != "" {
		logger.WarnContext(r.Context(), "Provider denied consent", "provider_error", e)
		s.redirectDashboard(w, r, "error", failed)
		return
	}

	code := query.Get("code")
	realmID := query.Get("realmId")
	if code == "" || (provider == "quickbooks" && realmID == "") {
		s.redirectDashboard(w, r, "error", "missing_auth_data")
		return
	}

	userID, err := s.deps.States.Redeem(provider, query.Get("state"))
	if err != nil {
		atomic.AddInt64(&s.appMetrics.authFailed, 1)
		logger.WarnContext(r.Context(), "Rejected OAuth state", applog.FieldError, err,
			applog.FieldErrorType, applog.ErrorTypeAuth)
		s.redirectDashboard(w, r, "error", failed)
		return
	}
	logger = logger.With(applog.FieldUserID, userID)

	if err := s.deps.Connector.Exchange(r.Context(), provider, userID, code, realmID); err != nil {
		atomic.AddInt64(&s.appMetrics.authFailed, 1)
		status, _ := errorStatus(err)
		logger.ErrorContext(r.Context(), "Token exchange failed", applog.FieldError, err,
			applog.FieldErrorType, errorType(status, err))
		s.redirectDashboard(w, r, "error", failed)
		return
	}
	atomic.AddInt64(&s.appMetrics.authConnected, 1)

	// Pull the new provider's data right away when a worker is available.
	if s.deps.Publisher != nil {
		if _, err := s.deps.Publisher.PublishSyncRequest(r.Context(), userID, []string{provider}); err != nil {
			logger.WarnContext(r.Context(), "Initial sync not queued", applog.FieldError, err)
		} else {
			atomic.AddInt64(&s.appMetrics.syncQueued, 1)
		}
	}

	s.redirectDashboard(w, r, "success", callbackKey(provider)+"_connected")
}

func (s *Server) redirectDashboard(w http.ResponseWriter, r *http.Request, key, value string) {
	target, err := url.Parse(s.deps.DashboardURL)
	if err != nil || s.deps.DashboardURL == "" {
		target = &url.URL{Path: "/"}
	}
	q := target.Query()
	q.Set(key, value)
	target.RawQuery = q.Encode()
	http.Redirect(w, r, target.String(), http.StatusFound)
}

// callbackKey turns a service name into the dashboard's query value prefix.
func callbackKey(provider string) string {
	return strings.ReplaceAll(provider, "-", "_")
}
