package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"lifedash/internal/core"
	applog "lifedash/internal/log"
	"lifedash/internal/providers"
)

const maxBodyBytes = 1 << 20

type errorResponse struct {
	Error string `json:"error"`
}

type successResponse struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeSuccess(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, successResponse{Success: true, Data: data})
}

func writeErrorMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// errorStatus maps an error to its HTTP status and the message shown to the
// client. Storage and internal details stay in the logs.
func errorStatus(err error) (int, string) {
	var upstream *core.UpstreamError
	switch {
	case core.IsValidation(err):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, providers.ErrUnknownProvider), errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, providers.ErrNotConnected):
		return http.StatusBadRequest, err.Error()
	case core.IsStorage(err):
		return http.StatusInternalServerError, "Database error"
	case errors.As(err, &upstream):
		return http.StatusBadGateway, fmt.Sprintf("Upstream service unavailable: %s", upstream.Provider)
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

func errorType(status int, err error) string {
	switch {
	case status == http.StatusBadRequest:
		return applog.ErrorTypeValidation
	case status == http.StatusNotFound:
		return applog.ErrorTypeNotFound
	case core.IsStorage(err):
		return applog.ErrorTypeDatabase
	case core.IsUpstream(err):
		return applog.ErrorTypeUpstream
	default:
		return applog.ErrorTypeInternal
	}
}

// writeError answers with the status of err. Server side failures are logged
// with the request's logger.
func writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, msg := errorStatus(err)
	logger := applog.FromContext(r.Context())
	fields := applog.NewFields().WithOperation(op).WithError(err, errorType(status, err))
	if status >= 500 {
		logger.ErrorContext(r.Context(), "Request failed", fields.ToSlice()...)
	} else {
		logger.WarnContext(r.Context(), "Request rejected", fields.ToSlice()...)
	}
	writeErrorMessage(w, status, msg)
}

// decodeJSON reads a bounded JSON body into dst. An empty body leaves dst
// untouched when allowEmpty is set.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any, allowEmpty bool) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	err := json.NewDecoder(r.Body).Decode(dst)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, io.EOF) && allowEmpty:
		return nil
	case core.IsValidation(err):
		return err
	default:
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return core.NewValidationError("body", "request body too large")
		}
		return core.NewValidationError("body", "must be valid JSON")
	}
}
