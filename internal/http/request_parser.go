package http

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"lifedash/internal/core"
)

// HeaderUserID names the user an API request acts for.
const HeaderUserID = "x-user-id"

const maxUserIDLen = 128

// ParseUserID returns the trimmed x-user-id header.
func ParseUserID(r *http.Request) (string, error) {
	id := strings.TrimSpace(r.Header.Get(HeaderUserID))
	if id == "" {
		return "", core.NewValidationError("", "User ID required in x-user-id header")
	}
	if len(id) > maxUserIDLen {
		return "", core.NewValidationError(HeaderUserID, "is too long")
	}
	return id, nil
}

// ParseMonthParam reads ?month=YYYY-MM, defaulting to the UTC month of now.
func ParseMonthParam(query url.Values, now time.Time) (core.Month, error) {
	v := strings.TrimSpace(query.Get("month"))
	if v == "" {
		return core.CurrentMonth(now), nil
	}
	return core.ParseMonth(v)
}

// ParseIntParam reads a positive integer query parameter bounded by max.
func ParseIntParam(query url.Values, key string, def, max int) (int, error) {
	v := strings.TrimSpace(query.Get(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 0, core.NewValidationError(key, "must be a positive integer")
	}
	if n > max {
		return 0, core.NewValidationError(key, "must be at most "+strconv.Itoa(max))
	}
	return n, nil
}

// ParseBoolParam reads a boolean query parameter; anything unparsable is false.
func ParseBoolParam(query url.Values, key string) bool {
	b, _ := strconv.ParseBool(strings.TrimSpace(query.Get(key)))
	return b
}
