package core

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by lookups that match no row.
	ErrNotFound = errors.New("not found")
)

// ValidationError reports a missing or malformed field. Nothing has been
// written when it is returned.
type ValidationError struct {
	Field   string
	Message string
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// StorageError wraps a failure of the persistence layer, including timeouts.
type StorageError struct {
	Op  string
	Err error
}

func NewStorageError(op string, err error) *StorageError {
	return &StorageError{Op: op, Err: err}
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// UpstreamError reports that a third-party provider could not be reached or
// answered with an error. Temporary marks failures worth retrying.
type UpstreamError struct {
	Provider   string
	StatusCode int
	Temporary  bool
	Err        error
}

func NewUpstreamError(provider string, statusCode int, err error) *UpstreamError {
	return &UpstreamError{
		Provider:   provider,
		StatusCode: statusCode,
		Temporary:  statusCode == 0 || statusCode == 429 || statusCode >= 500,
		Err:        err,
	}
}

func (e *UpstreamError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("upstream %s unavailable (status %d): %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("upstream %s unavailable: %v", e.Provider, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

func IsStorage(err error) bool {
	var s *StorageError
	return errors.As(err, &s)
}

func IsUpstream(err error) bool {
	var u *UpstreamError
	return errors.As(err, &u)
}

// IsRetryable reports whether an upstream failure is transient.
func IsRetryable(err error) bool {
	var u *UpstreamError
	if errors.As(err, &u) {
		return u.Temporary
	}
	return false
}
