package api

import (
	"errors"
	"fmt"
)

// ErrSendInFlight is returned when a send is submitted for a target that
// already has an unresolved send outstanding.
var ErrSendInFlight = errors.New("a send for this conversation is already in progress")

// ValidationError reports input rejected locally, before any network call.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// NewValidationError builds a ValidationError for a named field.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// IsValidation reports whether err is a local validation failure.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// APIError is a backend 4xx/5xx response carrying the server's detail string.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("backend error %d", e.StatusCode)
	}
	return fmt.Sprintf("backend error %d: %s", e.StatusCode, e.Detail)
}

// IsBackend reports whether err is a backend-reported failure and returns it.
func IsBackend(err error) (*APIError, bool) {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}
