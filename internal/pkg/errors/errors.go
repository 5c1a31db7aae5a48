package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
)

type ErrorResponse struct {
	Error   string      `json:"error"`
	Message string      `json:"message"`
	Code    string      `json:"code"`
	Details interface{} `json:"details,omitempty"`
}

const (
	ErrCodeInvalidInput = "INVALID_INPUT"
	ErrCodeUnauthorized = "UNAUTHORIZED"
	ErrCodeForbidden    = "FORBIDDEN"
	ErrCodeNotFound     = "NOT_FOUND"
	ErrCodeConflict     = "CONFLICT"
	ErrCodeRateLimited  = "RATE_LIMITED"
	ErrCodeInternal     = "INTERNAL_ERROR"
)

var (
	// ErrNotFound is returned by repositories and services when a record
	// does not exist or belongs to another organization.
	ErrNotFound = stderrors.New("not found")

	// ErrInvalidState is returned when an operation is not allowed for the
	// record's current lifecycle state (e.g. retrying a delivered webhook).
	ErrInvalidState = stderrors.New("invalid state")
)

// ValidationError reports a configuration error in a create/update payload.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func Invalid(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

func WriteError(w http.ResponseWriter, status int, code, message string, details interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
		Code:    code,
		Details: details,
	})
}

// WriteServiceError maps an engine error onto the API error envelope.
func WriteServiceError(w http.ResponseWriter, err error) {
	var verr *ValidationError
	switch {
	case stderrors.As(err, &verr):
		WriteError(w, http.StatusBadRequest, ErrCodeInvalidInput, verr.Error(), verr)
	case stderrors.Is(err, ErrNotFound):
		WriteError(w, http.StatusNotFound, ErrCodeNotFound, "Resource not found", nil)
	case stderrors.Is(err, ErrInvalidState):
		WriteError(w, http.StatusConflict, ErrCodeConflict, err.Error(), nil)
	default:
		WriteError(w, http.StatusInternalServerError, ErrCodeInternal, "Internal server error", nil)
	}
}
