// Package apierr maps application errors onto HTTP responses.
package apierr

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mcoot/userdata/internal/model"
)

// APIError represents an API error response
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse wraps an APIError
type ErrorResponse struct {
	Error APIError `json:"error"`
}

// Common error codes
const (
	CodeInvalidRequest     = "INVALID_REQUEST"
	CodeInvalidHandshake   = "INVALID_HANDSHAKE"
	CodeInvalidIdentifier  = "INVALID_IDENTIFIER"
	CodeInvalidToken       = "INVALID_TOKEN"
	CodeNotFound           = "NOT_FOUND"
	CodeDuplicateEntity    = "DUPLICATE_ENTITY"
	CodeUnknownParent      = "UNKNOWN_PARENT"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeThrottled          = "THROTTLED"
	CodeUnavailable        = "UNAVAILABLE"
	CodeInternalError      = "INTERNAL_ERROR"
)

// httpError combines an HTTP status code with an APIError
type httpError struct {
	status   int
	apiError APIError
}

// Error implements error interface
func (e *httpError) Error() string {
	return e.apiError.Message
}

// WriteError writes an error response to the response writer
func WriteError(w http.ResponseWriter, err error) {
	he := toHTTPError(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(he.status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: he.apiError})
}

// toHTTPError converts an error to an httpError
func toHTTPError(err error) *httpError {
	var he *httpError
	if errors.As(err, &he) {
		return he
	}

	switch {
	case errors.Is(err, model.ErrInvalidHandshake):
		return &httpError{http.StatusBadRequest, APIError{CodeInvalidHandshake, err.Error()}}
	case errors.Is(err, model.ErrInvalidIdentifier):
		return &httpError{http.StatusBadRequest, APIError{CodeInvalidIdentifier, err.Error()}}
	case errors.Is(err, model.ErrInvalidToken):
		return &httpError{http.StatusBadRequest, APIError{CodeInvalidToken, "Invalid or expired token"}}
	case errors.Is(err, model.ErrNotFound):
		return &httpError{http.StatusNotFound, APIError{CodeNotFound, err.Error()}}
	case errors.Is(err, model.ErrDuplicateEntity):
		return &httpError{http.StatusConflict, APIError{CodeDuplicateEntity, err.Error()}}
	case errors.Is(err, model.ErrUnknownParent):
		return &httpError{http.StatusConflict, APIError{CodeUnknownParent, err.Error()}}
	case errors.Is(err, model.ErrNotAuthenticated):
		return &httpError{http.StatusUnauthorized, APIError{CodeUnauthorized, "Authentication required"}}
	case errors.Is(err, model.ErrAuth):
		return &httpError{http.StatusUnauthorized, APIError{CodeInvalidCredentials, model.ErrAuth.Error()}}
	case errors.Is(err, model.ErrThrottled):
		return &httpError{http.StatusTooManyRequests, APIError{CodeThrottled, "Too many failed attempts"}}
	case errors.Is(err, model.ErrTransientConnection):
		return &httpError{http.StatusServiceUnavailable, APIError{CodeUnavailable, "Storage temporarily unavailable"}}
	default:
		return &httpError{http.StatusInternalServerError, APIError{CodeInternalError, "Internal server error"}}
	}
}

// NewInvalidRequestError creates an invalid request error
func NewInvalidRequestError(message string) error {
	return &httpError{http.StatusBadRequest, APIError{CodeInvalidRequest, message}}
}

// NewInternalError creates an internal server error
func NewInternalError() error {
	return &httpError{http.StatusInternalServerError, APIError{CodeInternalError, "Internal server error"}}
}
