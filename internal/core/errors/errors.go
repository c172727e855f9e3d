package errors

import (
	"context"
	stderrors "errors"
	"net/http"

	"github.com/aevon-lab/sensor-rollup/internal/core/storage"
	"github.com/aevon-lab/sensor-rollup/internal/core/telemetry"
)

const (
	HttpInternalError       = "internal_error"
	HttpInvalidJsonError    = "invalid_json"
	HttpInvalidRequestError = "invalid_request"
	HttpValidationError     = "validation_failed"
	HttpPersistenceError    = "persistence_failed"
	HttpCancelledError      = "request_cancelled"
)

// ErrorResponse is the error body returned by every API endpoint.
type ErrorResponse struct {
	ErrorType string      `json:"error_type"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
}

// Classify maps an engine error to an HTTP status and error type.
func Classify(err error) (int, string) {
	switch {
	case stderrors.Is(err, telemetry.ErrValidation):
		return http.StatusBadRequest, HttpValidationError
	case stderrors.Is(err, context.Canceled), stderrors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, HttpCancelledError
	case stderrors.Is(err, storage.ErrPersistence):
		return http.StatusInternalServerError, HttpPersistenceError
	default:
		return http.StatusInternalServerError, HttpInternalError
	}
}

// NewErrorResponse builds the response body for err.
func NewErrorResponse(errorType, message string, err error) ErrorResponse {
	resp := ErrorResponse{ErrorType: errorType, Message: message}
	if err != nil {
		resp.Details = err.Error()
	}
	return resp
}
