// Package api provides error handling utilities for the REST API.
package api

import (
	"errors"
	"net/http"

	"github.com/teams-notifier/activity-api/internal/connector"
	"github.com/teams-notifier/activity-api/internal/models"
)

// APIError represents a structured API error.
type APIError struct {
	HTTPStatus int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return e.Message
}

// Common API error codes.
const (
	ErrCodeInvalidJSON         = "INVALID_JSON"
	ErrCodeValidation          = "VALIDATION_ERROR"
	ErrCodeUnknownConversation = "UNKNOWN_CONVERSATION"
	ErrCodeMessageNotFound     = "MESSAGE_NOT_FOUND"
	ErrCodeMessageDeleted      = "MESSAGE_DELETED"
	ErrCodeAuthFailed          = "AUTHENTICATION_FAILED"
	ErrCodeRemoteRejected      = "REMOTE_REJECTED"
	ErrCodeNetworkError        = "NETWORK_ERROR"
	ErrCodeStoreError          = "STORE_ERROR"
	ErrCodeInternalError       = "INTERNAL_ERROR"
)

// Predefined API errors.
var (
	ErrInvalidJSON = &APIError{
		HTTPStatus: http.StatusBadRequest,
		Code:       ErrCodeInvalidJSON,
		Message:    "Invalid JSON body",
	}
	ErrUnknownConversation = &APIError{
		HTTPStatus: http.StatusBadRequest,
		Code:       ErrCodeUnknownConversation,
		Message:    "Invalid conversation_token",
	}
	ErrMessageNotFound = &APIError{
		HTTPStatus: http.StatusNotFound,
		Code:       ErrCodeMessageNotFound,
		Message:    "Message not found",
	}
	ErrMessageDeleted = &APIError{
		HTTPStatus: http.StatusGone,
		Code:       ErrCodeMessageDeleted,
		Message:    "Message already deleted",
	}
	ErrAuthFailed = &APIError{
		HTTPStatus: http.StatusBadGateway,
		Code:       ErrCodeAuthFailed,
		Message:    "Authentication with the identity provider failed",
	}
	ErrNetworkError = &APIError{
		HTTPStatus: http.StatusServiceUnavailable,
		Code:       ErrCodeNetworkError,
		Message:    "Connector unreachable, retry later",
	}
	ErrStoreError = &APIError{
		HTTPStatus: http.StatusInternalServerError,
		Code:       ErrCodeStoreError,
		Message:    "Storage operation failed",
	}
	ErrInternalError = &APIError{
		HTTPStatus: http.StatusInternalServerError,
		Code:       ErrCodeInternalError,
		Message:    "Internal server error",
	}
)

// NewValidationError creates a validation error with a custom message.
func NewValidationError(message string) *APIError {
	return &APIError{
		HTTPStatus: http.StatusBadRequest,
		Code:       ErrCodeValidation,
		Message:    message,
	}
}

// MapDomainError maps domain errors to API errors.
func MapDomainError(err error) *APIError {
	if err == nil {
		return nil
	}

	var remote *connector.RemoteError
	if errors.As(err, &remote) {
		// Propagate the Connector's status and body for diagnostics.
		return &APIError{
			HTTPStatus: http.StatusBadGateway,
			Code:       ErrCodeRemoteRejected,
			Message:    remote.Error(),
		}
	}

	switch {
	case errors.Is(err, models.ErrInvalidPayload):
		return NewValidationError(err.Error())
	case errors.Is(err, models.ErrUnknownConversation):
		return ErrUnknownConversation
	case errors.Is(err, models.ErrMessageNotFound):
		return ErrMessageNotFound
	case errors.Is(err, models.ErrMessageDeleted):
		return ErrMessageDeleted
	case errors.Is(err, models.ErrAuthenticationFailed):
		return ErrAuthFailed
	case errors.Is(err, models.ErrRemoteRejected):
		return &APIError{
			HTTPStatus: http.StatusBadGateway,
			Code:       ErrCodeRemoteRejected,
			Message:    err.Error(),
		}
	case errors.Is(err, models.ErrNetwork):
		return ErrNetworkError
	case errors.Is(err, models.ErrStorage):
		return ErrStoreError
	default:
		return ErrInternalError
	}
}

// WriteAPIError writes an API error response.
func (h *Handler) WriteAPIError(w http.ResponseWriter, err *APIError) {
	h.writeJSON(w, err.HTTPStatus, err)
}

// HandleError maps a domain error to an API error and writes the response.
// Returns true if an error was handled, false if err was nil.
func (h *Handler) HandleError(w http.ResponseWriter, err error, operation string) bool {
	if err == nil {
		return false
	}

	apiErr := MapDomainError(err)
	if apiErr.HTTPStatus >= 500 {
		h.logger.Error().Err(err).Str("operation", operation).Msg("request failed")
	}
	h.WriteAPIError(w, apiErr)
	return true
}
