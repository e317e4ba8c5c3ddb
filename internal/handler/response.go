package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/civicgrid/dispatch/internal/domain"
	"github.com/civicgrid/dispatch/internal/service"
)

// Envelope is the standard API response wrapper.
type Envelope struct {
	Data  any       `json:"data,omitempty"`
	Error *APIError `json:"error,omitempty"`
}

// APIError represents an error in the API response.
type APIError struct {
	Code    string       `json:"code"`
	Message string       `json:"message"`
	Details []FieldError `json:"details,omitempty"`
}

// FieldError represents a field-level validation error.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// WriteJSON writes a JSON response with the standard envelope.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(Envelope{Data: data}); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// WriteError maps an error to its HTTP representation and writes it.
func WriteError(w http.ResponseWriter, err error) {
	status, apiErr := mapError(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if encErr := json.NewEncoder(w).Encode(Envelope{Error: &apiErr}); encErr != nil {
		slog.Error("failed to send error response", "error", encErr)
	}
}

func mapError(err error) (int, APIError) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, APIError{
			Code:    "not_found",
			Message: "The requested resource was not found",
		}
	case errors.Is(err, domain.ErrIssueLocked):
		return http.StatusConflict, APIError{
			Code:    "issue_locked",
			Message: err.Error(),
		}
	case errors.Is(err, domain.ErrIllegalTransition):
		return http.StatusConflict, APIError{
			Code:    "illegal_transition",
			Message: err.Error(),
		}
	case errors.Is(err, domain.ErrWorkerOnCooldown):
		return http.StatusConflict, APIError{
			Code:    "worker_on_cooldown",
			Message: err.Error(),
		}
	case errors.Is(err, domain.ErrWorkerUnavailable):
		return http.StatusConflict, APIError{
			Code:    "worker_unavailable",
			Message: err.Error(),
		}
	case errors.Is(err, domain.ErrAssignmentConflict):
		return http.StatusConflict, APIError{
			Code:    "assignment_conflict",
			Message: err.Error(),
		}
	case errors.Is(err, service.ErrNoEligibleWorker):
		return http.StatusConflict, APIError{
			Code:    "no_eligible_worker",
			Message: "No worker currently passes the cooldown rule",
		}
	case errors.Is(err, domain.ErrCommentRequired):
		return http.StatusUnprocessableEntity, APIError{
			Code:    "comment_required",
			Message: "A rejection must include a comment",
		}
	case errors.Is(err, domain.ErrClassifierUnavailable):
		return http.StatusServiceUnavailable, APIError{
			Code:    "classifier_unavailable",
			Message: "The risk classifier is unavailable",
		}
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, APIError{
			Code:    "invalid_input",
			Message: err.Error(),
		}
	default:
		var validationErr *domain.ValidationError
		if errors.As(err, &validationErr) {
			return http.StatusBadRequest, APIError{
				Code:    "validation_error",
				Message: "Validation failed",
				Details: []FieldError{
					{Field: validationErr.Field, Message: validationErr.Message},
				},
			}
		}

		slog.Error("unhandled error", "error", err)
		return http.StatusInternalServerError, APIError{
			Code:    "internal_error",
			Message: "An unexpected error occurred",
		}
	}
}
