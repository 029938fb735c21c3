package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/propbase/propbase-engine/pkg/apperrors"
)

// ApiResponse is the standard envelope for API responses.
type ApiResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// ErrorResponse writes a JSON error response and returns any encoding error.
func ErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(map[string]string{
		"error":   errorCode,
		"message": message,
	})
}

// WriteJSON writes a JSON response and returns any encoding error.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	return json.NewEncoder(w).Encode(data)
}

// ServiceError maps pipeline errors to HTTP responses so every handler
// reports the same status for the same failure.
func ServiceError(w http.ResponseWriter, logger *zap.Logger, err error) {
	var writeErr error

	if incomplete, ok := apperrors.AsIncompleteMapping(err); ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		writeErr = json.NewEncoder(w).Encode(map[string]any{
			"error":          "incomplete_mapping",
			"message":        incomplete.Error(),
			"missing_fields": incomplete.Missing,
		})
		if writeErr != nil {
			logger.Error("Failed to write error response", zap.Error(writeErr))
		}
		return
	}

	switch {
	case errors.Is(err, apperrors.ErrSessionNotFound):
		writeErr = ErrorResponse(w, http.StatusNotFound, "session_not_found", err.Error())
	case errors.Is(err, apperrors.ErrProjectNotFound):
		writeErr = ErrorResponse(w, http.StatusNotFound, "project_not_found", err.Error())
	case errors.Is(err, apperrors.ErrNotFound):
		writeErr = ErrorResponse(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, apperrors.ErrSessionState):
		writeErr = ErrorResponse(w, http.StatusConflict, "invalid_session_state", err.Error())
	case errors.Is(err, apperrors.ErrDuplicateMapping):
		writeErr = ErrorResponse(w, http.StatusUnprocessableEntity, "duplicate_mapping", err.Error())
	case errors.Is(err, apperrors.ErrConflict):
		writeErr = ErrorResponse(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, apperrors.ErrUnsupportedFormat):
		writeErr = ErrorResponse(w, http.StatusUnsupportedMediaType, "unsupported_format", err.Error())
	case errors.Is(err, apperrors.ErrCorruptInput), errors.Is(err, apperrors.ErrEmptyInput):
		writeErr = ErrorResponse(w, http.StatusUnprocessableEntity, "unreadable_input", err.Error())
	case errors.Is(err, apperrors.ErrSourceUnreachable):
		writeErr = ErrorResponse(w, http.StatusBadGateway, "source_unreachable", err.Error())
	default:
		logger.Error("Unhandled service error", zap.Error(err))
		writeErr = ErrorResponse(w, http.StatusInternalServerError, "internal_error", err.Error())
	}

	if writeErr != nil {
		logger.Error("Failed to write error response", zap.Error(writeErr))
	}
}
