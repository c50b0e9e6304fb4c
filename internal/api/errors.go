package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"mediadesk/internal/logging"
	"mediadesk/internal/services"
)

// errorResponse is the JSON body of every failed request.
type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// statusFor maps a failure marker onto an HTTP status code.
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrEngineBusy):
		return http.StatusConflict
	case errors.Is(err, services.ErrInputTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, services.ErrUnsupportedFormat):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrDecodeFailed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, services.ErrEngineInitFailed), errors.Is(err, services.ErrEngineTerminated):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(logger *slog.Logger, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("failed to encode response", logging.Error(err))
	}
}

func writeError(logger *slog.Logger, w http.ResponseWriter, status int, message string) {
	writeJSON(logger, w, status, errorResponse{Error: message})
}

// writeFailure reports a typed engine or coordinator error.
func writeFailure(logger *slog.Logger, w http.ResponseWriter, err error) {
	body := errorResponse{Error: err.Error()}
	if services.Marker(err) != nil {
		body.Kind = services.Kind(err)
	}
	writeJSON(logger, w, statusFor(err), body)
}
