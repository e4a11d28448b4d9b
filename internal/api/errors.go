package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/mysensors-gateway/internal/bridges/mysensors"
	"github.com/nerrad567/mysensors-gateway/internal/node"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest     = "bad_request"
	ErrCodeNotFound       = "not_found"
	ErrCodeConflict       = "conflict"
	ErrCodeInternal       = "internal_error"
	ErrCodeUnavailable    = "unavailable"
	ErrCodeMethodNotAllow = "method_not_allowed"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeGatewayError maps a gateway or registry error to its HTTP status.
func writeGatewayError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, node.ErrNodeNotFound), errors.Is(err, node.ErrSensorNotFound):
		writeNotFound(w, err.Error())
	case errors.Is(err, node.ErrInvalidNodeID), errors.Is(err, mysensors.ErrInvalidMessage):
		writeBadRequest(w, err.Error())
	case errors.Is(err, node.ErrNodeExists), errors.Is(err, mysensors.ErrRebootInProgress):
		writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
	case errors.Is(err, mysensors.ErrNotConnected), errors.Is(err, mysensors.ErrWriteFailed):
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, err.Error())
	default:
		writeInternalError(w, err.Error())
	}
}
