package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"sidekick/internal/backend"
	"sidekick/internal/engine"
	"sidekick/pkg/types"
)

// HTTPError allows services to provide an HTTP status code for an error.
type HTTPError interface {
	error
	StatusCode() int
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Code: status})
}

// statusForError maps service errors to HTTP status codes.
func statusForError(err error) int {
	var he HTTPError
	switch {
	case errors.Is(err, engine.ErrEmptyModel):
		return http.StatusBadRequest
	case errors.Is(err, backend.ErrStopped):
		return http.StatusServiceUnavailable
	case backend.IsModelNotFound(err):
		return http.StatusNotFound
	case backend.IsCancelled(err), errors.Is(err, engine.ErrEmptyResponse),
		backend.IsRequestFailed(err), backend.IsMalformedResponse(err):
		return http.StatusBadGateway
	case errors.As(err, &he) && he.StatusCode() >= 400:
		return he.StatusCode()
	default:
		return http.StatusInternalServerError
	}
}
