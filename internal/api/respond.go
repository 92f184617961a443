package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/lodhi7862/bringit-app/internal/store"
)

// errorResponse is the error envelope used by every endpoint.
type errorResponse struct {
	Error string `json:"error"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

func respondError(w http.ResponseWriter, r *http.Request, status int, message string) {
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "status", status, "path", r.URL.Path, "method", r.Method)
	}
	respondJSON(w, status, errorResponse{Error: message})
}

// respondStoreError maps store errors to 404/500.
func respondStoreError(w http.ResponseWriter, r *http.Request, err error, notFoundMessage string) {
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, r, http.StatusNotFound, notFoundMessage)
		return
	}
	slog.Error("store operation failed", "path", r.URL.Path, "error", err)
	respondError(w, r, http.StatusInternalServerError, "Unexpected server error")
}
