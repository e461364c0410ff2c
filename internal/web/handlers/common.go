package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/kozaktomas/face-id/internal/embedding"
	"github.com/kozaktomas/face-id/internal/facematch"
	"github.com/kozaktomas/face-id/internal/facestore"
	"github.com/kozaktomas/face-id/internal/recognizer"
)

// errInvalidRequestBody is a shared error message for invalid JSON request bodies.
const errInvalidRequestBody = "invalid request body"

// serviceName is reported by the health endpoint.
const serviceName = "Face Recognition API"

// sanitizeForLog removes newlines and carriage returns to prevent log injection.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// statusForError maps recognizer errors to HTTP status codes.
func statusForError(err error) int {
	var corrupt *facestore.CorruptStoreError
	var tooLarge *http.MaxBytesError

	// Store state goes first: a corrupt store wraps the decode error that
	// rejected it, which would otherwise map to a client error.
	switch {
	case errors.Is(err, facestore.ErrNotLoaded),
		errors.As(err, &corrupt),
		errors.Is(err, recognizer.ErrNoExtractor):
		return http.StatusServiceUnavailable
	case errors.Is(err, recognizer.ErrNoFaceFound),
		errors.Is(err, embedding.ErrUnsupportedImage),
		errors.Is(err, facestore.ErrInvalidRecord),
		errors.Is(err, facematch.ErrInvalidTolerance):
		return http.StatusBadRequest
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, facestore.ErrDimensionMismatch):
		return http.StatusUnprocessableEntity
	case errors.Is(err, facestore.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// respondRecognizerError logs server-side failures and sends the mapped
// status. Client errors carry the error text; server errors do not.
func respondRecognizerError(w http.ResponseWriter, logger *slog.Logger, op string, err error) {
	status := statusForError(err)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "op", op, "error", err)
		message := "internal server error"
		switch {
		case errors.Is(err, recognizer.ErrNoExtractor):
			message = "face detection is not configured"
		case status == http.StatusServiceUnavailable:
			message = "face store unavailable"
		}
		respondError(w, status, message)
		return
	}
	respondError(w, status, err.Error())
}

// Root handles GET /.
func Root(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}
