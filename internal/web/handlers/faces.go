package handlers

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/face-id/internal/config"
	"github.com/kozaktomas/face-id/internal/facematch"
	"github.com/kozaktomas/face-id/internal/facestore"
	"github.com/kozaktomas/face-id/internal/recognizer"
)

// FacesHandler handles face enrollment and identification endpoints.
type FacesHandler struct {
	config     *config.Config
	recognizer *recognizer.Recognizer
	logger     *slog.Logger
}

// NewFacesHandler creates a new faces handler.
func NewFacesHandler(cfg *config.Config, rec *recognizer.Recognizer, logger *slog.Logger) *FacesHandler {
	return &FacesHandler{
		config:     cfg,
		recognizer: rec,
		logger:     logger,
	}
}

// readImage parses the multipart form and returns the "image" file. It
// writes the error response itself and returns false on failure.
func (h *FacesHandler) readImage(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	maxBytes := h.config.Defaults.Upload.MaxBytes
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("image exceeds %d bytes", maxBytes))
			return nil, false
		}
		respondError(w, http.StatusBadRequest, "failed to parse multipart form")
		return nil, false
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		respondError(w, http.StatusBadRequest, "No image file provided")
		return nil, false
	}
	defer file.Close()

	if header.Filename == "" {
		respondError(w, http.StatusBadRequest, "No file selected")
		return nil, false
	}
	if !h.config.AllowedExtension(header.Filename) {
		respondError(w, http.StatusBadRequest, "Invalid file type. Allowed: "+
			strings.Join(h.config.Defaults.Upload.AllowedExtensions, ", "))
		return nil, false
	}

	data, err := io.ReadAll(file)
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read image")
		return nil, false
	}
	return data, true
}

// Add handles POST /api/v1/faces/add.
func (h *FacesHandler) Add(w http.ResponseWriter, r *http.Request) {
	image, ok := h.readImage(w, r)
	if !ok {
		return
	}
	defer r.MultipartForm.RemoveAll()

	userID := strings.TrimSpace(r.FormValue("user_id"))
	if userID == "" {
		respondError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	metadata := facestore.Metadata{}
	for key, values := range r.MultipartForm.Value {
		if key == "user_id" || len(values) == 0 {
			continue
		}
		metadata[key] = values[0]
	}

	rec, err := h.recognizer.EnrollImage(r.Context(), facestore.UserID(userID), image, metadata)
	if errors.Is(err, recognizer.ErrNoFaceFound) {
		respondJSON(w, http.StatusBadRequest, map[string]any{
			"success": false,
			"error":   "Failed to add face. No face detected in image.",
		})
		return
	}
	if err != nil {
		respondRecognizerError(w, h.logger, "enroll", err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]any{
		"success":  true,
		"message":  "Face added successfully",
		"user_id":  rec.UserID,
		"metadata": rec.Metadata,
	})
}

// Identify handles POST /api/v1/faces/identify.
func (h *FacesHandler) Identify(w http.ResponseWriter, r *http.Request) {
	image, ok := h.readImage(w, r)
	if !ok {
		return
	}
	defer r.MultipartForm.RemoveAll()

	tolerance := h.recognizer.DefaultTolerance()
	if raw := strings.TrimSpace(r.FormValue("tolerance")); raw != "" {
		t, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			respondError(w, http.StatusBadRequest, "tolerance must be a number")
			return
		}
		tolerance = t
	}

	match, err := h.recognizer.IdentifyImage(r.Context(), image, tolerance)
	if err != nil {
		respondRecognizerError(w, h.logger, "identify", err)
		return
	}
	respondMatch(w, match, nil)
}

// respondMatch writes the identification result; candidates are included
// only when requested.
func respondMatch(w http.ResponseWriter, match *facematch.Match, candidates []facematch.Candidate) {
	var body map[string]any
	status := http.StatusOK
	if match == nil {
		status = http.StatusNotFound
		body = map[string]any{
			"identified": false,
			"message":    "No matching face found",
		}
	} else {
		body = map[string]any{
			"identified": true,
			"user_id":    match.UserID,
			"confidence": match.Confidence,
			"distance":   match.Distance,
			"metadata":   match.Metadata,
		}
	}
	if candidates != nil {
		body["candidates"] = candidates
	}
	respondJSON(w, status, body)
}

// List handles GET /api/v1/faces. The optional q parameter filters by
// user ID or name.
func (h *FacesHandler) List(w http.ResponseWriter, r *http.Request) {
	entries, err := h.recognizer.List(r.URL.Query().Get("q"))
	if err != nil {
		respondRecognizerError(w, h.logger, "list", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"count": len(entries),
		"faces": entries,
	})
}

// Delete handles DELETE /api/v1/faces/{userID}.
func (h *FacesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	err := h.recognizer.Remove(facestore.UserID(userID))
	if errors.Is(err, facestore.ErrNotFound) {
		respondJSON(w, http.StatusNotFound, map[string]any{
			"success": false,
			"message": "No face found for user_id: " + userID,
		})
		return
	}
	if err != nil {
		respondRecognizerError(w, h.logger, "remove", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Deleted face(s) for user_id: " + userID,
	})
}

// Clear handles POST /api/v1/faces/clear.
func (h *FacesHandler) Clear(w http.ResponseWriter, r *http.Request) {
	if err := h.recognizer.Clear(); err != nil {
		respondRecognizerError(w, h.logger, "clear", err)
		return
	}
	h.logger.Warn("store cleared over HTTP", "remote", sanitizeForLog(r.RemoteAddr))
	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "All faces cleared from store",
	})
}

// Health handles GET /health.
func (h *FacesHandler) Health(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":         "healthy",
		"service":        serviceName,
		"faces_in_store": h.recognizer.Count(),
	})
}
