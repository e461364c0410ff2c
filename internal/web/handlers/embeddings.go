package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/kozaktomas/face-id/internal/constants"
	"github.com/kozaktomas/face-id/internal/facematch"
	"github.com/kozaktomas/face-id/internal/facestore"
)

type enrollEmbeddingRequest struct {
	UserID    json.RawMessage `json:"user_id"`
	Embedding []float32       `json:"embedding"`
	Metadata  json.RawMessage `json:"metadata"`
}

type identifyEmbeddingRequest struct {
	Embedding []float32 `json:"embedding"`
	Tolerance *float64  `json:"tolerance"`
	// Top, when positive, adds the closest candidates to the response.
	Top int `json:"top"`
}

// parseUserID accepts a JSON string or number.
func parseUserID(raw json.RawMessage) (facestore.UserID, error) {
	var v any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if len(raw) == 0 || dec.Decode(&v) != nil || v == nil {
		return "", fmt.Errorf("%w: user_id is required", facestore.ErrInvalidRecord)
	}
	switch id := v.(type) {
	case string:
		return facestore.ParseUserID(id)
	case json.Number:
		return facestore.ParseUserID(id.String())
	default:
		return "", fmt.Errorf("%w: user_id must be a string or number", facestore.ErrInvalidRecord)
	}
}

// EnrollEmbedding handles POST /api/v1/embeddings/enroll.
func (h *FacesHandler) EnrollEmbedding(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxEmbeddingBodySize)
	var req enrollEmbeddingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	userID, err := parseUserID(req.UserID)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	metadata, err := facestore.DecodeMetadata(req.Metadata)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	rec, err := h.recognizer.Enroll(userID, req.Embedding, metadata)
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

// IdentifyEmbedding handles POST /api/v1/embeddings/identify.
func (h *FacesHandler) IdentifyEmbedding(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxEmbeddingBodySize)
	var req identifyEmbeddingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	tolerance := h.recognizer.DefaultTolerance()
	if req.Tolerance != nil {
		tolerance = *req.Tolerance
	}

	match, err := h.recognizer.Identify(req.Embedding, tolerance)
	if err != nil {
		respondRecognizerError(w, h.logger, "identify", err)
		return
	}

	var candidates []facematch.Candidate
	if req.Top > 0 {
		candidates, err = h.recognizer.Nearest(req.Embedding, req.Top)
		if err != nil {
			respondRecognizerError(w, h.logger, "nearest", err)
			return
		}
	}
	respondMatch(w, match, candidates)
}
