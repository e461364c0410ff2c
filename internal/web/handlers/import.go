package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"sync/atomic"

	"github.com/kozaktomas/face-id/internal/importer"
)

// ImportFunc runs the configured bulk import.
type ImportFunc func(ctx context.Context) (*importer.Report, error)

// ImportHandler triggers bulk imports. Only one import runs at a time.
type ImportHandler struct {
	run     ImportFunc
	running atomic.Bool
	logger  *slog.Logger
}

// NewImportHandler creates an import handler. A nil run disables imports.
func NewImportHandler(run ImportFunc, logger *slog.Logger) *ImportHandler {
	return &ImportHandler{run: run, logger: logger}
}

// Run handles POST /api/v1/storedb.
func (h *ImportHandler) Run(w http.ResponseWriter, r *http.Request) {
	if h.run == nil {
		respondError(w, http.StatusServiceUnavailable, "bulk import is not configured")
		return
	}
	if !h.running.CompareAndSwap(false, true) {
		respondError(w, http.StatusConflict, "an import is already running")
		return
	}
	defer h.running.Store(false)

	report, err := h.run(r.Context())
	if err != nil {
		h.logger.Error("import failed", "error", err)
		respondJSON(w, http.StatusInternalServerError, map[string]any{
			"success": false,
			"error":   "database import failed",
			"report":  report,
		})
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Database migration executed",
		"report":  report,
	})
}
