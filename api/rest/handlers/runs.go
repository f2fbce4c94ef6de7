package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"strconv"

	"training-orchestrator/core/models"
	"training-orchestrator/core/monitoring"
	"training-orchestrator/core/repository"

	"github.com/gorilla/mux"
)

// DefaultListLimit is the page size of GET /v1/runs without a limit parameter
const DefaultListLimit = 10

// RunHandler serves the run registry over HTTP
type RunHandler struct {
	store  repository.RunStore
	logger *slog.Logger
}

// NewRunHandler creates a new run handler
func NewRunHandler(store repository.RunStore, logger *slog.Logger) *RunHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RunHandler{store: store, logger: logger}
}

// ListRuns handles GET /v1/runs
func (h *RunHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit := DefaultListLimit
	if l := r.URL.Query().Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 0 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	runs, err := h.store.ListRuns(r.Context(), limit)
	if err != nil {
		h.internalError(w, "Failed to list runs", err)
		return
	}
	if runs == nil {
		runs = []*models.Run{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
	})
}

// GetRun handles GET /v1/runs/{id}
func (h *RunHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	run, ok := h.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// GetRunEvents handles GET /v1/runs/{id}/events
func (h *RunHandler) GetRunEvents(w http.ResponseWriter, r *http.Request) {
	run, ok := h.lookup(w, r)
	if !ok {
		return
	}

	events, err := monitoring.ReadEvents(run.LogPath)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		h.internalError(w, "Failed to read events", err)
		return
	}
	if events == nil {
		events = []models.EventRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"job_id": run.ID,
		"events": events,
	})
}

// GetRunArtifacts handles GET /v1/runs/{id}/artifacts
func (h *RunHandler) GetRunArtifacts(w http.ResponseWriter, r *http.Request) {
	run, ok := h.lookup(w, r)
	if !ok {
		return
	}

	artifacts, err := h.store.ListArtifacts(r.Context(), run.ID)
	if err != nil {
		h.internalError(w, "Failed to fetch artifacts", err)
		return
	}
	if artifacts == nil {
		artifacts = []models.RunArtifact{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"job_id":    run.ID,
		"artifacts": artifacts,
	})
}

func (h *RunHandler) lookup(w http.ResponseWriter, r *http.Request) (*models.Run, bool) {
	id := mux.Vars(r)["id"]
	run, err := h.store.GetRun(r.Context(), id)
	if errors.Is(err, models.ErrRunNotFound) {
		http.Error(w, "Run not found", http.StatusNotFound)
		return nil, false
	}
	if err != nil {
		h.internalError(w, "Failed to fetch run", err)
		return nil, false
	}
	return run, true
}

func (h *RunHandler) internalError(w http.ResponseWriter, msg string, err error) {
	h.logger.Error(msg, "error", err)
	http.Error(w, msg, http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
