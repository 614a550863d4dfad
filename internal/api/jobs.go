package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/agentdock/agentdock/internal/domain"
	"github.com/agentdock/agentdock/internal/jobs"
	"github.com/go-chi/chi/v5"
)

// StartJob launches a supervised subprocess and returns its initial
// snapshot. The call never waits for the process: callers poll the
// snapshot or subscribe over the websocket.
func (h *Handler) StartJob(w http.ResponseWriter, r *http.Request) {
	var spec domain.JobSpec
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if spec.Executable == "" {
		Error(w, http.StatusBadRequest, "executable is required")
		return
	}

	handle := h.runner.StartJob(spec)

	snap, err := h.registry.Get(handle.ID)
	if err != nil {
		slog.Error("Started job missing from registry", "job_id", handle.ID, "error", err)
		Error(w, http.StatusInternalServerError, "job registration failed")
		return
	}

	JSON(w, http.StatusAccepted, snap)
}

// ListJobs returns snapshots of all registered jobs.
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string]interface{}{
		"jobs": h.registry.List(),
	})
}

// GetJob returns a point-in-time snapshot of one job.
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	snap, err := h.registry.Get(jobID)
	if errors.Is(err, jobs.ErrNotFound) {
		Error(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		slog.Error("Failed to get job", "job_id", jobID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to get job")
		return
	}

	JSON(w, http.StatusOK, snap)
}
