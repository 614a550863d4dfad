package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/agentdock/agentdock/internal/domain"
	"github.com/agentdock/agentdock/internal/identity"
	"github.com/go-chi/chi/v5"
)

type createProjectRequest struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// CreateProject registers a new workspace project.
func (h *Handler) CreateProject(w http.ResponseWriter, r *http.Request) {
	var req createProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		Error(w, http.StatusBadRequest, "name is required")
		return
	}

	now := time.Now()
	project := &domain.Project{
		ID:        identity.NewProjectID(),
		Name:      req.Name,
		Path:      req.Path,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := h.repo.CreateProject(r.Context(), project); err != nil {
		slog.Error("Failed to create project", "error", err)
		Error(w, http.StatusInternalServerError, "failed to create project")
		return
	}

	JSON(w, http.StatusCreated, project)
}

// ListProjects returns all projects in creation order.
func (h *Handler) ListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := h.repo.ListProjects(r.Context())
	if err != nil {
		slog.Error("Failed to list projects", "error", err)
		Error(w, http.StatusInternalServerError, "failed to list projects")
		return
	}
	if projects == nil {
		projects = []*domain.Project{}
	}
	JSON(w, http.StatusOK, map[string]interface{}{"projects": projects})
}

// GetProject returns one project.
func (h *Handler) GetProject(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")

	project, err := h.repo.GetProject(r.Context(), projectID)
	if err != nil {
		slog.Error("Failed to get project", "project_id", projectID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to get project")
		return
	}
	if project == nil {
		Error(w, http.StatusNotFound, "project not found")
		return
	}
	JSON(w, http.StatusOK, project)
}

type switchSessionRequest struct {
	SessionID string `json:"session_id"`
}

// SwitchCurrentSession updates a project's current-session pointer.
// A missing session, or one belonging to another project, yields 409
// with nothing mutated.
func (h *Handler) SwitchCurrentSession(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")

	var req switchSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SessionID == "" {
		Error(w, http.StatusBadRequest, "session_id is required")
		return
	}

	ok, err := h.sessions.SwitchCurrentSession(r.Context(), projectID, req.SessionID)
	if err != nil {
		slog.Error("Failed to switch current session", "project_id", projectID, "session_id", req.SessionID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to switch current session")
		return
	}
	if !ok {
		Error(w, http.StatusConflict, "session does not exist or belongs to another project")
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"project_id":         projectID,
		"current_session_id": req.SessionID,
	})
}
