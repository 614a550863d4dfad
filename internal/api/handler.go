// Package api provides HTTP handlers for the AgentDock control-plane API.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/agentdock/agentdock/internal/jobs"
	"github.com/agentdock/agentdock/internal/sessions"
	"github.com/agentdock/agentdock/internal/store"
	"github.com/go-chi/chi/v5"
)

// Handler holds the collaborators shared by all API endpoints.
type Handler struct {
	runner   *jobs.Runner
	registry *jobs.Registry
	sessions *sessions.Service
	repo     store.Repository
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(runner *jobs.Runner, registry *jobs.Registry, svc *sessions.Service, repo store.Repository) *Handler {
	return &Handler{
		runner:   runner,
		registry: registry,
		sessions: svc,
		repo:     repo,
	}
}

// RegisterRoutes registers all API routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/jobs", h.StartJob)
		r.Get("/jobs", h.ListJobs)
		r.Get("/jobs/{jobID}", h.GetJob)

		r.Post("/projects", h.CreateProject)
		r.Get("/projects", h.ListProjects)
		r.Get("/projects/{projectID}", h.GetProject)
		r.Post("/projects/{projectID}/sessions", h.CreateSession)
		r.Get("/projects/{projectID}/sessions", h.ListProjectSessions)
		r.Put("/projects/{projectID}/current-session", h.SwitchCurrentSession)

		r.Get("/sessions/running", h.ListRunningSessions)
		r.Get("/sessions/{sessionID}", h.GetSession)
		r.Patch("/sessions/{sessionID}/state", h.UpdateSessionState)
		r.Delete("/sessions/{sessionID}", h.DeleteSession)
		r.Post("/sessions/{sessionID}/messages", h.AppendMessage)
		r.Get("/sessions/{sessionID}/messages", h.GetMessages)
	})

	r.Get("/ws/jobs/{jobID}", h.WatchJob)
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}
