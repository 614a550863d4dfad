package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/agentdock/agentdock/internal/domain"
	"github.com/agentdock/agentdock/internal/sessions"
	"github.com/go-chi/chi/v5"
)

const defaultPageSize = 50

type createSessionRequest struct {
	Title string `json:"title"`
}

// CreateSession creates a new Idle session under a project.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")

	var req createSessionRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			Error(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	session, err := h.sessions.CreateSession(r.Context(), projectID, req.Title)
	if errors.Is(err, sessions.ErrProjectNotFound) {
		Error(w, http.StatusNotFound, "project not found")
		return
	}
	if err != nil {
		slog.Error("Failed to create session", "project_id", projectID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	JSON(w, http.StatusCreated, session)
}

// ListProjectSessions returns all sessions of a project.
func (h *Handler) ListProjectSessions(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")

	list, err := h.sessions.ListByProject(r.Context(), projectID)
	if err != nil {
		slog.Error("Failed to list sessions", "project_id", projectID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}
	if list == nil {
		list = []*domain.Session{}
	}
	JSON(w, http.StatusOK, map[string]interface{}{"sessions": list})
}

// ListRunningSessions returns all running sessions across projects.
func (h *Handler) ListRunningSessions(w http.ResponseWriter, r *http.Request) {
	list, err := h.sessions.ListRunning(r.Context())
	if err != nil {
		slog.Error("Failed to list running sessions", "error", err)
		Error(w, http.StatusInternalServerError, "failed to list running sessions")
		return
	}
	if list == nil {
		list = []*domain.Session{}
	}
	JSON(w, http.StatusOK, map[string]interface{}{"sessions": list})
}

// GetSession returns one session.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	session, err := h.sessions.GetSession(r.Context(), sessionID)
	if errors.Is(err, sessions.ErrNotFound) {
		Error(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		slog.Error("Failed to get session", "session_id", sessionID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to get session")
		return
	}
	JSON(w, http.StatusOK, session)
}

type updateStateRequest struct {
	State domain.SessionState `json:"state"`
}

// UpdateSessionState transitions a session's state.
func (h *Handler) UpdateSessionState(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req updateStateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	session, err := h.sessions.UpdateState(r.Context(), sessionID, req.State)
	switch {
	case errors.Is(err, sessions.ErrNotFound):
		Error(w, http.StatusNotFound, "session not found")
		return
	case errors.Is(err, sessions.ErrInvalidState):
		Error(w, http.StatusBadRequest, "invalid session state")
		return
	case errors.Is(err, sessions.ErrSessionFinished):
		Error(w, http.StatusConflict, "session is in a terminal state")
		return
	case err != nil:
		slog.Error("Failed to update session state", "session_id", sessionID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to update session state")
		return
	}

	JSON(w, http.StatusOK, session)
}

// DeleteSession removes a session and its messages. Deleting an absent
// session is not an error; the outcome is the same.
func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	if _, err := h.sessions.DeleteSession(r.Context(), sessionID); err != nil {
		slog.Error("Failed to delete session", "session_id", sessionID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to delete session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type appendMessageRequest struct {
	Role        domain.MessageRole `json:"role"`
	Content     string             `json:"content"`
	MessageType domain.MessageType `json:"message_type"`
}

// AppendMessage appends one entry to a session's message log.
func (h *Handler) AppendMessage(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req appendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	msg, err := h.sessions.AppendMessage(r.Context(), sessionID, req.Role, req.Content, req.MessageType)
	if errors.Is(err, sessions.ErrNotFound) {
		Error(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		slog.Error("Failed to append message", "session_id", sessionID, "error", err)
		Error(w, http.StatusBadRequest, "failed to append message")
		return
	}

	JSON(w, http.StatusCreated, msg)
}

// GetMessages returns one page of a session's messages plus the total
// count at the moment of the call. Pages requested later may shift
// under concurrent appends; callers tolerate that.
func (h *Handler) GetMessages(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	skip := queryInt(r, "skip", 0)
	take := queryInt(r, "take", defaultPageSize)

	messages, total, err := h.sessions.GetMessages(r.Context(), sessionID, skip, take)
	if errors.Is(err, sessions.ErrNotFound) {
		Error(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		slog.Error("Failed to get messages", "session_id", sessionID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to get messages")
		return
	}
	if messages == nil {
		messages = []*domain.SessionMessage{}
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"messages": messages,
		"total":    total,
		"skip":     skip,
		"take":     take,
	})
}

func queryInt(r *http.Request, key string, fallback int) int {
	value := r.URL.Query().Get(key)
	if value == "" {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
