// Package sessions implements the session lifecycle state machine over
// the persistence layer. A session is a logical unit of agent work tied
// to a project; its life is independent of any subprocess, and nothing
// here touches the job subsystem — a coordinating caller drives state
// changes in response to job outcomes.
package sessions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/agentdock/agentdock/internal/domain"
	"github.com/agentdock/agentdock/internal/identity"
	"github.com/agentdock/agentdock/internal/shared"
	"github.com/agentdock/agentdock/internal/store"
)

var (
	// ErrNotFound is returned when a session or project id does not exist.
	ErrNotFound = errors.New("session not found")
	// ErrProjectNotFound is returned when the referenced project does not exist.
	ErrProjectNotFound = errors.New("project not found")
	// ErrSessionFinished is returned when a state change is requested on
	// a session already in a terminal state. Completed and Failed are
	// final: further work belongs in a new session.
	ErrSessionFinished = errors.New("session is in a terminal state")
	// ErrInvalidState is returned for a state value outside the machine.
	ErrInvalidState = errors.New("invalid session state")
)

// Service is the session state machine. It owns all state-transition
// rules; the store beneath it is plain persistence.
type Service struct {
	repo   store.Repository
	logger *slog.Logger
}

// NewService creates a session service over the given repository.
func NewService(repo store.Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger}
}

// CreateSession creates a new Idle session for a project. When title is
// empty a default is generated from the creation time.
func (s *Service) CreateSession(ctx context.Context, projectID, title string) (*domain.Session, error) {
	project, err := s.repo.GetProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("look up project: %w", err)
	}
	if project == nil {
		return nil, ErrProjectNotFound
	}

	now := time.Now()
	if title == "" {
		title = "Session " + now.Format("Jan 2 15:04")
	}

	session := &domain.Session{
		ID:        identity.NewSessionID(),
		ProjectID: projectID,
		Title:     title,
		State:     domain.SessionIdle,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	s.logger.Info("Session created", "session_id", session.ID, "project_id", projectID)
	return session, nil
}

// GetSession retrieves a session by id.
func (s *Service) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	session, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if session == nil {
		return nil, ErrNotFound
	}
	return session, nil
}

// UpdateState transitions a session to newState and returns the updated
// session. Idle and Running may alternate freely; entering Completed
// stamps CompletedAt; Completed and Failed reject any further change.
func (s *Service) UpdateState(ctx context.Context, sessionID string, newState domain.SessionState) (*domain.Session, error) {
	if !newState.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidState, newState)
	}

	var completedAt *time.Time
	if newState == domain.SessionCompleted {
		now := time.Now()
		completedAt = &now
	}

	// The store refuses the write when the session is already terminal,
	// so finality holds even when two transitions race: whichever write
	// lands a terminal state first wins and the loser is rejected here.
	updated, err := s.repo.UpdateSessionState(ctx, sessionID, newState, completedAt)
	if err != nil {
		return nil, fmt.Errorf("update session state: %w", err)
	}
	if !updated {
		session, err := s.repo.GetSession(ctx, sessionID)
		if err != nil {
			return nil, fmt.Errorf("get session: %w", err)
		}
		if session == nil {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %s is %s", ErrSessionFinished, sessionID, session.State)
	}

	s.logger.Info("Session state updated", "session_id", sessionID, "to", newState)

	session, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("reload session: %w", err)
	}
	if session == nil {
		return nil, ErrNotFound
	}
	return session, nil
}

// DeleteSession removes a session and cascades message deletion.
// Returns false, not an error, when no such session exists. Retries on
// SQLite conflicts so a delete racing message appends still converges.
func (s *Service) DeleteSession(ctx context.Context, sessionID string) (bool, error) {
	var existed bool
	err := shared.RetrySQLite(ctx, 3, 100*time.Millisecond, func() error {
		var opErr error
		existed, opErr = s.repo.DeleteSession(ctx, sessionID)
		return opErr
	})
	if err != nil {
		return false, fmt.Errorf("delete session: %w", err)
	}
	if existed {
		s.logger.Info("Session deleted", "session_id", sessionID)
	}
	return existed, nil
}

// ListByProject returns all sessions of a project in creation order.
func (s *Service) ListByProject(ctx context.Context, projectID string) ([]*domain.Session, error) {
	sessions, err := s.repo.ListSessionsByProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("list sessions by project: %w", err)
	}
	return sessions, nil
}

// ListRunning returns all currently running sessions across projects.
func (s *Service) ListRunning(ctx context.Context) ([]*domain.Session, error) {
	sessions, err := s.repo.ListRunningSessions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list running sessions: %w", err)
	}
	return sessions, nil
}

// SwitchCurrentSession points a project at one of its sessions. Returns
// false, with nothing mutated, when the session is missing or belongs
// to a different project.
func (s *Service) SwitchCurrentSession(ctx context.Context, projectID, sessionID string) (bool, error) {
	ok, err := s.repo.SetCurrentSession(ctx, projectID, sessionID)
	if err != nil {
		return false, fmt.Errorf("switch current session: %w", err)
	}
	if ok {
		s.logger.Info("Current session switched", "project_id", projectID, "session_id", sessionID)
	}
	return ok, nil
}

// AppendMessage appends one immutable entry to a session's message log.
// messageType defaults to text when empty.
func (s *Service) AppendMessage(ctx context.Context, sessionID string, role domain.MessageRole, content string, messageType domain.MessageType) (*domain.SessionMessage, error) {
	if messageType == "" {
		messageType = domain.MessageText
	}
	if !role.Valid() {
		return nil, fmt.Errorf("invalid message role %q", role)
	}
	if !messageType.Valid() {
		return nil, fmt.Errorf("invalid message type %q", messageType)
	}

	session, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if session == nil {
		return nil, ErrNotFound
	}

	msg := &domain.SessionMessage{
		ID:          identity.NewMessageID(),
		SessionID:   sessionID,
		Role:        role,
		Content:     content,
		MessageType: messageType,
		CreatedAt:   time.Now(),
	}
	if err := s.repo.AppendMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}
	return msg, nil
}

// GetMessages returns one page of a session's messages plus the total
// count at the moment of the call.
func (s *Service) GetMessages(ctx context.Context, sessionID string, skip, take int) ([]*domain.SessionMessage, int, error) {
	session, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, 0, fmt.Errorf("get session: %w", err)
	}
	if session == nil {
		return nil, 0, ErrNotFound
	}

	messages, total, err := s.repo.GetMessages(ctx, sessionID, skip, take)
	if err != nil {
		return nil, 0, fmt.Errorf("get messages: %w", err)
	}
	return messages, total, nil
}

// CountMessages returns a session's message count.
func (s *Service) CountMessages(ctx context.Context, sessionID string) (int, error) {
	count, err := s.repo.CountMessages(ctx, sessionID)
	if err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return count, nil
}
