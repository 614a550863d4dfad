// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/agentdock/agentdock/internal/domain"
)

// Repository defines the interface for persisting projects, sessions,
// and session messages. Lookups return (nil, nil) for absent records;
// callers decide whether absence is an error.
type Repository interface {
	// CreateProject inserts a new project record.
	CreateProject(ctx context.Context, project *domain.Project) error

	// GetProject retrieves a project by id.
	GetProject(ctx context.Context, projectID string) (*domain.Project, error)

	// ListProjects returns all projects in creation order.
	ListProjects(ctx context.Context) ([]*domain.Project, error)

	// SetCurrentSession updates a project's current-session pointer.
	// The update only happens if the session exists AND belongs to the
	// project; it returns false, with nothing mutated, otherwise.
	SetCurrentSession(ctx context.Context, projectID, sessionID string) (bool, error)

	// CreateSession inserts a new session record.
	CreateSession(ctx context.Context, session *domain.Session) error

	// GetSession retrieves a session by id, with MessageCount populated.
	GetSession(ctx context.Context, sessionID string) (*domain.Session, error)

	// UpdateSessionState sets a session's state and stamps updated_at.
	// completedAt, when non-nil, is written to completed_at. Sessions
	// already in a terminal state are never modified. Returns false
	// when nothing was written: the session is missing or finished.
	UpdateSessionState(ctx context.Context, sessionID string, state domain.SessionState, completedAt *time.Time) (bool, error)

	// DeleteSession removes a session and all of its messages, and
	// clears any project current-session pointer referencing it.
	// Returns false if the session did not exist.
	DeleteSession(ctx context.Context, sessionID string) (bool, error)

	// ListSessionsByProject returns a project's sessions in creation order.
	ListSessionsByProject(ctx context.Context, projectID string) ([]*domain.Session, error)

	// ListRunningSessions returns all sessions in the running state,
	// across all projects.
	ListRunningSessions(ctx context.Context) ([]*domain.Session, error)

	// AppendMessage inserts a session message.
	AppendMessage(ctx context.Context, msg *domain.SessionMessage) error

	// GetMessages returns one page of a session's messages ordered by
	// creation time (insertion order breaking ties), plus the total
	// message count at the moment of the call.
	GetMessages(ctx context.Context, sessionID string, skip, take int) ([]*domain.SessionMessage, int, error)

	// CountMessages returns the number of messages in a session.
	CountMessages(ctx context.Context, sessionID string) (int, error)

	// DeleteMessages removes all messages of a session and returns how
	// many were deleted.
	DeleteMessages(ctx context.Context, sessionID string) (int64, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
