package domain

import (
	"time"
)

// SessionState is the lifecycle state of a logical unit of agent work.
// A session may span multiple job invocations; Idle and Running can
// alternate, Completed and Failed are terminal.
type SessionState string

const (
	// SessionIdle is the initial state of a freshly created session.
	SessionIdle SessionState = "idle"
	// SessionRunning means agent work is currently in flight.
	SessionRunning SessionState = "running"
	// SessionCompleted means the session finished successfully.
	SessionCompleted SessionState = "completed"
	// SessionFailed means the session finished with an error.
	SessionFailed SessionState = "failed"
)

// Valid reports whether s is one of the defined session states.
func (s SessionState) Valid() bool {
	switch s {
	case SessionIdle, SessionRunning, SessionCompleted, SessionFailed:
		return true
	}
	return false
}

// Terminal returns true if the state permits no further automated transitions.
func (s SessionState) Terminal() bool {
	return s == SessionCompleted || s == SessionFailed
}

// Session represents a persisted unit of agent work tied to a project.
// Its life is independent of any single subprocess.
type Session struct {
	ID           string       `json:"id"`
	ProjectID    string       `json:"project_id"`
	Title        string       `json:"title"`
	State        SessionState `json:"state"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
	CompletedAt  *time.Time   `json:"completed_at,omitempty"`
	MessageCount int          `json:"message_count"`
}

// MessageRole identifies the author of a session message.
type MessageRole string

const (
	// RoleUser is a message authored by the human operator.
	RoleUser MessageRole = "user"
	// RoleAgent is a message produced by the coding agent.
	RoleAgent MessageRole = "agent"
	// RoleSystem is a message produced by the control plane itself.
	RoleSystem MessageRole = "system"
)

// Valid reports whether r is one of the defined roles.
func (r MessageRole) Valid() bool {
	switch r {
	case RoleUser, RoleAgent, RoleSystem:
		return true
	}
	return false
}

// MessageType classifies a session message's payload.
type MessageType string

const (
	// MessageText is plain conversational content.
	MessageText MessageType = "text"
	// MessageTool records a tool invocation or its result.
	MessageTool MessageType = "tool"
	// MessageStatus records a lifecycle/status note.
	MessageStatus MessageType = "status"
	// MessageError records an error surfaced during the session.
	MessageError MessageType = "error"
)

// Valid reports whether t is one of the defined message types.
func (t MessageType) Valid() bool {
	switch t {
	case MessageText, MessageTool, MessageStatus, MessageError:
		return true
	}
	return false
}

// SessionMessage is one immutable entry in a session's conversation record.
// Ordering is by CreatedAt with insertion order breaking ties.
type SessionMessage struct {
	ID          string      `json:"id"`
	SessionID   string      `json:"session_id"`
	Role        MessageRole `json:"role"`
	Content     string      `json:"content"`
	MessageType MessageType `json:"message_type"`
	CreatedAt   time.Time   `json:"created_at"`
}
