package domain

import (
	"time"
)

// Project is a workspace the agent operates on. It holds at most one
// "current session" pointer, used by front ends to resume the last
// active session; switching the pointer is a validated operation.
type Project struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Path             string    `json:"path"`
	CurrentSessionID string    `json:"current_session_id,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// HasCurrentSession returns true if a current-session pointer is set.
func (p *Project) HasCurrentSession() bool {
	return p.CurrentSessionID != ""
}
