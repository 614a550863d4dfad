// Package identity generates and validates the opaque ids used across
// the control plane. Ids are UUIDs carrying a short type prefix so that
// a bare id in a log line or API payload is self-describing.
package identity

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

const (
	// JobPrefix marks ids of supervised subprocess invocations.
	JobPrefix = "job"
	// ProjectPrefix marks ids of workspace projects.
	ProjectPrefix = "proj"
	// SessionPrefix marks ids of agent work sessions.
	SessionPrefix = "sess"
	// MessagePrefix marks ids of session message entries.
	MessagePrefix = "msg"
)

var idPattern = regexp.MustCompile(`^[a-z]{1,8}_[a-f0-9]{32}$`)

func newID(prefix string) string {
	id := uuid.New()
	// Hex without dashes keeps ids copy-paste friendly in shells and URLs.
	return prefix + "_" + strings.ReplaceAll(id.String(), "-", "")
}

// NewJobID returns a fresh job id.
func NewJobID() string { return newID(JobPrefix) }

// NewProjectID returns a fresh project id.
func NewProjectID() string { return newID(ProjectPrefix) }

// NewSessionID returns a fresh session id.
func NewSessionID() string { return newID(SessionPrefix) }

// NewMessageID returns a fresh message id.
func NewMessageID() string { return newID(MessagePrefix) }

// Valid reports whether id is structurally a control-plane id.
// It does not check that the referenced record exists.
func Valid(id string) bool {
	return idPattern.MatchString(id)
}

// HasPrefix reports whether id carries the given type prefix.
func HasPrefix(id, prefix string) bool {
	return Valid(id) && strings.HasPrefix(id, prefix+"_")
}
