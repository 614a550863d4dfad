// Package domain contains core domain types for the AgentDock control plane.
package domain

import (
	"time"
)

// JobStatus is the lifecycle state of a supervised subprocess.
type JobStatus string

const (
	// JobPending means the job record exists but the subprocess has not started.
	JobPending JobStatus = "pending"
	// JobRunning means the subprocess has been launched and is being drained.
	JobRunning JobStatus = "running"
	// JobSucceeded means the subprocess exited with code 0.
	JobSucceeded JobStatus = "succeeded"
	// JobFailed means the subprocess exited non-zero, or failed to launch.
	JobFailed JobStatus = "failed"
)

// Terminal returns true if the status is a final state.
func (s JobStatus) Terminal() bool {
	return s == JobSucceeded || s == JobFailed
}

// JobSnapshot is a point-in-time, immutable copy of a job's state.
// The Log slice is a defensive copy; holders may not observe later mutation.
type JobSnapshot struct {
	ID         string     `json:"id"`
	Kind       string     `json:"kind"`
	Status     JobStatus  `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	ExitCode   *int       `json:"exit_code,omitempty"`
	Log        []string   `json:"log"`
}

// Finished returns true if the snapshot is of a completed job.
func (s JobSnapshot) Finished() bool {
	return s.Status.Terminal()
}

// JobSpec describes the subprocess a caller wants supervised.
// Kind is a display tag only; the runner never branches on it.
// Env entries overlay the parent environment; secrets must travel
// here rather than in Args, which may end up in logs and process lists.
type JobSpec struct {
	Kind       string            `json:"kind"`
	Executable string            `json:"executable"`
	Args       []string          `json:"args,omitempty"`
	WorkDir    string            `json:"workdir,omitempty"`
	Env        map[string]string `json:"env,omitempty"`
}
