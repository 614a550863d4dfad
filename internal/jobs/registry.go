package jobs

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/agentdock/agentdock/internal/domain"
	"github.com/agentdock/agentdock/internal/identity"
)

// ErrNotFound is returned when a job id is not present in the registry.
var ErrNotFound = errors.New("job not found")

// job is the mutable record for one supervised subprocess. The registry
// owns it; the runner driving the subprocess is its only status writer.
// Status fields are guarded by mu; the log has its own lock so appends
// from the drain goroutines never contend with registry lookups.
type job struct {
	id        string
	kind      string
	createdAt time.Time
	log       *LogBuffer

	mu         sync.Mutex
	status     domain.JobStatus
	startedAt  *time.Time
	finishedAt *time.Time
	exitCode   *int
}

// markRunning transitions Pending → Running and stamps the start time.
func (j *job) markRunning() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status != domain.JobPending {
		return
	}
	now := time.Now()
	j.status = domain.JobRunning
	j.startedAt = &now
}

// markFinished records the terminal status. exitCode is nil when the
// subprocess never ran (launch failure).
func (j *job) markFinished(status domain.JobStatus, exitCode *int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status.Terminal() {
		return
	}
	now := time.Now()
	j.status = status
	j.finishedAt = &now
	j.exitCode = exitCode
}

// snapshot returns an immutable copy for callers, including a defensive
// copy of the log so concurrent drain appends cannot corrupt a reader.
func (j *job) snapshot() domain.JobSnapshot {
	j.mu.Lock()
	snap := domain.JobSnapshot{
		ID:        j.id,
		Kind:      j.kind,
		Status:    j.status,
		CreatedAt: j.createdAt,
	}
	if j.startedAt != nil {
		t := *j.startedAt
		snap.StartedAt = &t
	}
	if j.finishedAt != nil {
		t := *j.finishedAt
		snap.FinishedAt = &t
	}
	if j.exitCode != nil {
		c := *j.exitCode
		snap.ExitCode = &c
	}
	j.mu.Unlock()

	// Log snapshot taken outside the status lock; the buffer has its own.
	snap.Log = j.log.Snapshot()
	return snap
}

// Registry is a thread-safe store of job records. It is an injected,
// explicitly scoped instance rather than a package-level singleton so
// tests can construct isolated registries.
type Registry struct {
	mu     sync.RWMutex
	jobs   map[string]*job
	logCap int
}

// NewRegistry creates an empty registry whose jobs retain at most
// logCap output lines each.
func NewRegistry(logCap int) *Registry {
	if logCap <= 0 {
		logCap = DefaultLogCap
	}
	return &Registry{
		jobs:   make(map[string]*job),
		logCap: logCap,
	}
}

// create allocates and registers a Pending job record.
func (r *Registry) create(kind string) *job {
	j := &job{
		id:        identity.NewJobID(),
		kind:      kind,
		createdAt: time.Now(),
		status:    domain.JobPending,
		log:       NewLogBuffer(r.logCap),
	}

	r.mu.Lock()
	r.jobs[j.id] = j
	r.mu.Unlock()
	return j
}

// Get returns a point-in-time snapshot of the job, or ErrNotFound.
func (r *Registry) Get(id string) (domain.JobSnapshot, error) {
	r.mu.RLock()
	j, ok := r.jobs[id]
	r.mu.RUnlock()
	if !ok {
		return domain.JobSnapshot{}, ErrNotFound
	}
	return j.snapshot(), nil
}

// List returns snapshots of every registered job in creation order,
// with the id as tiebreak so equal-time jobs still list deterministically.
func (r *Registry) List() []domain.JobSnapshot {
	r.mu.RLock()
	records := make([]*job, 0, len(r.jobs))
	for _, j := range r.jobs {
		records = append(records, j)
	}
	r.mu.RUnlock()

	snaps := make([]domain.JobSnapshot, 0, len(records))
	for _, j := range records {
		snaps = append(snaps, j.snapshot())
	}
	sort.Slice(snaps, func(i, k int) bool {
		if snaps[i].CreatedAt.Equal(snaps[k].CreatedAt) {
			return snaps[i].ID < snaps[k].ID
		}
		return snaps[i].CreatedAt.Before(snaps[k].CreatedAt)
	})
	return snaps
}

// Len returns the number of registered jobs.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.jobs)
}

// PruneFinished removes finished jobs whose completion time is older
// than the retention window and returns how many were removed. Running
// and pending jobs are never pruned.
func (r *Registry) PruneFinished(retention time.Duration) int {
	threshold := time.Now().Add(-retention)

	r.mu.Lock()
	defer r.mu.Unlock()

	pruned := 0
	for id, j := range r.jobs {
		j.mu.Lock()
		expired := j.status.Terminal() && j.finishedAt != nil && j.finishedAt.Before(threshold)
		j.mu.Unlock()
		if expired {
			delete(r.jobs, id)
			pruned++
		}
	}
	return pruned
}
