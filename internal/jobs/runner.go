package jobs

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/agentdock/agentdock/internal/domain"
)

// maxLineSize bounds a single output line read from a subprocess.
// Longer lines are split by the scanner rather than aborting the drain.
const maxLineSize = 1024 * 1024

// JobHandle is returned by StartJob. Done is closed once the job has
// reached a terminal status and its record holds the final snapshot.
type JobHandle struct {
	ID   string
	Done <-chan struct{}
}

// Runner spawns one OS subprocess per job and drains its output into
// the job's log buffer. It reports exclusively through the Registry:
// callers observe jobs via snapshots, never through the runner itself.
// The runner is generic over any subprocess; it never branches on Kind.
type Runner struct {
	registry *Registry
	logger   *slog.Logger

	mu     sync.Mutex
	live   map[string]*os.Process
	active sync.WaitGroup
}

// NewRunner creates a runner that records jobs in registry.
func NewRunner(registry *Registry, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		registry: registry,
		logger:   logger,
		live:     make(map[string]*os.Process),
	}
}

// StartJob registers a Pending job and returns immediately. The
// subprocess is launched and supervised on a separate goroutine; all
// outcomes, including failure to launch, are recorded on the job record
// rather than returned here.
func (r *Runner) StartJob(spec domain.JobSpec) JobHandle {
	j := r.registry.create(spec.Kind)
	done := make(chan struct{})

	r.active.Add(1)
	go func() {
		defer r.active.Done()
		defer close(done)
		r.run(j, spec)
	}()

	r.logger.Info("Job accepted", "job_id", j.id, "kind", spec.Kind, "executable", spec.Executable)
	return JobHandle{ID: j.id, Done: done}
}

// run drives one job from Running to a terminal status.
func (r *Runner) run(j *job, spec domain.JobSpec) {
	j.markRunning()

	cmd := exec.Command(spec.Executable, spec.Args...)
	cmd.Dir = spec.WorkDir
	cmd.Env = mergeEnv(os.Environ(), spec.Env)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		r.launchFailed(j, err)
		return
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		r.launchFailed(j, err)
		return
	}

	if err := cmd.Start(); err != nil {
		r.launchFailed(j, err)
		return
	}

	r.mu.Lock()
	r.live[j.id] = cmd.Process
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		delete(r.live, j.id)
		r.mu.Unlock()
	}()

	// Drain stdout and stderr on independent goroutines so a stalled
	// reader on one stream never blocks the other. Within a stream,
	// program order is preserved; interleaving across the two streams
	// is best-effort only.
	var drains sync.WaitGroup
	drains.Add(2)
	go r.drain(j, "stdout", stdout, &drains)
	go r.drain(j, "stderr", stderr, &drains)

	// Three-way join: both drains done AND the process exited.
	drains.Wait()
	waitErr := cmd.Wait()

	code := cmd.ProcessState.ExitCode()
	status := domain.JobSucceeded
	if code != 0 {
		status = domain.JobFailed
	}
	if waitErr != nil && code == 0 {
		// Wait failed without a usable exit code (e.g. I/O copy error).
		r.logger.Warn("Job wait error", "job_id", j.id, "error", waitErr)
		status = domain.JobFailed
	}

	j.markFinished(status, &code)
	r.logger.Info("Job finished", "job_id", j.id, "status", status, "exit_code", code)
}

// launchFailed records a job that could not even be started: a
// diagnostic log line, Failed status, and no exit code.
func (r *Runner) launchFailed(j *job, err error) {
	j.log.Append("launch failure: " + err.Error())
	j.markFinished(domain.JobFailed, nil)
	r.logger.Error("Job launch failed", "job_id", j.id, "error", err)
}

// drain reads one output stream line by line into the job's log.
// Blank and whitespace-only lines are dropped to reduce noise; all
// other lines are preserved verbatim. Read errors are logged and do
// not fail the job — completion is decided by the process exit.
func (r *Runner) drain(j *job, stream string, rd io.Reader, wg *sync.WaitGroup) {
	defer wg.Done()

	scanner := bufio.NewScanner(rd)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		j.log.Append(line)
	}
	if err := scanner.Err(); err != nil {
		r.logger.Warn("Job stream read error", "job_id", j.id, "stream", stream, "error", err)
	}
}

// mergeEnv overlays overrides onto the inherited environment. Secrets
// travel through this overlay only, never through argv.
func mergeEnv(parent []string, overrides map[string]string) []string {
	if len(overrides) == 0 {
		return parent
	}

	env := make([]string, 0, len(parent)+len(overrides))
	for _, kv := range parent {
		key, _, ok := strings.Cut(kv, "=")
		if ok {
			if _, overridden := overrides[key]; overridden {
				continue
			}
		}
		env = append(env, kv)
	}
	for k, v := range overrides {
		env = append(env, k+"="+v)
	}
	return env
}

// Shutdown waits for in-flight jobs to finish until ctx is done, then
// kills whatever is still running. It always converges: kill errors are
// logged and swallowed so the shutdown path can never hang on a
// misbehaving subprocess.
func (r *Runner) Shutdown(ctx context.Context) {
	finished := make(chan struct{})
	go func() {
		r.active.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return
	case <-ctx.Done():
	}

	r.logger.Warn("Shutdown deadline reached, killing remaining jobs")
	r.KillAll()

	// The drains unblock once the processes die; wait for bookkeeping.
	<-finished
}

// KillAll forcibly terminates every live subprocess. Idempotent.
func (r *Runner) KillAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, proc := range r.live {
		if err := proc.Kill(); err != nil {
			r.logger.Debug("Failed to kill job process", "job_id", id, "error", err)
		} else {
			r.logger.Info("Killed job process", "job_id", id)
		}
	}
}
