package server

import (
	"net/http"
	"testing"
	"time"

	"github.com/agentdock/agentdock/internal/domain"
	"github.com/agentdock/agentdock/internal/jobs"
)

func newTestSupervisor(handler http.Handler) *Supervisor {
	registry := jobs.NewRegistry(100)
	runner := jobs.NewRunner(registry, nil)
	if handler == nil {
		handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
	}
	return NewSupervisor("127.0.0.1:0", handler, runner, nil)
}

func TestSupervisor_StartServesAndStops(t *testing.T) {
	sup := newTestSupervisor(nil)

	if err := sup.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	resp, err := http.Get("http://" + sup.Addr() + "/")
	if err != nil {
		t.Fatalf("Request to running supervisor failed: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200, got %d", resp.StatusCode)
	}

	addr := sup.Addr()
	sup.Stop(2 * time.Second)

	if _, err := http.Get("http://" + addr + "/"); err == nil {
		t.Error("Expected requests to fail after Stop")
	}
}

func TestSupervisor_StartIsIdempotent(t *testing.T) {
	sup := newTestSupervisor(nil)

	if err := sup.Start(); err != nil {
		t.Fatalf("First Start failed: %v", err)
	}
	addr := sup.Addr()

	if err := sup.Start(); err != nil {
		t.Errorf("Second Start must be a no-op, got %v", err)
	}
	if sup.Addr() != addr {
		t.Errorf("Second Start changed the listener: %s vs %s", addr, sup.Addr())
	}

	sup.Stop(time.Second)
}

func TestSupervisor_StopWhenNotRunning(t *testing.T) {
	sup := newTestSupervisor(nil)
	// Must be a no-op, not a panic or a hang.
	sup.Stop(time.Second)
}

func TestSupervisor_StartFailureLeavesNothingAcquired(t *testing.T) {
	first := newTestSupervisor(nil)
	if err := first.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer first.Stop(time.Second)

	// Second supervisor on the same concrete address must fail to bind
	// and must stay stopped.
	second := NewSupervisor(first.Addr(), http.NotFoundHandler(), jobs.NewRunner(jobs.NewRegistry(10), nil), nil)
	if err := second.Start(); err == nil {
		t.Fatal("Expected bind failure on an occupied address")
	}
	// Stop on the failed supervisor is a clean no-op.
	second.Stop(time.Second)
}

func TestSupervisor_StopHonorsDeadline(t *testing.T) {
	// Handler that never finishes on its own: orderly shutdown cannot
	// complete while the request is in flight.
	stuck := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(30 * time.Second):
		case <-r.Context().Done():
		}
	})

	sup := newTestSupervisor(stuck)
	if err := sup.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	addr := sup.Addr()

	requestDone := make(chan struct{})
	go func() {
		defer close(requestDone)
		resp, err := http.Get("http://" + addr + "/")
		if err == nil {
			_ = resp.Body.Close()
		}
	}()

	// Give the request time to reach the handler.
	time.Sleep(100 * time.Millisecond)

	start := time.Now()
	sup.Stop(500 * time.Millisecond)
	elapsed := time.Since(start)

	if elapsed > 3*time.Second {
		t.Errorf("Stop took %v, expected forced disposal near the 500ms deadline", elapsed)
	}

	select {
	case <-requestDone:
	case <-time.After(5 * time.Second):
		t.Error("In-flight request not released by forced disposal")
	}

	// Resources are disposed: the same address can be bound again.
	again := NewSupervisor(addr, http.NotFoundHandler(), jobs.NewRunner(jobs.NewRegistry(10), nil), nil)
	if err := again.Start(); err != nil {
		t.Fatalf("Start after forced stop failed: %v", err)
	}
	again.Stop(time.Second)
}

func TestSupervisor_StopKillsRemainingJobs(t *testing.T) {
	registry := jobs.NewRegistry(100)
	runner := jobs.NewRunner(registry, nil)
	sup := NewSupervisor("127.0.0.1:0", http.NotFoundHandler(), runner, nil)

	if err := sup.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	handle := runner.StartJob(domain.JobSpec{
		Kind:       "sleep",
		Executable: "/bin/sh",
		Args:       []string{"-c", "sleep 30"},
	})

	start := time.Now()
	sup.Stop(500 * time.Millisecond)
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("Stop took %v with a long-running job", elapsed)
	}

	select {
	case <-handle.Done:
	case <-time.After(5 * time.Second):
		t.Error("Job not terminated by forced disposal")
	}
}
