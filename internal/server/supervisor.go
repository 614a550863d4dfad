// Package server owns the hosting runtime: the HTTP listener and the
// job runner, started and stopped as one unit under a bounded shutdown
// budget.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/agentdock/agentdock/internal/jobs"
)

// Supervisor starts and stops the hosted runtime. Start is idempotent;
// Stop attempts an orderly stop within a deadline and escalates to
// forced disposal when the budget is exceeded, so shutdown always
// converges even if a handler or subprocess refuses to finish.
type Supervisor struct {
	addr    string
	handler http.Handler
	runner  *jobs.Runner
	logger  *slog.Logger

	mu       sync.Mutex
	running  bool
	srv      *http.Server
	listener net.Listener
}

// NewSupervisor creates a supervisor for the given listen address,
// request handler, and job runner.
func NewSupervisor(addr string, handler http.Handler, runner *jobs.Runner, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{
		addr:    addr,
		handler: handler,
		runner:  runner,
		logger:  logger,
	}
}

// Start binds the listener and begins serving. It is a no-op when
// already running. On failure nothing stays acquired: the supervisor is
// left stopped and a later Start may succeed.
func (s *Supervisor) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		s.logger.Debug("Supervisor already running", "addr", s.addr)
		return nil
	}

	// Bind synchronously so address-in-use and permission errors
	// surface to the caller instead of dying inside a goroutine.
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:     s.handler,
		ReadTimeout: 30 * time.Second,
		// No write timeout: websocket watch connections are long-lived.
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		if serveErr := srv.Serve(ln); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			s.logger.Error("Server failed", "error", serveErr)
		}
	}()

	s.srv = srv
	s.listener = ln
	s.running = true
	s.logger.Info("Server listening", "addr", ln.Addr().String())
	return nil
}

// Addr returns the bound listen address, or "" when not running.
// Useful when the supervisor was started on port 0.
func (s *Supervisor) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop shuts the runtime down. An orderly stop (drain HTTP, wait for
// in-flight jobs) races the deadline; whichever finishes first decides
// the path, and forced disposal runs unconditionally afterward as a
// safety net. Errors on the forced path are logged, never returned:
// Stop must always converge. Safe to call when not running.
func (s *Supervisor) Stop(deadline time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		s.logger.Debug("Supervisor not running, nothing to stop")
		return
	}

	srv := s.srv
	s.logger.Info("Shutting down", "deadline", deadline)

	ctx, cancel := context.WithTimeout(context.Background(), deadline)
	defer cancel()

	orderly := make(chan struct{})
	go func() {
		defer close(orderly)
		if err := srv.Shutdown(ctx); err != nil {
			s.logger.Warn("Orderly HTTP shutdown incomplete", "error", err)
		}
		s.runner.Shutdown(ctx)
	}()

	select {
	case <-orderly:
		s.logger.Info("Orderly stop complete")
	case <-ctx.Done():
		s.logger.Warn("Orderly stop exceeded deadline, forcing disposal")
	}

	s.dispose()
	s.srv = nil
	s.listener = nil
	s.running = false
	s.logger.Info("Server stopped")
}

// dispose tears down resources unconditionally. Idempotent; errors are
// swallowed because there is nothing useful a caller can do with them
// on the shutdown path.
func (s *Supervisor) dispose() {
	if s.srv != nil {
		if err := s.srv.Close(); err != nil {
			s.logger.Debug("Forced server close", "error", err)
		}
	}
	if s.listener != nil {
		if err := s.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			s.logger.Debug("Forced listener close", "error", err)
		}
	}
	s.runner.KillAll()
}
