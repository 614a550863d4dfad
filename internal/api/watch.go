package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/agentdock/agentdock/internal/domain"
	"github.com/agentdock/agentdock/internal/jobs"
	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
)

// watchInterval is how often a watcher is pushed a fresh job snapshot.
const watchInterval = 500 * time.Millisecond

// WatchJob upgrades to a WebSocket and pushes snapshots of one job
// until the job reaches a terminal status or the client disconnects.
// Snapshots are full copies: a slow client never blocks the runner.
func (h *Handler) WatchJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	if _, err := h.registry.Get(jobID); errors.Is(err, jobs.ErrNotFound) {
		Error(w, http.StatusNotFound, "job not found")
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "job_id", jobID, "error", err)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "watch ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "job_id", jobID, "error", closeErr)
		}
	}()

	slog.Info("Job watch started", "job_id", jobID, "ip", r.RemoteAddr)

	ctx := r.Context()
	ticker := time.NewTicker(watchInterval)
	defer ticker.Stop()

	var last domain.JobSnapshot
	first := true
	for {
		snap, err := h.registry.Get(jobID)
		if err != nil {
			// Pruned from the registry while being watched.
			return
		}

		if first || snapshotChanged(last, snap) {
			if err := writeJSON(ctx, ws, snap); err != nil {
				slog.Debug("Job watch write failed", "job_id", jobID, "error", err)
				return
			}
			last = snap
			first = false
		}

		if snap.Finished() {
			return
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}

// snapshotChanged reports whether a new push is warranted.
func snapshotChanged(prev, next domain.JobSnapshot) bool {
	return prev.Status != next.Status || len(prev.Log) != len(next.Log)
}

func writeJSON(ctx context.Context, ws *websocket.Conn, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return ws.Write(ctx, websocket.MessageText, data)
}
