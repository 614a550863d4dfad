package api

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/agentdock/agentdock/internal/domain"
	"github.com/coder/websocket"
)

func wsURL(ts string, jobID string) string {
	return strings.Replace(ts, "http", "ws", 1) + "/ws/jobs/" + jobID
}

func TestAPI_WatchJobStreamsUntilTerminal(t *testing.T) {
	ts := newTestServer(t)

	resp := postJSON(t, ts.URL+"/api/jobs", domain.JobSpec{
		Kind:       "echo",
		Executable: "/bin/sh",
		Args:       []string{"-c", "echo one; sleep 0.1; echo two"},
	})
	var started domain.JobSnapshot
	decodeBody(t, resp, &started)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL(ts.URL, started.ID), nil)
	if err != nil {
		t.Fatalf("WebSocket dial failed: %v", err)
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	var last domain.JobSnapshot
	received := 0
	for {
		_, data, readErr := conn.Read(ctx)
		if readErr != nil {
			// The server closes the connection after the terminal
			// snapshot; by then we must have received at least one.
			break
		}
		if err := json.Unmarshal(data, &last); err != nil {
			t.Fatalf("Failed to decode snapshot: %v", err)
		}
		received++
		if last.Finished() {
			break
		}
	}

	if received == 0 {
		t.Fatal("Expected at least one snapshot before the stream ended")
	}
	if !last.Finished() {
		t.Fatalf("Expected a terminal snapshot last, got status %q", last.Status)
	}
	if last.Status != domain.JobSucceeded {
		t.Errorf("Expected succeeded, got %q", last.Status)
	}
	if len(last.Log) != 2 || last.Log[0] != "one" || last.Log[1] != "two" {
		t.Errorf("Expected log [one two], got %v", last.Log)
	}
	if last.ExitCode == nil || *last.ExitCode != 0 {
		t.Errorf("Expected exit code 0, got %v", last.ExitCode)
	}
}

func TestAPI_WatchUnknownJobRefusesUpgrade(t *testing.T) {
	ts := newTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL(ts.URL, "job_missing"), nil)
	if err == nil {
		_ = conn.Close(websocket.StatusNormalClosure, "")
		t.Fatal("Expected dial to fail for an unknown job")
	}
}
