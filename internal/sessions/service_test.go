package sessions

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/agentdock/agentdock/internal/domain"
	"github.com/agentdock/agentdock/internal/identity"
	"github.com/agentdock/agentdock/internal/store"
)

func newTestService(t *testing.T) (*Service, string) {
	t.Helper()

	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create test store: %v", err)
	}
	t.Cleanup(func() {
		if closeErr := repo.Close(); closeErr != nil {
			t.Errorf("Failed to close test store: %v", closeErr)
		}
	})

	now := time.Now()
	project := &domain.Project{
		ID:        identity.NewProjectID(),
		Name:      "demo",
		Path:      "/tmp/demo",
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := repo.CreateProject(context.Background(), project); err != nil {
		t.Fatalf("Failed to create project: %v", err)
	}

	return NewService(repo, nil), project.ID
}

func TestService_CreateSessionDefaults(t *testing.T) {
	svc, projectID := newTestService(t)
	ctx := context.Background()

	session, err := svc.CreateSession(ctx, projectID, "")
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if session.Title == "" {
		t.Error("Expected a non-empty default title")
	}
	if session.State != domain.SessionIdle {
		t.Errorf("Expected idle initial state, got %q", session.State)
	}
	if !identity.HasPrefix(session.ID, identity.SessionPrefix) {
		t.Errorf("Expected session-prefixed id, got %q", session.ID)
	}
}

func TestService_CreateSessionUnknownProject(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.CreateSession(context.Background(), "proj_missing", "title")
	if !errors.Is(err, ErrProjectNotFound) {
		t.Errorf("Expected ErrProjectNotFound, got %v", err)
	}
}

func TestService_UpdateStateCompletedStampsTime(t *testing.T) {
	svc, projectID := newTestService(t)
	ctx := context.Background()

	session, _ := svc.CreateSession(ctx, projectID, "work")

	updated, err := svc.UpdateState(ctx, session.ID, domain.SessionCompleted)
	if err != nil {
		t.Fatalf("UpdateState failed: %v", err)
	}
	if updated.State != domain.SessionCompleted {
		t.Errorf("Expected completed, got %q", updated.State)
	}
	if updated.CompletedAt == nil {
		t.Error("Expected CompletedAt to be stamped")
	}
}

func TestService_UpdateStateUnknownSession(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.UpdateState(context.Background(), "sess_missing", domain.SessionRunning)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestService_UpdateStateRejectsInvalidState(t *testing.T) {
	svc, projectID := newTestService(t)
	ctx := context.Background()

	session, _ := svc.CreateSession(ctx, projectID, "work")

	_, err := svc.UpdateState(ctx, session.ID, domain.SessionState("paused"))
	if !errors.Is(err, ErrInvalidState) {
		t.Errorf("Expected ErrInvalidState, got %v", err)
	}
}

func TestService_IdleRunningMayAlternate(t *testing.T) {
	svc, projectID := newTestService(t)
	ctx := context.Background()

	session, _ := svc.CreateSession(ctx, projectID, "restartable")

	for _, state := range []domain.SessionState{
		domain.SessionRunning, domain.SessionIdle, domain.SessionRunning,
	} {
		if _, err := svc.UpdateState(ctx, session.ID, state); err != nil {
			t.Fatalf("Transition to %q failed: %v", state, err)
		}
	}
}

func TestService_TerminalStatesAreFinal(t *testing.T) {
	svc, projectID := newTestService(t)
	ctx := context.Background()

	for _, terminal := range []domain.SessionState{domain.SessionCompleted, domain.SessionFailed} {
		session, _ := svc.CreateSession(ctx, projectID, "one-shot")
		if _, err := svc.UpdateState(ctx, session.ID, terminal); err != nil {
			t.Fatalf("Transition to %q failed: %v", terminal, err)
		}

		_, err := svc.UpdateState(ctx, session.ID, domain.SessionRunning)
		if !errors.Is(err, ErrSessionFinished) {
			t.Errorf("Expected ErrSessionFinished reviving a %q session, got %v", terminal, err)
		}
	}
}

func TestService_TerminalStateHoldsUnderConcurrentTransitions(t *testing.T) {
	svc, projectID := newTestService(t)
	ctx := context.Background()

	// Whatever the interleaving, a session that reaches Completed must
	// stay there: a racing move to Running either lands first and is
	// then completed, or arrives second and is rejected.
	for i := 0; i < 25; i++ {
		session, err := svc.CreateSession(ctx, projectID, "racy")
		if err != nil {
			t.Fatalf("CreateSession failed: %v", err)
		}

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			if _, err := svc.UpdateState(ctx, session.ID, domain.SessionCompleted); err != nil {
				t.Errorf("Transition to completed failed: %v", err)
			}
		}()
		go func() {
			defer wg.Done()
			if _, err := svc.UpdateState(ctx, session.ID, domain.SessionRunning); err != nil && !errors.Is(err, ErrSessionFinished) {
				t.Errorf("Transition to running failed unexpectedly: %v", err)
			}
		}()
		wg.Wait()

		got, err := svc.GetSession(ctx, session.ID)
		if err != nil {
			t.Fatalf("GetSession failed: %v", err)
		}
		if got.State != domain.SessionCompleted {
			t.Fatalf("Expected completed after racing transitions, got %q", got.State)
		}
		if got.CompletedAt == nil {
			t.Fatal("Expected CompletedAt on the completed session")
		}
	}
}

func TestService_DeleteSession(t *testing.T) {
	svc, projectID := newTestService(t)
	ctx := context.Background()

	session, _ := svc.CreateSession(ctx, projectID, "doomed")

	existed, err := svc.DeleteSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("DeleteSession failed: %v", err)
	}
	if !existed {
		t.Error("Expected delete of an existing session to report true")
	}

	existed, err = svc.DeleteSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("Second DeleteSession failed: %v", err)
	}
	if existed {
		t.Error("Expected delete of an absent session to report false, not error")
	}
}

func TestService_ListRunning(t *testing.T) {
	svc, projectID := newTestService(t)
	ctx := context.Background()

	idle, _ := svc.CreateSession(ctx, projectID, "idle")
	running, _ := svc.CreateSession(ctx, projectID, "running")
	if _, err := svc.UpdateState(ctx, running.ID, domain.SessionRunning); err != nil {
		t.Fatalf("UpdateState failed: %v", err)
	}

	list, err := svc.ListRunning(ctx)
	if err != nil {
		t.Fatalf("ListRunning failed: %v", err)
	}
	if len(list) != 1 || list[0].ID != running.ID {
		t.Errorf("Expected only the running session, got %+v", list)
	}

	byProject, err := svc.ListByProject(ctx, projectID)
	if err != nil {
		t.Fatalf("ListByProject failed: %v", err)
	}
	if len(byProject) != 2 {
		t.Fatalf("Expected 2 sessions for project, got %d", len(byProject))
	}
	if byProject[0].ID != idle.ID {
		t.Error("Expected creation order in project session list")
	}
}

func TestService_SwitchCurrentSession(t *testing.T) {
	svc, projectID := newTestService(t)
	ctx := context.Background()

	session, _ := svc.CreateSession(ctx, projectID, "current")

	ok, err := svc.SwitchCurrentSession(ctx, projectID, session.ID)
	if err != nil {
		t.Fatalf("SwitchCurrentSession failed: %v", err)
	}
	if !ok {
		t.Error("Expected switch to an owned session to succeed")
	}

	ok, err = svc.SwitchCurrentSession(ctx, projectID, "sess_missing")
	if err != nil {
		t.Fatalf("SwitchCurrentSession failed: %v", err)
	}
	if ok {
		t.Error("Expected switch to a missing session to report false")
	}
}

func TestService_MessageAppendAndPagination(t *testing.T) {
	svc, projectID := newTestService(t)
	ctx := context.Background()

	session, _ := svc.CreateSession(ctx, projectID, "talk")

	for _, content := range []string{"a", "b", "c"} {
		if _, err := svc.AppendMessage(ctx, session.ID, domain.RoleUser, content, ""); err != nil {
			t.Fatalf("AppendMessage failed: %v", err)
		}
	}

	page, total, err := svc.GetMessages(ctx, session.ID, 0, 2)
	if err != nil {
		t.Fatalf("GetMessages failed: %v", err)
	}
	if total != 3 {
		t.Errorf("Expected total 3, got %d", total)
	}
	if len(page) != 2 || page[0].Content != "a" || page[1].Content != "b" {
		t.Errorf("Expected page [a b], got %+v", page)
	}
	if page[0].MessageType != domain.MessageText {
		t.Errorf("Expected default text type, got %q", page[0].MessageType)
	}

	count, err := svc.CountMessages(ctx, session.ID)
	if err != nil {
		t.Fatalf("CountMessages failed: %v", err)
	}
	if count != 3 {
		t.Errorf("Expected count 3, got %d", count)
	}
}

func TestService_AppendMessageUnknownSession(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.AppendMessage(context.Background(), "sess_missing", domain.RoleUser, "hi", domain.MessageText)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestService_AppendMessageRejectsBadRole(t *testing.T) {
	svc, projectID := newTestService(t)
	ctx := context.Background()

	session, _ := svc.CreateSession(ctx, projectID, "talk")

	if _, err := svc.AppendMessage(ctx, session.ID, domain.MessageRole("robot"), "hi", domain.MessageText); err == nil {
		t.Error("Expected error for invalid role")
	}
}
