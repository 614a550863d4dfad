package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/agentdock/agentdock/internal/domain"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS projects (
		project_id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		path TEXT NOT NULL,
		current_session_id TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sessions (
		session_id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		title TEXT NOT NULL,
		state TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		completed_at INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_project ON sessions(project_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_sessions_running ON sessions(state) WHERE state = 'running';

	CREATE TABLE IF NOT EXISTS session_messages (
		message_id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		role TEXT NOT NULL,
		message_type TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_session ON session_messages(session_id, created_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// CreateProject inserts a new project record.
func (s *SQLiteStore) CreateProject(ctx context.Context, project *domain.Project) error {
	query := `
	INSERT INTO projects (project_id, name, path, current_session_id, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?)`

	var current interface{}
	if project.CurrentSessionID != "" {
		current = project.CurrentSessionID
	}

	_, err := s.db.ExecContext(ctx, query,
		project.ID, project.Name, project.Path, current,
		project.CreatedAt.Unix(), project.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert project: %w", err)
	}
	return nil
}

// GetProject retrieves a project by id.
func (s *SQLiteStore) GetProject(ctx context.Context, projectID string) (*domain.Project, error) {
	query := `
		SELECT project_id, name, path, current_session_id, created_at, updated_at
		FROM projects WHERE project_id = ?`

	row := s.db.QueryRowContext(ctx, query, projectID)

	var project domain.Project
	var current sql.NullString
	var createdAt, updatedAt int64

	err := row.Scan(&project.ID, &project.Name, &project.Path, &current, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan project row: %w", err)
	}

	project.CurrentSessionID = current.String
	project.CreatedAt = time.Unix(createdAt, 0)
	project.UpdatedAt = time.Unix(updatedAt, 0)
	return &project, nil
}

// ListProjects returns all projects in creation order.
func (s *SQLiteStore) ListProjects(ctx context.Context) ([]*domain.Project, error) {
	query := `
		SELECT project_id, name, path, current_session_id, created_at, updated_at
		FROM projects ORDER BY created_at, rowid`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query projects: %w", err)
	}
	defer closeRows(rows, "projects")

	var projects []*domain.Project
	for rows.Next() {
		var project domain.Project
		var current sql.NullString
		var createdAt, updatedAt int64

		if err := rows.Scan(&project.ID, &project.Name, &project.Path, &current, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan project row: %w", err)
		}
		project.CurrentSessionID = current.String
		project.CreatedAt = time.Unix(createdAt, 0)
		project.UpdatedAt = time.Unix(updatedAt, 0)
		projects = append(projects, &project)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate projects: %w", err)
	}
	return projects, nil
}

// SetCurrentSession updates a project's current-session pointer. The
// ownership check happens inside the UPDATE so a concurrent session
// delete cannot slip between validation and mutation.
func (s *SQLiteStore) SetCurrentSession(ctx context.Context, projectID, sessionID string) (bool, error) {
	query := `
		UPDATE projects SET current_session_id = ?, updated_at = ?
		WHERE project_id = ?
		AND EXISTS (
			SELECT 1 FROM sessions
			WHERE session_id = ? AND project_id = ?
		)`

	result, err := s.db.ExecContext(ctx, query, sessionID, time.Now().Unix(), projectID, sessionID, projectID)
	if err != nil {
		return false, fmt.Errorf("update current session: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("get rows affected: %w", err)
	}
	return rows > 0, nil
}

// CreateSession inserts a new session record.
func (s *SQLiteStore) CreateSession(ctx context.Context, session *domain.Session) error {
	query := `
	INSERT INTO sessions (session_id, project_id, title, state, created_at, updated_at, completed_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)`

	var completedAt interface{}
	if session.CompletedAt != nil {
		completedAt = session.CompletedAt.Unix()
	}

	_, err := s.db.ExecContext(ctx, query,
		session.ID, session.ProjectID, session.Title, string(session.State),
		session.CreatedAt.Unix(), session.UpdatedAt.Unix(), completedAt,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

const sessionColumns = `
	s.session_id, s.project_id, s.title, s.state, s.created_at, s.updated_at, s.completed_at,
	(SELECT COUNT(*) FROM session_messages m WHERE m.session_id = s.session_id)`

func scanSession(scan func(...interface{}) error) (*domain.Session, error) {
	var session domain.Session
	var state string
	var createdAt, updatedAt int64
	var completedAt sql.NullInt64

	err := scan(
		&session.ID, &session.ProjectID, &session.Title, &state,
		&createdAt, &updatedAt, &completedAt, &session.MessageCount,
	)
	if err != nil {
		return nil, err
	}

	session.State = domain.SessionState(state)
	session.CreatedAt = time.Unix(createdAt, 0)
	session.UpdatedAt = time.Unix(updatedAt, 0)
	if completedAt.Valid {
		ts := time.Unix(completedAt.Int64, 0)
		session.CompletedAt = &ts
	}
	return &session, nil
}

// GetSession retrieves a session by id, with MessageCount populated.
func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions s WHERE s.session_id = ?`

	row := s.db.QueryRowContext(ctx, query, sessionID)
	session, err := scanSession(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}
	return session, nil
}

// UpdateSessionState sets a session's state and stamps updated_at.
// Terminal states are final at the store level: the guard inside the
// UPDATE leaves a completed or failed session untouched even under
// concurrent writers, and the call reports false. Callers read the row
// back to distinguish a finished session from a missing one.
func (s *SQLiteStore) UpdateSessionState(ctx context.Context, sessionID string, state domain.SessionState, completedAt *time.Time) (bool, error) {
	query := `
		UPDATE sessions SET state = ?, updated_at = ?, completed_at = ?
		WHERE session_id = ? AND state NOT IN (?, ?)`

	var completed interface{}
	if completedAt != nil {
		completed = completedAt.Unix()
	}

	result, err := s.db.ExecContext(ctx, query,
		string(state), time.Now().Unix(), completed, sessionID,
		string(domain.SessionCompleted), string(domain.SessionFailed),
	)
	if err != nil {
		return false, fmt.Errorf("update session state: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("get rows affected: %w", err)
	}
	return rows > 0, nil
}

// DeleteSession removes a session, its messages, and any project
// current-session pointer referencing it, in one transaction.
func (s *SQLiteStore) DeleteSession(ctx context.Context, sessionID string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin delete session tx: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			slog.Warn("failed to roll back delete session tx", "error", rbErr)
		}
	}()

	result, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE session_id = ?`, sessionID)
	if err != nil {
		return false, fmt.Errorf("delete session: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM session_messages WHERE session_id = ?`, sessionID); err != nil {
		return false, fmt.Errorf("delete session messages: %w", err)
	}

	// Orphan-protect the pointer: a project must never point at a
	// session that no longer exists.
	if _, err := tx.ExecContext(ctx,
		`UPDATE projects SET current_session_id = NULL, updated_at = ? WHERE current_session_id = ?`,
		time.Now().Unix(), sessionID,
	); err != nil {
		return false, fmt.Errorf("clear current session pointer: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit delete session tx: %w", err)
	}
	return true, nil
}

func (s *SQLiteStore) querySessions(ctx context.Context, query string, args ...interface{}) ([]*domain.Session, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer closeRows(rows, "sessions")

	var sessions []*domain.Session
	for rows.Next() {
		session, err := scanSession(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// ListSessionsByProject returns a project's sessions in creation order.
func (s *SQLiteStore) ListSessionsByProject(ctx context.Context, projectID string) ([]*domain.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions s WHERE s.project_id = ? ORDER BY s.created_at, s.rowid`
	return s.querySessions(ctx, query, projectID)
}

// ListRunningSessions returns all running sessions across projects.
func (s *SQLiteStore) ListRunningSessions(ctx context.Context) ([]*domain.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions s WHERE s.state = ? ORDER BY s.created_at, s.rowid`
	return s.querySessions(ctx, query, string(domain.SessionRunning))
}

// AppendMessage inserts a session message.
func (s *SQLiteStore) AppendMessage(ctx context.Context, msg *domain.SessionMessage) error {
	query := `
	INSERT INTO session_messages (message_id, session_id, role, message_type, content, created_at)
	VALUES (?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		msg.ID, msg.SessionID, string(msg.Role), string(msg.MessageType),
		msg.Content, msg.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert session message: %w", err)
	}
	return nil
}

// GetMessages returns one ordered page plus the total count at the
// moment of the call. Both reads happen in a single transaction so the
// page and the count describe the same store state; pages requested
// later may shift under concurrent appends, which callers tolerate.
func (s *SQLiteStore) GetMessages(ctx context.Context, sessionID string, skip, take int) ([]*domain.SessionMessage, int, error) {
	if skip < 0 {
		skip = 0
	}
	if take < 0 {
		take = 0
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, 0, fmt.Errorf("begin messages tx: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			slog.Warn("failed to roll back messages tx", "error", rbErr)
		}
	}()

	var total int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM session_messages WHERE session_id = ?`, sessionID,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count session messages: %w", err)
	}

	// rowid breaks created_at ties in insertion order.
	query := `
		SELECT message_id, session_id, role, message_type, content, created_at
		FROM session_messages WHERE session_id = ?
		ORDER BY created_at, rowid
		LIMIT ? OFFSET ?`

	rows, err := tx.QueryContext(ctx, query, sessionID, take, skip)
	if err != nil {
		return nil, 0, fmt.Errorf("query session messages: %w", err)
	}
	defer closeRows(rows, "session messages")

	var messages []*domain.SessionMessage
	for rows.Next() {
		var msg domain.SessionMessage
		var role, messageType string
		var createdAt int64

		if err := rows.Scan(&msg.ID, &msg.SessionID, &role, &messageType, &msg.Content, &createdAt); err != nil {
			return nil, 0, fmt.Errorf("scan session message row: %w", err)
		}
		msg.Role = domain.MessageRole(role)
		msg.MessageType = domain.MessageType(messageType)
		msg.CreatedAt = time.Unix(createdAt, 0)
		messages = append(messages, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate session messages: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, 0, fmt.Errorf("commit messages tx: %w", err)
	}
	return messages, total, nil
}

// CountMessages returns the number of messages in a session.
func (s *SQLiteStore) CountMessages(ctx context.Context, sessionID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM session_messages WHERE session_id = ?`, sessionID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count session messages: %w", err)
	}
	return count, nil
}

// DeleteMessages removes all messages of a session.
func (s *SQLiteStore) DeleteMessages(ctx context.Context, sessionID string) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM session_messages WHERE session_id = ?`, sessionID)
	if err != nil {
		return 0, fmt.Errorf("delete session messages: %w", err)
	}
	return result.RowsAffected()
}

func closeRows(rows *sql.Rows, what string) {
	if err := rows.Close(); err != nil {
		slog.Warn("failed to close rows", "query", what, "error", err)
	}
}
