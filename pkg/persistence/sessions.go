package persistence

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrSessionNotFound is returned when a requested session row does not exist.
var ErrSessionNotFound = errors.New("session not found")

// SessionRow mirrors the loop-visible fields of one session.
//
//nolint:govet // struct alignment optimization not critical for this type
type SessionRow struct {
	SessionID          string    `json:"session_id"`
	OwnerID            string    `json:"owner_id"`
	WorkDir            string    `json:"work_dir"`
	Backend            string    `json:"backend"`
	Status             string    `json:"status"`
	CurrentIteration   int       `json:"current_iteration"`
	MaxIterations      int       `json:"max_iterations"`
	CompletionProgress int       `json:"completion_progress"`
	CircuitBreaker     string    `json:"circuit_breaker"`
	NoProgressCount    int       `json:"no_progress_count"`
	TestsPassed        int       `json:"tests_passed"`
	TestsFailed        int       `json:"tests_failed"`
	ConfigJSON         string    `json:"config_json,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// FailureRow is one persisted failure record.
type FailureRow struct {
	SessionID  string    `json:"session_id"`
	Iteration  int       `json:"iteration"`
	Pattern    string    `json:"pattern"`
	RawText    string    `json:"raw_text"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Store wraps the database with session-scoped operations.
type Store struct {
	db *sql.DB
}

// NewStore creates a Store over an opened database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// UpsertSession writes the session row, inserting on first sight.
// Called at iteration boundaries and on state transitions.
func (s *Store) UpsertSession(row *SessionRow) error {
	_, err := s.db.Exec(`
		INSERT INTO sessions (
			session_id, owner_id, work_dir, backend, status,
			current_iteration, max_iterations, completion_progress,
			circuit_breaker, no_progress_count, tests_passed, tests_failed,
			config_json, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(session_id) DO UPDATE SET
			status = excluded.status,
			current_iteration = excluded.current_iteration,
			completion_progress = excluded.completion_progress,
			circuit_breaker = excluded.circuit_breaker,
			no_progress_count = excluded.no_progress_count,
			tests_passed = excluded.tests_passed,
			tests_failed = excluded.tests_failed,
			updated_at = CURRENT_TIMESTAMP
	`, row.SessionID, row.OwnerID, row.WorkDir, row.Backend, row.Status,
		row.CurrentIteration, row.MaxIterations, row.CompletionProgress,
		row.CircuitBreaker, row.NoProgressCount, row.TestsPassed, row.TestsFailed,
		row.ConfigJSON)
	if err != nil {
		return fmt.Errorf("failed to upsert session %s: %w", row.SessionID, err)
	}
	return nil
}

// GetSession loads one session row.
func (s *Store) GetSession(sessionID string) (*SessionRow, error) {
	row := s.db.QueryRow(`
		SELECT session_id, owner_id, work_dir, backend, status,
			current_iteration, max_iterations, completion_progress,
			circuit_breaker, no_progress_count, tests_passed, tests_failed,
			config_json, created_at, updated_at
		FROM sessions WHERE session_id = ?
	`, sessionID)

	var out SessionRow
	err := row.Scan(
		&out.SessionID, &out.OwnerID, &out.WorkDir, &out.Backend, &out.Status,
		&out.CurrentIteration, &out.MaxIterations, &out.CompletionProgress,
		&out.CircuitBreaker, &out.NoProgressCount, &out.TestsPassed, &out.TestsFailed,
		&out.ConfigJSON, &out.CreatedAt, &out.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", sessionID, err)
	}
	return &out, nil
}

// ListSessions returns all session rows, newest first.
func (s *Store) ListSessions() ([]SessionRow, error) {
	rows, err := s.db.Query(`
		SELECT session_id, owner_id, work_dir, backend, status,
			current_iteration, max_iterations, completion_progress,
			circuit_breaker, no_progress_count, tests_passed, tests_failed,
			config_json, created_at, updated_at
		FROM sessions ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []SessionRow
	for rows.Next() {
		var r SessionRow
		if err := rows.Scan(
			&r.SessionID, &r.OwnerID, &r.WorkDir, &r.Backend, &r.Status,
			&r.CurrentIteration, &r.MaxIterations, &r.CompletionProgress,
			&r.CircuitBreaker, &r.NoProgressCount, &r.TestsPassed, &r.TestsFailed,
			&r.ConfigJSON, &r.CreatedAt, &r.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed reading session rows: %w", err)
	}
	return out, nil
}

// DeleteSession removes a session and, via cascade, its failure records.
func (s *Store) DeleteSession(sessionID string) error {
	res, err := s.db.Exec(`DELETE FROM sessions WHERE session_id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("failed to delete session %s: %w", sessionID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// InsertFailure appends one failure record for a session.
func (s *Store) InsertFailure(row *FailureRow) error {
	_, err := s.db.Exec(`
		INSERT INTO failure_records (session_id, iteration, pattern, raw_text)
		VALUES (?, ?, ?, ?)
	`, row.SessionID, row.Iteration, row.Pattern, row.RawText)
	if err != nil {
		return fmt.Errorf("failed to insert failure record for %s: %w", row.SessionID, err)
	}
	return nil
}

// ListFailures returns a session's failure records in insertion order.
func (s *Store) ListFailures(sessionID string) ([]FailureRow, error) {
	rows, err := s.db.Query(`
		SELECT session_id, iteration, pattern, raw_text, recorded_at
		FROM failure_records WHERE session_id = ? ORDER BY id ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list failures for %s: %w", sessionID, err)
	}
	defer func() { _ = rows.Close() }()

	var out []FailureRow
	for rows.Next() {
		var r FailureRow
		if err := rows.Scan(&r.SessionID, &r.Iteration, &r.Pattern, &r.RawText, &r.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan failure row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed reading failure rows: %w", err)
	}
	return out, nil
}
