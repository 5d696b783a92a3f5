package persistence

import (
	"database/sql"
	"fmt"
)

// schema holds the DDL for all tables. CREATE IF NOT EXISTS keeps Open
// idempotent; there is no migration history yet.
const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	session_id           TEXT PRIMARY KEY,
	owner_id             TEXT NOT NULL DEFAULT '',
	work_dir             TEXT NOT NULL DEFAULT '',
	backend              TEXT NOT NULL DEFAULT '',
	status               TEXT NOT NULL,
	current_iteration    INTEGER NOT NULL DEFAULT 0,
	max_iterations       INTEGER NOT NULL DEFAULT 0,
	completion_progress  INTEGER NOT NULL DEFAULT 0,
	circuit_breaker      TEXT NOT NULL DEFAULT 'CLOSED',
	no_progress_count    INTEGER NOT NULL DEFAULT 0,
	tests_passed         INTEGER NOT NULL DEFAULT 0,
	tests_failed         INTEGER NOT NULL DEFAULT 0,
	config_json          TEXT NOT NULL DEFAULT '',
	created_at           TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at           TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS failure_records (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id  TEXT NOT NULL,
	iteration   INTEGER NOT NULL,
	pattern     TEXT NOT NULL,
	raw_text    TEXT NOT NULL,
	recorded_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY (session_id) REFERENCES sessions(session_id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_failure_records_session
	ON failure_records(session_id, id);
`

func createSchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}
