package persistence

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewStore(db)
}

func sampleRow(id string) *SessionRow {
	return &SessionRow{
		SessionID:      id,
		OwnerID:        "owner-1",
		WorkDir:        "/tmp/project",
		Backend:        "anthropic",
		Status:         "running",
		MaxIterations:  10,
		CircuitBreaker: "CLOSED",
		ConfigJSON:     `{"goal":"make it pass"}`,
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "twice.db")

	db, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = Open(path)
	require.NoError(t, err)
	require.NoError(t, db.Close())
}

func TestUpsertAndGetSession(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.UpsertSession(sampleRow("s1")))

	got, err := store.GetSession("s1")
	require.NoError(t, err)
	assert.Equal(t, "running", got.Status)
	assert.Equal(t, "anthropic", got.Backend)
	assert.Equal(t, 10, got.MaxIterations)
	assert.Equal(t, `{"goal":"make it pass"}`, got.ConfigJSON)

	// Update via upsert.
	row := sampleRow("s1")
	row.Status = "paused"
	row.CurrentIteration = 4
	row.CompletionProgress = 40
	row.CircuitBreaker = "OPEN"
	row.NoProgressCount = 3
	require.NoError(t, store.UpsertSession(row))

	got, err = store.GetSession("s1")
	require.NoError(t, err)
	assert.Equal(t, "paused", got.Status)
	assert.Equal(t, 4, got.CurrentIteration)
	assert.Equal(t, 40, got.CompletionProgress)
	assert.Equal(t, "OPEN", got.CircuitBreaker)
	assert.Equal(t, 3, got.NoProgressCount)
}

func TestGetSession_NotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetSession("missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestListSessions(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.UpsertSession(sampleRow("s1")))
	require.NoError(t, store.UpsertSession(sampleRow("s2")))

	rows, err := store.ListSessions()
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestDeleteSession(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.UpsertSession(sampleRow("s1")))

	require.NoError(t, store.DeleteSession("s1"))
	_, err := store.GetSession("s1")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	assert.ErrorIs(t, store.DeleteSession("s1"), ErrSessionNotFound)
}

func TestFailureRecords(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.UpsertSession(sampleRow("s1")))

	require.NoError(t, store.InsertFailure(&FailureRow{
		SessionID: "s1", Iteration: 1, Pattern: "test_assertion", RawText: "expect(a).toBe(b)",
	}))
	require.NoError(t, store.InsertFailure(&FailureRow{
		SessionID: "s1", Iteration: 2, Pattern: "timeout", RawText: "timed out",
	}))

	rows, err := store.ListFailures("s1")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	// Insertion order preserved.
	assert.Equal(t, 1, rows[0].Iteration)
	assert.Equal(t, "timeout", rows[1].Pattern)
}
