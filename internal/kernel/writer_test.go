package kernel

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autopilot/pkg/logx"
	"autopilot/pkg/loop"
	"autopilot/pkg/persistence"
)

func TestStateWriterRoundTrip(t *testing.T) {
	db, err := persistence.Open(filepath.Join(t.TempDir(), "kernel.db"))
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	store := persistence.NewStore(db)
	writer := &stateWriter{store: store, logger: logx.NewLogger("test")}

	cfg := &loop.Config{
		SessionID:           "kw-1",
		OwnerID:             "owner-9",
		WorkDir:             "/tmp/project",
		Backend:             "anthropic",
		MaxIterations:       8,
		NoProgressThreshold: 3,
		Prompt:              loop.Prompt{Goal: "finish the feature"},
		CompletionCriteria:  []string{"all tests pass"},
	}
	snap := loop.Snapshot{
		SessionID:          "kw-1",
		Status:             loop.StatusPaused,
		CurrentIteration:   4,
		MaxIterations:      8,
		CompletionProgress: 50,
		CircuitBreaker:     "OPEN",
		NoProgressCount:    3,
		TestsPassed:        2,
		TestsFailed:        1,
	}
	require.NoError(t, writer.WriteState(cfg, snap))
	require.NoError(t, writer.WriteFailure("kw-1", 4, "test_assertion", "expect(x).toBe(y)"))

	row, err := store.GetSession("kw-1")
	require.NoError(t, err)
	assert.Equal(t, "paused", row.Status)
	assert.Equal(t, 4, row.CurrentIteration)
	assert.Equal(t, "OPEN", row.CircuitBreaker)

	// The stored config reconstructs the original, which is what session
	// reload depends on.
	restored, err := sessionConfigFromRow(row)
	require.NoError(t, err)
	assert.Equal(t, cfg, restored)

	failures, err := store.ListFailures("kw-1")
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.Equal(t, "test_assertion", failures[0].Pattern)
}

func TestSessionConfigFromRowMissing(t *testing.T) {
	_, err := sessionConfigFromRow(&persistence.SessionRow{SessionID: "bare"})
	require.Error(t, err)
}
