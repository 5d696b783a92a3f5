package loop

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autopilot/pkg/generate"
	"autopilot/pkg/runner"
	"autopilot/pkg/workspace"
)

func newTestRegistry(t *testing.T, outcomes ...runner.TestOutcome) *Registry {
	t.Helper()
	if len(outcomes) == 0 {
		outcomes = []runner.TestOutcome{{Passed: 1, RawOutput: "1 passed"}}
	}
	return NewRegistry(func(cfg *Config) (Deps, error) {
		return Deps{
			Generator:      generate.NewScriptedGenerator(generate.ScriptStep{Output: passingOutput}),
			Tests:          &scriptedTests{outcomes: outcomes},
			Workspace:      workspace.New(cfg.WorkDir),
			IterationDelay: -1,
		}, nil
	})
}

func registryConfig(t *testing.T, id string) *Config {
	t.Helper()
	return &Config{
		SessionID:           id,
		OwnerID:             "owner-1",
		WorkDir:             t.TempDir(),
		Backend:             "scripted",
		MaxIterations:       5,
		NoProgressThreshold: 3,
		Prompt:              Prompt{Goal: "make the tests pass"},
		CompletionCriteria:  []string{"all tests pass"},
	}
}

func waitForStatus(t *testing.T, r *Registry, id string, want Status) Snapshot {
	t.Helper()
	var snap Snapshot
	require.Eventually(t, func() bool {
		var ok bool
		snap, ok = r.GetState(id)
		return ok && snap.Status == want
	}, 5*time.Second, time.Millisecond, "session %s never reached %s", id, want)
	return snap
}

func TestRegistryStartAndComplete(t *testing.T) {
	r := newTestRegistry(t)
	cfg := registryConfig(t, "reg-complete")

	require.NoError(t, r.StartSession(context.Background(), cfg))
	snap := waitForStatus(t, r, "reg-complete", StatusComplete)
	assert.Equal(t, 100, snap.CompletionProgress)
}

func TestRegistryDuplicateSession(t *testing.T) {
	r := newTestRegistry(t)
	cfg := registryConfig(t, "reg-dup")

	require.NoError(t, r.StartSession(context.Background(), cfg))
	err := r.StartSession(context.Background(), registryConfig(t, "reg-dup"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestRegistryUnknownSession(t *testing.T) {
	r := newTestRegistry(t)

	_, ok := r.GetState("ghost")
	assert.False(t, ok)
	_, ok = r.Subscribe("ghost")
	assert.False(t, ok)
	require.Error(t, r.PauseSession("ghost"))
	require.Error(t, r.ResumeSession(context.Background(), "ghost"))
	require.Error(t, r.StopSession("ghost"))
	require.Error(t, r.ResetCircuitBreaker("ghost"))
}

func TestRegistrySessionIsolation(t *testing.T) {
	r := newTestRegistry(t, runner.TestOutcome{Passed: 0, Failed: 1, RawOutput: "1 failing"})

	require.NoError(t, r.StartSession(context.Background(), registryConfig(t, "iso-a")))
	require.NoError(t, r.StartSession(context.Background(), registryConfig(t, "iso-b")))

	waitForStatus(t, r, "iso-a", StatusPaused)
	require.NoError(t, r.ResetCircuitBreaker("iso-a"))

	snapA, _ := r.GetState("iso-a")
	assert.Equal(t, "CLOSED", snapA.CircuitBreaker)

	// Session B's breaker is untouched by A's reset.
	snapB := waitForStatus(t, r, "iso-b", StatusPaused)
	assert.Equal(t, "OPEN", snapB.CircuitBreaker)
}

func TestRegistryRestoreSession(t *testing.T) {
	r := newTestRegistry(t)
	cfg := registryConfig(t, "reg-restore")

	require.NoError(t, r.RestoreSession(cfg, RestoredState{
		Status:             StatusRunning, // demoted to paused on restore
		CurrentIteration:   2,
		CompletionProgress: 50,
		CircuitBreaker:     "CLOSED",
		NoProgressCount:    1,
		TestsPassed:        1,
		TestsFailed:        1,
	}))

	snap, ok := r.GetState("reg-restore")
	require.True(t, ok)
	assert.Equal(t, StatusPaused, snap.Status)
	assert.Equal(t, 2, snap.CurrentIteration)
	assert.Equal(t, 50, snap.CompletionProgress)

	// Resuming picks up where the persisted row left off.
	require.NoError(t, r.ResumeSession(context.Background(), "reg-restore"))
	final := waitForStatus(t, r, "reg-restore", StatusComplete)
	assert.Equal(t, 3, final.CurrentIteration)
}

func TestRegistryRestoreRejectsTerminal(t *testing.T) {
	r := newTestRegistry(t)
	err := r.RestoreSession(registryConfig(t, "reg-term"), RestoredState{
		Status:         StatusComplete,
		CircuitBreaker: "CLOSED",
	})
	require.Error(t, err)
}

func TestRegistryDestroySession(t *testing.T) {
	r := newTestRegistry(t, runner.TestOutcome{Passed: 0, Failed: 1, RawOutput: "1 failing"})
	cfg := registryConfig(t, "reg-destroy")

	require.NoError(t, r.StartSession(context.Background(), cfg))

	events, ok := r.Subscribe("reg-destroy")
	require.True(t, ok)

	require.NoError(t, r.DestroySession("reg-destroy"))

	_, ok = r.GetState("reg-destroy")
	assert.False(t, ok)
	assert.Empty(t, r.Sessions())

	// Stream is closed so consumers ranging over it terminate.
	require.Eventually(t, func() bool {
		for {
			select {
			case _, open := <-events:
				if !open {
					return true
				}
			default:
				return false
			}
		}
	}, time.Second, time.Millisecond)
}

func TestRegistryShutdown(t *testing.T) {
	r := newTestRegistry(t, runner.TestOutcome{Passed: 0, Failed: 1, RawOutput: "1 failing"})

	require.NoError(t, r.StartSession(context.Background(), registryConfig(t, "shut-a")))
	require.NoError(t, r.StartSession(context.Background(), registryConfig(t, "shut-b")))

	r.Shutdown()
	assert.Empty(t, r.Sessions())
}
