package kernel

import (
	"encoding/json"

	"autopilot/pkg/logx"
	"autopilot/pkg/loop"
	"autopilot/pkg/persistence"
)

// stateWriter adapts the persistence store to the loop's StateWriter
// contract. Rows are written at iteration boundaries and on state
// transitions, never continuously.
type stateWriter struct {
	store  *persistence.Store
	logger *logx.Logger
}

func (w *stateWriter) WriteState(cfg *loop.Config, snap loop.Snapshot) error {
	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	return w.store.UpsertSession(&persistence.SessionRow{
		SessionID:          cfg.SessionID,
		OwnerID:            cfg.OwnerID,
		WorkDir:            cfg.WorkDir,
		Backend:            cfg.Backend,
		Status:             string(snap.Status),
		CurrentIteration:   snap.CurrentIteration,
		MaxIterations:      snap.MaxIterations,
		CompletionProgress: snap.CompletionProgress,
		CircuitBreaker:     snap.CircuitBreaker,
		NoProgressCount:    snap.NoProgressCount,
		TestsPassed:        snap.TestsPassed,
		TestsFailed:        snap.TestsFailed,
		ConfigJSON:         string(cfgJSON),
	})
}

func (w *stateWriter) WriteFailure(sessionID string, iteration int, pattern, rawText string) error {
	return w.store.InsertFailure(&persistence.FailureRow{
		SessionID: sessionID,
		Iteration: iteration,
		Pattern:   pattern,
		RawText:   rawText,
	})
}
