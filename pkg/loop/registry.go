package loop

import (
	"context"
	"fmt"
	"sync"

	"autopilot/pkg/breaker"
	"autopilot/pkg/logx"
)

// DepsFactory builds the collaborator set for one session. Called once per
// StartSession so each session gets its own workspace and test runner bound
// to its working directory.
type DepsFactory func(cfg *Config) (Deps, error)

// Registry owns the session-keyed controller store. Controllers are created
// through StartSession and destroyed through DestroySession; there is no
// other way in or out, so session isolation falls out of the keying.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Controller
	factory  DepsFactory
	logger   *logx.Logger
}

// NewRegistry creates an empty registry using the given factory.
func NewRegistry(factory DepsFactory) *Registry {
	return &Registry{
		sessions: make(map[string]*Controller),
		factory:  factory,
		logger:   logx.NewLogger("registry"),
	}
}

// StartSession creates a controller for the config and starts its loop.
// Fails if a session with the same ID already exists.
func (r *Registry) StartSession(ctx context.Context, cfg *Config) error {
	ctrl, err := r.create(cfg)
	if err != nil {
		return err
	}
	if err := ctrl.Start(ctx); err != nil {
		r.remove(cfg.SessionID)
		return err
	}
	r.logger.Info("Started session %s (max %d iterations)", cfg.SessionID, cfg.MaxIterations)
	return nil
}

// RestoredState seeds a reloaded session's controller from a persisted row.
type RestoredState struct {
	Status             Status
	CurrentIteration   int
	CompletionProgress int
	CircuitBreaker     string
	NoProgressCount    int
	TestsPassed        int
	TestsFailed        int
}

// RestoreSession registers a previously persisted session without starting
// its loop. Running sessions are demoted to paused, since their loop
// goroutine did not survive the restart; the caller resumes explicitly.
func (r *Registry) RestoreSession(cfg *Config, rs RestoredState) error {
	if rs.Status.Terminal() {
		return fmt.Errorf("cannot restore session %s: status %s is terminal", cfg.SessionID, rs.Status)
	}
	ctrl, err := r.create(cfg)
	if err != nil {
		return err
	}

	brkState, err := breaker.ParseState(rs.CircuitBreaker)
	if err != nil {
		r.remove(cfg.SessionID)
		return fmt.Errorf("cannot restore session %s: %w", cfg.SessionID, err)
	}
	status := rs.Status
	if status == StatusRunning {
		status = StatusPaused
	}
	ctrl.restore(status, rs.CurrentIteration, rs.CompletionProgress, brkState,
		rs.NoProgressCount, rs.TestsPassed, rs.TestsFailed)
	r.logger.Info("Restored session %s at iteration %d (%s)", cfg.SessionID, rs.CurrentIteration, status)
	return nil
}

// PauseSession pauses a running session at its next iteration boundary.
func (r *Registry) PauseSession(sessionID string) error {
	ctrl, err := r.get(sessionID)
	if err != nil {
		return err
	}
	return ctrl.Pause()
}

// ResumeSession resumes a paused session.
func (r *Registry) ResumeSession(ctx context.Context, sessionID string) error {
	ctrl, err := r.get(sessionID)
	if err != nil {
		return err
	}
	return ctrl.Resume(ctx)
}

// StopSession terminally stops a session.
func (r *Registry) StopSession(sessionID string) error {
	ctrl, err := r.get(sessionID)
	if err != nil {
		return err
	}
	return ctrl.Stop()
}

// ResetCircuitBreaker force-closes a session's breaker.
func (r *Registry) ResetCircuitBreaker(sessionID string) error {
	ctrl, err := r.get(sessionID)
	if err != nil {
		return err
	}
	ctrl.ResetCircuitBreaker()
	return nil
}

// GetState returns the session's current state snapshot.
func (r *Registry) GetState(sessionID string) (Snapshot, bool) {
	ctrl, err := r.get(sessionID)
	if err != nil {
		return Snapshot{}, false
	}
	return ctrl.GetState(), true
}

// Subscribe returns the session's event stream.
func (r *Registry) Subscribe(sessionID string) (<-chan Event, bool) {
	ctrl, err := r.get(sessionID)
	if err != nil {
		return nil, false
	}
	return ctrl.Events(), true
}

// Sessions lists the IDs of all registered sessions.
func (r *Registry) Sessions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	return ids
}

// DestroySession stops a session if needed and removes it from the
// registry, closing its event stream.
func (r *Registry) DestroySession(sessionID string) error {
	ctrl, err := r.get(sessionID)
	if err != nil {
		return err
	}
	if !ctrl.GetState().Status.Terminal() {
		// The loop may reach a terminal state on its own between the check
		// and the stop; that race is benign.
		if err := ctrl.Stop(); err != nil && !ctrl.GetState().Status.Terminal() {
			return err
		}
	}
	if done := ctrl.Done(); done != nil {
		<-done
	}
	ctrl.events.close()
	r.remove(sessionID)
	r.logger.Info("Destroyed session %s", sessionID)
	return nil
}

// Shutdown destroys every session. Used during process teardown.
func (r *Registry) Shutdown() {
	for _, id := range r.Sessions() {
		if err := r.DestroySession(id); err != nil {
			r.logger.Warn("Failed to destroy session %s during shutdown: %v", id, err)
		}
	}
}

func (r *Registry) create(cfg *Config) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid session config: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sessions[cfg.SessionID]; exists {
		return nil, fmt.Errorf("session %s already exists", cfg.SessionID)
	}

	deps, err := r.factory(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build session collaborators: %w", err)
	}
	ctrl, err := NewController(cfg, deps)
	if err != nil {
		return nil, err
	}
	r.sessions[cfg.SessionID] = ctrl
	return ctrl, nil
}

func (r *Registry) get(sessionID string) (*Controller, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ctrl, ok := r.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("session %s not found", sessionID)
	}
	return ctrl, nil
}

func (r *Registry) remove(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sessionID)
}
