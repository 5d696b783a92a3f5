package loop

import (
	"fmt"
	"sort"

	"autopilot/pkg/breaker"
)

// Status is the session lifecycle status.
type Status string

const (
	StatusIdle     Status = "idle"
	StatusRunning  Status = "running"
	StatusPaused   Status = "paused"
	StatusComplete Status = "complete"
	StatusFailed   Status = "failed"
)

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusFailed
}

// maxLastOutputTokens bounds the LastOutput snapshot kept in state.
const maxLastOutputTokens = 2000

// maxErrors bounds the append-only error list; oldest entries are kept
// since they establish how the session started going wrong.
const maxErrors = 100

// State is the mutable loop state, owned exclusively by one Controller.
// External readers get value copies via Snapshot.
type State struct {
	SessionID          string          `json:"session_id"`
	Status             Status          `json:"status"`
	CurrentIteration   int             `json:"current_iteration"`
	MaxIterations      int             `json:"max_iterations"`
	CompletionProgress int             `json:"completion_progress"`
	CircuitBreaker     breaker.State   `json:"-"`
	NoProgressCount    int             `json:"no_progress_count"`
	FilesModified      map[string]bool `json:"-"`
	TestsPassed        int             `json:"tests_passed"`
	TestsFailed        int             `json:"tests_failed"`
	Errors             []string        `json:"errors,omitempty"`
	LastOutput         string          `json:"last_output,omitempty"`
}

// Snapshot is an immutable copy of State handed to event subscribers and
// API callers.
type Snapshot struct {
	SessionID          string   `json:"session_id"`
	Status             Status   `json:"status"`
	CurrentIteration   int      `json:"current_iteration"`
	MaxIterations      int      `json:"max_iterations"`
	CompletionProgress int      `json:"completion_progress"`
	CircuitBreaker     string   `json:"circuit_breaker"`
	NoProgressCount    int      `json:"no_progress_count"`
	FilesModified      []string `json:"files_modified"`
	TestsPassed        int      `json:"tests_passed"`
	TestsFailed        int      `json:"tests_failed"`
	Errors             []string `json:"errors,omitempty"`
	LastOutput         string   `json:"last_output,omitempty"`
}

func newState(cfg *Config) *State {
	return &State{
		SessionID:      cfg.SessionID,
		Status:         StatusIdle,
		MaxIterations:  cfg.MaxIterations,
		CircuitBreaker: breaker.Closed,
		FilesModified:  make(map[string]bool),
	}
}

// snapshot copies the state. Caller must hold the controller mutex.
func (s *State) snapshot() Snapshot {
	files := make([]string, 0, len(s.FilesModified))
	for path := range s.FilesModified {
		files = append(files, path)
	}
	sort.Strings(files)
	return Snapshot{
		SessionID:          s.SessionID,
		Status:             s.Status,
		CurrentIteration:   s.CurrentIteration,
		MaxIterations:      s.MaxIterations,
		CompletionProgress: s.CompletionProgress,
		CircuitBreaker:     s.CircuitBreaker.String(),
		NoProgressCount:    s.NoProgressCount,
		FilesModified:      files,
		TestsPassed:        s.TestsPassed,
		TestsFailed:        s.TestsFailed,
		Errors:             append([]string(nil), s.Errors...),
		LastOutput:         s.LastOutput,
	}
}

// recordError appends to the bounded error list.
func (s *State) recordError(format string, args ...any) {
	if len(s.Errors) >= maxErrors {
		return
	}
	s.Errors = append(s.Errors, fmt.Sprintf(format, args...))
}
