package runner

import (
	"context"
	"sync"
)

// ProcessTable tracks the in-flight subprocess per session so an explicit
// stop can terminate it. Entries are keyed by session identity; sessions
// never see each other's processes.
type ProcessTable struct {
	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// NewProcessTable creates an empty process table.
func NewProcessTable() *ProcessTable {
	return &ProcessTable{
		cancels: make(map[string]context.CancelFunc),
	}
}

func (p *ProcessTable) register(sessionID string, cancel context.CancelFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancels[sessionID] = cancel
}

func (p *ProcessTable) unregister(sessionID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.cancels, sessionID)
}

// Kill forcibly terminates the session's running process, if any.
// Safe to call when nothing is running.
func (p *ProcessTable) Kill(sessionID string) {
	p.mu.Lock()
	cancel, ok := p.cancels[sessionID]
	delete(p.cancels, sessionID)
	p.mu.Unlock()

	if ok {
		cancel()
	}
}

// Active reports whether a process is currently registered for the session.
func (p *ProcessTable) Active(sessionID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.cancels[sessionID]
	return ok
}
