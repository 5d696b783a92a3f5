// Package breaker provides the circuit breaker that gates iteration when a
// session stops making progress. Unlike a request-level breaker tripped by
// errors, this one trips on consecutive iterations without an increase in
// completion progress.
package breaker

import (
	"fmt"
	"sync"
)

// State represents the current state of the circuit breaker.
type State int

const (
	Closed   State = iota // Normal operation, iteration may continue
	Open                  // Stuck, iteration is halted
	HalfOpen              // Optimistic single-retry window after resume
)

func (s State) String() string {
	switch s {
	case Closed:
		return "CLOSED"
	case Open:
		return "OPEN"
	case HalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// ParseState converts a stored state string back to a State.
func ParseState(s string) (State, error) {
	switch s {
	case "CLOSED":
		return Closed, nil
	case "OPEN":
		return Open, nil
	case "HALF_OPEN":
		return HalfOpen, nil
	default:
		return Closed, fmt.Errorf("unknown breaker state: %q", s)
	}
}

// Next is the pure transition function: given the current state, the
// no-progress count, the trip threshold, and whether this iteration made
// progress, it returns the next state and count.
//
// Any progress closes the breaker from either CLOSED or HALF_OPEN and zeroes
// the count. Without progress, HALF_OPEN re-opens immediately (the grace
// period is one iteration, not a fresh threshold), and CLOSED opens once the
// count reaches the threshold.
func Next(state State, noProgressCount, threshold int, progressMade bool) (State, int) {
	if progressMade {
		return Closed, 0
	}

	count := noProgressCount + 1

	switch state {
	case HalfOpen:
		return Open, count
	case Open:
		return Open, count
	default: // Closed
		if count >= threshold {
			return Open, count
		}
		return Closed, count
	}
}

// Breaker holds breaker state for one session's loop. The controller is the
// only writer; the mutex covers reads from status queries.
type Breaker struct {
	mu              sync.RWMutex
	state           State
	noProgressCount int
	threshold       int
}

// New creates a closed breaker with the given no-progress threshold.
// Thresholds below 1 are clamped to 1.
func New(threshold int) *Breaker {
	if threshold < 1 {
		threshold = 1
	}
	return &Breaker{
		state:     Closed,
		threshold: threshold,
	}
}

// ObserveProgress records one iteration's outcome and returns the new state.
func (b *Breaker) ObserveProgress(progressMade bool) State {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state, b.noProgressCount = Next(b.state, b.noProgressCount, b.threshold, progressMade)
	return b.state
}

// State returns the current breaker state.
func (b *Breaker) State() State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

// NoProgressCount returns consecutive iterations without progress.
func (b *Breaker) NoProgressCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.noProgressCount
}

// Threshold returns the configured trip threshold.
func (b *Breaker) Threshold() int {
	return b.threshold
}

// Reset forces the breaker closed and zeroes the no-progress count.
// This is the explicit human override for a manually unblocked project.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = Closed
	b.noProgressCount = 0
}

// TryHalfOpen moves an open breaker to HALF_OPEN for the single-retry window
// granted by resume(). No-op when the breaker is not open.
func (b *Breaker) TryHalfOpen() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == Open {
		b.state = HalfOpen
	}
}

// Restore sets breaker state directly, used when reloading a persisted
// session.
func (b *Breaker) Restore(state State, noProgressCount int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = state
	b.noProgressCount = noProgressCount
}
