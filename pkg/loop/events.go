package loop

import (
	"fmt"
	"time"
)

// EventType identifies an event on a session's stream.
type EventType string

const (
	EventStarted              EventType = "started"
	EventLog                  EventType = "log"
	EventIterationStart       EventType = "iteration_start"
	EventIterationComplete    EventType = "iteration_complete"
	EventStateChange          EventType = "state_change"
	EventComplete             EventType = "complete"
	EventMaxIterationsReached EventType = "max_iterations_reached"
)

// Event is one entry on a session's event stream. Snapshot is set for
// state-carrying events, Message for log events, Iteration for
// iteration-scoped events.
type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id"`
	Timestamp time.Time `json:"timestamp"`
	Iteration int       `json:"iteration,omitempty"`
	Message   string    `json:"message,omitempty"`
	Snapshot  *Snapshot `json:"snapshot,omitempty"`
}

// eventBufferSize is the per-session channel capacity. Events beyond a
// lagging subscriber's buffer are dropped; GetState remains the source of
// truth.
const eventBufferSize = 64

// eventStream is the per-session event channel. One stream per session so
// cancellation scoping is trivial and sessions cannot leak events to each
// other.
type eventStream struct {
	sessionID string
	ch        chan Event
}

func newEventStream(sessionID string) *eventStream {
	return &eventStream{
		sessionID: sessionID,
		ch:        make(chan Event, eventBufferSize),
	}
}

// emit delivers an event best-effort. A full buffer drops the event rather
// than blocking the loop.
func (e *eventStream) emit(evt Event) {
	evt.SessionID = e.sessionID
	evt.Timestamp = time.Now()
	select {
	case e.ch <- evt:
	default:
	}
}

func (e *eventStream) emitLog(format string, args ...any) {
	e.emit(Event{Type: EventLog, Message: fmt.Sprintf(format, args...)})
}

// Events returns the receive side of the stream.
func (e *eventStream) Events() <-chan Event {
	return e.ch
}

// close ends the stream so subscribers ranging over it terminate.
func (e *eventStream) close() {
	close(e.ch)
}
