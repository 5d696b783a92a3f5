package failures

import (
	"sync"
	"time"
)

// maxRecords caps per-session failure history; oldest entries are evicted.
const maxRecords = 50

// Record is one classified failure observation.
type Record struct {
	Timestamp time.Time `json:"timestamp"`
	RawText   string    `json:"raw_text"`
	Pattern   string    `json:"pattern"`
	Iteration int       `json:"iteration"`
}

// dismissKey identifies a (pattern, sign) suggestion pair.
type dismissKey struct {
	pattern string
	sign    string
}

// sessionHistory holds failure analytics for one session. Its lifecycle is
// independent from loop state: it survives pause/resume and is cleared only
// explicitly or on session teardown.
type sessionHistory struct {
	records             []Record
	consecutiveFailures int
	dismissed           map[dismissKey]bool
}

// Store keeps per-session failure history. All access is keyed by session
// identity so concurrent sessions never share analytics.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*sessionHistory
}

// NewStore creates an empty failure history store.
func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*sessionHistory),
	}
}

// history returns the session entry, creating it lazily. Caller holds s.mu.
func (s *Store) history(sessionID string) *sessionHistory {
	h, ok := s.sessions[sessionID]
	if !ok {
		h = &sessionHistory{
			dismissed: make(map[dismissKey]bool),
		}
		s.sessions[sessionID] = h
	}
	return h
}

// RecordFailure classifies the failure text and appends a record,
// evicting the oldest entry past the cap.
func (s *Store) RecordFailure(sessionID, text string, iteration int) Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	h := s.history(sessionID)
	rec := Record{
		Timestamp: time.Now().UTC(),
		RawText:   text,
		Pattern:   Classify(text),
		Iteration: iteration,
	}

	h.records = append(h.records, rec)
	if len(h.records) > maxRecords {
		h.records = h.records[len(h.records)-maxRecords:]
	}
	h.consecutiveFailures++

	return rec
}

// RecordSuccess resets the consecutive failure counter. The record list is
// kept: past failures still inform suggestions.
func (s *Store) RecordSuccess(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if h, ok := s.sessions[sessionID]; ok {
		h.consecutiveFailures = 0
	}
}

// ConsecutiveFailures returns the current failure streak for a session.
func (s *Store) ConsecutiveFailures(sessionID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if h, ok := s.sessions[sessionID]; ok {
		return h.consecutiveFailures
	}
	return 0
}

// History returns a copy of the session's failure records in insertion order.
func (s *Store) History(sessionID string) []Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.sessions[sessionID]
	if !ok {
		return nil
	}
	out := make([]Record, len(h.records))
	copy(out, h.records)
	return out
}

// IsRepeatedError reports whether the most recent failures all share one
// classified pattern. It looks at the last 3 records (or all, if history is
// shorter) and requires at least 2 records to answer true.
func (s *Store) IsRepeatedError(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.sessions[sessionID]
	if !ok || len(h.records) < 2 {
		return false
	}

	window := h.records
	if len(window) > 3 {
		window = window[len(window)-3:]
	}

	pattern := window[0].Pattern
	for _, rec := range window[1:] {
		if rec.Pattern != pattern {
			return false
		}
	}
	return true
}

// DismissSuggestion marks a (pattern, sign) pair as dismissed for the
// session. Dismissals are permanent for the session's lifetime and survive
// further RecordFailure calls.
func (s *Store) DismissSuggestion(sessionID, pattern, sign string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h := s.history(sessionID)
	h.dismissed[dismissKey{pattern: pattern, sign: sign}] = true
}

// Clear removes all failure analytics for a session. Loop state is not
// touched; the two lifecycles are deliberately separate.
func (s *Store) Clear(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, sessionID)
}
