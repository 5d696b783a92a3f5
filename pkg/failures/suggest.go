package failures

import (
	"fmt"
	"sort"
)

// Suggestion is a derived tuning suggestion ("sign") for the next iteration's
// prompt. Suggestions are computed on demand and never persisted.
type Suggestion struct {
	SignText   string   `json:"sign_text"`
	Pattern    string   `json:"pattern"`
	Confidence int      `json:"confidence"` // 0-100
	Reason     string   `json:"reason"`
	Severity   Severity `json:"severity"`
}

const (
	maxSuggestions        = 5
	repeatedConfidence    = 95
	frequencyBase         = 50
	frequencyPerHit       = 15
	frequencyCap          = 90
	frequencyWindow       = 5
	repeatedErrorSeverity = SeverityCritical
)

// AutoSuggestions computes ranked, deduplicated suggestions from the
// session's failure history. Results are sorted severity-first (critical
// before high before medium before low), then by descending confidence,
// and capped at 5. Dismissed (pattern, sign) pairs never reappear.
func (s *Store) AutoSuggestions(sessionID string) []Suggestion {
	repeated := s.IsRepeatedError(sessionID)

	s.mu.Lock()
	h, ok := s.sessions[sessionID]
	if !ok {
		s.mu.Unlock()
		return nil
	}
	streak := h.consecutiveFailures
	records := make([]Record, len(h.records))
	copy(records, h.records)
	dismissed := make(map[dismissKey]bool, len(h.dismissed))
	for k := range h.dismissed {
		dismissed[k] = true
	}
	s.mu.Unlock()

	var out []Suggestion
	seen := make(map[dismissKey]bool)

	emit := func(sug Suggestion) {
		key := dismissKey{pattern: sug.Pattern, sign: sug.SignText}
		if dismissed[key] || seen[key] {
			return
		}
		seen[key] = true
		out = append(out, sug)
	}

	// Repeated identical failures outrank everything else.
	if repeated {
		for _, sign := range SignsFor(PatternSameErrorRepeated) {
			emit(Suggestion{
				SignText:   sign,
				Pattern:    PatternSameErrorRepeated,
				Confidence: repeatedConfidence,
				Reason:     fmt.Sprintf("the last %d failures share the same pattern", streak),
				Severity:   repeatedErrorSeverity,
			})
		}
	}

	// Frequency tally over the most recent records, unknowns excluded.
	window := records
	if len(window) > frequencyWindow {
		window = window[len(window)-frequencyWindow:]
	}
	counts := make(map[string]int)
	order := make([]string, 0, len(window))
	for _, rec := range window {
		if rec.Pattern == PatternUnknown {
			continue
		}
		if counts[rec.Pattern] == 0 {
			order = append(order, rec.Pattern)
		}
		counts[rec.Pattern]++
	}

	for _, pattern := range order {
		n := counts[pattern]
		confidence := frequencyBase + frequencyPerHit*n
		if confidence > frequencyCap {
			confidence = frequencyCap
		}
		for _, sign := range SignsFor(pattern) {
			emit(Suggestion{
				SignText:   sign,
				Pattern:    pattern,
				Confidence: confidence,
				Reason:     fmt.Sprintf("%s occurred %d time(s) in the last %d failures", pattern, n, len(window)),
				Severity:   SeverityFor(pattern),
			})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Severity.rank() != out[j].Severity.rank() {
			return out[i].Severity.rank() < out[j].Severity.rank()
		}
		return out[i].Confidence > out[j].Confidence
	})

	if len(out) > maxSuggestions {
		out = out[:maxSuggestions]
	}
	return out
}
