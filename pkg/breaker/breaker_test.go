package breaker

import "testing"

func TestStateString(t *testing.T) {
	testCases := []struct {
		state    State
		expected string
	}{
		{Closed, "CLOSED"},
		{Open, "OPEN"},
		{HalfOpen, "HALF_OPEN"},
		{State(99), "UNKNOWN"},
	}

	for _, tc := range testCases {
		if got := tc.state.String(); got != tc.expected {
			t.Errorf("State(%d).String() = %s, want %s", tc.state, got, tc.expected)
		}
	}
}

func TestParseState(t *testing.T) {
	for _, s := range []State{Closed, Open, HalfOpen} {
		parsed, err := ParseState(s.String())
		if err != nil {
			t.Errorf("ParseState(%s) returned error: %v", s, err)
		}
		if parsed != s {
			t.Errorf("ParseState(%s) = %v, want %v", s, parsed, s)
		}
	}

	if _, err := ParseState("BOGUS"); err == nil {
		t.Error("Expected error for unknown state string")
	}
}

func TestNext_ProgressClosesFromAnyState(t *testing.T) {
	for _, from := range []State{Closed, Open, HalfOpen} {
		state, count := Next(from, 5, 3, true)
		if state != Closed {
			t.Errorf("Next(%s, progress) = %s, want CLOSED", from, state)
		}
		if count != 0 {
			t.Errorf("Next(%s, progress) count = %d, want 0", from, count)
		}
	}
}

func TestNext_ClosedOpensAtThreshold(t *testing.T) {
	threshold := 3
	state, count := Closed, 0

	// Two non-progress iterations: still closed.
	for i := 1; i <= threshold-1; i++ {
		state, count = Next(state, count, threshold, false)
		if state != Closed {
			t.Fatalf("Breaker opened early at iteration %d", i)
		}
		if count != i {
			t.Fatalf("Expected count %d, got %d", i, count)
		}
	}

	// Threshold-reaching iteration opens the breaker, not before.
	state, count = Next(state, count, threshold, false)
	if state != Open {
		t.Errorf("Expected OPEN at threshold, got %s", state)
	}
	if count != threshold {
		t.Errorf("Expected count %d, got %d", threshold, count)
	}
}

func TestNext_HalfOpenReopensImmediately(t *testing.T) {
	// HALF_OPEN grants one iteration of grace, not a fresh threshold.
	state, _ := Next(HalfOpen, 3, 5, false)
	if state != Open {
		t.Errorf("Expected HALF_OPEN to re-open on non-progress, got %s", state)
	}
}

func TestNext_HalfOpenClosesOnProgress(t *testing.T) {
	state, count := Next(HalfOpen, 3, 3, true)
	if state != Closed || count != 0 {
		t.Errorf("Expected CLOSED/0 after progress in HALF_OPEN, got %s/%d", state, count)
	}
}

func TestBreaker_ObserveProgress(t *testing.T) {
	b := New(2)

	if got := b.ObserveProgress(false); got != Closed {
		t.Errorf("Expected CLOSED after first non-progress, got %s", got)
	}
	if got := b.ObserveProgress(false); got != Open {
		t.Errorf("Expected OPEN at threshold, got %s", got)
	}
	if b.NoProgressCount() != 2 {
		t.Errorf("Expected count 2, got %d", b.NoProgressCount())
	}

	if got := b.ObserveProgress(true); got != Closed {
		t.Errorf("Expected CLOSED after progress, got %s", got)
	}
	if b.NoProgressCount() != 0 {
		t.Errorf("Expected count reset to 0, got %d", b.NoProgressCount())
	}
}

func TestBreaker_ClosedInvariant(t *testing.T) {
	// noProgressCount < threshold must hold whenever the breaker is CLOSED.
	b := New(3)
	for i := 0; i < 10; i++ {
		b.ObserveProgress(false)
		if b.State() == Closed && b.NoProgressCount() >= b.Threshold() {
			t.Fatalf("Invariant violated: CLOSED with count %d >= threshold %d",
				b.NoProgressCount(), b.Threshold())
		}
	}
}

func TestBreaker_Reset(t *testing.T) {
	b := New(1)
	b.ObserveProgress(false)
	if b.State() != Open {
		t.Fatal("Expected OPEN before reset")
	}

	b.Reset()
	if b.State() != Closed {
		t.Errorf("Expected CLOSED after reset, got %s", b.State())
	}
	if b.NoProgressCount() != 0 {
		t.Errorf("Expected count 0 after reset, got %d", b.NoProgressCount())
	}
}

func TestBreaker_TryHalfOpen(t *testing.T) {
	b := New(1)

	// Not open: no-op.
	b.TryHalfOpen()
	if b.State() != Closed {
		t.Errorf("TryHalfOpen on closed breaker changed state to %s", b.State())
	}

	b.ObserveProgress(false)
	b.TryHalfOpen()
	if b.State() != HalfOpen {
		t.Errorf("Expected HALF_OPEN, got %s", b.State())
	}

	// Resume then progress: ends CLOSED, not HALF_OPEN.
	b.ObserveProgress(true)
	if b.State() != Closed {
		t.Errorf("Expected CLOSED after progress in HALF_OPEN, got %s", b.State())
	}
}

func TestNew_ClampsThreshold(t *testing.T) {
	b := New(0)
	if b.Threshold() != 1 {
		t.Errorf("Expected threshold clamped to 1, got %d", b.Threshold())
	}
}
