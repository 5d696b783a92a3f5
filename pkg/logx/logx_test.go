package logx

import (
	"testing"
	"time"
)

func TestNewLogger(t *testing.T) {
	logger := NewLogger("loop")
	if logger == nil {
		t.Fatal("Expected non-nil logger")
	}
	if logger.Component() != "loop" {
		t.Errorf("Expected component 'loop', got %s", logger.Component())
	}
}

func TestWithComponent(t *testing.T) {
	logger := NewLogger("loop")
	child := logger.WithComponent("failures")

	if child.Component() != "failures" {
		t.Errorf("Expected component 'failures', got %s", child.Component())
	}
	if logger.Component() != "loop" {
		t.Error("WithComponent must not mutate the parent logger")
	}
}

func TestRingBufferCapturesEntries(t *testing.T) {
	logger := NewLogger("ringtest")
	logger.Info("iteration %d complete", 3)

	entries := RecentEntries("ringtest", time.Time{})
	if len(entries) == 0 {
		t.Fatal("Expected at least one buffered entry")
	}

	last := entries[len(entries)-1]
	if last.Level != string(LevelInfo) {
		t.Errorf("Expected level INFO, got %s", last.Level)
	}
	if last.Message != "iteration 3 complete" {
		t.Errorf("Unexpected message: %s", last.Message)
	}
}

func TestRecentEntriesFiltersByComponent(t *testing.T) {
	NewLogger("comp-a").Info("from a")
	NewLogger("comp-b").Info("from b")

	entries := RecentEntries("comp-a", time.Time{})
	for _, e := range entries {
		if e.Component != "comp-a" {
			t.Errorf("Expected only comp-a entries, got %s", e.Component)
		}
	}
}

func TestDebugDomainFiltering(t *testing.T) {
	SetDebug(true, []string{"loop"})
	defer SetDebug(false, nil)

	if !IsDebugEnabledFor("loop") {
		t.Error("Expected debug enabled for loop domain")
	}
	if IsDebugEnabledFor("failures") {
		t.Error("Expected debug disabled for unlisted domain")
	}

	SetDebug(true, nil)
	if !IsDebugEnabledFor("failures") {
		t.Error("Expected debug enabled for all domains when no filter set")
	}
}

func TestErrorfReturnsError(t *testing.T) {
	err := Errorf("bad state: %s", "OPEN")
	if err == nil {
		t.Fatal("Expected non-nil error")
	}
	if err.Error() != "bad state: OPEN" {
		t.Errorf("Unexpected error text: %s", err.Error())
	}
}

func TestWrapNilPassthrough(t *testing.T) {
	if Wrap(nil, "context") != nil {
		t.Error("Wrap(nil) must return nil")
	}
}

func TestWrapAddsContext(t *testing.T) {
	base := Errorf("connection refused")
	wrapped := Wrap(base, "test run")
	if wrapped == nil {
		t.Fatal("Expected non-nil wrapped error")
	}
	if wrapped.Error() != "test run: connection refused" {
		t.Errorf("Unexpected wrapped text: %s", wrapped.Error())
	}
}
