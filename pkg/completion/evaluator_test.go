package completion

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluate_EmptyCriteriaNeverCompletes(t *testing.T) {
	// Even with perfect signals, zero criteria means zero progress.
	eval := Evaluate(nil, Signals{TestsPassed: 100, TestsFailed: 0, RawOutput: "all good"})

	assert.Equal(t, 0, eval.Progress)
	assert.False(t, eval.Complete)
	assert.Equal(t, 0, eval.Total)
}

func TestEvaluate_TestsPassCriterion(t *testing.T) {
	criteria := []string{"all tests pass"}

	eval := Evaluate(criteria, Signals{TestsPassed: 5, TestsFailed: 0})
	assert.Equal(t, 100, eval.Progress)
	assert.True(t, eval.Complete)

	eval = Evaluate(criteria, Signals{TestsPassed: 5, TestsFailed: 1})
	assert.Equal(t, 0, eval.Progress)
	assert.False(t, eval.Complete)

	// Zero tests observed is not evidence of passing.
	eval = Evaluate(criteria, Signals{TestsPassed: 0, TestsFailed: 0})
	assert.False(t, eval.Complete)
}

func TestEvaluate_BuildSucceedsCriterion(t *testing.T) {
	criteria := []string{"the build succeeds"}

	eval := Evaluate(criteria, Signals{RawOutput: "ok  \tautopilot/pkg/loop\t0.3s"})
	assert.True(t, eval.Complete)

	eval = Evaluate(criteria, Signals{RawOutput: "Build failed with 3 errors"})
	assert.False(t, eval.Complete)

	// No output at all: no evidence, stays unsatisfied.
	eval = Evaluate(criteria, Signals{})
	assert.False(t, eval.Complete)
}

func TestEvaluate_NoTypeErrorsCriterion(t *testing.T) {
	criteria := []string{"no type errors"}

	eval := Evaluate(criteria, Signals{RawOutput: "checked 42 files, clean"})
	assert.True(t, eval.Complete)

	eval = Evaluate(criteria, Signals{RawOutput: "error TS2322: 'x' is not assignable"})
	assert.False(t, eval.Complete)
}

func TestEvaluate_UnrecognizedCriterionNeverSatisfied(t *testing.T) {
	// Unusual phrasing matches no heuristic and must never auto-pass.
	criteria := []string{"the dashboard feels snappy"}

	eval := Evaluate(criteria, Signals{TestsPassed: 10, RawOutput: "everything wonderful"})
	require.Len(t, eval.Results, 1)
	assert.Equal(t, CheckUnrecognized, eval.Results[0].Check)
	assert.False(t, eval.Results[0].Satisfied)
	assert.Equal(t, 0, eval.Progress)
}

func TestEvaluate_PartialProgressRounding(t *testing.T) {
	criteria := []string{
		"all tests pass",
		"build succeeds",
		"something unusual holds",
	}
	sig := Signals{TestsPassed: 3, TestsFailed: 0, RawOutput: "ok"}

	eval := Evaluate(criteria, sig)
	assert.Equal(t, 2, eval.Satisfied)
	assert.Equal(t, 3, eval.Total)
	// round(100 * 2/3) = 67.
	assert.Equal(t, 67, eval.Progress)
	assert.False(t, eval.Complete)
}

func TestEvaluate_CompleteRequiresAllSatisfied(t *testing.T) {
	criteria := []string{"tests pass", "build succeeds"}

	eval := Evaluate(criteria, Signals{TestsPassed: 1, TestsFailed: 0, RawOutput: "ok"})
	assert.Equal(t, 100, eval.Progress)
	assert.True(t, eval.Complete)

	eval = Evaluate(criteria, Signals{TestsPassed: 1, TestsFailed: 0, RawOutput: "build failed"})
	assert.Equal(t, 50, eval.Progress)
	assert.False(t, eval.Complete)
}

func TestClassifyCriterion(t *testing.T) {
	testCases := []struct {
		criterion string
		expected  Check
	}{
		{"all tests pass", CheckTestsPass},
		{"unit tests are green", CheckTestsPass},
		{"tests succeed", CheckTestsPass},
		{"project builds cleanly", CheckBuildSucceeds},
		{"code compiles", CheckBuildSucceeds},
		{"no type errors remain", CheckNoTypeErrors},
		{"typecheck is clean", CheckNoTypeErrors},
		{"lint passes", CheckNoTypeErrors},
		{"users are happy", CheckUnrecognized},
		{"", CheckUnrecognized},
	}

	for _, tc := range testCases {
		if got := classifyCriterion(tc.criterion); got != tc.expected {
			t.Errorf("classifyCriterion(%q) = %s, want %s", tc.criterion, got, tc.expected)
		}
	}
}

func TestEvaluate_IsPure(t *testing.T) {
	criteria := []string{"tests pass"}
	sig := Signals{TestsPassed: 2}

	first := Evaluate(criteria, sig)
	second := Evaluate(criteria, sig)
	assert.Equal(t, first, second)
}
