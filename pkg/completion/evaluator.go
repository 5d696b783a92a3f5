// Package completion evaluates a session's declared completion criteria
// against the latest observed signals (test counts, raw tool output).
//
// The evaluator is a pure function: it holds no state and is re-run from
// scratch every iteration. Criteria are free text classified by keyword
// heuristics into a fixed set of checks; a criterion that matches no
// heuristic is treated as not yet satisfied. That conservative default means
// unusual phrasing can never auto-pass a session.
package completion

import (
	"math"
	"strings"
)

// Check identifies the fixed evaluation a criterion maps to.
type Check string

const (
	CheckTestsPass     Check = "tests-pass"
	CheckBuildSucceeds Check = "build-succeeds"
	CheckNoTypeErrors  Check = "no-type-errors"

	// CheckUnrecognized marks criteria no heuristic claims. Always unsatisfied.
	CheckUnrecognized Check = "unrecognized"
)

// Signals carries the latest observations fed into an evaluation.
// Test counts are the most recent values, not cumulative.
type Signals struct {
	TestsPassed int
	TestsFailed int
	RawOutput   string
}

// CriterionResult records how one criterion evaluated.
type CriterionResult struct {
	Criterion string `json:"criterion"`
	Check     Check  `json:"check"`
	Satisfied bool   `json:"satisfied"`
}

// Evaluation is the outcome of scoring all criteria.
type Evaluation struct {
	Results   []CriterionResult `json:"results"`
	Satisfied int               `json:"satisfied"`
	Total     int               `json:"total"`
	Progress  int               `json:"progress"` // 0-100
	Complete  bool              `json:"complete"`
}

// classifyCriterion maps free-text criterion phrasing to a check.
func classifyCriterion(criterion string) Check {
	lowered := strings.ToLower(criterion)

	switch {
	case strings.Contains(lowered, "test") &&
		(strings.Contains(lowered, "pass") || strings.Contains(lowered, "green") || strings.Contains(lowered, "succeed")):
		return CheckTestsPass
	case strings.Contains(lowered, "build") || strings.Contains(lowered, "compile"):
		return CheckBuildSucceeds
	case strings.Contains(lowered, "type error") || strings.Contains(lowered, "typecheck") ||
		strings.Contains(lowered, "type check") || strings.Contains(lowered, "lint"):
		return CheckNoTypeErrors
	default:
		return CheckUnrecognized
	}
}

// buildFailureMarkers are output substrings that indicate a broken build.
//
//nolint:gochecknoglobals // Static keyword table
var buildFailureMarkers = []string{
	"build failed",
	"compilation failed",
	"compile error",
	"cannot build",
	"exit status 2",
}

// typeErrorMarkers are output substrings that indicate type or lint errors.
//
//nolint:gochecknoglobals // Static keyword table
var typeErrorMarkers = []string{
	"type error",
	"is not assignable",
	"cannot use",
	"ts2",
	"lint error",
}

// satisfied evaluates one check against the signals.
func satisfied(check Check, sig Signals) bool {
	lowered := strings.ToLower(sig.RawOutput)

	switch check {
	case CheckTestsPass:
		return sig.TestsFailed == 0 && sig.TestsPassed > 0

	case CheckBuildSucceeds:
		// Absence-of-failure check: needs actual output to be evidence.
		if lowered == "" {
			return false
		}
		for _, marker := range buildFailureMarkers {
			if strings.Contains(lowered, marker) {
				return false
			}
		}
		return true

	case CheckNoTypeErrors:
		if lowered == "" {
			return false
		}
		for _, marker := range typeErrorMarkers {
			if strings.Contains(lowered, marker) {
				return false
			}
		}
		return true

	default:
		return false
	}
}

// Evaluate scores all criteria against the signals. A session with zero
// declared criteria scores 0 and can never auto-complete.
func Evaluate(criteria []string, sig Signals) Evaluation {
	eval := Evaluation{
		Results: make([]CriterionResult, 0, len(criteria)),
		Total:   len(criteria),
	}

	for _, criterion := range criteria {
		check := classifyCriterion(criterion)
		ok := satisfied(check, sig)
		if ok {
			eval.Satisfied++
		}
		eval.Results = append(eval.Results, CriterionResult{
			Criterion: criterion,
			Check:     check,
			Satisfied: ok,
		})
	}

	if eval.Total > 0 {
		eval.Progress = int(math.Round(100 * float64(eval.Satisfied) / float64(eval.Total)))
		eval.Complete = eval.Satisfied == eval.Total
	}
	return eval
}
