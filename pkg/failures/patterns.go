// Package failures turns raw iteration failures into classified history and
// ranked tuning suggestions. Classification is keyword-based and stateless;
// the history store tracks per-session failure streaks; the ranker converts
// recurring patterns into sign suggestions for the next iteration's prompt.
package failures

// Severity indicates how urgently a suggestion should be surfaced.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// rank orders severities for sorting: lower rank sorts first.
func (s Severity) rank() int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityHigh:
		return 1
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 3
	default:
		return 4
	}
}

// Pattern names for classified failure categories.
const (
	PatternTestAssertion   = "test_assertion"
	PatternTypeError       = "type_error"
	PatternSyntaxError     = "syntax_error"
	PatternImportError     = "import_error"
	PatternBuildFailure    = "build_failure"
	PatternTimeout         = "timeout"
	PatternAPIError        = "api_error"
	PatternPermissionError = "permission_error"

	// History-detected patterns. These carry no keywords and are never
	// produced by Classify; only streak analysis reaches them.
	PatternSameErrorRepeated = "same_error_repeated"
	PatternInfiniteChanges   = "infinite_changes"
	PatternRegression        = "regression"

	// PatternUnknown is the fallback when no keyword matches.
	PatternUnknown = "unknown"
)

// category describes one entry in the classification table.
type category struct {
	name     string
	keywords []string // lowercase substrings; empty = history-detected only
	signs    []string
	severity Severity
}

// categoryTable is the fixed classification table. Scan order matters:
// Classify returns the first category whose keyword matches.
//
//nolint:gochecknoglobals // Static classification table
var categoryTable = []category{
	{
		name:     PatternTestAssertion,
		keywords: []string{"expect(", ".tobe", "assertionerror", "assert.equal", "expected:", "want:"},
		signs: []string{
			"Run the failing test first and read the actual vs expected values before editing",
			"Fix the implementation to satisfy the existing assertion; do not rewrite the test",
		},
		severity: SeverityHigh,
	},
	{
		name:     PatternTypeError,
		keywords: []string{"type error", "is not assignable", "cannot use", "ts2", "incompatible type"},
		signs: []string{
			"Check the declared types at the call site before changing function signatures",
			"Run the type checker locally and fix every reported error, not just the first",
		},
		severity: SeverityHigh,
	},
	{
		name:     PatternSyntaxError,
		keywords: []string{"syntax error", "unexpected token", "parse error", "unexpected end of"},
		signs: []string{
			"Emit the complete file, not a fragment; truncated output causes parse failures",
		},
		severity: SeverityHigh,
	},
	{
		name:     PatternImportError,
		keywords: []string{"cannot find module", "module not found", "import cycle", "no such file", "undefined:"},
		signs: []string{
			"Verify the import path exists in the project before referencing it",
			"Do not invent new dependencies; use what the project already imports",
		},
		severity: SeverityMedium,
	},
	{
		name:     PatternBuildFailure,
		keywords: []string{"build failed", "compilation failed", "compile error", "exit status 2"},
		signs: []string{
			"Make the smallest change that restores a clean build before adding features",
		},
		severity: SeverityHigh,
	},
	{
		name:     PatternTimeout,
		keywords: []string{"timed out", "timeout", "deadline exceeded"},
		signs: []string{
			"Avoid long-running loops in tests; add early exits or smaller fixtures",
		},
		severity: SeverityMedium,
	},
	{
		name:     PatternAPIError,
		keywords: []string{"rate limit", "429", "connection refused", "service unavailable", "api error"},
		signs: []string{
			"Transient backend error; retry the same change before altering the approach",
		},
		severity: SeverityLow,
	},
	{
		name:     PatternPermissionError,
		keywords: []string{"permission denied", "eacces", "read-only file system"},
		signs: []string{
			"Write only inside the project working directory",
		},
		severity: SeverityMedium,
	},
	{
		name: PatternSameErrorRepeated,
		signs: []string{
			"The same error has recurred across iterations; try a fundamentally different approach",
			"Re-read the failing output carefully; the current strategy is not working",
		},
		severity: SeverityCritical,
	},
	{
		name: PatternInfiniteChanges,
		signs: []string{
			"Stop rewriting the same files; pick one file and finish it before touching others",
		},
		severity: SeverityHigh,
	},
	{
		name: PatternRegression,
		signs: []string{
			"A previously passing test now fails; revert the last change before continuing",
		},
		severity: SeverityHigh,
	},
}

// SignsFor returns the registered sign texts for a pattern, or nil when the
// pattern is unknown.
func SignsFor(pattern string) []string {
	for i := range categoryTable {
		if categoryTable[i].name == pattern {
			return categoryTable[i].signs
		}
	}
	return nil
}

// SeverityFor returns the severity registered for a pattern.
// Unknown patterns report SeverityLow.
func SeverityFor(pattern string) Severity {
	for i := range categoryTable {
		if categoryTable[i].name == pattern {
			return categoryTable[i].severity
		}
	}
	return SeverityLow
}
