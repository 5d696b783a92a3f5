package failures

import "testing"

func TestClassify_KeywordMatch(t *testing.T) {
	testCases := []struct {
		name     string
		text     string
		expected string
	}{
		{"jest assertion", "expect(received).toBe(expected) mismatch", PatternTestAssertion},
		{"python assertion", "AssertionError: 3 != 4", PatternTestAssertion},
		{"go want", "got: 3, want: 4", PatternTestAssertion},
		{"ts type error", "error TS2322: Type 'string' is not assignable to type 'number'", PatternTypeError},
		{"go type error", "cannot use x (variable of type int) as string", PatternTypeError},
		{"syntax", "SyntaxError: Unexpected token '}'", PatternSyntaxError},
		{"module", "Error: Cannot find module './util'", PatternImportError},
		{"go undefined", "undefined: helperFunc", PatternImportError},
		{"build", "Build failed with 2 errors", PatternBuildFailure},
		{"timeout", "test timed out after 30s", PatternTimeout},
		{"rate limit", "API error 429: rate limit exceeded", PatternAPIError},
		{"permission", "open /etc/hosts: permission denied", PatternPermissionError},
		{"no match", "something completely novel happened", PatternUnknown},
		{"empty", "", PatternUnknown},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Classify(tc.text); got != tc.expected {
				t.Errorf("Classify(%q) = %s, want %s", tc.text, got, tc.expected)
			}
		})
	}
}

func TestClassify_CaseInsensitive(t *testing.T) {
	if got := Classify("EXPECT(value).TOBE(true)"); got != PatternTestAssertion {
		t.Errorf("Expected case-insensitive match, got %s", got)
	}
}

func TestClassify_TableOrderWins(t *testing.T) {
	// Text matching both test_assertion and build_failure keywords:
	// test_assertion appears earlier in the table and must win.
	text := "build failed: expect(x).toBe(y)"
	if got := Classify(text); got != PatternTestAssertion {
		t.Errorf("Expected first table match test_assertion, got %s", got)
	}
}

func TestClassify_HistoryOnlyPatternsUnreachable(t *testing.T) {
	// The history-detected categories have no keywords, so no text can
	// classify into them directly.
	for _, text := range []string{
		"same_error_repeated", "infinite_changes", "regression detected",
	} {
		got := Classify(text)
		if got == PatternSameErrorRepeated || got == PatternInfiniteChanges {
			t.Errorf("Classify(%q) reached history-only pattern %s", text, got)
		}
	}
}

func TestSignsFor(t *testing.T) {
	if signs := SignsFor(PatternSameErrorRepeated); len(signs) == 0 {
		t.Error("Expected signs registered for same_error_repeated")
	}
	if signs := SignsFor("nonexistent"); signs != nil {
		t.Errorf("Expected nil signs for unregistered pattern, got %v", signs)
	}
}

func TestSeverityFor(t *testing.T) {
	if sev := SeverityFor(PatternSameErrorRepeated); sev != SeverityCritical {
		t.Errorf("Expected critical severity, got %s", sev)
	}
	if sev := SeverityFor("nonexistent"); sev != SeverityLow {
		t.Errorf("Expected low severity fallback, got %s", sev)
	}
}
