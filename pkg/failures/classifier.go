package failures

import "strings"

// Classify maps raw failure text to a pattern name.
//
// The text is lowercased and categories are scanned in table order; the
// first category with a substring match wins. Categories without keywords
// (same_error_repeated, infinite_changes, regression) are unreachable here.
// Classification is a pure function of the text and the static table; it
// never consults history.
func Classify(text string) string {
	lowered := strings.ToLower(text)
	for i := range categoryTable {
		cat := &categoryTable[i]
		for _, kw := range cat.keywords {
			if strings.Contains(lowered, kw) {
				return cat.name
			}
		}
	}
	return PatternUnknown
}
