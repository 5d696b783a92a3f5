package utils

import "strings"

// SanitizeIdentifier makes an identifier safe for filesystem paths and
// process names. Session IDs may carry colons (e.g. "anthropic:001"), which
// break both.
func SanitizeIdentifier(id string) string {
	sanitized := strings.ReplaceAll(id, ":", "-")
	sanitized = strings.ReplaceAll(sanitized, " ", "-")
	sanitized = strings.ReplaceAll(sanitized, "/", "-")
	sanitized = strings.ReplaceAll(sanitized, "\\", "-")
	return sanitized
}
