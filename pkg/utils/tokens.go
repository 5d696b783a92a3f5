// Package utils provides small shared helpers: identifier sanitization and
// tiktoken-based token counting used to bound prompt and output sizes.
package utils

import (
	"fmt"
	"unicode/utf8"

	"github.com/tiktoken-go/tokenizer"
)

// TokenCounter provides token counting for bounding prompts and output
// snapshots. All supported backends are approximated with the GPT-4 encoding,
// which is close enough for budget checks.
type TokenCounter struct {
	codec tokenizer.Codec
}

// NewTokenCounter creates a token counter. The backend name is accepted for
// future per-model encodings; currently every backend maps to GPT-4.
func NewTokenCounter(backend string) (*TokenCounter, error) {
	codec, err := tokenizer.ForModel(tokenizer.GPT4)
	if err != nil {
		return nil, fmt.Errorf("failed to create tokenizer codec for backend %s: %w", backend, err)
	}
	return &TokenCounter{codec: codec}, nil
}

// CountTokens returns the number of tokens in the given text.
// Falls back to a 4-chars-per-token estimate if the codec is unavailable.
func (tc *TokenCounter) CountTokens(text string) int {
	if tc == nil || tc.codec == nil {
		return len(text) / 4
	}
	count, err := tc.codec.Count(text)
	if err != nil {
		return len(text) / 4
	}
	return count
}

// TruncateToTokens returns text cut down so it fits within maxTokens.
// Truncation keeps the tail of the text: for tool output the most recent
// lines carry the failure detail that matters.
func (tc *TokenCounter) TruncateToTokens(text string, maxTokens int) string {
	if maxTokens <= 0 || text == "" {
		return ""
	}
	if tc.CountTokens(text) <= maxTokens {
		return text
	}

	// Binary search the largest suffix that fits.
	lo, hi := 0, len(text)
	for lo < hi {
		mid := (lo + hi) / 2
		if tc.CountTokens(text[mid:]) <= maxTokens {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	// The cut may land inside a multi-byte rune; advance to the next
	// boundary so the suffix stays valid UTF-8.
	for lo < len(text) && !utf8.RuneStart(text[lo]) {
		lo++
	}
	return text[lo:]
}
