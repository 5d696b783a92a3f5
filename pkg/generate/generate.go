// Package generate is the code-generation collaborator. It wraps the
// supported model backends (Anthropic, OpenAI, Ollama, Gemini) behind a
// single Generator interface: one prompt in, one text result out. The
// result is opaque to the controller; this package also provides a helper
// that extracts named file contents from fenced output for the apply step.
package generate

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// Backend identifiers accepted in session configuration.
const (
	BackendAnthropic = "anthropic"
	BackendOpenAI    = "openai"
	BackendOllama    = "ollama"
	BackendGoogle    = "google"
)

// DefaultMaxTokens is the output budget used when a request carries none.
// Hosted backends reject a zero budget outright, so every backend clamps
// to this floor.
const DefaultMaxTokens = 4096

// Request is one generation call. System carries persistent instructions;
// Prompt carries the per-iteration task text. A MaxTokens of zero or less
// is replaced with DefaultMaxTokens by the backend.
type Request struct {
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float32
}

// budget returns the effective output token budget for the request.
func (r Request) budget() int {
	if r.MaxTokens <= 0 {
		return DefaultMaxTokens
	}
	return r.MaxTokens
}

// Result is the opaque outcome of a generation call.
type Result struct {
	Output     string // full files and/or unified diff as text
	StopReason string
	Model      string
}

// Generator produces code for one iteration.
type Generator interface {
	Generate(ctx context.Context, req Request) (Result, error)
	Backend() string
}

// Options configures backend construction.
type Options struct {
	APIKey  string
	Model   string
	HostURL string // ollama only
}

// New creates a Generator for the named backend.
func New(backend string, opts Options) (Generator, error) {
	switch backend {
	case BackendAnthropic:
		return NewAnthropicGenerator(opts.APIKey, opts.Model), nil
	case BackendOpenAI:
		return NewOpenAIGenerator(opts.APIKey, opts.Model), nil
	case BackendOllama:
		return NewOllamaGenerator(opts.HostURL, opts.Model), nil
	case BackendGoogle:
		return NewGoogleGenerator(opts.APIKey, opts.Model), nil
	default:
		return nil, fmt.Errorf("unknown generation backend: %q", backend)
	}
}

// fileHeaderRe matches a filename line immediately preceding a fenced code
// block, e.g. "// file: src/app.go" or "File: src/app.go".
//
//nolint:gochecknoglobals // Static compiled pattern
var fileHeaderRe = regexp.MustCompile(`(?mi)^(?:(?://|#)\s*)?file:\s*(\S+)\s*\n` + "```" + `[^\n]*\n`)

// ExtractFiles parses generated output for named fenced file blocks:
//
//	File: path/to/file.go
//	```go
//	...content...
//	```
//
// Output without recognizable file blocks yields an empty map; the
// controller then records the iteration as producing no applicable changes.
// Diff application is deliberately out of scope here.
func ExtractFiles(output string) map[string]string {
	files := make(map[string]string)

	locs := fileHeaderRe.FindAllStringSubmatchIndex(output, -1)
	for _, loc := range locs {
		path := output[loc[2]:loc[3]]
		bodyStart := loc[1]

		end := strings.Index(output[bodyStart:], "\n```")
		if end < 0 {
			continue
		}
		content := output[bodyStart : bodyStart+end]
		files[path] = content + "\n"
	}
	return files
}
