package generate

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_KnownBackends(t *testing.T) {
	for _, backend := range []string{BackendAnthropic, BackendOpenAI, BackendOllama, BackendGoogle} {
		gen, err := New(backend, Options{APIKey: "test-key"})
		require.NoError(t, err, "backend %s", backend)
		assert.Equal(t, backend, gen.Backend())
	}
}

func TestNew_UnknownBackend(t *testing.T) {
	_, err := New("cursor", Options{})
	assert.Error(t, err)
}

func TestRequestBudget_ClampsToDefault(t *testing.T) {
	assert.Equal(t, DefaultMaxTokens, Request{}.budget())
	assert.Equal(t, DefaultMaxTokens, Request{MaxTokens: -1}.budget())
	assert.Equal(t, 512, Request{MaxTokens: 512}.budget())
}

func TestExtractFiles(t *testing.T) {
	output := "Here is the fix.\n\n" +
		"File: src/app.go\n```go\npackage app\n\nfunc Fixed() bool { return true }\n```\n\n" +
		"// file: src/app_test.go\n```go\npackage app\n```\n"

	files := ExtractFiles(output)
	require.Len(t, files, 2)
	assert.Contains(t, files["src/app.go"], "func Fixed() bool")
	assert.Contains(t, files["src/app_test.go"], "package app")
}

func TestExtractFiles_NoBlocks(t *testing.T) {
	assert.Empty(t, ExtractFiles("just prose, no code"))
	assert.Empty(t, ExtractFiles(""))
	// A fence without a filename header is not applicable.
	assert.Empty(t, ExtractFiles("```go\npackage x\n```"))
}

func TestExtractFiles_UnterminatedFence(t *testing.T) {
	output := "File: a.go\n```go\npackage a\n" // fence never closed
	assert.Empty(t, ExtractFiles(output))
}

func TestScriptedGenerator_ReplaysSteps(t *testing.T) {
	boom := errors.New("model overloaded")
	gen := NewScriptedGenerator(
		ScriptStep{Output: "first"},
		ScriptStep{Err: boom},
		ScriptStep{Output: "third"},
	)

	res, err := gen.Generate(context.Background(), Request{Prompt: "go"})
	require.NoError(t, err)
	assert.Equal(t, "first", res.Output)

	_, err = gen.Generate(context.Background(), Request{Prompt: "go"})
	assert.ErrorIs(t, err, boom)

	res, err = gen.Generate(context.Background(), Request{Prompt: "go"})
	require.NoError(t, err)
	assert.Equal(t, "third", res.Output)

	// Exhausted scripts repeat the last step.
	res, err = gen.Generate(context.Background(), Request{Prompt: "go"})
	require.NoError(t, err)
	assert.Equal(t, "third", res.Output)

	assert.Equal(t, 4, gen.Calls())
}

func TestScriptedGenerator_RespectsCancellation(t *testing.T) {
	gen := NewScriptedGenerator(ScriptStep{Output: "never"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := gen.Generate(ctx, Request{})
	assert.Error(t, err)
}
