package workspace

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListProjectFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "src"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "node_modules", "dep"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".git"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "src", "app.go"), []byte("package src"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "node_modules", "dep", "index.js"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".git", "HEAD"), []byte("ref"), 0644))

	ws := New(dir)
	files := ws.ListProjectFiles()

	assert.Contains(t, files, "main.go")
	assert.Contains(t, files, filepath.Join("src", "app.go"))
	for _, f := range files {
		assert.False(t, strings.HasPrefix(f, "node_modules"), "node_modules must be skipped")
		assert.False(t, strings.HasPrefix(f, ".git"), ".git must be skipped")
	}
}

func TestListProjectFiles_MissingDirIsBestEffort(t *testing.T) {
	ws := New(filepath.Join(t.TempDir(), "does-not-exist"))
	// Must not panic or error, just return nothing.
	assert.Empty(t, ws.ListProjectFiles())
}

func TestSnapshot_PlaceholderOnFailure(t *testing.T) {
	ws := New(filepath.Join(t.TempDir(), "missing"))
	assert.Equal(t, SnapshotPlaceholder, ws.Snapshot())
}

func TestSnapshot_ListsFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.go"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.go"), []byte("y"), 0644))

	snap := New(dir).Snapshot()
	assert.Contains(t, snap, "a.go")
	assert.Contains(t, snap, "b.go")
}

func TestTuningFileRoundTrip(t *testing.T) {
	ws := New(t.TempDir())

	_, exists := ws.ReadTuningFile()
	assert.False(t, exists)

	require.NoError(t, ws.AppendTuningFile("Always run the failing test first"))
	content, exists := ws.ReadTuningFile()
	require.True(t, exists)
	assert.Contains(t, content, "Always run the failing test first")

	// Appends accumulate.
	require.NoError(t, ws.AppendTuningFile("Do not rewrite tests"))
	content, _ = ws.ReadTuningFile()
	assert.Contains(t, content, "Always run the failing test first")
	assert.Contains(t, content, "Do not rewrite tests")
}

func TestApply_WritesFiles(t *testing.T) {
	dir := t.TempDir()
	ws := New(dir)

	touched, err := ws.Apply(map[string]string{
		"main.go":            "package main\n",
		"internal/helper.go": "package internal\n",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join("internal", "helper.go"), "main.go"}, touched)

	data, err := os.ReadFile(filepath.Join(dir, "main.go"))
	require.NoError(t, err)
	assert.Equal(t, "package main\n", string(data))
}

func TestApply_RejectsEscapingPaths(t *testing.T) {
	ws := New(t.TempDir())

	_, err := ws.Apply(map[string]string{"../evil.sh": "rm -rf"})
	assert.Error(t, err)

	_, err = ws.Apply(map[string]string{"/etc/passwd": "boom"})
	assert.Error(t, err)
}
