// Package workspace is the file collaborator for session working
// directories: best-effort project listings for prompt context, the
// project-scoped tuning file that carries persisted guidance between
// iterations, and application of generated file contents.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"autopilot/pkg/logx"
)

// TuningFileName is the project-scoped guidance file. Its content takes
// priority over the raw session prompt and accumulates appended signs.
const TuningFileName = "AGENT_NOTES.md"

// SnapshotPlaceholder substitutes for a project listing when the walk fails.
// The loop must keep iterating even when the filesystem misbehaves.
const SnapshotPlaceholder = "(project files unavailable)"

// maxListedFiles bounds the walk so huge trees don't bloat prompts.
const maxListedFiles = 200

// skippedDirs are never descended into during project walks.
//
//nolint:gochecknoglobals // Static skip list
var skippedDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"vendor":       true,
	".autopilot":   true,
	"dist":         true,
	"build":        true,
}

// Workspace provides file operations scoped to one working directory.
type Workspace struct {
	workDir string
	logger  *logx.Logger
}

// New creates a workspace rooted at workDir.
func New(workDir string) *Workspace {
	return &Workspace{
		workDir: workDir,
		logger:  logx.NewLogger("workspace"),
	}
}

// Dir returns the working directory this workspace is rooted at.
func (w *Workspace) Dir() string {
	return w.workDir
}

// ListProjectFiles returns relative paths of project files, sorted, capped at
// maxListedFiles. Best-effort: it never returns an error, only a possibly
// empty slice.
func (w *Workspace) ListProjectFiles() []string {
	var files []string

	err := filepath.WalkDir(w.workDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			// Skip unreadable entries instead of aborting the walk.
			return nil //nolint:nilerr // Best-effort listing tolerates errors
		}
		if d.IsDir() {
			if skippedDirs[d.Name()] || (strings.HasPrefix(d.Name(), ".") && path != w.workDir) {
				return filepath.SkipDir
			}
			return nil
		}
		rel, relErr := filepath.Rel(w.workDir, path)
		if relErr != nil {
			return nil //nolint:nilerr // Best-effort listing tolerates errors
		}
		files = append(files, rel)
		if len(files) >= maxListedFiles {
			return filepath.SkipAll
		}
		return nil
	})
	if err != nil {
		w.logger.Debug("project walk failed for %s: %v", w.workDir, err)
		return nil
	}

	sort.Strings(files)
	return files
}

// Snapshot produces a textual project-state snapshot for prompt building.
// Falls back to a fixed placeholder when the listing is empty or unavailable.
func (w *Workspace) Snapshot() string {
	files := w.ListProjectFiles()
	if len(files) == 0 {
		return SnapshotPlaceholder
	}
	return strings.Join(files, "\n")
}

// ReadTuningFile returns the tuning file content and whether it exists.
func (w *Workspace) ReadTuningFile() (string, bool) {
	data, err := os.ReadFile(filepath.Join(w.workDir, TuningFileName))
	if err != nil {
		return "", false
	}
	return string(data), true
}

// AppendTuningFile appends a guidance entry to the tuning file, creating it
// if missing. Entries are timestamped so a human can audit what the
// controller injected and when.
func (w *Workspace) AppendTuningFile(text string) error {
	path := filepath.Join(w.workDir, TuningFileName)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open tuning file %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	entry := fmt.Sprintf("\n<!-- added %s -->\n%s\n",
		time.Now().UTC().Format(time.RFC3339), strings.TrimSpace(text))
	if _, err := f.WriteString(entry); err != nil {
		return fmt.Errorf("failed to append to tuning file %s: %w", path, err)
	}
	return nil
}

// Apply writes generated file contents into the working directory and
// returns the relative paths touched. Paths escaping the working directory
// are rejected; the controller never applies diffs, only whole files.
func (w *Workspace) Apply(files map[string]string) ([]string, error) {
	touched := make([]string, 0, len(files))

	for rel, content := range files {
		cleaned := filepath.Clean(rel)
		if filepath.IsAbs(cleaned) || strings.HasPrefix(cleaned, "..") {
			return touched, fmt.Errorf("refusing to write outside working directory: %s", rel)
		}

		full := filepath.Join(w.workDir, cleaned)
		if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
			return touched, fmt.Errorf("failed to create directory for %s: %w", cleaned, err)
		}
		if err := os.WriteFile(full, []byte(content), 0644); err != nil {
			return touched, fmt.Errorf("failed to write %s: %w", cleaned, err)
		}
		touched = append(touched, cleaned)
	}

	sort.Strings(touched)
	return touched, nil
}
