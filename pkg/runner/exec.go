// Package runner is the process-supervision collaborator: it executes test
// commands in session working directories, parses pass/fail counts from
// their output, and tracks running processes per session so stop() can kill
// them mid-flight.
package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// ExecResult captures the outcome of a command execution.
type ExecResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// Combined returns stdout and stderr joined for log/classification use.
func (r ExecResult) Combined() string {
	if r.Stderr == "" {
		return r.Stdout
	}
	if r.Stdout == "" {
		return r.Stderr
	}
	return r.Stdout + "\n" + r.Stderr
}

// ExecOpts controls a single execution.
type ExecOpts struct {
	WorkDir string
	Env     []string
	Timeout time.Duration
}

// Executor runs commands. The local implementation is the default; tests
// substitute scripted ones.
type Executor interface {
	Run(ctx context.Context, cmd []string, opts ExecOpts) (ExecResult, error)
}

// LocalExec executes commands directly on the local system.
type LocalExec struct{}

// NewLocalExec creates a LocalExec executor.
func NewLocalExec() *LocalExec {
	return &LocalExec{}
}

// Run executes a command locally with the given options. A non-zero exit
// code is reported through ExecResult, not as an error; errors mean the
// command could not run at all.
func (e *LocalExec) Run(ctx context.Context, cmd []string, opts ExecOpts) (ExecResult, error) {
	if len(cmd) == 0 {
		return ExecResult{}, errors.New("command cannot be empty")
	}

	startTime := time.Now()

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	execCmd := exec.CommandContext(ctx, cmd[0], cmd[1:]...)

	if opts.WorkDir != "" {
		if _, err := os.Stat(opts.WorkDir); os.IsNotExist(err) {
			return ExecResult{}, fmt.Errorf("working directory does not exist: %s", opts.WorkDir)
		}
		execCmd.Dir = opts.WorkDir
	}

	if len(opts.Env) > 0 {
		execCmd.Env = append(os.Environ(), opts.Env...)
	}

	var stdoutBuf, stderrBuf strings.Builder
	execCmd.Stdout = &stdoutBuf
	execCmd.Stderr = &stderrBuf

	err := execCmd.Run()

	result := ExecResult{
		Stdout:   stdoutBuf.String(),
		Stderr:   stderrBuf.String(),
		Duration: time.Since(startTime),
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			// Caller checks ExitCode; a failing test suite is not an exec error.
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		result.ExitCode = -1
		return result, fmt.Errorf("command failed to run: %w", err)
	}

	return result, nil
}
