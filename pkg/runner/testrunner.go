package runner

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"

	"autopilot/pkg/logx"
)

// DefaultTestTimeout bounds a test run. On expiry the runner reports
// zero/zero with whatever output was captured instead of blocking the loop.
const DefaultTestTimeout = 10 * time.Second

// TestOutcome reports the latest observed test counts, not cumulative ones.
type TestOutcome struct {
	Passed    int
	Failed    int
	RawOutput string
}

// TestRunner runs a session's test suite.
type TestRunner interface {
	RunTests(ctx context.Context, sessionID string) (TestOutcome, error)
}

// CommandTestRunner runs a configured test command through an Executor,
// registering the run in the process table so stop() can kill it.
type CommandTestRunner struct {
	exec    Executor
	procs   *ProcessTable
	logger  *logx.Logger
	command []string
	workDir string
	timeout time.Duration
}

// NewCommandTestRunner creates a test runner for one session's working
// directory. A zero timeout means DefaultTestTimeout.
func NewCommandTestRunner(exec Executor, procs *ProcessTable, command []string, workDir string, timeout time.Duration) *CommandTestRunner {
	if timeout <= 0 {
		timeout = DefaultTestTimeout
	}
	return &CommandTestRunner{
		exec:    exec,
		procs:   procs,
		logger:  logx.NewLogger("runner"),
		command: command,
		workDir: workDir,
		timeout: timeout,
	}
}

// RunTests executes the test command and parses pass/fail counts from its
// output. Timeouts degrade to a zero/zero outcome with partial output; only
// a command that cannot run at all surfaces as an error.
func (r *CommandTestRunner) RunTests(ctx context.Context, sessionID string) (TestOutcome, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if r.procs != nil {
		r.procs.register(sessionID, cancel)
		defer r.procs.unregister(sessionID)
	}

	result, err := r.exec.Run(runCtx, r.command, ExecOpts{
		WorkDir: r.workDir,
		Timeout: r.timeout,
	})
	output := result.Combined()

	if err != nil {
		if errors.Is(runCtx.Err(), context.Canceled) || errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			r.logger.Warn("test run for %s cut short: %v", sessionID, runCtx.Err())
			return TestOutcome{RawOutput: output}, nil
		}
		return TestOutcome{RawOutput: output}, err
	}

	passed, failed := ParseTestOutput(output)
	return TestOutcome{Passed: passed, Failed: failed, RawOutput: output}, nil
}

// Test output shapes recognized across common tool stacks:
// jest ("Tests: 1 failed, 4 passed, 5 total"), pytest ("4 passed, 1 failed
// in 0.3s"), and go test ("--- PASS:" / "--- FAIL:" markers).
//
//nolint:gochecknoglobals // Static compiled patterns
var (
	passedRe = regexp.MustCompile(`(\d+)\s+pass(?:ed|ing)?\b`)
	failedRe = regexp.MustCompile(`(\d+)\s+fail(?:ed|ing)?\b`)
	goPassRe = regexp.MustCompile(`(?m)^--- PASS:`)
	goFailRe = regexp.MustCompile(`(?m)^--- FAIL:`)
)

// ParseTestOutput extracts passed/failed counts from raw test output.
// Unrecognized output parses as zero/zero.
func ParseTestOutput(output string) (passed, failed int) {
	lowered := strings.ToLower(output)

	if m := passedRe.FindStringSubmatch(lowered); m != nil {
		passed, _ = strconv.Atoi(m[1])
	}
	if m := failedRe.FindStringSubmatch(lowered); m != nil {
		failed, _ = strconv.Atoi(m[1])
	}
	if passed > 0 || failed > 0 {
		return passed, failed
	}

	// Fall back to counting go test result markers.
	passed = len(goPassRe.FindAllString(output, -1))
	failed = len(goFailRe.FindAllString(output, -1))
	return passed, failed
}
