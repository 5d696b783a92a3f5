package loop

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"autopilot/pkg/breaker"
	"autopilot/pkg/completion"
	"autopilot/pkg/failures"
	"autopilot/pkg/generate"
	"autopilot/pkg/logx"
	"autopilot/pkg/metrics"
	"autopilot/pkg/runner"
	"autopilot/pkg/utils"
	"autopilot/pkg/workspace"
)

// defaultIterationDelay is the cooperative yield between iterations. It
// bounds request rate, nothing more.
const defaultIterationDelay = 2 * time.Second

// StateWriter persists session state at iteration boundaries and on state
// transitions. Implementations must not block the loop for long; errors are
// logged, never surfaced to the loop.
type StateWriter interface {
	WriteState(cfg *Config, snap Snapshot) error
	WriteFailure(sessionID string, iteration int, pattern, rawText string) error
}

type noopWriter struct{}

func (noopWriter) WriteState(*Config, Snapshot) error             { return nil }
func (noopWriter) WriteFailure(string, int, string, string) error { return nil }

// Deps bundles the collaborators one Controller consumes.
type Deps struct {
	Generator generate.Generator
	Tests     runner.TestRunner
	Workspace *workspace.Workspace
	Failures  *failures.Store
	Metrics   metrics.Recorder
	Writer    StateWriter
	Tokens    *utils.TokenCounter
	Procs     *runner.ProcessTable

	// IterationDelay overrides the inter-iteration sleep. Zero means the
	// default; negative disables the sleep entirely (tests).
	IterationDelay time.Duration

	// MaxTokens and Temperature are forwarded to every generation request.
	// A zero MaxTokens falls back to the backend default budget.
	MaxTokens   int
	Temperature float32
}

func (d *Deps) applyDefaults() {
	if d.Metrics == nil {
		d.Metrics = metrics.NoopRecorder{}
	}
	if d.Writer == nil {
		d.Writer = noopWriter{}
	}
	if d.Failures == nil {
		d.Failures = failures.NewStore()
	}
	if d.IterationDelay == 0 {
		d.IterationDelay = defaultIterationDelay
	}
	if d.MaxTokens <= 0 {
		d.MaxTokens = generate.DefaultMaxTokens
	}
}

// Controller runs the iteration loop for exactly one session. All mutable
// state is owned here; external readers get snapshots. Control operations
// take effect at iteration boundaries.
type Controller struct {
	cfg    *Config
	deps   Deps
	logger *logx.Logger

	mu     sync.Mutex
	state  *State
	brk    *breaker.Breaker
	events *eventStream
	cancel context.CancelFunc
	done   chan struct{}
}

// NewController validates the config and builds an idle controller.
func NewController(cfg *Config, deps Deps) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid loop config: %w", err)
	}
	if deps.Generator == nil {
		return nil, fmt.Errorf("generator is required")
	}
	if deps.Tests == nil {
		return nil, fmt.Errorf("test runner is required")
	}
	if deps.Workspace == nil {
		return nil, fmt.Errorf("workspace is required")
	}
	deps.applyDefaults()

	return &Controller{
		cfg:    cfg,
		deps:   deps,
		logger: logx.NewLogger("loop").WithComponent("loop:" + cfg.SessionID),
		state:  newState(cfg),
		brk:    breaker.New(cfg.NoProgressThreshold),
		events: newEventStream(cfg.SessionID),
	}, nil
}

// Events returns the session's event stream. Best-effort, at-most-once;
// GetState is the source of truth.
func (c *Controller) Events() <-chan Event {
	return c.events.Events()
}

// GetState returns a copy of the current loop state.
func (c *Controller) GetState() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.snapshot()
}

// Start moves an idle session to running and launches the loop goroutine.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state.Status != StatusIdle {
		c.mu.Unlock()
		return fmt.Errorf("cannot start session %s: status is %s", c.cfg.SessionID, c.state.Status)
	}
	c.setStatusLocked(StatusRunning)
	c.mu.Unlock()

	c.events.emit(Event{Type: EventStarted, Snapshot: c.snapshotPtr()})
	c.persist()

	c.mu.Lock()
	c.launchLocked(ctx)
	c.mu.Unlock()
	return nil
}

// Pause stops the loop at the next iteration boundary without touching
// completion progress or the breaker. Only valid while running.
func (c *Controller) Pause() error {
	c.mu.Lock()
	if c.state.Status != StatusRunning {
		c.mu.Unlock()
		return fmt.Errorf("cannot pause session %s: status is %s", c.cfg.SessionID, c.state.Status)
	}
	c.setStatusLocked(StatusPaused)
	c.mu.Unlock()

	c.logger.Info("Session paused by user")
	c.events.emit(Event{Type: EventStateChange, Snapshot: c.snapshotPtr()})
	c.persist()
	return nil
}

// Resume re-enters the loop from paused. An open breaker gets a single-
// iteration HALF_OPEN retry window: the next progress step closes it, the
// next non-progress step re-opens it immediately. A closed breaker is left
// untouched: resuming after a user pause does not enter the grace window,
// so one bad iteration cannot re-open a breaker that never tripped.
func (c *Controller) Resume(ctx context.Context) error {
	c.mu.Lock()
	if c.state.Status != StatusPaused {
		c.mu.Unlock()
		return fmt.Errorf("cannot resume session %s: status is %s", c.cfg.SessionID, c.state.Status)
	}
	prev := c.done
	c.mu.Unlock()
	if prev != nil {
		// Let a mid-iteration loop goroutine observe the pause and exit
		// before a new one launches.
		<-prev
	}

	c.mu.Lock()
	if c.state.Status != StatusPaused {
		c.mu.Unlock()
		return fmt.Errorf("cannot resume session %s: status is %s", c.cfg.SessionID, c.state.Status)
	}
	c.brk.TryHalfOpen()
	c.state.CircuitBreaker = c.brk.State()
	c.setStatusLocked(StatusRunning)
	c.mu.Unlock()

	c.logger.Info("Session resumed, breaker %s", c.brk.State())
	c.events.emit(Event{Type: EventStateChange, Snapshot: c.snapshotPtr()})
	c.persist()

	c.mu.Lock()
	c.launchLocked(ctx)
	c.mu.Unlock()
	return nil
}

// Stop terminally fails the session from any non-terminal state. In-flight
// generation or test calls are cut via context cancellation and the
// session's subprocess entry is killed; their eventual results are
// discarded. Irreversible.
func (c *Controller) Stop() error {
	c.mu.Lock()
	if c.state.Status.Terminal() {
		c.mu.Unlock()
		return fmt.Errorf("cannot stop session %s: status is %s", c.cfg.SessionID, c.state.Status)
	}
	c.setStatusLocked(StatusFailed)
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Unlock()

	if c.deps.Procs != nil {
		c.deps.Procs.Kill(c.cfg.SessionID)
	}
	c.logger.Info("Session stopped by user")
	c.events.emit(Event{Type: EventStateChange, Snapshot: c.snapshotPtr()})
	c.persist()
	return nil
}

// ResetCircuitBreaker force-closes the breaker and zeroes the no-progress
// count without changing status. Explicit human override for a manually
// unblocked project.
func (c *Controller) ResetCircuitBreaker() {
	c.mu.Lock()
	c.brk.Reset()
	c.state.CircuitBreaker = breaker.Closed
	c.state.NoProgressCount = 0
	c.mu.Unlock()

	c.logger.Info("Circuit breaker reset by user")
	c.deps.Metrics.ObserveBreakerTransition(c.cfg.SessionID, breaker.Closed.String())
	c.events.emit(Event{Type: EventStateChange, Snapshot: c.snapshotPtr()})
	c.persist()
}

// Done returns a channel closed when the current loop goroutine exits.
// Nil before the first Start.
func (c *Controller) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// restore seeds state from a persisted session row. Must be called before
// Start; the session re-enters the loop as paused and is resumed by the
// caller.
func (c *Controller) restore(status Status, iteration, progress int, brkState breaker.State, noProgress, passed, failed int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Status = status
	c.state.CurrentIteration = iteration
	c.state.CompletionProgress = progress
	c.state.CircuitBreaker = brkState
	c.state.NoProgressCount = noProgress
	c.state.TestsPassed = passed
	c.state.TestsFailed = failed
	c.brk.Restore(brkState, noProgress)
}

func (c *Controller) setStatusLocked(status Status) {
	c.state.Status = status
}

// transitionUnlessTerminal moves to next unless a terminal status already
// landed. A stop that arrives mid-iteration writes StatusFailed; that write
// wins and the loop must not continue.
func (c *Controller) transitionUnlessTerminal(next Status) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Status.Terminal() {
		return false
	}
	c.setStatusLocked(next)
	return true
}

func (c *Controller) launchLocked(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	c.cancel = cancel
	done := make(chan struct{})
	c.done = done
	go func() {
		defer close(done)
		defer cancel()
		c.run(ctx)
	}()
}

func (c *Controller) snapshotPtr() *Snapshot {
	snap := c.GetState()
	return &snap
}

// persist writes the current state row, logging rather than propagating
// failures so storage trouble never stops the loop.
func (c *Controller) persist() {
	if err := c.deps.Writer.WriteState(c.cfg, c.GetState()); err != nil {
		c.logger.Warn("Failed to persist session state: %v", err)
	}
}

// run executes the loop body once per iteration while the session is
// running, the breaker is not open, and iteration budget remains. Strictly
// sequential within a session.
func (c *Controller) run(ctx context.Context) {
	for {
		c.mu.Lock()
		if c.state.Status != StatusRunning {
			c.mu.Unlock()
			return
		}
		if c.state.CurrentIteration >= c.cfg.MaxIterations {
			c.setStatusLocked(StatusFailed)
			c.mu.Unlock()
			c.logger.Info("Iteration budget exhausted after %d iterations", c.cfg.MaxIterations)
			c.events.emit(Event{Type: EventMaxIterationsReached, Snapshot: c.snapshotPtr()})
			c.persist()
			return
		}
		c.state.CurrentIteration++
		n := c.state.CurrentIteration
		prevProgress := c.state.CompletionProgress
		c.mu.Unlock()

		c.events.emit(Event{Type: EventIterationStart, Iteration: n})
		start := time.Now()

		result := c.runIteration(ctx, n)
		if ctx.Err() != nil {
			// Stopped mid-iteration; discard the result.
			return
		}

		if result.complete {
			if !c.transitionUnlessTerminal(StatusComplete) {
				return
			}
			c.deps.Metrics.ObserveIteration(c.cfg.SessionID, "progress", time.Since(start))
			c.deps.Metrics.SetProgress(c.cfg.SessionID, 100)
			c.logger.Info("Session complete after %d iterations", n)
			c.events.emit(Event{Type: EventComplete, Snapshot: c.snapshotPtr()})
			c.persist()
			return
		}

		progressMade := result.progress > prevProgress
		opened := c.observeProgress(progressMade)
		if opened {
			// Pause before any snapshot escapes so an OPEN breaker is never
			// observed alongside a running status.
			if !c.transitionUnlessTerminal(StatusPaused) {
				return
			}
		}

		iterResult := "no_progress"
		switch {
		case result.failed:
			iterResult = "error"
		case progressMade:
			iterResult = "progress"
		}
		c.deps.Metrics.ObserveIteration(c.cfg.SessionID, iterResult, time.Since(start))
		c.deps.Metrics.SetProgress(c.cfg.SessionID, result.progress)

		c.events.emit(Event{Type: EventIterationComplete, Iteration: n, Snapshot: c.snapshotPtr()})
		c.persist()

		if opened {
			c.logger.Warn("Circuit breaker opened after %d iterations without progress", c.brk.NoProgressCount())
			c.applySigns()
			c.events.emit(Event{Type: EventStateChange, Snapshot: c.snapshotPtr()})
			c.persist()
			return
		}

		if c.deps.IterationDelay > 0 {
			select {
			case <-time.After(c.deps.IterationDelay):
			case <-ctx.Done():
				return
			}
		}
	}
}

// iterationResult carries one iteration's observations back to the loop.
type iterationResult struct {
	progress int
	complete bool
	failed   bool
}

// runIteration executes steps 2-7 of the loop body: snapshot, prompt,
// generate, apply, test, evaluate. Transient failures are recorded and
// classified, never escape.
func (c *Controller) runIteration(ctx context.Context, n int) iterationResult {
	res := iterationResult{progress: c.GetState().CompletionProgress}

	snapshot := c.deps.Workspace.Snapshot()
	tuning, hasTuning := c.deps.Workspace.ReadTuningFile()
	prompt := buildPrompt(c.cfg, tuning, hasTuning, snapshot, c.deps.Tokens)

	genStart := time.Now()
	genResult, err := c.deps.Generator.Generate(ctx, generate.Request{
		System:      systemPrompt,
		Prompt:      prompt,
		MaxTokens:   c.deps.MaxTokens,
		Temperature: c.deps.Temperature,
	})
	if err != nil {
		if ctx.Err() != nil {
			return res
		}
		c.recordFailure(n, fmt.Sprintf("generation failed: %v", err))
		res.failed = true
		return res
	}
	c.deps.Metrics.ObserveGeneration(c.cfg.SessionID, c.deps.Generator.Backend(), genResult.Model,
		c.countTokens(genResult.Output), time.Since(genStart))

	files := generate.ExtractFiles(genResult.Output)
	applied, err := c.deps.Workspace.Apply(files)
	if err != nil {
		c.recordFailure(n, fmt.Sprintf("apply failed: %v", err))
	}

	c.mu.Lock()
	for _, path := range applied {
		c.state.FilesModified[path] = true
	}
	c.state.LastOutput = c.boundOutput(genResult.Output)
	c.mu.Unlock()
	if len(applied) > 0 {
		c.events.emitLog("Applied %d file(s)", len(applied))
	}

	outcome, err := c.deps.Tests.RunTests(ctx, c.cfg.SessionID)
	if err != nil {
		if ctx.Err() != nil {
			return res
		}
		c.recordFailure(n, fmt.Sprintf("test run failed: %v", err))
		res.failed = true
	}

	c.mu.Lock()
	c.state.TestsPassed = outcome.Passed
	c.state.TestsFailed = outcome.Failed
	c.mu.Unlock()

	switch {
	case outcome.Failed > 0:
		c.recordFailure(n, outcome.RawOutput)
		res.failed = true
	case outcome.Passed > 0:
		c.deps.Failures.RecordSuccess(c.cfg.SessionID)
	}

	eval := completion.Evaluate(c.cfg.CompletionCriteria, completion.Signals{
		TestsPassed: outcome.Passed,
		TestsFailed: outcome.Failed,
		RawOutput:   outcome.RawOutput,
	})

	c.mu.Lock()
	c.state.CompletionProgress = eval.Progress
	c.mu.Unlock()

	res.progress = eval.Progress
	res.complete = eval.Complete
	return res
}

// observeProgress feeds the breaker and mirrors its state into LoopState.
// Returns true when this observation opened the breaker.
func (c *Controller) observeProgress(progressMade bool) bool {
	before := c.brk.State()
	after := c.brk.ObserveProgress(progressMade)

	c.mu.Lock()
	c.state.CircuitBreaker = after
	c.state.NoProgressCount = c.brk.NoProgressCount()
	c.mu.Unlock()

	if after != before {
		c.deps.Metrics.ObserveBreakerTransition(c.cfg.SessionID, after.String())
	}
	return after == breaker.Open && before != breaker.Open
}

// recordFailure classifies and stores one transient iteration failure.
func (c *Controller) recordFailure(iteration int, text string) {
	rec := c.deps.Failures.RecordFailure(c.cfg.SessionID, text, iteration)

	c.mu.Lock()
	c.state.recordError("iteration %d: %s", iteration, summarize(text))
	c.mu.Unlock()

	c.deps.Metrics.ObserveFailure(c.cfg.SessionID, rec.Pattern)
	if err := c.deps.Writer.WriteFailure(c.cfg.SessionID, iteration, rec.Pattern, text); err != nil {
		c.logger.Warn("Failed to persist failure record: %v", err)
	}
	c.events.emitLog("Iteration %d failed (%s): %s", iteration, rec.Pattern, summarize(text))
}

// applySigns appends current suggestions to the project tuning file when the
// breaker opens, so the next resume iterates with corrected instructions.
func (c *Controller) applySigns() {
	suggestions := c.deps.Failures.AutoSuggestions(c.cfg.SessionID)
	if len(suggestions) == 0 {
		return
	}
	var b strings.Builder
	b.WriteString("Guidance from failure analysis:\n")
	for _, s := range suggestions {
		fmt.Fprintf(&b, "- %s (%s)\n", s.SignText, s.Reason)
	}
	if err := c.deps.Workspace.AppendTuningFile(b.String()); err != nil {
		c.logger.Warn("Failed to append tuning file: %v", err)
		return
	}
	c.events.emitLog("Recorded %d tuning suggestion(s)", len(suggestions))
}

func (c *Controller) boundOutput(text string) string {
	if c.deps.Tokens == nil {
		return text
	}
	return c.deps.Tokens.TruncateToTokens(text, maxLastOutputTokens)
}

func (c *Controller) countTokens(text string) int {
	if c.deps.Tokens == nil {
		return len(text) / 4
	}
	return c.deps.Tokens.CountTokens(text)
}

// summarize trims failure text to a single short line for logs and errors.
func summarize(text string) string {
	line := strings.TrimSpace(text)
	if idx := strings.IndexByte(line, '\n'); idx >= 0 {
		line = line[:idx]
	}
	if len(line) > 200 {
		line = line[:200]
	}
	return line
}
