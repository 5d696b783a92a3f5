package generate

import (
	"context"
	"fmt"
	"sync"
)

// ScriptedGenerator returns pre-programmed results in order. It exists for
// tests and dry runs; once the script is exhausted it repeats the last step.
type ScriptedGenerator struct {
	mu    sync.Mutex
	steps []ScriptStep
	calls int
}

// ScriptStep is one canned generation outcome.
type ScriptStep struct {
	Output string
	Err    error
}

// NewScriptedGenerator creates a generator that replays the given steps.
func NewScriptedGenerator(steps ...ScriptStep) *ScriptedGenerator {
	return &ScriptedGenerator{steps: steps}
}

// Backend returns a fixed identifier for scripted generation.
func (g *ScriptedGenerator) Backend() string {
	return "scripted"
}

// Calls returns how many times Generate has been invoked.
func (g *ScriptedGenerator) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

// Generate replays the next scripted step.
func (g *ScriptedGenerator) Generate(ctx context.Context, _ Request) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, fmt.Errorf("generation canceled: %w", err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if len(g.steps) == 0 {
		return Result{}, fmt.Errorf("scripted generator has no steps")
	}

	idx := g.calls
	if idx >= len(g.steps) {
		idx = len(g.steps) - 1
	}
	g.calls++

	step := g.steps[idx]
	if step.Err != nil {
		return Result{}, step.Err
	}
	return Result{Output: step.Output, Model: "scripted"}, nil
}
