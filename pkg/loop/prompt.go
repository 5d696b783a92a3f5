package loop

import (
	"fmt"
	"strings"

	"autopilot/pkg/utils"
)

// maxPromptTokens budgets the assembled iteration prompt. Only the project
// snapshot is actually truncated: the remaining sections are short
// user-entered text and the trailing criteria must survive intact.
const maxPromptTokens = 8000

// outputInstruction tells the model what shape of change to produce. The
// apply step only understands full files or unified diffs.
const outputInstruction = "Respond with complete file contents (prefixed by a `File: <path>` line " +
	"before each fenced code block) or a unified diff. Do not respond with prose alone."

// buildPrompt assembles the iteration prompt. Persisted tuning-file content
// takes priority over the raw config prompt fields; both variants are always
// suffixed with the enumerated completion criteria and the output
// instruction.
func buildPrompt(cfg *Config, tuning string, hasTuning bool, snapshot string, tc *utils.TokenCounter) string {
	var b strings.Builder

	if hasTuning && strings.TrimSpace(tuning) != "" {
		b.WriteString(strings.TrimSpace(tuning))
		b.WriteString("\n\n")
		b.WriteString("Original goal: ")
		b.WriteString(cfg.Prompt.Goal)
		b.WriteString("\n")
	} else {
		b.WriteString("Goal: ")
		b.WriteString(cfg.Prompt.Goal)
		b.WriteString("\n")
		if cfg.Prompt.Context != "" {
			b.WriteString("Context: ")
			b.WriteString(cfg.Prompt.Context)
			b.WriteString("\n")
		}
		if cfg.Prompt.DoneWhen != "" {
			b.WriteString("Done when: ")
			b.WriteString(cfg.Prompt.DoneWhen)
			b.WriteString("\n")
		}
		if cfg.Prompt.DoNot != "" {
			b.WriteString("Do not: ")
			b.WriteString(cfg.Prompt.DoNot)
			b.WriteString("\n")
		}
	}

	if snapshot != "" {
		bounded := snapshot
		if tc != nil {
			bounded = tc.TruncateToTokens(snapshot, maxPromptTokens/2)
		}
		b.WriteString("\nCurrent project files:\n")
		b.WriteString(bounded)
		b.WriteString("\n")
	}

	if len(cfg.CompletionCriteria) > 0 {
		b.WriteString("\nCompletion criteria:\n")
		for i, criterion := range cfg.CompletionCriteria {
			fmt.Fprintf(&b, "%d. %s\n", i+1, criterion)
		}
	}

	b.WriteString("\n")
	b.WriteString(outputInstruction)

	return b.String()
}

// systemPrompt is the persistent instruction sent with every generation.
const systemPrompt = "You are an autonomous coding agent iterating on a project. " +
	"Each turn you see the current goal, project state, and completion criteria. " +
	"Make the smallest change that moves the project toward satisfying the criteria."
