package loop

import "fmt"

// Prompt holds the user-declared instruction fields for a session.
type Prompt struct {
	Goal     string `json:"goal"`
	Context  string `json:"context,omitempty"`
	DoneWhen string `json:"done_when,omitempty"`
	DoNot    string `json:"do_not,omitempty"`
}

// Config is the immutable per-session loop configuration. Created once at
// session start and never mutated.
type Config struct {
	SessionID           string   `json:"session_id"`
	OwnerID             string   `json:"owner_id"`
	WorkDir             string   `json:"work_dir"`
	Backend             string   `json:"backend"`
	MaxIterations       int      `json:"max_iterations"`
	NoProgressThreshold int      `json:"no_progress_threshold"`
	Prompt              Prompt   `json:"prompt"`
	CompletionCriteria  []string `json:"completion_criteria"`
}

// Validate checks the config before a session starts.
func (c *Config) Validate() error {
	if c.SessionID == "" {
		return fmt.Errorf("session ID is required")
	}
	if c.WorkDir == "" {
		return fmt.Errorf("working directory is required")
	}
	if c.MaxIterations < 1 {
		return fmt.Errorf("max iterations must be at least 1, got %d", c.MaxIterations)
	}
	if c.NoProgressThreshold < 1 {
		return fmt.Errorf("no-progress threshold must be at least 1, got %d", c.NoProgressThreshold)
	}
	if c.Prompt.Goal == "" {
		return fmt.Errorf("prompt goal is required")
	}
	return nil
}
