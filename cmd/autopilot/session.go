package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// sessionSpec is the YAML shape of a session file handed to `autopilot run`.
type sessionSpec struct {
	SessionID           string   `yaml:"session_id,omitempty"`
	Owner               string   `yaml:"owner,omitempty"`
	Backend             string   `yaml:"backend,omitempty"`
	Goal                string   `yaml:"goal"`
	Context             string   `yaml:"context,omitempty"`
	DoneWhen            string   `yaml:"done_when,omitempty"`
	DoNot               string   `yaml:"do_not,omitempty"`
	CompletionCriteria  []string `yaml:"completion_criteria,omitempty"`
	MaxIterations       int      `yaml:"max_iterations,omitempty"`
	NoProgressThreshold int      `yaml:"no_progress_threshold,omitempty"`
}

func loadSessionSpec(path string) (*sessionSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}
	var spec sessionSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("failed to parse session file %s: %w", path, err)
	}
	if spec.Goal == "" {
		return nil, fmt.Errorf("session file %s: goal is required", path)
	}
	return &spec, nil
}
