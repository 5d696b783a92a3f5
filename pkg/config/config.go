// Package config provides configuration loading, validation, and management
// for the autopilot controller.
//
// A single global Config instance is maintained in memory, protected by a
// mutex. GetConfig returns the config BY VALUE so callers cannot mutate
// shared state; all updates go through the Update* functions, which validate
// and persist atomically. Per-project settings live in .autopilot/config.json
// under the project directory. Runtime state (iteration counters, breaker
// state) belongs in the database, never in config.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"autopilot/pkg/generate"
	"autopilot/pkg/logx"
)

// Directory and file layout under the project root.
const (
	AutopilotDirName = ".autopilot"
	configFileName   = "config.json"
	databaseFileName = "autopilot.db"
)

// CurrentSchemaVersion must be incremented on any breaking config change.
const CurrentSchemaVersion = 1

// Provider identifiers for API key resolution.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderGoogle    = "google"
	ProviderOllama    = "ollama"
)

//nolint:gochecknoglobals // Intentional singleton pattern for config management
var (
	config     *Config
	projectDir string // Immutable after LoadConfig - set once at startup
	logger     *logx.Logger
	mu         sync.RWMutex
)

func getLogger() *logx.Logger {
	if logger == nil {
		logger = logx.NewLogger("config")
	}
	return logger
}

// LogInfo logs an info message using the config logger.
func LogInfo(format string, args ...interface{}) {
	getLogger().Info(format, args...)
}

// GeneratorConfig holds per-project LLM generation settings.
type GeneratorConfig struct {
	Backend     string  `json:"backend"`
	Model       string  `json:"model,omitempty"`
	HostURL     string  `json:"host_url,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
	Temperature float32 `json:"temperature,omitempty"`
}

// LoopDefaults holds default iteration settings applied when a session
// request leaves them unset.
type LoopDefaults struct {
	MaxIterations      int      `json:"max_iterations"`
	BreakerThreshold   int      `json:"breaker_threshold"`
	CompletionCriteria []string `json:"completion_criteria,omitempty"`
}

// TestConfig describes how the project's test suite is invoked.
type TestConfig struct {
	Command        string `json:"command"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"`
}

// MetricsConfig controls the optional Prometheus surface.
type MetricsConfig struct {
	Enabled       bool   `json:"enabled"`
	ListenAddr    string `json:"listen_addr,omitempty"`
	PrometheusURL string `json:"prometheus_url,omitempty"`
}

// Config is the root per-project configuration.
type Config struct {
	SchemaVersion int              `json:"schema_version"`
	Generator     *GeneratorConfig `json:"generator,omitempty"`
	Loop          *LoopDefaults    `json:"loop,omitempty"`
	Test          *TestConfig      `json:"test,omitempty"`
	Metrics       *MetricsConfig   `json:"metrics,omitempty"`
}

// GetProjectDir returns the project directory set during LoadConfig.
func GetProjectDir() string {
	mu.RLock()
	defer mu.RUnlock()
	return projectDir
}

// GetAutopilotDir returns the .autopilot directory for the loaded project.
func GetAutopilotDir() (string, error) {
	mu.RLock()
	defer mu.RUnlock()
	if projectDir == "" {
		return "", fmt.Errorf("config not loaded: no project directory set")
	}
	return filepath.Join(projectDir, AutopilotDirName), nil
}

// DatabasePath returns the path of the session database for the loaded project.
func DatabasePath() (string, error) {
	dir, err := GetAutopilotDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, databaseFileName), nil
}

// GetConfig returns a copy of the current configuration.
func GetConfig() (Config, error) {
	mu.RLock()
	defer mu.RUnlock()
	if config == nil {
		return Config{}, fmt.Errorf("config not loaded: call LoadConfig first")
	}
	return copyConfig(config), nil
}

// SetConfigForTesting installs a config directly, bypassing file loading.
// Test helper only.
func SetConfigForTesting(cfg *Config, dir string) {
	mu.Lock()
	defer mu.Unlock()
	config = cfg
	projectDir = dir
}

// LoadConfig loads .autopilot/config.json from the given project directory,
// creating a default config file if none exists.
func LoadConfig(inputProjectDir string) error {
	mu.Lock()
	defer mu.Unlock()

	absDir, err := filepath.Abs(inputProjectDir)
	if err != nil {
		return fmt.Errorf("failed to resolve project directory: %w", err)
	}
	info, err := os.Stat(absDir)
	if err != nil {
		return fmt.Errorf("project directory not accessible: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("project path %s is not a directory", absDir)
	}

	configPath := filepath.Join(absDir, AutopilotDirName, configFileName)
	cfg, err := loadConfigFromFile(configPath)
	if os.IsNotExist(err) {
		cfg = createDefaultConfig()
		if saveErr := saveConfigFile(cfg, configPath); saveErr != nil {
			return fmt.Errorf("failed to write default config: %w", saveErr)
		}
		getLogger().Info("Created default config at %s", configPath)
	} else if err != nil {
		return err
	}

	applyDefaults(cfg)
	if err := validateConfig(cfg); err != nil {
		return fmt.Errorf("invalid config %s: %w", configPath, err)
	}

	config = cfg
	projectDir = absDir
	return nil
}

// UpdateGenerator atomically replaces the generator section with validation
// and persistence.
func UpdateGenerator(gen *GeneratorConfig) error {
	return updateSection(func(cfg *Config) { cfg.Generator = gen })
}

// UpdateLoop atomically replaces the loop defaults section.
func UpdateLoop(loop *LoopDefaults) error {
	return updateSection(func(cfg *Config) { cfg.Loop = loop })
}

// UpdateTest atomically replaces the test section.
func UpdateTest(test *TestConfig) error {
	return updateSection(func(cfg *Config) { cfg.Test = test })
}

func updateSection(apply func(*Config)) error {
	mu.Lock()
	defer mu.Unlock()
	if config == nil {
		return fmt.Errorf("config not loaded")
	}

	candidate := copyConfig(config)
	apply(&candidate)
	applyDefaults(&candidate)
	if err := validateConfig(&candidate); err != nil {
		return fmt.Errorf("config update rejected: %w", err)
	}

	configPath := filepath.Join(projectDir, AutopilotDirName, configFileName)
	if err := saveConfigFile(&candidate, configPath); err != nil {
		return err
	}
	config = &candidate
	return nil
}

func loadConfigFromFile(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}
	if cfg.SchemaVersion > CurrentSchemaVersion {
		return nil, fmt.Errorf("config schema version %d is newer than supported version %d",
			cfg.SchemaVersion, CurrentSchemaVersion)
	}
	return &cfg, nil
}

func saveConfigFile(cfg *Config, configPath string) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	// Write-then-rename keeps the config readable if we crash mid-write.
	tmpPath := configPath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	if err := os.Rename(tmpPath, configPath); err != nil {
		return fmt.Errorf("failed to replace config: %w", err)
	}
	return nil
}

func createDefaultConfig() *Config {
	return &Config{
		SchemaVersion: CurrentSchemaVersion,
	}
}

func applyDefaults(cfg *Config) {
	if cfg.SchemaVersion == 0 {
		cfg.SchemaVersion = CurrentSchemaVersion
	}
	if cfg.Generator == nil {
		cfg.Generator = &GeneratorConfig{}
	}
	if cfg.Generator.Backend == "" {
		cfg.Generator.Backend = ProviderAnthropic
	}
	if cfg.Generator.MaxTokens == 0 {
		cfg.Generator.MaxTokens = generate.DefaultMaxTokens
	}
	if cfg.Loop == nil {
		cfg.Loop = &LoopDefaults{}
	}
	if cfg.Loop.MaxIterations == 0 {
		cfg.Loop.MaxIterations = 10
	}
	if cfg.Loop.BreakerThreshold == 0 {
		cfg.Loop.BreakerThreshold = 3
	}
	if cfg.Test == nil {
		cfg.Test = &TestConfig{}
	}
	if cfg.Test.TimeoutSeconds == 0 {
		cfg.Test.TimeoutSeconds = 10
	}
	if cfg.Metrics == nil {
		cfg.Metrics = &MetricsConfig{}
	}
}

func validateConfig(cfg *Config) error {
	switch cfg.Generator.Backend {
	case ProviderAnthropic, ProviderOpenAI, ProviderGoogle, ProviderOllama:
	default:
		return fmt.Errorf("unknown generator backend %q", cfg.Generator.Backend)
	}
	if cfg.Loop.MaxIterations < 1 {
		return fmt.Errorf("loop.max_iterations must be at least 1, got %d", cfg.Loop.MaxIterations)
	}
	if cfg.Loop.BreakerThreshold < 1 {
		return fmt.Errorf("loop.breaker_threshold must be at least 1, got %d", cfg.Loop.BreakerThreshold)
	}
	if cfg.Test.TimeoutSeconds < 1 {
		return fmt.Errorf("test.timeout_seconds must be at least 1, got %d", cfg.Test.TimeoutSeconds)
	}
	return nil
}

func copyConfig(cfg *Config) Config {
	out := *cfg
	if cfg.Generator != nil {
		gen := *cfg.Generator
		out.Generator = &gen
	}
	if cfg.Loop != nil {
		loop := *cfg.Loop
		loop.CompletionCriteria = append([]string(nil), cfg.Loop.CompletionCriteria...)
		out.Loop = &loop
	}
	if cfg.Test != nil {
		test := *cfg.Test
		out.Test = &test
	}
	if cfg.Metrics != nil {
		m := *cfg.Metrics
		out.Metrics = &m
	}
	return out
}

// apiKeyEnvVars maps provider names to the environment variables checked by
// GetAPIKey after the decrypted secrets store.
//
//nolint:gochecknoglobals // Static lookup table
var apiKeyEnvVars = map[string]string{
	ProviderAnthropic: "ANTHROPIC_API_KEY",
	ProviderOpenAI:    "OPENAI_API_KEY",
	ProviderGoogle:    "GEMINI_API_KEY",
}

// GetAPIKey resolves the API key for a provider using the standard
// precedence: decrypted secrets file, then environment variable. Ollama
// needs no key and always resolves to an empty string.
func GetAPIKey(provider string) (string, error) {
	if provider == ProviderOllama {
		return "", nil
	}
	envVar, ok := apiKeyEnvVars[provider]
	if !ok {
		return "", fmt.Errorf("unknown provider %q", provider)
	}
	key, err := GetSecret(envVar)
	if err != nil {
		return "", fmt.Errorf("no API key for provider %s: %w", provider, err)
	}
	return key, nil
}
