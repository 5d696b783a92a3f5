// Package kernel wires the controller's shared infrastructure: config,
// database, metrics, and the session registry. It is the single composition
// root used by the CLI, so the wiring exists in exactly one place.
package kernel

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"autopilot/pkg/config"
	"autopilot/pkg/failures"
	"autopilot/pkg/generate"
	"autopilot/pkg/logx"
	"autopilot/pkg/loop"
	"autopilot/pkg/metrics"
	"autopilot/pkg/persistence"
	"autopilot/pkg/runner"
	"autopilot/pkg/utils"
	"autopilot/pkg/workspace"
)

// Kernel manages the shared infrastructure components behind the session
// registry. One kernel per process.
type Kernel struct {
	ctx    context.Context //nolint:containedctx // Kernel owns process lifecycle
	cancel context.CancelFunc

	Config   config.Config
	Logger   *logx.Logger
	Database *sql.DB
	Store    *persistence.Store
	Failures *failures.Store
	Procs    *runner.ProcessTable
	Recorder metrics.Recorder
	Registry *loop.Registry

	metricsServer *http.Server
}

// New builds a kernel from the loaded configuration. config.LoadConfig must
// have been called first.
func New(parent context.Context) (*Kernel, error) {
	cfg, err := config.GetConfig()
	if err != nil {
		return nil, fmt.Errorf("kernel requires loaded config: %w", err)
	}

	ctx, cancel := context.WithCancel(parent)
	k := &Kernel{
		ctx:    ctx,
		cancel: cancel,
		Config: cfg,
		Logger: logx.NewLogger("kernel"),
	}

	if err := k.initializeServices(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize kernel services: %w", err)
	}
	return k, nil
}

func (k *Kernel) initializeServices() error {
	dbPath, err := config.DatabasePath()
	if err != nil {
		return err
	}
	db, err := persistence.Open(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open session database: %w", err)
	}
	k.Database = db
	k.Store = persistence.NewStore(db)
	k.Failures = failures.NewStore()
	k.Procs = runner.NewProcessTable()

	if k.Config.Metrics != nil && k.Config.Metrics.Enabled {
		k.Recorder = metrics.NewPrometheusRecorder()
	} else {
		k.Recorder = metrics.NoopRecorder{}
	}

	k.Registry = loop.NewRegistry(k.sessionDeps)
	return nil
}

// sessionDeps builds the per-session collaborator set.
func (k *Kernel) sessionDeps(cfg *loop.Config) (loop.Deps, error) {
	apiKey, err := config.GetAPIKey(cfg.Backend)
	if err != nil {
		return loop.Deps{}, err
	}
	genOpts := generate.Options{APIKey: apiKey}
	if k.Config.Generator != nil {
		genOpts.Model = k.Config.Generator.Model
		genOpts.HostURL = k.Config.Generator.HostURL
	}
	gen, err := generate.New(cfg.Backend, genOpts)
	if err != nil {
		return loop.Deps{}, err
	}

	// Token counting is an optimization; a missing codec falls back to the
	// byte heuristic inside the counter.
	tokens, err := utils.NewTokenCounter(cfg.Backend)
	if err != nil {
		k.Logger.Warn("Token counter unavailable for %s: %v", cfg.Backend, err)
		tokens = nil
	}

	deps := loop.Deps{
		Generator: gen,
		Tests:     k.testRunner(cfg.WorkDir),
		Workspace: workspace.New(cfg.WorkDir),
		Failures:  k.Failures,
		Metrics:   k.Recorder,
		Writer:    &stateWriter{store: k.Store, logger: k.Logger},
		Tokens:    tokens,
		Procs:     k.Procs,
	}
	if k.Config.Generator != nil {
		deps.MaxTokens = k.Config.Generator.MaxTokens
		deps.Temperature = k.Config.Generator.Temperature
	}
	return deps, nil
}

func (k *Kernel) testRunner(workDir string) runner.TestRunner {
	command := []string{"go", "test", "./..."}
	timeout := runner.DefaultTestTimeout
	if k.Config.Test != nil {
		if k.Config.Test.Command != "" {
			command = strings.Fields(k.Config.Test.Command)
		}
		if k.Config.Test.TimeoutSeconds > 0 {
			timeout = time.Duration(k.Config.Test.TimeoutSeconds) * time.Second
		}
	}
	return runner.NewCommandTestRunner(runner.NewLocalExec(), k.Procs, command, workDir, timeout)
}

// NewSessionConfig assembles a session config from user input plus project
// defaults. A blank session ID gets a generated UUID.
func (k *Kernel) NewSessionConfig(sessionID, ownerID, workDir string, prompt loop.Prompt, criteria []string) *loop.Config {
	if sessionID == "" {
		sessionID = uuid.New().String()
	} else {
		sessionID = utils.SanitizeIdentifier(sessionID)
	}
	backend := config.ProviderAnthropic
	if k.Config.Generator != nil && k.Config.Generator.Backend != "" {
		backend = k.Config.Generator.Backend
	}
	cfg := &loop.Config{
		SessionID:          sessionID,
		OwnerID:            ownerID,
		WorkDir:            workDir,
		Backend:            backend,
		Prompt:             prompt,
		CompletionCriteria: criteria,
	}
	if k.Config.Loop != nil {
		cfg.MaxIterations = k.Config.Loop.MaxIterations
		cfg.NoProgressThreshold = k.Config.Loop.BreakerThreshold
		if len(cfg.CompletionCriteria) == 0 {
			cfg.CompletionCriteria = k.Config.Loop.CompletionCriteria
		}
	}
	return cfg
}

// Start brings up background surfaces and reloads persisted sessions.
func (k *Kernel) Start() error {
	if k.Config.Metrics != nil && k.Config.Metrics.Enabled && k.Config.Metrics.ListenAddr != "" {
		k.startMetricsServer(k.Config.Metrics.ListenAddr)
	}
	return k.reloadSessions()
}

func (k *Kernel) startMetricsServer(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	k.metricsServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		k.Logger.Info("Metrics listening on %s", addr)
		if err := k.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			k.Logger.Error("Metrics server failed: %v", err)
		}
	}()
}

// reloadSessions restores non-terminal persisted sessions as paused.
// Previously running loops did not survive the restart; the operator
// resumes them explicitly.
func (k *Kernel) reloadSessions() error {
	rows, err := k.Store.ListSessions()
	if err != nil {
		return fmt.Errorf("failed to load persisted sessions: %w", err)
	}
	for i := range rows {
		row := &rows[i]
		status := loop.Status(row.Status)
		if status.Terminal() {
			continue
		}
		cfg, err := sessionConfigFromRow(row)
		if err != nil {
			k.Logger.Warn("Skipping session %s: %v", row.SessionID, err)
			continue
		}
		err = k.Registry.RestoreSession(cfg, loop.RestoredState{
			Status:             status,
			CurrentIteration:   row.CurrentIteration,
			CompletionProgress: row.CompletionProgress,
			CircuitBreaker:     row.CircuitBreaker,
			NoProgressCount:    row.NoProgressCount,
			TestsPassed:        row.TestsPassed,
			TestsFailed:        row.TestsFailed,
		})
		if err != nil {
			k.Logger.Warn("Failed to restore session %s: %v", row.SessionID, err)
		}
	}
	return nil
}

// Stop tears everything down: sessions first so their final state lands in
// the database before it closes.
func (k *Kernel) Stop() error {
	k.Logger.Info("Shutting down")
	k.Registry.Shutdown()

	if k.metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := k.metricsServer.Shutdown(shutdownCtx); err != nil {
			k.Logger.Warn("Metrics server shutdown: %v", err)
		}
	}

	k.cancel()
	if err := k.Database.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

// Context returns the kernel's lifecycle context, used as the parent for
// session loops.
func (k *Kernel) Context() context.Context {
	return k.ctx
}

func sessionConfigFromRow(row *persistence.SessionRow) (*loop.Config, error) {
	if row.ConfigJSON == "" {
		return nil, fmt.Errorf("no stored config")
	}
	var cfg loop.Config
	if err := json.Unmarshal([]byte(row.ConfigJSON), &cfg); err != nil {
		return nil, fmt.Errorf("corrupt stored config: %w", err)
	}
	return &cfg, nil
}
