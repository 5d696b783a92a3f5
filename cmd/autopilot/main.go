// Command autopilot runs autonomous coding sessions from the terminal.
//
// Usage:
//
//	autopilot run -session session.yaml [-projectdir DIR]
//	autopilot resume -id SESSION [-projectdir DIR]
//	autopilot status [-projectdir DIR]
//	autopilot secrets set NAME [-projectdir DIR]
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"autopilot/internal/kernel"
	"autopilot/pkg/config"
	"autopilot/pkg/loop"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "run":
		err = cmdRun(os.Args[2:])
	case "resume":
		err = cmdResume(os.Args[2:])
	case "status":
		err = cmdStatus(os.Args[2:])
	case "secrets":
		err = cmdSecrets(os.Args[2:])
	case "version", "-version", "--version":
		fmt.Printf("autopilot %s (%s)\n", version, commit)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: autopilot <run|resume|status|secrets|version> [flags]")
}

func cmdRun(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	sessionFile := fs.String("session", "", "Path to session YAML file")
	projectDir := fs.String("projectdir", ".", "Project directory")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *sessionFile == "" {
		return fmt.Errorf("-session is required")
	}

	spec, err := loadSessionSpec(*sessionFile)
	if err != nil {
		return err
	}

	k, err := startKernel(*projectDir)
	if err != nil {
		return err
	}
	defer shutdown(k)

	cfg := k.NewSessionConfig(spec.SessionID, spec.Owner, *projectDir, loop.Prompt{
		Goal:     spec.Goal,
		Context:  spec.Context,
		DoneWhen: spec.DoneWhen,
		DoNot:    spec.DoNot,
	}, spec.CompletionCriteria)
	if spec.MaxIterations > 0 {
		cfg.MaxIterations = spec.MaxIterations
	}
	if spec.NoProgressThreshold > 0 {
		cfg.NoProgressThreshold = spec.NoProgressThreshold
	}
	if spec.Backend != "" {
		cfg.Backend = spec.Backend
	}

	if err := k.Registry.StartSession(k.Context(), cfg); err != nil {
		return err
	}
	fmt.Printf("Session %s started (%s, max %d iterations)\n", cfg.SessionID, cfg.Backend, cfg.MaxIterations)
	return watchSession(k, cfg.SessionID)
}

func cmdResume(args []string) error {
	fs := flag.NewFlagSet("resume", flag.ExitOnError)
	sessionID := fs.String("id", "", "Session ID to resume")
	projectDir := fs.String("projectdir", ".", "Project directory")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *sessionID == "" {
		return fmt.Errorf("-id is required")
	}

	k, err := startKernel(*projectDir)
	if err != nil {
		return err
	}
	defer shutdown(k)

	if err := k.Registry.ResumeSession(k.Context(), *sessionID); err != nil {
		return err
	}
	fmt.Printf("Session %s resumed\n", *sessionID)
	return watchSession(k, *sessionID)
}

func cmdStatus(args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	projectDir := fs.String("projectdir", ".", "Project directory")
	if err := fs.Parse(args); err != nil {
		return err
	}

	k, err := startKernel(*projectDir)
	if err != nil {
		return err
	}
	defer shutdown(k)

	rows, err := k.Store.ListSessions()
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		fmt.Println("No sessions.")
		return nil
	}
	fmt.Printf("%-38s %-9s %5s %9s %8s %s\n", "SESSION", "STATUS", "ITER", "PROGRESS", "BREAKER", "UPDATED")
	for i := range rows {
		r := &rows[i]
		fmt.Printf("%-38s %-9s %2d/%2d %8d%% %8s %s\n",
			r.SessionID, r.Status, r.CurrentIteration, r.MaxIterations,
			r.CompletionProgress, r.CircuitBreaker, r.UpdatedAt.Format("2006-01-02 15:04"))
	}
	return nil
}

// startKernel loads config and secrets, then boots the kernel.
func startKernel(projectDir string) (*kernel.Kernel, error) {
	if err := config.LoadConfig(projectDir); err != nil {
		return nil, err
	}
	if err := loadSecrets(projectDir); err != nil {
		return nil, err
	}
	k, err := kernel.New(context.Background())
	if err != nil {
		return nil, err
	}
	if err := k.Start(); err != nil {
		_ = k.Stop()
		return nil, err
	}
	return k, nil
}

func shutdown(k *kernel.Kernel) {
	if err := k.Stop(); err != nil {
		fmt.Fprintf(os.Stderr, "Shutdown error: %v\n", err)
	}
}

// watchSession streams a session's events to the terminal until the session
// terminates or the user interrupts. Interrupt pauses rather than stops so
// the session stays resumable.
func watchSession(k *kernel.Kernel, sessionID string) error {
	events, ok := k.Registry.Subscribe(sessionID)
	if !ok {
		return fmt.Errorf("session %s not found", sessionID)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	for {
		select {
		case evt, open := <-events:
			if !open {
				return nil
			}
			printEvent(evt)
			if evt.Type == loop.EventComplete ||
				evt.Type == loop.EventMaxIterationsReached {
				return nil
			}
			if evt.Type == loop.EventStateChange && evt.Snapshot != nil &&
				evt.Snapshot.Status != loop.StatusRunning {
				printSuggestions(k, sessionID)
				return nil
			}
		case <-sigCh:
			fmt.Println("\nInterrupted; pausing session...")
			if err := k.Registry.PauseSession(sessionID); err != nil {
				// Already paused or terminal; nothing more to do.
				return nil
			}
			return nil
		}
	}
}

func printEvent(evt loop.Event) {
	switch evt.Type {
	case loop.EventStarted:
		fmt.Println("Loop started")
	case loop.EventLog:
		fmt.Printf("  %s\n", evt.Message)
	case loop.EventIterationStart:
		fmt.Printf("Iteration %d...\n", evt.Iteration)
	case loop.EventIterationComplete:
		if evt.Snapshot != nil {
			fmt.Printf("Iteration %d done: %d%% complete, tests %d/%d, breaker %s\n",
				evt.Iteration, evt.Snapshot.CompletionProgress,
				evt.Snapshot.TestsPassed, evt.Snapshot.TestsPassed+evt.Snapshot.TestsFailed,
				evt.Snapshot.CircuitBreaker)
		}
	case loop.EventStateChange:
		if evt.Snapshot != nil {
			fmt.Printf("Session is now %s (breaker %s)\n", evt.Snapshot.Status, evt.Snapshot.CircuitBreaker)
		}
	case loop.EventComplete:
		fmt.Println("Session complete: all criteria satisfied")
	case loop.EventMaxIterationsReached:
		fmt.Println("Session failed: iteration budget exhausted")
	}
}

func printSuggestions(k *kernel.Kernel, sessionID string) {
	suggestions := k.Failures.AutoSuggestions(sessionID)
	if len(suggestions) == 0 {
		return
	}
	fmt.Println("Suggestions:")
	for _, s := range suggestions {
		fmt.Printf("  [%s, %d%%] %s\n", s.Severity, s.Confidence, s.SignText)
	}
}
