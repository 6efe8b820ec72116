// Package main is the entry point for the cloudpull orchestrator.
package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"golang.org/x/term" //nolint:depguard // Required for TTY detection

	"github.com/joe/cloudpull/internal/config"
	"github.com/joe/cloudpull/internal/engine"
	"github.com/joe/cloudpull/internal/eventlog"
	"github.com/joe/cloudpull/internal/runstate"
	"github.com/joe/cloudpull/internal/wizard"
)

func main() {
	os.Exit(run())
}

// run keeps the deferred cleanup ahead of os.Exit.
func run() int {
	args, err := config.ParseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)

		return engine.ExitFailure
	}

	if args.Configure {
		return configure(args.SettingsPath)
	}

	settings, err := config.LoadSettings(args.SettingsPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\nRun with --configure to create the settings file.\n", err)

		return engine.ExitCodeFor(err)
	}

	logger, err := openLogger(settings)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)

		return engine.ExitFailure
	}

	defer logger.Close()

	eng, err := engine.New(engine.Config{
		Settings:       settings,
		Simulate:       args.Simulate,
		SkipDedupe:     args.SkipDedupe,
		SkipStreamStop: args.SkipStreamStop,
		IgnoreMaxAge:   args.IgnoreMaxAge,
		FailFast:       args.FailFast,
		ScopePath:      args.Scope,
		RemoteOverride: args.Remote,
	}, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)

		return engine.ExitCodeFor(err)
	}

	if term.IsTerminal(int(os.Stdout.Fd())) {
		eng.SetEmitter(consoleReporter{})
	}

	// An operator interrupt kills the active subprocess; the engine then
	// winds down through its normal failure paths.
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-signals
		logger.Warning("interrupt received, terminating active subprocess")
		eng.RunContext().Abort()
	}()

	err = eng.Run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)

		return engine.ExitCodeFor(err)
	}

	return engine.ExitOK
}

// consoleReporter prints run progress for interactive invocations. Cron
// runs stay silent; the run log is the durable record either way.
type consoleReporter struct{}

// Emit implements engine.EventEmitter.
func (consoleReporter) Emit(event engine.Event) {
	switch ev := event.(type) {
	case engine.RunStarted:
		mode := "live"
		if ev.Simulate {
			mode = "simulated"
		}

		fmt.Printf("Run %s started (%s)\n", ev.RunID, mode)
	case engine.ScopeApplied:
		fmt.Printf("Scoped to %s\n", ev.Subtree)
	case engine.ListingComplete:
		fmt.Printf("Remote listing: %d files\n", ev.Files)
	case engine.DedupeComplete:
		if ev.Note != "" {
			fmt.Printf("Dedupe: %d removable duplicates (%s)\n", ev.DuplicateFiles, ev.Note)
		} else {
			fmt.Printf("Dedupe: %d removable duplicates, %d bytes reclaimable\n", ev.DuplicateFiles, ev.BytesSaved)
		}
	case engine.HashingComplete:
		fmt.Printf("Remote inventory: %d entries (%d invalid lines, %d duplicate hashes)\n",
			ev.Entries, ev.InvalidLines, len(ev.DuplicateHashes))
	case engine.ReconcileComplete:
		fmt.Printf("Reconciled: %d matched, %d missing locally\n", ev.Matched, ev.Missing)
	case engine.TransferComplete:
		fmt.Printf("Transferred: %d/%d files (%.2f files/sec)\n",
			ev.Outcome.Succeeded, ev.Outcome.Attempted, ev.Outcome.Throughput())
	case engine.RunCompleted:
		status := "complete"
		if ev.Incomplete {
			status = "incomplete"
		}

		fmt.Printf("Run %s in %.1fs\n", status, ev.ElapsedSeconds)
	}
}

// openLogger opens the run log, mirroring to stderr when attached to a
// terminal (interactive runs) and staying quiet under cron.
func openLogger(settings *config.Settings) (*eventlog.Logger, error) {
	err := os.MkdirAll(settings.LogDir, 0o750)
	if err != nil {
		return nil, fmt.Errorf("failed to create log dir: %w", err)
	}

	var mirror *os.File
	if term.IsTerminal(int(os.Stderr.Fd())) {
		mirror = os.Stderr
	}

	logger, err := eventlog.New(filepath.Join(settings.LogDir, "cloudpull.log"), mirror)
	if err != nil {
		return nil, err
	}

	return logger, nil
}

// configure opens the settings wizard, saves the result, and seeds the
// local hash inventory so the first run passes preflight.
func configure(settingsPath string) int {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		fmt.Fprintln(os.Stderr, "Error: --configure needs an interactive terminal")

		return engine.ExitFailure
	}

	current := config.DefaultSettings()
	if loaded, err := config.LoadSettings(settingsPath); err == nil {
		current = *loaded
	}

	edited, err := wizard.Run(current)
	if err != nil {
		if errors.Is(err, wizard.ErrCanceled) {
			fmt.Fprintln(os.Stderr, "Configuration canceled; nothing saved.")

			return engine.ExitOK
		}

		fmt.Fprintf(os.Stderr, "Error: %v\n", err)

		return engine.ExitFailure
	}

	err = edited.Save(settingsPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)

		return engine.ExitFailure
	}

	store, err := runstate.NewStore(edited.StateDir)
	if err == nil {
		err = store.SeedInventory()
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)

		return engine.ExitFailure
	}

	fmt.Printf("Settings saved to %s\n", settingsPath)

	return engine.ExitOK
}
