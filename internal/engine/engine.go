// Package engine orchestrates one sync run end to end: preflight checks,
// stream-client sequencing, scope filtering, the tool's list/dedupe/hash
// passes, reconciliation against the local hash inventory, the per-file
// transfer plan, and state persistence. Failures are split into structural
// (fatal before planning), transient (retried, then the run is marked
// incomplete), and data-quality (logged, the run continues).
package engine

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joe/cloudpull/internal/config"
	"github.com/joe/cloudpull/internal/eventlog"
	"github.com/joe/cloudpull/internal/parse"
	"github.com/joe/cloudpull/internal/reconcile"
	"github.com/joe/cloudpull/internal/runstate"
	"github.com/joe/cloudpull/internal/scope"
	"github.com/joe/cloudpull/internal/streamctl"
	"github.com/joe/cloudpull/internal/supervise"
	"github.com/joe/cloudpull/internal/transfer"
	toolerr "github.com/joe/cloudpull/pkg/errors"
	"github.com/joe/cloudpull/pkg/hashsource"
)

// Exported variables.
var (
	// ErrLocalRootMissing means the configured local destination does not
	// exist; transferring into it would recreate the whole tree.
	ErrLocalRootMissing = errors.New("local destination directory does not exist")
	// ErrDuplicateHashes means the remote hash listing still contains
	// duplicate hashes after a deduplication pass ran.
	ErrDuplicateHashes = errors.New("remote hash listing contains duplicates after deduplication")
	// ErrToolFailed means a required tool invocation failed after all
	// supervised retries.
	ErrToolFailed = errors.New("transfer tool invocation failed")
)

// Exit codes for main. Zero is success; each structural failure class gets
// its own code so cron wrappers can tell them apart.
const (
	ExitOK               = 0
	ExitFailure          = 1
	ExitBadSettings      = 2
	ExitLocalRootMissing = 3
	ExitInventoryMissing = 4
	ExitStateTooOld      = 5
	ExitDuplicateHashes  = 6
	ExitFailFast         = 7
)

// ExitCodeFor maps a Run error to the process exit code.
func ExitCodeFor(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, config.ErrSettingsIncomplete):
		return ExitBadSettings
	case errors.Is(err, ErrLocalRootMissing):
		return ExitLocalRootMissing
	case errors.Is(err, runstate.ErrInventoryMissing):
		return ExitInventoryMissing
	case errors.Is(err, runstate.ErrStateTooOld):
		return ExitStateTooOld
	case errors.Is(err, ErrDuplicateHashes):
		return ExitDuplicateHashes
	case errors.Is(err, transfer.ErrFailFast):
		return ExitFailFast
	default:
		return ExitFailure
	}
}

// Config assembles one run's behavior from the settings file and the
// command-line flags.
type Config struct {
	Settings *config.Settings

	Simulate       bool
	SkipDedupe     bool
	SkipStreamStop bool
	IgnoreMaxAge   bool
	FailFast       bool

	// ScopePath restricts the run to one remote subtree; empty means the
	// whole remote root.
	ScopePath string
	// RemoteOverride replaces the remote name of the configured remote root.
	RemoteOverride string
}

// Engine runs the orchestration pipeline.
type Engine struct {
	cfg     Config
	log     *eventlog.Logger
	emitter EventEmitter
	runCtx  *supervise.RunContext
	store   *runstate.Store
	stream  *streamctl.Controller
	tool    *tool
	runID   string
	now     func() time.Time
}

// New validates the configuration and assembles an Engine. The log and state
// directories are created here so every later step can assume they exist.
func New(cfg Config, logger *eventlog.Logger) (*Engine, error) {
	err := cfg.Settings.Validate()
	if err != nil {
		return nil, err
	}

	err = os.MkdirAll(cfg.Settings.LogDir, 0o750)
	if err != nil {
		return nil, fmt.Errorf("failed to create log dir: %w", err)
	}

	store, err := runstate.NewStore(cfg.Settings.StateDir)
	if err != nil {
		return nil, err
	}

	toolPath, err := LocateTool(cfg.Settings.ToolPath)
	if err != nil {
		return nil, err
	}

	runCtx := supervise.NewRunContext()
	runID := uuid.NewString()[:8]

	eng := &Engine{
		cfg:     cfg,
		log:     logger,
		emitter: discardEmitter{},
		runCtx:  runCtx,
		store:   store,
		stream:  streamctl.NewController(cfg.Settings.StreamClientPath, store.Dir(), logger),
		runID:   runID,
		now:     time.Now,
	}

	eng.tool = &tool{
		runner:     supervise.NewRunner(logger, runCtx),
		path:       toolPath,
		remoteRoot: eng.remoteRoot(),
		localRoot:  cfg.Settings.LocalRoot,
		logDir:     cfg.Settings.LogDir,
		runID:      runID,
		simulate:   cfg.Simulate,
		base: supervise.Options{
			InactivityTimeout: time.Duration(cfg.Settings.InactivityTimeoutSec) * time.Second,
			TotalTimeout:      time.Duration(cfg.Settings.TotalTimeoutSec) * time.Second,
			PollInterval:      time.Duration(cfg.Settings.PollIntervalSec) * time.Second,
			MaxRetries:        cfg.Settings.MaxRetries,
		},
	}

	return eng, nil
}

// SetEmitter attaches an event consumer. Nil detaches.
func (e *Engine) SetEmitter(emitter EventEmitter) {
	if emitter == nil {
		emitter = discardEmitter{}
	}

	e.emitter = emitter
}

// SetLauncher replaces the subprocess launcher (for dependency injection).
func (e *Engine) SetLauncher(launcher supervise.Launcher) {
	e.tool.runner.SetLauncher(launcher)
}

// RunContext returns the run context, for wiring an abort signal handler.
func (e *Engine) RunContext() *supervise.RunContext {
	return e.runCtx
}

// RunID returns this run's identifier.
func (e *Engine) RunID() string {
	return e.runID
}

// remoteRoot applies the remote-name override to the configured remote root.
func (e *Engine) remoteRoot() string {
	root := e.cfg.Settings.RemoteRoot
	if e.cfg.RemoteOverride == "" {
		return root
	}

	if idx := strings.Index(root, ":"); idx >= 0 {
		return e.cfg.RemoteOverride + root[idx:]
	}

	return e.cfg.RemoteOverride + ":" + root
}

// Run executes the pipeline. Structural failures return an error after an
// ERROR log line; transient and data-quality problems mark the run
// incomplete and let it finish.
//
//nolint:funlen,cyclop // The pipeline reads best as one sequential function
func (e *Engine) Run() error {
	started := e.now()
	incomplete := false

	e.log.Log(eventlog.LevelInfo,
		fmt.Sprintf("run %s started (simulate=%v, remote=%s)", e.runID, e.cfg.Simulate, e.tool.remoteRoot),
		eventlog.EventRunStarted)
	e.emitter.Emit(RunStarted{RunID: e.runID, Simulate: e.cfg.Simulate})

	err := e.preflight()
	if err != nil {
		return e.fail(err)
	}

	if !e.cfg.SkipStreamStop {
		err = e.stream.Stop()
		if err != nil {
			e.log.Warningf("failed to stop file-stream client: %v", err)
		}

		// Restart on every exit path, including structural failures below.
		defer func() {
			startErr := e.stream.Start()
			if startErr != nil {
				e.log.Warningf("failed to restart file-stream client: %v", startErr)
			}
		}()
	}

	filter, err := e.buildScope()
	if err != nil {
		return e.fail(err)
	}

	listing, err := e.tool.listRemote()
	if err != nil {
		return e.fail(err)
	}

	if listing.Succeeded {
		e.emitter.Emit(ListingComplete{Files: len(listing.StdoutLines)})
		e.log.Infof("remote listing: %d files", len(listing.StdoutLines))
	} else {
		// The hash listing below is the authoritative inventory; a failed
		// file listing only costs the progress report.
		incomplete = true

		e.warnToolFailure("list remote", listing)
	}

	dedupePerformed := false

	if e.cfg.SkipDedupe {
		e.log.Info("deduplication skipped by flag")
	} else {
		result, dedupeErr := e.tool.dedupeRemote()
		if dedupeErr != nil {
			return e.fail(dedupeErr)
		}

		if result.Succeeded {
			dedupePerformed = true
			summary := parse.ParseDuplicateSummary(e.readToolLog(), e.cfg.Simulate)
			e.emitter.Emit(DedupeComplete{
				DuplicateFiles: summary.FileCount,
				BytesSaved:     summary.BytesSaved,
				Note:           summary.Note,
			})
			e.logDedupeSummary(summary)
		} else {
			incomplete = true

			e.warnToolFailure("dedupe remote", result)
		}
	}

	hashing, err := e.tool.hashRemote()
	if err != nil {
		return e.fail(err)
	}

	if !hashing.Succeeded {
		// Without the remote inventory there is nothing to reconcile or
		// transfer; this is the one transient failure that ends the run.
		enriched := toolerr.Enrich("hash remote", append(hashing.StdoutLines, hashing.StderrLines...))
		e.logSuggestions(enriched)

		return e.fail(fmt.Errorf("%w: %s", ErrToolFailed, enriched.Error()))
	}

	inventory, invalid := parse.ParseHashListing(hashing.StdoutLines)
	rawRecords := parse.ParseRecords(hashing.StdoutLines)
	duplicates := parse.DetectDuplicateHashes(hashing.StdoutLines)

	if len(invalid) > 0 {
		e.log.Warningf("hash listing: %d lines violated the hash format and were kept aside", len(invalid))
	}

	e.emitter.Emit(HashingComplete{
		Entries:         len(inventory),
		InvalidLines:    len(invalid),
		DuplicateHashes: duplicates,
	})

	if len(duplicates) > 0 {
		if dedupePerformed {
			return e.fail(fmt.Errorf("%w: %d duplicate hashes remain", ErrDuplicateHashes, len(duplicates)))
		}

		// Dedupe was skipped or failed, so duplicates are expected; the
		// inventory collapse keeps one path per hash.
		e.log.Log(eventlog.LevelWarning,
			fmt.Sprintf("%d duplicate hashes in remote listing (deduplication did not run)", len(duplicates)),
			eventlog.EventDuplicateHashes)
	}

	localHashes, err := e.store.LoadLocalHashSet()
	if err != nil {
		return e.fail(err)
	}

	result := reconcile.Compare(inventory, localHashes, duplicates)
	consistent := result.Complete(len(rawRecords))

	if !consistent {
		e.log.Warningf("reconcile counts diverge from raw listing: %d matched + %d missing != %d records",
			result.Matched, len(result.MissingLocally), len(rawRecords))
	}

	e.emitter.Emit(ReconcileComplete{
		Matched:          result.Matched,
		Missing:          len(result.MissingLocally),
		CountsConsistent: consistent,
	})
	e.log.Infof("reconcile: %d matched, %d missing locally", result.Matched, len(result.MissingLocally))

	outcome, err := e.transferMissing(result.MissingPaths())
	if err != nil {
		return e.fail(err)
	}

	if len(outcome.FailedPaths) > 0 {
		incomplete = true
	}

	e.emitter.Emit(TransferComplete{Outcome: outcome})
	e.log.Infof("transfer: %d/%d files succeeded (%.2f files/sec)",
		outcome.Succeeded, outcome.Attempted, outcome.Throughput())

	if e.cfg.Simulate {
		e.log.Info("simulation: state not persisted")
	} else {
		incomplete = e.persist(filter, incomplete)
	}

	elapsed := e.now().Sub(started).Seconds()
	e.emitter.Emit(RunCompleted{Incomplete: incomplete, ElapsedSeconds: elapsed})
	e.log.Log(eventlog.LevelInfo,
		fmt.Sprintf("run %s completed in %.1fs (incomplete=%v)", e.runID, elapsed, incomplete),
		eventlog.EventRunCompleted)

	return nil
}

// preflight performs the structural checks that must hold before any remote
// operation starts.
func (e *Engine) preflight() error {
	local := e.cfg.Settings.LocalRoot

	// Only a live run touches the local root; a simulation neither
	// transfers nor rehashes, so a missing destination must not block it.
	// SFTP destinations are validated on connect, not by a local stat.
	if !e.cfg.Simulate && !strings.HasPrefix(local, "sftp://") {
		info, err := os.Stat(local)
		if err != nil || !info.IsDir() {
			return fmt.Errorf("%w: %s", ErrLocalRootMissing, local)
		}
	}

	_, err := os.Stat(e.store.InventoryPath())
	if err != nil {
		return fmt.Errorf("%w: %s", runstate.ErrInventoryMissing, e.store.InventoryPath())
	}

	err = e.store.CheckMaxAge(e.cfg.Settings.MaxAgeDays, e.now())
	if err != nil {
		if errors.Is(err, runstate.ErrStateTooOld) && e.cfg.IgnoreMaxAge {
			e.log.Log(eventlog.LevelWarning, err.Error()+" (proceeding per flag)", eventlog.EventStaleState)

			return nil
		}

		return err
	}

	return nil
}

// buildScope writes the run-scoped filter file and points the tool at it. An
// empty scope flag means no per-run filter; a scope that normalizes to
// nothing falls back the same way, with a warning.
func (e *Engine) buildScope() (*scope.Filter, error) {
	if e.cfg.ScopePath == "" {
		return nil, nil //nolint:nilnil // No scope means no filter, not a failure
	}

	// Strip against the effective root so a scope spelled with the
	// --remote override's name still normalizes.
	filter, err := scope.Build(e.remoteRoot(), e.cfg.ScopePath)
	if err != nil {
		if errors.Is(err, scope.ErrEmptyScope) {
			e.log.Warningf("scope %q normalized to nothing; running unscoped", e.cfg.ScopePath)

			return nil, nil //nolint:nilnil // Documented fallback to an unscoped run
		}

		return nil, err
	}

	path, err := filter.WriteFile(e.cfg.Settings.LogDir, e.runID)
	if err != nil {
		return nil, err
	}

	e.tool.filterFile = path
	e.emitter.Emit(ScopeApplied{Subtree: filter.Subtree, FilterPath: path})
	e.log.Infof("scoped to subtree %q via %s", filter.Subtree, path)

	return filter, nil
}

// transferMissing runs the per-file transfer pass over the reconciled
// missing set.
func (e *Engine) transferMissing(missing []string) (transfer.Outcome, error) {
	planner := transfer.NewPlanner(e.log)

	includePath := filepath.Join(e.cfg.Settings.LogDir, fmt.Sprintf("include-%s.txt", e.runID))

	return planner.Execute(missing, e.copyOne, transfer.Options{
		MaxRetriesPerFile: e.cfg.Settings.MaxRetriesPerFile,
		FailFast:          e.cfg.FailFast,
		Simulate:          e.cfg.Simulate,
		IncludeFilePath:   includePath,
	})
}

// copyOne copies a single remote-relative path, enriching failures with a
// category and suggestions.
func (e *Engine) copyOne(relPath string) error {
	result, err := e.tool.copyFile(relPath)
	if err != nil {
		return err
	}

	if !result.Succeeded {
		return toolerr.Enrich("copy "+relPath, append(result.StdoutLines, result.StderrLines...))
	}

	return nil
}

// persist rehashes the local tree, appends the fresh hashes to the
// inventory, and advances the last-run marker. Returns the updated
// incomplete flag.
func (e *Engine) persist(filter *scope.Filter, incomplete bool) bool {
	records, err := e.rehashLocal(filter)
	if err != nil {
		e.log.Warningf("failed to rehash local tree: %v", err)

		incomplete = true
	} else {
		err = e.store.AppendHashes(records)
		if err != nil {
			e.log.Warningf("failed to append local hashes: %v", err)

			incomplete = true
		} else {
			e.log.Infof("appended %d local hashes to inventory", len(records))
		}
	}

	err = e.store.MarkRun(e.now(), incomplete)
	if err != nil {
		e.log.Warningf("failed to advance last-run marker: %v", err)

		incomplete = true
	}

	return incomplete
}

// rehashLocal computes fresh hashes for the local tree, restricted to the
// run's scope when one applies.
func (e *Engine) rehashLocal(filter *scope.Filter) ([]parse.HashRecord, error) {
	source, err := hashsource.New(e.cfg.Settings.LocalRoot)
	if err != nil {
		return nil, err
	}

	defer func() {
		_ = source.Close()
	}()

	var pathFilter hashsource.PathFilter
	if filter != nil {
		pathFilter = filter.Matches
	}

	return source.Hashes(pathFilter)
}

// fail logs the structural failure and returns it unchanged.
func (e *Engine) fail(err error) error {
	e.log.Log(eventlog.LevelError, fmt.Sprintf("run %s failed: %v", e.runID, err), eventlog.EventRunFailed)

	return err
}

// warnToolFailure logs a non-fatal tool failure with its category and
// suggestions.
func (e *Engine) warnToolFailure(operation string, result supervise.RunResult) {
	enriched := toolerr.Enrich(operation, append(result.StdoutLines, result.StderrLines...))

	e.log.Log(eventlog.LevelWarning,
		fmt.Sprintf("%s (status %s, code %d after %d attempts)",
			enriched.Error(), result.Status, result.ExitCode, result.Attempts),
		eventlog.EventToolFailure)
	e.logSuggestions(enriched)
}

// logSuggestions writes the error's suggestion list, when it has one.
func (e *Engine) logSuggestions(err error) {
	suggestions := toolerr.FormatSuggestions(err)
	if suggestions != "" {
		e.log.Info("suggestions:\n" + suggestions)
	}
}

// logDedupeSummary reports the duplicate arithmetic for the run log.
func (e *Engine) logDedupeSummary(summary parse.DuplicateSummary) {
	if summary.Note != "" {
		e.log.Infof("dedupe: %d removable duplicates (%s)", summary.FileCount, summary.Note)

		return
	}

	e.log.Infof("dedupe: %d removable duplicates, %d bytes reclaimable", summary.FileCount, summary.BytesSaved)
}

// readToolLog returns the tool's own log text for summary parsing. A missing
// log reads as empty.
func (e *Engine) readToolLog() string {
	data, err := os.ReadFile(e.tool.logPath()) // #nosec G304 - path under the validated log dir
	if err != nil {
		return ""
	}

	return string(data)
}
