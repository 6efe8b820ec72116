// Package transfer drives per-file copy operations for the reconciled
// missing set, with bounded per-file retries and aggregate throughput
// reporting.
package transfer

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joe/cloudpull/internal/eventlog"
)

// Exported constants.
const (
	// DefaultMaxRetriesPerFile is the per-file copy attempt budget.
	DefaultMaxRetriesPerFile = 3
)

// Exported variables.
var (
	// ErrFailFast is returned when a file fails and the caller configured
	// fail-fast mode.
	ErrFailFast = errors.New("copy failed in fail-fast mode")
)

// CopyFunc performs a single-file copy. Implementations delegate to the
// process supervisor for one "copy" invocation of the transfer tool.
type CopyFunc func(path string) error

// Options configures one transfer pass.
type Options struct {
	// MaxRetriesPerFile is the attempt budget per file (default 3).
	MaxRetriesPerFile int
	// FailFast raises the first exhausted-file failure immediately instead
	// of continuing to the next file.
	FailFast bool
	// Simulate treats every file as instantly successful without launching
	// a subprocess, while still recording the planned list.
	Simulate bool
	// IncludeFilePath, when set, receives the planned file list before any
	// transfer starts, in both simulated and live mode.
	IncludeFilePath string
}

// Outcome is the aggregate result of one transfer pass.
type Outcome struct {
	Attempted      int
	Succeeded      int
	FailedPaths    []string
	ElapsedSeconds float64
}

// Throughput returns succeeded files per second, zero (never NaN) when the
// elapsed time rounds to zero.
func (o Outcome) Throughput() float64 {
	if o.ElapsedSeconds <= 0 {
		return 0
	}

	return float64(o.Succeeded) / o.ElapsedSeconds
}

// Planner executes transfer passes.
type Planner struct {
	log *eventlog.Logger
	now func() time.Time
}

// NewPlanner creates a Planner logging to logger.
func NewPlanner(logger *eventlog.Logger) *Planner {
	return &Planner{log: logger, now: time.Now}
}

// Execute copies every missing file via copyFn with up to MaxRetriesPerFile
// attempts each. A file is marked failed only after exhausting its budget,
// and processing continues to the next file unless fail-fast is configured.
func (p *Planner) Execute(missing []string, copyFn CopyFunc, opts Options) (Outcome, error) {
	if opts.MaxRetriesPerFile == 0 {
		opts.MaxRetriesPerFile = DefaultMaxRetriesPerFile
	}

	err := recordIntent(missing, opts.IncludeFilePath)
	if err != nil {
		return Outcome{}, err
	}

	started := p.now()
	outcome := Outcome{}

	for _, path := range missing {
		outcome.Attempted++

		if opts.Simulate {
			outcome.Succeeded++
			continue
		}

		copyErr := p.copyWithRetry(path, copyFn, opts.MaxRetriesPerFile)
		if copyErr == nil {
			outcome.Succeeded++
			continue
		}

		outcome.FailedPaths = append(outcome.FailedPaths, path)
		p.log.Log(eventlog.LevelWarning,
			fmt.Sprintf("copy of %s failed after %d attempts: %v", path, opts.MaxRetriesPerFile, copyErr),
			eventlog.EventTransferFailure)

		if opts.FailFast {
			outcome.ElapsedSeconds = p.now().Sub(started).Seconds()

			return outcome, fmt.Errorf("%w: %s", ErrFailFast, path)
		}
	}

	outcome.ElapsedSeconds = p.now().Sub(started).Seconds()

	return outcome, nil
}

// copyWithRetry attempts one file up to budget times.
func (p *Planner) copyWithRetry(path string, copyFn CopyFunc, budget int) error {
	var err error

	for attempt := 1; attempt <= budget; attempt++ {
		err = copyFn(path)
		if err == nil {
			return nil
		}

		if attempt < budget {
			p.log.Warningf("copy attempt %d/%d of %s failed: %v", attempt, budget, path, err)
		}
	}

	return err
}

// recordIntent writes the planned file list to the include-file artifact,
// one path per line. Live and simulated runs both record intent; only live
// runs perform the transfer.
func recordIntent(missing []string, includePath string) error {
	if includePath == "" {
		return nil
	}

	var builder strings.Builder

	for _, path := range missing {
		builder.WriteString(path + "\n")
	}

	err := os.WriteFile(includePath, []byte(builder.String()), 0o600)
	if err != nil {
		return fmt.Errorf("failed to write include file %s: %w", includePath, err)
	}

	return nil
}
