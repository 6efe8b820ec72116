// Package supervise runs the external transfer tool as a supervised
// subprocess: it enforces inactivity and total-time limits, retries failed
// attempts, and returns a structured result. Inactivity is measured by
// growth of the tool's own log file between polls, which is a heuristic
// bounded by the tool's flush timing.
package supervise

import (
	"bufio"
	"fmt"
	"os"
	"time"

	"github.com/joe/cloudpull/internal/eventlog"
)

// Exported constants.
const (
	// DefaultInactivityTimeout is the maximum time without new log lines
	// before the process is considered hung.
	DefaultInactivityTimeout = 300 * time.Second
	// DefaultTotalTimeout is the maximum wall-clock time for one attempt.
	DefaultTotalTimeout = 600 * time.Second
	// DefaultPollInterval is how often liveness and activity are evaluated.
	DefaultPollInterval = 5 * time.Second
	// DefaultMaxRetries is the number of full attempts per Execute call.
	DefaultMaxRetries = 3
	// PartialSuccessCode is the tool's own convention for "succeeded with
	// skipped items"; it counts as success.
	PartialSuccessCode = 9
)

// Sentinel exit codes for attempts that did not produce a real exit code.
// Each failure mode gets a distinct value so operators can tell them apart.
const (
	CodeUncaptured     = -1
	CodeKilledInactive = -2
	CodeKilledTimeout  = -3
	CodeStillRunning   = -4
)

// ExitStatus classifies how an attempt ended.
type ExitStatus int

const (
	// StatusExited means the process exited on its own with a captured code.
	StatusExited ExitStatus = iota
	// StatusKilledInactive means the process was force-terminated after the
	// inactivity limit elapsed with no new log lines.
	StatusKilledInactive
	// StatusKilledTimeout means the process was force-terminated after the
	// total-time limit elapsed.
	StatusKilledTimeout
	// StatusUncaptured means the process exited but its code could not be
	// captured.
	StatusUncaptured
	// StatusStillRunning means the process survived the kill and was
	// abandoned.
	StatusStillRunning
)

// String returns the string representation of ExitStatus.
func (s ExitStatus) String() string {
	switch s {
	case StatusExited:
		return "exited"
	case StatusKilledInactive:
		return "killed-inactivity"
	case StatusKilledTimeout:
		return "killed-timeout"
	case StatusUncaptured:
		return "exit-code-uncaptured"
	case StatusStillRunning:
		return "still-running-after-kill"
	default:
		return "unknown"
	}
}

// sentinelCode maps a non-exited status to its distinct exit-code sentinel.
func (s ExitStatus) sentinelCode() int {
	switch s {
	case StatusKilledInactive:
		return CodeKilledInactive
	case StatusKilledTimeout:
		return CodeKilledTimeout
	case StatusStillRunning:
		return CodeStillRunning
	default:
		return CodeUncaptured
	}
}

// Options configures one Execute call. Zero fields take the defaults above.
type Options struct {
	// LogPath is the file the tool appends progress lines to while running.
	LogPath string
	// StdoutPath and StderrPath are the capture files, truncated per attempt.
	StdoutPath string
	StderrPath string

	InactivityTimeout time.Duration
	TotalTimeout      time.Duration
	PollInterval      time.Duration
	MaxRetries        int

	// SuccessCodes are the exit codes treated as success. Defaults to
	// {0, PartialSuccessCode}.
	SuccessCodes []int
}

// withDefaults fills zero fields.
func (o Options) withDefaults() Options {
	if o.InactivityTimeout == 0 {
		o.InactivityTimeout = DefaultInactivityTimeout
	}

	if o.TotalTimeout == 0 {
		o.TotalTimeout = DefaultTotalTimeout
	}

	if o.PollInterval == 0 {
		o.PollInterval = DefaultPollInterval
	}

	if o.MaxRetries == 0 {
		o.MaxRetries = DefaultMaxRetries
	}

	if o.SuccessCodes == nil {
		o.SuccessCodes = []int{0, PartialSuccessCode}
	}

	return o
}

// RunResult is the structured outcome of an Execute call.
type RunResult struct {
	Succeeded   bool
	Status      ExitStatus
	ExitCode    int
	Attempts    int
	StdoutLines []string
	StderrLines []string
}

// Runner supervises subprocess attempts for one orchestration run.
type Runner struct {
	log      *eventlog.Logger
	runCtx   *RunContext
	launcher Launcher
}

// NewRunner creates a Runner logging to logger and registering active
// subprocess ids on runCtx.
func NewRunner(logger *eventlog.Logger, runCtx *RunContext) *Runner {
	return &Runner{
		log:      logger,
		runCtx:   runCtx,
		launcher: &execLauncher{},
	}
}

// SetLauncher replaces the subprocess launcher (for dependency injection).
func (r *Runner) SetLauncher(launcher Launcher) {
	r.launcher = launcher
}

// Execute runs the command with up to MaxRetries fresh attempts. Ordinary
// command failure is reported through the result, never as an error; the
// error return is reserved for host-level launch failures.
func (r *Runner) Execute(command string, args []string, opts Options) (RunResult, error) {
	opts = opts.withDefaults()

	var result RunResult

	for attempt := 1; attempt <= opts.MaxRetries; attempt++ {
		status, exitCode, err := r.attempt(command, args, opts)
		if err != nil {
			return RunResult{}, err
		}

		result = RunResult{
			Status:      status,
			ExitCode:    exitCode,
			Attempts:    attempt,
			StdoutLines: readLines(opts.StdoutPath),
			StderrLines: readLines(opts.StderrPath),
			Succeeded:   status == StatusExited && codeIn(exitCode, opts.SuccessCodes),
		}

		if result.Succeeded {
			return result, nil
		}

		r.log.Warningf("attempt %d/%d of %s failed (%s, code %d)",
			attempt, opts.MaxRetries, command, status, exitCode)
	}

	return result, nil
}

// attempt launches one fresh process and supervises it to completion.
func (r *Runner) attempt(command string, args []string, opts Options) (ExitStatus, int, error) {
	stdout, stderr, err := openCaptures(opts)
	if err != nil {
		return StatusUncaptured, CodeUncaptured, err
	}

	defer func() {
		if stdout != nil {
			_ = stdout.Close()
		}

		if stderr != nil {
			_ = stderr.Close()
		}
	}()

	logSize := fileSize(opts.LogPath)

	process, err := r.launcher.Start(command, args, stdout, stderr)
	if err != nil {
		return StatusUncaptured, CodeUncaptured, fmt.Errorf("failed to launch %s: %w", command, err)
	}

	r.runCtx.register(process)
	defer r.runCtx.clear()

	started := time.Now()
	lastActivity := started

	for {
		select {
		case exit := <-process.Done():
			if !exit.Captured {
				return StatusUncaptured, CodeUncaptured, nil
			}

			return StatusExited, exit.Code, nil

		case <-time.After(opts.PollInterval):
			now := time.Now()

			if size := fileSize(opts.LogPath); size > logSize {
				logSize = size
				lastActivity = now
			}

			if now.Sub(lastActivity) > opts.InactivityTimeout {
				r.log.Warningf("no log activity for %s, terminating %s", opts.InactivityTimeout, command)

				status := r.kill(process, StatusKilledInactive, opts.PollInterval)

				return status, status.sentinelCode(), nil
			}

			if now.Sub(started) > opts.TotalTimeout {
				r.log.Warningf("total time limit %s exceeded, terminating %s", opts.TotalTimeout, command)

				status := r.kill(process, StatusKilledTimeout, opts.PollInterval)

				return status, status.sentinelCode(), nil
			}
		}
	}
}

// kill force-terminates the process and confirms it actually died. A process
// that survives the kill is reported with its own status so a stale PID is
// never targeted later.
func (r *Runner) kill(process Process, status ExitStatus, grace time.Duration) ExitStatus {
	_ = process.Kill()

	select {
	case <-process.Done():
		return status
	case <-time.After(grace):
		return StatusStillRunning
	}
}

// openCaptures truncates and opens the per-attempt capture files. Empty
// paths leave the corresponding stream discarded.
func openCaptures(opts Options) (stdout, stderr *os.File, err error) {
	if opts.StdoutPath != "" {
		stdout, err = os.Create(opts.StdoutPath) // #nosec G304 - capture path comes from validated settings
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create stdout capture: %w", err)
		}
	}

	if opts.StderrPath != "" {
		stderr, err = os.Create(opts.StderrPath) // #nosec G304 - capture path comes from validated settings
		if err != nil {
			if stdout != nil {
				_ = stdout.Close()
			}

			return nil, nil, fmt.Errorf("failed to create stderr capture: %w", err)
		}
	}

	return stdout, stderr, nil
}

// readLines returns the capture file's lines, or an empty slice if the file
// never materialized.
func readLines(path string) []string {
	lines := []string{}

	if path == "" {
		return lines
	}

	file, err := os.Open(path) // #nosec G304 - capture path comes from validated settings
	if err != nil {
		return lines
	}

	defer func() {
		_ = file.Close()
	}()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}

	return lines
}

// fileSize returns the file's size, or zero when it cannot be statted.
func fileSize(path string) int64 {
	if path == "" {
		return 0
	}

	info, err := os.Stat(path)
	if err != nil {
		return 0
	}

	return info.Size()
}

// codeIn reports whether code is in the success set.
func codeIn(code int, set []int) bool {
	for _, candidate := range set {
		if code == candidate {
			return true
		}
	}

	return false
}
