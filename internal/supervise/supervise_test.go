//nolint:varnamelen // Test files use idiomatic short variable names (t, tt, etc.)
package supervise_test

import (
	"path/filepath"
	"testing"
	"time"

	. "github.com/onsi/gomega" //nolint:revive // Dot import is idiomatic for Gomega matchers

	"github.com/joe/cloudpull/internal/eventlog"
	"github.com/joe/cloudpull/internal/supervise"
)

// fastOptions returns options with tight timeouts so hang tests finish
// quickly, plus capture paths under the test's temp dir.
func fastOptions(t *testing.T) supervise.Options {
	t.Helper()

	dir := t.TempDir()

	return supervise.Options{
		LogPath:           filepath.Join(dir, "tool.log"),
		StdoutPath:        filepath.Join(dir, "stdout.txt"),
		StderrPath:        filepath.Join(dir, "stderr.txt"),
		InactivityTimeout: 30 * time.Millisecond,
		TotalTimeout:      500 * time.Millisecond,
		PollInterval:      10 * time.Millisecond,
		MaxRetries:        3,
	}
}

func newRunner(launcher supervise.Launcher) *supervise.Runner {
	runner := supervise.NewRunner(eventlog.NewDiscard(), supervise.NewRunContext())
	runner.SetLauncher(launcher)

	return runner
}

func TestExitStatusString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status   supervise.ExitStatus
		expected string
	}{
		{supervise.StatusExited, "exited"},
		{supervise.StatusKilledInactive, "killed-inactivity"},
		{supervise.StatusKilledTimeout, "killed-timeout"},
		{supervise.StatusUncaptured, "exit-code-uncaptured"},
		{supervise.StatusStillRunning, "still-running-after-kill"},
		{supervise.ExitStatus(99), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.status.String(); got != tt.expected {
			t.Errorf("ExitStatus(%d).String() = %q, want %q", tt.status, got, tt.expected)
		}
	}
}

func TestExecuteSuccessFirstAttempt(t *testing.T) {
	t.Parallel()

	g := NewWithT(t)

	launcher := supervise.NewMockLauncher(supervise.NewExitingProcess(0, "line one\nline two\n"))
	runner := newRunner(launcher)

	result, err := runner.Execute("tool", []string{"lsf", "remote:"}, fastOptions(t))

	g.Expect(err).ShouldNot(HaveOccurred())
	g.Expect(result.Succeeded).To(BeTrue())
	g.Expect(result.Status).To(Equal(supervise.StatusExited))
	g.Expect(result.ExitCode).To(Equal(0))
	g.Expect(result.Attempts).To(Equal(1))
	g.Expect(result.StdoutLines).To(Equal([]string{"line one", "line two"}))
	g.Expect(launcher.Started()).To(Equal(1))
}

func TestExecutePartialSuccessCodeCountsAsSuccess(t *testing.T) {
	t.Parallel()

	g := NewWithT(t)

	launcher := supervise.NewMockLauncher(supervise.NewExitingProcess(supervise.PartialSuccessCode, ""))
	runner := newRunner(launcher)

	result, err := runner.Execute("tool", nil, fastOptions(t))

	g.Expect(err).ShouldNot(HaveOccurred())
	g.Expect(result.Succeeded).To(BeTrue())
	g.Expect(result.ExitCode).To(Equal(supervise.PartialSuccessCode))
}

// An always-failing command performs exactly MaxRetries launches and returns
// succeeded=false with the last attempt's exit code.
func TestExecuteRetryTermination(t *testing.T) {
	t.Parallel()

	g := NewWithT(t)

	launcher := supervise.NewMockLauncher(
		supervise.NewExitingProcess(1, ""),
		supervise.NewExitingProcess(1, ""),
		supervise.NewExitingProcess(7, ""),
	)
	runner := newRunner(launcher)

	result, err := runner.Execute("tool", nil, fastOptions(t))

	g.Expect(err).ShouldNot(HaveOccurred())
	g.Expect(result.Succeeded).To(BeFalse())
	g.Expect(result.Attempts).To(Equal(3))
	g.Expect(result.ExitCode).To(Equal(7))
	g.Expect(launcher.Started()).To(Equal(3))
}

func TestExecuteRecoversOnRetry(t *testing.T) {
	t.Parallel()

	g := NewWithT(t)

	launcher := supervise.NewMockLauncher(
		supervise.NewExitingProcess(1, ""),
		supervise.NewExitingProcess(0, "ok\n"),
	)
	runner := newRunner(launcher)

	result, err := runner.Execute("tool", nil, fastOptions(t))

	g.Expect(err).ShouldNot(HaveOccurred())
	g.Expect(result.Succeeded).To(BeTrue())
	g.Expect(result.Attempts).To(Equal(2))
}

func TestExecuteInactivityKill(t *testing.T) {
	t.Parallel()

	g := NewWithT(t)

	hanging := supervise.NewHangingProcess(true)
	launcher := supervise.NewMockLauncher(hanging)
	runner := newRunner(launcher)

	opts := fastOptions(t)
	opts.MaxRetries = 1

	result, err := runner.Execute("tool", nil, opts)

	g.Expect(err).ShouldNot(HaveOccurred())
	g.Expect(result.Succeeded).To(BeFalse())
	g.Expect(result.Status).To(Equal(supervise.StatusKilledInactive))
	g.Expect(result.ExitCode).To(Equal(supervise.CodeKilledInactive))
	g.Expect(hanging.Killed()).To(BeTrue())
}

func TestExecuteStillRunningAfterKill(t *testing.T) {
	t.Parallel()

	g := NewWithT(t)

	launcher := supervise.NewMockLauncher(supervise.NewHangingProcess(false))
	runner := newRunner(launcher)

	opts := fastOptions(t)
	opts.MaxRetries = 1

	result, err := runner.Execute("tool", nil, opts)

	g.Expect(err).ShouldNot(HaveOccurred())
	g.Expect(result.Succeeded).To(BeFalse())
	g.Expect(result.Status).To(Equal(supervise.StatusStillRunning))

	// A survivor carries its own sentinel, not the code of the kill reason.
	g.Expect(result.ExitCode).To(Equal(supervise.CodeStillRunning))
}

func TestExecuteStdoutAlwaysReturned(t *testing.T) {
	t.Parallel()

	g := NewWithT(t)

	launcher := supervise.NewMockLauncher(supervise.NewExitingProcess(1, ""))
	runner := newRunner(launcher)

	opts := fastOptions(t)
	opts.MaxRetries = 1
	opts.StdoutPath = "" // capture file never materializes

	result, err := runner.Execute("tool", nil, opts)

	g.Expect(err).ShouldNot(HaveOccurred())
	g.Expect(result.StdoutLines).NotTo(BeNil())
	g.Expect(result.StdoutLines).To(BeEmpty())
}

func TestRunContextClearsAfterExit(t *testing.T) {
	t.Parallel()

	g := NewWithT(t)

	runCtx := supervise.NewRunContext()
	runner := supervise.NewRunner(eventlog.NewDiscard(), runCtx)
	runner.SetLauncher(supervise.NewMockLauncher(supervise.NewExitingProcess(0, "")))

	_, err := runner.Execute("tool", nil, fastOptions(t))

	g.Expect(err).ShouldNot(HaveOccurred())
	g.Expect(runCtx.ActivePID()).To(BeZero(), "registry must be cleared once the attempt's process exits")
}

func TestRunContextAbortKillsActiveProcess(t *testing.T) {
	t.Parallel()

	g := NewWithT(t)

	runCtx := supervise.NewRunContext()
	hanging := supervise.NewHangingProcess(true)
	runner := supervise.NewRunner(eventlog.NewDiscard(), runCtx)
	runner.SetLauncher(supervise.NewMockLauncher(hanging))

	opts := fastOptions(t)
	opts.MaxRetries = 1
	opts.InactivityTimeout = 5 * time.Second // abort should win, not the timeout

	go func() {
		time.Sleep(20 * time.Millisecond)
		runCtx.Abort()
	}()

	result, err := runner.Execute("tool", nil, opts)

	g.Expect(err).ShouldNot(HaveOccurred())
	g.Expect(result.Succeeded).To(BeFalse())
	g.Expect(hanging.Killed()).To(BeTrue())
	g.Expect(runCtx.ActivePID()).To(BeZero())
}
