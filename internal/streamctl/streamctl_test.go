//nolint:varnamelen // Test files use idiomatic short variable names (t, tt, etc.)
package streamctl_test

import (
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"syscall"
	"testing"

	. "github.com/onsi/gomega" //nolint:revive // Dot import is idiomatic for Gomega matchers

	"github.com/joe/cloudpull/internal/eventlog"
	"github.com/joe/cloudpull/internal/streamctl"
)

func TestStopWithoutClientPathIsNoop(t *testing.T) {
	t.Parallel()

	g := NewWithT(t)

	controller := streamctl.NewController("", t.TempDir(), eventlog.NewDiscard())

	g.Expect(controller.Stop()).To(Succeed())
	g.Expect(controller.Start()).To(Succeed())
}

func TestStopWithoutPidfileIsNoop(t *testing.T) {
	t.Parallel()

	g := NewWithT(t)

	controller := streamctl.NewController("/usr/bin/streamclient", t.TempDir(), eventlog.NewDiscard())

	g.Expect(controller.Stop()).To(Succeed())
}

func TestStopToleratesStalePid(t *testing.T) {
	t.Parallel()

	g := NewWithT(t)

	stateDir := t.TempDir()

	// A pid that is certainly not alive.
	pidFile := filepath.Join(stateDir, streamctl.PidFileName)
	g.Expect(os.WriteFile(pidFile, []byte("999999999\n"), 0o600)).To(Succeed())

	controller := streamctl.NewController("/usr/bin/streamclient", stateDir, eventlog.NewDiscard())

	g.Expect(controller.Stop()).To(Succeed())
}

func TestStopWaitsForClientExit(t *testing.T) {
	t.Parallel()

	g := NewWithT(t)

	stateDir := t.TempDir()

	// A real child standing in for the client; it dies on SIGTERM.
	cmd := exec.Command("sleep", "60")
	g.Expect(cmd.Start()).To(Succeed())

	go func() {
		_ = cmd.Wait()
	}()

	pid := cmd.Process.Pid
	pidFile := filepath.Join(stateDir, streamctl.PidFileName)
	g.Expect(os.WriteFile(pidFile, []byte(strconv.Itoa(pid)+"\n"), 0o600)).To(Succeed())

	controller := streamctl.NewController("/usr/bin/streamclient", stateDir, eventlog.NewDiscard())

	g.Expect(controller.Stop()).To(Succeed())

	// By the time Stop returns, the pid must be gone.
	process, err := os.FindProcess(pid)
	g.Expect(err).ShouldNot(HaveOccurred())
	g.Expect(process.Signal(syscall.Signal(0))).To(HaveOccurred())
}

func TestStartOnlyRestartsWhatStopInterrupted(t *testing.T) {
	t.Parallel()

	g := NewWithT(t)

	// Stop never terminated anything, so Start must not launch the (bogus)
	// client path.
	controller := streamctl.NewController("/nonexistent/streamclient", t.TempDir(), eventlog.NewDiscard())

	g.Expect(controller.Stop()).To(Succeed())
	g.Expect(controller.Start()).To(Succeed())
}
