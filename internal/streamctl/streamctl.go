// Package streamctl sequences the third-party file-stream client around a
// sync run: the client must not hold the local tree while the tool writes
// into it, so it is stopped strictly before the run and restarted strictly
// after. The client's pid is tracked in a pidfile under the state dir.
package streamctl

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joe/cloudpull/internal/eventlog"
)

// Exported constants.
const (
	// PidFileName is the pidfile name under the state dir.
	PidFileName = "streamclient.pid"
	// stopWait bounds how long Stop waits for the client to exit after
	// SIGTERM. The run must not start while the client still holds files.
	stopWait = 5 * time.Second
	// stopPoll is the liveness probe interval during that wait.
	stopPoll = 100 * time.Millisecond
)

// Controller stops and restarts the file-stream client.
type Controller struct {
	clientPath string
	pidFile    string
	log        *eventlog.Logger

	// stopped records whether Stop actually terminated a client, so Start
	// only restarts what the run interrupted.
	stopped bool
}

// NewController creates a Controller for the client executable at
// clientPath, tracking its pid under stateDir.
func NewController(clientPath, stateDir string, logger *eventlog.Logger) *Controller {
	return &Controller{
		clientPath: clientPath,
		pidFile:    filepath.Join(stateDir, PidFileName),
		log:        logger,
	}
}

// Stop terminates the tracked client process if it is running. A missing
// pidfile or an already-gone process is not an error.
func (c *Controller) Stop() error {
	if c.clientPath == "" {
		return nil
	}

	pid, err := c.readPid()
	if err != nil || pid == 0 {
		c.log.Info("file-stream client not tracked as running")

		return nil
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return nil
	}

	// Signal 0 probes liveness without affecting the process.
	if process.Signal(syscall.Signal(0)) != nil {
		c.log.Infof("file-stream client pid %d already exited", pid)

		return nil
	}

	err = process.Signal(syscall.SIGTERM)
	if err != nil {
		return fmt.Errorf("failed to stop file-stream client pid %d: %w", pid, err)
	}

	c.stopped = true

	// Wait for the exit so the run starts only after the client let go of
	// the local tree.
	deadline := time.Now().Add(stopWait)
	for time.Now().Before(deadline) {
		if process.Signal(syscall.Signal(0)) != nil {
			c.log.Infof("stopped file-stream client (pid %d)", pid)

			return nil
		}

		time.Sleep(stopPoll)
	}

	c.log.Warningf("file-stream client pid %d still running %s after SIGTERM", pid, stopWait)

	return nil
}

// Start relaunches the client if Stop terminated it, detaches, and records
// the new pid.
func (c *Controller) Start() error {
	if c.clientPath == "" || !c.stopped {
		return nil
	}

	cmd := exec.Command(c.clientPath) // #nosec G204 - client path comes from validated settings

	err := cmd.Start()
	if err != nil {
		return fmt.Errorf("failed to start file-stream client: %w", err)
	}

	pid := cmd.Process.Pid

	err = c.writePid(pid)
	if err != nil {
		return err
	}

	// Detach; the client outlives the orchestrator.
	_ = cmd.Process.Release()

	c.stopped = false
	c.log.Infof("started file-stream client (pid %d)", pid)

	return nil
}

// readPid reads the tracked pid, zero when absent.
func (c *Controller) readPid() (int, error) {
	data, err := os.ReadFile(c.pidFile) // #nosec G304 - pidfile under the state dir
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}

		return 0, fmt.Errorf("failed to read pidfile: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("malformed pidfile %s: %w", c.pidFile, err)
	}

	return pid, nil
}

// writePid records the client's pid.
func (c *Controller) writePid(pid int) error {
	err := os.WriteFile(c.pidFile, []byte(strconv.Itoa(pid)+"\n"), 0o600)
	if err != nil {
		return fmt.Errorf("failed to write pidfile: %w", err)
	}

	return nil
}
