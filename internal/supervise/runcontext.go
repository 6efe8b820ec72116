package supervise

import "sync"

// RunContext owns the identity of the currently supervised subprocess so an
// external abort (operator signal, TUI cancel) can find and kill it. The
// registration is cleared the moment an attempt's process exits, under every
// exit path, so a stale PID is never targeted for termination.
type RunContext struct {
	mu      sync.Mutex
	current Process
}

// NewRunContext returns an empty run context.
func NewRunContext() *RunContext {
	return &RunContext{}
}

// register records the active subprocess.
func (c *RunContext) register(process Process) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.current = process
}

// clear forgets the active subprocess.
func (c *RunContext) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.current = nil
}

// ActivePID returns the registered subprocess id, or zero when none is
// running.
func (c *RunContext) ActivePID() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current == nil {
		return 0
	}

	return c.current.PID()
}

// Abort kills the active subprocess, if any. Safe to call at any time.
func (c *RunContext) Abort() {
	c.mu.Lock()
	process := c.current
	c.mu.Unlock()

	if process != nil {
		_ = process.Kill()
	}
}
