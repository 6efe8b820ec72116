package supervise

import (
	"errors"
	"os"
	"os/exec"
)

// ExitState is the terminal state of a supervised process.
type ExitState struct {
	// Code is the process exit code, valid only when Captured is true.
	Code int
	// Captured is false when the process ended without a capturable code.
	Captured bool
}

// Process abstracts a running subprocess so tests can substitute scripted
// behavior for real child processes.
type Process interface {
	// PID returns the operating-system process id.
	PID() int
	// Done yields the exit state once, when the process terminates.
	Done() <-chan ExitState
	// Kill force-terminates the process.
	Kill() error
}

// Launcher starts subprocesses with their output streams redirected to the
// per-attempt capture files.
type Launcher interface {
	Start(command string, args []string, stdout, stderr *os.File) (Process, error)
}

// execLauncher launches real processes via os/exec.
type execLauncher struct{}

// Start launches the command and begins waiting for it in the background.
func (l *execLauncher) Start(command string, args []string, stdout, stderr *os.File) (Process, error) {
	cmd := exec.Command(command, args...) // #nosec G204 - command and args come from validated settings

	if stdout != nil {
		cmd.Stdout = stdout
	}

	if stderr != nil {
		cmd.Stderr = stderr
	}

	err := cmd.Start()
	if err != nil {
		return nil, err
	}

	process := &execProcess{cmd: cmd, done: make(chan ExitState, 1)}

	go process.wait()

	return process, nil
}

// execProcess wraps a started exec.Cmd.
type execProcess struct {
	cmd  *exec.Cmd
	done chan ExitState
}

// PID returns the child's process id.
func (p *execProcess) PID() int {
	return p.cmd.Process.Pid
}

// Done yields the exit state when the child terminates.
func (p *execProcess) Done() <-chan ExitState {
	return p.done
}

// Kill force-terminates the child.
func (p *execProcess) Kill() error {
	return p.cmd.Process.Kill()
}

// wait blocks on the child and publishes its exit state.
func (p *execProcess) wait() {
	err := p.cmd.Wait()
	if err == nil {
		p.done <- ExitState{Code: 0, Captured: true}
		return
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		p.done <- ExitState{Code: exitErr.ExitCode(), Captured: true}
		return
	}

	p.done <- ExitState{Captured: false}
}
