package supervise

import (
	"fmt"
	"os"
	"sync"
)

// MockLauncher is a scripted Launcher for tests. Each Start consumes the
// next scripted process; running out of scripts is an error so tests catch
// unexpected extra attempts.
type MockLauncher struct {
	mu        sync.Mutex
	processes []*MockProcess
	started   int
}

// NewMockLauncher creates a launcher that will hand out the given processes
// in order.
func NewMockLauncher(processes ...*MockProcess) *MockLauncher {
	return &MockLauncher{processes: processes}
}

// Start hands out the next scripted process and writes its scripted stdout
// to the capture file.
func (l *MockLauncher) Start(_ string, _ []string, stdout, _ *os.File) (Process, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.started >= len(l.processes) {
		return nil, fmt.Errorf("mock launcher: unexpected attempt %d", l.started+1) //nolint:err113 // test-only diagnostic
	}

	process := l.processes[l.started]
	l.started++

	if stdout != nil && process.Stdout != "" {
		_, _ = stdout.WriteString(process.Stdout)
	}

	if process.exitImmediately {
		process.publish()
	}

	return process, nil
}

// Started returns how many processes have been launched.
func (l *MockLauncher) Started() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.started
}

// MockProcess is a scripted subprocess.
type MockProcess struct {
	// Exit is the state published when the process "terminates".
	Exit ExitState
	// Stdout is written to the capture file on launch.
	Stdout string
	// DiesOnKill controls whether Kill publishes the exit state. A process
	// with DiesOnKill false simulates the still-running-after-kill case.
	DiesOnKill bool

	exitImmediately bool
	once            sync.Once
	done            chan ExitState
	killed          bool
	mu              sync.Mutex
}

// NewExitingProcess scripts a process that exits immediately with code.
func NewExitingProcess(code int, stdout string) *MockProcess {
	return &MockProcess{
		Exit:            ExitState{Code: code, Captured: true},
		Stdout:          stdout,
		DiesOnKill:      true,
		exitImmediately: true,
		done:            make(chan ExitState, 1),
	}
}

// NewHangingProcess scripts a process that never exits on its own.
func NewHangingProcess(diesOnKill bool) *MockProcess {
	return &MockProcess{
		Exit:       ExitState{Code: CodeUncaptured, Captured: false},
		DiesOnKill: diesOnKill,
		done:       make(chan ExitState, 1),
	}
}

// PID returns a fixed fake process id.
func (p *MockProcess) PID() int {
	return 4242
}

// Done yields the scripted exit state once published.
func (p *MockProcess) Done() <-chan ExitState {
	return p.done
}

// Kill records the kill and, when DiesOnKill is set, publishes the exit.
func (p *MockProcess) Kill() error {
	p.mu.Lock()
	p.killed = true
	p.mu.Unlock()

	if p.DiesOnKill {
		p.publish()
	}

	return nil
}

// Killed reports whether Kill was called.
func (p *MockProcess) Killed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.killed
}

// publish sends the exit state exactly once.
func (p *MockProcess) publish() {
	p.once.Do(func() {
		p.done <- p.Exit
	})
}
