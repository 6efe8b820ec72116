// Package eventlog provides the run log writer used by every component of
// the orchestration engine. Writes are synchronous and failures are
// swallowed: a logging problem must never abort a sync run.
package eventlog

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// Level classifies a log line's severity.
type Level int

const (
	// LevelInfo marks routine progress lines.
	LevelInfo Level = iota
	// LevelWarning marks recoverable data-quality problems.
	LevelWarning
	// LevelError marks structural failures that terminate the run.
	LevelError
)

// String returns the string representation of Level.
func (l Level) String() string {
	switch l {
	case LevelInfo:
		return "INFO"
	case LevelWarning:
		return "WARNING"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Event ids carried over from the original operator runbook. An id of zero
// means "no id" and is omitted from the line.
const (
	EventRunStarted      = 1000
	EventRunCompleted    = 1001
	EventRunFailed       = 1002
	EventToolFailure     = 1010
	EventDuplicateHashes = 1011
	EventStaleState      = 1012
	EventTransferFailure = 1020
)

// Logger writes timestamped level-tagged lines to the run log file and,
// optionally, mirrors them to a secondary writer (typically stderr).
type Logger struct {
	mu     sync.Mutex
	file   *os.File
	mirror io.Writer
	now    func() time.Time
}

// New opens (appending) the run log at path. A mirror writer may be nil.
func New(path string, mirror io.Writer) (*Logger, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600) // #nosec G304 - log path comes from validated settings
	if err != nil {
		return nil, fmt.Errorf("failed to open run log %s: %w", path, err)
	}

	return &Logger{file: file, mirror: mirror, now: time.Now}, nil
}

// NewDiscard returns a logger that writes nowhere. Useful for tests and for
// components that accept a logger but run headless.
func NewDiscard() *Logger {
	return &Logger{now: time.Now}
}

// Close closes the underlying log file.
func (l *Logger) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		_ = l.file.Close()
		l.file = nil
	}
}

// Log writes one line at the given level. eventID of zero is omitted.
// Write errors are deliberately dropped.
func (l *Logger) Log(level Level, message string, eventID int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	stamp := l.now().Format("2006-01-02 15:04:05")

	var line string
	if eventID != 0 {
		line = fmt.Sprintf("%s %s [%d] %s\n", stamp, level, eventID, message)
	} else {
		line = fmt.Sprintf("%s %s %s\n", stamp, level, message)
	}

	if l.file != nil {
		_, _ = l.file.WriteString(line)
	}

	if l.mirror != nil {
		_, _ = io.WriteString(l.mirror, line)
	}
}

// Info logs an INFO line without an event id.
func (l *Logger) Info(message string) {
	l.Log(LevelInfo, message, 0)
}

// Infof logs a formatted INFO line without an event id.
func (l *Logger) Infof(format string, args ...any) {
	l.Log(LevelInfo, fmt.Sprintf(format, args...), 0)
}

// Warning logs a WARNING line without an event id.
func (l *Logger) Warning(message string) {
	l.Log(LevelWarning, message, 0)
}

// Warningf logs a formatted WARNING line without an event id.
func (l *Logger) Warningf(format string, args ...any) {
	l.Log(LevelWarning, fmt.Sprintf(format, args...), 0)
}

// Error logs an ERROR line with the given event id.
func (l *Logger) Error(message string, eventID int) {
	l.Log(LevelError, message, eventID)
}
