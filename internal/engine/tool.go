package engine

import (
	"fmt"
	"os/exec"
	"path/filepath"

	"github.com/joe/cloudpull/internal/supervise"
)

// Exported constants.
const (
	// DefaultToolName is the transfer tool binary looked up on PATH when the
	// settings do not pin an explicit path.
	DefaultToolName = "rclone"
)

// LocateTool resolves the transfer tool executable: an explicit settings
// path wins, otherwise the default name is looked up on PATH.
func LocateTool(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}

	path, err := exec.LookPath(DefaultToolName)
	if err != nil {
		return "", fmt.Errorf("transfer tool %q not found on PATH: %w", DefaultToolName, err)
	}

	return path, nil
}

// tool builds and supervises invocations of the external transfer tool. Each
// operation is one subprocess run; captures and the tool's own log live
// under the log dir, named per run.
type tool struct {
	runner     *supervise.Runner
	path       string
	remoteRoot string
	localRoot  string
	logDir     string
	runID      string
	simulate   bool
	filterFile string
	base       supervise.Options
}

// logPath is the file the tool appends its own progress to; the supervisor
// watches it for activity.
func (t *tool) logPath() string {
	return filepath.Join(t.logDir, fmt.Sprintf("tool-%s.log", t.runID))
}

// options returns the per-operation supervisor options, sharing the capture
// files across operations since they run strictly in sequence.
func (t *tool) options() supervise.Options {
	opts := t.base
	opts.LogPath = t.logPath()
	opts.StdoutPath = filepath.Join(t.logDir, fmt.Sprintf("tool-%s.stdout", t.runID))
	opts.StderrPath = filepath.Join(t.logDir, fmt.Sprintf("tool-%s.stderr", t.runID))

	return opts
}

// commonArgs are appended to every invocation.
func (t *tool) commonArgs() []string {
	args := []string{"--log-file", t.logPath(), "--log-level", "INFO"}
	if t.filterFile != "" {
		args = append(args, "--filter-from", t.filterFile)
	}

	return args
}

// listRemote lists every file beneath the remote root, one path per stdout
// line.
func (t *tool) listRemote() (supervise.RunResult, error) {
	args := append([]string{"lsf", t.remoteRoot, "--recursive", "--files-only"}, t.commonArgs()...)

	return t.runner.Execute(t.path, args, t.options())
}

// dedupeRemote collapses duplicate remote files, keeping the newest copy of
// each group. Simulated runs pass the tool's own dry-run flag so nothing is
// deleted but the skipped deletes (and their sizes) land in the log.
func (t *tool) dedupeRemote() (supervise.RunResult, error) {
	args := []string{"dedupe", "newest", t.remoteRoot}
	if t.simulate {
		args = append(args, "--dry-run")
	}

	args = append(args, t.commonArgs()...)

	return t.runner.Execute(t.path, args, t.options())
}

// hashRemote produces the remote hash listing, one "hash  path" line per
// file on stdout.
func (t *tool) hashRemote() (supervise.RunResult, error) {
	args := append([]string{"md5sum", t.remoteRoot}, t.commonArgs()...)

	return t.runner.Execute(t.path, args, t.options())
}

// copyFile copies one remote-relative path to the same location under the
// local root. Per-file retry policy lives in the transfer planner; the
// supervisor runs each invocation once.
func (t *tool) copyFile(relPath string) (supervise.RunResult, error) {
	args := append([]string{
		"copyto",
		t.remoteRoot + "/" + relPath,
		filepath.Join(t.localRoot, filepath.FromSlash(relPath)),
	}, t.commonArgs()...)

	opts := t.options()
	opts.MaxRetries = 1

	return t.runner.Execute(t.path, args, opts)
}
