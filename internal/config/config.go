// Package config handles command-line argument parsing and the settings
// file the configuration wizard maintains.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/alexflint/go-arg"
)

// Args holds the command-line configuration. Every flag maps onto one
// engine configuration field of the same semantics.
type Args struct {
	Simulate       bool   `arg:"-n,--simulate" help:"Plan and log without transferring or persisting state"`
	Remote         string `arg:"-r,--remote" help:"Override the configured remote name"`
	Scope          string `arg:"--scope" help:"Restrict the run to one remote subtree"`
	SkipDedupe     bool   `arg:"--skip-dedupe" help:"Skip the remote deduplication step"`
	SkipStreamStop bool   `arg:"--skip-stream-stop" help:"Leave the file-stream client running"`
	IgnoreMaxAge   bool   `arg:"--ignore-max-age" help:"Run even when the last run is older than the maximum age"`
	FailFast       bool   `arg:"--fail-fast" help:"Abort on the first exhausted failure instead of continuing"`
	Configure      bool   `arg:"--configure" help:"Open the settings wizard"`
	SettingsPath   string `arg:"--settings" help:"Settings file path"`
}

// Description returns the program description for go-arg.
func (Args) Description() string {
	return "One-way cloud-to-local sync orchestrator driving an external transfer tool"
}

// Version returns the version string for go-arg.
func (Args) Version() string {
	return "cloudpull 1.0.0"
}

// ParseFlags parses command-line flags.
func ParseFlags() (*Args, error) {
	args := &Args{}

	arg.MustParse(args)

	return PostProcessArgs(args)
}

// PostProcessArgs applies post-processing logic to parsed flags.
func PostProcessArgs(args *Args) (*Args, error) {
	if args.SettingsPath == "" {
		path, err := DefaultSettingsPath()
		if err != nil {
			return nil, err
		}

		args.SettingsPath = path
	}

	return args, nil
}

// DefaultSettingsPath returns ~/.config/cloudpull/settings.yaml.
func DefaultSettingsPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}

	return filepath.Join(homeDir, ".config", "cloudpull", "settings.yaml"), nil
}
