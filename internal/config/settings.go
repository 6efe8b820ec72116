package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Exported constants.
const (
	// DefaultMaxAgeDays is how stale the last-run marker may be before a
	// run refuses to start.
	DefaultMaxAgeDays = 30
)

// Exported variables.
var (
	ErrSettingsIncomplete = errors.New("settings file is incomplete")
)

// Settings is the wizard-maintained configuration file. Durations are in
// seconds to keep the file plain and hand-editable.
type Settings struct {
	// RemoteName is the tool's name for the cloud remote, e.g. "gdrive".
	RemoteName string `yaml:"remote_name"`
	// RemoteRoot is the remote path synced from, e.g. "gdrive:photos".
	RemoteRoot string `yaml:"remote_root"`
	// LocalRoot is the local destination: a directory path or an sftp:// URL.
	LocalRoot string `yaml:"local_root"`
	// ToolPath is the transfer tool executable; empty means PATH lookup.
	ToolPath string `yaml:"tool_path"`
	// StreamClientPath launches the third-party file-stream client.
	StreamClientPath string `yaml:"stream_client_path"`

	LogDir   string `yaml:"log_dir"`
	StateDir string `yaml:"state_dir"`

	InactivityTimeoutSec int `yaml:"inactivity_timeout_sec"`
	TotalTimeoutSec      int `yaml:"total_timeout_sec"`
	PollIntervalSec      int `yaml:"poll_interval_sec"`
	MaxRetries           int `yaml:"max_retries"`
	MaxRetriesPerFile    int `yaml:"max_retries_per_file"`
	MaxAgeDays           int `yaml:"max_age_days"`
}

// DefaultSettings returns a Settings with sensible defaults under the
// user's home directory.
func DefaultSettings() Settings {
	homeDir, _ := os.UserHomeDir()

	return Settings{
		LogDir:     filepath.Join(homeDir, ".local", "share", "cloudpull", "logs"),
		StateDir:   filepath.Join(homeDir, ".local", "share", "cloudpull", "state"),
		MaxAgeDays: DefaultMaxAgeDays,
	}
}

// LoadSettings reads and validates the settings file.
func LoadSettings(path string) (*Settings, error) {
	data, err := os.ReadFile(path) // #nosec G304 - settings path comes from the --settings flag
	if err != nil {
		return nil, fmt.Errorf("failed to read settings %s: %w", path, err)
	}

	settings := DefaultSettings()

	err = yaml.Unmarshal(data, &settings)
	if err != nil {
		return nil, fmt.Errorf("failed to parse settings %s: %w", path, err)
	}

	err = settings.Validate()
	if err != nil {
		return nil, err
	}

	return &settings, nil
}

// Save writes the settings file, creating parent directories as needed.
func (s *Settings) Save(path string) error {
	err := os.MkdirAll(filepath.Dir(path), 0o750)
	if err != nil {
		return fmt.Errorf("failed to create settings dir: %w", err)
	}

	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	err = os.WriteFile(path, data, 0o600)
	if err != nil {
		return fmt.Errorf("failed to write settings %s: %w", path, err)
	}

	return nil
}

// Validate checks the fields a run cannot proceed without.
func (s *Settings) Validate() error {
	switch {
	case s.RemoteName == "":
		return fmt.Errorf("%w: remote_name is required", ErrSettingsIncomplete)
	case s.RemoteRoot == "":
		return fmt.Errorf("%w: remote_root is required", ErrSettingsIncomplete)
	case s.LocalRoot == "":
		return fmt.Errorf("%w: local_root is required", ErrSettingsIncomplete)
	}

	if s.MaxAgeDays == 0 {
		s.MaxAgeDays = DefaultMaxAgeDays
	}

	return nil
}
