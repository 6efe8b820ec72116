//nolint:varnamelen // Test files use idiomatic short variable names (t, tt, etc.)
package eventlog_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	. "github.com/onsi/gomega" //nolint:revive // Dot import is idiomatic for Gomega matchers

	"github.com/joe/cloudpull/internal/eventlog"
)

func TestLevelString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		level    eventlog.Level
		expected string
	}{
		{eventlog.LevelInfo, "INFO"},
		{eventlog.LevelWarning, "WARNING"},
		{eventlog.LevelError, "ERROR"},
		{eventlog.Level(42), "UNKNOWN"},
	}

	for _, tt := range tests {
		if got := tt.level.String(); got != tt.expected {
			t.Errorf("Level(%d).String() = %q, want %q", tt.level, got, tt.expected)
		}
	}
}

func TestLoggerWritesLevelTaggedLines(t *testing.T) {
	t.Parallel()

	g := NewWithT(t)

	path := filepath.Join(t.TempDir(), "run.log")

	logger, err := eventlog.New(path, nil)
	g.Expect(err).ShouldNot(HaveOccurred())

	logger.Info("listing remote")
	logger.Warning("3 unparseable lines")
	logger.Error("duplicate hashes on remote", eventlog.EventDuplicateHashes)
	logger.Close()

	data, err := os.ReadFile(path) // #nosec G304 - temp dir path
	g.Expect(err).ShouldNot(HaveOccurred())

	text := string(data)
	g.Expect(text).To(ContainSubstring("INFO listing remote"))
	g.Expect(text).To(ContainSubstring("WARNING 3 unparseable lines"))
	g.Expect(text).To(ContainSubstring("ERROR [1011] duplicate hashes on remote"))
}

func TestLoggerMirrorsToWriter(t *testing.T) {
	t.Parallel()

	g := NewWithT(t)

	path := filepath.Join(t.TempDir(), "run.log")

	var mirror strings.Builder

	logger, err := eventlog.New(path, &mirror)
	g.Expect(err).ShouldNot(HaveOccurred())

	defer logger.Close()

	logger.Infof("copied %d files", 7)

	g.Expect(mirror.String()).To(ContainSubstring("INFO copied 7 files"))
}

func TestDiscardLoggerNeverPanics(t *testing.T) {
	t.Parallel()

	logger := eventlog.NewDiscard()

	logger.Info("no destination")
	logger.Warningf("still %s", "fine")
	logger.Error("even errors", eventlog.EventRunFailed)
	logger.Close()
}
