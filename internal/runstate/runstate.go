// Package runstate persists the orchestration engine's state across runs:
// a day-granularity last-run marker and an append-only local hash inventory.
// Both are plain text with line-based I/O. The inventory is never rewritten;
// every run appends freshly computed hashes, and readers collapse the
// resulting multiset into a set of distinct hash values.
package runstate

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joe/cloudpull/internal/parse"
)

// Exported constants.
const (
	// MarkerName is the last-run marker file name under the state dir.
	MarkerName = "lastrun.txt"
	// InventoryName is the local hash inventory file name under the state dir.
	InventoryName = "localhashes.txt"
	// incompleteSuffix tags a marker written after a partially failed run.
	incompleteSuffix = " incomplete"
	// dayFormat is the marker's day-granularity date layout.
	dayFormat = "2006-01-02"
)

// Exported variables.
var (
	// ErrInventoryMissing means the local hash inventory does not exist yet;
	// a run cannot start without it.
	ErrInventoryMissing = errors.New("local hash inventory missing")
	// ErrStateTooOld means the last-run marker predates the configured
	// maximum age and the run was not told to ignore it.
	ErrStateTooOld = errors.New("last run is older than the configured maximum age")
)

// Store reads and writes the persisted run state under one directory.
type Store struct {
	dir string
}

// NewStore returns a Store rooted at dir, creating the directory if needed.
func NewStore(dir string) (*Store, error) {
	err := os.MkdirAll(dir, 0o750)
	if err != nil {
		return nil, fmt.Errorf("failed to create state dir %s: %w", dir, err)
	}

	return &Store{dir: dir}, nil
}

// Dir returns the state directory.
func (s *Store) Dir() string {
	return s.dir
}

// InventoryPath returns the path of the append-only local hash inventory.
func (s *Store) InventoryPath() string {
	return filepath.Join(s.dir, InventoryName)
}

// markerPath returns the path of the last-run marker.
func (s *Store) markerPath() string {
	return filepath.Join(s.dir, MarkerName)
}

// SeedInventory creates an empty inventory file if none exists, for first-run
// bootstrapping. Existing content is left untouched.
func (s *Store) SeedInventory() error {
	file, err := os.OpenFile(s.InventoryPath(), os.O_CREATE|os.O_WRONLY, 0o600) // #nosec G304 - path under the state dir
	if err != nil {
		return fmt.Errorf("failed to seed inventory: %w", err)
	}

	return file.Close()
}

// LoadLocalHashSet reads every inventory line and collapses the multiset
// into the set of distinct hash values, tolerating repeated entries from
// prior appends. Returns ErrInventoryMissing when the file does not exist.
func (s *Store) LoadLocalHashSet() (map[string]struct{}, error) {
	file, err := os.Open(s.InventoryPath()) // #nosec G304 - path under the state dir
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrInventoryMissing, s.InventoryPath())
		}

		return nil, fmt.Errorf("failed to open inventory: %w", err)
	}

	defer func() {
		_ = file.Close()
	}()

	hashes := make(map[string]struct{})

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if len(line) < parse.HashLength {
			continue
		}

		hashes[line[:parse.HashLength]] = struct{}{}
	}

	err = scanner.Err()
	if err != nil {
		return nil, fmt.Errorf("failed to read inventory: %w", err)
	}

	return hashes, nil
}

// AppendHashes appends freshly computed local hashes without deduplicating
// previous entries.
func (s *Store) AppendHashes(records []parse.HashRecord) error {
	file, err := os.OpenFile(s.InventoryPath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600) // #nosec G304 - path under the state dir
	if err != nil {
		return fmt.Errorf("failed to open inventory for append: %w", err)
	}

	defer func() {
		_ = file.Close()
	}()

	writer := bufio.NewWriter(file)

	for _, record := range records {
		_, err = fmt.Fprintf(writer, "%s  %s\n", record.Hash, record.Path)
		if err != nil {
			return fmt.Errorf("failed to append inventory line: %w", err)
		}
	}

	err = writer.Flush()
	if err != nil {
		return fmt.Errorf("failed to flush inventory: %w", err)
	}

	return nil
}

// LastRun reads the last-run marker. found is false when no marker exists.
func (s *Store) LastRun() (day time.Time, incomplete, found bool, err error) {
	data, err := os.ReadFile(s.markerPath()) // #nosec G304 - path under the state dir
	if err != nil {
		if os.IsNotExist(err) {
			return time.Time{}, false, false, nil
		}

		return time.Time{}, false, false, fmt.Errorf("failed to read last-run marker: %w", err)
	}

	text := strings.TrimSpace(string(data))

	incomplete = strings.HasSuffix(text, strings.TrimSpace(incompleteSuffix))
	if incomplete {
		text = strings.TrimSpace(strings.TrimSuffix(text, strings.TrimSpace(incompleteSuffix)))
	}

	day, err = time.Parse(dayFormat, text)
	if err != nil {
		return time.Time{}, false, false, fmt.Errorf("malformed last-run marker %q: %w", text, err)
	}

	return day, incomplete, true, nil
}

// MarkRun advances the last-run marker to the given day. Partially failed
// runs are marked incomplete rather than losing the marker's advance.
func (s *Store) MarkRun(day time.Time, incomplete bool) error {
	text := day.Format(dayFormat)
	if incomplete {
		text += incompleteSuffix
	}

	err := os.WriteFile(s.markerPath(), []byte(text+"\n"), 0o600)
	if err != nil {
		return fmt.Errorf("failed to write last-run marker: %w", err)
	}

	return nil
}

// CheckMaxAge returns ErrStateTooOld when a marker exists and is older than
// maxAgeDays. A missing marker (first run) passes.
func (s *Store) CheckMaxAge(maxAgeDays int, now time.Time) error {
	day, _, found, err := s.LastRun()
	if err != nil {
		return err
	}

	if !found {
		return nil
	}

	age := now.Sub(day)
	if age > time.Duration(maxAgeDays)*24*time.Hour {
		return fmt.Errorf("%w: last run %s", ErrStateTooOld, day.Format(dayFormat))
	}

	return nil
}
