package hashsource

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/kr/fs"

	"github.com/joe/cloudpull/internal/parse"
)

// localSource hashes files on a locally mounted filesystem.
type localSource struct {
	root string
}

// newLocalSource returns a Source over a local directory tree.
func newLocalSource(root string) *localSource {
	return &localSource{root: root}
}

// Hashes walks the tree and hashes every regular file passing the filter.
// Paths are returned relative to the root with forward slashes.
func (s *localSource) Hashes(filter PathFilter) ([]parse.HashRecord, error) {
	var records []parse.HashRecord

	walker := fs.Walk(s.root)

	for walker.Step() {
		if err := walker.Err(); err != nil { //nolint:noinlineerr // Inline error check is idiomatic for walker error handling
			return nil, fmt.Errorf("failed to walk %s: %w", s.root, err)
		}

		if walker.Stat().IsDir() {
			continue
		}

		fullPath := walker.Path()

		relPath, err := filepath.Rel(s.root, fullPath)
		if err != nil {
			return nil, fmt.Errorf("failed to get relative path for %s: %w", fullPath, err)
		}

		relPath = filepath.ToSlash(relPath)

		if filter != nil && !filter(relPath) {
			continue
		}

		hash, err := hashFile(fullPath)
		if err != nil {
			return nil, err
		}

		records = append(records, parse.HashRecord{Hash: hash, Path: relPath})
	}

	return records, nil
}

// Close is a no-op for local sources.
func (s *localSource) Close() error {
	return nil
}

// hashFile hashes one local file.
func hashFile(path string) (string, error) {
	file, err := os.Open(path) // #nosec G304 - path comes from walking the configured root
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}

	defer func() {
		_ = file.Close()
	}()

	hash, err := hashReader(file)
	if err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", path, err)
	}

	return hash, nil
}
