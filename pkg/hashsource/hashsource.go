// Package hashsource produces content-hash records for every file beneath a
// root directory, using the same hash algorithm and encoding as the external
// transfer tool (MD5, lowercase hex) so local and remote inventories are
// directly comparable. Roots may be local paths or SFTP URLs
// (sftp://user@host:port/path) for local inventories that live on a NAS.
package hashsource

import (
	"crypto/md5" // #nosec G501 - hash must match the transfer tool's MD5 inventory format
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/joe/cloudpull/internal/parse"
)

// PathFilter restricts a walk to a subset of relative paths. A nil filter
// includes everything.
type PathFilter func(relPath string) bool

// Source produces hash records for one root.
type Source interface {
	// Hashes walks the root and returns one record per regular file whose
	// normalized relative path passes the filter.
	Hashes(filter PathFilter) ([]parse.HashRecord, error)
	// Close releases any connection the source holds.
	Close() error
}

// New returns a Source for the given root: an SFTP source for sftp:// URLs,
// a local source otherwise.
func New(root string) (Source, error) {
	if strings.HasPrefix(root, "sftp://") {
		return newSFTPSource(root)
	}

	return newLocalSource(root), nil
}

// hashReader drains r through MD5 and returns the lowercase hex digest.
func hashReader(r io.Reader) (string, error) {
	digest := md5.New() // #nosec G401 - matches the transfer tool's hash output

	_, err := io.Copy(digest, r)
	if err != nil {
		return "", fmt.Errorf("failed to hash content: %w", err)
	}

	return hex.EncodeToString(digest.Sum(nil)), nil
}
