// Package reconcile compares the remote hash inventory against the local
// hash set and computes the minimal file-transfer set for the run.
package reconcile

import (
	"sort"

	"github.com/joe/cloudpull/internal/parse"
)

// Result is the outcome of one reconciliation pass.
type Result struct {
	// Matched counts remote entries whose hash already exists locally.
	Matched int

	// MissingLocally holds the remote files absent from the local set,
	// ordered by path. This becomes the transfer plan's input.
	MissingLocally []parse.HashRecord

	// DuplicateHashes carries the duplicate hash keys detected upstream in
	// the raw remote listing, for the caller's integrity policy.
	DuplicateHashes []string
}

// Compare walks the remote inventory and splits it into matched entries and
// files missing locally. duplicates is the result of the raw-line duplicate
// scan and is carried through untouched.
func Compare(remote parse.Inventory, localHashes map[string]struct{}, duplicates []string) Result {
	result := Result{DuplicateHashes: duplicates}

	for hash, path := range remote {
		if _, ok := localHashes[hash]; ok {
			result.Matched++
			continue
		}

		result.MissingLocally = append(result.MissingLocally, parse.HashRecord{Hash: hash, Path: path})
	}

	sort.Slice(result.MissingLocally, func(i, j int) bool {
		return result.MissingLocally[i].Path < result.MissingLocally[j].Path
	})

	return result
}

// Complete verifies matched + |missingLocally| against the raw remote record
// count. A mismatch is a symptom of duplicate-key collapse upstream, not
// itself fatal; callers log it as a warning.
func (r Result) Complete(rawRecordCount int) bool {
	return r.Matched+len(r.MissingLocally) == rawRecordCount
}

// MissingPaths returns just the paths of the missing set, in order.
func (r Result) MissingPaths() []string {
	paths := make([]string, 0, len(r.MissingLocally))

	for _, record := range r.MissingLocally {
		paths = append(paths, record.Path)
	}

	return paths
}
