// Package parse extracts structured records from the transfer tool's
// semi-structured text output: hash listings, duplicate-group counts, and
// simulated byte savings. All functions are pure and operate on text already
// captured by the supervisor.
package parse

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Exported constants.
const (
	// HashLength is the number of hex characters in one content hash (MD5).
	HashLength = 32
)

// hashLinePattern matches the tool's fixed-width hash listing format:
// exactly 32 lowercase hex characters, exactly two spaces, then the path.
var hashLinePattern = regexp.MustCompile(`^([0-9a-f]{32})  (.+)$`)

// duplicateGroupPattern matches the tool's dedupe summary lines, e.g.
// "Found 3 files with duplicate md5 hashes".
var duplicateGroupPattern = regexp.MustCompile(`Found (\d+) files with duplicate`)

// skippedDeletePattern matches simulated-delete lines carrying the size of
// the file the tool would have removed, e.g.
// "photo.jpg: skipped delete as --dry-run is set (size 1.50Mi)".
var skippedDeletePattern = regexp.MustCompile(`skipped delete.*\(size ([0-9.]+)\s*(Ki|Mi|Gi|Ti)?\)`)

// HashRecord is one file's content fingerprint and its location.
type HashRecord struct {
	Hash string
	Path string
}

// Inventory maps content hash to path for one tool invocation's output.
// Construction collapses repeated hashes (last occurrence wins), which is
// why duplicate detection must scan the raw lines instead.
type Inventory map[string]string

// DuplicateSummary is the result of scanning a dedupe run's log output.
type DuplicateSummary struct {
	// FileCount is the number of removable duplicate files: each group of N
	// identical files contributes N-1.
	FileCount int

	// BytesSaved is the summed size of deletes the tool skipped. Only
	// populated for simulated runs; zero otherwise (see Note).
	BytesSaved int64

	// Note explains a zero BytesSaved when the run was not simulated.
	Note string
}

// ParseHashListing splits captured listing lines into an inventory and the
// lines that violated the fixed-width hash format. Every non-matching line,
// blank lines included, lands in the invalid set; nothing is silently
// dropped.
func ParseHashListing(lines []string) (Inventory, []string) {
	inventory := make(Inventory)

	var invalid []string

	for _, line := range lines {
		match := hashLinePattern.FindStringSubmatch(line)
		if match == nil {
			invalid = append(invalid, line)

			continue
		}

		inventory[match[1]] = match[2]
	}

	return inventory, invalid
}

// ParseRecords returns the valid lines as ordered HashRecords, preserving
// every occurrence (no collapse). Feed these to DetectDuplicateHashes.
func ParseRecords(lines []string) []HashRecord {
	var records []HashRecord

	for _, line := range lines {
		match := hashLinePattern.FindStringSubmatch(line)
		if match == nil {
			continue
		}

		records = append(records, HashRecord{Hash: match[1], Path: match[2]})
	}

	return records
}

// DetectDuplicateHashes groups raw valid lines by hash and returns, sorted,
// every hash whose group holds more than one path. This runs on the raw list
// because inventory construction overwrites repeats and makes them invisible.
func DetectDuplicateHashes(lines []string) []string {
	counts := make(map[string]int)

	for _, record := range ParseRecords(lines) {
		counts[record.Hash]++
	}

	var duplicates []string

	for hash, count := range counts {
		if count > 1 {
			duplicates = append(duplicates, hash)
		}
	}

	sort.Strings(duplicates)

	return duplicates
}

// ParseDuplicateSummary scans a dedupe run's log text for duplicate-group
// counts and, when the run was simulated, the byte savings of skipped
// deletes. Absent matches mean zero. Malformed numeric captures lose that
// line's contribution, never the whole parse.
func ParseDuplicateSummary(logText string, simulated bool) DuplicateSummary {
	var summary DuplicateSummary

	for _, match := range duplicateGroupPattern.FindAllStringSubmatch(logText, -1) {
		groupSize, err := strconv.Atoi(match[1])
		if err != nil || groupSize < 1 {
			continue
		}

		// N identical files require N-1 deletions.
		summary.FileCount += groupSize - 1
	}

	if !simulated {
		// The tool only reports sizes for deletes it skipped; a live run
		// deletes without reporting, so savings are not computable.
		summary.Note = "byte savings unavailable outside simulation"

		return summary
	}

	for _, match := range skippedDeletePattern.FindAllStringSubmatch(logText, -1) {
		size, err := ParseByteSize(match[1], match[2])
		if err != nil {
			continue
		}

		summary.BytesSaved += size
	}

	return summary
}

// ParseByteSize converts a decimal value with an optional binary prefix
// (Ki/Mi/Gi/Ti) to bytes. An empty unit means the value already is bytes.
func ParseByteSize(value, unit string) (int64, error) {
	number, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0, err
	}

	multiplier := float64(1)

	switch unit {
	case "Ki":
		multiplier = 1 << 10
	case "Mi":
		multiplier = 1 << 20
	case "Gi":
		multiplier = 1 << 30
	case "Ti":
		multiplier = 1 << 40
	}

	return int64(number * multiplier), nil
}
