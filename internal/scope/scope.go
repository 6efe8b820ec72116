// Package scope synthesizes the ephemeral include/exclude filter that
// restricts a run to one remote subtree. Rule order matters: evaluation is
// first-match-wins, so the subtree include precedes the catch-all exclude.
package scope

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

// Exported variables.
var (
	// ErrEmptyScope signals that the raw scope path normalized to nothing.
	// Callers fall back to their pre-configured filter instead of running
	// with a filter that would match nothing or everything unexpectedly.
	ErrEmptyScope = errors.New("scope path is empty after normalization")
)

// Rule is one include or exclude line of a filter description.
type Rule struct {
	Include bool
	Pattern string
}

// Filter is an ordered list of include/exclude rules scoping a run to one
// remote subtree.
type Filter struct {
	// Subtree is the normalized remote-relative path the filter includes.
	Subtree string
	Rules   []Rule
}

// Build normalizes rawScopePath against the remote root prefix and produces
// a two-rule filter: include the subtree and everything beneath it, exclude
// everything else. Returns ErrEmptyScope when nothing remains after
// normalization.
func Build(remoteRootPrefix, rawScopePath string) (*Filter, error) {
	subtree := Normalize(remoteRootPrefix, rawScopePath)
	if subtree == "" {
		return nil, ErrEmptyScope
	}

	return &Filter{
		Subtree: subtree,
		Rules: []Rule{
			{Include: true, Pattern: "/" + subtree + "/**"},
			{Include: false, Pattern: "*"},
		},
	}, nil
}

// Normalize strips the remote root prefix (case-insensitively) and leading
// path separators from raw, converting backslashes to forward slashes.
func Normalize(remoteRootPrefix, raw string) string {
	normalized := strings.ReplaceAll(raw, `\`, "/")

	prefix := strings.ReplaceAll(remoteRootPrefix, `\`, "/")
	if prefix != "" && strings.HasPrefix(strings.ToLower(normalized), strings.ToLower(prefix)) {
		normalized = normalized[len(prefix):]
	}

	return strings.Trim(normalized, "/")
}

// Matches reports whether the remote-relative path is selected by the
// filter, evaluating rules in order and returning the first match's verdict.
// Matching is case-insensitive, like the tool's own filter handling.
func (f *Filter) Matches(relPath string) bool {
	candidate := "/" + strings.ToLower(strings.Trim(strings.ReplaceAll(relPath, `\`, "/"), "/"))

	for _, rule := range f.Rules {
		if rule.Pattern == "*" {
			// The tool's catch-all spelling; matches any path.
			return rule.Include
		}

		matched, err := doublestar.Match(strings.ToLower(rule.Pattern), candidate)
		if err != nil {
			continue
		}

		if matched {
			return rule.Include
		}
	}

	return false
}

// WriteFile renders the filter in the tool's filter-file syntax to a
// timestamp-named file under dir and returns its path. The file is never
// deleted by the engine; cleanup is external.
func (f *Filter) WriteFile(dir, runID string) (string, error) {
	var builder strings.Builder

	for _, rule := range f.Rules {
		verdict := "- "
		if rule.Include {
			verdict = "+ "
		}

		builder.WriteString(verdict + rule.Pattern + "\n")
	}

	name := fmt.Sprintf("scope-%s-%s.filter", time.Now().Format("20060102T150405"), runID)
	path := filepath.Join(dir, name)

	err := os.WriteFile(path, []byte(builder.String()), 0o600)
	if err != nil {
		return "", fmt.Errorf("failed to write scope filter %s: %w", path, err)
	}

	return path, nil
}
