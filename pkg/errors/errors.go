// Package errors enriches transfer-tool failures with categorization and
// actionable suggestions so operators can resolve a failed run quickly. The
// category is detected from the tool's captured stderr/log lines.
package errors

import (
	"strings"
)

// ErrorCategory represents the kind of tool failure that occurred.
type ErrorCategory string

// Exported constants.
const (
	CategoryAuth      ErrorCategory = "auth"
	CategoryNetwork   ErrorCategory = "network"
	CategoryPath      ErrorCategory = "path"
	CategoryQuota     ErrorCategory = "quota"
	CategoryRateLimit ErrorCategory = "rate_limit"
	CategoryUnknown   ErrorCategory = "unknown"
)

// ToolError is a tool failure with a category and actionable suggestions.
type ToolError struct {
	Operation   string
	Category    ErrorCategory
	Detail      string
	Suggestions []string
}

// Error implements the error interface.
func (e *ToolError) Error() string {
	if e.Detail == "" {
		return e.Operation + " failed (" + string(e.Category) + ")"
	}

	return e.Operation + " failed (" + string(e.Category) + "): " + e.Detail
}

// Classify matches the tool's output lines to a failure category. The first
// line matching a known pattern decides; unmatched output is unknown.
func Classify(lines []string) ErrorCategory {
	for _, line := range lines {
		lower := strings.ToLower(line)

		for category, patterns := range categoryPatterns {
			for _, pattern := range patterns {
				if strings.Contains(lower, pattern) {
					return category
				}
			}
		}
	}

	return CategoryUnknown
}

// Enrich builds a ToolError for a failed operation from its captured output.
func Enrich(operation string, outputLines []string) *ToolError {
	category := Classify(outputLines)

	return &ToolError{
		Operation:   operation,
		Category:    category,
		Detail:      firstMatchingLine(outputLines, category),
		Suggestions: Suggest(category),
	}
}

// Suggest returns actionable suggestions for the category.
func Suggest(category ErrorCategory) []string {
	switch category {
	case CategoryAuth:
		return []string{
			"Refresh the remote's credentials with the tool's config command",
			"Check whether the stored token has expired or been revoked",
		}
	case CategoryNetwork:
		return []string{
			"Check network connectivity to the remote",
			"Try the operation again - this may be a transient network error",
		}
	case CategoryQuota:
		return []string{
			"Free up space on the remote or the local destination",
			"Check available local space with 'df -h'",
		}
	case CategoryRateLimit:
		return []string{
			"Wait before retrying; the remote is throttling requests",
			"Lower the tool's transfer concurrency for this remote",
		}
	case CategoryPath:
		return []string{
			"Verify the remote name and path are spelled correctly",
			"Check that the configured local root exists",
		}
	case CategoryUnknown:
		return []string{
			"Check the captured tool output for details",
			"Re-run in simulation mode to reproduce without transferring",
		}
	default:
		return nil
	}
}

// FormatSuggestions renders the suggestions as a bulleted list for the run
// log. Returns an empty string for errors without suggestions.
func FormatSuggestions(err error) string {
	toolErr, ok := err.(*ToolError) //nolint:errorlint // Formatting applies to the top-level error only
	if !ok || len(toolErr.Suggestions) == 0 {
		return ""
	}

	var builder strings.Builder

	for i, suggestion := range toolErr.Suggestions {
		if i > 0 {
			builder.WriteString("\n")
		}

		builder.WriteString("  - " + suggestion)
	}

	return builder.String()
}

// categoryPatterns maps each category to the stderr substrings that signal
// it. Patterns follow the tool's own wording.
//
//nolint:gochecknoglobals // Shared lookup table
var categoryPatterns = map[ErrorCategory][]string{
	CategoryAuth: {
		"401 unauthorized",
		"invalid_grant",
		"token expired",
		"couldn't fetch token",
	},
	CategoryNetwork: {
		"connection reset",
		"connection refused",
		"no such host",
		"i/o timeout",
		"tls handshake",
	},
	CategoryQuota: {
		"quota exceeded",
		"insufficient storage",
		"no space left on device",
	},
	CategoryRateLimit: {
		"429 too many requests",
		"rate limit",
		"user rate limit exceeded",
	},
	CategoryPath: {
		"directory not found",
		"no such file or directory",
		"didn't find section in config file",
	},
}

// firstMatchingLine returns the line that triggered the category, for the
// error detail.
func firstMatchingLine(lines []string, category ErrorCategory) string {
	patterns := categoryPatterns[category]

	for _, line := range lines {
		lower := strings.ToLower(line)

		for _, pattern := range patterns {
			if strings.Contains(lower, pattern) {
				return strings.TrimSpace(line)
			}
		}
	}

	return ""
}
