//nolint:varnamelen // Test files use idiomatic short variable names (t, tt, etc.)
package errors_test

import (
	"testing"

	. "github.com/onsi/gomega" //nolint:revive // Dot import is idiomatic for Gomega matchers

	"github.com/joe/cloudpull/pkg/errors"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		lines    []string
		expected errors.ErrorCategory
	}{
		{"auth token", []string{"ERROR: couldn't fetch token: invalid_grant"}, errors.CategoryAuth},
		{"network reset", []string{"read tcp: connection reset by peer"}, errors.CategoryNetwork},
		{"quota", []string{"ERROR: Quota exceeded for this account"}, errors.CategoryQuota},
		{"rate limit", []string{"googleapi: Error 429 Too Many Requests"}, errors.CategoryRateLimit},
		{"path", []string{"ERROR: directory not found"}, errors.CategoryPath},
		{"nothing recognizable", []string{"something odd happened"}, errors.CategoryUnknown},
		{"empty output", nil, errors.CategoryUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := errors.Classify(tt.lines); got != tt.expected {
				t.Errorf("Classify(%v) = %q, want %q", tt.lines, got, tt.expected)
			}
		})
	}
}

func TestEnrichCarriesDetailAndSuggestions(t *testing.T) {
	t.Parallel()

	g := NewWithT(t)

	toolErr := errors.Enrich("hash remote", []string{
		"Transferred: 0 B",
		"ERROR: couldn't fetch token: invalid_grant",
	})

	g.Expect(toolErr.Category).To(Equal(errors.CategoryAuth))
	g.Expect(toolErr.Detail).To(ContainSubstring("invalid_grant"))
	g.Expect(toolErr.Suggestions).NotTo(BeEmpty())
	g.Expect(toolErr.Error()).To(ContainSubstring("hash remote failed (auth)"))
}

func TestFormatSuggestions(t *testing.T) {
	t.Parallel()

	g := NewWithT(t)

	toolErr := errors.Enrich("copy", []string{"connection refused"})

	formatted := errors.FormatSuggestions(toolErr)
	g.Expect(formatted).To(ContainSubstring("  - "))

	g.Expect(errors.FormatSuggestions(nil)).To(BeEmpty())
}
