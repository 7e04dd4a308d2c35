// Package pii flags text containing structural patterns that look like
// personally identifiable information. Detection only: false positives are
// acceptable, non-pattern PII is out of reach.
package pii

import "regexp"

var patterns = []*regexp.Regexp{
	// Email addresses.
	regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`),
	// Payment-card-like groups: 13-16 digits, optional space/dash separators.
	regexp.MustCompile(`\b(?:\d[ \-]?){13,16}\b`),
	// National-ID-shaped numbers (SSN style 3-2-4).
	regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
	// Phone-number-like digit groups.
	regexp.MustCompile(`\b(?:\+?\d{1,3}[ \-.]?)?\(?\d{3}\)?[ \-.]?\d{3}[ \-.]?\d{4}\b`),
}

// Scanner matches extracted text against the fixed pattern set.
type Scanner struct{}

// New returns a PII scanner.
func New() *Scanner {
	return &Scanner{}
}

// Scan reports whether any sensitive pattern appears in the text.
func (s *Scanner) Scan(text string) bool {
	if text == "" {
		return false
	}
	for _, p := range patterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}
