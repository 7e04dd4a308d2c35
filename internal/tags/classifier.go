// Package tags assigns category labels to a capture by keyword matching
// against the URL and extracted text. Purely additive: every matching rule
// contributes its label, with no precedence or negation.
package tags

import (
	"sort"
	"strings"
)

// vocabulary maps a keyword to the label it contributes.
var vocabulary = map[string]string{
	"checkout": "checkout",
	"cart":     "checkout",
	"login":    "auth",
	"signin":   "auth",
	"signup":   "auth",
	"register": "auth",
	"pricing":  "pricing",
	"price":    "pricing",
	"blog":     "blog",
	"news":     "news",
	"careers":  "careers",
	"jobs":     "careers",
	"contact":  "contact",
	"support":  "support",
	"help":     "support",
	"product":  "product",
	"shop":     "product",
	"privacy":  "legal",
	"terms":    "legal",
}

// Classifier performs rule-based tag assignment.
type Classifier struct{}

// New returns a tag classifier.
func New() *Classifier {
	return &Classifier{}
}

// Classify returns the sorted, deduplicated label set for the URL and
// optional extracted text. Matching is case-insensitive.
func (c *Classifier) Classify(url, text string) []string {
	haystack := strings.ToLower(url) + "\n" + strings.ToLower(text)
	seen := make(map[string]struct{})
	for keyword, label := range vocabulary {
		if strings.Contains(haystack, keyword) {
			seen[label] = struct{}{}
		}
	}
	if len(seen) == 0 {
		return nil
	}
	labels := make([]string, 0, len(seen))
	for label := range seen {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}
