package tags

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassifyURLKeywords(t *testing.T) {
	t.Parallel()

	c := New()
	labels := c.Classify("https://shop.example.com/checkout", "")
	require.Contains(t, labels, "checkout")
}

func TestClassifyTextKeywords(t *testing.T) {
	t.Parallel()

	c := New()
	labels := c.Classify("https://example.com/", "See our Pricing plans and Contact sales")
	require.Contains(t, labels, "pricing")
	require.Contains(t, labels, "contact")
}

func TestClassifyCaseInsensitive(t *testing.T) {
	t.Parallel()

	c := New()
	require.Equal(t, c.Classify("https://example.com/LOGIN", ""), c.Classify("https://example.com/login", ""))
}

func TestClassifyDeduplicatesLabels(t *testing.T) {
	t.Parallel()

	c := New()
	// "checkout" in URL and "cart" in text both map to the checkout label.
	labels := c.Classify("https://example.com/checkout", "view your cart")
	count := 0
	for _, l := range labels {
		if l == "checkout" {
			count++
		}
	}
	require.Equal(t, 1, count)
}

func TestClassifyNoMatches(t *testing.T) {
	t.Parallel()

	c := New()
	require.Empty(t, c.Classify("https://example.com/", "nothing of note here"))
}

func TestClassifySorted(t *testing.T) {
	t.Parallel()

	c := New()
	labels := c.Classify("https://example.com/checkout", "login to see pricing")
	require.Equal(t, []string{"auth", "checkout", "pricing"}, labels)
}
