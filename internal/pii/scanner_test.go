package pii

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScanDetectsPatterns(t *testing.T) {
	t.Parallel()

	s := New()
	cases := []struct {
		name string
		text string
		want bool
	}{
		{"empty", "", false},
		{"plain prose", "welcome to our store, browse the catalog", false},
		{"email", "contact us at support@example.com for help", true},
		{"card number spaced", "pay with 4111 1111 1111 1111 today", true},
		{"card number dashed", "card: 5500-0000-0000-0004", true},
		{"ssn shaped", "id 123-45-6789 on file", true},
		{"phone", "call (555) 867-5309 now", true},
		{"international phone", "+1 555 867 5309", true},
		{"short digits", "order #1234", false},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, s.Scan(tc.text))
		})
	}
}
