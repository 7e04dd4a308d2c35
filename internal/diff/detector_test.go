package diff

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/watchpoint/pagewatch/internal/capture"
)

func fp(content, dom string, perceptual uint64, w, h int) capture.Fingerprint {
	return capture.Fingerprint{
		ContentHash: content,
		DOMHash:     dom,
		Perceptual:  perceptual,
		Width:       w,
		Height:      h,
	}
}

func record(content, dom string, perceptual uint64, w, h int) *capture.CaptureRecord {
	return &capture.CaptureRecord{
		ContentHash: content,
		DOMHash:     dom,
		Perceptual:  perceptual,
		Width:       w,
		Height:      h,
	}
}

func TestDetectNoPriorIsBaseline(t *testing.T) {
	t.Parallel()

	d := New(0)
	res := d.Detect(fp("a", "b", 42, 100, 100), nil)
	require.Zero(t, res.Score)
	require.False(t, res.Changed)
	require.False(t, res.Fallback)
}

func TestDetectIdenticalContentHash(t *testing.T) {
	t.Parallel()

	d := New(0)
	// DOM differs, but byte-identical screenshots are never a change.
	res := d.Detect(
		fp("same", "dom-a", 1, 100, 100),
		record("same", "dom-b", 99, 100, 100),
	)
	require.Zero(t, res.Score)
	require.False(t, res.Changed)
}

func TestDetectPerceptualDistance(t *testing.T) {
	t.Parallel()

	d := New(0.1)
	// Every bit differs: distance 1.0.
	res := d.Detect(
		fp("new", "dom", 0x00000000FFFFFFFF, 100, 100),
		record("old", "dom", 0xFFFFFFFF00000000, 100, 100),
	)
	require.InDelta(t, 1.0, res.Score, 1e-9)
	require.True(t, res.Changed)
	require.False(t, res.Fallback)
}

func TestDetectThresholdMonotonic(t *testing.T) {
	t.Parallel()

	d := New(0.1)
	cases := []struct {
		bits    int
		changed bool
	}{
		{0, false},
		{6, false}, // 6/64 = 0.09375 <= 0.1
		{7, true},  // 7/64 = 0.109 > 0.1
		{64, true},
	}
	for _, tc := range cases {
		var mask uint64
		for i := 0; i < tc.bits; i++ {
			mask |= 1 << uint(i)
		}
		res := d.Detect(
			fp("new", "dom", mask, 10, 10),
			record("old", "dom", 0, 10, 10),
		)
		require.Equal(t, tc.changed, res.Changed, "bits=%d score=%f", tc.bits, res.Score)
	}
}

func TestDetectDimensionMismatchFallsBackToDOM(t *testing.T) {
	t.Parallel()

	d := New(0.1)

	// DOM hashes agree: structural comparison sees no change.
	same := d.Detect(
		fp("new", "dom", 1, 375, 812),
		record("old", "dom", 2, 1280, 800),
	)
	require.True(t, same.Fallback)
	require.Zero(t, same.Score)
	require.False(t, same.Changed)

	// DOM hashes differ: degraded-confidence fallback score.
	diffed := d.Detect(
		fp("new", "dom-a", 1, 375, 812),
		record("old", "dom-b", 2, 1280, 800),
	)
	require.True(t, diffed.Fallback)
	require.Equal(t, FallbackScore, diffed.Score)
	require.True(t, diffed.Changed)
}

func TestNewDefaultsThreshold(t *testing.T) {
	t.Parallel()

	d := New(-1)
	require.Equal(t, DefaultThreshold, d.threshold)
}
