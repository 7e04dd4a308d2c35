// Package diff implements the change detector: it scores a new capture
// fingerprint against the most recent persisted record for the same page.
package diff

import (
	"github.com/watchpoint/pagewatch/internal/capture"
	"github.com/watchpoint/pagewatch/internal/fingerprint"
)

// DefaultThreshold is the diff score above which a capture counts as changed.
const DefaultThreshold = 0.1

// FallbackScore is assigned when renditions differ in pixel dimensions and
// the DOM hashes disagree: visual distance cannot be computed, so the score
// reflects a structural-only, degraded-confidence comparison.
const FallbackScore = 0.5

// Detector compares fingerprints under a configured change threshold.
type Detector struct {
	threshold float64
}

// New creates a detector. A non-positive threshold falls back to the default.
func New(threshold float64) *Detector {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Detector{threshold: threshold}
}

// Detect scores the new fingerprint against the prior record for the page.
//
// A nil prior means first capture: always a baseline, never a change. Exact
// content-hash equality short-circuits to identical. Renditions of matching
// dimensions compare by perceptual hash distance; mismatched dimensions fall
// back to DOM hash equality.
func (d *Detector) Detect(fp capture.Fingerprint, prior *capture.CaptureRecord) capture.DiffResult {
	if prior == nil {
		return capture.DiffResult{}
	}
	if fp.ContentHash == prior.ContentHash {
		return capture.DiffResult{}
	}
	if fp.Width != prior.Width || fp.Height != prior.Height {
		res := capture.DiffResult{Fallback: true}
		if fp.DOMHash != prior.DOMHash {
			res.Score = FallbackScore
			res.Changed = res.Score > d.threshold
		}
		return res
	}
	score := fingerprint.Distance(fp.Perceptual, prior.Perceptual)
	return capture.DiffResult{
		Score:   score,
		Changed: score > d.threshold,
	}
}
