// Package fingerprint computes content-addressable identifiers for captures:
// cryptographic hashes of the raw screenshot and serialized DOM, and a
// perceptual dHash of the rendered image. Pure computation, no I/O.
package fingerprint

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"image"
	_ "image/jpeg"
	_ "image/png"

	"github.com/watchpoint/pagewatch/internal/capture"
)

// Engine implements the fingerprint computation. Stateless and safe for
// concurrent use.
type Engine struct{}

// New returns a fingerprint engine.
func New() *Engine {
	return &Engine{}
}

// Compute derives the hash triple for one capture. It never fails: empty or
// undecodable image bytes yield the degenerate digest of their raw bytes, a
// zero perceptual hash, and zero dimensions.
func (e *Engine) Compute(screenshot []byte, dom string) capture.Fingerprint {
	fp := capture.Fingerprint{
		ContentHash: hexDigest(screenshot),
		DOMHash:     hexDigest([]byte(dom)),
	}

	img, _, err := image.Decode(bytes.NewReader(screenshot))
	if err != nil {
		return fp
	}
	bounds := img.Bounds()
	fp.Width = bounds.Dx()
	fp.Height = bounds.Dy()
	fp.Perceptual = DHash(img)
	return fp
}

func hexDigest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
