package fingerprint

import (
	"image"
	"math/bits"

	"golang.org/x/image/draw"
)

// dHash grid: 9 columns by 8 rows of grayscale samples give 64 horizontal
// gradient bits, tolerant of anti-aliasing and minor rendering jitter.
const (
	dhashCols = 9
	dhashRows = 8
)

// DHash computes a 64-bit difference hash of the image. Deterministic for
// identical pixel data regardless of source encoding.
func DHash(img image.Image) uint64 {
	small := image.NewGray(image.Rect(0, 0, dhashCols, dhashRows))
	draw.ApproxBiLinear.Scale(small, small.Bounds(), img, img.Bounds(), draw.Src, nil)

	var hash uint64
	for row := 0; row < dhashRows; row++ {
		for col := 0; col < dhashCols-1; col++ {
			left := small.GrayAt(col, row).Y
			right := small.GrayAt(col+1, row).Y
			hash <<= 1
			if left > right {
				hash |= 1
			}
		}
	}
	return hash
}

// Distance returns the normalized Hamming distance between two dHashes,
// in [0,1]: 0 for identical hashes, 1 when every gradient bit disagrees.
func Distance(a, b uint64) float64 {
	return float64(bits.OnesCount64(a^b)) / 64.0
}
