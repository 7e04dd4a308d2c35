// Package codec derives encoded image renditions (lossless, compressed,
// thumbnail) from raw screenshot bytes.
package codec

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"

	"golang.org/x/image/draw"
)

// Supported encode formats.
const (
	FormatPNG  = "png"
	FormatJPEG = "jpeg"
)

// Fit modes for Resize.
const (
	// FitContain scales to fit inside the box, preserving aspect ratio.
	FitContain = "contain"
	// FitStretch scales to exactly the requested box.
	FitStretch = "stretch"
)

// Codec implements capture.ImageCodec on the standard image stack.
type Codec struct{}

// New returns an image codec.
func New() *Codec {
	return &Codec{}
}

// Encode re-encodes the raw image in the requested format. Quality applies to
// lossy formats only; values outside [1,100] use the jpeg default.
func (c *Codec) Encode(raw []byte, format string, quality int) ([]byte, error) {
	img, err := decode(raw)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	switch format {
	case FormatPNG:
		if err := png.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("encode png: %w", err)
		}
	case FormatJPEG:
		if quality < 1 || quality > 100 {
			quality = jpeg.DefaultQuality
		}
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return nil, fmt.Errorf("encode jpeg: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported format %q", format)
	}
	return buf.Bytes(), nil
}

// Resize scales the raw image into a width x height box and returns it as PNG.
func (c *Codec) Resize(raw []byte, width, height int, fit string) ([]byte, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid target size %dx%d", width, height)
	}
	img, err := decode(raw)
	if err != nil {
		return nil, err
	}

	targetW, targetH := width, height
	if fit == FitContain {
		targetW, targetH = containBox(img.Bounds().Dx(), img.Bounds().Dy(), width, height)
	}

	dst := image.NewRGBA(image.Rect(0, 0, targetW, targetH))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, fmt.Errorf("encode resized png: %w", err)
	}
	return buf.Bytes(), nil
}

func decode(raw []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

func containBox(srcW, srcH, maxW, maxH int) (int, int) {
	if srcW <= 0 || srcH <= 0 {
		return maxW, maxH
	}
	w := maxW
	h := srcH * maxW / srcW
	if h > maxH {
		h = maxH
		w = srcW * maxH / srcH
	}
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return w, h
}
