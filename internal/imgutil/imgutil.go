// Package imgutil provides the pure image helpers the canvas and preview
// layers share: aspect-ratio mapping, content-emptiness detection, and
// resampling. All resizing goes through a single high-quality filter so
// staged previews and context snapshots degrade the same way.
package imgutil

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	"image/png"

	xdraw "golang.org/x/image/draw"
)

// MaxContextDimension bounds the width/height of any image sent to the model
// as context. Larger snapshots are downscaled before the request is built.
const MaxContextDimension = 1536

// whiteFloor is the per-channel minimum for a pixel to still count as white.
// The tolerance absorbs compression artifacts and slightly off-white paper.
const whiteFloor = 250

// supportedRatios maps the provider's supported aspect-ratio labels to their
// numeric value. Arbitrary canvas dimensions are snapped to the nearest entry.
var supportedRatios = []struct {
	Label string
	Value float64
}{
	{"1:1", 1.0},
	{"2:3", 0.666},
	{"3:2", 1.500},
	{"3:4", 0.750},
	{"4:3", 1.333},
	{"4:5", 0.800},
	{"5:4", 1.250},
	{"9:16", 0.5625},
	{"16:9", 1.777},
	{"21:9", 2.333},
}

// NearestAspectRatio maps canvas dimensions to the closest supported
// aspect-ratio label. Ties break toward the smallest absolute difference in
// table order; degenerate dimensions map to "1:1".
func NearestAspectRatio(width, height int) string {
	if width <= 0 || height <= 0 {
		return "1:1"
	}
	target := float64(width) / float64(height)
	best := supportedRatios[0].Label
	bestDiff := -1.0
	for _, r := range supportedRatios {
		diff := r.Value - target
		if diff < 0 {
			diff = -diff
		}
		if bestDiff < 0 || diff < bestDiff {
			best = r.Label
			bestDiff = diff
		}
	}
	return best
}

// IsEmpty reports whether an image is effectively blank: fully transparent, or
// solid white within tolerance. Blank content switches the session into
// text-to-image mode.
func IsEmpty(img image.Image) bool {
	if img == nil {
		return true
	}
	bounds := img.Bounds()
	if bounds.Empty() {
		return true
	}

	maxAlpha := uint8(0)
	minR, minG, minB := uint8(255), uint8(255), uint8(255)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			if c.A > maxAlpha {
				maxAlpha = c.A
			}
			if c.R < minR {
				minR = c.R
			}
			if c.G < minG {
				minG = c.G
			}
			if c.B < minB {
				minB = c.B
			}
		}
	}

	if maxAlpha == 0 {
		return true
	}
	return minR >= whiteFloor && minG >= whiteFloor && minB >= whiteFloor
}

// DownscaleToFit scales an image down so both dimensions fit maxDim while
// preserving aspect ratio. Images already within bounds are returned
// unchanged; this never upscales.
func DownscaleToFit(img image.Image, maxDim int) image.Image {
	if img == nil || maxDim <= 0 {
		return img
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= maxDim && h <= maxDim {
		return img
	}
	ratio := float64(maxDim) / float64(w)
	if rh := float64(maxDim) / float64(h); rh < ratio {
		ratio = rh
	}
	return ResizeExact(img, int(float64(w)*ratio), int(float64(h)*ratio))
}

// ResizeExact resamples an image to exactly width x height using the
// Catmull-Rom filter.
func ResizeExact(img image.Image, width, height int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), xdraw.Over, nil)
	return dst
}

// ToRGBA normalizes any image to RGBA at origin (0,0).
func ToRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Bounds().Min == (image.Point{}) {
		return rgba
	}
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	xdraw.Copy(dst, image.Point{}, img, b, xdraw.Src, nil)
	return dst
}

// EncodePNG serializes an image to PNG bytes.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("imgutil: encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeImage parses an encoded image payload (PNG, JPEG, or anything the
// registered decoders understand).
func DecodeImage(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("imgutil: decode image: %w", err)
	}
	return img, nil
}
