package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/png"

	"github.com/disintegration/imaging"

	"github.com/ironsheep/form-annotator-mcp/internal/geometry"
)

// Crop cuts box out of img, clamped to the image bounds. The result has its
// origin at (0,0).
func Crop(img image.Image, box geometry.Box) (image.Image, error) {
	rect := box.Clamp(img.Bounds()).Rect()
	if rect.Empty() {
		return nil, fmt.Errorf("crop region %v lies outside image bounds %v", box, img.Bounds())
	}
	return imaging.Crop(img, rect), nil
}

// CropPNG crops box and encodes the region as PNG, the form OCR engines take
// region images in. A positive scale enlarges (or shrinks) the region with
// Lanczos resampling first; small print OCRs better when upscaled.
func CropPNG(img image.Image, box geometry.Box, scale float64) ([]byte, error) {
	region, err := Crop(img, box)
	if err != nil {
		return nil, err
	}
	if scale > 0 && scale != 1 {
		w := max(1, int(float64(region.Bounds().Dx())*scale))
		h := max(1, int(float64(region.Bounds().Dy())*scale))
		region = imaging.Resize(region, w, h, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, region); err != nil {
		return nil, fmt.Errorf("failed to encode cropped region: %w", err)
	}
	return buf.Bytes(), nil
}

// FitWithin scales img down, preserving aspect ratio, so neither side
// exceeds maxDim. Images already within the limit, or a non-positive maxDim,
// return img unchanged.
func FitWithin(img image.Image, maxDim int) image.Image {
	b := img.Bounds()
	if maxDim <= 0 || (b.Dx() <= maxDim && b.Dy() <= maxDim) {
		return img
	}
	return imaging.Fit(img, maxDim, maxDim, imaging.Lanczos)
}

// Rotate turns img counter-clockwise by a multiple of 90 degrees. Any other
// angle returns img unchanged.
func Rotate(img image.Image, degrees int) image.Image {
	switch ((degrees % 360) + 360) % 360 {
	case 90:
		return imaging.Rotate90(img)
	case 180:
		return imaging.Rotate180(img)
	case 270:
		return imaging.Rotate270(img)
	default:
		return img
	}
}
