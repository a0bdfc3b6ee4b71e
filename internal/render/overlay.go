package render

import (
	"image"
	"image/color"
	"image/draw"
	"math"
	"strconv"

	"github.com/fogleman/gg"
	"github.com/lucasb-eyer/go-colorful"

	"github.com/ironsheep/form-annotator-mcp/internal/geometry"
)

// Overlay colours: translucent blue boxes with red numbers.
var (
	overlayFill   = withAlpha(colorful.Color{R: 0, G: 100.0 / 255, B: 1}, 100)
	overlayNumber = colorful.Color{R: 1, G: 0, B: 0}
)

func withAlpha(c colorful.Color, a uint8) color.NRGBA {
	r, g, b := c.RGB255()
	return color.NRGBA{R: r, G: g, B: b, A: a}
}

// Overlay draws every box as a translucent blue rectangle numbered 1..n in
// the given order. The labeling service refers to fields by these numbers.
func (r *Renderer) Overlay(src image.Image, boxes []geometry.Box) *image.RGBA {
	bounds := src.Bounds()
	dst := image.NewRGBA(bounds)
	draw.Draw(dst, bounds, src, bounds.Min, draw.Src)

	dc := gg.NewContextForRGBA(dst)
	for i, b := range boxes {
		dc.SetColor(overlayFill)
		dc.DrawRectangle(b.X1, b.Y1, b.Width(), b.Height())
		dc.Fill()

		label := strconv.Itoa(i + 1)
		size := math.Max(15, math.Floor(b.Height()*0.7))
		dc.SetFontFace(r.fonts.Face(label, size))
		dc.SetColor(overlayNumber)
		cx, cy := b.Center()
		dc.DrawStringAnchored(label, cx, cy, 0.5, 0.5)
	}
	return dst
}
