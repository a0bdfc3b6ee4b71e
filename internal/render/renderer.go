// Package render draws user-entered values back onto a form image.
//
// Text values are fitted into their field boxes, Arabic text is shaped and
// laid out right to left, checked checkboxes are filled, and an optional
// signature image is composited into its field. Rendering always works on a
// copy; the source image is never modified, and identical inputs produce
// identical pixels.
package render

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif"  // signature formats
	_ "image/jpeg" // signature formats
	"image/png"
	"math"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
	"github.com/lucasb-eyer/go-colorful"
	"github.com/sirupsen/logrus"

	"github.com/ironsheep/form-annotator-mcp/internal/fusion"
	"github.com/ironsheep/form-annotator-mcp/internal/geometry"
)

// Options tunes text placement.
type Options struct {
	// Padding is the inset, in pixels, between a box edge and its content.
	Padding float64

	// MinFontSize is the smallest size the fitter will try.
	MinFontSize float64

	// StartRatio sets the starting font size as a fraction of the average
	// text box height.
	StartRatio float64

	// SignatureScale is the fraction of the binding box dimension a
	// signature may occupy.
	SignatureScale float64

	// InkColor is a hex colour such as "#000000".
	InkColor string

	// FontPaths is the ordered TrueType fallback list.
	FontPaths []string
}

// DefaultOptions returns the standard renderer settings.
func DefaultOptions() Options {
	return Options{
		Padding:        4,
		MinFontSize:    8,
		StartRatio:     0.6,
		SignatureScale: 0.8,
		InkColor:       "#000000",
		FontPaths:      DefaultFontPaths,
	}
}

// defaultBoxHeight stands in for the average text box height when a form has
// no text boxes.
const defaultBoxHeight = 20

// Renderer draws field values onto images. It is safe for concurrent use.
type Renderer struct {
	opts  Options
	fonts *FontSet
	ink   color.Color
	log   logrus.FieldLogger
}

// New creates a renderer. An unparseable ink colour falls back to black.
func New(opts Options, log logrus.FieldLogger) *Renderer {
	if log == nil {
		log = logrus.StandardLogger()
	}
	var ink color.Color = color.Black
	if c, err := colorful.Hex(opts.InkColor); err == nil {
		ink = c
	} else if opts.InkColor != "" {
		log.WithField("ink_color", opts.InkColor).Warn("invalid ink colour, using black")
	}
	if opts.MinFontSize <= 0 {
		opts.MinFontSize = 1
	}
	if opts.SignatureScale <= 0 || opts.SignatureScale > 1 {
		opts.SignatureScale = 0.8
	}
	return &Renderer{
		opts:  opts,
		fonts: NewFontSet(opts.FontPaths, log),
		ink:   ink,
		log:   log,
	}
}

// Fonts exposes the renderer's font set.
func (r *Renderer) Fonts() *FontSet { return r.fonts }

// Render returns a new image with values drawn into their fields.
//
// Fields without a value are skipped. A signature, when given and decodable,
// is drawn into the field it names and that field takes no text. A signature
// that cannot be decoded is ignored. Render never fails.
func (r *Renderer) Render(src image.Image, fields []fusion.Field, values Values, sig *Signature) *image.RGBA {
	bounds := src.Bounds()
	dst := image.NewRGBA(bounds)
	draw.Draw(dst, bounds, src, bounds.Min, draw.Src)

	signed := ""
	if sig != nil && sig.BoxID != "" {
		if r.drawSignature(dst, fields, sig) {
			signed = sig.BoxID
		}
	}

	dc := gg.NewContextForRGBA(dst)
	start := r.startFontSize(fields)

	for _, f := range fields {
		if f.BoxID == signed {
			continue
		}
		v, ok := values[f.BoxID]
		if !ok {
			continue
		}
		switch f.Type {
		case fusion.Checkbox:
			if v.IsChecked() {
				r.fillCheckbox(dc, f.Box)
			}
		default:
			if text := strings.TrimSpace(v.Text); text != "" {
				r.drawText(dc, f.Box, text, start)
			}
		}
	}
	return dst
}

// RenderPNG renders and encodes the result as PNG.
func (r *Renderer) RenderPNG(src image.Image, fields []fusion.Field, values Values, sig *Signature) ([]byte, error) {
	return EncodePNG(r.Render(src, fields, values, sig))
}

// EncodePNG encodes img with fixed encoder settings so equal images give
// equal bytes.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.DefaultCompression}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode png: %w", err)
	}
	return buf.Bytes(), nil
}

func (r *Renderer) startFontSize(fields []fusion.Field) float64 {
	var sum float64
	var n int
	for _, f := range fields {
		if f.Type == fusion.Textbox {
			sum += f.Box.Height()
			n++
		}
	}
	avg := float64(defaultBoxHeight)
	if n > 0 {
		avg = sum / float64(n)
	}
	return math.Max(r.opts.MinFontSize, math.Floor(avg*r.opts.StartRatio))
}

func (r *Renderer) fillCheckbox(dc *gg.Context, box geometry.Box) {
	in := box.Inset(r.opts.Padding)
	if in.Width() <= 0 || in.Height() <= 0 {
		return
	}
	dc.SetColor(r.ink)
	dc.DrawRectangle(in.X1, in.Y1, in.Width(), in.Height())
	dc.Fill()
}

func (r *Renderer) drawSignature(dst *image.RGBA, fields []fusion.Field, sig *Signature) bool {
	var box geometry.Box
	found := false
	for _, f := range fields {
		if f.BoxID == sig.BoxID {
			box, found = f.Box, true
			break
		}
	}
	if !found {
		r.log.WithField("box_id", sig.BoxID).Warn("signature field not found")
		return false
	}

	img, _, err := image.Decode(bytes.NewReader(sig.Image))
	if err != nil {
		r.log.WithFields(logrus.Fields{"box_id": sig.BoxID, "error": err}).Warn("signature image could not be decoded")
		return false
	}

	sw, sh := float64(img.Bounds().Dx()), float64(img.Bounds().Dy())
	if sw == 0 || sh == 0 || box.Width() <= 0 || box.Height() <= 0 {
		return false
	}

	// The tighter of the two dimensions binds the scale.
	scale := math.Min(box.Width()*r.opts.SignatureScale/sw, box.Height()*r.opts.SignatureScale/sh)
	w := max(1, int(math.Round(sw*scale)))
	h := max(1, int(math.Round(sh*scale)))
	scaled := imaging.Resize(img, w, h, imaging.Lanczos)

	x := int(math.Round(box.X1 + (box.Width()-float64(w))/2))
	y := int(math.Round(box.Y1 + (box.Height()-float64(h))/2))
	draw.Draw(dst, image.Rect(x, y, x+w, y+h), scaled, image.Point{}, draw.Over)
	return true
}
