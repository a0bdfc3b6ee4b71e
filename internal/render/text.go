package render

import (
	"math"

	"github.com/fogleman/gg"

	"github.com/ironsheep/form-annotator-mcp/internal/geometry"
)

// placed is one draw unit positioned at its left edge.
type placed struct {
	text string
	x    float64
}

// textLayout is the result of fitting text into a box.
type textLayout struct {
	size   float64
	arabic bool
	units  []placed
	cy     float64
}

// layoutText fits text into box and positions it: Arabic text right-aligned
// and laid out right to left, anything else left-aligned. ok is false when
// nothing fits.
func (r *Renderer) layoutText(dc *gg.Context, box geometry.Box, text string, start float64) (textLayout, bool) {
	avail := box.Width() - 2*r.opts.Padding
	if avail <= 0 {
		return textLayout{}, false
	}

	arabic := IsArabic(text)
	size, shown := r.fitText(dc, text, arabic, start, avail)
	if shown == "" {
		return textLayout{}, false
	}

	r.useFace(dc, shown, arabic, size)
	_, cy := box.Center()
	lay := textLayout{size: size, arabic: arabic, cy: cy}

	if !arabic {
		lay.units = []placed{{text: shown, x: box.X1 + r.opts.Padding}}
		return lay, true
	}

	x := box.X2 - r.opts.Padding
	for _, u := range rtlUnits(Shape(shown)) {
		w, _ := dc.MeasureString(u.text)
		x -= w
		lay.units = append(lay.units, placed{text: u.text, x: x})
	}
	return lay, true
}

// drawText draws text vertically centred in box.
func (r *Renderer) drawText(dc *gg.Context, box geometry.Box, text string, start float64) {
	lay, ok := r.layoutText(dc, box, text, start)
	if !ok {
		r.log.WithField("box", box.String()).Debug("box too narrow for any text")
		return
	}
	dc.SetColor(r.ink)
	for _, u := range lay.units {
		dc.DrawStringAnchored(u.text, u.x, lay.cy, 0, 0.5)
	}
}

func (r *Renderer) useFace(dc *gg.Context, text string, arabic bool, size float64) {
	probe := text
	if arabic {
		probe = Shape(text)
	}
	dc.SetFontFace(r.fonts.Face(probe, size))
}

// textWidth measures text exactly as drawText lays it out.
func textWidth(dc *gg.Context, text string, arabic bool) float64 {
	if !arabic {
		w, _ := dc.MeasureString(text)
		return w
	}
	var total float64
	for _, u := range rtlUnits(Shape(text)) {
		w, _ := dc.MeasureString(u.text)
		total += w
	}
	return total
}

// fitText returns the largest whole font size in [MinFontSize, start] at
// which text fits within avail. When the text does not fit even at the
// minimum size, trailing characters are dropped until it does; the returned
// string is empty if not even one character fits.
func (r *Renderer) fitText(dc *gg.Context, text string, arabic bool, start, avail float64) (float64, string) {
	minSize := r.opts.MinFontSize
	start = math.Max(math.Floor(start), minSize)

	fits := func(s float64, t string) bool {
		r.useFace(dc, t, arabic, s)
		return textWidth(dc, t, arabic) <= avail
	}

	if fits(start, text) {
		return start, text
	}

	if !fits(minSize, text) {
		runes := []rune(text)
		for n := len(runes) - 1; n > 0; n-- {
			if cand := string(runes[:n]); fits(minSize, cand) {
				return minSize, cand
			}
		}
		return minSize, ""
	}

	// Invariant: lo fits, hi does not.
	lo, hi := minSize, start
	for hi-lo > 1 {
		mid := math.Floor((lo + hi) / 2)
		if fits(mid, text) {
			lo = mid
		} else {
			hi = mid
		}
	}
	return lo, text
}
