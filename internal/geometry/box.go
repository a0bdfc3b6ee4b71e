// Package geometry provides the axis-aligned bounding box used by every stage
// of the form pipeline, together with the overlap metric that drives
// detection merging.
//
// # Coordinate System
//
// Coordinates follow image convention: (0,0) is the top-left corner, X grows
// rightward and Y grows downward. A Box stores its corners as float64 so that
// detector output (often fractional) round-trips without loss; conversion to
// pixel rectangles happens only at draw time.
package geometry

import (
	"encoding/json"
	"fmt"
	"image"
	"math"
)

// Box is an axis-aligned rectangle given by its top-left (X1,Y1) and
// bottom-right (X2,Y2) corners.
//
// Boxes built through FromXYWH or FromCorners are normalised so that X1 <= X2
// and Y1 <= Y2; width and height are therefore never negative.
type Box struct {
	X1 float64
	Y1 float64
	X2 float64
	Y2 float64
}

// FromCorners builds a normalised box from two opposite corners.
func FromCorners(x1, y1, x2, y2 float64) Box {
	if x2 < x1 {
		x1, x2 = x2, x1
	}
	if y2 < y1 {
		y1, y2 = y2, y1
	}
	return Box{X1: x1, Y1: y1, X2: x2, Y2: y2}
}

// FromXYWH builds a box from its top-left corner and size. Negative sizes are
// folded so the result stays normalised.
func FromXYWH(x, y, w, h float64) Box {
	return FromCorners(x, y, x+w, y+h)
}

// FromRect converts a pixel rectangle.
func FromRect(r image.Rectangle) Box {
	return FromCorners(float64(r.Min.X), float64(r.Min.Y), float64(r.Max.X), float64(r.Max.Y))
}

// Width returns X2 - X1.
func (b Box) Width() float64 { return b.X2 - b.X1 }

// Height returns Y2 - Y1.
func (b Box) Height() float64 { return b.Y2 - b.Y1 }

// Area returns the box area, zero for degenerate boxes.
func (b Box) Area() float64 {
	w, h := b.Width(), b.Height()
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// Center returns the midpoint of the box.
func (b Box) Center() (float64, float64) {
	return (b.X1 + b.X2) / 2, (b.Y1 + b.Y2) / 2
}

// XYWH returns the box as top-left corner plus size.
func (b Box) XYWH() (x, y, w, h float64) {
	return b.X1, b.Y1, b.Width(), b.Height()
}

// Inset shrinks the box by p on every side. When the box is too small to
// shrink that far it collapses onto its centre rather than inverting.
func (b Box) Inset(p float64) Box {
	cx, cy := b.Center()
	out := Box{X1: b.X1 + p, Y1: b.Y1 + p, X2: b.X2 - p, Y2: b.Y2 - p}
	if out.X1 > out.X2 {
		out.X1, out.X2 = cx, cx
	}
	if out.Y1 > out.Y2 {
		out.Y1, out.Y2 = cy, cy
	}
	return out
}

// Rect rounds the box to an integer pixel rectangle.
func (b Box) Rect() image.Rectangle {
	return image.Rect(
		int(math.Round(b.X1)), int(math.Round(b.Y1)),
		int(math.Round(b.X2)), int(math.Round(b.Y2)),
	)
}

// Clamp restricts the box to the given bounds.
func (b Box) Clamp(bounds image.Rectangle) Box {
	minX, minY := float64(bounds.Min.X), float64(bounds.Min.Y)
	maxX, maxY := float64(bounds.Max.X), float64(bounds.Max.Y)
	return Box{
		X1: math.Min(math.Max(b.X1, minX), maxX),
		Y1: math.Min(math.Max(b.Y1, minY), maxY),
		X2: math.Min(math.Max(b.X2, minX), maxX),
		Y2: math.Min(math.Max(b.Y2, minY), maxY),
	}
}

// String formats the box as "(x1,y1)-(x2,y2)".
func (b Box) String() string {
	return fmt.Sprintf("(%.1f,%.1f)-(%.1f,%.1f)", b.X1, b.Y1, b.X2, b.Y2)
}

// MarshalJSON encodes the box as [x1, y1, x2, y2], the corner form emitted by
// the upstream detectors.
func (b Box) MarshalJSON() ([]byte, error) {
	return json.Marshal([4]float64{b.X1, b.Y1, b.X2, b.Y2})
}

// UnmarshalJSON accepts the [x1, y1, x2, y2] corner form.
func (b *Box) UnmarshalJSON(data []byte) error {
	var c [4]float64
	if err := json.Unmarshal(data, &c); err != nil {
		return fmt.Errorf("box must be [x1, y1, x2, y2]: %w", err)
	}
	*b = FromCorners(c[0], c[1], c[2], c[3])
	return nil
}

// IoU returns the intersection-over-union of two boxes.
//
// The result lies in [0, 1] and is symmetric. Disjoint boxes, boxes that only
// touch along an edge, and boxes with zero area all yield 0 rather than a
// division by zero.
func IoU(a, b Box) float64 {
	ix1 := math.Max(a.X1, b.X1)
	iy1 := math.Max(a.Y1, b.Y1)
	ix2 := math.Min(a.X2, b.X2)
	iy2 := math.Min(a.Y2, b.Y2)

	iw := ix2 - ix1
	ih := iy2 - iy1
	if iw <= 0 || ih <= 0 {
		return 0
	}

	inter := iw * ih
	union := a.Area() + b.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}
