package detection

import (
	"image"
	"math"
	"sort"

	"github.com/ironsheep/form-annotator-mcp/internal/geometry"
)

// Classes emitted by HeuristicDetector.
const (
	ClassCheckbox = "checkbox"
	ClassTextbox  = "textbox"
	ClassLine     = "line"
)

// HeuristicDetector finds empty form fields without a trained model.
//
// Dark pixels are grouped into 8-connected components. Thin, long components
// are underline rules; components whose pixels trace all four sides of their
// bounding box are outlined boxes, reported as checkboxes when small and
// roughly square and as text boxes when wide.
type HeuristicDetector struct {
	// DarkThreshold is the luminance (0-255) below which a pixel is ink.
	DarkThreshold uint8

	// MinSide is the smallest width and height an outlined box may have.
	MinSide int

	// CheckboxMaxSide bounds the longer side of a checkbox.
	CheckboxMaxSide int

	// Tolerance is the minimum fraction (0-1) of each side that must be inked
	// for a component to count as a box outline.
	Tolerance float64

	// MinLineLength is the shortest underline rule reported.
	MinLineLength int

	// MaxLineThickness is the thickest component still treated as a rule.
	MaxLineThickness int

	// LineHeadroom is how far above a rule the writing area extends.
	LineHeadroom int
}

// NewHeuristicDetector returns a detector tuned for 150-300 DPI scans.
func NewHeuristicDetector() *HeuristicDetector {
	return &HeuristicDetector{
		DarkThreshold:    128,
		MinSide:          10,
		CheckboxMaxSide:  60,
		Tolerance:        0.85,
		MinLineLength:    60,
		MaxLineThickness: 4,
		LineHeadroom:     30,
	}
}

// point is a pixel position relative to the image origin.
type point struct {
	X, Y int
}

// Detect returns candidate fields in top-to-bottom, left-to-right order.
func (h *HeuristicDetector) Detect(img image.Image) []RawDetection {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	if width == 0 || height == 0 {
		return []RawDetection{}
	}

	ink := inkMask(img, h.DarkThreshold)
	components := findComponents(ink, width, height)
	pageArea := float64(width * height)

	dets := make([]RawDetection, 0)
	for _, comp := range components {
		minX, minY, maxX, maxY := componentBounds(comp, width, height)
		w := maxX - minX + 1
		ht := maxY - minY + 1

		box := geometry.FromCorners(
			float64(minX+bounds.Min.X), float64(minY+bounds.Min.Y),
			float64(maxX+1+bounds.Min.X), float64(maxY+1+bounds.Min.Y),
		)

		if ht <= h.MaxLineThickness && w >= h.MinLineLength {
			top := math.Max(box.Y2-float64(h.LineHeadroom), float64(bounds.Min.Y))
			dets = append(dets, RawDetection{
				Box:        geometry.FromCorners(box.X1, top, box.X2, box.Y2),
				Confidence: math.Min(1, float64(len(comp))/float64(w*ht)),
				Class:      ClassLine,
			})
			continue
		}

		if w < h.MinSide || ht < h.MinSide || float64(w*ht) > pageArea/2 {
			continue
		}

		coverage := outlineCoverage(ink, minX, minY, maxX, maxY)
		if coverage < h.Tolerance {
			continue
		}

		aspect := float64(w) / float64(ht)
		switch {
		case aspect >= 0.75 && aspect <= 1.33 && max(w, ht) <= h.CheckboxMaxSide:
			dets = append(dets, RawDetection{Box: box, Confidence: coverage, Class: ClassCheckbox})
		case aspect >= 2:
			dets = append(dets, RawDetection{Box: box, Confidence: coverage, Class: ClassTextbox})
		}
	}

	sort.SliceStable(dets, func(i, j int) bool {
		if dets[i].Box.Y1 != dets[j].Box.Y1 {
			return dets[i].Box.Y1 < dets[j].Box.Y1
		}
		return dets[i].Box.X1 < dets[j].Box.X1
	})
	return dets
}

// inkMask marks pixels darker than threshold.
func inkMask(img image.Image, threshold uint8) [][]bool {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	mask := make([][]bool, height)
	for y := 0; y < height; y++ {
		mask[y] = make([]bool, width)
		for x := 0; x < width; x++ {
			mask[y][x] = grayValue(img, x+bounds.Min.X, y+bounds.Min.Y) < threshold
		}
	}
	return mask
}

// findComponents groups marked pixels into 8-connected components, dropping
// specks under 10 pixels.
func findComponents(mask [][]bool, width, height int) [][]point {
	visited := make([][]bool, height)
	for y := 0; y < height; y++ {
		visited[y] = make([]bool, width)
	}

	components := make([][]point, 0)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if mask[y][x] && !visited[y][x] {
				comp := make([]point, 0)
				floodFill(mask, visited, x, y, width, height, &comp)
				if len(comp) >= 10 {
					components = append(components, comp)
				}
			}
		}
	}
	return components
}

// floodFill collects the component containing (startX, startY). It uses an
// explicit stack so large components cannot overflow the goroutine stack.
func floodFill(mask, visited [][]bool, startX, startY, width, height int, comp *[]point) {
	stack := []point{{X: startX, Y: startY}}

	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if p.X < 0 || p.X >= width || p.Y < 0 || p.Y >= height {
			continue
		}
		if visited[p.Y][p.X] || !mask[p.Y][p.X] {
			continue
		}

		visited[p.Y][p.X] = true
		*comp = append(*comp, p)

		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				if dx == 0 && dy == 0 {
					continue
				}
				stack = append(stack, point{X: p.X + dx, Y: p.Y + dy})
			}
		}
	}
}

func componentBounds(comp []point, width, height int) (minX, minY, maxX, maxY int) {
	minX, minY = width, height
	for _, p := range comp {
		minX = min(minX, p.X)
		minY = min(minY, p.Y)
		maxX = max(maxX, p.X)
		maxY = max(maxY, p.Y)
	}
	return minX, minY, maxX, maxY
}

// outlineCoverage returns the smallest fraction, over the four sides of the
// rectangle, of positions that have ink within a 3-pixel band of that side.
func outlineCoverage(mask [][]bool, minX, minY, maxX, maxY int) float64 {
	const band = 3

	inked := func(x, y int) bool {
		return y >= 0 && y < len(mask) && x >= 0 && x < len(mask[y]) && mask[y][x]
	}

	side := func(n int, at func(i, d int) (int, int)) float64 {
		hit := 0
		for i := 0; i < n; i++ {
			for d := 0; d < band; d++ {
				if inked(at(i, d)) {
					hit++
					break
				}
			}
		}
		return float64(hit) / float64(n)
	}

	w := maxX - minX + 1
	h := maxY - minY + 1
	top := side(w, func(i, d int) (int, int) { return minX + i, minY + d })
	bottom := side(w, func(i, d int) (int, int) { return minX + i, maxY - d })
	left := side(h, func(i, d int) (int, int) { return minX + d, minY + i })
	right := side(h, func(i, d int) (int, int) { return maxX - d, minY + i })

	return math.Min(math.Min(top, bottom), math.Min(left, right))
}

// grayValue converts a pixel to 8-bit luminance with ITU-R BT.601 weights.
func grayValue(img image.Image, x, y int) uint8 {
	r, g, b, _ := img.At(x, y).RGBA()
	return uint8(float64(r>>8)*0.299 + float64(g>>8)*0.587 + float64(b>>8)*0.114)
}
