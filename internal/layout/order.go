// Package layout orders detected form fields the way a person reads the page.
//
// Fields on the same visual line are read in script direction (rightmost
// first for right-to-left scripts such as Arabic, leftmost first otherwise),
// and lines are read top to bottom.
package layout

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/ironsheep/form-annotator-mcp/internal/detection"
)

// Direction is the reading direction of a document's script.
type Direction string

const (
	RTL Direction = "rtl"
	LTR Direction = "ltr"
)

// DefaultLineTolerance is the fraction of the summed heights of two fields
// within which their centres count as the same line.
const DefaultLineTolerance = 0.25

// ParseDirection accepts "rtl"/"ltr" and the language codes the labeling
// service uses ("ar", "arabic", "en", "english").
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "rtl", "ar", "ara", "arabic":
		return RTL, nil
	case "ltr", "en", "eng", "english":
		return LTR, nil
	default:
		return "", fmt.Errorf("unknown reading direction %q", s)
	}
}

// DirectionFromText guesses a direction by counting Arabic-script letters
// against Latin letters. ok is false when the text holds neither.
func DirectionFromText(text string) (dir Direction, ok bool) {
	var arabic, latin int
	for _, r := range text {
		switch {
		case unicode.Is(unicode.Arabic, r) && unicode.IsLetter(r):
			arabic++
		case unicode.Is(unicode.Latin, r):
			latin++
		}
	}
	switch {
	case arabic == 0 && latin == 0:
		return "", false
	case arabic > latin:
		return RTL, true
	default:
		return LTR, true
	}
}

// OrderedField is a merged field with its 1-based reading position.
type OrderedField struct {
	detection.MergedField
	Index int `json:"index"`
}

// SameLine reports whether two fields sit on the same visual line:
// |cyA - cyB| < (hA + hB) * tolerance.
func SameLine(a, b detection.MergedField, tolerance float64) bool {
	_, cya := a.Box.Center()
	_, cyb := b.Box.Center()
	return math.Abs(cya-cyb) < (a.Box.Height()+b.Box.Height())*tolerance
}

// Sort returns the fields in reading order, numbered from 1.
//
// Two fields on the same line compare by left edge, descending for RTL and
// ascending for LTR; otherwise the field whose centre is higher comes first.
// The same-line relation is not transitive (A~B and B~C do not imply A~C), so
// with chains of slightly staggered fields the comparator is not a strict
// weak ordering. The stable sort still terminates and yields a deterministic
// order for a given input order, which is what callers rely on.
func Sort(fields []detection.MergedField, dir Direction, tolerance float64) []OrderedField {
	sorted := make([]detection.MergedField, len(fields))
	copy(sorted, fields)

	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if SameLine(a, b, tolerance) {
			if dir == RTL {
				return a.Box.X1 > b.Box.X1
			}
			return a.Box.X1 < b.Box.X1
		}
		_, cya := a.Box.Center()
		_, cyb := b.Box.Center()
		return cya < cyb
	})

	out := make([]OrderedField, len(sorted))
	for i, f := range sorted {
		out[i] = OrderedField{MergedField: f, Index: i + 1}
	}
	return out
}
