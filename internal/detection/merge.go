package detection

import (
	"sort"
	"strings"

	"github.com/tidwall/rtree"

	"github.com/ironsheep/form-annotator-mcp/internal/geometry"
)

// DefaultIoUThreshold is the overlap above which a lower-ranked detection is
// suppressed by Merge.
const DefaultIoUThreshold = 0.4

// RawDetection is one candidate field reported by a detector.
type RawDetection struct {
	// Box is the detected region in source-image pixels.
	Box geometry.Box `json:"box"`

	// Confidence is the detector score in [0, 1].
	Confidence float64 `json:"confidence"`

	// Class is the detector label, e.g. "checkbox", "text_box", "line".
	Class string `json:"class"`
}

// MergedField is a detection that survived Merge.
type MergedField struct {
	Box   geometry.Box `json:"box"`
	Class string       `json:"class"`
}

// IsTextLike reports whether a detector class denotes a fillable text area.
// The test is a case-insensitive substring match on "text" or "line".
func IsTextLike(class string) bool {
	c := strings.ToLower(class)
	return strings.Contains(c, "text") || strings.Contains(c, "line")
}

func priority(class string) int {
	if IsTextLike(class) {
		return 1
	}
	return 0
}

// Merge deduplicates overlapping detections with priority-aware non-maximum
// suppression.
//
// Detections are ranked by (priority, confidence), both descending, where
// priority is 1 for text-like classes and 0 otherwise; equal keys keep their
// input order. Walking the ranking, each detection not yet suppressed is
// accepted and every remaining detection whose IoU with it is strictly
// greater than iouThreshold is suppressed.
//
// The result is in acceptance order. No two returned fields overlap by more
// than iouThreshold, so merging the result again returns it unchanged.
// An empty input yields an empty, non-nil slice.
func Merge(dets []RawDetection, iouThreshold float64) []MergedField {
	out := make([]MergedField, 0, len(dets))
	if len(dets) == 0 {
		return out
	}

	order := make([]int, len(dets))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		da, db := dets[order[a]], dets[order[b]]
		pa, pb := priority(da.Class), priority(db.Class)
		if pa != pb {
			return pa > pb
		}
		return da.Confidence > db.Confidence
	})

	// The index only narrows which pairs need an IoU test; the decision order
	// is still the ranking above.
	var index rtree.RTreeG[int]
	for i, d := range dets {
		index.Insert([2]float64{d.Box.X1, d.Box.Y1}, [2]float64{d.Box.X2, d.Box.Y2}, i)
	}

	// decided marks detections that are either accepted or suppressed.
	decided := make([]bool, len(dets))
	for _, i := range order {
		if decided[i] {
			continue
		}
		decided[i] = true
		keep := dets[i]
		out = append(out, MergedField{Box: keep.Box, Class: keep.Class})

		index.Search(
			[2]float64{keep.Box.X1, keep.Box.Y1},
			[2]float64{keep.Box.X2, keep.Box.Y2},
			func(_, _ [2]float64, j int) bool {
				if !decided[j] && geometry.IoU(keep.Box, dets[j].Box) > iouThreshold {
					decided[j] = true
				}
				return true
			},
		)
	}

	return out
}

// AsDetections converts merged fields back into detections with the given
// confidence, so a merged set can be fed through Merge again.
func AsDetections(fields []MergedField, confidence float64) []RawDetection {
	dets := make([]RawDetection, len(fields))
	for i, f := range fields {
		dets[i] = RawDetection{Box: f.Box, Confidence: confidence, Class: f.Class}
	}
	return dets
}
