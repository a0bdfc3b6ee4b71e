package detection

import (
	"image"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/ironsheep/form-annotator-mcp/internal/geometry"
)

// DefaultFillConfidence is the OCR confidence (0-1) at or above which a region
// is treated as already filled in.
const DefaultFillConfidence = 0.6

// RegionReader recognises text inside one region of an image. Confidence is
// on a 0-1 scale.
type RegionReader interface {
	TextInRegion(img image.Image, box geometry.Box) (text string, confidence float64, err error)
}

// FillFilter drops detections that cover pre-printed or already written
// text, leaving only the empty fields a user still has to fill.
type FillFilter struct {
	Reader        RegionReader
	MinConfidence float64
	Log           logrus.FieldLogger
}

// Apply returns the detections whose region does not contain recognised text
// at or above MinConfidence. A region the reader fails on is kept, so an OCR
// outage never hides fields.
func (f *FillFilter) Apply(img image.Image, dets []RawDetection) []RawDetection {
	if f == nil || f.Reader == nil {
		return dets
	}
	log := f.Log
	if log == nil {
		log = logrus.StandardLogger()
	}

	kept := make([]RawDetection, 0, len(dets))
	for _, d := range dets {
		text, conf, err := f.Reader.TextInRegion(img, d.Box)
		if err != nil {
			log.WithFields(logrus.Fields{"box": d.Box.String(), "error": err}).
				Debug("region OCR failed, keeping detection")
			kept = append(kept, d)
			continue
		}
		if strings.TrimSpace(text) != "" && conf >= f.MinConfidence {
			log.WithFields(logrus.Fields{
				"box":        d.Box.String(),
				"class":      d.Class,
				"confidence": conf,
			}).Debug("dropping filled region")
			continue
		}
		kept = append(kept, d)
	}
	return kept
}
