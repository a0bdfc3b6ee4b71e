// Package orientation picks the upright rotation of a scanned form.
//
// Each of the four quarter-turn rotations is scored twice. The structural
// score compares the variance of the edge map's row profile with that of its
// column profile: printed lines make the row profile spiky and the column
// profile flat, so upright and upside-down pages score high and sideways
// pages score low. The OCR score separates upright from upside down, since
// Tesseract reads upright text with more words and higher confidence.
//
//	composite = (meanWordConfidence + 0.1 × words) + 0.5 × rowVar/(colVar + ε)
//
// Ties go to 0°, then to any angle over 180°. A 180° winner must beat 0° by
// FlipMargin or the page is left as it is; upside-down pages of sparse forms
// often score deceptively well.
package orientation

import (
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/anthonynsimon/bild/adjust"
	"github.com/anthonynsimon/bild/effect"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"github.com/ironsheep/form-annotator-mcp/internal/imaging"
)

const (
	// DefaultFlipMargin is how far 180° must outscore 0° to be chosen.
	DefaultFlipMargin = 2.0

	// DefaultMaxDimension bounds the longer side of the selected image.
	DefaultMaxDimension = 2000

	structuralWeight = 0.5
	wordCountWeight  = 0.1
	epsilon          = 1e-6

	ocrMaxDimension = 1000
	ocrContrast     = 0.4 // bild adjust.Contrast change, -1 to 1

	edgeLow  = 50
	edgeHigh = 150
)

// Angles are the candidate counter-clockwise rotations, in scoring order.
var Angles = [4]int{0, 90, 180, 270}

var errTooSmall = errors.New("image too small for edge analysis")

// WordScorer runs a light OCR pass and reports the mean word confidence
// (0-100) and the number of words read.
type WordScorer interface {
	ScoreWords(img image.Image) (meanConfidence float64, words int, err error)
}

// Options tunes a Selector.
type Options struct {
	FlipMargin   float64
	MaxDimension int

	// Parallel scores the four candidates concurrently.
	Parallel bool
}

// DefaultOptions returns the standard tuning.
func DefaultOptions() Options {
	return Options{
		FlipMargin:   DefaultFlipMargin,
		MaxDimension: DefaultMaxDimension,
	}
}

// Score is the breakdown for one candidate rotation. A candidate whose
// scoring failed has every score at 0 and Err set.
type Score struct {
	Angle      int     `json:"angle"`
	Structural float64 `json:"structural"`
	OCR        float64 `json:"ocr"`
	Composite  float64 `json:"composite"`
	Err        string  `json:"error,omitempty"`
}

// Result is the selected orientation.
type Result struct {
	// Image is the chosen rotation resized to fit MaxDimension, or the input
	// unchanged when Fallback is set.
	Image image.Image `json:"-"`

	// Angle is the counter-clockwise rotation applied, in degrees.
	Angle  int     `json:"angle"`
	Scores []Score `json:"scores"`

	// Fallback reports that every candidate failed to score.
	Fallback bool `json:"fallback"`
}

// Selector chooses the upright orientation of a page.
type Selector struct {
	opts   Options
	scorer WordScorer
	log    logrus.FieldLogger
}

// NewSelector returns a Selector. A nil scorer disables the OCR term, leaving
// 0° and 180° to the tie rules.
func NewSelector(scorer WordScorer, opts Options, log logrus.FieldLogger) *Selector {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Selector{opts: opts, scorer: scorer, log: log}
}

// Select scores the four rotations of img and returns the best one.
func (s *Selector) Select(img image.Image) Result {
	var candidates [4]image.Image
	scores := make([]Score, len(Angles))

	score := func(i int) {
		candidates[i] = imaging.Rotate(img, Angles[i])
		scores[i] = s.scoreCandidate(candidates[i], Angles[i])
	}

	if s.opts.Parallel {
		var g errgroup.Group
		for i := range Angles {
			i := i
			g.Go(func() error {
				score(i)
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for i := range Angles {
			score(i)
		}
	}

	failed := 0
	for _, sc := range scores {
		if sc.Err != "" {
			failed++
		}
	}
	if failed == len(scores) {
		s.log.Warn("every orientation candidate failed to score; keeping original")
		return Result{Image: img, Angle: 0, Scores: scores, Fallback: true}
	}

	best := pick(scores, s.opts.FlipMargin)
	s.log.WithFields(logrus.Fields{
		"angle":     scores[best].Angle,
		"composite": scores[best].Composite,
	}).Debug("orientation selected")

	return Result{
		Image:  imaging.FitWithin(candidates[best], s.opts.MaxDimension),
		Angle:  scores[best].Angle,
		Scores: scores,
	}
}

// pick returns the index of the winning score.
func pick(scores []Score, flipMargin float64) int {
	best := 0
	for i := 1; i < len(scores); i++ {
		a, b := scores[i], scores[best]
		if a.Composite > b.Composite || (a.Composite == b.Composite && tieRank(a.Angle) < tieRank(b.Angle)) {
			best = i
		}
	}

	if scores[best].Angle == 180 {
		for i, sc := range scores {
			if sc.Angle == 0 && scores[best].Composite-sc.Composite < flipMargin {
				return i
			}
		}
	}
	return best
}

// tieRank orders angles for equal composites: 0° first, 180° last.
func tieRank(angle int) int {
	switch angle {
	case 0:
		return 0
	case 180:
		return 2
	default:
		return 1
	}
}

func (s *Selector) scoreCandidate(img image.Image, angle int) (sc Score) {
	sc.Angle = angle
	log := s.log.WithField("angle", angle)

	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).Warn("orientation scoring panicked")
			sc = Score{Angle: angle, Err: fmt.Sprint(r)}
		}
	}()

	structural, err := StructuralScore(img)
	if err != nil {
		log.WithError(err).Warn("structural scoring failed")
		return Score{Angle: angle, Err: err.Error()}
	}

	ocr := 0.0
	if s.scorer != nil {
		mean, words, err := s.scorer.ScoreWords(prepareForOCR(img))
		if err != nil {
			log.WithError(err).Warn("OCR scoring failed")
			return Score{Angle: angle, Err: err.Error()}
		}
		ocr = mean + wordCountWeight*float64(words)
	}

	sc.Structural = structural
	sc.OCR = ocr
	sc.Composite = ocr + structuralWeight*structural
	return sc
}

// StructuralScore is rowVar/(colVar + ε) over the edge-pixel projection
// profiles of img.
func StructuralScore(img image.Image) (float64, error) {
	b := img.Bounds()
	if b.Dx() < 3 || b.Dy() < 3 {
		return 0, errTooSmall
	}

	edges := imaging.EdgeMap(img, edgeLow, edgeHigh)
	w, h := edges.Bounds().Dx(), edges.Bounds().Dy()
	rows := make([]float64, h)
	cols := make([]float64, w)
	for y := 0; y < h; y++ {
		line := edges.Pix[y*edges.Stride : y*edges.Stride+w]
		for x, v := range line {
			if v != 0 {
				rows[y]++
				cols[x]++
			}
		}
	}

	score := stat.Variance(rows, nil) / (stat.Variance(cols, nil) + epsilon)
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return 0, fmt.Errorf("degenerate projection profile")
	}
	return score, nil
}

// prepareForOCR makes the small, high-contrast grayscale copy the word
// scorer reads.
func prepareForOCR(img image.Image) image.Image {
	small := imaging.FitWithin(img, ocrMaxDimension)
	return adjust.Contrast(effect.Grayscale(small), ocrContrast)
}
