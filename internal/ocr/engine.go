package ocr

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"strings"

	"github.com/otiai10/gosseract/v2"
	"github.com/sirupsen/logrus"

	"github.com/ironsheep/form-annotator-mcp/internal/geometry"
	"github.com/ironsheep/form-annotator-mcp/internal/imaging"
	"github.com/ironsheep/form-annotator-mcp/internal/layout"
)

// DefaultLanguages is the Tesseract language set used when none is configured.
const DefaultLanguages = "ara+eng"

// DefaultRegionScale enlarges field crops before recognition; small print in
// a form cell reads far better at twice the size.
const DefaultRegionScale = 2.0

// Word is one recognised word.
type Word struct {
	Text string `json:"text"`

	// Confidence is Tesseract's score, 0 to 100.
	Confidence float64 `json:"confidence"`

	// Box is in the coordinates of the image that was recognised.
	Box geometry.Box `json:"box"`
}

// Result holds the words found in one image.
type Result struct {
	Words []Word `json:"words"`
}

// Text joins the words with single spaces.
func (r *Result) Text() string {
	parts := make([]string, len(r.Words))
	for i, w := range r.Words {
		parts[i] = w.Text
	}
	return strings.Join(parts, " ")
}

// MeanConfidence is the average word confidence (0-100), or 0 with no words.
func (r *Result) MeanConfidence() float64 {
	if len(r.Words) == 0 {
		return 0
	}
	sum := 0.0
	for _, w := range r.Words {
		sum += w.Confidence
	}
	return sum / float64(len(r.Words))
}

// Engine runs Tesseract over images and regions.
type Engine struct {
	Languages   []string
	RegionScale float64

	log logrus.FieldLogger
}

// NewEngine returns an Engine for a "+"-separated language list such as
// "ara+eng". An empty list selects DefaultLanguages.
func NewEngine(languages string, log logrus.FieldLogger) *Engine {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Engine{
		Languages:   ParseLanguages(languages),
		RegionScale: DefaultRegionScale,
		log:         log,
	}
}

// ParseLanguages splits a Tesseract language list on "+" or ",".
func ParseLanguages(langs string) []string {
	fields := strings.FieldsFunc(langs, func(r rune) bool {
		return r == '+' || r == ',' || r == ' '
	})
	if len(fields) == 0 {
		return strings.Split(DefaultLanguages, "+")
	}
	return fields
}

// Recognize reads every word in img.
func (e *Engine) Recognize(img image.Image) (*Result, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode image for OCR: %w", err)
	}
	return e.recognizePNG(buf.Bytes())
}

func (e *Engine) recognizePNG(data []byte) (*Result, error) {
	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(e.Languages...); err != nil {
		return nil, fmt.Errorf("failed to set language: %w", err)
	}
	if err := client.SetImageFromBytes(data); err != nil {
		return nil, fmt.Errorf("failed to set image: %w", err)
	}

	boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return nil, fmt.Errorf("OCR failed: %w", err)
	}
	return resultFromBoxes(boxes), nil
}

// resultFromBoxes keeps words with visible text and a real confidence;
// Tesseract reports -1 for layout-only entries.
func resultFromBoxes(boxes []gosseract.BoundingBox) *Result {
	words := make([]Word, 0, len(boxes))
	for _, b := range boxes {
		text := strings.TrimSpace(b.Word)
		if text == "" || b.Confidence < 0 {
			continue
		}
		words = append(words, Word{
			Text:       text,
			Confidence: b.Confidence,
			Box:        geometry.FromRect(b.Box),
		})
	}
	return &Result{Words: words}
}

// TextInRegion reads the text inside box and returns it with the mean word
// confidence scaled to 0-1. An empty region yields "" and 0.
func (e *Engine) TextInRegion(img image.Image, box geometry.Box) (string, float64, error) {
	data, err := imaging.CropPNG(img, box, e.RegionScale)
	if err != nil {
		return "", 0, err
	}
	res, err := e.recognizePNG(data)
	if err != nil {
		return "", 0, err
	}
	return res.Text(), res.MeanConfidence() / 100, nil
}

// ScoreWords returns the mean word confidence (0-100) and the word count.
func (e *Engine) ScoreWords(img image.Image) (float64, int, error) {
	res, err := e.Recognize(img)
	if err != nil {
		return 0, 0, err
	}
	return res.MeanConfidence(), len(res.Words), nil
}

// DetectDirection guesses the reading direction from the script of the
// recognised text. ok is false when OCR fails or finds no letters.
func (e *Engine) DetectDirection(img image.Image) (layout.Direction, bool) {
	res, err := e.Recognize(img)
	if err != nil {
		e.log.WithError(err).Debug("direction detection OCR failed")
		return "", false
	}
	return layout.DirectionFromText(res.Text())
}
