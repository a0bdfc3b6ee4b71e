// Package pipeline runs a scanned form through orientation, field detection,
// reading-order sorting, labeling and fusion, and renders filled copies.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ironsheep/form-annotator-mcp/internal/detection"
	"github.com/ironsheep/form-annotator-mcp/internal/fusion"
	"github.com/ironsheep/form-annotator-mcp/internal/geometry"
	"github.com/ironsheep/form-annotator-mcp/internal/labeling"
	"github.com/ironsheep/form-annotator-mcp/internal/layout"
	"github.com/ironsheep/form-annotator-mcp/internal/orientation"
	"github.com/ironsheep/form-annotator-mcp/internal/render"
)

// ErrLabeling wraps failures of the labeling service.
var ErrLabeling = errors.New("labeling failed")

// DirectionDetector guesses a page's reading direction. ok is false when it
// cannot tell.
type DirectionDetector interface {
	DetectDirection(img image.Image) (dir layout.Direction, ok bool)
}

// Options tunes an Analyzer.
type Options struct {
	IoUThreshold     float64
	LineTolerance    float64
	DefaultDirection layout.Direction
	LabelTimeout     time.Duration
}

// DefaultOptions returns the standard tuning.
func DefaultOptions() Options {
	return Options{
		IoUThreshold:     detection.DefaultIoUThreshold,
		LineTolerance:    layout.DefaultLineTolerance,
		DefaultDirection: layout.RTL,
		LabelTimeout:     2 * time.Minute,
	}
}

// Deps are the stages an Analyzer drives. Renderer is required; every other
// stage may be nil and is then skipped.
type Deps struct {
	Selector   *orientation.Selector
	Filter     *detection.FillFilter
	Detector   *detection.HeuristicDetector
	Directions DirectionDetector
	Labeler    labeling.Labeler
	Renderer   *render.Renderer
}

// Analyzer turns page images into canonical field lists.
type Analyzer struct {
	deps Deps
	opts Options
	log  logrus.FieldLogger
}

// NewAnalyzer wires the stages together.
func NewAnalyzer(deps Deps, opts Options, log logrus.FieldLogger) *Analyzer {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if deps.Renderer == nil {
		deps.Renderer = render.New(render.DefaultOptions(), log)
	}
	if opts.DefaultDirection == "" {
		opts.DefaultDirection = layout.RTL
	}
	return &Analyzer{deps: deps, opts: opts, log: log}
}

// Renderer returns the renderer used for overlays and fills.
func (a *Analyzer) Renderer() *render.Renderer { return a.deps.Renderer }

// AnalyzeOptions are per-call inputs.
type AnalyzeOptions struct {
	// Detections from an external detector, in the coordinates of the
	// oriented page. When empty the built-in heuristic detector runs.
	Detections []detection.RawDetection

	// Direction overrides direction detection.
	Direction layout.Direction

	// SkipOrientation treats the input as already upright. Set it when
	// Detections were computed on the input image as given.
	SkipOrientation bool
}

// Analysis is the outcome of analysing one page.
type Analysis struct {
	Image     image.Image
	Angle     int
	Direction layout.Direction

	// Ordered lists every detected field in reading order; Index matches the
	// number drawn on Overlay.
	Ordered []layout.OrderedField
	Overlay []byte

	// Labeled reports whether a labeler ran. Without one Fields is empty
	// until labels are supplied through Label.
	Labeled     bool
	Explanation string
	Fields      []fusion.Field
}

// Analyze orients img, finds and orders its fields, and labels them.
//
// A page with no fields is not an error: the analysis comes back with empty
// field lists and the labeler is not called. A labeler failure is returned
// wrapped in ErrLabeling.
func (a *Analyzer) Analyze(ctx context.Context, img image.Image, opts AnalyzeOptions) (*Analysis, error) {
	out := &Analysis{Image: img, Ordered: []layout.OrderedField{}, Fields: []fusion.Field{}}

	if a.deps.Selector != nil && !opts.SkipOrientation {
		res := a.deps.Selector.Select(img)
		out.Image, out.Angle = res.Image, res.Angle
	}

	dets := opts.Detections
	if len(dets) == 0 && a.deps.Detector != nil {
		dets = a.deps.Detector.Detect(out.Image)
		a.log.WithField("candidates", len(dets)).Debug("heuristic detection")
	}
	dets = a.deps.Filter.Apply(out.Image, dets)
	merged := detection.Merge(dets, a.opts.IoUThreshold)

	out.Direction = a.direction(out.Image, opts.Direction)
	out.Ordered = layout.Sort(merged, out.Direction, a.opts.LineTolerance)

	a.log.WithFields(logrus.Fields{
		"angle":     out.Angle,
		"direction": out.Direction,
		"fields":    len(out.Ordered),
	}).Info("form analysed")

	if len(out.Ordered) == 0 {
		return out, nil
	}

	overlay, err := render.EncodePNG(a.deps.Renderer.Overlay(out.Image, boxes(out.Ordered)))
	if err != nil {
		return nil, err
	}
	out.Overlay = overlay

	if a.deps.Labeler == nil {
		return out, nil
	}

	if a.opts.LabelTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.opts.LabelTimeout)
		defer cancel()
	}
	res, err := a.deps.Labeler.Label(ctx, overlay, out.Direction)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLabeling, err)
	}

	out.Labeled = true
	out.Explanation = res.Explanation
	out.Fields = fusion.Fuse(out.Ordered, res.Labels)
	return out, nil
}

// Label fuses labels supplied after analysis, for callers that label the
// overlay themselves.
func (a *Analyzer) Label(ordered []layout.OrderedField, labels []fusion.Label) []fusion.Field {
	return fusion.Fuse(ordered, labels)
}

// Fill renders values, and optionally a signature, onto img and returns PNG
// bytes.
func (a *Analyzer) Fill(img image.Image, fields []fusion.Field, values render.Values, sig *render.Signature) ([]byte, error) {
	data, err := a.deps.Renderer.RenderPNG(img, fields, values, sig)
	if err != nil {
		return nil, fmt.Errorf("failed to render form: %w", err)
	}
	return data, nil
}

func (a *Analyzer) direction(img image.Image, requested layout.Direction) layout.Direction {
	if requested != "" {
		return requested
	}
	if a.deps.Directions != nil {
		if dir, ok := a.deps.Directions.DetectDirection(img); ok {
			return dir
		}
	}
	return a.opts.DefaultDirection
}

func boxes(ordered []layout.OrderedField) []geometry.Box {
	out := make([]geometry.Box, len(ordered))
	for i, f := range ordered {
		out[i] = f.Box
	}
	return out
}
