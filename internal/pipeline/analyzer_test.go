package pipeline

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/draw"
	"image/png"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironsheep/form-annotator-mcp/internal/detection"
	"github.com/ironsheep/form-annotator-mcp/internal/fusion"
	"github.com/ironsheep/form-annotator-mcp/internal/geometry"
	"github.com/ironsheep/form-annotator-mcp/internal/imaging"
	"github.com/ironsheep/form-annotator-mcp/internal/labeling"
	"github.com/ironsheep/form-annotator-mcp/internal/layout"
	"github.com/ironsheep/form-annotator-mcp/internal/orientation"
	"github.com/ironsheep/form-annotator-mcp/internal/render"
)

type fakeLabeler struct {
	result *labeling.Result
	err    error

	calls       int
	gotDir      layout.Direction
	gotPNG      []byte
	hadDeadline bool
}

func (f *fakeLabeler) Label(ctx context.Context, overlayPNG []byte, dir layout.Direction) (*labeling.Result, error) {
	f.calls++
	f.gotDir = dir
	f.gotPNG = overlayPNG
	_, f.hadDeadline = ctx.Deadline()
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fixedDirection struct {
	dir layout.Direction
	ok  bool
}

func (f fixedDirection) DetectDirection(image.Image) (layout.Direction, bool) { return f.dir, f.ok }

// printedRegions reports text in every region starting at or right of minX.
type printedRegions struct{ minX float64 }

func (p printedRegions) TextInRegion(_ image.Image, box geometry.Box) (string, float64, error) {
	if box.X1 >= p.minX {
		return "already filled", 0.95, nil
	}
	return "", 0, nil
}

func blankPage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)
	return img
}

func fillRect(img *image.RGBA, r image.Rectangle) {
	draw.Draw(img, r, image.Black, image.Point{}, draw.Src)
}

func newTestAnalyzer(deps Deps) *Analyzer {
	log, _ := test.NewNullLogger()
	opts := render.DefaultOptions()
	opts.FontPaths = nil
	if deps.Renderer == nil {
		deps.Renderer = render.New(opts, log)
	}
	return NewAnalyzer(deps, DefaultOptions(), log)
}

func det(x1, y1, x2, y2, conf float64, class string) detection.RawDetection {
	return detection.RawDetection{Box: geometry.FromCorners(x1, y1, x2, y2), Confidence: conf, Class: class}
}

func boolPtr(b bool) *bool { return &b }

func TestAnalyze_MergesOrdersAndFuses(t *testing.T) {
	labeler := &fakeLabeler{result: &labeling.Result{
		Explanation: "طلب عضوية",
		Labels: []fusion.Label{
			{ID: 1, Label: "الاسم"},
			{ID: 3, Label: "العنوان"},
			{ID: 2, Label: "للاستخدام الرسمي", Valid: boolPtr(false)},
		},
	}}
	a := newTestAnalyzer(Deps{Labeler: labeler})

	res, err := a.Analyze(context.Background(), blankPage(200, 100), AnalyzeOptions{
		Direction: layout.RTL,
		Detections: []detection.RawDetection{
			det(10, 10, 30, 30, 0.9, "checkbox"),
			det(12, 12, 32, 32, 0.3, "checkbox"),
			det(100, 10, 180, 30, 0.8, "textbox"),
			det(10, 60, 180, 80, 0.7, "text_field"),
		},
	})
	require.NoError(t, err)

	require.Len(t, res.Ordered, 3, "duplicate checkbox merged away")
	assert.Equal(t, "textbox", res.Ordered[0].Class, "rightmost field on the first line comes first")
	assert.Equal(t, "checkbox", res.Ordered[1].Class)
	assert.Equal(t, geometry.FromCorners(10, 10, 30, 30), res.Ordered[1].Box, "higher-confidence duplicate kept")
	assert.Equal(t, 3, res.Ordered[2].Index)

	assert.True(t, res.Labeled)
	assert.Equal(t, "طلب عضوية", res.Explanation)
	require.Len(t, res.Fields, 2)
	assert.Equal(t, fusion.Field{BoxID: "box_0", Label: "الاسم", Type: fusion.Textbox, Box: geometry.FromCorners(100, 10, 180, 30)}, res.Fields[0])
	assert.Equal(t, "box_2", res.Fields[1].BoxID)

	assert.Equal(t, 1, labeler.calls)
	assert.Equal(t, layout.RTL, labeler.gotDir)
	assert.True(t, labeler.hadDeadline)
	assert.Equal(t, labeler.gotPNG, res.Overlay)
	overlay, err := png.Decode(bytes.NewReader(res.Overlay))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 200, 100), overlay.Bounds())
}

func TestAnalyze_HeuristicDetectionWithoutLabeler(t *testing.T) {
	page := blankPage(200, 150)
	// Checkbox outline with a 2px stroke.
	fillRect(page, image.Rect(20, 20, 45, 22))
	fillRect(page, image.Rect(20, 43, 45, 45))
	fillRect(page, image.Rect(20, 20, 22, 45))
	fillRect(page, image.Rect(43, 20, 45, 45))
	// Signature rule.
	fillRect(page, image.Rect(80, 100, 181, 102))

	a := newTestAnalyzer(Deps{Detector: detection.NewHeuristicDetector()})
	res, err := a.Analyze(context.Background(), page, AnalyzeOptions{Direction: layout.LTR})
	require.NoError(t, err)

	require.Len(t, res.Ordered, 2)
	assert.Equal(t, detection.ClassCheckbox, res.Ordered[0].Class)
	assert.Equal(t, detection.ClassLine, res.Ordered[1].Class)
	assert.False(t, res.Labeled)
	assert.Empty(t, res.Fields)
	assert.NotEmpty(t, res.Overlay)

	fields := a.Label(res.Ordered, []fusion.Label{{ID: 2, Label: "Signature"}})
	require.Len(t, fields, 1)
	assert.Equal(t, "box_1", fields[0].BoxID)
	assert.Equal(t, fusion.Textbox, fields[0].Type)
}

func TestAnalyze_EmptyPage(t *testing.T) {
	labeler := &fakeLabeler{}
	a := newTestAnalyzer(Deps{Detector: detection.NewHeuristicDetector(), Labeler: labeler})

	res, err := a.Analyze(context.Background(), blankPage(120, 80), AnalyzeOptions{})
	require.NoError(t, err)
	assert.NotNil(t, res.Ordered)
	assert.Empty(t, res.Ordered)
	assert.NotNil(t, res.Fields)
	assert.Empty(t, res.Fields)
	assert.Nil(t, res.Overlay)
	assert.Equal(t, 0, labeler.calls)
}

func TestAnalyze_Direction(t *testing.T) {
	dets := []detection.RawDetection{det(10, 10, 50, 30, 0.9, "textbox")}
	tests := []struct {
		name       string
		directions DirectionDetector
		requested  layout.Direction
		want       layout.Direction
	}{
		{"requested wins", fixedDirection{layout.LTR, true}, layout.RTL, layout.RTL},
		{"detected", fixedDirection{layout.LTR, true}, "", layout.LTR},
		{"undetectable uses default", fixedDirection{"", false}, "", layout.RTL},
		{"no detector uses default", nil, "", layout.RTL},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestAnalyzer(Deps{Directions: tt.directions})
			res, err := a.Analyze(context.Background(), blankPage(100, 50), AnalyzeOptions{
				Detections: dets,
				Direction:  tt.requested,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Direction)
		})
	}
}

func TestAnalyze_LabelerFailure(t *testing.T) {
	cause := errors.New("quota exceeded")
	a := newTestAnalyzer(Deps{Labeler: &fakeLabeler{err: cause}})

	_, err := a.Analyze(context.Background(), blankPage(100, 50), AnalyzeOptions{
		Detections: []detection.RawDetection{det(10, 10, 50, 30, 0.9, "textbox")},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLabeling)
	assert.ErrorIs(t, err, cause)
}

func TestAnalyze_DropsFilledRegions(t *testing.T) {
	log, _ := test.NewNullLogger()
	filter := &detection.FillFilter{Reader: printedRegions{minX: 100}, MinConfidence: 0.6, Log: log}
	a := newTestAnalyzer(Deps{Filter: filter})

	res, err := a.Analyze(context.Background(), blankPage(200, 50), AnalyzeOptions{
		Direction: layout.LTR,
		Detections: []detection.RawDetection{
			det(10, 10, 50, 30, 0.9, "textbox"),
			det(120, 10, 180, 30, 0.9, "textbox"),
		},
	})
	require.NoError(t, err)
	require.Len(t, res.Ordered, 1)
	assert.Equal(t, 10.0, res.Ordered[0].Box.X1)
}

func TestAnalyze_Orientation(t *testing.T) {
	// Horizontal rules turned sideways: the selector should turn them back.
	page := blankPage(200, 200)
	for y := 40; y < 160; y += 8 {
		fillRect(page, image.Rect(30, y, 170, y+2))
	}
	sideways := imaging.Rotate(page, 90)

	log, _ := test.NewNullLogger()
	sel := orientation.NewSelector(nil, orientation.DefaultOptions(), log)
	a := newTestAnalyzer(Deps{Selector: sel})
	dets := []detection.RawDetection{det(10, 10, 50, 30, 0.9, "textbox")}

	res, err := a.Analyze(context.Background(), sideways, AnalyzeOptions{Detections: dets})
	require.NoError(t, err)
	assert.Contains(t, []int{90, 270}, res.Angle)

	res, err = a.Analyze(context.Background(), sideways, AnalyzeOptions{Detections: dets, SkipOrientation: true})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Angle)
	assert.Same(t, sideways, res.Image)
}

func TestFill(t *testing.T) {
	a := newTestAnalyzer(Deps{})
	fields := []fusion.Field{
		{BoxID: "box_0", Label: "Name", Type: fusion.Textbox, Box: geometry.FromCorners(10, 10, 150, 40)},
		{BoxID: "box_1", Label: "Agree", Type: fusion.Checkbox, Box: geometry.FromCorners(160, 10, 190, 40)},
	}
	values := render.Values{"box_0": render.TextValue("John"), "box_1": render.CheckValue(true)}

	data, err := a.Fill(blankPage(200, 60), fields, values, nil)
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 200, 60), img.Bounds())

	r, _, _, _ := img.At(175, 25).RGBA()
	assert.Zero(t, r, "checked box is filled with ink")
}
