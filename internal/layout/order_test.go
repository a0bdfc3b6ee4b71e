package layout

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironsheep/form-annotator-mcp/internal/detection"
	"github.com/ironsheep/form-annotator-mcp/internal/geometry"
)

func field(x, y, w, h float64, class string) detection.MergedField {
	return detection.MergedField{Box: geometry.FromXYWH(x, y, w, h), Class: class}
}

func classes(ordered []OrderedField) []string {
	out := make([]string, len(ordered))
	for i, f := range ordered {
		out[i] = f.Class
	}
	return out
}

func TestSort_SameLineByDirection(t *testing.T) {
	// Centres at y=110 and y=112 with height 20: 2 < (20+20)/4.
	a := field(100, 100, 80, 20, "A")
	b := field(300, 102, 80, 20, "B")

	ltr := Sort([]detection.MergedField{b, a}, LTR, DefaultLineTolerance)
	assert.Equal(t, []string{"A", "B"}, classes(ltr))

	rtl := Sort([]detection.MergedField{a, b}, RTL, DefaultLineTolerance)
	assert.Equal(t, []string{"B", "A"}, classes(rtl))
}

func TestSort_DifferentLinesTopToBottom(t *testing.T) {
	top := field(500, 100, 80, 20, "top")
	bottom := field(10, 200, 80, 20, "bottom")

	for _, dir := range []Direction{LTR, RTL} {
		got := Sort([]detection.MergedField{bottom, top}, dir, DefaultLineTolerance)
		assert.Equal(t, []string{"top", "bottom"}, classes(got), "direction %s", dir)
	}
}

func TestSort_IndicesAreOneBased(t *testing.T) {
	got := Sort([]detection.MergedField{
		field(0, 0, 10, 10, "a"),
		field(0, 50, 10, 10, "b"),
		field(0, 100, 10, 10, "c"),
	}, LTR, DefaultLineTolerance)

	require.Len(t, got, 3)
	for i, f := range got {
		assert.Equal(t, i+1, f.Index)
	}
}

func TestSort_DoesNotMutateInput(t *testing.T) {
	in := []detection.MergedField{field(300, 0, 10, 10, "b"), field(0, 0, 10, 10, "a")}
	_ = Sort(in, LTR, DefaultLineTolerance)
	assert.Equal(t, "b", in[0].Class)
}

func TestSort_Empty(t *testing.T) {
	assert.Empty(t, Sort(nil, RTL, DefaultLineTolerance))
}

func TestSort_DeterministicWithStaggeredFields(t *testing.T) {
	// Each neighbour pair is on the same line but the ends are not.
	in := []detection.MergedField{
		field(0, 100, 50, 20, "a"),
		field(100, 108, 50, 20, "b"),
		field(200, 116, 50, 20, "c"),
	}
	first := Sort(in, LTR, DefaultLineTolerance)
	second := Sort(in, LTR, DefaultLineTolerance)
	assert.Equal(t, first, second)
}

func TestSameLine_Tolerance(t *testing.T) {
	a := field(0, 100, 10, 20, "a")
	b := field(0, 109, 10, 20, "b")
	c := field(0, 110, 10, 20, "c")

	assert.True(t, SameLine(a, b, DefaultLineTolerance))
	assert.False(t, SameLine(a, c, DefaultLineTolerance), "difference equal to bound is a different line")
	assert.True(t, SameLine(a, c, 0.3))
}

func TestParseDirection(t *testing.T) {
	tests := []struct {
		in      string
		want    Direction
		wantErr bool
	}{
		{"rtl", RTL, false},
		{"Arabic", RTL, false},
		{"ar", RTL, false},
		{" LTR ", LTR, false},
		{"english", LTR, false},
		{"fr", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDirection(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDirectionFromText(t *testing.T) {
	dir, ok := DirectionFromText("الاسم الكامل Name")
	assert.True(t, ok)
	assert.Equal(t, RTL, dir)

	dir, ok = DirectionFromText("Full name: محمد")
	assert.True(t, ok)
	assert.Equal(t, LTR, dir)

	_, ok = DirectionFromText("12345 --")
	assert.False(t, ok)
}
