package layout

import (
	"fmt"
	"image"
	"testing"
	"unicode/utf8"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"GarmentCaption/config"
	iface "GarmentCaption/interface"
)

// halfEm measures every rune as half the font size wide.
type halfEm struct{}

func (halfEm) Measure(text string, size int) (int, int) {
	if text == "" {
		return 0, 0
	}
	return int(float64(utf8.RuneCountInString(text)) * float64(size) * 0.5), size
}

func newTestEngine(policy string) *Engine {
	r := config.Default().Render
	r.AnchorPolicy = policy
	return New(halfEm{}, OptionsFromConfig(r))
}

func TestComputeSingleLine(t *testing.T) {
	e := newTestEngine(config.AnchorBottom)
	box := iface.BoundingBox{X1: 50, Y1: 40, X2: 150, Y2: 240}

	l := e.Compute(box, "SALE", 30)
	require.Len(t, l.Lines, 1)
	assert.False(t, l.Wrapped)
	assert.Equal(t, 1.0, l.FontScale)

	line := l.Lines[0]
	assert.Equal(t, "SALE", line.Text)
	assert.Equal(t, 30, line.FontSize)
	assert.Equal(t, 60, line.Width)
	assert.Equal(t, image.Pt(80, 170), line.Anchor)
}

func TestComputeIsIdempotent(t *testing.T) {
	e := newTestEngine(config.AnchorBottom)
	box := iface.BoundingBox{X1: 12, Y1: 30, X2: 131, Y2: 260}
	for _, text := range []string{"SALE", "Fresh drop every friday", "BIG SUMMER SALE ON ALL SHIRTS"} {
		a := e.Compute(box, text, 30)
		b := e.Compute(box, text, 30)
		if diff := cmp.Diff(a, b); diff != "" {
			t.Errorf("Compute(%q) not deterministic (-first +second):\n%s", text, diff)
		}
	}
}

func TestFitScaleIsLargestFittingStep(t *testing.T) {
	e := newTestEngine(config.AnchorBottom)
	text := "SUMMER SALE NOW"
	candidates := []float64{1.0, 0.95, 0.9, 0.85, 0.8, 0.75, 0.7, 0.65, 0.6, 0.55, 0.5, 0.45, 0.4}

	for boxW := 5; boxW <= 260; boxW++ {
		want := 0.4
		for _, s := range candidates {
			if w, _ := (halfEm{}).Measure(text, FontSize(30, s)); w <= boxW {
				want = s
				break
			}
		}
		box := iface.BoundingBox{X1: 0, Y1: 0, X2: boxW, Y2: 300}
		assert.Equal(t, want, e.Compute(box, text, 30).FontScale, "box width %d", boxW)
	}
}

func TestComputeWrapsWhenFloorStillOverflows(t *testing.T) {
	e := newTestEngine(config.AnchorBottom)
	box := iface.BoundingBox{X1: 20, Y1: 10, X2: 120, Y2: 210}

	l := e.Compute(box, "BIG SUMMER SALE ON ALL SHIRTS", 30)
	assert.True(t, l.Wrapped)
	assert.Equal(t, 0.4, l.FontScale)
	require.GreaterOrEqual(t, len(l.Lines), 2)
	assert.Equal(t, []string{"BIG SUMMER SALE", "ON ALL SHIRTS"}, []string{l.Lines[0].Text, l.Lines[1].Text})

	for _, line := range l.Lines {
		assert.LessOrEqual(t, line.Width, 60, line.Text)
		assert.Less(t, line.Scale, l.FontScale, line.Text)
	}
	assert.NotEqual(t, l.Lines[0].Scale, l.Lines[1].Scale)
}

func TestLinesStackUpwardFromBottom(t *testing.T) {
	e := newTestEngine(config.AnchorBottom)
	box := iface.BoundingBox{X1: 20, Y1: 10, X2: 120, Y2: 210}
	l := e.Compute(box, "BIG SUMMER SALE ON ALL SHIRTS", 30)
	require.Len(t, l.Lines, 2)

	bottom := box.Y2 - 40
	first, second := l.Lines[0], l.Lines[1]
	assert.Equal(t, bottom-first.Height, first.Anchor.Y)
	assert.Equal(t, bottom-second.Height-(first.Height+5), second.Anchor.Y)
}

func TestHorizontalContainment(t *testing.T) {
	e := newTestEngine(config.AnchorBottom)
	texts := []string{"SALE", "NEW", "limited edition", "BIG SUMMER SALE ON ALL SHIRTS", "x"}
	for x1 := 0; x1 < 60; x1 += 13 {
		for w := 40; w <= 400; w += 17 {
			box := iface.BoundingBox{X1: x1, Y1: 5, X2: x1 + w, Y2: 5 + 180}
			for _, text := range texts {
				for _, line := range e.Compute(box, text, 30).Lines {
					name := fmt.Sprintf("%q in %+v", line.Text, box)
					assert.GreaterOrEqual(t, line.Anchor.X, box.X1, name)
					assert.LessOrEqual(t, line.Anchor.X+line.Width, box.X2, name)
				}
			}
		}
	}
}

func TestRightBiasClampedAtEdge(t *testing.T) {
	e := newTestEngine(config.AnchorBottom)
	// 4 runes at 30px = 60 wide, exactly 60% of the box, centred slack is 20
	box := iface.BoundingBox{X1: 0, Y1: 0, X2: 100, Y2: 200}
	l := e.Compute(box, "SALE", 30)
	require.Len(t, l.Lines, 1)
	assert.Equal(t, 30, l.Lines[0].Anchor.X)

	// shrunk to 24px wide, the 8px slack per side cannot absorb the 10px bias
	box = iface.BoundingBox{X1: 0, Y1: 0, X2: 40, Y2: 200}
	l = e.Compute(box, "SA", 30)
	require.Len(t, l.Lines, 1)
	assert.Equal(t, box.X2-l.Lines[0].Width, l.Lines[0].Anchor.X)
}

func TestAnchorPoint(t *testing.T) {
	tests := []struct {
		name string
		box  iface.BoundingBox
		want image.Point
	}{
		{"tall", iface.BoundingBox{X1: 0, Y1: 0, X2: 100, Y2: 200}, image.Pt(50, 130)},
		{"tall clamped near bottom", iface.BoundingBox{X1: 0, Y1: 0, X2: 60, Y2: 40}, image.Pt(30, 20)},
		{"wide", iface.BoundingBox{X1: 10, Y1: 10, X2: 310, Y2: 110}, image.Pt(160, 60)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AnchorPoint(tt.box))
		})
	}
}

func TestGarmentAnchorPolicy(t *testing.T) {
	e := newTestEngine(config.AnchorGarment)
	box := iface.BoundingBox{X1: 0, Y1: 0, X2: 100, Y2: 200}
	l := e.Compute(box, "SALE", 30)
	require.Len(t, l.Lines, 1)
	assert.Equal(t, AnchorPoint(box).Y-l.Lines[0].Height, l.Lines[0].Anchor.Y)
}

func TestComputeDegenerateInput(t *testing.T) {
	e := newTestEngine(config.AnchorBottom)
	assert.True(t, e.Compute(iface.BoundingBox{X1: 5, Y1: 5, X2: 5, Y2: 50}, "SALE", 30).Empty())
	assert.True(t, e.Compute(iface.BoundingBox{X1: 0, Y1: 0, X2: 50, Y2: 50}, "", 30).Empty())
}

func TestFontSize(t *testing.T) {
	assert.Equal(t, 21, FontSize(30, 1.0-6*0.05))
	assert.Equal(t, 27, FontSize(30, 0.9))
	assert.Equal(t, 12, FontSize(30, 0.4))
	assert.Equal(t, 1, FontSize(30, 0.001))
}
