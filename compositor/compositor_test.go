package compositor

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	iface "GarmentCaption/interface"
	"GarmentCaption/layout"
)

func whiteFrame(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	return img
}

func newTestCompositor(t *testing.T) (*Compositor, *layout.FaceCache) {
	t.Helper()
	f, err := layout.LoadFont("")
	require.NoError(t, err)
	faces := f.NewFaceCache()
	t.Cleanup(func() { _ = faces.Close() })
	return New(faces, color.NRGBA{A: 150}), faces
}

func TestRenderDrawsInsideLineBounds(t *testing.T) {
	c, faces := newTestCompositor(t)
	frame := whiteFrame(200, 160)
	before := append([]uint8(nil), frame.Pix...)

	w, h := faces.Measure("SALE", 30)
	l := layout.TextLayout{FontScale: 1, Lines: []layout.Line{{
		Text: "SALE", Scale: 1, FontSize: 30, Anchor: image.Pt(40, 90), Width: w, Height: h,
	}}}

	out, err := c.Render(frame, l)
	require.NoError(t, err)
	assert.Equal(t, before, frame.Pix, "input frame must not change")
	assert.Equal(t, frame.Bounds(), out.Bounds())

	ink := image.Rect(40, 90, 40+w, 90+h).Inset(-1)
	changed := 0
	minR := uint8(255)
	for y := 0; y < 160; y++ {
		for x := 0; x < 200; x++ {
			px := out.NRGBAAt(x, y)
			if px.R == 255 {
				continue
			}
			changed++
			minR = min(minR, px.R)
			assert.True(t, image.Pt(x, y).In(ink), "pixel (%d,%d) outside line bounds", x, y)
		}
	}
	assert.Greater(t, changed, 0)
	// black at alpha 150 over white never goes below 255*(105/255)
	assert.GreaterOrEqual(t, minR, uint8(104))
	assert.Equal(t, uint8(255), out.NRGBAAt(5, 5).A)
}

func TestRenderEmptyLayoutCopiesFrame(t *testing.T) {
	c, _ := newTestCompositor(t)
	frame := whiteFrame(20, 20)
	frame.SetNRGBA(3, 4, color.NRGBA{R: 9, G: 8, B: 7, A: 255})

	out, err := c.Render(frame, layout.TextLayout{})
	require.NoError(t, err)
	assert.NotSame(t, frame, out)
	assert.Equal(t, frame.Pix, out.Pix)
}

func TestDebugOverlay(t *testing.T) {
	frame := whiteFrame(50, 50)
	out, err := DebugOverlay(frame, iface.BoundingBox{X1: 10, Y1: 10, X2: 30, Y2: 40}, BoxColor, 2)
	require.NoError(t, err)

	green := color.NRGBA{G: 255, A: 255}
	white := color.NRGBA{255, 255, 255, 255}
	assert.Equal(t, frame.Bounds(), out.Bounds())
	assert.Equal(t, green, out.NRGBAAt(10, 20))
	assert.Equal(t, green, out.NRGBAAt(11, 20))
	assert.Equal(t, green, out.NRGBAAt(29, 20))
	assert.Equal(t, green, out.NRGBAAt(20, 39))
	assert.Equal(t, white, out.NRGBAAt(12, 20))
	assert.Equal(t, white, out.NRGBAAt(30, 20))
	assert.Equal(t, white, out.NRGBAAt(20, 40))
	assert.Equal(t, white, out.NRGBAAt(20, 20))
	assert.Equal(t, white, frame.NRGBAAt(10, 20))

	same, err := DebugOverlay(frame, iface.BoundingBox{}, BoxColor, 2)
	require.NoError(t, err)
	assert.Equal(t, frame.Pix, same.Pix)
}
