// Package layout fits a caption inside a garment box: it picks a font scale,
// wraps when scaling alone is not enough, and places each line.
package layout

import (
	"image"
	"math"

	"GarmentCaption/config"
	iface "GarmentCaption/interface"
)

// Measurer reports the rendered size of text at an integer pixel size.
type Measurer interface {
	Measure(text string, size int) (width, height int)
}

type Options struct {
	MaxScale          float64
	MinScale          float64
	Step              float64
	MaxLineWidthRatio float64
	LineGutter        int
	BottomPadding     int
	RightBias         int
	AnchorPolicy      string
}

func OptionsFromConfig(r config.RenderConfig) Options {
	return Options{
		MaxScale:          r.MaxFontScale,
		MinScale:          r.MinFontScale,
		Step:              r.ScaleStep,
		MaxLineWidthRatio: r.MaxLineWidthRatio,
		LineGutter:        r.LineGutter,
		BottomPadding:     r.BottomPadding,
		RightBias:         r.RightBias,
		AnchorPolicy:      r.AnchorPolicy,
	}
}

type Line struct {
	Text     string
	Scale    float64
	FontSize int
	// Anchor is the top-left corner of the line's ink bounds.
	Anchor image.Point
	Width  int
	Height int
}

type TextLayout struct {
	// FontScale is the scale chosen by the fitting search, before per-line shrinking.
	FontScale float64
	Wrapped   bool
	Lines     []Line
}

func (l TextLayout) Empty() bool {
	return len(l.Lines) == 0
}

type Engine struct {
	m    Measurer
	opts Options
}

func New(m Measurer, opts Options) *Engine {
	return &Engine{m: m, opts: opts}
}

// Compute is a pure function of its arguments and the engine options.
func (e *Engine) Compute(box iface.BoundingBox, text string, baseFontSize float64) TextLayout {
	if !box.Valid() || text == "" {
		return TextLayout{}
	}
	boxW := box.Width()

	scale := e.FitScale(text, boxW, baseFontSize)
	out := TextLayout{FontScale: scale}

	lines := []string{text}
	textW, _ := e.m.Measure(text, FontSize(baseFontSize, scale))
	if textW > boxW {
		lines = WrapByAverageCharWidth(text, textW, boxW)
		out.Wrapped = true
	}

	bottom := e.anchorBottom(box)
	maxLineW := float64(boxW) * e.opts.MaxLineWidthRatio
	yOffset := 0
	for _, line := range lines {
		lineScale := scale
		size := FontSize(baseFontSize, lineScale)
		w, h := e.m.Measure(line, size)
		if float64(w) > maxLineW {
			lineScale = scale * maxLineW / float64(w)
			size = FontSize(baseFontSize, lineScale)
			w, h = e.m.Measure(line, size)
		}

		y := bottom - h - yOffset
		x := box.X1 + (boxW-w)/2 + e.opts.RightBias
		if x+w > box.X2 {
			x = box.X2 - w
		}
		if x < box.X1 {
			x = box.X1
		}

		out.Lines = append(out.Lines, Line{
			Text:     line,
			Scale:    lineScale,
			FontSize: size,
			Anchor:   image.Pt(x, y),
			Width:    w,
			Height:   h,
		})
		yOffset += h + e.opts.LineGutter
	}
	return out
}

// FitScale walks down from MaxScale in Step increments until text fits in
// maxWidth or MinScale is reached.
func (e *Engine) FitScale(text string, maxWidth int, baseFontSize float64) float64 {
	steps := int(math.Round((e.opts.MaxScale - e.opts.MinScale) / e.opts.Step))
	k := 0
	scale := e.opts.MaxScale
	w, _ := e.m.Measure(text, FontSize(baseFontSize, scale))
	for w > maxWidth && k < steps {
		k++
		scale = roundScale(e.opts.MaxScale - float64(k)*e.opts.Step)
		w, _ = e.m.Measure(text, FontSize(baseFontSize, scale))
	}
	return scale
}

func (e *Engine) anchorBottom(box iface.BoundingBox) int {
	if e.opts.AnchorPolicy == config.AnchorGarment {
		return AnchorPoint(box).Y
	}
	return box.Y2 - e.opts.BottomPadding
}

// AnchorPoint is the garment-biased anchor: on tall boxes (w/h < 2) it sits
// 15% of the height below the centre, but no lower than 20px above the bottom
// edge; on wide boxes it is the centre.
func AnchorPoint(box iface.BoundingBox) image.Point {
	w, h := box.Width(), box.Height()
	cx := box.X1 + w/2
	cy := box.Y1 + h/2
	if float64(w)/float64(h) < 2.0 {
		return image.Pt(cx, min(cy+int(float64(h)*0.15), box.Y2-20))
	}
	return image.Pt(cx, cy)
}

// FontSize converts a scale to the integer pixel size used for measuring and drawing.
func FontSize(base, scale float64) int {
	size := int(math.Floor(base*scale + 1e-9))
	if size < 1 {
		return 1
	}
	return size
}

func roundScale(s float64) float64 {
	return math.Round(s*1e6) / 1e6
}
