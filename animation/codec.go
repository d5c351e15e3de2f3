// Package animation converts between GIF files and sequences of full-canvas
// NRGBA frames.
package animation

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/gif"
	"io"
	"runtime"
	"time"

	"github.com/disintegration/imaging"
	"github.com/ericpauley/go-quantize/quantize"
	"golang.org/x/sync/errgroup"

	iface "GarmentCaption/interface"
)

var ErrMalformedAnimation = errors.New("malformed animation")

const delayUnit = 10 * time.Millisecond

// Decode reads every frame of a GIF and composites it onto a running canvas
// honouring the per-frame disposal method, so each returned frame is what a
// viewer would show at that point.
func Decode(r io.Reader) (iface.Animation, error) {
	g, err := gif.DecodeAll(r)
	if err != nil {
		return iface.Animation{}, fmt.Errorf("%w: %v", ErrMalformedAnimation, err)
	}
	if len(g.Image) == 0 {
		return iface.Animation{}, fmt.Errorf("%w: no frames", ErrMalformedAnimation)
	}

	w, h := g.Config.Width, g.Config.Height
	if w == 0 || h == 0 {
		b := g.Image[0].Bounds()
		w, h = b.Max.X, b.Max.Y
	}
	canvas := image.NewNRGBA(image.Rect(0, 0, w, h))
	anim := iface.Animation{
		Frames:    make([]iface.Frame, 0, len(g.Image)),
		Width:     w,
		Height:    h,
		LoopCount: g.LoopCount,
	}
	for i, pm := range g.Image {
		var disposal byte
		if i < len(g.Disposal) {
			disposal = g.Disposal[i]
		}
		var saved *image.NRGBA
		if disposal == gif.DisposalPrevious {
			saved = imaging.Clone(canvas)
		}

		draw.Draw(canvas, pm.Bounds(), pm, pm.Bounds().Min, draw.Over)
		var delay int
		if i < len(g.Delay) {
			delay = g.Delay[i]
		}
		anim.Frames = append(anim.Frames, iface.Frame{
			Image:    imaging.Clone(canvas),
			Duration: time.Duration(delay) * delayUnit,
		})

		switch disposal {
		case gif.DisposalBackground:
			draw.Draw(canvas, pm.Bounds(), image.Transparent, image.Point{}, draw.Src)
		case gif.DisposalPrevious:
			canvas = saved
		}
	}
	return anim, nil
}

// Encode writes anim as a looping GIF. Every frame gets its own median-cut
// palette and is dithered with Floyd-Steinberg.
func Encode(w io.Writer, anim iface.Animation) error {
	if len(anim.Frames) == 0 {
		return fmt.Errorf("%w: no frames", ErrMalformedAnimation)
	}
	out := &gif.GIF{
		Image:     make([]*image.Paletted, len(anim.Frames)),
		Delay:     make([]int, len(anim.Frames)),
		Disposal:  make([]byte, len(anim.Frames)),
		LoopCount: 0,
		Config:    image.Config{Width: anim.Width, Height: anim.Height},
	}

	for i, f := range anim.Frames {
		if f.Image == nil {
			return fmt.Errorf("%w: frame %d has no image", ErrMalformedAnimation, i)
		}
	}

	var eg errgroup.Group
	eg.SetLimit(runtime.NumCPU())
	for i, f := range anim.Frames {
		out.Delay[i] = int((f.Duration + delayUnit/2) / delayUnit)
		out.Disposal[i] = gif.DisposalBackground
		eg.Go(func() error {
			out.Image[i] = Quantize(f.Image)
			return nil
		})
	}
	_ = eg.Wait()

	if out.Config.Width == 0 || out.Config.Height == 0 {
		b := out.Image[0].Bounds()
		out.Config.Width, out.Config.Height = b.Dx(), b.Dy()
	}
	out.Config.ColorModel = out.Image[0].Palette
	if err := gif.EncodeAll(w, out); err != nil {
		return fmt.Errorf("encode gif: %w", err)
	}
	return nil
}

// Quantize reduces img to a 256 color palette.
func Quantize(img image.Image) *image.Paletted {
	q := quantize.MedianCutQuantizer{AddTransparent: hasTransparency(img)}
	b := img.Bounds()
	p := image.NewPaletted(b, q.Quantize(make(color.Palette, 0, 256), img))
	draw.FloydSteinberg.Draw(p, b, img, b.Min)
	return p
}

func hasTransparency(img image.Image) bool {
	if o, ok := img.(interface{ Opaque() bool }); ok {
		return !o.Opaque()
	}
	return true
}
