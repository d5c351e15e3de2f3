// Package compositor rasterizes a text layout on a transparent layer and
// alpha-composites it over a frame.
package compositor

import (
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"

	"GarmentCaption/layout"
)

// FaceSource hands out font faces by pixel size.
type FaceSource interface {
	Face(size int) (font.Face, error)
}

type Compositor struct {
	faces FaceSource
	fill  *image.Uniform
}

func New(faces FaceSource, fill color.NRGBA) *Compositor {
	return &Compositor{faces: faces, fill: image.NewUniform(fill)}
}

// Render returns a new frame with l drawn on it. frame is not modified.
func (c *Compositor) Render(frame *image.NRGBA, l layout.TextLayout) (*image.NRGBA, error) {
	if l.Empty() {
		return imaging.Clone(frame), nil
	}
	layer := image.NewNRGBA(frame.Bounds())
	for _, line := range l.Lines {
		face, err := c.faces.Face(line.FontSize)
		if err != nil {
			return nil, fmt.Errorf("draw %q: %w", line.Text, err)
		}
		// place the ink bounds, not the baseline, at the anchor
		b, _ := font.BoundString(face, line.Text)
		d := font.Drawer{
			Dst:  layer,
			Src:  c.fill,
			Face: face,
			Dot: fixed.Point26_6{
				X: fixed.I(line.Anchor.X) - b.Min.X,
				Y: fixed.I(line.Anchor.Y) - b.Min.Y,
			},
		}
		d.DrawString(line.Text)
	}
	return imaging.Overlay(frame, layer, frame.Bounds().Min, 1.0), nil
}
