package compositor

import (
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	"gocv.io/x/gocv"

	iface "GarmentCaption/interface"
)

var BoxColor = color.RGBA{R: 0, G: 255, B: 0, A: 255}

// DebugOverlay returns a copy of frame with the tracked box outlined. The
// outline is stroke pixels wide and lies inside the box.
func DebugOverlay(frame *image.NRGBA, box iface.BoundingBox, c color.RGBA, stroke int) (*image.NRGBA, error) {
	if !box.Valid() {
		return imaging.Clone(frame), nil
	}
	mat, err := gocv.ImageToMatRGBA(frame)
	if err != nil {
		return nil, fmt.Errorf("debug overlay: %w", err)
	}
	defer mat.Close()

	r := box.Rect().Sub(frame.Bounds().Min)
	for s := 0; s < stroke; s++ {
		in := r.Inset(s)
		if in.Empty() {
			break
		}
		// the far corner passed to Rectangle is inclusive
		edge := image.Rect(in.Min.X, in.Min.Y, in.Max.X-1, in.Max.Y-1)
		if err := gocv.Rectangle(&mat, edge, c, 1); err != nil {
			return nil, fmt.Errorf("debug overlay: %w", err)
		}
	}

	img, err := mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("debug overlay: %w", err)
	}
	out, ok := img.(*image.NRGBA)
	if !ok {
		return nil, fmt.Errorf("debug overlay: unexpected image type %T", img)
	}
	out.Rect = frame.Bounds()
	return out, nil
}
