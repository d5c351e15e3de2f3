package tracker

import (
	"fmt"
	"image"
	"math"
	"slices"

	"gonum.org/v1/gonum/stat"

	"GarmentCaption/config"
	iface "GarmentCaption/interface"
)

type Point struct {
	X, Y float64
}

func (p Point) dist(q Point) float64 {
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}

// FlowEstimator tracks sparse points from one frame to the next. ok[i] is
// false when point i could not be followed.
type FlowEstimator interface {
	Track(prev, next image.Image, pts []Point) (out []Point, ok []bool, err error)
	Close() error
}

type Options struct {
	GridSize              int
	MinPoints             int
	MaxDisplacementSpread float64
}

func OptionsFromConfig(c config.TrackerConfig) Options {
	return Options{
		GridSize:              c.GridSize,
		MinPoints:             c.MinPoints,
		MaxDisplacementSpread: c.MaxDisplacementSpread,
	}
}

type rect struct {
	x, y, w, h float64
}

func (r rect) box() iface.BoundingBox {
	return iface.BoundingBox{
		X1: int(math.Round(r.x)),
		Y1: int(math.Round(r.y)),
		X2: int(math.Round(r.x + r.w)),
		Y2: int(math.Round(r.y + r.h)),
	}
}

// MedianFlow is a forward-backward median-flow tracker. A grid of points is
// sampled inside the box, tracked forward and back, and the points with the
// smaller half of forward-backward error vote on displacement and scale.
type MedianFlow struct {
	est  FlowEstimator
	opts Options

	prev image.Image
	r    rect
}

func NewMedianFlow(est FlowEstimator, opts Options) *MedianFlow {
	return &MedianFlow{est: est, opts: opts}
}

func (m *MedianFlow) Init(frame image.Image, box iface.BoundingBox) error {
	if !box.Valid() {
		return ErrInvalidBox
	}
	m.prev = frame
	m.r = rect{
		x: float64(box.X1),
		y: float64(box.Y1),
		w: float64(box.Width()),
		h: float64(box.Height()),
	}
	return nil
}

func (m *MedianFlow) Update(frame image.Image) (bool, iface.BoundingBox, error) {
	if m.prev == nil {
		return false, iface.BoundingBox{}, ErrNotTracking
	}
	prev := m.prev
	m.prev = frame

	pts := m.grid()
	fwd, okF, err := m.est.Track(prev, frame, pts)
	if err != nil {
		return false, m.r.box(), fmt.Errorf("forward flow: %w", err)
	}
	back, okB, err := m.est.Track(frame, prev, fwd)
	if err != nil {
		return false, m.r.box(), fmt.Errorf("backward flow: %w", err)
	}

	var idx []int
	var fb []float64
	for i := range pts {
		if okF[i] && okB[i] {
			idx = append(idx, i)
			fb = append(fb, pts[i].dist(back[i]))
		}
	}
	if len(idx) < m.opts.MinPoints {
		return false, m.r.box(), nil
	}
	medFB := median(fb)
	var from, to []Point
	for k, i := range idx {
		if fb[k] <= medFB {
			from = append(from, pts[i])
			to = append(to, fwd[i])
		}
	}
	if len(from) < m.opts.MinPoints {
		return false, m.r.box(), nil
	}

	dx := make([]float64, len(from))
	dy := make([]float64, len(from))
	for i := range from {
		dx[i] = to[i].X - from[i].X
		dy[i] = to[i].Y - from[i].Y
	}
	mdx, mdy := median(dx), median(dy)
	dev := make([]float64, len(from))
	for i := range from {
		dev[i] = math.Hypot(dx[i]-mdx, dy[i]-mdy)
	}
	if median(dev) > m.opts.MaxDisplacementSpread {
		return false, m.r.box(), nil
	}

	s := scale(from, to)
	cx := m.r.x + m.r.w/2 + mdx
	cy := m.r.y + m.r.h/2 + mdy
	next := rect{w: m.r.w * s, h: m.r.h * s}
	next.x = cx - next.w/2
	next.y = cy - next.h/2

	b := frame.Bounds()
	if cx < float64(b.Min.X) || cx >= float64(b.Max.X) || cy < float64(b.Min.Y) || cy >= float64(b.Max.Y) {
		return false, m.r.box(), nil
	}
	m.r = next
	return true, next.box().Clamp(b.Dx(), b.Dy()), nil
}

func (m *MedianFlow) Close() error {
	return m.est.Close()
}

func (m *MedianFlow) grid() []Point {
	n := m.opts.GridSize
	pts := make([]Point, 0, n*n)
	for j := 0; j < n; j++ {
		for i := 0; i < n; i++ {
			pts = append(pts, Point{
				X: m.r.x + (float64(i)+0.5)*m.r.w/float64(n),
				Y: m.r.y + (float64(j)+0.5)*m.r.h/float64(n),
			})
		}
	}
	return pts
}

// scale is the median ratio of pairwise distances after and before the move.
func scale(from, to []Point) float64 {
	var ratios []float64
	for i := range from {
		for j := i + 1; j < len(from); j++ {
			d := from[i].dist(from[j])
			if d == 0 {
				continue
			}
			ratios = append(ratios, to[i].dist(to[j])/d)
		}
	}
	if len(ratios) == 0 {
		return 1
	}
	return median(ratios)
}

// median averages the two middle values for even lengths.
func median(xs []float64) float64 {
	s := slices.Clone(xs)
	slices.Sort(s)
	n := len(s)
	return stat.Mean(s[(n-1)/2:n/2+1], nil)
}
