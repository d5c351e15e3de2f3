package tracker

import (
	"errors"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	iface "GarmentCaption/interface"
)

// pointFlow moves points with fwd on odd calls and back on even calls. A nil
// back returns the forward inputs exactly.
type pointFlow struct {
	fwd   func(i int, p Point) (Point, bool)
	back  func(i int, p Point) (Point, bool)
	err   error
	calls int
	last  []Point
}

func (f *pointFlow) Track(_, _ image.Image, pts []Point) ([]Point, []bool, error) {
	if f.err != nil {
		return nil, nil, f.err
	}
	f.calls++
	move := f.fwd
	if f.calls%2 == 0 {
		move = f.back
		if move == nil {
			move = func(i int, _ Point) (Point, bool) { return f.last[i], true }
		}
	} else {
		f.last = pts
	}
	out := make([]Point, len(pts))
	ok := make([]bool, len(pts))
	for i, p := range pts {
		out[i], ok[i] = move(i, p)
	}
	return out, ok, nil
}

func (f *pointFlow) Close() error { return nil }

func translate(dx, dy float64) *pointFlow {
	return &pointFlow{
		fwd: func(_ int, p Point) (Point, bool) { return Point{p.X + dx, p.Y + dy}, true },
	}
}

var startBox = iface.BoundingBox{X1: 50, Y1: 40, X2: 150, Y2: 140}

func newFlow(t *testing.T, est FlowEstimator) *MedianFlow {
	t.Helper()
	m := NewMedianFlow(est, Options{GridSize: 10, MinPoints: 10, MaxDisplacementSpread: 10})
	require.NoError(t, m.Init(frame(300, 300), startBox))
	return m
}

func TestMedianFlowTranslation(t *testing.T) {
	m := newFlow(t, translate(5, 3))
	ok, box, err := m.Update(frame(300, 300))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, iface.BoundingBox{X1: 55, Y1: 43, X2: 155, Y2: 143}, box)
}

func TestMedianFlowScale(t *testing.T) {
	c := Point{100, 90}
	m := newFlow(t, &pointFlow{
		fwd: func(_ int, p Point) (Point, bool) {
			return Point{c.X + 1.2*(p.X-c.X), c.Y + 1.2*(p.Y-c.Y)}, true
		},
	})
	ok, box, err := m.Update(frame(300, 300))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, iface.BoundingBox{X1: 40, Y1: 30, X2: 160, Y2: 150}, box)
}

func TestMedianFlowDropsHighForwardBackwardError(t *testing.T) {
	m := newFlow(t, &pointFlow{
		fwd: func(i int, p Point) (Point, bool) {
			if i%3 == 0 {
				return Point{p.X + 40, p.Y + 40}, true
			}
			return Point{p.X + 5, p.Y + 3}, true
		},
		back: func(i int, p Point) (Point, bool) {
			if i%3 == 0 {
				return Point{p.X - 25, p.Y - 40}, true
			}
			return Point{p.X - 5, p.Y - 3}, true
		},
	})
	ok, box, err := m.Update(frame(300, 300))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, iface.BoundingBox{X1: 55, Y1: 43, X2: 155, Y2: 143}, box)
}

func TestMedianFlowTooFewPointsThenRecovers(t *testing.T) {
	est := translate(5, 3)
	fwd := est.fwd
	est.fwd = func(i int, p Point) (Point, bool) {
		q, _ := fwd(i, p)
		return q, i < 5
	}
	m := newFlow(t, est)

	ok, box, err := m.Update(frame(300, 300))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, startBox, box)

	est.fwd = fwd
	ok, box, err = m.Update(frame(300, 300))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, iface.BoundingBox{X1: 55, Y1: 43, X2: 155, Y2: 143}, box)
}

func TestMedianFlowRejectsScatteredMotion(t *testing.T) {
	shift := func(i int) float64 { return float64(i%3-1) * 30 }
	m := newFlow(t, &pointFlow{
		fwd: func(i int, p Point) (Point, bool) { return Point{p.X + shift(i), p.Y}, true },
	})
	ok, box, err := m.Update(frame(300, 300))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, startBox, box)
}

func TestMedianFlowFailsWhenBoxLeavesFrame(t *testing.T) {
	m := newFlow(t, translate(250, 0))
	ok, _, err := m.Update(frame(300, 300))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMedianFlowClampsNearEdge(t *testing.T) {
	m := newFlow(t, translate(0, 100))
	ok, box, err := m.Update(frame(300, 200))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, iface.BoundingBox{X1: 50, Y1: 140, X2: 150, Y2: 200}, box)
}

func TestMedianFlowEstimatorError(t *testing.T) {
	boom := errors.New("boom")
	m := newFlow(t, &pointFlow{err: boom})
	_, _, err := m.Update(frame(300, 300))
	assert.ErrorIs(t, err, boom)
}

func TestMedianFlowRequiresInit(t *testing.T) {
	m := NewMedianFlow(translate(1, 1), Options{GridSize: 10, MinPoints: 10})
	_, _, err := m.Update(frame(10, 10))
	assert.ErrorIs(t, err, ErrNotTracking)
	assert.ErrorIs(t, m.Init(frame(10, 10), iface.BoundingBox{}), ErrInvalidBox)
}

func TestMedian(t *testing.T) {
	assert.Equal(t, 3.0, median([]float64{5, 1, 3}))
	assert.Equal(t, 7.0, median([]float64{7}))
	assert.Equal(t, 2.5, median([]float64{4, 1, 3, 2}))
	xs := []float64{4, 2, 9}
	median(xs)
	assert.Equal(t, []float64{4, 2, 9}, xs)
}
