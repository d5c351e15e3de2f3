// Package tracker follows a detected garment across frames.
//
// RegionTracker owns the per-job state (uninitialized or tracking, plus the
// last good box) and delegates pixel work to an iface.VisualTracker, which
// is MedianFlow in production.
package tracker

import (
	"errors"
	"fmt"
	"image"

	iface "GarmentCaption/interface"
)

var (
	ErrNotTracking = errors.New("tracker: not tracking")
	ErrInvalidBox  = errors.New("tracker: invalid box")
)

type State int

const (
	Uninitialized State = iota
	Tracking
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Tracking:
		return "tracking"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

type RegionTracker struct {
	visual      iface.VisualTracker
	expandRatio float64

	state State
	box   iface.BoundingBox
}

func NewRegionTracker(visual iface.VisualTracker, expandRatio float64) *RegionTracker {
	return &RegionTracker{visual: visual, expandRatio: expandRatio}
}

// Init grows box downward by the expand ratio, clamps it to the frame and
// starts tracking. Calling Init while already tracking returns the current
// box and does nothing else.
func (t *RegionTracker) Init(frame image.Image, box iface.BoundingBox) (iface.BoundingBox, error) {
	if t.state == Tracking {
		return t.box, nil
	}
	if !box.Valid() {
		return iface.BoundingBox{}, ErrInvalidBox
	}
	b := frame.Bounds()
	box.Y2 += int(float64(box.Height()) * t.expandRatio)
	box = box.Clamp(b.Dx(), b.Dy())
	if !box.Valid() {
		return iface.BoundingBox{}, ErrInvalidBox
	}
	if err := t.visual.Init(frame, box); err != nil {
		return iface.BoundingBox{}, fmt.Errorf("init visual tracker: %w", err)
	}
	t.state = Tracking
	t.box = box
	return box, nil
}

// Update advances the tracker by one frame. On loss it reports false with
// the last good box and stays in the tracking state.
func (t *RegionTracker) Update(frame image.Image) (bool, iface.BoundingBox, error) {
	if t.state != Tracking {
		return false, iface.BoundingBox{}, ErrNotTracking
	}
	ok, box, err := t.visual.Update(frame)
	if err != nil {
		return false, t.box, err
	}
	if !ok || !box.Valid() {
		return false, t.box, nil
	}
	t.box = box
	return true, box, nil
}

func (t *RegionTracker) State() State {
	return t.state
}

func (t *RegionTracker) Box() iface.BoundingBox {
	return t.box
}

func (t *RegionTracker) Close() error {
	return t.visual.Close()
}
