package iface

import (
	"context"
	"image"
	"time"
)

type BoundingBox struct {
	X1, Y1, X2, Y2 int
}

func (b BoundingBox) Width() int {
	return b.X2 - b.X1
}

func (b BoundingBox) Height() int {
	return b.Y2 - b.Y1
}

// Valid reports whether the box has positive width and height.
func (b BoundingBox) Valid() bool {
	return b.X2 > b.X1 && b.Y2 > b.Y1
}

func (b BoundingBox) Rect() image.Rectangle {
	return image.Rect(b.X1, b.Y1, b.X2, b.Y2)
}

// Clamp limits the box to a frame of the given size.
func (b BoundingBox) Clamp(width, height int) BoundingBox {
	b.X1 = max(0, min(b.X1, width))
	b.X2 = max(0, min(b.X2, width))
	b.Y1 = max(0, min(b.Y1, height))
	b.Y2 = max(0, min(b.Y2, height))
	return b
}

func BoxFromRect(r image.Rectangle) BoundingBox {
	return BoundingBox{X1: r.Min.X, Y1: r.Min.Y, X2: r.Max.X, Y2: r.Max.Y}
}

type DetectionCandidate struct {
	Box        BoundingBox `json:"box"`
	ClassLabel string      `json:"classLabel"`
	Confidence float64     `json:"confidence"`
}

type NamesConf struct {
	IsFile bool
	Data   any
}

type Frame struct {
	Image    *image.NRGBA
	Duration time.Duration
}

type Animation struct {
	Frames    []Frame
	Width     int
	Height    int
	LoopCount int
}

// Detector is implemented by every detection backend. Implementations return
// every box the model produced; filtering happens in the adapter.
type Detector interface {
	Detect(ctx context.Context, img image.Image) ([]DetectionCandidate, error)
	Name() string
}

// VisualTracker follows a rectangle across frames using pixel data only.
type VisualTracker interface {
	Init(frame image.Image, box BoundingBox) error
	Update(frame image.Image) (bool, BoundingBox, error)
	Close() error
}
