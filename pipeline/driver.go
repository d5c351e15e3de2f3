// Package pipeline runs caption jobs: decode, detect once, track, lay out,
// composite, encode.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"GarmentCaption/animation"
	"GarmentCaption/compositor"
	"GarmentCaption/config"
	iface "GarmentCaption/interface"
	"GarmentCaption/layout"
	"GarmentCaption/logger"
	"GarmentCaption/monitor"
	"GarmentCaption/tracker"
)

var ErrEmptyCaption = errors.New("caption is empty")

// DetectionPolicy decides on which frames the detector runs.
type DetectionPolicy int

// DetectFirstFrameOnly runs the detector once per job, on frame 0. Later
// frames rely on the tracker alone and are never re-detected.
const DetectFirstFrameOnly DetectionPolicy = iota

func (p DetectionPolicy) String() string {
	if p == DetectFirstFrameOnly {
		return "first-frame-only"
	}
	return fmt.Sprintf("DetectionPolicy(%d)", int(p))
}

func (p DetectionPolicy) detectOn(frame int) bool {
	return p == DetectFirstFrameOnly && frame == 0
}

// FirstDetector returns the first accepted garment in a frame.
type FirstDetector interface {
	First(ctx context.Context, img image.Image) (iface.DetectionCandidate, bool, error)
	Name() string
}

type Job struct {
	ID        string
	InputPath string
	// Filename names the output inside the processed directory.
	Filename string
	Caption  string
}

type Result struct {
	JobID         string          `json:"jobID"`
	Filename      string          `json:"filename"`
	OutputPath    string          `json:"-"`
	Frames        int             `json:"frames"`
	TrackedFrames int             `json:"trackedFrames"`
	LostFrames    int             `json:"lostFrames"`
	Detected      bool            `json:"detected"`
	Elapsed       time.Duration   `json:"elapsed"`
	FrameTimings  []time.Duration `json:"-"`
}

type ProgressEvent struct {
	JobID   string            `json:"jobID"`
	Frame   int               `json:"frame"`
	Total   int               `json:"total"`
	Outcome string            `json:"outcome"`
	Box     iface.BoundingBox `json:"box"`
}

type Driver struct {
	detector    FirstDetector
	newTracker  func() iface.VisualTracker
	font        *layout.Font
	layoutOpts  layout.Options
	fontSize    float64
	fill        color.NRGBA
	debug       bool
	expandRatio float64
	outDir      string
	policy      DetectionPolicy
	progress    func(ProgressEvent)
}

// NewDriver wires a driver from configuration. newTracker is called once
// per job so jobs never share tracker state.
func NewDriver(cfg config.Config, det FirstDetector, font *layout.Font, newTracker func() iface.VisualTracker) *Driver {
	return &Driver{
		detector:    det,
		newTracker:  newTracker,
		font:        font,
		layoutOpts:  layout.OptionsFromConfig(cfg.Render),
		fontSize:    cfg.Render.FontSize,
		fill:        cfg.Render.Color(),
		debug:       cfg.Render.DebugOverlay,
		expandRatio: cfg.Tracker.ExpandRatio,
		outDir:      cfg.ProcessedDir,
		policy:      DetectFirstFrameOnly,
	}
}

// OnProgress registers fn to receive one event per finished frame.
func (d *Driver) OnProgress(fn func(ProgressEvent)) {
	d.progress = fn
}

// Process runs one job. The output file appears only when the whole
// animation was encoded.
func (d *Driver) Process(ctx context.Context, job Job) (Result, error) {
	start := time.Now()
	res, err := d.process(ctx, job)
	res.Elapsed = time.Since(start)
	status := monitor.JobSucceeded
	switch {
	case err != nil:
		status = monitor.JobFailed
	case !res.Detected:
		status = monitor.JobNoDetection
	}
	monitor.ObserveJob(status, res.Elapsed)
	if err != nil {
		logger.Log().Error("job failed", zap.String("jobID", job.ID), zap.Error(err))
		return res, err
	}
	logger.Log().Info("job done",
		zap.String("jobID", job.ID),
		zap.String("filename", res.Filename),
		zap.Int("frames", res.Frames),
		zap.Int("tracked", res.TrackedFrames),
		zap.Int("lost", res.LostFrames),
		zap.Bool("detected", res.Detected),
		zap.Duration("elapsed", res.Elapsed))
	return res, nil
}

func (d *Driver) process(ctx context.Context, job Job) (Result, error) {
	res := Result{JobID: job.ID, Filename: filepath.Base(job.Filename)}
	if strings.TrimSpace(job.Caption) == "" {
		return res, ErrEmptyCaption
	}
	in, err := os.Open(job.InputPath)
	if err != nil {
		return res, fmt.Errorf("open input: %w", err)
	}
	anim, err := animation.Decode(in)
	_ = in.Close()
	if err != nil {
		return res, err
	}
	res.Frames = len(anim.Frames)
	logger.Log().Info("job started",
		zap.String("jobID", job.ID),
		zap.Int("frames", res.Frames),
		zap.Int("width", anim.Width),
		zap.Int("height", anim.Height),
		zap.Stringer("policy", d.policy),
		zap.String("detector", d.detector.Name()))

	faces := d.font.NewFaceCache()
	defer faces.Close()
	engine := layout.New(faces, d.layoutOpts)
	comp := compositor.New(faces, d.fill)
	rt := tracker.NewRegionTracker(d.newTracker(), d.expandRatio)
	defer rt.Close()

	for i, fr := range anim.Frames {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		frameStart := time.Now()
		box, ok, err := d.locate(ctx, rt, i, fr.Image, &res)
		if err != nil {
			return res, err
		}

		outcome := monitor.FrameUndetected
		if ok {
			outcome = monitor.FrameTracked
			tl := engine.Compute(box, job.Caption, d.fontSize)
			img, err := comp.Render(fr.Image, tl)
			if err != nil {
				return res, fmt.Errorf("render frame %d: %w", i, err)
			}
			if d.debug {
				if img, err = compositor.DebugOverlay(img, box, compositor.BoxColor, 2); err != nil {
					return res, fmt.Errorf("debug overlay frame %d: %w", i, err)
				}
			}
			anim.Frames[i].Image = img
			res.TrackedFrames++
		} else if rt.State() == tracker.Tracking {
			outcome = monitor.FrameLost
			res.LostFrames++
		}

		elapsed := time.Since(frameStart)
		res.FrameTimings = append(res.FrameTimings, elapsed)
		monitor.ObserveFrame(outcome, elapsed)
		logger.Log().Debug("frame",
			zap.String("jobID", job.ID),
			zap.Int("frame", i),
			zap.String("outcome", outcome),
			zap.Duration("elapsed", elapsed))
		if d.progress != nil {
			d.progress(ProgressEvent{JobID: job.ID, Frame: i, Total: res.Frames, Outcome: outcome, Box: box})
		}
	}

	res.OutputPath = filepath.Join(d.outDir, res.Filename)
	if err := writeAtomic(res.OutputPath, anim); err != nil {
		return res, err
	}
	return res, nil
}

// locate returns the garment box for frame i, or ok=false when the frame
// should pass through unchanged.
func (d *Driver) locate(ctx context.Context, rt *tracker.RegionTracker, i int, frame image.Image, res *Result) (iface.BoundingBox, bool, error) {
	if d.policy.detectOn(i) {
		cand, found, err := d.detector.First(ctx, frame)
		if err != nil {
			return iface.BoundingBox{}, false, fmt.Errorf("detect frame %d: %w", i, err)
		}
		if !found {
			logger.Log().Info("no garment detected", zap.String("jobID", res.JobID))
			return iface.BoundingBox{}, false, nil
		}
		box, err := rt.Init(frame, cand.Box)
		if err != nil {
			logger.Log().Warn("tracker init failed",
				zap.String("jobID", res.JobID),
				zap.Any("box", cand.Box),
				zap.Error(err))
			return iface.BoundingBox{}, false, nil
		}
		res.Detected = true
		return box, true, nil
	}
	if rt.State() != tracker.Tracking {
		return iface.BoundingBox{}, false, nil
	}
	ok, box, err := rt.Update(frame)
	if err != nil {
		logger.Log().Warn("tracker update failed",
			zap.String("jobID", res.JobID),
			zap.Int("frame", i),
			zap.Error(err))
		return box, false, nil
	}
	return box, ok, nil
}

func writeAtomic(path string, anim iface.Animation) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".gifcaption-*.tmp")
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	defer os.Remove(tmp.Name())
	if err := animation.Encode(tmp, anim); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("publish output: %w", err)
	}
	return nil
}
