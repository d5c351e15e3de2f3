package tracker

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"GarmentCaption/config"
)

// LKEstimator is a FlowEstimator backed by OpenCV pyramidal Lucas-Kanade.
// It is not safe for concurrent use.
type LKEstimator struct {
	window   image.Point
	levels   int
	criteria gocv.TermCriteria
}

func NewLKEstimator(window, levels int) *LKEstimator {
	return &LKEstimator{
		window:   image.Pt(window, window),
		levels:   levels,
		criteria: gocv.NewTermCriteria(gocv.Count|gocv.EPS, 20, 0.3),
	}
}

// NewMedianFlowFromConfig wires a MedianFlow to the OpenCV estimator.
func NewMedianFlowFromConfig(c config.TrackerConfig) *MedianFlow {
	return NewMedianFlow(NewLKEstimator(c.WindowSize, c.PyramidLevels), OptionsFromConfig(c))
}

func (e *LKEstimator) Track(prev, next image.Image, pts []Point) ([]Point, []bool, error) {
	if len(pts) == 0 {
		return nil, nil, nil
	}
	pg, err := grayMat(prev)
	if err != nil {
		return nil, nil, err
	}
	defer pg.Close()
	ng, err := grayMat(next)
	if err != nil {
		return nil, nil, err
	}
	defer ng.Close()

	in := gocv.NewMatWithSize(len(pts), 1, gocv.MatTypeCV32FC2)
	defer in.Close()
	for i, p := range pts {
		in.SetFloatAt(i, 0, float32(p.X))
		in.SetFloatAt(i, 1, float32(p.Y))
	}
	out := gocv.NewMat()
	defer out.Close()
	status := gocv.NewMat()
	defer status.Close()
	lkErr := gocv.NewMat()
	defer lkErr.Close()

	if err := gocv.CalcOpticalFlowPyrLKWithParams(pg, ng, in, out, &status, &lkErr, e.window, e.levels, e.criteria, 0, 1e-4); err != nil {
		return nil, nil, fmt.Errorf("optical flow: %w", err)
	}
	if out.Rows() != len(pts) || status.Rows() != len(pts) {
		return nil, nil, fmt.Errorf("optical flow returned %d points for %d inputs", out.Rows(), len(pts))
	}

	res := make([]Point, len(pts))
	ok := make([]bool, len(pts))
	for i := range pts {
		res[i] = Point{X: float64(out.GetFloatAt(i, 0)), Y: float64(out.GetFloatAt(i, 1))}
		ok[i] = status.GetUCharAt(i, 0) != 0
	}
	return res, ok, nil
}

func (e *LKEstimator) Close() error {
	return nil
}

func grayMat(img image.Image) (gocv.Mat, error) {
	rgb, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("convert frame: %w", err)
	}
	defer rgb.Close()
	gray := gocv.NewMat()
	// ImageToMatRGB yields BGR channel order for every input type
	if err := gocv.CvtColor(rgb, &gray, gocv.ColorBGRToGray); err != nil {
		gray.Close()
		return gocv.Mat{}, fmt.Errorf("convert frame: %w", err)
	}
	return gray, nil
}
