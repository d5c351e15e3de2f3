package engine

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"math"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	iface "GarmentCaption/interface"
)

type httpDetection struct {
	X1         float64 `json:"x1"`
	Y1         float64 `json:"y1"`
	X2         float64 `json:"x2"`
	Y2         float64 `json:"y2"`
	ClassID    int     `json:"class_id"`
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

type httpResponse struct {
	Detections []httpDetection `json:"detections"`
}

// HTTPBackend posts frames to an external YOLO inference endpoint.
type HTTPBackend struct {
	client *resty.Client
	url    string
	conf   float64
	names  []string
}

func NewHTTPBackend(url string, conf float64, names []string, timeout time.Duration) *HTTPBackend {
	return &HTTPBackend{
		client: resty.New().SetTimeout(timeout),
		url:    url,
		conf:   conf,
		names:  names,
	}
}

func (b *HTTPBackend) Name() string {
	return "http"
}

func (b *HTTPBackend) Detect(ctx context.Context, img image.Image) ([]iface.DetectionCandidate, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	var body httpResponse
	resp, err := b.client.R().
		SetContext(ctx).
		SetFileReader("file", "frame.png", bytes.NewReader(buf.Bytes())).
		SetFormData(map[string]string{"conf": strconv.FormatFloat(b.conf, 'f', -1, 64)}).
		SetResult(&body).
		Post(b.url)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("server returned %s: %s", resp.Status(), resp.String())
	}

	out := make([]iface.DetectionCandidate, 0, len(body.Detections))
	for _, d := range body.Detections {
		out = append(out, iface.DetectionCandidate{
			Box: iface.BoundingBox{
				X1: int(math.Round(d.X1)),
				Y1: int(math.Round(d.Y1)),
				X2: int(math.Round(d.X2)),
				Y2: int(math.Round(d.Y2)),
			},
			ClassLabel: b.label(d),
			Confidence: d.Confidence,
		})
	}
	return out, nil
}

func (b *HTTPBackend) label(d httpDetection) string {
	if d.Name != "" {
		return d.Name
	}
	if d.ClassID >= 0 && d.ClassID < len(b.names) {
		return b.names[d.ClassID]
	}
	return strconv.Itoa(d.ClassID)
}
