package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"math"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/ollama/ollama/api"

	iface "GarmentCaption/interface"
)

const garmentPrompt = `Find every garment worn or shown in this image.
Reply with JSON only, no prose, in exactly this shape:
{"detections":[{"label":"shirt","confidence":0.9,"box":{"x":0.1,"y":0.2,"w":0.3,"h":0.4}}]}
Coordinates are fractions of the image size; x and y are the top-left corner.
Use lowercase labels such as shirt, t-shirt, sweater, jacket, dress, pants.
If there is no garment reply {"detections":[]}.`

var ErrModelReply = errors.New("unusable model reply")

type ollamaBox struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

type ollamaDetection struct {
	Label      string    `json:"label"`
	Confidence float64   `json:"confidence"`
	Box        ollamaBox `json:"box"`
}

type ollamaReply struct {
	Detections []ollamaDetection `json:"detections"`
}

// OllamaBackend asks a local vision model for garment boxes.
type OllamaBackend struct {
	client *api.Client
	model  string
}

func NewOllamaBackend(ollamaURL, model string, timeout time.Duration) (*OllamaBackend, error) {
	parsed, err := url.Parse(ollamaURL)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama URL: %w", err)
	}
	// drop any path such as /api/chat
	base := &url.URL{Scheme: parsed.Scheme, Host: parsed.Host}
	return &OllamaBackend{
		client: api.NewClient(base, &http.Client{Timeout: timeout}),
		model:  model,
	}, nil
}

func (b *OllamaBackend) Name() string {
	return "ollama"
}

func (b *OllamaBackend) Detect(ctx context.Context, img image.Image) ([]iface.DetectionCandidate, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	stream := false
	req := &api.ChatRequest{
		Model: b.model,
		Messages: []api.Message{{
			Role:    "user",
			Content: garmentPrompt,
			Images:  []api.ImageData{buf.Bytes()},
		}},
		Stream:  &stream,
		Options: map[string]any{"temperature": 0},
	}
	var content string
	err := b.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		content += resp.Message.Content
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ollama chat: %w", err)
	}
	return parseReply(content, img.Bounds())
}

func parseReply(raw string, frame image.Rectangle) ([]iface.DetectionCandidate, error) {
	raw = sanitizeModelJSON(raw)
	if !strings.HasPrefix(raw, "{") {
		return nil, fmt.Errorf("%w: no JSON object", ErrModelReply)
	}
	var reply ollamaReply
	if err := json.Unmarshal([]byte(raw), &reply); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelReply, err)
	}
	w, h := float64(frame.Dx()), float64(frame.Dy())
	out := make([]iface.DetectionCandidate, 0, len(reply.Detections))
	for _, d := range reply.Detections {
		box := iface.BoundingBox{
			X1: int(math.Round(d.Box.X * w)),
			Y1: int(math.Round(d.Box.Y * h)),
			X2: int(math.Round((d.Box.X + d.Box.W) * w)),
			Y2: int(math.Round((d.Box.Y + d.Box.H) * h)),
		}.Clamp(frame.Dx(), frame.Dy())
		if !box.Valid() {
			continue
		}
		out = append(out, iface.DetectionCandidate{
			Box:        box,
			ClassLabel: strings.TrimSpace(d.Label),
			Confidence: d.Confidence,
		})
	}
	return out, nil
}

var (
	reBlockComment  = regexp.MustCompile(`(?s)/\*.*?\*/`)
	reLineComment   = regexp.MustCompile(`(?m)^\s*//.*$`)
	reTrailingComma = regexp.MustCompile(`,(\s*[}\]])`)
)

// sanitizeModelJSON strips code fences, comments and trailing commas and
// keeps the outermost object.
func sanitizeModelJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		if i := strings.Index(raw, "\n"); i >= 0 {
			raw = raw[i+1:]
		}
		if j := strings.LastIndex(raw, "```"); j >= 0 {
			raw = raw[:j]
		}
	}
	raw = strings.Trim(strings.TrimSpace(raw), "`")
	raw = reBlockComment.ReplaceAllString(raw, "")
	raw = reLineComment.ReplaceAllString(raw, "")
	raw = reTrailingComma.ReplaceAllString(raw, "$1")
	if start := strings.Index(raw, "{"); start >= 0 {
		if end := strings.LastIndex(raw, "}"); end > start {
			raw = raw[start : end+1]
		}
	}
	return strings.TrimSpace(raw)
}
