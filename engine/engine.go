// Package engine adapts garment detection backends to a single call that
// returns allow-listed candidates in backend order.
package engine

import (
	"context"
	"fmt"
	"image"
	"os"
	"reflect"
	"strings"

	"go.uber.org/zap"

	"GarmentCaption/config"
	iface "GarmentCaption/interface"
	"GarmentCaption/logger"
)

func ReadLinesReadFile(path string) ([]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	// CRLF files leave a trailing '\r'
	raw := strings.Split(string(b), "\n")
	var lines []string
	for _, l := range raw {
		l = strings.TrimRight(l, "\r")
		if l != "" {
			lines = append(lines, l)
		}
	}
	return lines, nil
}

// ResolveNames turns a names setting into the class id to label table.
func ResolveNames(names iface.NamesConf) ([]string, error) {
	if names.Data == nil {
		return nil, nil
	}
	if names.IsFile {
		path, ok := names.Data.(string)
		if !ok {
			return nil, fmt.Errorf("names file must be a path, got %T", names.Data)
		}
		return ReadLinesReadFile(path)
	}
	rv := reflect.ValueOf(names.Data)
	if rv.Kind() != reflect.Slice {
		return nil, fmt.Errorf("names must be a slice or a file path, got %T", names.Data)
	}
	out := make([]string, rv.Len())
	for i := range out {
		s, ok := rv.Index(i).Interface().(string)
		if !ok {
			return nil, fmt.Errorf("names[%d] is %T, not a string", i, rv.Index(i).Interface())
		}
		out[i] = s
	}
	return out, nil
}

// Adapter filters a backend's output down to confident, allow-listed
// garments. Labels are matched case-insensitively.
type Adapter struct {
	backend       iface.Detector
	minConfidence float64
	allow         map[string]struct{}
}

func NewAdapter(backend iface.Detector, minConfidence float64, classes []string) *Adapter {
	allow := make(map[string]struct{}, len(classes))
	for _, c := range classes {
		allow[strings.ToLower(c)] = struct{}{}
	}
	return &Adapter{backend: backend, minConfidence: minConfidence, allow: allow}
}

// New builds the backend named in cfg and wraps it in an Adapter.
func New(cfg config.DetectorConfig) (*Adapter, error) {
	var backend iface.Detector
	switch cfg.Backend {
	case config.BackendHTTP:
		names, err := ResolveNames(cfg.NamesConf())
		if err != nil {
			return nil, fmt.Errorf("load class names: %w", err)
		}
		backend = NewHTTPBackend(cfg.URL, cfg.Confidence, names, cfg.Timeout)
	case config.BackendOllama:
		b, err := NewOllamaBackend(cfg.URL, cfg.Model, cfg.Timeout)
		if err != nil {
			return nil, err
		}
		backend = b
	default:
		return nil, fmt.Errorf("unsupported detector backend: %s", cfg.Backend)
	}
	return NewAdapter(backend, cfg.Confidence, cfg.Classes), nil
}

func (a *Adapter) Name() string {
	return a.backend.Name()
}

// Detect returns the accepted candidates. An empty result is not an error.
func (a *Adapter) Detect(ctx context.Context, img image.Image) ([]iface.DetectionCandidate, error) {
	all, err := a.backend.Detect(ctx, img)
	if err != nil {
		return nil, fmt.Errorf("%s detect: %w", a.backend.Name(), err)
	}
	var kept []iface.DetectionCandidate
	for _, c := range all {
		if c.Confidence < a.minConfidence {
			continue
		}
		if _, ok := a.allow[strings.ToLower(c.ClassLabel)]; !ok {
			continue
		}
		kept = append(kept, c)
	}
	logger.Log().Debug("detections",
		zap.String("backend", a.backend.Name()),
		zap.Int("total", len(all)),
		zap.Int("kept", len(kept)))
	return kept, nil
}

// First returns the first accepted candidate, if any.
func (a *Adapter) First(ctx context.Context, img image.Image) (iface.DetectionCandidate, bool, error) {
	c, err := a.Detect(ctx, img)
	if err != nil || len(c) == 0 {
		return iface.DetectionCandidate{}, false, err
	}
	return c[0], true, nil
}
