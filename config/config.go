package config

import (
	"fmt"
	"image/color"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	iface "GarmentCaption/interface"
)

const (
	BackendHTTP   = "http"
	BackendOllama = "ollama"

	AnchorBottom  = "bottom"
	AnchorGarment = "garment"
)

type Config struct {
	HTTPPort     int    `yaml:"HTTPPort"`
	MetricsPort  int    `yaml:"MetricsPort"`
	WorkersNum   int    `yaml:"workersNum"`
	UploadDir    string `yaml:"UploadDir"`
	ProcessedDir string `yaml:"ProcessedDir"`
	StaticDir    string `yaml:"StaticDir"`
	DatabasePath string `yaml:"DatabasePath"`
	LogMode      string `yaml:"LogMode"`

	UseRegServer  bool          `yaml:"UseRegServer"`
	RegServerHost string        `yaml:"RegServerHost"`
	RegServerPort int           `yaml:"RegServerPort"`
	RegInterval   time.Duration `yaml:"RegInterval"`

	Detector DetectorConfig `yaml:"Detector"`
	Render   RenderConfig   `yaml:"Render"`
	Tracker  TrackerConfig  `yaml:"Tracker"`
}

type DetectorConfig struct {
	Backend    string        `yaml:"Backend"`
	URL        string        `yaml:"URL"`
	Model      string        `yaml:"Model"`
	Confidence float64       `yaml:"Confidence"`
	Classes    []string      `yaml:"Classes"`
	Names      []string      `yaml:"Names"`
	NamesFile  string        `yaml:"NamesFile"`
	Timeout    time.Duration `yaml:"Timeout"`
}

type RenderConfig struct {
	// FontPath empty means the embedded Go Regular face.
	FontPath          string   `yaml:"FontPath"`
	FontSize          float64  `yaml:"FontSize"`
	MaxFontScale      float64  `yaml:"MaxFontScale"`
	MinFontScale      float64  `yaml:"MinFontScale"`
	ScaleStep         float64  `yaml:"ScaleStep"`
	MaxLineWidthRatio float64  `yaml:"MaxLineWidthRatio"`
	LineGutter        int      `yaml:"LineGutter"`
	BottomPadding     int      `yaml:"BottomPadding"`
	RightBias         int      `yaml:"RightBias"`
	TextColor         [4]uint8 `yaml:"TextColor"`
	AnchorPolicy      string   `yaml:"AnchorPolicy"`
	DebugOverlay      bool     `yaml:"DebugOverlay"`
}

type TrackerConfig struct {
	ExpandRatio           float64 `yaml:"ExpandRatio"`
	GridSize              int     `yaml:"GridSize"`
	WindowSize            int     `yaml:"WindowSize"`
	PyramidLevels         int     `yaml:"PyramidLevels"`
	MinPoints             int     `yaml:"MinPoints"`
	MaxDisplacementSpread float64 `yaml:"MaxDisplacementSpread"`
}

func Default() Config {
	return Config{
		HTTPPort:     8080,
		MetricsPort:  9091,
		WorkersNum:   1,
		UploadDir:    "uploads",
		ProcessedDir: "processed",
		StaticDir:    "static",
		DatabasePath: "jobs.db",
		LogMode:      "production",
		RegInterval:  5 * time.Second,
		Detector: DetectorConfig{
			Backend:    BackendHTTP,
			URL:        "http://127.0.0.1:8000/predict",
			Model:      "qwen2.5vl:7b",
			Confidence: 0.5,
			Classes:    []string{"shirt", "sweater", "t-shirt"},
			Timeout:    30 * time.Second,
		},
		Render: RenderConfig{
			FontSize:          30,
			MaxFontScale:      1.0,
			MinFontScale:      0.4,
			ScaleStep:         0.05,
			MaxLineWidthRatio: 0.6,
			LineGutter:        5,
			BottomPadding:     40,
			RightBias:         10,
			TextColor:         [4]uint8{0, 0, 0, 150},
			AnchorPolicy:      AnchorBottom,
		},
		Tracker: TrackerConfig{
			ExpandRatio:           0.2,
			GridSize:              10,
			WindowSize:            15,
			PyramidLevels:         5,
			MinPoints:             10,
			MaxDisplacementSpread: 10,
		},
	}
}

// Load reads a YAML file on top of Default, so omitted keys keep their defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("HTTPPort out of range: %d", c.HTTPPort)
	}
	if c.UseRegServer && (c.RegServerHost == "" || c.RegServerPort <= 0 || c.RegServerPort > 65535) {
		return fmt.Errorf("UseRegServer needs RegServerHost and a valid RegServerPort")
	}
	if c.UploadDir == "" || c.ProcessedDir == "" {
		return fmt.Errorf("UploadDir and ProcessedDir must be set")
	}
	switch c.Detector.Backend {
	case BackendHTTP, BackendOllama:
	default:
		return fmt.Errorf("unsupported detector backend: %s", c.Detector.Backend)
	}
	if c.Detector.Confidence < 0 || c.Detector.Confidence > 1 {
		return fmt.Errorf("confidence must be between 0.0 and 1.0, got %f", c.Detector.Confidence)
	}
	if len(c.Detector.Classes) == 0 {
		return fmt.Errorf("Detector.Classes cannot be empty")
	}
	r := c.Render
	if r.FontSize <= 0 {
		return fmt.Errorf("Render.FontSize must be positive")
	}
	if r.MinFontScale <= 0 || r.MinFontScale > r.MaxFontScale {
		return fmt.Errorf("Render.MinFontScale must be in (0, MaxFontScale]")
	}
	if r.ScaleStep <= 0 {
		return fmt.Errorf("Render.ScaleStep must be positive")
	}
	if r.MaxLineWidthRatio <= 0 || r.MaxLineWidthRatio > 1 {
		return fmt.Errorf("Render.MaxLineWidthRatio must be in (0, 1]")
	}
	switch r.AnchorPolicy {
	case AnchorBottom, AnchorGarment:
	default:
		return fmt.Errorf("unsupported anchor policy: %s", r.AnchorPolicy)
	}
	t := c.Tracker
	if t.GridSize < 2 {
		return fmt.Errorf("Tracker.GridSize must be at least 2")
	}
	if t.MinPoints < 2 || t.MinPoints > t.GridSize*t.GridSize {
		return fmt.Errorf("Tracker.MinPoints must be in [2, GridSize^2]")
	}
	if t.ExpandRatio < 0 {
		return fmt.Errorf("Tracker.ExpandRatio cannot be negative")
	}
	return nil
}

func (r RenderConfig) Color() color.NRGBA {
	return color.NRGBA{R: r.TextColor[0], G: r.TextColor[1], B: r.TextColor[2], A: r.TextColor[3]}
}

// NamesConf prefers NamesFile over the inline Names list.
func (d DetectorConfig) NamesConf() iface.NamesConf {
	if d.NamesFile != "" {
		return iface.NamesConf{IsFile: true, Data: d.NamesFile}
	}
	if len(d.Names) == 0 {
		return iface.NamesConf{}
	}
	return iface.NamesConf{Data: d.Names}
}
