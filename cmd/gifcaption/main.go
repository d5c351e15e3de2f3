// Command gifcaption captions one GIF from the command line without the HTTP
// server.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"GarmentCaption/config"
	"GarmentCaption/engine"
	iface "GarmentCaption/interface"
	"GarmentCaption/layout"
	"GarmentCaption/logger"
	"GarmentCaption/pipeline"
	"GarmentCaption/tracker"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file (missing file uses defaults)")
	in := flag.String("in", "", "input GIF")
	out := flag.String("out", "", "output GIF (default: <processed dir>/<input name>)")
	text := flag.String("text", "", "caption text")
	debug := flag.Bool("debug", false, "outline the tracked box")
	flag.Parse()

	if *in == "" || *text == "" {
		fmt.Fprintln(os.Stderr, "usage: gifcaption -in input.gif -text CAPTION [-out output.gif] [-config config.yaml]")
		os.Exit(2)
	}
	if err := run(*configPath, *in, *out, *text, *debug); err != nil {
		fmt.Fprintln(os.Stderr, "gifcaption:", err)
		os.Exit(1)
	}
}

func run(configPath, in, out, text string, debug bool) error {
	cfg := config.Default()
	if _, err := os.Stat(configPath); err == nil {
		if cfg, err = config.Load(configPath); err != nil {
			return err
		}
	}
	if debug {
		cfg.Render.DebugOverlay = true
	}
	if out != "" {
		cfg.ProcessedDir = filepath.Dir(out)
	} else {
		out = filepath.Join(cfg.ProcessedDir, filepath.Base(in))
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := logger.Init(cfg.LogMode); err != nil {
		return err
	}
	defer logger.Sync()
	if err := os.MkdirAll(cfg.ProcessedDir, 0o755); err != nil {
		return err
	}

	font, err := layout.LoadFont(cfg.Render.FontPath)
	if err != nil {
		return err
	}
	detector, err := engine.New(cfg.Detector)
	if err != nil {
		return err
	}
	driver := pipeline.NewDriver(cfg, detector, font, func() iface.VisualTracker {
		return tracker.NewMedianFlowFromConfig(cfg.Tracker)
	})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	res, err := driver.Process(ctx, pipeline.Job{
		ID:        uuid.NewString(),
		InputPath: in,
		Filename:  filepath.Base(out),
		Caption:   text,
	})
	if err != nil {
		return err
	}
	logger.Log().Info("wrote output", zap.String("path", res.OutputPath))
	fmt.Printf("%s: %d frames, %d captioned, %d lost, detected=%v, %s\n",
		res.OutputPath, res.Frames, res.TrackedFrames, res.LostFrames, res.Detected, res.Elapsed)
	return nil
}
