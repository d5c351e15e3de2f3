package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	adhoc "GarmentCaption/Adhoc"
	"GarmentCaption/config"
	"GarmentCaption/engine"
	iface "GarmentCaption/interface"
	"GarmentCaption/layout"
	"GarmentCaption/logger"
	"GarmentCaption/monitor"
	"GarmentCaption/pipeline"
	"GarmentCaption/store"
	"GarmentCaption/tracker"
)

func GetOutboundIP() (string, error) {
	// UDP dial only resolves the route; nothing is sent
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "", err
	}
	defer conn.Close()
	localAddr := conn.LocalAddr().(*net.UDPAddr)
	return localAddr.IP.String(), nil
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Println("Failed to load config:", err)
		os.Exit(1)
	}
	if err := logger.Init(cfg.LogMode); err != nil {
		fmt.Println("Failed to init logger:", err)
		os.Exit(1)
	}
	defer logger.Sync()
	if err := run(cfg); err != nil {
		logger.Log().Error("server stopped", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}

func run(cfg config.Config) error {
	CPUNum := runtime.NumCPU()
	fmt.Println(strings.Repeat("#", 64))
	fmt.Printf("CPU Cores: %d\n", CPUNum)
	fmt.Println(" HTTP    Port:", cfg.HTTPPort)
	fmt.Println(" Metrics Port:", cfg.MetricsPort)
	fmt.Println("Configured Workers Num:", cfg.WorkersNum)
	fmt.Println(strings.Repeat("#", 64))
	if cfg.WorkersNum <= 0 {
		cfg.WorkersNum = 1
		logger.Log().Warn("Invalid workersNum in config, defaulting to 1")
	} else if cfg.WorkersNum > CPUNum {
		logger.Log().Warn("workersNum exceeds CPU cores, which may lead to performance degradation",
			zap.Int("workersNum", cfg.WorkersNum), zap.Int("cpus", CPUNum))
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	for _, dir := range []string{cfg.UploadDir, cfg.ProcessedDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}

	font, err := layout.LoadFont(cfg.Render.FontPath)
	if err != nil {
		return err
	}
	detector, err := engine.New(cfg.Detector)
	if err != nil {
		return err
	}
	ledger, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer ledger.Close()

	hub := newEventHub()
	driver := pipeline.NewDriver(cfg, detector, font, func() iface.VisualTracker {
		return tracker.NewMedianFlowFromConfig(cfg.Tracker)
	})
	driver.OnProgress(hub.Publish)
	queue := pipeline.NewQueue(driver, cfg.WorkersNum)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	if cfg.UseRegServer {
		ip, err := GetOutboundIP()
		if err != nil {
			logger.Log().Warn("Failed to get outbound IP", zap.Error(err))
		}
		var reg adhoc.RegServerConfig
		reg.SetAddress(cfg.RegServerHost, cfg.RegServerPort)
		self := adhoc.RegisterRequest{IP: ip, Port: cfg.HTTPPort, Workers: cfg.WorkersNum, Detector: detector.Name()}
		go adhoc.SendAliveMessage(ctx, reg, self, cfg.RegInterval, &wg)
	} else {
		logger.Log().Info("UseRegServer is set to false, skipping registration")
		wg.Done()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		monitor.StartMon(cfg.MetricsPort, ctx)
	}()

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler: newRouter(&server{cfg: cfg, queue: queue, store: ledger, hub: hub}),
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Log().Info("HTTP server listening", zap.String("addr", srv.Addr), zap.String("detector", detector.Name()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err = <-errCh:
	}
	cancel()
	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	_ = srv.Shutdown(shutdownCtx)
	hub.Close()
	queue.Close()
	wg.Wait()
	logger.Log().Info("Safely exited")
	return err
}
