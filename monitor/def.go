package monitor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/v4/process"
	"go.uber.org/zap"

	"GarmentCaption/logger"
)

const (
	FrameTracked     = "tracked"
	FrameLost        = "lost"
	FrameUndetected  = "undetected"
	JobSucceeded     = "succeeded"
	JobFailed        = "failed"
	JobNoDetection   = "no_detection"
	processSampleGap = 500 * time.Millisecond
)

var (
	Registry = prometheus.NewRegistry()

	memUsage = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "memory_usage_Megabytes",
		Help: "Memory usage in Megabytes",
	})
	cpuUsage = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cpu_usage_percent",
		Help: "CPU usage in percent",
	})
	JobsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "garment_jobs_total",
		Help: "Caption jobs by final status",
	}, []string{"status"})
	FramesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "garment_frames_total",
		Help: "Processed frames by tracking outcome",
	}, []string{"outcome"})
	JobDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "garment_job_duration_seconds",
		Help:    "Wall time of a caption job",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	})
	FrameDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "garment_frame_duration_seconds",
		Help:    "Wall time of one frame (detect or track, layout, composite)",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	})
)

func init() {
	Registry.MustRegister(memUsage, cpuUsage, JobsTotal, FramesTotal, JobDuration, FrameDuration)
}

func ObserveFrame(outcome string, d time.Duration) {
	FramesTotal.WithLabelValues(outcome).Inc()
	FrameDuration.Observe(d.Seconds())
}

func ObserveJob(status string, d time.Duration) {
	JobsTotal.WithLabelValues(status).Inc()
	JobDuration.Observe(d.Seconds())
}

func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}

func prom(port int) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log().Error("metrics server stopped", zap.Error(err))
		}
	}()
	return srv
}

func CheckProcessInfo(p *process.Process) {
	if memInfo, err := p.MemoryInfo(); err == nil {
		memUsage.Set(float64(memInfo.RSS / 1024 / 1024))
	}
	if cpu, err := p.CPUPercent(); err == nil {
		cpuUsage.Set(math.Round(cpu*100) / 100)
	}
}

// StartMon serves /metrics on port and samples process usage until ctx is
// cancelled.
func StartMon(port int, ctx context.Context) {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		logger.Log().Error("process info unavailable", zap.Error(err))
	}
	srv := prom(port)
	ticker := time.NewTicker(processSampleGap)
	defer ticker.Stop()
checkPcs:
	for {
		select {
		case <-ctx.Done():
			break checkPcs
		case <-ticker.C:
			if p != nil {
				CheckProcessInfo(p)
			}
		}
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log().Error("metrics server shutdown", zap.Error(err))
	}
}
