package Adhoc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"GarmentCaption/logger"
)

const (
	ServiceName    = "garment-caption"
	TimeOutSeconds = 5
)

type RegisterRequest struct {
	Id        string `json:"id"`
	Service   string `json:"service"`
	IP        string `json:"ip"`
	Port      int    `json:"port"`
	Workers   int    `json:"workers"`
	Detector  string `json:"detector"`
	TimeStamp int64  `json:"timestamp"`
}

type RegisterResponse struct {
	Id      string `json:"id"`
	Success bool   `json:"success"`
}

type RegServerConfig struct {
	Port int
	Addr string
}

func (reg *RegServerConfig) SetAddress(addr string, port int) {
	reg.Addr = addr
	reg.Port = port
}

// SendAliveMessage registers this caption server with the registry and
// repeats the registration every interval until ctx is cancelled.
func SendAliveMessage(ctx context.Context, reg RegServerConfig, self RegisterRequest, interval time.Duration, wg *sync.WaitGroup) {
	defer wg.Done()
	if interval <= 0 {
		interval = TimeOutSeconds * time.Second
	}
	url := fmt.Sprintf("http://%s:%d/api/register", reg.Addr, reg.Port)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	client := resty.New().SetTimeout(TimeOutSeconds * time.Second)
	if self.Id == "" {
		self.Id = uuid.NewString()
	}
	self.Service = ServiceName
	safeDoRequest := func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Log().Error("SendAliveMessage panic recovered", zap.Any("panic", r))
			}
		}()
		var respBody RegisterResponse
		self.TimeStamp = time.Now().Unix()
		resp, err := client.R().
			SetContext(ctx).
			SetHeader("Content-Type", "application/json").
			SetBody(self).
			SetResult(&respBody).
			Post(url)
		if err != nil {
			logger.Log().Error("register request failed", zap.String("url", url), zap.Error(err))
			return
		}
		if resp.IsError() {
			logger.Log().Error("registry returned error", zap.String("status", resp.Status()), zap.String("body", resp.String()))
			return
		}
		if !respBody.Success {
			logger.Log().Warn("registry rejected registration", zap.String("id", self.Id))
		}
	}
	safeDoRequest()
	for {
		select {
		case <-ctx.Done():
			logger.Log().Info("SendAliveMessage context cancelled, exiting goroutine.")
			return
		case <-ticker.C:
			safeDoRequest()
		}
	}
}
