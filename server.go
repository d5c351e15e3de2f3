package main

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"GarmentCaption/config"
	"GarmentCaption/logger"
	"GarmentCaption/pipeline"
	"GarmentCaption/store"
)

type server struct {
	cfg   config.Config
	queue *pipeline.Queue
	store *store.Store
	hub   *eventHub
}

func newRouter(s *server) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())
	r.MaxMultipartMemory = 32 << 20

	r.GET("/", func(c *gin.Context) {
		c.File(filepath.Join(s.cfg.StaticDir, "index.html"))
	})
	r.Static("/static", s.cfg.StaticDir)
	r.POST("/process", s.handleProcess)
	r.GET("/processed/:filename", s.handleProcessed)

	api := r.Group("/api")
	api.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})
	api.GET("/jobs", s.handleListJobs)
	api.GET("/jobs/:id", s.handleGetJob)
	api.GET("/events", s.hub.serve)
	return r
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		logger.Log().Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()))
	}
}

// uploadName strips any directory part from a client file name.
func uploadName(name string) (string, bool) {
	name = filepath.Base(filepath.Clean("/" + strings.ReplaceAll(name, `\`, "/")))
	if name == "/" || name == "." || name == "" {
		return "", false
	}
	return name, true
}

func (s *server) handleProcess(c *gin.Context) {
	file, err := c.FormFile("gif")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing gif file"})
		return
	}
	caption := strings.TrimSpace(c.PostForm("text"))
	if caption == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing text"})
		return
	}
	name, ok := uploadName(file.Filename)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid file name"})
		return
	}

	jobID := uuid.NewString()
	inPath := filepath.Join(s.cfg.UploadDir, name)
	if err := c.SaveUploadedFile(file, inPath); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save upload: " + err.Error()})
		return
	}

	res, err := s.queue.Submit(c.Request.Context(), pipeline.Job{
		ID:        jobID,
		InputPath: inPath,
		Filename:  name,
		Caption:   caption,
	})
	s.record(c, jobID, name, caption, res, err)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "jobID": jobID})
		return
	}
	c.JSON(http.StatusOK, gin.H{"filename": res.Filename, "jobID": jobID})
}

func (s *server) record(c *gin.Context, jobID, name, caption string, res pipeline.Result, jobErr error) {
	rec := store.JobRecord{
		ID:            jobID,
		Filename:      name,
		Caption:       caption,
		Status:        store.StatusSucceeded,
		Frames:        res.Frames,
		TrackedFrames: res.TrackedFrames,
		LostFrames:    res.LostFrames,
		Detected:      res.Detected,
		ElapsedMS:     res.Elapsed.Milliseconds(),
	}
	switch {
	case jobErr != nil:
		rec.Status = store.StatusFailed
		rec.Error = jobErr.Error()
	case !res.Detected:
		rec.Status = store.StatusNoDetection
	}
	if err := s.store.RecordJob(c.Request.Context(), rec); err != nil {
		logger.Log().Error("failed to record job", zap.String("jobID", jobID), zap.Error(err))
	}
}

func (s *server) handleProcessed(c *gin.Context) {
	name, ok := uploadName(c.Param("filename"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid file name"})
		return
	}
	path := filepath.Join(s.cfg.ProcessedDir, name)
	if _, err := os.Stat(path); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
		return
	}
	c.File(path)
}

func (s *server) handleListJobs(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	jobs, err := s.store.ListJobs(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if jobs == nil {
		jobs = []store.JobRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"data": jobs})
}

func (s *server) handleGetJob(c *gin.Context) {
	job, err := s.store.GetJob(c.Request.Context(), c.Param("id"))
	if errors.Is(err, store.ErrJobNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": job})
}
