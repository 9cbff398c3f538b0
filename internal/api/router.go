// Package api is the operational HTTP surface: health, metrics and the
// interview endpoints used to trigger and inspect transcriptions.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"interview-stt-go/internal/export"
	"interview-stt-go/internal/logger"
	"interview-stt-go/internal/metrics"
	"interview-stt-go/internal/queue"
	"interview-stt-go/internal/store"
	"interview-stt-go/internal/types"
)

const userHeader = "X-User-ID"

type Server struct {
	store store.Store
	queue queue.Queue
	log   *logger.Logger
}

func NewServer(st store.Store, q queue.Queue, log *logger.Logger) *Server {
	return &Server{store: st, queue: q, log: log}
}

// Router wires every route.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	r.GET("/healthz", s.healthz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/v1/interviews", requireUser())
	v1.GET("", s.listInterviews)
	v1.POST("", s.createInterview)
	v1.GET("/:id", s.getInterview)
	v1.PATCH("/:id", s.patchInterview)
	v1.DELETE("/:id", s.deleteInterview)
	v1.POST("/:id/process", s.processInterview)
	v1.GET("/:id/export.xlsx", s.exportInterview)
	return r
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		entry := s.log.WithRequest(c.Request)
		c.Set("log", entry)
		if id, ok := entry.Data["req_id"].(string); ok {
			c.Writer.Header().Set("X-Request-ID", id)
		}

		c.Next()

		entry.WithFields(logrus.Fields{
			"status":     c.Writer.Status(),
			"latency_ms": time.Since(start).Milliseconds(),
		}).Info("http request")
	}
}

// depther is implemented by queues that can report their backlog.
type depther interface {
	Depth(ctx context.Context) (waiting, inflight int64, err error)
}

func (s *Server) healthz(c *gin.Context) {
	d, ok := s.queue.(depther)
	if !ok {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}
	waiting, inflight, err := d.Depth(c.Request.Context())
	if err != nil {
		reqLog(c).WithError(err).Warn("queue depth unavailable")
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": "queue unavailable"})
		return
	}
	metrics.SetQueueDepth(waiting, inflight)
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"queue":  gin.H{"waiting": waiting, "inflight": inflight},
	})
}

func requireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := uuid.Parse(strings.TrimSpace(c.GetHeader(userHeader)))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid " + userHeader})
			return
		}
		c.Set("user_id", id)
		c.Next()
	}
}

func reqLog(c *gin.Context) *logrus.Entry {
	if v, ok := c.Get("log"); ok {
		if e, ok := v.(*logrus.Entry); ok {
			return e
		}
	}
	return logrus.NewEntry(logrus.StandardLogger())
}

func userID(c *gin.Context) uuid.UUID { return c.MustGet("user_id").(uuid.UUID) }

// loadInterview resolves :id for the caller, writing the error response
// itself when it returns nil.
func (s *Server) loadInterview(c *gin.Context) *types.Interview {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid interview id"})
		return nil
	}
	iv, err := s.store.GetInterview(c.Request.Context(), userID(c), id)
	if err != nil {
		reqLog(c).WithError(err).Error("load interview failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return nil
	}
	if iv == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "interview not found"})
		return nil
	}
	return iv
}

func (s *Server) listInterviews(c *gin.Context) {
	out, err := s.store.ListInterviews(c.Request.Context(), userID(c))
	if err != nil {
		reqLog(c).WithError(err).Error("list interviews failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, out)
}

type createRequest struct {
	Name          string  `json:"name" binding:"required"`
	AudioLocation string  `json:"audio_location" binding:"required"`
	AudioDuration float64 `json:"audio_duration"`
}

func (s *Server) createInterview(c *gin.Context) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	iv := &types.Interview{
		CreatorID:     userID(c),
		Name:          req.Name,
		AudioLocation: req.AudioLocation,
		AudioDuration: req.AudioDuration,
	}
	ctx := c.Request.Context()
	if err := s.store.CreateInterview(ctx, iv); err != nil {
		reqLog(c).WithError(err).Error("create interview failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	// an interview nobody will ever transcribe is not kept
	task := queue.NewTask(iv.CreatorID, iv.ID, iv.AudioLocation)
	if err := s.queue.Enqueue(ctx, task); err != nil {
		reqLog(c).WithError(err).Error("enqueue failed, rolling back interview")
		if dErr := s.store.DeleteInterview(ctx, iv.CreatorID, iv.ID); dErr != nil {
			reqLog(c).WithError(dErr).Error("rollback failed")
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "queue unavailable"})
		return
	}
	reqLog(c).WithFields(logrus.Fields{"task_id": task.ID, "interview_id": iv.ID.String()}).Info("transcription queued")
	c.JSON(http.StatusCreated, iv)
}

func (s *Server) deleteInterview(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid interview id"})
		return
	}
	err = s.store.DeleteInterview(c.Request.Context(), userID(c), id)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "interview not found"})
		return
	}
	if err != nil {
		reqLog(c).WithError(err).Error("delete interview failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) getInterview(c *gin.Context) {
	if iv := s.loadInterview(c); iv != nil {
		c.JSON(http.StatusOK, iv)
	}
}

// patchRequest only reaches the fields users own. A speakers object is
// merged into the stored names; an empty object clears them.
type patchRequest struct {
	Name     *string        `json:"name"`
	Speakers types.Speakers `json:"speakers"`
}

func (s *Server) patchInterview(c *gin.Context) {
	iv := s.loadInterview(c)
	if iv == nil {
		return
	}
	var req patchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Name != nil && strings.TrimSpace(*req.Name) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name cannot be empty"})
		return
	}

	out, err := s.store.UpdateInterview(c.Request.Context(), iv.CreatorID, iv.ID, types.InterviewUpdate{
		Name:     req.Name,
		Speakers: req.Speakers,
	})
	if err != nil {
		reqLog(c).WithError(err).Error("update interview failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) processInterview(c *gin.Context) {
	iv := s.loadInterview(c)
	if iv == nil {
		return
	}
	if iv.Status.Terminal() {
		c.JSON(http.StatusConflict, gin.H{"error": fmt.Sprintf("interview is already %s", iv.Status)})
		return
	}
	task := queue.NewTask(iv.CreatorID, iv.ID, iv.AudioLocation)
	if err := s.queue.Enqueue(c.Request.Context(), task); err != nil {
		reqLog(c).WithError(err).Error("enqueue failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "queue unavailable"})
		return
	}
	reqLog(c).WithFields(logrus.Fields{"task_id": task.ID, "interview_id": iv.ID.String()}).Info("transcription queued")
	c.JSON(http.StatusAccepted, gin.H{"task_id": task.ID, "interview_id": iv.ID, "status": iv.Status})
}

func (s *Server) exportInterview(c *gin.Context) {
	iv := s.loadInterview(c)
	if iv == nil {
		return
	}
	f, err := export.Workbook(iv)
	if errors.Is(err, export.ErrNoTranscript) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		reqLog(c).WithError(err).Error("export failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	defer f.Close()

	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.xlsx"`, iv.ID))
	c.Status(http.StatusOK)
	if _, err := f.WriteTo(c.Writer); err != nil {
		reqLog(c).WithError(err).Error("stream export failed")
	}
}
