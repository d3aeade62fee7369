package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/AndrewMFlick/SentimentAgent-sub004/internal/metrics"
	"github.com/AndrewMFlick/SentimentAgent-sub004/internal/models"
	"github.com/AndrewMFlick/SentimentAgent-sub004/internal/service"
)

// JobHandler handles HTTP requests for reanalysis jobs
type JobHandler struct {
	jobService *service.JobService
	trigger    *service.Trigger
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// NewJobHandler creates a new job handler
func NewJobHandler(jobService *service.JobService, trigger *service.Trigger, metrics *metrics.Metrics, logger *slog.Logger) *JobHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &JobHandler{
		jobService: jobService,
		trigger:    trigger,
		metrics:    metrics,
		logger:     logger.With("component", "http"),
	}
}

// RegisterRoutes mounts the job endpoints on r
func (h *JobHandler) RegisterRoutes(r gin.IRouter) {
	r.GET("/healthz", h.Health)
	r.GET("/metrics", h.GetMetrics)

	jobs := r.Group("/jobs")
	{
		jobs.POST("", h.CreateJob)
		jobs.GET("", h.ListJobs)
		jobs.GET("/:id", h.GetJob)
		jobs.POST("/:id/cancel", h.CancelJob)
	}

	r.POST("/tool-events", h.ToolEvent)
}

// CreateJobResponse is returned by POST /jobs
type CreateJobResponse struct {
	JobID          string           `json:"job_id"`
	Status         models.JobStatus `json:"status"`
	EstimatedTotal int64            `json:"estimated_total"`
	StatusURL      string           `json:"status_url"`
}

// CreateJob handles POST /jobs
func (h *JobHandler) CreateJob(c *gin.Context) {
	var req models.CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "INVALID_INPUT",
			"message": "invalid request body: " + err.Error(),
		})
		return
	}

	res, err := h.trigger.Manual(c.Request.Context(), &req)
	if err != nil {
		h.respondWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, CreateJobResponse{
		JobID:          res.Job.ID,
		Status:         res.Job.Status,
		EstimatedTotal: res.EstimatedTotal,
		StatusURL:      "/jobs/" + res.Job.ID,
	})
}

// GetJob handles GET /jobs/:id
func (h *JobHandler) GetJob(c *gin.Context) {
	job, err := h.jobService.GetJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

// ListJobs handles GET /jobs?status=&limit=&offset=
func (h *JobHandler) ListJobs(c *gin.Context) {
	var filter models.ListJobsFilter

	if raw := c.Query("status"); raw != "" {
		status, ok := models.ParseJobStatus(raw)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_INPUT", "message": "invalid status"})
			return
		}
		filter.Status = &status
	}

	var err error
	if filter.Limit, err = queryInt(c, "limit"); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_INPUT", "message": "invalid limit"})
		return
	}
	if filter.Offset, err = queryInt(c, "offset"); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_INPUT", "message": "invalid offset"})
		return
	}

	jobs, err := h.jobService.ListJobs(c.Request.Context(), filter)
	if err != nil {
		h.respondWithError(c, err)
		return
	}
	if jobs == nil {
		jobs = []*models.Job{}
	}
	c.JSON(http.StatusOK, jobs)
}

// CancelJob handles POST /jobs/:id/cancel
func (h *JobHandler) CancelJob(c *gin.Context) {
	job, err := h.jobService.CancelJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondWithError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, job)
}

// ToolEvent handles POST /tool-events. The job is created asynchronously.
func (h *JobHandler) ToolEvent(c *gin.Context) {
	var evt models.ToolEvent
	if err := c.ShouldBindJSON(&evt); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "INVALID_INPUT",
			"message": "invalid event: " + err.Error(),
		})
		return
	}

	if !h.trigger.Publish(evt) {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"code":    "BUSY",
			"message": "event buffer is full, retry later",
		})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

// GetMetrics handles GET /metrics
func (h *JobHandler) GetMetrics(c *gin.Context) {
	snapshot := h.metrics.GetSnapshot()

	queued, running, err := h.jobService.QueueDepth(c.Request.Context())
	if err != nil {
		h.logger.Warn("failed to read queue depth", "error", err)
	} else {
		snapshot["queued_jobs"] = int64(queued)
		snapshot["running_jobs"] = int64(running)
	}
	c.JSON(http.StatusOK, snapshot)
}

// Health handles GET /healthz
func (h *JobHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *JobHandler) respondWithError(c *gin.Context, err error) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "INVALID_INPUT",
			"message": verr.Error(),
			"fields":  verr.Fields,
		})
	case errors.Is(err, service.ErrJobNotFound):
		c.JSON(http.StatusNotFound, gin.H{"code": "NOT_FOUND", "message": "job not found"})
	case errors.Is(err, service.ErrInvalidState):
		c.JSON(http.StatusConflict, gin.H{"code": "INVALID_STATE", "message": err.Error()})
	case errors.Is(err, service.ErrRateLimitExceeded):
		c.JSON(http.StatusTooManyRequests, gin.H{"code": "RATE_LIMITED", "message": "rate limit exceeded"})
	case errors.Is(err, context.Canceled):
		c.JSON(http.StatusRequestTimeout, gin.H{"code": "REQUEST_CANCELED", "message": "request was cancelled"})
	default:
		h.logger.Error("request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": "INTERNAL_ERROR", "message": "internal server error"})
	}
}

func queryInt(c *gin.Context, key string) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, errors.New("must be a non-negative integer")
	}
	return v, nil
}
