package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/ureshii/partner/internal/api/middleware"
	"github.com/ureshii/partner/internal/domain"
	"github.com/ureshii/partner/internal/service"
)

// JobHandler handles job creation and read endpoints.
type JobHandler struct {
	dispatcher *service.Dispatcher
}

// NewJobHandler creates a new job handler.
func NewJobHandler(dispatcher *service.Dispatcher) *JobHandler {
	return &JobHandler{dispatcher: dispatcher}
}

// CreateJobRequest is the POST /jobs payload.
type CreateJobRequest struct {
	Prompt  string            `json:"prompt"`
	Options domain.JobOptions `json:"options"`
}

// CreateJob handles POST /api/v1/jobs. Sync mode responds with the
// terminal job; queue mode responds with the pending job immediately.
func (h *JobHandler) CreateJob(c *gin.Context) {
	var req CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request: " + err.Error(),
		})
		return
	}

	job, err := h.dispatcher.Submit(c.Request.Context(), middleware.Owner(c), req.Prompt, req.Options)
	if err != nil {
		status, msg := submitErrorStatus(err)
		c.JSON(status, gin.H{"error": msg})
		return
	}

	c.JSON(http.StatusCreated, job)
}

// GetJob handles GET /api/v1/jobs/:id.
func (h *JobHandler) GetJob(c *gin.Context) {
	job, err := h.dispatcher.GetJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load job: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, job)
}

// GetJobResult handles GET /api/v1/jobs/:id/result. 409 until the job
// completes.
func (h *JobHandler) GetJobResult(c *gin.Context) {
	id := c.Param("id")
	result, err := h.dispatcher.GetResult(c.Request.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrJobNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
		case errors.Is(err, domain.ErrJobNotCompleted):
			c.JSON(http.StatusConflict, gin.H{"error": "Job not completed: " + err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load result: " + err.Error()})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"job_id": id, "result": result})
}

// ListJobs handles GET /api/v1/jobs?skip=&limit= for the caller's own
// jobs, newest first.
func (h *JobHandler) ListJobs(c *gin.Context) {
	skip, _ := strconv.Atoi(c.DefaultQuery("skip", "0"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	jobs, err := h.dispatcher.ListJobs(c.Request.Context(), middleware.Owner(c), skip, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list jobs: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"jobs":  jobs,
		"skip":  skip,
		"limit": limit,
		"count": len(jobs),
	})
}

// submitErrorStatus maps dispatcher errors to HTTP statuses. Validation
// failures never created a job; queue failures mean the job exists but
// could not be dispatched.
func submitErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrPromptTooLarge):
		return http.StatusRequestEntityTooLarge, err.Error()
	case errors.Is(err, domain.ErrEmptyPrompt),
		errors.Is(err, domain.ErrUnknownPipeline),
		errors.Is(err, domain.ErrInvalidMode),
		errors.Is(err, domain.ErrModelNotAllowed):
		return http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, domain.ErrQueueUnavailable):
		return http.StatusServiceUnavailable, err.Error()
	default:
		return http.StatusInternalServerError, "Job submission failed: " + err.Error()
	}
}
