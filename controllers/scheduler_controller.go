package controllers

import (
	"errors"
	"net/http"

	"agromarket_backend/scheduler"
	"agromarket_backend/services/predictor"

	"github.com/gin-gonic/gin"
)

// SchedulerController exposes scheduler status and manual job triggers
type SchedulerController struct {
	scheduler *scheduler.Scheduler
	cache     *predictor.Cache
}

// NewSchedulerController creates a new scheduler controller
func NewSchedulerController(s *scheduler.Scheduler, cache *predictor.Cache) *SchedulerController {
	return &SchedulerController{scheduler: s, cache: cache}
}

// GetStatus returns a snapshot of all job records and the model cache state
// GET /api/v1/scheduler/status
func (ctrl *SchedulerController) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"jobs":  ctrl.scheduler.Status(),
		"model": ctrl.cache.Info(),
	})
}

// TriggerScrape runs the data collection job out-of-band
// POST /api/v1/scheduler/trigger/scrape
func (ctrl *SchedulerController) TriggerScrape(c *gin.Context) {
	ctrl.trigger(c, scheduler.JobDataCollection)
}

// TriggerRetrain runs the model retraining job out-of-band
// POST /api/v1/scheduler/trigger/retrain
func (ctrl *SchedulerController) TriggerRetrain(c *gin.Context) {
	ctrl.trigger(c, scheduler.JobRetraining)
}

// TriggerEvaluate runs the recommendation evaluation sweep out-of-band
// POST /api/v1/scheduler/trigger/evaluate
func (ctrl *SchedulerController) TriggerEvaluate(c *gin.Context) {
	ctrl.trigger(c, scheduler.JobEvaluation)
}

// ResetModel clears the model cache; the next read reloads from the store
// POST /api/v1/scheduler/model/reset
func (ctrl *SchedulerController) ResetModel(c *gin.Context) {
	ctrl.cache.Reset()
	c.JSON(http.StatusOK, gin.H{
		"status": "reset",
		"model":  ctrl.cache.Info(),
	})
}

// trigger runs the named job synchronously and maps scheduler errors onto
// HTTP status codes: Busy is retryable (409), unknown jobs are 404, and a
// failed run reports its cause (502).
func (ctrl *SchedulerController) trigger(c *gin.Context, name string) {
	err := ctrl.scheduler.TriggerNow(name)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{
			"job":    name,
			"status": "completed",
		})
	case errors.Is(err, scheduler.ErrJobBusy):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "busy",
			"message": "Job is already running, retry later",
			"job":     name,
		})
	case errors.Is(err, scheduler.ErrUnknownJob):
		c.JSON(http.StatusNotFound, gin.H{
			"error": "unknown job",
			"job":   name,
		})
	case errors.Is(err, scheduler.ErrStopped):
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "scheduler stopped",
			"job":   name,
		})
	default:
		c.JSON(http.StatusBadGateway, gin.H{
			"job":    name,
			"status": "failed",
			"error":  err.Error(),
		})
	}
}
