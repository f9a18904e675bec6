// Package internalapi holds the token-protected endpoints used by the scheduler and by the
// purchasing back office.
package internalapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/purchasing_backend/config"
	"github.com/mmdatafocus/purchasing_backend/middlewares"
	"github.com/mmdatafocus/purchasing_backend/models"
	"github.com/mmdatafocus/purchasing_backend/utils"
	"github.com/mmdatafocus/purchasing_backend/workflow"
	"github.com/sirupsen/logrus"
)

type Reconciler interface {
	Run(ctx context.Context) (*workflow.ReconciliationResult, error)
}

type ScheduleStore interface {
	SetScheduledDate(ctx context.Context, installmentId int, date time.Time) (*models.DeliveryInstallment, error)
	ClearScheduledDate(ctx context.Context, installmentId int) (*models.DeliveryInstallment, error)
}

type Handlers struct {
	Reconciler Reconciler
	Schedules  ScheduleStore
	// optional; nil answers 404 on the last-result endpoint
	Results workflow.ResultCache
	Logger  *logrus.Logger
}

type scheduleRequest struct {
	Date string `json:"date" binding:"required"`
}

func (h *Handlers) logger() *logrus.Logger {
	if h.Logger == nil {
		return config.GetLogger()
	}
	return h.Logger
}

// RegisterRoutes mounts the endpoints under /internal behind the job token.
func (h *Handlers) RegisterRoutes(r gin.IRouter, jobToken string) {
	g := r.Group("/internal", middlewares.JobTokenMiddleware(jobToken))
	g.POST("/jobs/delivery-reconciliation", h.RunReconciliation)
	g.GET("/jobs/delivery-reconciliation/last", h.LastReconciliation)
	g.POST("/pubsub/delivery-reconciliation", h.PubSubPush)
	g.PUT("/delivery-installments/:id/schedule", h.SetSchedule)
	g.DELETE("/delivery-installments/:id/schedule", h.ClearSchedule)
}

// RunReconciliation runs the job synchronously; ?format=xlsx returns the result as a workbook.
func (h *Handlers) RunReconciliation(c *gin.Context) {
	result, err := h.Reconciler.Run(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if c.Query("format") == "xlsx" {
		c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		c.Header("Content-Disposition", "attachment; filename=delivery-reconciliation-"+result.RunDate+".xlsx")
		c.Status(http.StatusOK)
		if err := workflow.WriteReconciliationReport(result, c.Writer); err != nil {
			config.LogError(h.logger(), "handlers.go", "RunReconciliation", "WriteReconciliationReport", result.RunId, err)
		}
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handlers) LastReconciliation(c *gin.Context) {
	if h.Results == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no reconciliation result"})
		return
	}
	result, err := h.Results.Last(c.Request.Context())
	if err != nil {
		config.LogError(h.logger(), "handlers.go", "LastReconciliation", "Results.Last", nil, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	if result == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no reconciliation result"})
		return
	}
	c.JSON(http.StatusOK, result)
}

func installmentId(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid installment id"})
		return 0, false
	}
	return id, true
}

func (h *Handlers) SetSchedule(c *gin.Context) {
	id, ok := installmentId(c)
	if !ok {
		return
	}
	var req scheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	date, err := utils.ParseDate(req.Date)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
		return
	}
	inst, err := h.Schedules.SetScheduledDate(c.Request.Context(), id, date)
	if err != nil {
		h.writeScheduleError(c, id, err)
		return
	}
	c.JSON(http.StatusOK, inst)
}

func (h *Handlers) ClearSchedule(c *gin.Context) {
	id, ok := installmentId(c)
	if !ok {
		return
	}
	inst, err := h.Schedules.ClearScheduledDate(c.Request.Context(), id)
	if err != nil {
		h.writeScheduleError(c, id, err)
		return
	}
	c.JSON(http.StatusOK, inst)
}

func (h *Handlers) writeScheduleError(c *gin.Context, id int, err error) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		config.LogError(h.logger(), "handlers.go", "writeScheduleError", "schedule update", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
