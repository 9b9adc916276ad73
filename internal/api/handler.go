package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"

	"maintenance-scheduler/internal/model"
	"maintenance-scheduler/internal/schedule"
	"maintenance-scheduler/internal/scheduling"
	"maintenance-scheduler/internal/store"
)

// Scheduler is the engine surface exposed over HTTP.
type Scheduler interface {
	CreateOccurrence(ctx context.Context, planID string) (*model.ScheduleOccurrence, error)
	CreateAdHocOccurrence(ctx context.Context, spec scheduling.AdHocSpec) (*model.ScheduleOccurrence, error)
	StartOccurrence(ctx context.Context, id string) (*model.ScheduleOccurrence, error)
	CompleteOccurrence(ctx context.Context, id string, actualCost *float64, observations string) (*scheduling.Completion, error)
	CancelOccurrence(ctx context.Context, id, reason string) ([]*model.ScheduleOccurrence, error)
	AllocateWorkOrderCode(ctx context.Context, id string) (string, error)
	GetOccurrence(ctx context.Context, id string) (*model.ScheduleOccurrence, error)
	ListOccurrences(ctx context.Context, f scheduling.ListFilter) ([]model.ScheduleOccurrence, error)
	PreviewPlan(ctx context.Context, planID string, n int) ([]time.Time, error)
}

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store     store.Store
	scheduler Scheduler
	webpush   *webpush.Options
}

// NewHandler creates a new API handler.
func NewHandler(s store.Store, sched Scheduler, webpushOptions *webpush.Options) *Handler {
	return &Handler{
		store:     s,
		scheduler: sched,
		webpush:   webpushOptions,
	}
}

// Healthz reports whether the database answers.
func (h *Handler) Healthz(c *gin.Context) {
	sqlDB, err := h.store.DB().DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// statusFor maps engine errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, schedule.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, schedule.ErrChainConflict), errors.Is(err, schedule.ErrSequenceCodeAssigned):
		return http.StatusConflict
	case errors.Is(err, schedule.ErrInvalidTransition),
		errors.Is(err, schedule.ErrInvalidPlanConfig),
		errors.Is(err, schedule.ErrChainExhausted),
		errors.Is(err, schedule.ErrValidation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, schedule.ErrPersistenceFailure):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func abortWithError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(statusFor(err), gin.H{"error": err.Error()})
}
