package api

import (
	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"maintenance-scheduler/config"
	"maintenance-scheduler/internal/mw"
	"maintenance-scheduler/internal/store"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(s store.Store, sched Scheduler, webpushOptions *webpush.Options, cfg config.ServerConfig) *gin.Engine {
	r := gin.Default()
	handler := NewHandler(s, sched, webpushOptions)

	r.GET("/healthz", handler.Healthz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	api.Use(mw.RateLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst))
	{
		api.POST("/plans/:plan_id/occurrences", handler.CreatePlanOccurrence)
		api.GET("/plans/:plan_id/preview", handler.PreviewPlan)

		api.POST("/occurrences", handler.CreateAdHocOccurrence)
		api.GET("/occurrences", handler.ListOccurrences)
		api.GET("/occurrences/:id", handler.GetOccurrence)
		api.POST("/occurrences/:id/start", handler.StartOccurrence)
		api.POST("/occurrences/:id/complete", handler.CompleteOccurrence)
		api.POST("/occurrences/:id/cancel", handler.CancelOccurrence)
		api.POST("/occurrences/:id/work-order-code", handler.AllocateWorkOrderCode)

		api.GET("/subscriptions", handler.GetSubscription)
		api.PUT("/subscriptions", handler.PutSubscription)
		api.DELETE("/subscriptions", handler.DeleteSubscription)
		api.GET("/vapid_public_key", handler.GetVAPIDPublicKey)
	}

	return r
}
