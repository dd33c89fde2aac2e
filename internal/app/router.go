// internal/app/router.go
package app

import (
	"time"

	planHandler "finboard-service/internal/handlers/plan"
	subscriptionHandler "finboard-service/internal/handlers/subscription"
	"finboard-service/internal/middleware"
	"finboard-service/internal/pkg/ratelimit"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Handlers struct {
	PlanHandler         *planHandler.PlanHandler
	SubscriptionHandler *subscriptionHandler.SubscriptionHandler
	AuthMiddleware      *middleware.AuthMiddleware
	Limiter             *ratelimit.Limiter
}

func SetupRouter(r *gin.Engine, logger *zap.Logger, h *Handlers) {
	api := r.Group("/api/v1")

	// ==================== Health Check ====================
	api.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok", "version": "1.0.0"})
	})

	// ==================== Plans ====================
	plans := api.Group("/plans")
	{
		// Read-only catalog; plan administration lives elsewhere
		plans.GET("", h.PlanHandler.ListPlans)
		plans.GET("/:id", h.PlanHandler.GetPlan)
	}

	// ==================== Subscriptions ====================
	subscriptions := api.Group("/subscriptions")
	subscriptions.Use(h.AuthMiddleware.Auth())
	{
		subscriptions.GET("/me", h.SubscriptionHandler.GetCurrentSubscription)
		subscriptions.GET("/history", h.SubscriptionHandler.GetHistory)
		subscriptions.POST("",
			middleware.RateLimitMiddleware(h.Limiter, "subscriptions:create", 10, time.Minute, logger),
			h.SubscriptionHandler.CreateSubscription,
		)
		subscriptions.PATCH("/cancel", h.SubscriptionHandler.CancelSubscription)
	}
}
