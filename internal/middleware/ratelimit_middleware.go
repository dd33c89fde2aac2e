// internal/middleware/ratelimit_middleware.go
package middleware

import (
	"net/http"
	"time"

	"finboard-service/internal/pkg/ratelimit"
	"finboard-service/internal/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RateLimitMiddleware bounds how often a user can hit an endpoint. A redis
// failure lets the request through; limiting is protection, not a feature.
// MUST be used after Auth().
func RateLimitMiddleware(limiter *ratelimit.Limiter, endpoint string, maxRequests int64, window time.Duration, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := MustGetUserID(c)

		allowed, err := limiter.Allow(c.Request.Context(), userID, endpoint, maxRequests, window)
		if err != nil {
			logger.Warn("rate limit check failed", zap.Int64("user_id", userID), zap.Error(err))
			c.Next()
			return
		}

		if !allowed {
			response.Error(c, http.StatusTooManyRequests, "too many requests", nil)
			return
		}

		c.Next()
	}
}
