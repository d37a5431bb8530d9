package ratelimit

import (
	"log/slog"
	"math"
	"strconv"

	apperrors "github.com/ZanzyTHEbar/quakesim/internal/errors"
	"github.com/gin-gonic/gin"
)

func retryAfterSeconds(r *Result) int {
	return int(math.Ceil(r.RetryAfter.Seconds()))
}

func reject(c *gin.Context, r *Result) {
	retry := strconv.Itoa(retryAfterSeconds(r))
	c.Header("Retry-After", retry)
	appErr := apperrors.NewRateLimitError(retry + "s")
	c.AbortWithStatusJSON(appErr.HTTPStatus, appErr.Body())
}

// IPRateLimitMiddleware applies the global per-IP limit
func (rl *RateLimiter) IPRateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()

		result, err := rl.AllowIP(c.Request.Context(), ip)
		if err != nil {
			// a broken limiter never blocks traffic
			slog.Error("Rate limit check failed", "ip", ip, "error", err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

		if !result.Allowed {
			if rl.metrics != nil {
				rl.metrics.IncrementRateLimitIPBlock()
			}
			reject(c, result)
			return
		}

		c.Next()
	}
}

// EndpointRateLimitMiddleware applies a per-IP limit to one group of routes
func (rl *RateLimiter) EndpointRateLimitMiddleware(endpoint string, limit int) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()

		result, err := rl.AllowEndpoint(c.Request.Context(), endpoint, ip, limit)
		if err != nil {
			slog.Error("Endpoint rate limit check failed", "endpoint", endpoint, "ip", ip, "error", err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Endpoint-Limit", strconv.Itoa(result.Limit))
		c.Header("X-RateLimit-Endpoint-Remaining", strconv.Itoa(result.Remaining))

		if !result.Allowed {
			if rl.metrics != nil {
				rl.metrics.IncrementRateLimitEndpoint(endpoint)
			}
			reject(c, result)
			return
		}

		c.Next()
	}
}

// SimulateRateLimit limits the request/response scoring routes.
func (rl *RateLimiter) SimulateRateLimit() gin.HandlerFunc {
	return rl.EndpointRateLimitMiddleware("simulate", rl.config.SimulateLimitPerMin)
}

// StreamRateLimit limits the streaming routes, which hold a connection open.
func (rl *RateLimiter) StreamRateLimit() gin.HandlerFunc {
	return rl.EndpointRateLimitMiddleware("stream", rl.config.StreamLimitPerMin)
}
