package api

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"dagger/internal/core/errors"
	"dagger/internal/shared/observability"

	"github.com/gin-gonic/gin"
)

func (s *Server) logMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery
		c.Next()

		attrs := []any{
			"status", c.Writer.Status(),
			"method", c.Request.Method,
			"path", path,
			"query", query,
			"ip", c.ClientIP(),
			"duration", time.Since(start),
		}
		if last := c.Errors.Last(); last != nil {
			attrs = append(attrs, "error", last.Err)
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			s.logger.Error("api request", attrs...)
			return
		}
		s.logger.Debug("api request", attrs...)
	}
}

func metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		observability.HTTPRequestsTotal.WithLabelValues(route, strconv.Itoa(c.Writer.Status())).Inc()
	}
}

// rateLimitMiddleware applies one token bucket per client IP.
func (s *Server) rateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.limiters == nil {
			c.Next()
			return
		}
		ok, delay := s.limiters.Get(c.ClientIP()).Allow(1)
		if !ok {
			retryAfter := int(math.Ceil(delay.Seconds()))
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			err := errors.New(errors.CodeConflict, "rate limit exceeded")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, errorBody(err))
			return
		}
		c.Next()
	}
}
