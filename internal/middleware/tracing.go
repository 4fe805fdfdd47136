package middleware

import (
	"log"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"matchbook/internal/metrics"
)

// RequestID attaches a unique request id to each request, honoring an
// inbound X-Request-ID when the caller supplies one.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set("request_id", requestID)
		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}

// RequestLogger logs each request with its latency and records HTTP
// metrics when a collector is provided.
func RequestLogger(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		if m != nil {
			m.HTTPRequestsInFlight.Inc()
		}

		c.Next()

		elapsed := time.Since(start)
		status := c.Writer.Status()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		if m != nil {
			m.HTTPRequestsInFlight.Dec()
			m.RecordHTTPRequest(c.Request.Method, path, statusText(status), elapsed.Seconds())
		}
		log.Printf("[http] %s %s %d %s request_id=%s",
			c.Request.Method, path, status, elapsed, c.GetString("request_id"))
	}
}

func statusText(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
