package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
)

// RequestRecorder receives one observation per request.
type RequestRecorder interface {
	RecordHTTPRequest(method, path string, status int, d time.Duration)
}

// Metrics records request counts and latencies.  The route template is
// used as the path label so ids in the URL do not create new series.
func Metrics(rec RequestRecorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		rec.RecordHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
