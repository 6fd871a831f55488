// Package middleware holds the gin middleware of the fragmenter HTTP API.
package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/turtacn/torsion-fragmenter/internal/infrastructure/monitoring/logging"
)

const (
	// HeaderRequestID carries the request id in both directions.
	HeaderRequestID = "X-Request-ID"

	contextKeyRequestID = "request_id"
	maxRequestIDLength  = 128
)

// RequestID accepts a caller supplied X-Request-ID or mints a UUID.  The id
// is stored on the gin context, on the request context for loggers, and
// echoed in the response header.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" || len(id) > maxRequestIDLength {
			id = uuid.NewString()
		}
		c.Set(contextKeyRequestID, id)
		c.Request = c.Request.WithContext(logging.WithRequestID(c.Request.Context(), id))
		c.Header(HeaderRequestID, id)
		c.Next()
	}
}

// GetRequestID returns the id set by RequestID, or "".
func GetRequestID(c *gin.Context) string {
	return c.GetString(contextKeyRequestID)
}
