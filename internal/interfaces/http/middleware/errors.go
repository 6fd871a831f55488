package middleware

import (
	"fmt"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/torsion-fragmenter/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/torsion-fragmenter/internal/interfaces/dto"
	"github.com/turtacn/torsion-fragmenter/pkg/errors"
	types "github.com/turtacn/torsion-fragmenter/pkg/types/fragment"
)

// Abort writes err as a JSON error body with the status of its code and
// stops the handler chain.
func Abort(c *gin.Context, err error) {
	body := dto.ErrorBody(err, GetRequestID(c))
	_ = c.Error(err)
	c.AbortWithStatusJSON(errors.HTTPStatusForCode(errors.ErrorCode(body.Code)), types.ErrorResponse{Error: body})
}

// Recovery turns a panic into a 500 response.
func Recovery(logger logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic recovered",
					logging.String("panic", fmt.Sprint(r)),
					logging.String("path", c.Request.URL.Path),
					logging.String("request_id", GetRequestID(c)),
					logging.String("stack", string(debug.Stack())),
				)
				Abort(c, errors.Internal(fmt.Sprintf("panic: %v", r)))
			}
		}()
		c.Next()
	}
}
