package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/torsion-fragmenter/pkg/errors"
)

// BodyLimit caps request bodies at maxBytes.  Requests that declare a
// larger Content-Length are rejected up front; others fail on read.
func BodyLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if maxBytes <= 0 {
			c.Next()
			return
		}
		if c.Request.ContentLength > maxBytes {
			Abort(c, tooLarge())
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

func tooLarge() *errors.AppError {
	return errors.New(errors.ErrCodePayloadTooLarge, errors.DefaultMessageForCode(errors.ErrCodePayloadTooLarge))
}

// BindError classifies a JSON binding failure: oversized bodies become
// COMMON_011, everything else COMMON_002.
func BindError(err error) *errors.AppError {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return tooLarge()
	}
	return errors.New(errors.ErrCodeBadRequest, "invalid request body").WithDetail(err.Error())
}
