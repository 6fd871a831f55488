// Package handlers implements the fragmenter HTTP endpoints on gin.
package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// parseLimit reads ?limit=, falling back to the default for missing or
// out of range values.
func parseLimit(c *gin.Context) int {
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= maxListLimit {
			return n
		}
	}
	return defaultListLimit
}
