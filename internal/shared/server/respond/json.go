package respond

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Error codes returned by the ops API.
const (
	CodeNotFound    = "not_found"
	CodeInternal    = "internal"
	CodeRateLimited = "rate_limited"
	CodeUnavailable = "unavailable"
)

// JSON writes payload with status. Health and task state change from one
// call to the next, so responses are never cached.
func JSON(c *gin.Context, status int, payload any) {
	c.Header("Cache-Control", "no-store")
	c.JSON(status, payload)
}

// OK writes a 200 response.
func OK(c *gin.Context, payload any) {
	JSON(c, http.StatusOK, payload)
}

// NotFound writes a 404 error naming what was missing.
func NotFound(c *gin.Context, message string, details any) {
	Error(c, http.StatusNotFound, CodeNotFound, message, details)
}
