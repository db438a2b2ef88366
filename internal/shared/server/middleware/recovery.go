package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"hsmt-backend/internal/shared/server/respond"
	"hsmt-backend/internal/shared/telemetry"
)

// Recovery turns a handler panic into a 500 and logs it with the request
// id and, on task routes, the task being looked up.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			fields := map[string]any{
				"request_id": RequestIDFromContext(c),
				"error":      rec,
				"stack":      string(debug.Stack()),
				"method":     c.Request.Method,
				"path":       c.Request.URL.Path,
				"route":      c.FullPath(),
			}
			if taskID := c.GetString("taskId"); taskID != "" {
				fields["task_id"] = taskID
			}
			telemetry.Error("panic", fields)
			respond.Error(c, http.StatusInternalServerError, respond.CodeInternal, "worker ops server error", nil)
		}()
		c.Next()
	}
}
