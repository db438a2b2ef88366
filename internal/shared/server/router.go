package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"hsmt-backend/internal/services/health"
	"hsmt-backend/internal/shared/config"
	"hsmt-backend/internal/shared/metrics"
	"hsmt-backend/internal/shared/server/middleware"
	"hsmt-backend/internal/shared/server/respond"
	"hsmt-backend/internal/tasks"
)

// RouterDeps are the collaborators exposed on the ops API.
type RouterDeps struct {
	Config config.Config
	Health *health.Service
	Tasks  *tasks.Pool
}

// NewRouter constructs the Gin engine serving health, metrics and task status.
func NewRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
	)

	hs := deps.Health
	if hs == nil {
		hs = health.NewService()
	}

	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api/v1")
	api.GET("/health", func(c *gin.Context) {
		checks, ok := hs.Status(c.Request.Context())
		status := http.StatusOK
		if !ok {
			status = http.StatusServiceUnavailable
		}
		respond.JSON(c, status, gin.H{"ok": ok, "stage": deps.Config.Stage, "checks": checks})
	})

	polling := api.Group("/tasks", middleware.RateLimit(middleware.RateLimitConfig{
		Rules: map[string]middleware.RateLimitRule{
			"DEFAULT": {Rate: 5, Burst: 20},
		},
	}))
	polling.GET("/:id", func(c *gin.Context) {
		if deps.Tasks == nil {
			respond.NotFound(c, "task pool disabled", nil)
			return
		}
		id := c.Param("id")
		info, ok := deps.Tasks.Status(id)
		if !ok {
			respond.NotFound(c, "task not found", gin.H{"id": id})
			return
		}
		c.Set("taskId", id)
		respond.OK(c, taskView(info))
	})

	return r
}

func taskView(info tasks.Info) gin.H {
	out := gin.H{
		"id":      info.ID,
		"name":    info.Name,
		"state":   info.State,
		"meta":    info.Meta,
		"created": info.Created,
		"updated": info.Updated,
	}
	if info.Err != "" {
		out["error"] = info.Err
	}
	return out
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
