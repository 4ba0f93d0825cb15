package health

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// LivenessHandler reports that the process is alive. It never consults
// checks: a live but unready daemon must not be restarted.
func (c *Checker) LivenessHandler() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"timestamp": time.Now().UTC(),
		})
	}
}

// ReadinessHandler reports whether the daemon should receive traffic.
// Unready and draining both answer 503.
func (c *Checker) ReadinessHandler() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		response := c.Readiness(ctx.Request.Context())

		status := http.StatusOK
		if response.Status == StatusUnhealthy {
			status = http.StatusServiceUnavailable
		}
		ctx.JSON(status, response)
	}
}

// HealthHandler reports the detailed status including per-check
// results, version and uptime. Degraded still answers 200.
func (c *Checker) HealthHandler() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		response := c.Health(ctx.Request.Context())

		status := http.StatusOK
		if response.Status == StatusUnhealthy {
			status = http.StatusServiceUnavailable
		}
		ctx.JSON(status, response)
	}
}

// Register mounts the probe routes on the engine.
func (c *Checker) Register(r gin.IRouter) {
	r.GET("/healthz", c.HealthHandler())
	r.GET("/readyz", c.ReadinessHandler())
	r.GET("/livez", c.LivenessHandler())
}
