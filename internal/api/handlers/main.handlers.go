package routes

import (
	"net/http"

	"zonewatch/internal/metrics"

	"github.com/gin-gonic/gin"
)

// SetupMainHandlers registers the status and metrics endpoints
func SetupMainHandlers(router *gin.RouterGroup, d *Deps) {
	router.GET("/", func(c *gin.Context) {
		status := gin.H{
			"zones":          d.Store.Count(),
			"total_expected": d.Store.TotalExpected(),
			"proximity":      d.Engine.State(),
		}
		if ts := d.Store.LastSyncedAt(); !ts.IsZero() {
			status["last_synced_at"] = ts
		}
		if d.Tracker != nil {
			status["tracking"] = d.Tracker.Running()
		}
		if d.Session != nil {
			status["signed_in"] = d.Session.Token() != ""
		}
		c.JSON(http.StatusOK, status)
	})

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/metrics", gin.WrapH(metrics.Handler()))
}
