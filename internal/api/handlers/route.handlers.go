package routes

import (
	"errors"
	"net/http"

	"zonewatch/internal/logger"
	"zonewatch/internal/model"
	"zonewatch/internal/service/location"
	"zonewatch/internal/service/visit"

	"github.com/gin-gonic/gin"
)

// SetupRouteHandlers registers tracking control, position ingestion and visit endpoints
func SetupRouteHandlers(router *gin.RouterGroup, d *Deps) {
	tracking := router.Group("/tracking")
	tracking.POST("/start", d.startTracking)
	tracking.POST("/stop", d.stopTracking)

	router.GET("/proximity", d.proximityState)
	router.POST("/positions", d.pushPosition)
	router.GET("/visits", d.listVisits)
}

func (d *Deps) startTracking(c *gin.Context) {
	if d.Tracker == nil {
		fail(c, http.StatusServiceUnavailable, errors.New("tracking is not configured"))
		return
	}
	// the tracker outlives the request
	d.Tracker.Start(d.baseContext())
	logger.L().Info("tracking_start_requested", "remote", c.ClientIP())
	c.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"message": "Tracking started",
	})
}

func (d *Deps) stopTracking(c *gin.Context) {
	if d.Tracker == nil {
		fail(c, http.StatusServiceUnavailable, errors.New("tracking is not configured"))
		return
	}
	d.Tracker.Stop()
	logger.L().Info("tracking_stop_requested", "remote", c.ClientIP())
	c.JSON(http.StatusOK, gin.H{
		"status":    "success",
		"message":   "Tracking stopped",
		"proximity": d.Engine.State(),
	})
}

func (d *Deps) proximityState(c *gin.Context) {
	c.JSON(http.StatusOK, d.Engine.State())
}

func (d *Deps) pushPosition(c *gin.Context) {
	if d.Push == nil {
		fail(c, http.StatusConflict, errors.New("positions are not accepted in this location mode"))
		return
	}

	var fix model.PositionFix
	if err := c.ShouldBindJSON(&fix); err != nil {
		badRequest(c, err.Error())
		return
	}
	if !fix.Valid() {
		badRequest(c, "latitude/longitude out of range")
		return
	}

	switch err := d.Push.Push(fix); {
	case errors.Is(err, location.ErrNotStarted):
		fail(c, http.StatusConflict, err)
	case errors.Is(err, location.ErrBusy):
		fail(c, http.StatusTooManyRequests, err)
	case err != nil:
		fail(c, http.StatusInternalServerError, err)
	default:
		c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
	}
}

func (d *Deps) listVisits(c *gin.Context) {
	visits, err := d.Recorder.ListVisits(c.Request.Context())
	if err != nil {
		var rej *visit.RejectedError
		if errors.As(err, &rej) {
			fail(c, rej.Status, err)
			return
		}
		fail(c, http.StatusBadGateway, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": visits})
}
