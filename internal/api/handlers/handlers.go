package routes

import (
	"context"
	"net/http"

	"zonewatch/internal/service/auth"
	"zonewatch/internal/service/cluster"
	"zonewatch/internal/service/dataset"
	"zonewatch/internal/service/location"
	"zonewatch/internal/service/proximity"
	"zonewatch/internal/service/visit"
	"zonewatch/internal/service/zone"
	"zonewatch/internal/worker"

	"github.com/gin-gonic/gin"
)

// Deps are the services the handlers read from. Push is nil unless positions
// are pushed by clients. Ctx bounds work started by a request that must outlive it.
type Deps struct {
	Ctx context.Context

	Store    *zone.Store
	Syncer   *dataset.Syncer
	Engine   *proximity.Engine
	Bus      *proximity.Bus
	Clusters *cluster.Engine
	Recorder *visit.Recorder
	Session  *auth.Session
	Push     *location.PushProvider
	Tracker  *worker.Tracker
}

func (d *Deps) baseContext() context.Context {
	if d.Ctx == nil {
		return context.Background()
	}
	return d.Ctx
}

func fail(c *gin.Context, status int, err error) {
	c.AbortWithStatusJSON(status, gin.H{
		"status":  "error",
		"message": err.Error(),
	})
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
		"status":  "error",
		"message": msg,
	})
}
