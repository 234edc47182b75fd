package api

import (
	routes "zonewatch/internal/api/handlers"

	"github.com/gin-gonic/gin"
)

// SetupRouter initializes all application routes
func SetupRouter(r *gin.Engine, deps *routes.Deps) {
	// API group
	api := r.Group("/api")

	// Setup main handlers
	routes.SetupMainHandlers(r.Group(""), deps)
	routes.SetupEventHandlers(r.Group(""), deps)

	routes.SetupZoneHandlers(api, deps)
	routes.SetupRouteHandlers(api, deps)
	if deps.Session != nil {
		routes.SetupSessionHandlers(api, deps)
	}
}
