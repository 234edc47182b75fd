package routes

import (
	"errors"
	"net/http"
	"strconv"

	"zonewatch/internal/config"
	"zonewatch/internal/model"
	"zonewatch/internal/service/cluster"
	"zonewatch/internal/service/dataset"
	"zonewatch/internal/util"

	"github.com/gin-gonic/gin"
)

// viewportPadding widens the clustered area beyond the visible one
const viewportPadding = 1.5

// SetupZoneHandlers registers dataset, search and clustering endpoints
func SetupZoneHandlers(router *gin.RouterGroup, d *Deps) {
	zones := router.Group("/zones")
	zones.GET("", d.listZones)
	zones.GET("/search", d.searchZones)
	zones.GET("/nearby", d.nearbyZones)
	zones.GET("/:id", d.getZone)

	router.GET("/clusters", d.clusters)

	router.POST("/sync", d.sync)
	router.POST("/sync/refresh", d.refresh)
}

func (d *Deps) listZones(c *gin.Context) {
	all := d.Store.All()

	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	if offset < 0 {
		offset = 0
	}
	if offset > len(all) {
		offset = len(all)
	}
	page := all[offset:]
	if limit > 0 && limit < len(page) {
		page = page[:limit]
	}

	c.JSON(http.StatusOK, gin.H{
		"data": model.ZonesToRecords(page),
		"meta": gin.H{"total": len(all), "offset": offset, "count": len(page)},
	})
}

func (d *Deps) getZone(c *gin.Context) {
	z, ok := d.Store.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"status": "error", "message": "zone not found"})
		return
	}
	c.JSON(http.StatusOK, z.ToRecord())
}

func (d *Deps) searchZones(c *gin.Context) {
	found := d.Store.Search(c.Query("department"), c.Query("location"))
	c.JSON(http.StatusOK, gin.H{"data": model.ZonesToRecords(found), "count": len(found)})
}

func (d *Deps) nearbyZones(c *gin.Context) {
	lat, errLat := strconv.ParseFloat(c.Query("lat"), 64)
	lon, errLon := strconv.ParseFloat(c.Query("lon"), 64)
	if errLat != nil || errLon != nil || !util.ValidLatLng(lat, lon) {
		badRequest(c, "lat and lon are required")
		return
	}
	radius := config.ProximityRadiusMeters
	if r := c.Query("radius"); r != "" {
		v, err := strconv.ParseFloat(r, 64)
		if err != nil || v <= 0 {
			badRequest(c, "invalid radius")
			return
		}
		radius = v
	}

	type hit struct {
		model.ZoneRecord
		DistanceMeters float64 `json:"distance_m"`
	}
	var hits []hit
	for _, z := range d.Store.Nearby(lat, lon, radius) {
		dist := util.HaversineDistance(lat, lon, z.Lat, z.Lon)
		if dist <= radius {
			hits = append(hits, hit{ZoneRecord: z.ToRecord(), DistanceMeters: dist})
		}
	}
	c.JSON(http.StatusOK, gin.H{"data": hits, "count": len(hits)})
}

func (d *Deps) clusters(c *gin.Context) {
	var v cluster.Viewport
	if err := c.ShouldBindQuery(&v); err != nil {
		badRequest(c, err.Error())
		return
	}
	if !v.Valid() || v.LatDelta == 0 || v.LonDelta == 0 {
		badRequest(c, "lat, lon, lat_delta and lon_delta are required")
		return
	}

	visible := d.Store.InBounds(v.Padded(viewportPadding).Bound())
	clusters := d.Clusters.Cluster(visible, v)
	size := cluster.MarkerSize(v.LatDelta)

	if c.Query("format") == "geojson" {
		c.JSON(http.StatusOK, cluster.FeatureCollection(clusters, size))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"radius":      d.Clusters.Radius(v),
		"marker_size": size,
		"clusters":    clusters,
	})
}

func (d *Deps) sync(c *gin.Context) {
	out, err := d.Syncer.Sync(c.Request.Context())
	if err != nil {
		fail(c, syncStatus(err), err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (d *Deps) refresh(c *gin.Context) {
	out, err := d.Syncer.Refresh(c.Request.Context())
	if err != nil {
		fail(c, syncStatus(err), err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func syncStatus(err error) int {
	if errors.Is(err, dataset.ErrMalformed) || errors.Is(err, dataset.ErrNetwork) {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
