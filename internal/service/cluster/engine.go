// Package cluster groups zones into display clusters for a map viewport.
package cluster

import (
	"math"
	"sort"
	"time"

	"zonewatch/internal/config"
	"zonewatch/internal/metrics"
	"zonewatch/internal/model"

	"github.com/dhconnelly/rtreego"
)

// Cluster is a group of zones anchored at its first member
type Cluster struct {
	Lat     float64  `json:"latitude"`
	Lon     float64  `json:"longitude"`
	ZoneIDs []string `json:"zone_ids"`
}

func (c Cluster) Count() int { return len(c.ZoneIDs) }

// Engine is stateless apart from its merge constant
type Engine struct {
	K float64
}

func NewEngine(k float64) *Engine {
	if k <= 0 {
		k = config.DefaultClusterK
	}
	return &Engine{K: k}
}

// Radius is the merge distance in degrees for the viewport
func (e *Engine) Radius(v Viewport) float64 {
	return e.K * v.LatDelta * v.LonDelta
}

type member struct {
	idx   int
	point rtreego.Point
}

func (m *member) Bounds() rtreego.Rect {
	return m.point.ToRect(1e-9)
}

// Cluster runs one greedy pass over zones sorted by id. Each unassigned zone starts a
// cluster at its own position and absorbs every unassigned zone within the radius,
// measured as planar distance in degrees.
func (e *Engine) Cluster(zones []model.Zone, v Viewport) []Cluster {
	start := time.Now()
	defer func() {
		metrics.ClusterDurationMs.Observe(float64(time.Since(start).Milliseconds()))
	}()

	if len(zones) == 0 {
		return []Cluster{}
	}

	sorted := make([]model.Zone, len(zones))
	copy(sorted, zones)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	items := make([]rtreego.Spatial, len(sorted))
	for i, z := range sorted {
		items[i] = &member{idx: i, point: rtreego.Point{z.Lon, z.Lat}}
	}
	tree := rtreego.NewTree(2, 25, 50, items...)

	radius := e.Radius(v)
	side := math.Max(radius, 1e-9)

	assigned := make([]bool, len(sorted))
	clusters := make([]Cluster, 0)

	for i, anchor := range sorted {
		if assigned[i] {
			continue
		}
		assigned[i] = true
		c := Cluster{Lat: anchor.Lat, Lon: anchor.Lon, ZoneIDs: []string{anchor.ID}}

		rect, err := rtreego.NewRect(rtreego.Point{anchor.Lon - side, anchor.Lat - side}, []float64{2 * side, 2 * side})
		if err != nil {
			clusters = append(clusters, c)
			continue
		}

		var absorbed []int
		for _, hit := range tree.SearchIntersect(rect) {
			j := hit.(*member).idx
			if assigned[j] {
				continue
			}
			other := sorted[j]
			if math.Hypot(other.Lat-anchor.Lat, other.Lon-anchor.Lon) <= radius {
				absorbed = append(absorbed, j)
			}
		}
		sort.Ints(absorbed)
		for _, j := range absorbed {
			assigned[j] = true
			c.ZoneIDs = append(c.ZoneIDs, sorted[j].ID)
		}
		clusters = append(clusters, c)
	}

	return clusters
}
