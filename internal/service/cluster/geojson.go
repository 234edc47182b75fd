package cluster

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// FeatureCollection exports clusters as GeoJSON points carrying their member ids and count
func FeatureCollection(clusters []Cluster, markerSize float64) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, c := range clusters {
		f := geojson.NewFeature(orb.Point{c.Lon, c.Lat})
		f.Properties["count"] = c.Count()
		f.Properties["zone_ids"] = c.ZoneIDs
		f.Properties["marker_size"] = markerSize
		fc.Append(f)
	}
	return fc
}
