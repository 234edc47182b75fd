package cluster

import (
	"math"

	"github.com/paulmach/orb"
)

// Viewport is a map region: a center and the visible span in degrees
type Viewport struct {
	CenterLat float64 `json:"latitude" form:"lat"`
	CenterLon float64 `json:"longitude" form:"lon"`
	LatDelta  float64 `json:"latitudeDelta" form:"lat_delta"`
	LonDelta  float64 `json:"longitudeDelta" form:"lon_delta"`
}

// Bound returns the visible box, center ± delta/2 on each axis
func (v Viewport) Bound() orb.Bound {
	return orb.Bound{
		Min: orb.Point{v.CenterLon - v.LonDelta/2, v.CenterLat - v.LatDelta/2},
		Max: orb.Point{v.CenterLon + v.LonDelta/2, v.CenterLat + v.LatDelta/2},
	}
}

// Padded grows the viewport by factor on each axis so clusters straddling the edge stay stable while panning
func (v Viewport) Padded(factor float64) Viewport {
	v.LatDelta *= factor
	v.LonDelta *= factor
	return v
}

func (v Viewport) Valid() bool {
	for _, f := range []float64{v.CenterLat, v.CenterLon, v.LatDelta, v.LonDelta} {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return v.LatDelta >= 0 && v.LonDelta >= 0
}

const (
	baseMarkerSize = 30.0
	minMarkerSize  = baseMarkerSize / 2
	maxMarkerSize  = baseMarkerSize * 2
)

// MarkerSize is the on-screen zone marker size in pixels for a span of delta degrees:
// 30/√delta clamped to [15, 60]
func MarkerSize(delta float64) float64 {
	if delta <= 0 || math.IsNaN(delta) {
		return maxMarkerSize
	}
	return math.Max(minMarkerSize, math.Min(maxMarkerSize, baseMarkerSize/math.Sqrt(delta)))
}
