package util

import (
	"math"

	"github.com/golang/geo/s1"
	"github.com/golang/geo/s2"
)

const EarthRadiusMeters = 6371000.0

// ValidLatLng reports whether lat/lng form a finite WGS-84 coordinate pair
func ValidLatLng(lat, lng float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lng) || math.IsInf(lat, 0) || math.IsInf(lng, 0) {
		return false
	}
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}

func MoveToward(startLat, startLng, endLat, endLng, distanceMeters float64) [2]float64 {
	startPoint := s2.PointFromLatLng(s2.LatLngFromDegrees(startLat, startLng))
	endPoint := s2.PointFromLatLng(s2.LatLngFromDegrees(endLat, endLng))

	totalDistanceMeters := angleBetween(startPoint, endPoint).Radians() * EarthRadiusMeters

	// If requested distance exceeds total distance, return end point
	if distanceMeters >= totalDistanceMeters {
		return [2]float64{endLat, endLng}
	}

	// Interpolate on the great circle path
	newPoint := s2.Interpolate(distanceMeters/totalDistanceMeters, startPoint, endPoint)
	newLatLng := s2.LatLngFromPoint(newPoint)

	return [2]float64{newLatLng.Lat.Degrees(), newLatLng.Lng.Degrees()}
}

// HaversineDistance returns the great-circle distance in meters
func HaversineDistance(lat1, lng1, lat2, lng2 float64) float64 {
	point1 := s2.PointFromLatLng(s2.LatLngFromDegrees(lat1, lng1))
	point2 := s2.PointFromLatLng(s2.LatLngFromDegrees(lat2, lng2))

	return angleBetween(point1, point2).Radians() * EarthRadiusMeters
}

// MetersToDegrees converts a ground distance to latitude and longitude spans at the given latitude.
// ok is false when the longitude span is unbounded (near the poles).
func MetersToDegrees(lat, meters float64) (latDeg, lngDeg float64, ok bool) {
	latDeg = meters / EarthRadiusMeters * 180 / math.Pi
	cos := math.Cos(lat * math.Pi / 180)
	if cos < 0.01 {
		return latDeg, 360, false
	}
	return latDeg, latDeg / cos, true
}

func angleBetween(a, b s2.Point) s1.Angle {
	return a.Distance(b)
}
