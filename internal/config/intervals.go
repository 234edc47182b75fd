package config

import "time"

// Proximity
const (
	// ProximityRadiusMeters is the inclusive distance at which a fix counts as inside a zone
	ProximityRadiusMeters = 100.0
)

// Dataset sync
const (
	// DefaultPageSize matches the page size the dataset provider serves by default
	DefaultPageSize = 50

	// ZoneCacheKey is the blob key holding the serialized zone list
	ZoneCacheKey = "radarData"
)

// Clustering
const (
	// DefaultClusterK scales latDelta*lonDelta into a merge radius in degrees
	DefaultClusterK = 0.5
)

// Position stream defaults
const (
	PositionMinInterval       = 1 * time.Second
	PositionMinDistanceMeters = 1.0
)

// Worker intervals
const (
	// TrackingRestartDelay is how long the tracking worker waits before restarting a failed provider
	TrackingRestartDelay = 5 * time.Second

	// MemoryStatsInterval defines how often runtime memory usage is logged
	MemoryStatsInterval = 30 * time.Second
)
