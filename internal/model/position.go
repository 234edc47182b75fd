package model

import (
	"time"

	"zonewatch/internal/util"
)

// PositionFix is a single location sample from the device
type PositionFix struct {
	Lat            float64   `json:"latitude"`
	Lon            float64   `json:"longitude"`
	AccuracyMeters float64   `json:"accuracy"`
	Timestamp      time.Time `json:"timestamp"`
}

func (f PositionFix) Valid() bool {
	return util.ValidLatLng(f.Lat, f.Lon)
}

// VisitReport is a completed stay inside a zone, ready to be submitted
type VisitReport struct {
	ZoneID          string
	DwellTimeMillis int64
	UserID          *string
}
