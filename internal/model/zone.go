package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"zonewatch/internal/util"

	"github.com/paulmach/orb"
)

// ZoneAttributes are descriptive fields carried through unmodified
type ZoneAttributes struct {
	Department    string
	Location      string
	Direction     string
	Type          string
	SpeedLimitKmh *int
	Equipment     string
	InstalledAt   string
}

// Zone in-memory model
type Zone struct {
	ID         string
	Lat        float64
	Lon        float64
	Attributes ZoneAttributes
}

// Valid reports whether the zone can be stored
func (z Zone) Valid() bool {
	return z.ID != "" && util.ValidLatLng(z.Lat, z.Lon)
}

// Point returns the zone position in orb order [lon, lat]
func (z Zone) Point() orb.Point {
	return orb.Point{z.Lon, z.Lat}
}

// ZoneRecord is the wire shape of a zone as served by the dataset provider and stored in the cache blob
type ZoneRecord struct {
	ID              FlexibleID `json:"id"`
	Latitude        *float64   `json:"latitude"`
	Longitude       *float64   `json:"longitude"`
	Departement     string     `json:"departement"`
	Emplacement     string     `json:"emplacement"`
	Direction       string     `json:"direction"`
	Type            string     `json:"type"`
	VitesseLegers   *int       `json:"vitesse_vehicules_legers_kmh"`
	Equipement      string     `json:"equipement"`
	DateInstalation string     `json:"date_installation"`
}

// ZoneFromRecord creates a Zone from its wire record.
// Missing coordinates become NaN so the store rejects the zone.
func ZoneFromRecord(r *ZoneRecord) Zone {
	lat, lon := math.NaN(), math.NaN()
	if r.Latitude != nil {
		lat = *r.Latitude
	}
	if r.Longitude != nil {
		lon = *r.Longitude
	}
	return Zone{
		ID:  string(r.ID),
		Lat: lat,
		Lon: lon,
		Attributes: ZoneAttributes{
			Department:    r.Departement,
			Location:      r.Emplacement,
			Direction:     r.Direction,
			Type:          r.Type,
			SpeedLimitKmh: r.VitesseLegers,
			Equipment:     r.Equipement,
			InstalledAt:   r.DateInstalation,
		},
	}
}

// ToRecord converts the zone back to its wire record
func (z Zone) ToRecord() ZoneRecord {
	r := ZoneRecord{
		ID:              FlexibleID(z.ID),
		Departement:     z.Attributes.Department,
		Emplacement:     z.Attributes.Location,
		Direction:       z.Attributes.Direction,
		Type:            z.Attributes.Type,
		VitesseLegers:   z.Attributes.SpeedLimitKmh,
		Equipement:      z.Attributes.Equipment,
		DateInstalation: z.Attributes.InstalledAt,
	}
	if !math.IsNaN(z.Lat) {
		lat := z.Lat
		r.Latitude = &lat
	}
	if !math.IsNaN(z.Lon) {
		lon := z.Lon
		r.Longitude = &lon
	}
	return r
}

// ZonesFromRecords converts a page or cache payload into zones, preserving order
func ZonesFromRecords(records []ZoneRecord) []Zone {
	zones := make([]Zone, len(records))
	for i := range records {
		zones[i] = ZoneFromRecord(&records[i])
	}
	return zones
}

// ZonesToRecords is the inverse of ZonesFromRecords
func ZonesToRecords(zones []Zone) []ZoneRecord {
	records := make([]ZoneRecord, len(zones))
	for i, z := range zones {
		records[i] = z.ToRecord()
	}
	return records
}

// FlexibleID accepts identifiers encoded as JSON strings or numbers
type FlexibleID string

func (id *FlexibleID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = FlexibleID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id: expected string or number, got %s", b)
	}
	if i, err := n.Int64(); err == nil {
		*id = FlexibleID(strconv.FormatInt(i, 10))
		return nil
	}
	*id = FlexibleID(n.String())
	return nil
}

func (id FlexibleID) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(id))
}
