// Package osmimport extracts speed camera nodes from an OpenStreetMap PBF extract
// and converts them into zone records.
package osmimport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"zonewatch/internal/logger"
	"zonewatch/internal/model"

	"github.com/qedus/osmpbf"
)

const mphToKmh = 1.609344

// Stats summarises one import run
type Stats struct {
	Nodes    int
	Cameras  int
	Skipped  int
	NoLimits int
}

// IsSpeedCamera reports whether the node tags describe a fixed speed camera
func IsSpeedCamera(tags map[string]string) bool {
	return tags["highway"] == "speed_camera" || tags["enforcement"] == "maxspeed"
}

// RecordFromNode maps a camera node into a zone record
func RecordFromNode(id int64, lat, lon float64, tags map[string]string) model.ZoneRecord {
	rec := model.ZoneRecord{
		ID:              model.FlexibleID("osm-" + strconv.FormatInt(id, 10)),
		Latitude:        &lat,
		Longitude:       &lon,
		Departement:     department(tags["addr:postcode"]),
		Emplacement:     firstNonEmpty(tags["name"], tags["addr:street"], tags["ref"]),
		Direction:       tags["direction"],
		Type:            firstNonEmpty(tags["speed_camera"], "speed_camera"),
		Equipement:      firstNonEmpty(tags["model"], tags["manufacturer"]),
		DateInstalation: tags["start_date"],
	}
	if kmh, ok := ParseMaxSpeed(tags["maxspeed"]); ok {
		rec.VitesseLegers = &kmh
	}
	return rec
}

// ParseMaxSpeed reads an OSM maxspeed value ("50", "30 mph") in km/h.
// Symbolic values such as "FR:urban" or "none" are not converted.
func ParseMaxSpeed(v string) (int, bool) {
	v = strings.TrimSpace(v)
	end := strings.IndexFunc(v, func(r rune) bool { return !unicode.IsDigit(r) })
	if end == -1 {
		end = len(v)
	}
	if end == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(v[:end])
	if err != nil || n <= 0 {
		return 0, false
	}
	if strings.Contains(strings.ToLower(v[end:]), "mph") {
		return int(math.Round(float64(n) * mphToKmh)), true
	}
	return n, true
}

// department derives the French department code from a postcode
func department(postcode string) string {
	postcode = strings.TrimSpace(postcode)
	if len(postcode) != 5 {
		return ""
	}
	if strings.HasPrefix(postcode, "97") {
		return postcode[:3]
	}
	if strings.HasPrefix(postcode, "20") {
		// Corsica
		if postcode < "20200" {
			return "2A"
		}
		return "2B"
	}
	return postcode[:2]
}

func firstNonEmpty(vs ...string) string {
	for _, v := range vs {
		if v != "" {
			return v
		}
	}
	return ""
}

// Extract decodes the PBF stream and returns camera records sorted by id
func Extract(ctx context.Context, r io.Reader) ([]model.ZoneRecord, Stats, error) {
	var stats Stats

	decoder := osmpbf.NewDecoder(r)
	decoder.SetBufferSize(osmpbf.MaxBlobSize)
	if err := decoder.Start(runtime.GOMAXPROCS(-1)); err != nil {
		return nil, stats, fmt.Errorf("failed to start decoder: %w", err)
	}

	type camera struct {
		id  int64
		rec model.ZoneRecord
	}
	var cameras []camera

	for {
		if err := ctx.Err(); err != nil {
			return nil, stats, err
		}
		object, err := decoder.Decode()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, stats, fmt.Errorf("error decoding: %w", err)
		}

		node, ok := object.(*osmpbf.Node)
		if !ok {
			continue
		}
		stats.Nodes++
		if !IsSpeedCamera(node.Tags) {
			continue
		}
		rec := RecordFromNode(node.ID, node.Lat, node.Lon, node.Tags)
		if !model.ZoneFromRecord(&rec).Valid() {
			stats.Skipped++
			continue
		}
		if rec.VitesseLegers == nil {
			stats.NoLimits++
		}
		cameras = append(cameras, camera{id: node.ID, rec: rec})
		stats.Cameras++

		if stats.Cameras%1000 == 0 {
			logger.L().Info("osm_import_progress", "cameras", stats.Cameras, "nodes", stats.Nodes)
		}
	}

	sort.Slice(cameras, func(i, j int) bool { return cameras[i].id < cameras[j].id })
	records := make([]model.ZoneRecord, len(cameras))
	for i, c := range cameras {
		records[i] = c.rec
	}
	return records, stats, nil
}
