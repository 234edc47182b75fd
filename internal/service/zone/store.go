package zone

import (
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"zonewatch/internal/logger"
	"zonewatch/internal/metrics"
	"zonewatch/internal/model"
	"zonewatch/internal/util"

	"github.com/dhconnelly/rtreego"
	"github.com/paulmach/orb"
)

// pointTolerance is the half-size in degrees of the rect indexed for each zone point
const pointTolerance = 1e-9

// zoneSpatial is a zone position indexed in the R-tree
type zoneSpatial struct {
	idx   int // index into snapshot.zones
	point rtreego.Point
}

// Bounds implements the rtreego.Spatial interface
func (z *zoneSpatial) Bounds() rtreego.Rect {
	return z.point.ToRect(pointTolerance)
}

// snapshot is an immutable view of the store. Readers hold on to it without locking.
type snapshot struct {
	zones         []model.Zone
	byID          map[string]int
	tree          *rtreego.Rtree
	lastSyncedAt  time.Time
	totalExpected int
}

// UpsertResult counts the records accepted and rejected by a write
type UpsertResult struct {
	Accepted int
	Rejected int
}

// Store holds all known zones. Writes build a new snapshot and swap it atomically,
// so readers never observe a partially merged store.
type Store struct {
	current atomic.Pointer[snapshot]
	writeMu sync.Mutex
}

// NewStore returns an empty store
func NewStore() *Store {
	s := &Store{}
	s.current.Store(buildSnapshot(nil, time.Time{}, 0))
	return s
}

// UpsertAll merges zones into the store. Existing ids are replaced in place,
// new ids are appended in input order, invalid records are dropped and counted.
func (s *Store) UpsertAll(zones []model.Zone) UpsertResult {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	prev := s.current.Load()
	merged := make([]model.Zone, len(prev.zones), len(prev.zones)+len(zones))
	copy(merged, prev.zones)
	byID := make(map[string]int, len(prev.byID)+len(zones))
	for id, i := range prev.byID {
		byID[id] = i
	}

	res := mergeInto(&merged, byID, zones)
	s.swap(merged, prev.lastSyncedAt, prev.totalExpected)
	return res
}

// Replace swaps the whole dataset for zones, recording the sync time and the
// total the source advertised.
func (s *Store) Replace(zones []model.Zone, totalExpected int) UpsertResult {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	merged := make([]model.Zone, 0, len(zones))
	byID := make(map[string]int, len(zones))

	res := mergeInto(&merged, byID, zones)
	s.swap(merged, time.Now(), totalExpected)
	return res
}

func mergeInto(dst *[]model.Zone, byID map[string]int, zones []model.Zone) UpsertResult {
	var res UpsertResult
	for _, z := range zones {
		if !z.Valid() {
			res.Rejected++
			continue
		}
		if i, ok := byID[z.ID]; ok {
			(*dst)[i] = z
		} else {
			byID[z.ID] = len(*dst)
			*dst = append(*dst, z)
		}
		res.Accepted++
	}
	if res.Rejected > 0 {
		metrics.ZonesRejectedTotal.Add(float64(res.Rejected))
	}
	return res
}

func (s *Store) swap(zones []model.Zone, syncedAt time.Time, total int) {
	start := time.Now()
	snap := buildSnapshot(zones, syncedAt, total)
	s.current.Store(snap)
	metrics.ZonesStored.Set(float64(len(zones)))
	logger.L().Debug("zone_store_swap", "zones", len(zones), "index_ms", time.Since(start).Milliseconds())
}

func buildSnapshot(zones []model.Zone, syncedAt time.Time, total int) *snapshot {
	byID := make(map[string]int, len(zones))
	items := make([]rtreego.Spatial, len(zones))
	for i, z := range zones {
		byID[z.ID] = i
		items[i] = &zoneSpatial{idx: i, point: rtreego.Point{z.Lon, z.Lat}}
	}
	return &snapshot{
		zones:         zones,
		byID:          byID,
		tree:          rtreego.NewTree(2, 25, 50, items...),
		lastSyncedAt:  syncedAt,
		totalExpected: total,
	}
}

// All returns a copy of every zone in insertion order
func (s *Store) All() []model.Zone {
	snap := s.current.Load()
	out := make([]model.Zone, len(snap.zones))
	copy(out, snap.zones)
	return out
}

// Get returns a zone by id
func (s *Store) Get(id string) (model.Zone, bool) {
	snap := s.current.Load()
	i, ok := snap.byID[id]
	if !ok {
		return model.Zone{}, false
	}
	return snap.zones[i], true
}

func (s *Store) Count() int {
	return len(s.current.Load().zones)
}

func (s *Store) IsEmpty() bool {
	return s.Count() == 0
}

// LastSyncedAt is the time of the last Replace, zero if never synced
func (s *Store) LastSyncedAt() time.Time {
	return s.current.Load().lastSyncedAt
}

// TotalExpected is the total advertised by the source at the last sync
func (s *Store) TotalExpected() int {
	return s.current.Load().totalExpected
}

// Nearby returns the zones that may lie within radiusMeters of lat/lon.
// The result is a superset: callers compute exact distances themselves.
func (s *Store) Nearby(lat, lon, radiusMeters float64) []model.Zone {
	snap := s.current.Load()

	// Pad the box so the planar degree approximation never clips a qualifying zone
	latDeg, lonDeg, ok := util.MetersToDegrees(lat, radiusMeters*1.5)
	if !ok || lon-lonDeg < -180 || lon+lonDeg > 180 || lat-latDeg < -90 || lat+latDeg > 90 {
		out := make([]model.Zone, len(snap.zones))
		copy(out, snap.zones)
		return out
	}

	rect, err := rtreego.NewRect(rtreego.Point{lon - lonDeg, lat - latDeg}, []float64{2 * lonDeg, 2 * latDeg})
	if err != nil {
		logger.L().Warn("zone_nearby_rect_error", "err", err)
		return nil
	}
	return snap.collect(snap.tree.SearchIntersect(rect), nil)
}

// InBounds returns the zones inside bound (inclusive), in insertion order
func (s *Store) InBounds(bound orb.Bound) []model.Zone {
	snap := s.current.Load()

	width := bound.Max.X() - bound.Min.X()
	height := bound.Max.Y() - bound.Min.Y()
	if width < 0 || height < 0 {
		return nil
	}
	rect, err := rtreego.NewRect(
		rtreego.Point{bound.Min.X() - pointTolerance, bound.Min.Y() - pointTolerance},
		[]float64{width + 2*pointTolerance, height + 2*pointTolerance},
	)
	if err != nil {
		logger.L().Warn("zone_bounds_rect_error", "err", err)
		return nil
	}
	return snap.collect(snap.tree.SearchIntersect(rect), func(z model.Zone) bool {
		return bound.Contains(z.Point())
	})
}

// Search filters zones by case-insensitive substrings of department and location.
// Empty terms match everything.
func (s *Store) Search(department, location string) []model.Zone {
	snap := s.current.Load()
	department = strings.ToLower(department)
	location = strings.ToLower(location)

	var out []model.Zone
	for _, z := range snap.zones {
		if strings.Contains(strings.ToLower(z.Attributes.Department), department) &&
			strings.Contains(strings.ToLower(z.Attributes.Location), location) {
			out = append(out, z)
		}
	}
	return out
}

// collect maps R-tree hits back to zones sorted by insertion order
func (snap *snapshot) collect(hits []rtreego.Spatial, keep func(model.Zone) bool) []model.Zone {
	idx := make([]int, 0, len(hits))
	for _, h := range hits {
		idx = append(idx, h.(*zoneSpatial).idx)
	}
	sort.Ints(idx)

	out := make([]model.Zone, 0, len(idx))
	for _, i := range idx {
		z := snap.zones[i]
		if keep == nil || keep(z) {
			out = append(out, z)
		}
	}
	return out
}
