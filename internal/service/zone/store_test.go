package zone

import (
	"fmt"
	"sync"
	"testing"

	"zonewatch/internal/model"

	"github.com/paulmach/orb"
)

func z(id string, lat, lon float64) model.Zone {
	return model.Zone{ID: id, Lat: lat, Lon: lon}
}

func ids(zones []model.Zone) []string {
	out := make([]string, len(zones))
	for i, zn := range zones {
		out[i] = zn.ID
	}
	return out
}

func TestUpsertAllRejectsInvalid(t *testing.T) {
	s := NewStore()
	res := s.UpsertAll([]model.Zone{
		z("a", 48.85, 2.35),
		z("bad-lat", 200, 2.35),
		z("bad-lon", 10, -181),
		z("", 1, 1),
	})
	if res.Accepted != 1 || res.Rejected != 3 {
		t.Fatalf("result=%+v want 1 accepted, 3 rejected", res)
	}
	if _, ok := s.Get("bad-lat"); ok {
		t.Fatal("zone with latitude 200 must not be retrievable")
	}
	for _, zn := range s.All() {
		if zn.ID == "bad-lat" {
			t.Fatal("zone with latitude 200 returned by All")
		}
	}
	if s.Count() != 1 || s.IsEmpty() {
		t.Fatalf("Count=%d IsEmpty=%v", s.Count(), s.IsEmpty())
	}
}

func TestUpsertAllMergesInPlace(t *testing.T) {
	s := NewStore()
	s.UpsertAll([]model.Zone{z("a", 1, 1), z("b", 2, 2)})
	s.UpsertAll([]model.Zone{z("c", 3, 3), z("a", 5, 5)})

	got := ids(s.All())
	want := []string{"a", "b", "c"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("order=%v want %v", got, want)
	}
	a, _ := s.Get("a")
	if a.Lat != 5 {
		t.Fatalf("a.Lat=%v want 5 after merge", a.Lat)
	}
}

func TestReplaceDropsMissingZones(t *testing.T) {
	s := NewStore()
	s.UpsertAll([]model.Zone{z("a", 1, 1), z("b", 2, 2)})
	res := s.Replace([]model.Zone{z("b", 2, 2), z("c", 3, 3)}, 2)

	if res.Accepted != 2 {
		t.Fatalf("accepted=%d want 2", res.Accepted)
	}
	if _, ok := s.Get("a"); ok {
		t.Fatal("a should be gone after Replace")
	}
	if s.TotalExpected() != 2 || s.LastSyncedAt().IsZero() {
		t.Fatalf("TotalExpected=%d LastSyncedAt=%v", s.TotalExpected(), s.LastSyncedAt())
	}
}

func TestNearbyReturnsCandidatesAroundPoint(t *testing.T) {
	s := NewStore()
	s.UpsertAll([]model.Zone{
		z("near", 48.8566, 2.3522),
		z("close", 48.8570, 2.3522),
		z("far", 45.0, 5.0),
	})

	got := ids(s.Nearby(48.8567, 2.3522, 100))
	if fmt.Sprint(got) != "[near close]" {
		t.Fatalf("Nearby=%v want [near close]", got)
	}
}

func TestNearbyFallsBackNearAntimeridian(t *testing.T) {
	s := NewStore()
	s.UpsertAll([]model.Zone{z("east", 0, 179.9999), z("west", 0, -179.9999)})

	got := s.Nearby(0, 179.99995, 100)
	if len(got) != 2 {
		t.Fatalf("Nearby across antimeridian=%v want both zones as candidates", ids(got))
	}
}

func TestInBounds(t *testing.T) {
	s := NewStore()
	s.UpsertAll([]model.Zone{z("in", 48.5, 2.5), z("edge", 49, 3), z("out", 50, 2.5)})

	got := ids(s.InBounds(orb.Bound{Min: orb.Point{2, 48}, Max: orb.Point{3, 49}}))
	if fmt.Sprint(got) != "[in edge]" {
		t.Fatalf("InBounds=%v want [in edge]", got)
	}
}

func TestSearch(t *testing.T) {
	s := NewStore()
	s.UpsertAll([]model.Zone{
		{ID: "1", Lat: 1, Lon: 1, Attributes: model.ZoneAttributes{Department: "75", Location: "PARIS Périphérique"}},
		{ID: "2", Lat: 1, Lon: 1, Attributes: model.ZoneAttributes{Department: "69", Location: "Lyon"}},
		{ID: "3", Lat: 1, Lon: 1, Attributes: model.ZoneAttributes{Department: "75", Location: "Bois de Boulogne"}},
	})

	if got := ids(s.Search("75", "paris")); fmt.Sprint(got) != "[1]" {
		t.Fatalf("Search(75, paris)=%v want [1]", got)
	}
	if got := ids(s.Search("", "")); len(got) != 3 {
		t.Fatalf("empty search=%v want all", got)
	}
}

func TestConcurrentReadersSeeWholeSnapshots(t *testing.T) {
	s := NewStore()
	batchA := make([]model.Zone, 500)
	batchB := make([]model.Zone, 700)
	for i := range batchA {
		batchA[i] = z(fmt.Sprintf("a%d", i), 10, 10)
	}
	for i := range batchB {
		batchB[i] = z(fmt.Sprintf("b%d", i), 20, 20)
	}

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			n := len(s.All())
			if n != 0 && n != len(batchA) && n != len(batchB) {
				t.Errorf("observed partial snapshot with %d zones", n)
				return
			}
		}
	}()

	for i := 0; i < 50; i++ {
		s.Replace(batchA, len(batchA))
		s.Replace(batchB, len(batchB))
	}
	close(stop)
	wg.Wait()
}
