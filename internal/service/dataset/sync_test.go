package dataset

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"zonewatch/internal/config"
	"zonewatch/internal/model"
	"zonewatch/internal/service/storage"
	"zonewatch/internal/service/zone"
)

func record(i int) model.ZoneRecord {
	lat := 45.0 + float64(i)*0.001
	lon := 2.0 + float64(i)*0.001
	return model.ZoneRecord{
		ID:          model.FlexibleID(strconv.Itoa(i)),
		Latitude:    &lat,
		Longitude:   &lon,
		Departement: "75",
		Emplacement: fmt.Sprintf("site %d", i),
	}
}

// fakeProvider serves total records, pageSize taken from the query
type fakeProvider struct {
	mu       sync.Mutex
	records  []model.ZoneRecord
	total    int
	pages    []int
	failPage int
	status   int
}

func newFakeProvider(n int) *fakeProvider {
	p := &fakeProvider{total: n}
	for i := 1; i <= n; i++ {
		p.records = append(p.records, record(i))
	}
	return p
}

func (p *fakeProvider) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	size, _ := strconv.Atoi(r.URL.Query().Get("page_size"))

	p.mu.Lock()
	defer p.mu.Unlock()
	p.pages = append(p.pages, page)

	if p.failPage == page {
		status := p.status
		if status == 0 {
			status = http.StatusBadGateway
		}
		w.WriteHeader(status)
		return
	}

	from := (page - 1) * size
	to := from + size
	if from > len(p.records) {
		from = len(p.records)
	}
	if to > len(p.records) {
		to = len(p.records)
	}
	json.NewEncoder(w).Encode(Page{
		Data: p.records[from:to],
		Meta: PageMeta{Total: p.total, Page: page, PageSize: size},
	})
}

func (p *fakeProvider) requested() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]int(nil), p.pages...)
}

func newTestSyncer(t *testing.T, h http.Handler, pageSize int) (*Syncer, *zone.Store, *storage.MemoryBlobStore) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	store := zone.NewStore()
	cache := storage.NewMemoryBlobStore()
	return NewSyncer(store, cache, NewHTTPSource(srv.URL, 5*time.Second), pageSize), store, cache
}

func TestFetchAllPaginates(t *testing.T) {
	p := newFakeProvider(137)
	s, _, _ := newTestSyncer(t, p, 50)

	zones, err := s.FetchAll(context.Background(), 50)
	if err != nil {
		t.Fatalf("FetchAll: %v", err)
	}
	if got := p.requested(); len(got) != 3 || got[0] != 1 || got[1] != 2 || got[2] != 3 {
		t.Fatalf("pages=%v want [1 2 3]", got)
	}
	if len(zones) != 137 {
		t.Fatalf("len=%d want 137", len(zones))
	}
	for i, zn := range zones {
		if want := strconv.Itoa(i + 1); zn.ID != want {
			t.Fatalf("zones[%d].ID=%s want %s", i, zn.ID, want)
		}
	}
}

func TestSyncRemoteThenCache(t *testing.T) {
	p := newFakeProvider(137)
	s, store, cache := newTestSyncer(t, p, 50)
	ctx := context.Background()

	out, err := s.Sync(ctx)
	if err != nil {
		t.Fatalf("first Sync: %v", err)
	}
	if out.Source != SourceRemote || out.Count != 137 {
		t.Fatalf("outcome=%+v want remote/137", out)
	}
	if _, err := cache.Get(ctx, config.ZoneCacheKey); err != nil {
		t.Fatalf("cache blob not written: %v", err)
	}
	first := store.All()

	out, err = s.Sync(ctx)
	if err != nil {
		t.Fatalf("second Sync: %v", err)
	}
	if out.Source != SourceCache || out.Count != 137 {
		t.Fatalf("outcome=%+v want cache/137", out)
	}
	if got := len(p.requested()); got != 3 {
		t.Fatalf("requests=%d want 3 (second sync must not hit the network)", got)
	}

	second := store.All()
	if len(first) != len(second) {
		t.Fatalf("store size changed %d -> %d", len(first), len(second))
	}
	for i := range first {
		if first[i].ID != second[i].ID || first[i].Lat != second[i].Lat || first[i].Lon != second[i].Lon ||
			first[i].Attributes.Location != second[i].Attributes.Location {
			t.Fatalf("zone %d differs after resync: %+v vs %+v", i, first[i], second[i])
		}
	}
	if store.TotalExpected() != 137 {
		t.Fatalf("TotalExpected=%d want 137", store.TotalExpected())
	}
}

func TestSyncMalformedCacheIsMiss(t *testing.T) {
	p := newFakeProvider(3)
	s, store, cache := newTestSyncer(t, p, 50)
	ctx := context.Background()

	cache.Set(ctx, config.ZoneCacheKey, []byte("{not json"))

	if _, ok := s.LoadFromCache(ctx); ok {
		t.Fatal("malformed cache must be reported as a miss")
	}
	out, err := s.Sync(ctx)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if out.Source != SourceRemote || store.Count() != 3 {
		t.Fatalf("outcome=%+v count=%d want remote/3", out, store.Count())
	}
}

func TestSyncNetworkErrorLeavesStoreUntouched(t *testing.T) {
	p := newFakeProvider(137)
	p.failPage = 2
	s, store, cache := newTestSyncer(t, p, 50)
	ctx := context.Background()

	store.UpsertAll([]model.Zone{{ID: "keep", Lat: 1, Lon: 1}})

	_, err := s.Sync(ctx)
	if !errors.Is(err, ErrNetwork) {
		t.Fatalf("err=%v want ErrNetwork", err)
	}
	var se *SyncError
	if !errors.As(err, &se) || se.Page != 2 {
		t.Fatalf("err=%v want SyncError on page 2", err)
	}
	if store.Count() != 1 {
		t.Fatalf("store count=%d want 1", store.Count())
	}
	if _, ok := store.Get("keep"); !ok {
		t.Fatal("existing zone lost after failed sync")
	}
	if _, err := cache.Get(ctx, config.ZoneCacheKey); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("cache written after failed sync: %v", err)
	}
}

func TestFetchAllMalformedPage(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data": "nope"`))
	})
	s, _, _ := newTestSyncer(t, h, 50)

	_, err := s.FetchAll(context.Background(), 50)
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("err=%v want ErrMalformed", err)
	}
}

func TestFetchAllEmptyPageBeforeTotal(t *testing.T) {
	p := newFakeProvider(10)
	p.total = 25
	s, _, _ := newTestSyncer(t, p, 10)

	_, err := s.FetchAll(context.Background(), 10)
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("err=%v want ErrMalformed", err)
	}
	if got := p.requested(); len(got) != 2 {
		t.Fatalf("pages=%v want 2 requests", got)
	}
}

func TestSyncCountsInvalidRecords(t *testing.T) {
	p := newFakeProvider(4)
	bad := 200.0
	p.records[1].Latitude = &bad
	p.records[2].Longitude = nil
	s, store, _ := newTestSyncer(t, p, 50)

	out, err := s.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if out.Count != 2 || out.Rejected != 2 || store.Count() != 2 {
		t.Fatalf("outcome=%+v count=%d want 2 accepted, 2 rejected", out, store.Count())
	}
}

func TestRefreshRefetches(t *testing.T) {
	p := newFakeProvider(5)
	s, store, _ := newTestSyncer(t, p, 50)
	ctx := context.Background()

	if _, err := s.Sync(ctx); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	p.mu.Lock()
	p.records = p.records[:3]
	p.total = 3
	p.mu.Unlock()

	out, err := s.Refresh(ctx)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if out.Source != SourceRemote || store.Count() != 3 {
		t.Fatalf("outcome=%+v count=%d want remote/3", out, store.Count())
	}
	if _, ok := store.Get("5"); ok {
		t.Fatal("zone removed upstream is still in the store")
	}
}

func TestFetchAllRejectsPageWithoutDataOrMeta(t *testing.T) {
	bodies := map[string]string{
		"maintenance notice": `{"message":"maintenance"}`,
		"empty object":       `{}`,
		"null data":          `{"data":null,"meta":{"total":0}}`,
		"missing meta":       `{"data":[]}`,
		"missing total":      `{"data":[],"meta":{"page":1}}`,
	}
	for name, body := range bodies {
		body := body
		t.Run(name, func(t *testing.T) {
			h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(body))
			})
			s, store, cache := newTestSyncer(t, h, 50)
			ctx := context.Background()

			_, err := s.Sync(ctx)
			if !errors.Is(err, ErrMalformed) {
				t.Fatalf("err=%v want ErrMalformed", err)
			}
			if !store.IsEmpty() {
				t.Fatalf("store count=%d want 0", store.Count())
			}
			if _, err := cache.Get(ctx, config.ZoneCacheKey); !errors.Is(err, storage.ErrNotFound) {
				t.Fatalf("cache written for a malformed page: %v", err)
			}
		})
	}
}

func TestFetchAllAcceptsEmptyDataset(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[],"meta":{"total":0,"page":1,"page_size":50}}`))
	})
	s, _, _ := newTestSyncer(t, h, 50)

	zones, err := s.FetchAll(context.Background(), 50)
	if err != nil || len(zones) != 0 {
		t.Fatalf("zones=%d err=%v want empty dataset", len(zones), err)
	}
}

func TestFailedRefreshKeepsCache(t *testing.T) {
	p := newFakeProvider(5)
	s, store, cache := newTestSyncer(t, p, 50)
	ctx := context.Background()

	if _, err := s.Sync(ctx); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	before, err := cache.Get(ctx, config.ZoneCacheKey)
	if err != nil {
		t.Fatalf("cache after sync: %v", err)
	}

	p.mu.Lock()
	p.failPage = 1
	p.mu.Unlock()

	if _, err := s.Refresh(ctx); !errors.Is(err, ErrNetwork) {
		t.Fatalf("Refresh err=%v want ErrNetwork", err)
	}
	after, err := cache.Get(ctx, config.ZoneCacheKey)
	if err != nil {
		t.Fatalf("cache lost after failed refresh: %v", err)
	}
	if string(after) != string(before) {
		t.Fatal("cache blob changed after failed refresh")
	}
	if store.Count() != 5 {
		t.Fatalf("store count=%d want 5", store.Count())
	}

	// the kept blob still serves a cold start
	fresh := zone.NewStore()
	out, err := NewSyncer(fresh, cache, NewHTTPSource("http://127.0.0.1:0", time.Second), 50).Sync(ctx)
	if err != nil || out.Source != SourceCache || fresh.Count() != 5 {
		t.Fatalf("cold start outcome=%+v err=%v count=%d", out, err, fresh.Count())
	}
}

func TestSyncRecordsAdvertisedTotal(t *testing.T) {
	p := newFakeProvider(4)
	bad := 200.0
	p.records[0].Latitude = &bad
	p.total = 4
	s, store, _ := newTestSyncer(t, p, 50)

	if _, err := s.Sync(context.Background()); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if store.TotalExpected() != 4 || store.Count() != 3 {
		t.Fatalf("TotalExpected=%d count=%d want 4 and 3", store.TotalExpected(), store.Count())
	}
}
