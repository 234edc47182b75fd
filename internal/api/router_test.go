package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	routes "zonewatch/internal/api/handlers"
	"zonewatch/internal/model"
	"zonewatch/internal/service/auth"
	"zonewatch/internal/service/cluster"
	"zonewatch/internal/service/dataset"
	"zonewatch/internal/service/location"
	"zonewatch/internal/service/proximity"
	"zonewatch/internal/service/storage"
	"zonewatch/internal/service/visit"
	"zonewatch/internal/service/zone"
	"zonewatch/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

func newTestDeps(t *testing.T, datasetHandler http.HandlerFunc) *routes.Deps {
	t.Helper()
	gin.SetMode(gin.TestMode)

	upstream := httptest.NewServer(datasetHandler)
	t.Cleanup(upstream.Close)

	store := zone.NewStore()
	store.UpsertAll([]model.Zone{
		{ID: "1", Lat: 48.8566, Lon: 2.3522, Attributes: model.ZoneAttributes{Department: "75", Location: "Paris Rivoli"}},
		{ID: "2", Lat: 48.8570, Lon: 2.3530, Attributes: model.ZoneAttributes{Department: "75", Location: "Paris Hotel de Ville"}},
		{ID: "3", Lat: 45.7640, Lon: 4.8357, Attributes: model.ZoneAttributes{Department: "69", Location: "Lyon Bellecour"}},
	})

	blobs := storage.NewMemoryBlobStore()
	session := auth.NewSession(upstream.URL, time.Second, blobs)
	recorder := visit.NewRecorder(upstream.URL, time.Second, session, 4)
	bus := proximity.NewBus(16)
	engine := proximity.NewEngine(store, recorder, bus)
	push := location.NewPushProvider(16)

	return &routes.Deps{
		Ctx:      context.Background(),
		Store:    store,
		Syncer:   dataset.NewSyncer(store, blobs, dataset.NewHTTPSource(upstream.URL, time.Second), 50),
		Engine:   engine,
		Bus:      bus,
		Clusters: cluster.NewEngine(0.5),
		Recorder: recorder,
		Session:  session,
		Push:     push,
		Tracker:  worker.NewTracker(push, engine, location.Options{MinInterval: time.Millisecond}),
	}
}

func newRouter(d *routes.Deps) *gin.Engine {
	r := gin.New()
	SetupRouter(r, d)
	return r
}

func do(r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestStatusAndMetrics(t *testing.T) {
	r := newRouter(newTestDeps(t, http.NotFound))

	w := do(r, http.MethodGet, "/", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status code=%d", w.Code)
	}
	var status map[string]any
	json.Unmarshal(w.Body.Bytes(), &status)
	if status["zones"] != float64(3) {
		t.Fatalf("status=%v want 3 zones", status)
	}

	w = do(r, http.MethodGet, "/metrics", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "zonewatch_zones_stored") {
		t.Fatalf("metrics code=%d body missing zonewatch collectors", w.Code)
	}
}

func TestZoneEndpoints(t *testing.T) {
	r := newRouter(newTestDeps(t, http.NotFound))

	tests := []struct {
		name  string
		path  string
		code  int
		check func(t *testing.T, body []byte)
	}{
		{"get by id", "/api/zones/3", http.StatusOK, func(t *testing.T, body []byte) {
			var rec model.ZoneRecord
			json.Unmarshal(body, &rec)
			if rec.ID != "3" || rec.Emplacement != "Lyon Bellecour" {
				t.Fatalf("record=%+v", rec)
			}
		}},
		{"unknown id", "/api/zones/404", http.StatusNotFound, nil},
		{"search", "/api/zones/search?location=paris", http.StatusOK, func(t *testing.T, body []byte) {
			var res struct{ Count int }
			json.Unmarshal(body, &res)
			if res.Count != 2 {
				t.Fatalf("count=%d want 2", res.Count)
			}
		}},
		{"nearby", "/api/zones/nearby?lat=48.8566&lon=2.3522&radius=50", http.StatusOK, func(t *testing.T, body []byte) {
			var res struct{ Count int }
			json.Unmarshal(body, &res)
			if res.Count != 1 {
				t.Fatalf("count=%d want 1", res.Count)
			}
		}},
		{"nearby missing coords", "/api/zones/nearby", http.StatusBadRequest, nil},
		{"list page", "/api/zones?offset=1&limit=1", http.StatusOK, func(t *testing.T, body []byte) {
			var res struct {
				Data []model.ZoneRecord
				Meta struct{ Total int }
			}
			json.Unmarshal(body, &res)
			if len(res.Data) != 1 || res.Data[0].ID != "2" || res.Meta.Total != 3 {
				t.Fatalf("page=%+v", res)
			}
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := do(r, http.MethodGet, tc.path, nil)
			if w.Code != tc.code {
				t.Fatalf("code=%d want %d body=%s", w.Code, tc.code, w.Body.String())
			}
			if tc.check != nil {
				tc.check(t, w.Body.Bytes())
			}
		})
	}
}

func TestClusters(t *testing.T) {
	r := newRouter(newTestDeps(t, http.NotFound))

	w := do(r, http.MethodGet, "/api/clusters?lat=48.8566&lon=2.3522&lat_delta=0.1&lon_delta=0.1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("code=%d body=%s", w.Code, w.Body.String())
	}
	var res struct {
		Clusters []cluster.Cluster `json:"clusters"`
	}
	json.Unmarshal(w.Body.Bytes(), &res)
	// radius 0.005 deg merges the two Paris zones; Lyon is outside the viewport
	if len(res.Clusters) != 1 || res.Clusters[0].Count() != 2 {
		t.Fatalf("clusters=%+v", res.Clusters)
	}

	w = do(r, http.MethodGet, "/api/clusters?lat=48.8566&lon=2.3522&lat_delta=0.1&lon_delta=0.1&format=geojson", nil)
	if !strings.Contains(w.Body.String(), `"FeatureCollection"`) {
		t.Fatalf("geojson body=%s", w.Body.String())
	}

	if w := do(r, http.MethodGet, "/api/clusters?lat=1", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("missing deltas code=%d want 400", w.Code)
	}
}

func TestSyncFailureIsBadGateway(t *testing.T) {
	d := newTestDeps(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	r := newRouter(d)

	w := do(r, http.MethodPost, "/api/sync", nil)
	if w.Code != http.StatusBadGateway {
		t.Fatalf("code=%d want 502", w.Code)
	}
	if d.Store.Count() != 3 {
		t.Fatalf("store count=%d want 3 after failed sync", d.Store.Count())
	}
}

func TestPositionsDriveProximity(t *testing.T) {
	d := newTestDeps(t, http.NotFound)
	r := newRouter(d)
	fix := map[string]any{"latitude": 45.7640, "longitude": 4.8357, "timestamp": time.Now()}

	if w := do(r, http.MethodPost, "/api/positions", fix); w.Code != http.StatusConflict {
		t.Fatalf("push before start code=%d want 409", w.Code)
	}
	if w := do(r, http.MethodPost, "/api/tracking/start", nil); w.Code != http.StatusOK {
		t.Fatalf("start code=%d", w.Code)
	}
	defer d.Tracker.Stop()

	var accepted bool
	for i := 0; i < 100 && !accepted; i++ {
		accepted = do(r, http.MethodPost, "/api/positions", fix).Code == http.StatusAccepted
		if !accepted {
			time.Sleep(5 * time.Millisecond)
		}
	}
	if !accepted {
		t.Fatal("position never accepted")
	}

	deadline := time.Now().Add(2 * time.Second)
	for d.Engine.State().State != proximity.StateInZone {
		if time.Now().After(deadline) {
			t.Fatal("engine never entered the zone")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if st := d.Engine.State(); st.Session.ZoneID != "3" {
		t.Fatalf("session=%+v want zone 3", st.Session)
	}

	if w := do(r, http.MethodPost, "/api/positions", map[string]any{"latitude": 200, "longitude": 0}); w.Code != http.StatusBadRequest {
		t.Fatalf("invalid fix code=%d want 400", w.Code)
	}

	w := do(r, http.MethodPost, "/api/tracking/stop", nil)
	if w.Code != http.StatusOK || d.Engine.State().State != proximity.StateIdle {
		t.Fatalf("stop code=%d state=%v", w.Code, d.Engine.State().State)
	}
}

func TestEventStream(t *testing.T) {
	d := newTestDeps(t, http.NotFound)
	srv := httptest.NewServer(newRouter(d))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws/events", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// the subscription is registered by the handler after the upgrade
	deadline := time.Now().Add(2 * time.Second)
	conn.SetReadDeadline(deadline)
	go func() {
		for i := 0; i < 50; i++ {
			if d.Engine.State().State == proximity.StateInZone {
				d.Engine.Close(time.Now())
			}
			d.Engine.Process(model.PositionFix{Lat: 48.8566, Lon: 2.3522, Timestamp: time.Now()})
			time.Sleep(20 * time.Millisecond)
		}
	}()

	var msg struct {
		Kind   string `json:"kind"`
		ZoneID string `json:"zone_id"`
	}
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	if msg.ZoneID != "1" {
		t.Fatalf("message=%+v want zone 1", msg)
	}
}

func TestSessionLoginErrors(t *testing.T) {
	d := newTestDeps(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"Invalid identifier or password"}}`))
	})
	r := newRouter(d)

	w := do(r, http.MethodPost, "/api/session/login", map[string]string{"identifier": "a", "password": "b"})
	if w.Code != http.StatusBadRequest || !strings.Contains(w.Body.String(), "Invalid identifier") {
		t.Fatalf("code=%d body=%s", w.Code, w.Body.String())
	}
	if w := do(r, http.MethodPost, "/api/session/login", map[string]string{}); w.Code != http.StatusBadRequest {
		t.Fatalf("missing fields code=%d want 400", w.Code)
	}
	if w := do(r, http.MethodGet, "/api/session", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("me code=%d want 401", w.Code)
	}
}
