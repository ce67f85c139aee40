package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bkkrt/internal/manager"
	"bkkrt/internal/realtime"
	"bkkrt/internal/transit"
	"bkkrt/internal/verification"
)

type fakeSnapshots struct {
	mu         sync.Mutex
	snap       manager.Snapshot
	ready      bool
	err        error
	forced     int
	listeners  []manager.Listener
	subscribed chan struct{}
}

func (f *fakeSnapshots) Initialize(_ context.Context, force bool) (manager.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if force {
		f.forced++
	}
	return f.snap, f.err
}

func (f *fakeSnapshots) Snapshot() (manager.Snapshot, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap, f.ready
}

func (f *fakeSnapshots) Subscribe(fn manager.Listener) func() {
	f.mu.Lock()
	f.listeners = append(f.listeners, fn)
	f.mu.Unlock()
	if f.subscribed != nil {
		close(f.subscribed)
	}
	return func() {}
}

func (f *fakeSnapshots) broadcast(s manager.Snapshot) {
	f.mu.Lock()
	ls := append([]manager.Listener(nil), f.listeners...)
	f.mu.Unlock()
	for _, l := range ls {
		l(s)
	}
}

type fakeFeeds struct{ trips string }

func (f *fakeFeeds) FetchTripUpdates(context.Context) string { return f.trips }
func (f *fakeFeeds) Status() []realtime.FeedStatus {
	return []realtime.FeedStatus{{Feed: "Alerts", Cached: true, Fresh: true}}
}

type fakeReference struct{}

func (fakeReference) Route(id string) (transit.Route, bool) {
	if id == "BKK_3040" {
		return transit.Route{ID: id, ShortName: "4", Type: 0}, true
	}
	return transit.Route{}, false
}

func (fakeReference) Stop(id string) (transit.Stop, bool) {
	if id == "F01111" {
		return transit.Stop{ID: id, Name: "Deák Ferenc tér"}, true
	}
	return transit.Stop{}, false
}

func (fakeReference) Loaded() bool                { return true }
func (fakeReference) Counts() (routes, stops int) { return 1, 1 }

var fetchedAt = time.Date(2024, 9, 2, 8, 0, 0, 0, time.UTC)

func testSnapshot() manager.Snapshot {
	past := time.Now().Add(-time.Hour)
	expired := time.Now().Add(-time.Minute)
	return manager.Snapshot{
		Alerts: []transit.Alert{
			{ID: "a1", Title: "Villamospótló busz", AffectedRoutes: []string{"4"}, Category: transit.Tram, Start: past, Effect: "DETOUR"},
			{ID: "a2", Title: "M3 metró késés", AffectedRoutes: []string{"M3"}, Category: transit.Metro, Start: past, End: &expired},
		},
		Vehicles: []transit.VehiclePosition{
			{VehicleID: "v1", RouteID: "BKK_3040", RouteName: "4", VehicleType: transit.Tram, Position: transit.Position{Lat: 47.4979, Lng: 19.0402}, CurrentStop: "F01111"},
			{VehicleID: "v2", RouteID: "BKK_0050", RouteName: "5", VehicleType: transit.Bus, Position: transit.Position{Lat: 47.5800, Lng: 19.0402}},
		},
		FetchedAt: fetchedAt,
	}
}

func newTestHandler(snaps *fakeSnapshots, feeds *fakeFeeds) *Handler {
	return New(snaps, feeds, fakeReference{}, "bkk-test", slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func do(t *testing.T, fn http.HandlerFunc, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	fn(rec, req)
	return rec
}

func TestAlerts(t *testing.T) {
	h := newTestHandler(&fakeSnapshots{snap: testSnapshot(), ready: true}, &fakeFeeds{})

	tests := []struct {
		target  string
		wantIDs []string
	}{
		{"/api/alerts", []string{"a1", "a2"}},
		{"/api/alerts?active=1", []string{"a1"}},
		{"/api/alerts?category=metro", []string{"a2"}},
		{"/api/alerts?route=4", []string{"a1"}},
		{"/api/alerts?route=M2", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			rec := do(t, h.Alerts, http.MethodGet, tt.target, "")
			require.Equal(t, http.StatusOK, rec.Code)

			var resp alertsResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			ids := []string{}
			for _, a := range resp.Alerts {
				ids = append(ids, a.ID)
			}
			assert.Equal(t, tt.wantIDs, ids)
			assert.Equal(t, len(tt.wantIDs), resp.Count)
		})
	}

	rec := do(t, h.Alerts, http.MethodGet, "/api/alerts?category=rocket", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAlerts_RefreshFailureServesStored(t *testing.T) {
	h := newTestHandler(&fakeSnapshots{err: errors.New("feed unavailable")}, &fakeFeeds{})

	rec := do(t, h.Alerts, http.MethodGet, "/api/alerts", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"alerts":[]`)
}

func TestVehicles_Nearby(t *testing.T) {
	h := newTestHandler(&fakeSnapshots{snap: testSnapshot(), ready: true}, &fakeFeeds{})

	rec := do(t, h.Vehicles, http.MethodGet, "/api/vehicles?lat=47.4979&lng=19.0402&radius=500", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp vehiclesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Vehicles, 1, "the vehicle ~9 km north is excluded")
	assert.Equal(t, "v1", resp.Vehicles[0].VehicleID)
	assert.True(t, resp.Vehicles[0].HasAlert)
	require.NotNil(t, resp.Vehicles[0].DistanceM)
	assert.InDelta(t, 0, *resp.Vehicles[0].DistanceM, 1e-6)

	rec = do(t, h.Vehicles, http.MethodGet, "/api/vehicles", "")
	var all vehiclesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	assert.Equal(t, 2, all.Count)
	assert.Nil(t, all.Vehicles[1].DistanceM)

	rec = do(t, h.Vehicles, http.MethodGet, "/api/vehicles?type=busz", "")
	var buses vehiclesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &buses))
	require.Len(t, buses.Vehicles, 1)
	assert.Equal(t, "v2", buses.Vehicles[0].VehicleID)

	for _, target := range []string{"/api/vehicles?lat=abc&lng=1", "/api/vehicles?lat=1", "/api/vehicles?lat=1&lng=2&radius=-5"} {
		rec = do(t, h.Vehicles, http.MethodGet, target, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
}

func TestTripUpdates(t *testing.T) {
	feeds := &fakeFeeds{trips: "entity {\n}\n"}
	h := newTestHandler(&fakeSnapshots{}, feeds)

	rec := do(t, h.TripUpdates, http.MethodGet, "/api/trip-updates", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, "entity {\n}\n", rec.Body.String())

	feeds.trips = ""
	rec = do(t, h.TripUpdates, http.MethodGet, "/api/trip-updates", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRefreshSnapshot(t *testing.T) {
	snaps := &fakeSnapshots{snap: testSnapshot(), ready: true}
	h := newTestHandler(snaps, &fakeFeeds{})

	rec := do(t, h.RefreshSnapshot, http.MethodPost, "/api/snapshot/refresh", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, snaps.forced)

	snaps.err = errors.New("boom")
	rec = do(t, h.RefreshSnapshot, http.MethodPost, "/api/snapshot/refresh", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestStatus(t *testing.T) {
	h := newTestHandler(&fakeSnapshots{snap: testSnapshot(), ready: true}, &fakeFeeds{})

	rec := do(t, h.Status, http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Reference.Loaded)
	require.Len(t, resp.Feeds, 1)
	require.NotNil(t, resp.Snapshot)
	assert.True(t, fetchedAt.Equal(*resp.Snapshot))
}

func TestRouteAndStop(t *testing.T) {
	h := newTestHandler(&fakeSnapshots{}, &fakeFeeds{})
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/routes/{id}", h.Route)
	mux.HandleFunc("GET /api/stops/{id}", h.Stop)

	tests := []struct {
		target string
		want   int
	}{
		{"/api/routes/BKK_3040", http.StatusOK},
		{"/api/routes/nope", http.StatusNotFound},
		{"/api/stops/F01111", http.StatusOK},
		{"/api/stops/nope", http.StatusNotFound},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.target, nil))
		assert.Equal(t, tt.want, rec.Code, tt.target)
	}
}

func TestVerifyDisruption(t *testing.T) {
	h := newTestHandler(&fakeSnapshots{snap: testSnapshot(), ready: true}, &fakeFeeds{})

	rec := do(t, h.VerifyDisruption, http.MethodPost, "/api/verification/disruption",
		`{"alert_id":"a1","user_location":{"lat":47.5,"lng":19.04}}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var d verification.Disruption
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &d))
	assert.Equal(t, verification.KindDisruption, d.Type)
	assert.Equal(t, "a1", d.AlertData.ID)
	assert.Equal(t, "bkk-test", d.Metadata.DataSource)
	assert.True(t, verification.IsValid(rec.Body.Bytes()))

	rec = do(t, h.VerifyDisruption, http.MethodPost, "/api/verification/disruption", `{"alert_id":"missing"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h.VerifyDisruption, http.MethodPost, "/api/verification/disruption", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestVerifyVehicle(t *testing.T) {
	h := newTestHandler(&fakeSnapshots{snap: testSnapshot(), ready: true}, &fakeFeeds{})

	rec := do(t, h.VerifyVehicle, http.MethodPost, "/api/verification/vehicle",
		`{"vehicle_id":"v1","user_location":{"lat":47.4979,"lng":19.0402}}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var v verification.VehicleModification
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	require.NotNil(t, v.VehicleData)
	assert.True(t, v.VehicleData.TripModifications.HasDelays)
	assert.Equal(t, []string{"a1"}, v.VehicleData.TripModifications.RelatedAlerts)
	require.NotNil(t, v.VehicleData.ReferenceCheck)
	assert.True(t, v.VehicleData.ReferenceCheck.StopKnown)
	require.NotNil(t, v.DistanceFromUser)

	rec = do(t, h.VerifyVehicle, http.MethodPost, "/api/verification/vehicle", `{"vehicle_id":"v9"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestValidateRecord(t *testing.T) {
	h := newTestHandler(&fakeSnapshots{snap: testSnapshot(), ready: true}, &fakeFeeds{})

	d := verification.BuildDisruption(testSnapshot().Alerts[0], nil, "bkk-test")
	body, err := json.Marshal(d)
	require.NoError(t, err)

	rec := do(t, h.ValidateRecord, http.MethodPost, "/api/verification/validate", string(body))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"valid":true`)

	rec = do(t, h.ValidateRecord, http.MethodPost, "/api/verification/validate", `{"type":"delay"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h.ValidateRecord, http.MethodPost, "/api/verification/validate", `{"type":"disruption"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), `"valid":false`)
}

func TestSSESnapshot(t *testing.T) {
	snaps := &fakeSnapshots{snap: testSnapshot(), ready: true, subscribed: make(chan struct{})}
	h := newTestHandler(snaps, &fakeFeeds{})

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/sse/snapshot", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		h.SSESnapshot(rec, req)
		close(done)
	}()

	<-snaps.subscribed
	next := testSnapshot()
	next.Alerts = next.Alerts[:1]
	snaps.broadcast(next)

	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	body := rec.Body.String()
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, 2, strings.Count(body, "event: snapshot\n"))
	assert.Contains(t, body, `"alerts":2`)
	assert.Contains(t, body, `"alerts":1`)
}
