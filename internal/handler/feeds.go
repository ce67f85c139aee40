package handler

import (
	"net/http"
	"strconv"
	"time"

	"bkkrt/internal/geo"
	"bkkrt/internal/manager"
	"bkkrt/internal/realtime"
	"bkkrt/internal/transit"
)

// defaultRadius is used for proximity queries without an explicit radius.
const defaultRadius = 500.0

type alertsResponse struct {
	Alerts    []transit.Alert `json:"alerts"`
	Count     int             `json:"count"`
	FetchedAt time.Time       `json:"fetched_at"`
}

// Alerts serves the parsed alerts. ?active=1 keeps only alerts in effect
// now; ?category= and ?route= filter further.
func (h *Handler) Alerts(w http.ResponseWriter, r *http.Request) {
	s := h.snapshot(r.Context())
	q := r.URL.Query()

	alerts := s.Alerts
	if q.Get("active") == "1" {
		alerts = transit.ActiveAlerts(alerts, time.Now())
	}
	if c := transit.Category(q.Get("category")); c != "" {
		if !c.Valid() {
			h.writeError(w, http.StatusBadRequest, "unknown category")
			return
		}
		alerts = filterAlerts(alerts, func(a transit.Alert) bool { return a.Category == c })
	}
	if route := q.Get("route"); route != "" {
		alerts = filterAlerts(alerts, func(a transit.Alert) bool { return contains(a.AffectedRoutes, route) })
	}
	if alerts == nil {
		alerts = []transit.Alert{}
	}

	h.writeJSON(w, http.StatusOK, alertsResponse{Alerts: alerts, Count: len(alerts), FetchedAt: s.FetchedAt})
}

type vehicleView struct {
	transit.VehiclePosition
	DistanceM *float64 `json:"distance_m,omitempty"`
	HasAlert  bool     `json:"has_alert"`
}

type vehiclesResponse struct {
	Vehicles  []vehicleView `json:"vehicles"`
	Count     int           `json:"count"`
	FetchedAt time.Time     `json:"fetched_at"`
}

// Vehicles serves vehicle positions. With ?lat=&lng= only vehicles within
// ?radius= meters (default 500) are returned, each with its distance.
func (h *Handler) Vehicles(w http.ResponseWriter, r *http.Request) {
	s := h.snapshot(r.Context())
	q := r.URL.Query()

	vehicles := s.Vehicles
	var point *transit.Position
	if q.Get("lat") != "" || q.Get("lng") != "" {
		lat, errLat := strconv.ParseFloat(q.Get("lat"), 64)
		lng, errLng := strconv.ParseFloat(q.Get("lng"), 64)
		if errLat != nil || errLng != nil {
			h.writeError(w, http.StatusBadRequest, "lat and lng must be numbers")
			return
		}
		radius := defaultRadius
		if v := q.Get("radius"); v != "" {
			rad, err := strconv.ParseFloat(v, 64)
			if err != nil || rad < 0 {
				h.writeError(w, http.StatusBadRequest, "radius must be a non-negative number")
				return
			}
			radius = rad
		}
		point = &transit.Position{Lat: lat, Lng: lng}
		vehicles = geo.FindNearby(vehicles, *point, radius)
	}
	if c := transit.Category(q.Get("type")); c != "" {
		var kept []transit.VehiclePosition
		for _, v := range vehicles {
			if v.VehicleType == c {
				kept = append(kept, v)
			}
		}
		vehicles = kept
	}

	views := make([]vehicleView, 0, len(vehicles))
	for _, v := range vehicles {
		view := vehicleView{VehiclePosition: v, HasAlert: geo.HasAssociatedAlert(v, s.Alerts)}
		if point != nil {
			d := geo.Distance(*point, v.Position)
			view.DistanceM = &d
		}
		views = append(views, view)
	}

	h.writeJSON(w, http.StatusOK, vehiclesResponse{Vehicles: views, Count: len(views), FetchedAt: s.FetchedAt})
}

// TripUpdates serves the raw trip updates dump as text. An unavailable
// feed yields 204 No Content.
func (h *Handler) TripUpdates(w http.ResponseWriter, r *http.Request) {
	text := h.feeds.FetchTripUpdates(r.Context())
	if text == "" {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(text))
}

// Snapshot serves the combined snapshot.
func (h *Handler) Snapshot(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.snapshot(r.Context()))
}

// RefreshSnapshot forces a new snapshot regardless of its age.
func (h *Handler) RefreshSnapshot(w http.ResponseWriter, r *http.Request) {
	s, err := h.snapshots.Initialize(r.Context(), true)
	if err != nil {
		h.logger.Error("forced refresh failed", "error", err)
		h.writeError(w, http.StatusBadGateway, "refresh failed: upstream unavailable")
		return
	}
	h.writeJSON(w, http.StatusOK, s)
}

type statusResponse struct {
	Feeds     []realtime.FeedStatus `json:"feeds"`
	Reference referenceStatus       `json:"reference"`
	Snapshot  *time.Time            `json:"snapshot_fetched_at,omitempty"`
}

type referenceStatus struct {
	Loaded bool `json:"loaded"`
	Routes int  `json:"routes"`
	Stops  int  `json:"stops"`
}

// Status reports cache and reference table state. It never triggers a fetch.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	routes, stops := h.ref.Counts()
	resp := statusResponse{
		Feeds:     h.feeds.Status(),
		Reference: referenceStatus{Loaded: h.ref.Loaded(), Routes: routes, Stops: stops},
	}
	if s, ok := h.snapshots.Snapshot(); ok && !s.FetchedAt.IsZero() {
		at := s.FetchedAt
		resp.Snapshot = &at
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// Route serves one reference route.
func (h *Handler) Route(w http.ResponseWriter, r *http.Request) {
	route, ok := h.ref.Route(r.PathValue("id"))
	if !ok {
		h.writeError(w, http.StatusNotFound, "route not found")
		return
	}
	h.writeJSON(w, http.StatusOK, route)
}

// Stop serves one reference stop.
func (h *Handler) Stop(w http.ResponseWriter, r *http.Request) {
	stop, ok := h.ref.Stop(r.PathValue("id"))
	if !ok {
		h.writeError(w, http.StatusNotFound, "stop not found")
		return
	}
	h.writeJSON(w, http.StatusOK, stop)
}

func findAlert(s manager.Snapshot, id string) (transit.Alert, bool) {
	for _, a := range s.Alerts {
		if a.ID == id {
			return a, true
		}
	}
	return transit.Alert{}, false
}

func findVehicle(s manager.Snapshot, id string) (transit.VehiclePosition, bool) {
	for _, v := range s.Vehicles {
		if v.VehicleID == id {
			return v, true
		}
	}
	return transit.VehiclePosition{}, false
}

func filterAlerts(alerts []transit.Alert, keep func(transit.Alert) bool) []transit.Alert {
	var out []transit.Alert
	for _, a := range alerts {
		if keep(a) {
			out = append(out, a)
		}
	}
	return out
}

func contains(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}
