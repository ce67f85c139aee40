// Package transit holds the data model shared by the realtime pipeline:
// static reference rows, parsed alerts and vehicle positions.
package transit

import "time"

// Category is the transport mode an alert or vehicle belongs to.
type Category string

const (
	Bus        Category = "busz"
	Tram       Category = "villamos"
	Metro      Category = "metro"
	Suburban   Category = "hev"
	NightBus   Category = "ejszakai"
	Trolleybus Category = "troli"
	Ferry      Category = "hajo"
)

// Categories lists every valid category.
var Categories = []Category{Bus, Tram, Metro, Suburban, NightBus, Trolleybus, Ferry}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	for _, k := range Categories {
		if c == k {
			return true
		}
	}
	return false
}

// Route is a row of the static routes table.
type Route struct {
	ID        string `json:"id"`
	ShortName string `json:"short_name"`
	LongName  string `json:"long_name"`
	Type      int    `json:"route_type"`
	Color     string `json:"color"`
}

// Stop is a row of the static stops table.
type Stop struct {
	ID   string  `json:"id"`
	Name string  `json:"name"`
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
	Code string  `json:"code,omitempty"`
}

// Position is a WGS84 coordinate.
type Position struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Alert is a parsed service alert. AffectedRoutes holds display names.
type Alert struct {
	ID             string     `json:"id"`
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	AffectedRoutes []string   `json:"affected_routes"`
	Start          time.Time  `json:"start"`
	End            *time.Time `json:"end,omitempty"`
	Category       Category   `json:"category"`
	Priority       int        `json:"priority"`
	Cause          string     `json:"cause"`
	Effect         string     `json:"effect"`
	URL            string     `json:"url,omitempty"`
}

// IsActive reports whether the alert is in effect at now. The end bound is exclusive.
func (a Alert) IsActive(now time.Time) bool {
	if now.Before(a.Start) {
		return false
	}
	return a.End == nil || now.Before(*a.End)
}

// VehiclePosition is a parsed vehicle position.
type VehiclePosition struct {
	VehicleID    string    `json:"vehicle_id"`
	RouteID      string    `json:"route_id"`
	RouteName    string    `json:"route_name"`
	Position     Position  `json:"position"`
	Timestamp    time.Time `json:"timestamp"`
	VehicleType  Category  `json:"vehicle_type"`
	Status       string    `json:"status"`
	LicensePlate string    `json:"license_plate,omitempty"`
	CurrentStop  string    `json:"current_stop,omitempty"`
}

// RouteResolver looks up reference routes by id.
type RouteResolver interface {
	Route(id string) (Route, bool)
}

// StopResolver looks up reference stops by id.
type StopResolver interface {
	Stop(id string) (Stop, bool)
}

// ActiveAlerts returns the alerts in effect at now.
func ActiveAlerts(alerts []Alert, now time.Time) []Alert {
	var out []Alert
	for _, a := range alerts {
		if a.IsActive(now) {
			out = append(out, a)
		}
	}
	return out
}
