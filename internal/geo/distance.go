package geo

import (
	"math"

	"bkkrt/internal/transit"
)

const earthRadiusMeters = 6_371_000

// Haversine returns the great-circle distance in meters between two lat/lng points.
func Haversine(lat1, lng1, lat2, lng2 float64) float64 {
	if lat1 == lat2 && lng1 == lng2 {
		return 0
	}
	dLat := toRad(lat2 - lat1)
	dLng := toRad(lng2 - lng1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*
			math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusMeters * c
}

// Distance is Haversine over two positions.
func Distance(a, b transit.Position) float64 {
	return Haversine(a.Lat, a.Lng, b.Lat, b.Lng)
}

// FindNearby returns the vehicles within radiusMeters of point. The boundary is inclusive.
func FindNearby(vehicles []transit.VehiclePosition, point transit.Position, radiusMeters float64) []transit.VehiclePosition {
	var out []transit.VehiclePosition
	for _, v := range vehicles {
		if Distance(point, v.Position) <= radiusMeters {
			out = append(out, v)
		}
	}
	return out
}

// HasAssociatedAlert reports whether any alert lists the vehicle's route,
// either by raw route id or by its enriched display name.
func HasAssociatedAlert(v transit.VehiclePosition, alerts []transit.Alert) bool {
	return len(RelatedAlertIDs(v, alerts)) > 0
}

// RelatedAlertIDs returns the ids of the alerts affecting the vehicle's route.
func RelatedAlertIDs(v transit.VehiclePosition, alerts []transit.Alert) []string {
	var ids []string
	for _, a := range alerts {
		for _, r := range a.AffectedRoutes {
			if (v.RouteID != "" && r == v.RouteID) || (v.RouteName != "" && r == v.RouteName) {
				ids = append(ids, a.ID)
				break
			}
		}
	}
	return ids
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}
