package verification

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"bkkrt/internal/feed"
	"bkkrt/internal/geo"
	"bkkrt/internal/transit"
)

// namespace scopes the deterministic subject ids.
var namespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://bkk.hu/verification"))

// Builder builds records with a configurable clock.
type Builder struct {
	Now func() time.Time
}

var defaultBuilder = Builder{Now: time.Now}

func (b Builder) now() time.Time {
	if b.Now == nil {
		return time.Now()
	}
	return b.Now()
}

// BuildDisruption builds a record with the package clock.
func BuildDisruption(alert transit.Alert, userLocation *transit.Position, dataSource string) Disruption {
	return defaultBuilder.BuildDisruption(alert, userLocation, dataSource)
}

// BuildVehicle builds a record with the package clock.
func BuildVehicle(vehicle transit.VehiclePosition, userLocation *transit.Position, hasDelays bool, relatedAlertIDs []string, dataSource string, opts ...VehicleOption) VehicleModification {
	return defaultBuilder.BuildVehicle(vehicle, userLocation, hasDelays, relatedAlertIDs, dataSource, opts...)
}

// BuildDisruption snapshots alert into a Disruption record.
func (b Builder) BuildDisruption(alert transit.Alert, userLocation *transit.Position, dataSource string) Disruption {
	data := &AlertData{
		ID:             alert.ID,
		Title:          alert.Title,
		Description:    alert.Description,
		AffectedRoutes: cloneStrings(alert.AffectedRoutes),
		Start:          alert.Start,
		Category:       alert.Category,
		Priority:       alert.Priority,
		Cause:          alert.Cause,
		Effect:         alert.Effect,
		EffectLabel:    feed.EffectLabel(alert.Effect),
		URL:            alert.URL,
	}
	if alert.End != nil {
		end := *alert.End
		data.End = &end
	}

	return Disruption{
		Type:         KindDisruption,
		SubjectID:    subjectID(KindDisruption, alert.ID),
		Timestamp:    b.now(),
		Description:  disruptionDescription(alert),
		UserLocation: clonePosition(userLocation),
		AlertData:    data,
		Metadata:     Metadata{DataSource: dataSource, Version: schemaVersion},
	}
}

// VehicleOption customises a vehicle record.
type VehicleOption func(*VehicleModification)

// WithReferenceCheck attaches a reference validation result.
func WithReferenceCheck(check ReferenceCheck) VehicleOption {
	return func(r *VehicleModification) {
		r.VehicleData.ReferenceCheck = &check
	}
}

// BuildVehicle snapshots vehicle into a VehicleModification record. The
// distance to userLocation is included when a location is given.
func (b Builder) BuildVehicle(vehicle transit.VehiclePosition, userLocation *transit.Position, hasDelays bool, relatedAlertIDs []string, dataSource string, opts ...VehicleOption) VehicleModification {
	related := cloneStrings(relatedAlertIDs)
	if related == nil {
		related = []string{}
	}

	r := VehicleModification{
		Type:         KindVehicleModification,
		SubjectID:    subjectID(KindVehicleModification, vehicle.VehicleID),
		Timestamp:    b.now(),
		Description:  vehicleDescription(vehicle, hasDelays),
		UserLocation: clonePosition(userLocation),
		VehicleData: &VehicleData{
			VehicleID:    vehicle.VehicleID,
			RouteID:      vehicle.RouteID,
			RouteName:    vehicle.RouteName,
			VehicleType:  vehicle.VehicleType,
			Position:     vehicle.Position,
			Status:       vehicle.Status,
			CurrentStop:  vehicle.CurrentStop,
			LicensePlate: vehicle.LicensePlate,
			ObservedAt:   vehicle.Timestamp,
			TripModifications: TripModifications{
				HasDelays:     hasDelays,
				RelatedAlerts: related,
			},
		},
		Metadata: Metadata{DataSource: dataSource, Version: schemaVersion},
	}

	if userLocation != nil {
		d := geo.Distance(*userLocation, vehicle.Position)
		r.DistanceFromUser = &d
	}
	for _, opt := range opts {
		opt(&r)
	}
	return r
}

// CheckReferences looks the vehicle's route and current stop up in the
// static tables. Either resolver may be nil.
func CheckReferences(routes transit.RouteResolver, stops transit.StopResolver, vehicle transit.VehiclePosition) ReferenceCheck {
	var c ReferenceCheck
	if routes != nil && vehicle.RouteID != "" {
		if r, ok := routes.Route(vehicle.RouteID); ok {
			c.RouteKnown = true
			c.RouteName = r.ShortName
		}
	}
	if stops != nil && vehicle.CurrentStop != "" {
		if s, ok := stops.Stop(vehicle.CurrentStop); ok {
			c.StopKnown = true
			c.StopName = s.Name
		}
	}
	return c
}

func subjectID(kind Kind, id string) string {
	return uuid.NewSHA1(namespace, []byte(string(kind)+":"+id)).String()
}

func disruptionDescription(a transit.Alert) string {
	parts := []string{a.Title}
	if a.Description != "" && a.Description != a.Title {
		parts = append(parts, a.Description)
	}
	if len(a.AffectedRoutes) > 0 {
		parts = append(parts, "Érintett járatok: "+strings.Join(a.AffectedRoutes, ", "))
	}
	return strings.Join(parts, " | ")
}

func vehicleDescription(v transit.VehiclePosition, hasDelays bool) string {
	name := v.RouteName
	if name == "" {
		name = v.RouteID
	}
	s := fmt.Sprintf("%s %s (%s), %s", name, v.VehicleType, v.VehicleID, feed.StatusLabel(v.Status))
	if hasDelays {
		s += ", késéssel"
	}
	return s
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}

func clonePosition(p *transit.Position) *transit.Position {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}
