// Package verification builds the records that prove a disruption or a
// vehicle state was shown to a user at a given moment. Records are plain
// snapshots: once built they never read live state again.
package verification

import (
	"time"

	"bkkrt/internal/transit"
)

// Kind discriminates the record variants.
type Kind string

const (
	KindDisruption          Kind = "disruption"
	KindVehicleModification Kind = "vehicle_modification"
)

// Record is implemented by Disruption and VehicleModification only.
type Record interface {
	RecordKind() Kind
	sealed()
}

// Metadata describes where a record's data came from.
type Metadata struct {
	DataSource string `json:"data_source" validate:"required"`
	Version    int    `json:"version"`
}

const schemaVersion = 1

// AlertData is the alert snapshot carried by a Disruption.
type AlertData struct {
	ID             string           `json:"id" validate:"required"`
	Title          string           `json:"title"`
	Description    string           `json:"description"`
	AffectedRoutes []string         `json:"affected_routes"`
	Start          time.Time        `json:"start"`
	End            *time.Time       `json:"end,omitempty"`
	Category       transit.Category `json:"category"`
	Priority       int              `json:"priority"`
	Cause          string           `json:"cause"`
	Effect         string           `json:"effect"`
	EffectLabel    string           `json:"effect_label"`
	URL            string           `json:"url,omitempty"`
}

// Disruption records a service alert.
type Disruption struct {
	Type         Kind              `json:"type" validate:"eq=disruption"`
	SubjectID    string            `json:"subject_id" validate:"required,uuid"`
	Timestamp    time.Time         `json:"timestamp" validate:"required"`
	Description  string            `json:"description"`
	UserLocation *transit.Position `json:"user_location,omitempty"`
	AlertData    *AlertData        `json:"alert_data" validate:"required"`
	Metadata     Metadata          `json:"metadata"`
}

func (Disruption) RecordKind() Kind { return KindDisruption }
func (Disruption) sealed()          {}

// TripModifications summarises what affects the vehicle's trip.
type TripModifications struct {
	HasDelays     bool     `json:"has_delays"`
	RelatedAlerts []string `json:"related_alerts"`
}

// ReferenceCheck is the result of checking a vehicle against the static tables.
type ReferenceCheck struct {
	RouteKnown bool   `json:"route_known"`
	StopKnown  bool   `json:"stop_known"`
	RouteName  string `json:"route_name,omitempty"`
	StopName   string `json:"stop_name,omitempty"`
}

// VehicleData is the vehicle snapshot carried by a VehicleModification.
type VehicleData struct {
	VehicleID         string            `json:"vehicle_id" validate:"required"`
	RouteID           string            `json:"route_id"`
	RouteName         string            `json:"route_name"`
	VehicleType       transit.Category  `json:"vehicle_type"`
	Position          transit.Position  `json:"position"`
	Status            string            `json:"status"`
	CurrentStop       string            `json:"current_stop,omitempty"`
	LicensePlate      string            `json:"license_plate,omitempty"`
	ObservedAt        time.Time         `json:"observed_at"`
	TripModifications TripModifications `json:"trip_modifications"`
	ReferenceCheck    *ReferenceCheck   `json:"reference_check,omitempty"`
}

// VehicleModification records a vehicle state.
type VehicleModification struct {
	Type             Kind              `json:"type" validate:"eq=vehicle_modification"`
	SubjectID        string            `json:"subject_id" validate:"required,uuid"`
	Timestamp        time.Time         `json:"timestamp" validate:"required"`
	Description      string            `json:"description"`
	UserLocation     *transit.Position `json:"user_location,omitempty"`
	DistanceFromUser *float64          `json:"distance_from_user,omitempty"`
	VehicleData      *VehicleData      `json:"vehicle_data" validate:"required"`
	Metadata         Metadata          `json:"metadata"`
}

func (VehicleModification) RecordKind() Kind { return KindVehicleModification }
func (VehicleModification) sealed()          {}
