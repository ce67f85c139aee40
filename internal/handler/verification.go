package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"bkkrt/internal/geo"
	"bkkrt/internal/transit"
	"bkkrt/internal/verification"
)

const maxRecordBytes = 1 << 20

type disruptionRequest struct {
	AlertID      string            `json:"alert_id"`
	UserLocation *transit.Position `json:"user_location"`
}

type vehicleRequest struct {
	VehicleID    string            `json:"vehicle_id"`
	UserLocation *transit.Position `json:"user_location"`
}

// VerifyDisruption builds a disruption record for an alert of the current
// snapshot.
func (h *Handler) VerifyDisruption(w http.ResponseWriter, r *http.Request) {
	var req disruptionRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRecordBytes)).Decode(&req); err != nil || req.AlertID == "" {
		h.writeError(w, http.StatusBadRequest, "alert_id is required")
		return
	}

	alert, ok := findAlert(h.snapshot(r.Context()), req.AlertID)
	if !ok {
		h.writeError(w, http.StatusNotFound, "alert not found")
		return
	}

	rec := h.builder.BuildDisruption(alert, req.UserLocation, h.dataSource)
	h.logger.Info("disruption record built", "alert_id", alert.ID, "subject_id", rec.SubjectID)
	h.writeJSON(w, http.StatusCreated, rec)
}

// VerifyVehicle builds a vehicle record for a vehicle of the current
// snapshot. Delays are inferred from alerts on the vehicle's route.
func (h *Handler) VerifyVehicle(w http.ResponseWriter, r *http.Request) {
	var req vehicleRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRecordBytes)).Decode(&req); err != nil || req.VehicleID == "" {
		h.writeError(w, http.StatusBadRequest, "vehicle_id is required")
		return
	}

	s := h.snapshot(r.Context())
	vehicle, ok := findVehicle(s, req.VehicleID)
	if !ok {
		h.writeError(w, http.StatusNotFound, "vehicle not found")
		return
	}

	related := geo.RelatedAlertIDs(vehicle, s.Alerts)
	rec := h.builder.BuildVehicle(vehicle, req.UserLocation, len(related) > 0, related, h.dataSource,
		verification.WithReferenceCheck(verification.CheckReferences(h.ref, h.ref, vehicle)))
	h.logger.Info("vehicle record built", "vehicle_id", vehicle.VehicleID, "subject_id", rec.SubjectID)
	h.writeJSON(w, http.StatusCreated, rec)
}

type validateResponse struct {
	Valid bool              `json:"valid"`
	Type  verification.Kind `json:"type,omitempty"`
	Error string            `json:"error,omitempty"`
}

// ValidateRecord checks a record posted back by the dashboard.
func (h *Handler) ValidateRecord(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxRecordBytes))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "could not read body")
		return
	}

	rec, err := verification.Validate(data)
	if err != nil {
		status := http.StatusUnprocessableEntity
		if errors.Is(err, verification.ErrUnknownKind) {
			status = http.StatusBadRequest
		}
		h.writeJSON(w, status, validateResponse{Valid: false, Error: err.Error()})
		return
	}
	h.writeJSON(w, http.StatusOK, validateResponse{Valid: true, Type: rec.RecordKind()})
}
