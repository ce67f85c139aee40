package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"bkkrt/internal/manager"
	"bkkrt/internal/realtime"
	"bkkrt/internal/transit"
	"bkkrt/internal/verification"
)

// Snapshots is the manager surface used by the handlers.
type Snapshots interface {
	Initialize(ctx context.Context, force bool) (manager.Snapshot, error)
	Snapshot() (manager.Snapshot, bool)
	Subscribe(fn manager.Listener) func()
}

// Feeds is the coordinator surface used by the handlers.
type Feeds interface {
	FetchTripUpdates(ctx context.Context) string
	Status() []realtime.FeedStatus
}

// Reference is the static table surface used by the handlers.
type Reference interface {
	transit.RouteResolver
	transit.StopResolver
	Loaded() bool
	Counts() (routes, stops int)
}

// Handler holds shared dependencies for all HTTP handlers.
type Handler struct {
	snapshots  Snapshots
	feeds      Feeds
	ref        Reference
	builder    verification.Builder
	dataSource string
	logger     *slog.Logger
}

// New creates a Handler. dataSource tags every verification record built.
func New(snapshots Snapshots, feeds Feeds, ref Reference, dataSource string, logger *slog.Logger) *Handler {
	return &Handler{
		snapshots:  snapshots,
		feeds:      feeds,
		ref:        ref,
		dataSource: dataSource,
		logger:     logger,
	}
}

// snapshot returns the current snapshot, refreshing it when stale. A
// refresh failure is logged and whatever is stored is served.
func (h *Handler) snapshot(ctx context.Context) manager.Snapshot {
	s, err := h.snapshots.Initialize(ctx, false)
	if err != nil {
		h.logger.Warn("serving stored snapshot after refresh failure", "error", err)
	}
	if s.Alerts == nil {
		s.Alerts = []transit.Alert{}
	}
	if s.Vehicles == nil {
		s.Vehicles = []transit.VehiclePosition{}
	}
	return s
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("encoding response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, errorResponse{Error: msg})
}
