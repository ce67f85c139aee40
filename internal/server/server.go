package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"bkkrt/internal/handler"
	"bkkrt/web"
)

// examplesPrefix is the URL path the BKK client requests example payloads
// and reference tables under.
const examplesPrefix = "/BKK Examples/"

const shutdownTimeout = 10 * time.Second

// Server is the HTTP server for the realtime API.
type Server struct {
	mux    *http.ServeMux
	port   int
	logger *slog.Logger
}

// New creates a new Server with all routes registered.
func New(h *handler.Handler, port int, logger *slog.Logger) *Server {
	mux := http.NewServeMux()
	s := &Server{mux: mux, port: port, logger: logger}

	// Realtime data
	mux.HandleFunc("GET /api/alerts", h.Alerts)
	mux.HandleFunc("GET /api/vehicles", h.Vehicles)
	mux.HandleFunc("GET /api/trip-updates", h.TripUpdates)
	mux.HandleFunc("GET /api/snapshot", h.Snapshot)
	mux.HandleFunc("POST /api/snapshot/refresh", h.RefreshSnapshot)
	mux.HandleFunc("GET /api/status", h.Status)

	// Reference tables
	mux.HandleFunc("GET /api/routes/{id}", h.Route)
	mux.HandleFunc("GET /api/stops/{id}", h.Stop)

	// Verification records
	mux.HandleFunc("POST /api/verification/disruption", h.VerifyDisruption)
	mux.HandleFunc("POST /api/verification/vehicle", h.VerifyVehicle)
	mux.HandleFunc("POST /api/verification/validate", h.ValidateRecord)

	// SSE
	mux.HandleFunc("GET /sse/snapshot", h.SSESnapshot)

	// Example payloads, served from the embedded FS. The directory name
	// contains a space, so it is matched here rather than as a mux pattern.
	examples := http.StripPrefix(strings.TrimSuffix(examplesPrefix, "/"),
		staticCacheHandler(http.FileServer(http.FS(web.Examples()))))
	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, examplesPrefix) {
			examples.ServeHTTP(w, r)
			return
		}
		notFound(w)
	})

	return s
}

// Handler returns the routed handler wrapped in middleware.
func (s *Server) Handler() http.Handler {
	return withMiddleware(s.mux, s.logger)
}

// Listen binds the configured port. Binding before serving lets callers
// start clients of this server only once it accepts connections.
func (s *Server) Listen() (net.Listener, error) {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return nil, fmt.Errorf("listen: %w", err)
	}
	return ln, nil
}

// Serve serves on ln and shuts down gracefully once ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.logger.Info("server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func notFound(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)
	w.Write([]byte(`{"error":"not found"}` + "\n"))
}
