package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"bkkrt/internal/manager"
	"bkkrt/internal/publish"
)

// heartbeat keeps idle SSE connections open through proxies.
const heartbeat = 30 * time.Second

// SSESnapshot streams a summary of every new snapshot via Server-Sent Events.
func (h *Handler) SSESnapshot(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	// Listeners run inside the manager's broadcast, so never block there:
	// keep only the newest snapshot.
	updates := make(chan manager.Snapshot, 1)
	unsubscribe := h.snapshots.Subscribe(func(s manager.Snapshot) {
		select {
		case <-updates:
		default:
		}
		select {
		case updates <- s:
		default:
		}
	})
	defer unsubscribe()

	if s, ok := h.snapshots.Snapshot(); ok {
		h.sendSnapshotEvent(w, flusher, s)
	} else {
		fmt.Fprint(w, ": waiting for first snapshot\n\n")
		flusher.Flush()
	}

	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	for {
		select {
		case s := <-updates:
			h.sendSnapshotEvent(w, flusher, s)
		case <-ticker.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case <-ctx.Done():
			return
		}
	}
}

// sendSnapshotEvent writes one "snapshot" event carrying the summary JSON.
func (h *Handler) sendSnapshotEvent(w http.ResponseWriter, flusher http.Flusher, s manager.Snapshot) {
	data, err := json.Marshal(publish.Summarize(s, time.Now()))
	if err != nil {
		h.logger.Error("encoding SSE snapshot", "error", err)
		return
	}
	fmt.Fprintf(w, "event: snapshot\n")
	fmt.Fprintf(w, "data: %s\n\n", data)
	flusher.Flush()
}
