package web

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/zombor/receipt-capture/internal/capture"
)

// handleEvents streams workflow snapshots as server-sent "state" events
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	// the first update is the current snapshot
	updates, unsubscribe := s.workflow.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-r.Context().Done():
			return
		case snap, ok := <-updates:
			if !ok {
				sendEvent(w, flusher, "closed", `{}`)
				return
			}
			if err := sendSnapshot(w, flusher, snap); err != nil {
				slog.Error("Error encoding state event", "error", err)
				return
			}
		}
	}
}

func sendSnapshot(w http.ResponseWriter, flusher http.Flusher, snap capture.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	sendEvent(w, flusher, "state", string(data))
	return nil
}

func sendEvent(w http.ResponseWriter, flusher http.Flusher, event, data string) {
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	flusher.Flush()
}
