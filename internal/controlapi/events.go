package controlapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/forgewright/agentcore/internal/eventbus"
)

// handleEvents handles GET /v1/sessions/{id}/events, an SSE stream of the
// session's event log. A Last-Event-ID header resumes from that cursor;
// events already evicted from the ring surface as a single gap_detected
// event before the stream continues live.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, newAPIError(http.StatusInternalServerError, "streaming_unsupported", "response writer does not support flushing"))
		return
	}

	sessionID := r.PathValue("id")

	var fromID *uint64
	if last := r.Header.Get("Last-Event-ID"); last != "" {
		if id, err := strconv.ParseUint(last, 10, 64); err == nil {
			fromID = &id
		}
	}

	events, cancel := s.cfg.Bus.Subscribe(sessionID, fromID)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := writeSSEEvent(w, ev); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeSSEEvent(w http.ResponseWriter, ev eventbus.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if ev.ID != 0 {
		if _, err := fmt.Fprintf(w, "id: %d\n", ev.ID); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind, payload); err != nil {
		return err
	}
	return nil
}
