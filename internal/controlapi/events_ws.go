package controlapi

import (
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	// Sessions are addressed by the agentctl CLI talking to a local or
	// trusted agentcored instance, not a browser page, so the usual
	// same-origin check doesn't apply here.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleEventsWS handles GET /v1/sessions/{id}/events/ws, a lower-latency
// alternative to the SSE endpoint for local tools like agentctl that
// already speak WebSocket.
func (s *Server) handleEventsWS(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")

	var fromID *uint64
	if last := r.Header.Get("Last-Event-ID"); last != "" {
		if id, err := strconv.ParseUint(last, 10, 64); err == nil {
			fromID = &id
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	events, cancel := s.cfg.Bus.Subscribe(sessionID, fromID)
	defer cancel()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		}
	}
}
