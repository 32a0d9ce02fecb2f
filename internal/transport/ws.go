package transport

import (
	"net/http"
	"time"

	"github.com/knitgrid/tally/internal/broadcast"
	"github.com/knitgrid/tally/internal/domain/counter"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// feedFrame is one websocket message on a project feed. A snapshot frame
// carries the project's counters; a counter.changed frame carries the
// complete change set of one committed root update.
type feedFrame struct {
	Type     string            `json:"type"`
	Counters []counter.Counter `json:"counters,omitempty"`
	Events   []broadcast.Event `json:"events,omitempty"`
}

// handleFeed serves the live project feed. The subscription opens before the
// snapshot read, so a change committed between the two shows up as an event
// rather than falling into a gap; clients reconcile duplicates by sequence.
func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := s.tenant(w, r)
	if !ok {
		return
	}
	projectID := chi.URLParam(r, "projectID")

	sub, err := s.svc.Hub.Subscribe(r.Context(), tenantID, projectID)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	defer sub.Close()

	counters, err := s.svc.Counters.ListByProject(r.Context(), tenantID, projectID)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written its own error response.
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(feedFrame{Type: "snapshot", Counters: counters}); err != nil {
		return
	}

	// Reader pump: clients send nothing we act on, but reads surface pongs
	// and closure.
	go func() {
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				sub.Close()
				_ = conn.Close()
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case events, open := <-sub.Events():
			if !open {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
					time.Now().Add(writeWait))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(feedFrame{Type: "counter.changed", Events: events}); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
