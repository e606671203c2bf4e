package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/talgya/planet-harvest/internal/engine"
)

const (
	writeTimeout = 5 * time.Second
	readTimeout  = 60 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 64 * 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// StreamMessage is one websocket text frame. The first message on a
// connection is a "hello" carrying the current status; every later one is a
// "tick".
type StreamMessage struct {
	Type   string            `json:"type"`
	Status *engine.Status    `json:"status,omitempty"`
	Frame  *engine.TickFrame `json:"frame,omitempty"`
}

// handleStream upgrades to a websocket and pushes one message per tick.
// Clients only need to read; anything they send is discarded.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	limit := int32(s.MaxStreamClients)
	if limit <= 0 {
		limit = 32
	}
	if s.streamConns.Add(1) > limit {
		s.streamConns.Add(-1)
		http.Error(w, "too many stream connections", http.StatusServiceUnavailable)
		return
	}
	defer s.streamConns.Add(-1)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Debug("stream upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	subID, ch := s.Sim.Subscribe()
	defer s.Sim.Unsubscribe(subID)
	slog.Info("stream client connected", "sub_id", subID, "remote", r.RemoteAddr)

	status := s.Sim.Status()
	if err := writeStream(conn, StreamMessage{Type: "hello", Status: &status}); err != nil {
		return
	}

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case f, ok := <-ch:
			if !ok {
				return
			}
			if err := writeStream(conn, StreamMessage{Type: "tick", Frame: &f}); err != nil {
				slog.Debug("stream write failed", "sub_id", subID, "error", err)
				return
			}
		case <-gone:
			slog.Info("stream client disconnected", "sub_id", subID)
			return
		case <-r.Context().Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(time.Second))
			return
		}
	}
}

func writeStream(conn *websocket.Conn, msg StreamMessage) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(websocket.TextMessage, b)
}
