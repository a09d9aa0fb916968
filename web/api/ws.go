package api

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hochfrequenz/prompt-scraper/internal/protocol"
)

const wsWriteTimeout = 10 * time.Second

func (s *Server) wsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("WebSocket upgrade failed: %v", err)
			return
		}
		defer conn.Close()

		updates, unsubscribe := s.runs.Subscribe()
		defer unsubscribe()

		// Replies to client requests; the read loop never blocks on it
		replies := make(chan protocol.Envelope, 16)
		readDone := make(chan struct{})
		go func() {
			defer close(readDone)
			s.readClient(conn, replies)
		}()

		if err := writeEnvelope(conn, protocol.Envelope{
			Type:    protocol.TypeSnapshot,
			Payload: protocol.SnapshotMessage{State: s.runs.Snapshot()},
		}); err != nil {
			return
		}

		for {
			select {
			case <-readDone:
				return
			case <-s.runCtx.Done():
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
					time.Now().Add(time.Second))
				return
			case snap, ok := <-updates:
				if !ok {
					return
				}
				if err := writeEnvelope(conn, protocol.FromSnapshot(snap)); err != nil {
					return
				}
			case env := <-replies:
				if err := writeEnvelope(conn, env); err != nil {
					return
				}
			}
		}
	}
}

// readClient handles start and cancel requests until the connection closes
func (s *Server) readClient(conn *websocket.Conn, replies chan<- protocol.Envelope) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket read error: %v", err)
			}
			return
		}

		msg, err := protocol.DecodeClient(data)
		if err != nil {
			reply(replies, errorEnvelope(err))
			continue
		}

		switch m := msg.(type) {
		case protocol.StartMessage:
			if _, err := s.submit(m.Prompt); err != nil {
				reply(replies, errorEnvelope(err))
			}
		case protocol.CancelMessage:
			if err := s.runs.Cancel(); err != nil {
				reply(replies, errorEnvelope(err))
			}
		}
	}
}

func reply(replies chan<- protocol.Envelope, env protocol.Envelope) {
	select {
	case replies <- env:
	default:
	}
}

func errorEnvelope(err error) protocol.Envelope {
	return protocol.Envelope{Type: protocol.TypeError, Payload: protocol.ErrorMessage{Message: err.Error()}}
}

func writeEnvelope(conn *websocket.Conn, env protocol.Envelope) error {
	conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteJSON(env)
}
