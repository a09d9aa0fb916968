package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/hochfrequenz/prompt-scraper/internal/protocol"
)

// SSEHub manages SSE connections
type SSEHub struct {
	clients    map[chan protocol.Envelope]bool
	broadcast  chan protocol.Envelope
	register   chan chan protocol.Envelope
	unregister chan chan protocol.Envelope
	done       chan struct{}
	mu         sync.RWMutex
}

// NewSSEHub creates a new SSE hub
func NewSSEHub() *SSEHub {
	return &SSEHub{
		clients:    make(map[chan protocol.Envelope]bool),
		broadcast:  make(chan protocol.Envelope, 64),
		register:   make(chan chan protocol.Envelope),
		unregister: make(chan chan protocol.Envelope),
		done:       make(chan struct{}),
	}
}

// Run dispatches events to clients until ctx is done
func (h *SSEHub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client)
			}
			h.mu.Unlock()

		case event := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client <- event:
				default:
					// Drop clients that fall behind
					close(client)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Broadcast sends an event to all clients
func (h *SSEHub) Broadcast(event protocol.Envelope) {
	select {
	case h.broadcast <- event:
	case <-h.done:
	}
}

func (h *SSEHub) add(client chan protocol.Envelope) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

func (h *SSEHub) remove(client chan protocol.Envelope) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// ClientCount returns the number of connected clients
func (h *SSEHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (s *Server) sseHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "Streaming not supported", http.StatusInternalServerError)
			return
		}

		// Set SSE headers
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("Access-Control-Allow-Origin", "*")

		// Create client channel
		client := make(chan protocol.Envelope, 16)
		if !s.sseHub.add(client) {
			writeError(w, http.StatusServiceUnavailable, "server shutting down")
			return
		}

		// Cleanup on disconnect
		notify := r.Context().Done()
		go func() {
			<-notify
			s.sseHub.remove(client)
		}()

		writeEvent(w, protocol.Envelope{
			Type:    protocol.TypeSnapshot,
			Payload: protocol.SnapshotMessage{State: s.runs.Snapshot()},
		})
		flusher.Flush()

		for event := range client {
			writeEvent(w, event)
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, event protocol.Envelope) {
	data, _ := protocol.MarshalEnvelope(event.Type, event.Payload)
	fmt.Fprintf(w, "event: %s\n", event.Type)
	fmt.Fprintf(w, "data: %s\n\n", data)
}
