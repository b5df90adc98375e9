// Package hub provides a thread-safe websocket broadcast hub for dashboard
// clients using the channel-based fan-out pattern.
package hub

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/teslashibe/go-guardian/pkg/protocol"
)

// Hub maintains the set of active clients and broadcasts messages to them
type Hub struct {
	logger *slog.Logger

	// Registered clients
	clients map[*Client]bool

	// Inbound messages to broadcast
	broadcast chan []byte

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Messages queued for each new client before any broadcast
	greeting func() [][]byte

	mu      sync.RWMutex
	running bool
	done    chan struct{}
	stopped chan struct{}
	stop    sync.Once
}

// New creates a new Hub
func New(name string, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger:     logger.With("component", "hub", "hub", name),
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		stopped:    make(chan struct{}),
	}
}

// OnConnect sets a function producing the messages every new client
// receives first (typically a state snapshot).
func (h *Hub) OnConnect(fn func() [][]byte) {
	h.mu.Lock()
	h.greeting = fn
	h.mu.Unlock()
}

// Run starts the hub's main loop. It returns after Stop.
func (h *Hub) Run() {
	h.mu.Lock()
	h.running = true
	h.mu.Unlock()
	defer close(h.stopped)

	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.running = false
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			count := len(h.clients)
			greeting := h.greeting
			h.mu.Unlock()
			if greeting != nil {
				for _, msg := range greeting() {
					select {
					case client.send <- msg:
					default:
					}
				}
			}
			h.logger.Info("client connected", "clients", count)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			count := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("client disconnected", "clients", count)

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Client's buffer is full - they're too slow
					close(client.send)
					delete(h.clients, client)
					h.logger.Warn("dropped slow client")
				}
			}
			h.mu.Unlock()
		}
	}
}

// Stop ends the Run loop and disconnects every client.
func (h *Hub) Stop() {
	h.stop.Do(func() { close(h.done) })
	h.mu.RLock()
	running := h.running
	h.mu.RUnlock()
	if running {
		<-h.stopped
	}
}

// Broadcast sends raw bytes to all connected clients
func (h *Hub) Broadcast(data []byte) {
	select {
	case h.broadcast <- data:
	default:
		h.logger.Warn("broadcast channel full, dropping message")
	}
}

// BroadcastMessage encodes and broadcasts a protocol message
func (h *Hub) BroadcastMessage(msg *protocol.Message) error {
	data, err := msg.Bytes()
	if err != nil {
		return err
	}
	h.Broadcast(data)
	return nil
}

// BroadcastJSON encodes and broadcasts any JSON value
func (h *Hub) BroadcastJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.Broadcast(data)
	return nil
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// IsRunning returns whether the hub is running
func (h *Hub) IsRunning() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.running
}
