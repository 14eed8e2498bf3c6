// Package stream pushes freshly recorded notifications to connected
// dashboards over websockets.
package stream

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/PratikDhanave/petcare-telemetry-service/internal/metrics"
	"github.com/PratikDhanave/petcare-telemetry-service/internal/notify"
)

// Message is the frame sent to clients.
type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// Hub maintains the set of active clients and broadcasts messages.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Hub)

func WithLogger(l *slog.Logger) Option {
	return func(h *Hub) { h.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Hub) { h.metrics = m }
}

func NewHub(opts ...Option) *Hub {
	h := &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.With("component", "stream")
	return h
}

// Run owns the client set until ctx is cancelled, then disconnects everyone.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				h.drop(c)
			}
			return nil

		case c := <-h.register:
			h.clients[c] = true
			// The buffer is empty for a new client.
			c.send <- h.encode(Message{Type: "connected", Payload: map[string]string{"client": c.ID}})
			h.metrics.StreamClientDelta(1)
			h.logger.Info("stream client connected", "client", c.ID, "name", c.Name)

		case c := <-h.unregister:
			if h.clients[c] {
				h.drop(c)
				h.logger.Info("stream client disconnected", "client", c.ID)
			}

		case msg := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					h.logger.Warn("stream client too slow, dropping", "client", c.ID)
					h.drop(c)
				}
			}
		}
	}
}

func (h *Hub) drop(c *Client) {
	delete(h.clients, c)
	close(c.send)
	h.metrics.StreamClientDelta(-1)
}

// Publish broadcasts a recorded notification. It never blocks the caller; if
// the hub is backed up or stopped the message is dropped.
func (h *Hub) Publish(n notify.Notification) {
	data := h.encode(Message{Type: "notification", Payload: n})
	if data == nil {
		return
	}
	select {
	case h.broadcast <- data:
	case <-h.done:
	default:
		h.logger.Warn("stream broadcast queue full, dropping notification", "message", n.Message)
	}
}

func (h *Hub) encode(m Message) []byte {
	data, err := json.Marshal(m)
	if err != nil {
		h.logger.Error("encoding stream message failed", "type", m.Type, "error", err)
		return nil
	}
	return data
}

func (h *Hub) add(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) remove(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}
