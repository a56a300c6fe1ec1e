// Package updates fans detection payloads out to dashboard websocket
// clients. The hub owns the client set; clients attach when their websocket
// upgrade completes and detach when their connection dies or the hub shuts
// down.
package updates

import (
	"context"
	"log/slog"
	"sync"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
)

// MessageTypeDetections tags fan-out of a received detection payload.
const MessageTypeDetections = "detections"

// Message is one broadcast envelope.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Hub maintains the set of attached clients and broadcasts messages to them.
type Hub struct {
	mu         sync.RWMutex
	clients    map[*client]bool
	broadcast  chan Message
	register   chan *client
	unregister chan *client
	done       chan struct{}
	log        *slog.Logger
}

// NewHub returns a hub; call Run to start delivery.
func NewHub(log *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan Message, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		log:        log,
	}
}

// Run delivers broadcasts until ctx is canceled, then closes every attached
// client and returns ctx.Err(). The hub's done channel is closed on the way
// out so that Attach calls and unregistering clients cannot block on a loop
// that is no longer receiving.
func (h *Hub) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			close(h.done)
			return ctx.Err()
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			n := len(h.clients)
			h.mu.Unlock()
			h.log.Info("updates client attached", slog.Int("total_clients", n))
		case c := <-h.unregister:
			h.drop(c)
		case msg := <-h.broadcast:
			h.deliver(msg)
		}
	}
}

// Broadcast queues a message for delivery to all clients. When the hub's
// queue is full the message is dropped; detection fan-out is advisory and
// must never block the feed handler.
func (h *Hub) Broadcast(msg Message) {
	select {
	case h.broadcast <- msg:
	default:
		h.log.Warn("updates broadcast queue full, message dropped")
	}
}

// Attach registers conn as a dashboard client and starts its read and write
// pumps. The hub takes ownership of the connection; attaching to a hub that
// has already stopped just closes it.
func (h *Hub) Attach(conn *websocket.Conn) {
	c := newClient(h, conn)
	select {
	case h.register <- c:
		c.start()
	case <-h.done:
		conn.Close()
	}
}

// ClientCount returns the number of attached clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// deliver marshals msg once and enqueues it on every client. A client whose
// send buffer is full is too far behind to be useful and is dropped.
func (h *Hub) deliver(msg Message) {
	payload, err := json.Marshal(msg)
	if err != nil {
		h.log.Error("updates marshal failed", slog.String("error", err.Error()))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			delete(h.clients, c)
			close(c.send)
			h.log.Info("updates client dropped (slow consumer)")
		}
	}
}

// drop detaches one client.
func (h *Hub) drop(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
		h.log.Info("updates client detached", slog.Int("total_clients", len(h.clients)))
	}
}

// closeAll detaches every client during shutdown.
func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
	h.log.Info("updates hub stopped")
}
