// Package ws carries the control-plane WebSocket: one multiplexed
// channel per browser tab over which session state, planner traffic and
// pool commands flow as JSON envelopes.
package ws

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/gorilla/websocket"
)

// Client is one connected control-plane peer. Writes are funneled
// through a buffered channel drained by the write pump; a peer that
// cannot keep up is dropped rather than allowed to stall broadcasts.
type Client struct {
	conn *websocket.Conn
	send chan []byte

	mu     sync.Mutex
	closed bool
}

func newClient(conn *websocket.Conn) *Client {
	return &Client{
		conn: conn,
		send: make(chan []byte, 256),
	}
}

// SendEvent marshals and queues one event envelope for this peer.
func (c *Client) SendEvent(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("ws: marshal event: %v", err)
		return
	}
	c.Send(data)
}

// Send queues a pre-encoded frame. A full buffer closes the client.
func (c *Client) Send(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	select {
	case c.send <- data:
	default:
		c.closeLocked()
	}
}

// Alive reports whether the peer can still accept events.
func (c *Client) Alive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

// Close marks the client dead and releases its write pump.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
}

func (c *Client) closeLocked() {
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// Registry tracks every open control-plane connection. Planner traffic
// is process-wide, so planner events broadcast here rather than through
// per-session subscriptions.
type Registry struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
}

// NewRegistry creates an empty connection registry.
func NewRegistry() *Registry {
	return &Registry{clients: make(map[*Client]struct{})}
}

// Register adds a connection.
func (r *Registry) Register(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[c] = struct{}{}
}

// Unregister removes and closes a connection.
func (r *Registry) Unregister(c *Client) {
	r.mu.Lock()
	delete(r.clients, c)
	r.mu.Unlock()
	c.Close()
}

// Broadcast delivers one event envelope to every live connection. Dead
// connections are skipped; the read pump prunes them.
func (r *Registry) Broadcast(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("ws: marshal broadcast: %v", err)
		return
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	for c := range r.clients {
		if c.Alive() {
			c.Send(data)
		}
	}
}

// Count returns the number of registered connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// Close closes every connection.
func (r *Registry) Close() {
	r.mu.Lock()
	clients := make([]*Client, 0, len(r.clients))
	for c := range r.clients {
		clients = append(clients, c)
	}
	r.clients = make(map[*Client]struct{})
	r.mu.Unlock()

	for _, c := range clients {
		c.Close()
	}
}
