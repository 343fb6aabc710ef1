package server

import (
	"net"
	"sync"
)

// Registry is the set of connected clients, keyed by connection so the same
// socket can never be registered twice. The acceptor adds while the
// broadcaster iterates and removes, so every operation takes the lock and
// iteration always works on a snapshot.
type Registry struct {
	mu      sync.RWMutex
	clients map[net.Conn]*Client
}

// NewRegistry creates an empty client registry.
func NewRegistry() *Registry {
	return &Registry{
		clients: make(map[net.Conn]*Client),
	}
}

// Add registers a client. It returns false when the client's connection is
// already registered, leaving the existing entry in place.
func (r *Registry) Add(c *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.clients[c.conn]; exists {
		return false
	}
	r.clients[c.conn] = c
	return true
}

// Remove unregisters a client. It returns false when the client was not
// registered (for example already evicted by an earlier broadcast pass).
func (r *Registry) Remove(c *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.clients[c.conn]; !exists {
		return false
	}
	delete(r.clients, c.conn)
	return true
}

// Snapshot returns a stable copy of the current membership. Clients added
// during an ongoing broadcast pass are picked up on the next pass.
func (r *Registry) Snapshot() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snapshot := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		snapshot = append(snapshot, c)
	}
	return snapshot
}

// Count returns the current number of registered clients.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// CloseAll closes and removes every registered client, returning how many
// were closed.
func (r *Registry) CloseAll() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.clients)
	for conn, c := range r.clients {
		c.Close()
		delete(r.clients, conn)
	}
	return n
}
