package server

import (
	"net"
	"time"
)

// Client represents one accepted TCP peer subscribed to the stream.
// Identity is the underlying connection: the registry never holds two
// clients for the same conn.
type Client struct {
	conn        net.Conn
	remoteAddr  string
	connectedAt time.Time
}

func newClient(conn net.Conn) *Client {
	return &Client{
		conn:        conn,
		remoteAddr:  conn.RemoteAddr().String(),
		connectedAt: time.Now(),
	}
}

// RemoteAddr returns the peer address captured at accept time.
func (c *Client) RemoteAddr() string {
	return c.remoteAddr
}

// ConnectedAt returns the accept timestamp.
func (c *Client) ConnectedAt() time.Time {
	return c.connectedAt
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
