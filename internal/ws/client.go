package ws

import (
	"crypto/rand"
	"encoding/hex"

	"nhooyr.io/websocket"
)

// Client is one live WebSocket connection. identity is empty until the
// client joins a room and is guarded by the registry's lock.
type Client struct {
	conn *websocket.Conn
	send chan []byte

	// id identifies the connection itself in logs, not the user.
	id string

	identity string
}

// NewClient wraps an accepted WebSocket connection.
func NewClient(conn *websocket.Conn) *Client {
	return &Client{conn: conn, id: newConnID()}
}

// ID returns the connection's log identifier.
func (c *Client) ID() string {
	return c.id
}

func newConnID() string {
	b := make([]byte, 8)
	rand.Read(b)
	return hex.EncodeToString(b)
}
