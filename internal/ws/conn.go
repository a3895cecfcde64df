package ws

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"nhooyr.io/websocket"
)

const (
	// sendBufferSize is the number of queued outbound messages per client.
	sendBufferSize = 16

	// writeTimeout is the max time to wait for a single write to complete.
	writeTimeout = 5 * time.Second
)

// ConnStats holds point-in-time connection counters.
type ConnStats struct {
	Active          int
	MaxConns        int
	Rejected        int64
	DroppedMessages int64
}

// ConnManager owns the write side of every live connection: a bounded
// send buffer and a write pump per client, an optional connection cap,
// and graceful shutdown. A slow consumer drops messages rather than
// blocking fanout for everyone else.
type ConnManager struct {
	mu       sync.Mutex
	clients  map[*Client]context.CancelFunc
	closed   bool
	maxConns int

	rejected        atomic.Int64
	droppedMessages atomic.Int64
}

// ConnManagerOption configures a ConnManager.
type ConnManagerOption func(*ConnManager)

// WithMaxConns caps concurrent connections; new connections beyond the
// cap are rejected. Zero means unlimited (default).
func WithMaxConns(n int) ConnManagerOption {
	return func(cm *ConnManager) {
		cm.maxConns = n
	}
}

// NewConnManager creates a connection manager.
func NewConnManager(opts ...ConnManagerOption) *ConnManager {
	cm := &ConnManager{clients: make(map[*Client]context.CancelFunc)}
	for _, opt := range opts {
		opt(cm)
	}
	return cm
}

// Add registers a client and starts its write pump. The returned
// context is cancelled when the client is removed or the manager shuts
// down; callers should stop their read loop when it ends. A cancelled
// context is returned if the manager is closed or at capacity.
func (cm *ConnManager) Add(c *Client) context.Context {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.closed {
		c.conn.Close(websocket.StatusGoingAway, "server shutting down")
		return cancelledContext()
	}
	if cm.maxConns > 0 && len(cm.clients) >= cm.maxConns {
		cm.rejected.Add(1)
		c.conn.Close(websocket.StatusTryAgainLater, "server at capacity")
		return cancelledContext()
	}

	c.send = make(chan []byte, sendBufferSize)
	ctx, cancel := context.WithCancel(context.Background())
	cm.clients[c] = cancel

	go cm.writePump(ctx, c)

	return ctx
}

// Remove stops a client's write pump and forgets it. Safe to call for
// clients that were never added or already removed. The send channel
// is closed under the lock so Send never races a close.
func (cm *ConnManager) Remove(c *Client) {
	cm.mu.Lock()
	cancel, ok := cm.clients[c]
	if ok {
		delete(cm.clients, c)
		close(c.send)
	}
	cm.mu.Unlock()

	if ok {
		cancel()
	}
}

// Send queues a message for one client. Returns false if the client's
// buffer is full or the client is gone; the failure never propagates.
func (cm *ConnManager) Send(c *Client, data []byte) bool {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if _, ok := cm.clients[c]; !ok {
		return false
	}

	select {
	case c.send <- data:
		return true
	default:
		cm.droppedMessages.Add(1)
		log.Printf("ws: send buffer full for conn %s, dropping message", c.id)
		return false
	}
}

// Broadcast queues a message for every live connection, bound or not.
func (cm *ConnManager) Broadcast(data []byte) {
	cm.mu.Lock()
	targets := make([]*Client, 0, len(cm.clients))
	for c := range cm.clients {
		targets = append(targets, c)
	}
	cm.mu.Unlock()

	for _, c := range targets {
		cm.Send(c, data)
	}
}

// Count returns the number of live connections.
func (cm *ConnManager) Count() int {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return len(cm.clients)
}

// Stats returns point-in-time connection counters.
func (cm *ConnManager) Stats() ConnStats {
	cm.mu.Lock()
	active := len(cm.clients)
	maxConns := cm.maxConns
	cm.mu.Unlock()
	return ConnStats{
		Active:          active,
		MaxConns:        maxConns,
		Rejected:        cm.rejected.Load(),
		DroppedMessages: cm.droppedMessages.Load(),
	}
}

// Shutdown cancels every write pump and closes each connection with
// StatusGoingAway. Subsequent Adds are rejected.
func (cm *ConnManager) Shutdown() {
	cm.mu.Lock()
	cm.closed = true
	clients := cm.clients
	cm.clients = make(map[*Client]context.CancelFunc)
	cm.mu.Unlock()

	for c, cancel := range clients {
		cancel()
		close(c.send)
		c.conn.Close(websocket.StatusGoingAway, "server shutting down")
	}
}

// writePump drains the client's send channel onto the wire. It exits
// when ctx is cancelled or the channel is closed.
func (cm *ConnManager) writePump(ctx context.Context, c *Client) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.conn.Write(writeCtx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				log.Printf("ws: write to conn %s failed: %v", c.id, err)
				return
			}
		}
	}
}

func cancelledContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}
