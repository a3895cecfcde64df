package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"nhooyr.io/websocket"
)

// maxContentLength caps message bodies accepted from clients.
const maxContentLength = 2000

// Presence manages identity bindings for connections.
type Presence interface {
	Join(ctx context.Context, identity string, c *Client)
	Leave(ctx context.Context, c *Client)
}

// MessageSender handles inbound message events.
type MessageSender interface {
	Send(ctx context.Context, sender, receiver, content string) error
}

// Handler upgrades HTTP requests to WebSockets and runs the per-client
// event loop.
type Handler struct {
	registry *Registry
	presence Presence
	relay    MessageSender
}

// NewHandler creates a WebSocket handler.
func NewHandler(registry *Registry, presence Presence, relay MessageSender) *Handler {
	return &Handler{registry: registry, presence: presence, relay: relay}
}

// ServeHTTP upgrades the connection and dispatches envelopes until the
// client goes away. Unbinding is deferred so it runs on every exit
// path.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // Allow all origins in dev; tighten in production.
	})
	if err != nil {
		log.Printf("ws: accept error: %v", err)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	client := NewClient(conn)
	connCtx := h.registry.Conns().Add(client)

	defer func() {
		// The request context is usually done by now; presence teardown
		// must still run.
		h.presence.Leave(context.Background(), client)
		h.registry.Conns().Remove(client)
	}()

	h.readLoop(r.Context(), connCtx, client)
}

// readLoop reads envelopes until the connection closes or the
// connection manager cancels connCtx.
func (h *Handler) readLoop(ctx context.Context, connCtx context.Context, client *Client) {
	for {
		select {
		case <-connCtx.Done():
			return
		default:
		}

		_, data, err := client.conn.Read(ctx)
		if err != nil {
			// Normal close or context cancelled.
			return
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			h.sendError(client, "invalid JSON")
			continue
		}

		switch env.Type {
		case EventJoin:
			var payload JoinPayload
			if err := json.Unmarshal(env.Payload, &payload); err != nil {
				h.sendError(client, "invalid join payload")
				continue
			}
			if payload.UserID == "" {
				h.sendError(client, "user_id is required")
				continue
			}
			h.presence.Join(ctx, payload.UserID, client)

		case EventMessage:
			var payload SendPayload
			if err := json.Unmarshal(env.Payload, &payload); err != nil {
				h.sendError(client, "invalid message payload")
				continue
			}
			if len(payload.Content) > maxContentLength {
				h.sendError(client, "message exceeds maximum length of 2000 characters")
				continue
			}
			if err := h.relay.Send(ctx, payload.Sender, payload.Receiver, payload.Content); err != nil {
				log.Printf("ws: send from conn %s failed: %v", client.id, err)
				h.sendError(client, err.Error())
			}
		}
	}
}

// sendError queues an error envelope for one client.
func (h *Handler) sendError(client *Client, msg string) {
	data, err := MarshalEvent(EventError, ErrorPayload{Message: msg})
	if err != nil {
		return
	}
	h.registry.Conns().Send(client, data)
}
