package relay

import (
	"context"
	"log"

	"chat-relay/internal/store"
	"chat-relay/internal/ws"
)

// Binding is the registry surface presence needs: transactional bind
// and unbind with membership counts.
type Binding interface {
	Bind(identity string, c *ws.Client) (prev string, remaining int)
	Unbind(c *ws.Client) (identity string, remaining int)
}

// Presence ties connection bindings to the persisted online flag and
// the global presence broadcasts. Status persistence is best-effort: a
// failed store update is logged and the binding stands either way.
type Presence struct {
	users    store.UserStore
	registry Binding
	router   Router
}

// NewPresence creates a presence broadcaster.
func NewPresence(users store.UserStore, registry Binding, router Router) *Presence {
	return &Presence{users: users, registry: registry, router: router}
}

// Join binds the connection to the identity's room, marks the user
// online, and broadcasts user-online to every live connection. If the
// connection was previously bound to a different identity whose last
// session this was, that identity goes offline first.
func (p *Presence) Join(ctx context.Context, identity string, c *ws.Client) {
	prev, remaining := p.registry.Bind(identity, c)
	if prev != "" && remaining == 0 {
		p.setOffline(ctx, prev)
	}

	u, err := p.users.SetOnline(ctx, identity, true)
	if err != nil {
		log.Printf("relay: mark %s online: %v", identity, err)
		return
	}
	p.router.EmitAll(ws.EventUserOnline, u)
}

// Leave unbinds the connection. When that was the identity's last
// connection, the user is marked offline and user-offline is
// broadcast globally.
func (p *Presence) Leave(ctx context.Context, c *ws.Client) {
	identity, remaining := p.registry.Unbind(c)
	if identity == "" || remaining > 0 {
		return
	}
	p.setOffline(ctx, identity)
}

func (p *Presence) setOffline(ctx context.Context, identity string) {
	u, err := p.users.SetOnline(ctx, identity, false)
	if err != nil {
		log.Printf("relay: mark %s offline: %v", identity, err)
		return
	}
	p.router.EmitAll(ws.EventUserOffline, u)
}
