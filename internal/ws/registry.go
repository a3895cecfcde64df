package ws

import (
	"log"
	"sync"
)

// Registry maps user identities to the set of connections currently
// bound to them. A room is nothing more than one of these sets; rooms
// are never persisted and an empty room is not an error.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]map[*Client]struct{}
	conns *ConnManager
}

// NewRegistry creates a registry on top of the given connection manager.
func NewRegistry(conns *ConnManager) *Registry {
	return &Registry{
		rooms: make(map[string]map[*Client]struct{}),
		conns: conns,
	}
}

// Conns returns the underlying connection manager.
func (r *Registry) Conns() *ConnManager {
	return r.conns
}

// Bind adds the connection to the identity's room. Binding is
// transactional: any previous binding for this connection is removed
// in the same critical section, so a connection is a member of at most
// one room. Rebinding the same identity is a no-op. Bind reports the
// identity the connection left, if any, and how many connections that
// identity still has, so callers can derive presence transitions.
func (r *Registry) Bind(identity string, c *Client) (prev string, remaining int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c.identity == identity {
		return "", 0
	}
	if c.identity != "" {
		prev = c.identity
		r.dropLocked(c)
		remaining = len(r.rooms[prev])
	}

	if r.rooms[identity] == nil {
		r.rooms[identity] = make(map[*Client]struct{})
	}
	r.rooms[identity][c] = struct{}{}
	c.identity = identity
	return prev, remaining
}

// Unbind removes the connection from whatever room it belongs to and
// returns the identity it was bound to along with the number of
// connections that identity still has. A never-bound connection
// returns "".
func (r *Registry) Unbind(c *Client) (identity string, remaining int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	identity = c.identity
	if identity == "" {
		return "", 0
	}
	r.dropLocked(c)
	return identity, len(r.rooms[identity])
}

// dropLocked removes c from its current room. Caller holds r.mu.
func (r *Registry) dropLocked(c *Client) {
	if members, ok := r.rooms[c.identity]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(r.rooms, c.identity)
		}
	}
	c.identity = ""
}

// Members returns the connections currently bound to the identity.
// An empty slice means no active sessions, which is a valid state.
func (r *Registry) Members(identity string) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := make([]*Client, 0, len(r.rooms[identity]))
	for c := range r.rooms[identity] {
		members = append(members, c)
	}
	return members
}

// MemberCount returns the number of connections bound to the identity.
func (r *Registry) MemberCount(identity string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[identity])
}

// Emit delivers an event to every connection bound to the identity at
// call time. Delivery is best-effort per connection: one dead or slow
// connection never blocks the others and never fails the emit. Zero
// members is not an error.
func (r *Registry) Emit(identity, event string, payload any) {
	data, err := MarshalEvent(event, payload)
	if err != nil {
		log.Printf("ws: marshal %s event: %v", event, err)
		return
	}

	for _, c := range r.Members(identity) {
		r.conns.Send(c, data)
	}
}

// EmitAll delivers an event to every live connection in the process,
// bound or not. This is the global broadcast used for presence events.
func (r *Registry) EmitAll(event string, payload any) {
	data, err := MarshalEvent(event, payload)
	if err != nil {
		log.Printf("ws: marshal %s event: %v", event, err)
		return
	}
	r.conns.Broadcast(data)
}
