package signaling

import (
	"sync"

	"github.com/meetmesh/relay/internal/metrics"
)

// Deliverer is the outbound half of the relay: directed delivery to one
// identity and room-wide broadcast. The router depends on this interface so
// its protocol logic can be tested without sockets.
type Deliverer interface {
	// Deliver sends to exactly one identity. Unknown identities are a no-op
	// (not an error): a departed peer may legitimately still be the target of
	// a racing message.
	Deliver(identity string, env Envelope)

	// Broadcast delivers to every current member of the room except exclude.
	Broadcast(roomID, exclude string, env Envelope)
}

// MemberSource is the registry's read-only view into room membership; the
// registry itself holds no room state.
type MemberSource interface {
	Members(roomID string) []string
}

// Registry tracks every live connection and resolves identities to their
// socket. Connections are indexed both by their transport-assigned ID and,
// after join-room, by the bound user identity; the protocol treats the two
// as interchangeable.
type Registry struct {
	members MemberSource
	metrics *metrics.Metrics

	mu         sync.RWMutex
	byConn     map[string]*Client
	byIdentity map[string]*Client
}

func NewRegistry(members MemberSource, m *metrics.Metrics) *Registry {
	return &Registry{
		members:    members,
		metrics:    m,
		byConn:     make(map[string]*Client),
		byIdentity: make(map[string]*Client),
	}
}

// Register adds a connection under its transport ID.
func (r *Registry) Register(c *Client) {
	r.mu.Lock()
	r.byConn[c.ID] = c
	r.mu.Unlock()
	r.metrics.Inc(metrics.ConnectionsOpened)
}

// Bind indexes the connection under the user identity it joined with, so
// directed messages addressed to that identity reach this socket.
func (r *Registry) Bind(c *Client, identity string) {
	c.bindIdentity(identity)
	r.mu.Lock()
	r.byIdentity[identity] = c
	r.mu.Unlock()
}

// Unregister drops the connection from both indexes and returns it, or nil if
// it was already gone. A reconnect that re-bound the same identity wins: the
// identity index is left pointing at the newer connection, and ownedIdentity
// is false so the caller knows the identity's room memberships belong to that
// newer connection and must not be cleaned up on this one's behalf.
func (r *Registry) Unregister(connID string) (c *Client, ownedIdentity bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.byConn[connID]
	if !ok {
		return nil, false
	}
	delete(r.byConn, connID)
	r.metrics.Inc(metrics.ConnectionsClosed)

	identity := c.Identity()
	if owner, bound := r.byIdentity[identity]; bound && owner != c {
		return c, false
	}
	delete(r.byIdentity, identity)
	return c, true
}

// Clients returns a snapshot of every live connection.
func (r *Registry) Clients() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Client, 0, len(r.byConn))
	for _, c := range r.byConn {
		out = append(out, c)
	}
	return out
}

func (r *Registry) lookup(identity string) *Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if c, ok := r.byIdentity[identity]; ok {
		return c
	}
	return r.byConn[identity]
}

func (r *Registry) Deliver(identity string, env Envelope) {
	c := r.lookup(identity)
	if c == nil {
		r.metrics.Inc(metrics.DropReasonNoRecipient)
		return
	}
	if !c.enqueue(env) {
		r.metrics.Inc(metrics.DropReasonSlowClient)
	}
}

func (r *Registry) Broadcast(roomID, exclude string, env Envelope) {
	for _, identity := range r.members.Members(roomID) {
		if identity == exclude {
			continue
		}
		r.Deliver(identity, env)
	}
}
