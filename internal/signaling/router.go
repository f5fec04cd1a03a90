package signaling

import (
	"log/slog"

	"github.com/meetmesh/relay/internal/metrics"
	"github.com/meetmesh/relay/internal/rooms"
)

// Router interprets inbound envelopes and decides how each one moves: into
// the room directory, to a single peer, or to a whole room. It is stateless
// across messages; all shared state lives in the directory and the registry.
type Router struct {
	dir      *rooms.Directory
	registry *Registry
	delivery Deliverer
	metrics  *metrics.Metrics
	log      *slog.Logger
}

func NewRouter(dir *rooms.Directory, registry *Registry, delivery Deliverer, m *metrics.Metrics, log *slog.Logger) *Router {
	return &Router{
		dir:      dir,
		registry: registry,
		delivery: delivery,
		metrics:  m,
		log:      log,
	}
}

// Handle routes one inbound envelope from the given connection.
func (rt *Router) Handle(c *Client, env Envelope) {
	switch env.Type {
	case MessageTypeJoinRoom:
		rt.handleJoin(c, env)
	case MessageTypeOffer:
		rt.relay(env.To, Envelope{
			Type:  MessageTypeOffer,
			Offer: env.Offer,
			From:  rt.senderIdentity(c, env.From),
		})
	case MessageTypeAnswer:
		rt.relay(env.To, Envelope{
			Type:   MessageTypeAnswer,
			Answer: env.Answer,
			From:   rt.senderIdentity(c, env.From),
		})
	case MessageTypeICECandidate:
		// Candidates may arrive before or after the offer/answer they belong
		// to; the relay forwards them in arrival order and never buffers.
		rt.relay(env.To, Envelope{
			Type:      MessageTypeICECandidate,
			Candidate: env.Candidate,
			From:      rt.senderIdentity(c, env.From),
		})
	case MessageTypeLeaveRoom:
		rt.handleLeave(env.RoomID, env.UserID)
	case MessageTypeSendMessage:
		rt.delivery.Broadcast(env.RoomID, c.Identity(), Envelope{
			Type:    MessageTypeReceiveMessage,
			Message: env.Message,
		})
		rt.metrics.Inc(metrics.ChatBroadcasts)
	}
}

func (rt *Router) handleJoin(c *Client, env Envelope) {
	rt.registry.Bind(c, env.UserID)

	existing := rt.dir.Join(env.RoomID, env.UserID)
	rt.metrics.Inc(metrics.RoomJoins)
	rt.log.Debug("user joined room", "room_id", env.RoomID, "user_id", env.UserID, "peers", len(existing))

	// The joiner must learn the pre-join set before anyone learns of the
	// joiner: the newcomer initiates every offer, so no pre-existing member
	// may start offering first (that would reintroduce glare).
	rt.delivery.Deliver(env.UserID, Envelope{
		Type:  MessageTypeExistingUsers,
		Users: existing,
	})
	rt.delivery.Broadcast(env.RoomID, env.UserID, Envelope{
		Type:     MessageTypeUserJoined,
		UserID:   env.UserID,
		SocketID: c.ID,
	})
}

func (rt *Router) handleLeave(roomID, identity string) {
	if !rt.dir.Leave(roomID, identity) {
		// Already gone: an explicit leave raced a disconnect (or repeated
		// itself). Absorb it so user-left is never broadcast twice.
		return
	}
	rt.metrics.Inc(metrics.RoomLeaves)
	rt.log.Debug("user left room", "room_id", roomID, "user_id", identity)

	rt.delivery.Broadcast(roomID, identity, Envelope{
		Type:   MessageTypeUserLeft,
		UserID: identity,
	})
}

// Disconnect runs the abrupt-departure path: remove the identity from every
// room it still occupies and notify the remaining peers, exactly as an
// explicit leave-room would have. Rooms already left explicitly are skipped
// by Leave's idempotence.
func (rt *Router) Disconnect(c *Client) {
	identity := c.Identity()
	occupied := rt.dir.RoomsContaining(identity)
	if len(occupied) > 0 {
		rt.metrics.Inc(metrics.DisconnectCleanups)
	}
	for _, roomID := range occupied {
		rt.handleLeave(roomID, identity)
	}
}

func (rt *Router) relay(to string, env Envelope) {
	rt.delivery.Deliver(to, env)
	rt.metrics.Inc(metrics.MessagesRelayed)
}

func (rt *Router) senderIdentity(c *Client, from string) string {
	if from != "" {
		return from
	}
	return c.Identity()
}
