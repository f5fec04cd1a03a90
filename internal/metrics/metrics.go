package metrics

import "sync"

// Counter names. The relay is best-effort by design, so per-reason drop
// counters are the primary visibility into lost signaling messages.
const (
	ConnectionsOpened  = "connections_opened"
	ConnectionsClosed  = "connections_closed"
	RoomJoins          = "room_joins"
	RoomLeaves         = "room_leaves"
	DisconnectCleanups = "disconnect_cleanups"
	MessagesRelayed    = "messages_relayed"
	ChatBroadcasts     = "chat_broadcasts"

	DropReasonBadMessage  = "drop_bad_message"
	DropReasonRateLimited = "drop_rate_limited"
	DropReasonNoRecipient = "drop_no_recipient"
	DropReasonSlowClient  = "drop_slow_client"
)

// Metrics is a minimal, concurrency-safe counter registry.
//
// It exists to keep the routing logic observable and testable without
// dragging a full metrics backend into the hot path; the Prometheus handler
// exposes everything in here for scraping.
type Metrics struct {
	mu sync.Mutex
	m  map[string]uint64
}

func New() *Metrics {
	return &Metrics{
		m: make(map[string]uint64),
	}
}

func (m *Metrics) Inc(name string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.m[name]++
	m.mu.Unlock()
}

func (m *Metrics) Get(name string) uint64 {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.m[name]
}

// Snapshot returns a copy of all counters.
func (m *Metrics) Snapshot() map[string]uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]uint64, len(m.m))
	for k, v := range m.m {
		out[k] = v
	}
	return out
}
