package signaling

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/meetmesh/relay/internal/metrics"
	"github.com/meetmesh/relay/internal/ratelimit"
	"github.com/meetmesh/relay/internal/rooms"
)

// Config wires together the runtime dependencies for the signaling service.
type Config struct {
	Logger  *slog.Logger
	Metrics *metrics.Metrics

	// IdleTimeout tears down connections that produce neither frames nor
	// pongs; PingInterval must be shorter.
	IdleTimeout  time.Duration
	PingInterval time.Duration

	MaxMessageBytes      int64
	MaxMessagesPerSecond int

	// SendQueueMessages bounds each connection's outbound queue; overflow is
	// dropped, never awaited.
	SendQueueMessages int
}

// Server owns the relay's websocket surface: one upgraded connection per
// client on GET /ws, a shared room directory, and the router that moves
// signaling between them.
type Server struct {
	cfg      Config
	log      *slog.Logger
	metrics  *metrics.Metrics
	dir      *rooms.Directory
	registry *Registry
	router   *Router
}

func NewServer(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.New()
	}

	dir := rooms.NewDirectory()
	registry := NewRegistry(dir, cfg.Metrics)
	router := NewRouter(dir, registry, registry, cfg.Metrics, cfg.Logger)

	return &Server{
		cfg:      cfg,
		log:      cfg.Logger,
		metrics:  cfg.Metrics,
		dir:      dir,
		registry: registry,
		router:   router,
	}
}

// Directory exposes the room directory for readiness/introspection handlers.
func (s *Server) Directory() *rooms.Directory { return s.dir }

func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws", s.HandleWebSocket)
}

// Close tears down every live connection. Each read pump observes its socket
// closing and runs the normal disconnect cleanup for its rooms.
func (s *Server) Close() {
	for _, c := range s.registry.Clients() {
		c.close()
	}
}

func (s *Server) idleTimeout() time.Duration {
	if s.cfg.IdleTimeout <= 0 {
		return 60 * time.Second
	}
	return s.cfg.IdleTimeout
}

func (s *Server) pingInterval() time.Duration {
	if s.cfg.PingInterval <= 0 {
		return 20 * time.Second
	}
	return s.cfg.PingInterval
}

func (s *Server) maxMessageBytes() int64 {
	if s.cfg.MaxMessageBytes <= 0 {
		return 64 * 1024
	}
	return s.cfg.MaxMessageBytes
}

func (s *Server) maxMessagesPerSecond() int {
	if s.cfg.MaxMessagesPerSecond <= 0 {
		return 50
	}
	return s.cfg.MaxMessagesPerSecond
}

func (s *Server) sendQueueMessages() int {
	if s.cfg.SendQueueMessages <= 0 {
		return 64
	}
	return s.cfg.SendQueueMessages
}

func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		// Origin checks are enforced by the outer httpserver origin middleware;
		// accept all origins here so unit tests can dial the handler directly.
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	c := newClient(uuid.NewString(), conn, s.log, s.sendQueueMessages(), s.idleTimeout(), s.pingInterval())
	s.registry.Register(c)
	s.log.Debug("connection opened", "conn_id", c.ID, "remote_addr", r.RemoteAddr)

	go c.writePump()

	limiter := ratelimit.NewTokenBucket(
		ratelimit.RealClock{},
		int64(s.maxMessagesPerSecond()),
		int64(s.maxMessagesPerSecond()),
	)

	c.readPump(s.maxMessageBytes(), func(data []byte) bool {
		if !limiter.Allow(1) {
			// Best-effort protocol: shed the frame, keep the connection. A
			// client pathological enough to sustain this only hurts itself.
			s.metrics.Inc(metrics.DropReasonRateLimited)
			return true
		}

		env, err := ParseEnvelope(data)
		if err != nil {
			// Malformed input is dropped with a local diagnostic; it must not
			// kill this worker or disturb any room.
			s.metrics.Inc(metrics.DropReasonBadMessage)
			s.log.Debug("dropping bad message", "conn_id", c.ID, "err", err)
			return true
		}

		s.router.Handle(c, env)
		return true
	})

	// Terminal state: entered exactly once per connection, one cleanup pass
	// per room still occupied. When a reconnect has re-bound this identity the
	// rooms now belong to the newer connection, so only the socket is torn down.
	if removed, ownedIdentity := s.registry.Unregister(c.ID); removed != nil {
		if ownedIdentity {
			s.router.Disconnect(removed)
		}
		removed.close()
	}
	s.log.Debug("connection closed", "conn_id", c.ID)
}
