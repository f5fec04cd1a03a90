package signaling

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

// Client wraps one live websocket connection.
//
// All writes to the socket happen on the writePump goroutine, fed by a
// buffered channel. Enqueueing never blocks: when the queue is full the frame
// is dropped, so a slow or wedged browser can never stall signaling for the
// rest of its room.
type Client struct {
	// ID is the transport-assigned connection identity, unique for this
	// connection's lifetime (the socketId seen by peers in user-joined).
	ID string

	conn *websocket.Conn
	log  *slog.Logger

	send chan []byte

	idleTimeout  time.Duration
	pingInterval time.Duration

	mu       sync.Mutex
	identity string // bound user identity, set by the first join-room
	closed   bool
}

func newClient(id string, conn *websocket.Conn, log *slog.Logger, queueLen int, idleTimeout, pingInterval time.Duration) *Client {
	return &Client{
		ID:           id,
		conn:         conn,
		log:          log,
		send:         make(chan []byte, queueLen),
		idleTimeout:  idleTimeout,
		pingInterval: pingInterval,
	}
}

func (c *Client) bindIdentity(identity string) {
	c.mu.Lock()
	c.identity = identity
	c.mu.Unlock()
}

// Identity returns the bound user identity, or the connection ID while no
// join-room has been seen yet.
func (c *Client) Identity() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.identity != "" {
		return c.identity
	}
	return c.ID
}

// enqueue hands a frame to the write pump. It reports false when the frame
// was dropped because the queue is saturated or the client is closing.
func (c *Client) enqueue(env Envelope) bool {
	data, err := json.Marshal(env)
	if err != nil {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// writePump owns all writes to the socket, interleaving queued frames with
// keepalive pings. It exits when the send channel is closed or a write fails.
func (c *Client) writePump() {
	ticker := time.NewTicker(c.pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.log.Debug("websocket write failed", "conn_id", c.ID, "err", err)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump reads frames until the connection dies and hands each one to
// handle. Liveness is the transport's job: the read deadline is refreshed on
// every frame and every pong.
func (c *Client) readPump(maxMessageBytes int64, handle func(data []byte) bool) {
	c.conn.SetReadLimit(maxMessageBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.idleTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.idleTimeout))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.log.Debug("websocket read failed", "conn_id", c.ID, "err", err)
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(c.idleTimeout))
		if !handle(data) {
			return
		}
	}
}

// close shuts the write pump; safe to call more than once.
func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}
