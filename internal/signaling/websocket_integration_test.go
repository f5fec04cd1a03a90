package signaling

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func startTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	srv := NewServer(Config{
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		IdleTimeout:  5 * time.Second,
		PingInterval: time.Second,
	})
	mux := http.NewServeMux()
	srv.RegisterRoutes(mux)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return srv, ts
}

func dialWS(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	c, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func sendJSON(t *testing.T, c *websocket.Conn, v any) {
	t.Helper()
	if err := c.WriteJSON(v); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func readEnvelope(t *testing.T, c *websocket.Conn) Envelope {
	t.Helper()
	_ = c.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, data, err := c.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("decode %q: %v", data, err)
	}
	return env
}

func TestWebSocket_JoinOfferChatLeaveFlow(t *testing.T) {
	srv, ts := startTestServer(t)

	alice := dialWS(t, ts)
	sendJSON(t, alice, Envelope{Type: MessageTypeJoinRoom, RoomID: "standup", UserID: "alice"})

	env := readEnvelope(t, alice)
	if env.Type != MessageTypeExistingUsers || len(env.Users) != 0 {
		t.Fatalf("alice first frame = %+v", env)
	}

	bob := dialWS(t, ts)
	sendJSON(t, bob, Envelope{Type: MessageTypeJoinRoom, RoomID: "standup", UserID: "bob"})

	env = readEnvelope(t, bob)
	if env.Type != MessageTypeExistingUsers || len(env.Users) != 1 || env.Users[0] != "alice" {
		t.Fatalf("bob existing-users = %+v", env)
	}
	env = readEnvelope(t, alice)
	if env.Type != MessageTypeUserJoined || env.UserID != "bob" || env.SocketID == "" {
		t.Fatalf("alice user-joined = %+v", env)
	}

	// Newcomer initiates toward the pre-existing member.
	sendJSON(t, bob, Envelope{Type: MessageTypeOffer, To: "alice", From: "bob", Offer: json.RawMessage(`{"type":"offer","sdp":"v=0 bob"}`)})
	env = readEnvelope(t, alice)
	if env.Type != MessageTypeOffer || env.From != "bob" || !strings.Contains(string(env.Offer), "v=0 bob") {
		t.Fatalf("relayed offer = %+v", env)
	}

	sendJSON(t, alice, Envelope{Type: MessageTypeAnswer, To: "bob", From: "alice", Answer: json.RawMessage(`{"type":"answer","sdp":"v=0 alice"}`)})
	env = readEnvelope(t, bob)
	if env.Type != MessageTypeAnswer || env.From != "alice" {
		t.Fatalf("relayed answer = %+v", env)
	}

	sendJSON(t, bob, Envelope{Type: MessageTypeICECandidate, To: "alice", From: "bob", Candidate: json.RawMessage(`{"candidate":"candidate:1 udp"}`)})
	env = readEnvelope(t, alice)
	if env.Type != MessageTypeICECandidate || env.From != "bob" {
		t.Fatalf("relayed candidate = %+v", env)
	}

	sendJSON(t, alice, Envelope{Type: MessageTypeSendMessage, RoomID: "standup", Message: json.RawMessage(`"hi all"`)})
	env = readEnvelope(t, bob)
	if env.Type != MessageTypeReceiveMessage || string(env.Message) != `"hi all"` {
		t.Fatalf("receive-message = %+v", env)
	}

	sendJSON(t, bob, Envelope{Type: MessageTypeLeaveRoom, RoomID: "standup", UserID: "bob"})
	env = readEnvelope(t, alice)
	if env.Type != MessageTypeUserLeft || env.UserID != "bob" {
		t.Fatalf("user-left = %+v", env)
	}

	waitFor(t, func() bool {
		members := srv.Directory().Members("standup")
		return len(members) == 1 && members[0] == "alice"
	}, "bob removed from directory")
}

func TestWebSocket_AbruptDisconnectNotifiesPeers(t *testing.T) {
	srv, ts := startTestServer(t)

	alice := dialWS(t, ts)
	sendJSON(t, alice, Envelope{Type: MessageTypeJoinRoom, RoomID: "r1", UserID: "alice"})
	readEnvelope(t, alice) // existing-users

	bob := dialWS(t, ts)
	sendJSON(t, bob, Envelope{Type: MessageTypeJoinRoom, RoomID: "r1", UserID: "bob"})
	readEnvelope(t, bob)   // existing-users
	readEnvelope(t, alice) // user-joined

	// Kill bob's TCP connection without a leave-room.
	bob.Close()

	env := readEnvelope(t, alice)
	if env.Type != MessageTypeUserLeft || env.UserID != "bob" {
		t.Fatalf("expected user-left for bob, got %+v", env)
	}

	waitFor(t, func() bool {
		return len(srv.Directory().RoomsContaining("bob")) == 0
	}, "bob cleaned out of directory")
}

func TestWebSocket_MalformedMessageDoesNotKillConnection(t *testing.T) {
	_, ts := startTestServer(t)

	alice := dialWS(t, ts)
	sendJSON(t, alice, Envelope{Type: MessageTypeJoinRoom, RoomID: "r1", UserID: "alice"})
	readEnvelope(t, alice)

	if err := alice.WriteMessage(websocket.TextMessage, []byte(`this is not json`)); err != nil {
		t.Fatalf("write garbage: %v", err)
	}

	// The connection must survive and keep routing.
	bob := dialWS(t, ts)
	sendJSON(t, bob, Envelope{Type: MessageTypeJoinRoom, RoomID: "r1", UserID: "bob"})
	readEnvelope(t, bob)

	env := readEnvelope(t, alice)
	if env.Type != MessageTypeUserJoined || env.UserID != "bob" {
		t.Fatalf("alice frame after garbage = %+v", env)
	}
}

func TestWebSocket_EmptyRoomIsDeleted(t *testing.T) {
	srv, ts := startTestServer(t)

	alice := dialWS(t, ts)
	sendJSON(t, alice, Envelope{Type: MessageTypeJoinRoom, RoomID: "solo", UserID: "alice"})
	readEnvelope(t, alice)

	waitFor(t, func() bool { return srv.Directory().Exists("solo") }, "room created")

	alice.Close()

	waitFor(t, func() bool { return !srv.Directory().Exists("solo") }, "room deleted after last member left")
}

func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %s", what)
}
