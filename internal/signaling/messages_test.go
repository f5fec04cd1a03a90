package signaling

import (
	"strings"
	"testing"
)

func TestParseEnvelope_Valid(t *testing.T) {
	tests := []struct {
		name string
		data string
		want MessageType
	}{
		{"join", `{"type":"join-room","roomId":"r1","userId":"alice"}`, MessageTypeJoinRoom},
		{"offer", `{"type":"offer","to":"bob","from":"alice","offer":{"type":"offer","sdp":"v=0"}}`, MessageTypeOffer},
		{"answer", `{"type":"answer","to":"alice","from":"bob","answer":{"type":"answer","sdp":"v=0"}}`, MessageTypeAnswer},
		{"candidate", `{"type":"ice-candidate","to":"bob","candidate":{"candidate":"candidate:1"}}`, MessageTypeICECandidate},
		{"leave", `{"type":"leave-room","roomId":"r1","userId":"alice"}`, MessageTypeLeaveRoom},
		{"chat", `{"type":"send-message","roomId":"r1","message":"hi"}`, MessageTypeSendMessage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := ParseEnvelope([]byte(tt.data))
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if env.Type != tt.want {
				t.Fatalf("type = %q, want %q", env.Type, tt.want)
			}
		})
	}
}

func TestParseEnvelope_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantSub string
	}{
		{"not json", `join r1`, "invalid"},
		{"unknown type", `{"type":"dial-room","roomId":"r1"}`, "unsupported message type"},
		{"unknown field", `{"type":"join-room","roomId":"r1","userId":"a","admin":true}`, "unknown field"},
		{"trailing data", `{"type":"join-room","roomId":"r1","userId":"a"}{}`, "trailing"},
		{"join without room", `{"type":"join-room","userId":"a"}`, "missing roomId"},
		{"join without user", `{"type":"join-room","roomId":"r1"}`, "missing userId"},
		{"offer without target", `{"type":"offer","offer":{}}`, "missing to"},
		{"offer without payload", `{"type":"offer","to":"bob"}`, "missing offer payload"},
		{"candidate without payload", `{"type":"ice-candidate","to":"bob"}`, "missing candidate payload"},
		{"chat without payload", `{"type":"send-message","roomId":"r1"}`, "missing message payload"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseEnvelope([]byte(tt.data))
			if err == nil {
				t.Fatalf("expected error")
			}
			if tt.wantSub != "invalid" && !strings.Contains(err.Error(), tt.wantSub) {
				t.Fatalf("error %q does not mention %q", err, tt.wantSub)
			}
		})
	}
}

func TestParseEnvelope_PayloadIsOpaque(t *testing.T) {
	// The relay must accept any payload shape; it never parses what it relays.
	data := `{"type":"offer","to":"bob","offer":{"weird":[1,2,{"deep":null}],"x":"y"}}`
	env, err := ParseEnvelope([]byte(data))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(env.Offer) == 0 {
		t.Fatalf("payload not preserved")
	}
}
