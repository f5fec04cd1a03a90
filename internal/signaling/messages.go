package signaling

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

type MessageType string

// Inbound message types.
const (
	MessageTypeJoinRoom     MessageType = "join-room"
	MessageTypeOffer        MessageType = "offer"
	MessageTypeAnswer       MessageType = "answer"
	MessageTypeICECandidate MessageType = "ice-candidate"
	MessageTypeLeaveRoom    MessageType = "leave-room"
	MessageTypeSendMessage  MessageType = "send-message"
)

// Outbound message types. Offer, answer and ice-candidate reuse the inbound
// names: the relay forwards them under the same type with `from` rewritten.
const (
	MessageTypeExistingUsers  MessageType = "existing-users"
	MessageTypeUserJoined     MessageType = "user-joined"
	MessageTypeUserLeft       MessageType = "user-left"
	MessageTypeReceiveMessage MessageType = "receive-message"
)

// Envelope is the single wire format for both directions.
//
// Only the routing fields (Type, RoomID, UserID, To, From) are interpreted by
// the relay. Offer/Answer/Candidate/Message bodies are opaque payloads owned
// by the browsers' negotiation and chat layers; they are forwarded byte for
// byte and never validated beyond being well-formed JSON.
type Envelope struct {
	Type   MessageType `json:"type"`
	RoomID string      `json:"roomId,omitempty"`
	UserID string      `json:"userId,omitempty"`
	To     string      `json:"to,omitempty"`
	From   string      `json:"from,omitempty"`

	Offer     json.RawMessage `json:"offer,omitempty"`
	Answer    json.RawMessage `json:"answer,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
	Message   json.RawMessage `json:"message,omitempty"`

	// Outbound only.
	SocketID string   `json:"socketId,omitempty"`
	Users    []string `json:"users,omitempty"`
}

// ParseEnvelope decodes an inbound frame strictly: unknown fields, trailing
// data, and type-specific missing fields are all rejected. The caller drops
// rejected frames; a bad message never tears down the connection or touches
// the room directory.
func ParseEnvelope(data []byte) (Envelope, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var env Envelope
	if err := dec.Decode(&env); err != nil {
		return Envelope{}, err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return Envelope{}, fmt.Errorf("unexpected trailing data")
	}
	if err := env.validate(); err != nil {
		return Envelope{}, err
	}
	return env, nil
}

func (e Envelope) validate() error {
	switch e.Type {
	case MessageTypeJoinRoom:
		if e.RoomID == "" {
			return fmt.Errorf("join-room missing roomId")
		}
		if e.UserID == "" {
			return fmt.Errorf("join-room missing userId")
		}
	case MessageTypeOffer:
		if e.To == "" {
			return fmt.Errorf("offer missing to")
		}
		if len(e.Offer) == 0 {
			return fmt.Errorf("offer missing offer payload")
		}
	case MessageTypeAnswer:
		if e.To == "" {
			return fmt.Errorf("answer missing to")
		}
		if len(e.Answer) == 0 {
			return fmt.Errorf("answer missing answer payload")
		}
	case MessageTypeICECandidate:
		if e.To == "" {
			return fmt.Errorf("ice-candidate missing to")
		}
		if len(e.Candidate) == 0 {
			return fmt.Errorf("ice-candidate missing candidate payload")
		}
	case MessageTypeLeaveRoom:
		if e.RoomID == "" {
			return fmt.Errorf("leave-room missing roomId")
		}
		if e.UserID == "" {
			return fmt.Errorf("leave-room missing userId")
		}
	case MessageTypeSendMessage:
		if e.RoomID == "" {
			return fmt.Errorf("send-message missing roomId")
		}
		if len(e.Message) == 0 {
			return fmt.Errorf("send-message missing message payload")
		}
	default:
		return fmt.Errorf("unsupported message type %q", e.Type)
	}
	return nil
}
