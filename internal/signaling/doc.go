// Package signaling implements the relay's control plane: a websocket
// endpoint per client, a registry of live connections, and the router that
// moves join/leave/offer/answer/candidate/chat envelopes between peers
// sharing a room.
//
// The relay never inspects negotiation payloads; once two browsers have
// exchanged offers and candidates, media flows directly between them.
package signaling
