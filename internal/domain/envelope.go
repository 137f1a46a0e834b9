package domain

import "encoding/json"

// Envelope types exchanged over the signaling socket.
const (
	MsgCreateRoom  = "create-room"
	MsgRoomCreated = "room-created"
	MsgJoinRoom    = "join-room"
	MsgRoomJoined  = "room-joined"
	MsgPeerJoined  = "peer-joined"
	MsgPeerLeft    = "peer-left"
	MsgOffer       = "offer"
	MsgAnswer      = "answer"
	MsgCandidate   = "candidate"
	MsgLeaveRoom   = "leave-room"
	MsgPing        = "ping"
	MsgPong        = "pong"
	MsgConfig      = "config"
	MsgError       = "error"
)

// Envelope is the decoded head of one inbound signaling message. The
// offer/answer/candidate bodies stay raw: the server relays those frames
// without looking inside them.
type Envelope struct {
	Type      string          `json:"type"`
	RoomID    string          `json:"roomId,omitempty"`
	Offer     json.RawMessage `json:"offer,omitempty"`
	Answer    json.RawMessage `json:"answer,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
	// Sender may be set by clients; routing never trusts it. The recipient
	// of a relayed frame is always derived from room membership.
	Sender string `json:"sender,omitempty"`
}
