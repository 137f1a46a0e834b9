package signal

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
)

// handleFrame classifies one inbound envelope and dispatches it. Any
// failure is reported back on the offending connection only; a panic in a
// handler is contained here so one bad payload cannot take the pump down.
func (ctl *SignalWSController) handleFrame(id core.ConnID, conn core.SignalConnection, data core.Frame) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("module", "signal").Str("conn", string(id)).Any("panic", r).Msg("handler panic")
			ctl.sendError(conn, "Internal error")
		}
	}()

	var env domain.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("conn", string(id)).Msg("bad json")
		ctl.sendError(conn, "Invalid message format")
		return
	}

	switch env.Type {
	case "":
		ctl.sendError(conn, "Missing message type")
	case domain.MsgCreateRoom:
		ctl.handleCreate(id, conn)
	case domain.MsgJoinRoom:
		ctl.handleJoin(id, conn, env)
	case domain.MsgOffer, domain.MsgAnswer, domain.MsgCandidate:
		ctl.forward(id, conn, env, data)
	case domain.MsgLeaveRoom:
		ctl.handleLeave(id, conn, env)
	case domain.MsgPing:
		ctl.handlePing(conn)
	default:
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown signal")
		ctl.sendError(conn, fmt.Sprintf("Unknown message type: %s", env.Type))
	}
}

func (ctl *SignalWSController) handleCreate(id core.ConnID, conn core.SignalConnection) {
	roomID, prevPeer, err := ctl.Rooms.CreateRoom(id)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("conn", string(id)).Msg("create room failed")
		ctl.sendError(conn, reasonFor(err))
		return
	}
	// Creating while still in a room vacates it first.
	if prevPeer != "" {
		ctl.notifyPeerLeft(prevPeer)
	}
	ctl.sendJSON(conn, struct {
		Type   string    `json:"type"`
		RoomID string    `json:"roomId"`
		Config iceConfig `json:"config"`
	}{domain.MsgRoomCreated, string(roomID), iceConfig{ctl.Cfg.ICEServers()}})
}

func (ctl *SignalWSController) handleJoin(id core.ConnID, conn core.SignalConnection, env domain.Envelope) {
	if env.RoomID == "" {
		ctl.sendError(conn, "Missing roomId")
		return
	}
	peer, err := ctl.Rooms.JoinRoom(id, domain.RoomID(env.RoomID))
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("conn", string(id)).Str("room", env.RoomID).Msg("join failed")
		ctl.sendError(conn, reasonFor(err))
		return
	}
	ctl.sendJSON(conn, struct {
		Type   string    `json:"type"`
		RoomID string    `json:"roomId"`
		Config iceConfig `json:"config"`
	}{domain.MsgRoomJoined, env.RoomID, iceConfig{ctl.Cfg.ICEServers()}})

	// Capacity is 2, so a successful join always has exactly one peer to
	// notify.
	if sig, ok := ctl.Registry.Signal(peer); ok {
		ctl.sendJSON(sig, struct {
			Type string `json:"type"`
		}{domain.MsgPeerJoined})
	}
}

func (ctl *SignalWSController) handleLeave(id core.ConnID, conn core.SignalConnection, env domain.Envelope) {
	if env.RoomID == "" {
		ctl.sendError(conn, "Missing roomId")
		return
	}
	log.Info().Str("module", "signal").Str("conn", string(id)).Str("room", env.RoomID).Msg("leave")
	peer, left := ctl.Rooms.LeaveRoom(id, domain.RoomID(env.RoomID))
	if left && peer != "" {
		ctl.notifyPeerLeft(peer)
	}
}

func (ctl *SignalWSController) notifyPeerLeft(peer core.ConnID) {
	sig, ok := ctl.Registry.Signal(peer)
	if !ok {
		return
	}
	ctl.sendJSON(sig, struct {
		Type string `json:"type"`
	}{domain.MsgPeerLeft})
}

func (ctl *SignalWSController) sendError(conn core.SignalConnection, msg string) {
	ctl.sendJSON(conn, struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	}{domain.MsgError, msg})
}

// reasonFor maps a room manager error to the text clients see.
func reasonFor(err error) string {
	switch {
	case errors.Is(err, domain.ErrRoomNotFound):
		return "Room not found"
	case errors.Is(err, domain.ErrRoomFull):
		return "Room is full"
	case errors.Is(err, domain.ErrAlreadyInRoom):
		return "You are already in a room"
	case errors.Is(err, domain.ErrTooManyRooms):
		return "Maximum rooms reached"
	default:
		return "Internal error"
	}
}
