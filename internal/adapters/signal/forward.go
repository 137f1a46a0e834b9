package signal

import (
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
)

// forward relays an offer/answer/candidate frame to the other occupant of
// the sender's room, byte-for-byte. The recipient comes from room
// membership only. A sender outside the room, a vanished room or a missing
// peer is a silent drop: the client observes the outcome through its own
// connection state, not through us.
func (ctl *SignalWSController) forward(id core.ConnID, conn core.SignalConnection, env domain.Envelope, raw core.Frame) {
	if env.RoomID == "" {
		ctl.sendError(conn, "Missing roomId")
		return
	}
	peer, ok := ctl.Rooms.PeerOf(id, domain.RoomID(env.RoomID))
	if !ok {
		log.Debug().Str("module", "signal").Str("conn", string(id)).Str("room", env.RoomID).Str("type", env.Type).Msg("no recipient, dropping")
		return
	}
	sig, ok := ctl.Registry.Signal(peer)
	if !ok {
		log.Debug().Str("module", "signal").Str("peer", string(peer)).Msg("peer connection gone, dropping")
		return
	}
	if err := sig.TrySend(raw); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("peer", string(peer)).Str("type", env.Type).Msg("relay dropped")
	}
}
