package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Meet/internal/app"
	"github.com/dkeye/Meet/internal/config"
	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
)

var ErrBackpressure = errors.New("backpressure")

// SignalWSController accepts websocket signaling connections and routes
// every inbound envelope to the room manager or the other occupant.
type SignalWSController struct {
	Cfg      *config.Config
	Registry *app.Registry
	Rooms    *app.RoomManager
}

func NewSignalWSController(cfg *config.Config, reg *app.Registry, rooms *app.RoomManager) *SignalWSController {
	return &SignalWSController{
		Cfg:      cfg,
		Registry: reg,
		Rooms:    rooms,
	}
}

// iceConfig rides inside config, room-created and room-joined envelopes so
// clients can build their RTCPeerConnection without a separate fetch.
type iceConfig struct {
	ICEServers []webrtc.ICEServer `json:"iceServers"`
}

type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	id := core.ConnID(uuid.NewString())
	log.Info().Str("module", "signal").Str("conn", string(id)).Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Msg("ws upgrade")
		return
	}

	conn := &WsSignalConn{
		conn: ws,
		send: make(chan core.Frame, 32),
	}

	ctx, cancel := context.WithCancel(ctx)
	ctl.Registry.Bind(id, conn, cancel)

	ctl.sendJSON(conn, struct {
		Type       string             `json:"type"`
		ICEServers []webrtc.ICEServer `json:"iceServers"`
	}{domain.MsgConfig, ctl.Cfg.ICEServers()})

	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, id, conn)
}
