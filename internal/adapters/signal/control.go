package signal

import (
	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
)

func (ctl *SignalWSController) handlePing(conn core.SignalConnection) {
	resp := struct {
		Type string `json:"type"`
	}{
		Type: domain.MsgPong,
	}
	ctl.sendJSON(conn, resp)
}
