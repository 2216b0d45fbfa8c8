package signal

import (
	"encoding/json"
	"errors"

	"github.com/dkeye/Presence/internal/app"
	"github.com/dkeye/Presence/internal/app/orch"
	"github.com/dkeye/Presence/internal/core"
	"github.com/dkeye/Presence/internal/domain"
	"github.com/rs/zerolog/log"
)

// handleSignal answers connection-level messages itself and hands the rest
// to the orchestrator.
func (ctl *SignalWSController) handleSignal(sid core.SessionID, c *WsSignalConn, data []byte) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("bad json")
		ctl.sendError(c, "bad_payload")
		return
	}

	switch env.Type {
	case "ping":
		ctl.handlePing(c)
	case "whoami":
		ctl.handleWhoAmI(sid, c)
	case orch.TypeLeave:
		ctl.handleLeave(sid, c)
	default:
		ctl.Orch.OnFrame(sid, data)
	}
}

func (ctl *SignalWSController) handlePing(conn *WsSignalConn) {
	resp := struct {
		Type string `json:"type"`
	}{
		Type: "pong",
	}
	ctl.sendJSON(conn, resp)
}

func (ctl *SignalWSController) handleWhoAmI(sid core.SessionID, conn *WsSignalConn) {
	resp := struct {
		Type      string          `json:"type"`
		SessionID core.SessionID  `json:"sessionId"`
		Room      domain.RoomID   `json:"room,omitempty"`
		RoomName  domain.RoomName `json:"room_name,omitempty"`
		Kind      domain.RoomKind `json:"kind,omitempty"`
	}{
		Type:      "whoami",
		SessionID: sid,
	}
	if room, ok := ctl.Orch.RoomOf(sid); ok {
		resp.Room = room.ID()
		resp.RoomName = room.Name()
		resp.Kind = room.Kind()
	}
	ctl.sendJSON(conn, resp)
}

// handleLeave detaches the session on request and then closes the socket.
func (ctl *SignalWSController) handleLeave(sid core.SessionID, conn *WsSignalConn) {
	log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("leave")
	ctl.Orch.Leave(sid, true)
	ctl.sendJSON(conn, map[string]any{"type": "left"})
	conn.Close()
}

func (ctl *SignalWSController) sendError(conn *WsSignalConn, code string) {
	ctl.sendJSON(conn, map[string]any{
		"type":  "error",
		"error": code,
	})
}

func (ctl *SignalWSController) sendJSON(c *WsSignalConn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	_ = c.TrySend(b)
}

// errorCode maps a join failure to the code sent to the client.
func errorCode(err error) string {
	switch {
	case errors.Is(err, core.ErrRoomFull):
		return "room_full"
	case errors.Is(err, core.ErrMissingContent):
		return "missing_content"
	case errors.Is(err, app.ErrContentNotFound):
		return "content_not_found"
	case errors.Is(err, domain.ErrUnknownKind):
		return "unknown_kind"
	}
	return "join_failed"
}
