package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/hivechat/relay/internal/core"
)

func (ctl *Controller) writePump(ctx context.Context, c *WsConn) {
	ticker := time.NewTicker(ctl.Cfg.PingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Msg("writePump ctx done")
			return
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				log.Warn().Err(err).Str("module", "signal").Msg("writePump ping")
				return
			}
		case data, ok := <-c.send:
			if !ok {
				log.Warn().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

func (ctl *Controller) readPump(ctx context.Context, cid core.ConnID, c *WsConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("cid", string(cid)).Msg("readPump closing")
		ctl.GW.Deregister(cid)
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Str("cid", string(cid)).Msg("readPump ctx done")
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				log.Info().Err(err).Str("module", "signal").Str("cid", string(cid)).Msg("readPump read error")
				return
			}
			ctl.handleEvent(ctx, cid, c, data)
		}
	}
}

func (ctl *Controller) handleEvent(ctx context.Context, cid core.ConnID, c *WsConn, data []byte) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad json")
		ctl.sendError(c, "bad_payload", "malformed event")
		return
	}

	switch env.Type {
	case "join-room":
		ctl.handleJoin(ctx, cid, c, data)
	case "leave-room":
		ctl.handleLeave(cid, c, data)
	case "send-message":
		ctl.handleSendMessage(ctx, cid, c, data)
	case "join-video-chat":
		ctl.handleJoinVideo(ctx, cid, c, data)
	case "leave-video-chat":
		ctl.handleLeaveVideo(cid, c, data)
	case "request-peer-id":
		ctl.handleRequestPeerID(cid, c)
	case "call-signal":
		ctl.handleCallSignal(cid, c, data)
	case "end-call":
		ctl.handleEndCall(cid)
	case "ping":
		ctl.handlePing(c)
	default:
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown event")
		ctl.sendError(c, "unknown_event", "unknown event: "+env.Type)
	}
}

func (ctl *Controller) sendJSON(c *WsConn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	_ = c.TrySend(b)
}

type errorEvent struct {
	Type  string `json:"type"`
	Code  string `json:"code"`
	Error string `json:"error"`
}

func errFrame(code, msg string) []byte {
	b, _ := json.Marshal(errorEvent{Type: "error", Code: code, Error: msg})
	return b
}

func (ctl *Controller) sendError(c *WsConn, code, msg string) {
	_ = c.TrySend(errFrame(code, msg))
}
