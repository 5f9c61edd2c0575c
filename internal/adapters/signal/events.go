package signal

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/hivechat/relay/internal/core"
	"github.com/hivechat/relay/internal/domain"
	"github.com/hivechat/relay/internal/metrics"
	"github.com/hivechat/relay/internal/peers"
)

func errCode(err error) string {
	switch {
	case errors.Is(err, core.ErrNotAuthorized):
		return "not_authorized"
	case errors.Is(err, core.ErrNotFound):
		return "not_found"
	case errors.Is(err, core.ErrPeerNotFound):
		return "peer_not_found"
	case errors.Is(err, domain.ErrContentEmpty),
		errors.Is(err, domain.ErrContentTooLong),
		errors.Is(err, domain.ErrBadContentKind):
		return "bad_payload"
	default:
		return "internal"
	}
}

func (ctl *Controller) handleJoin(ctx context.Context, cid core.ConnID, c *WsConn, data []byte) {
	var p struct {
		Type string `json:"type"`
		Room string `json:"room"`
	}
	if err := json.Unmarshal(data, &p); err != nil || p.Room == "" {
		ctl.sendError(c, "bad_payload", "join-room needs a room")
		return
	}
	room := domain.RoomID(p.Room)

	log.Info().Str("module", "signal").Str("cid", string(cid)).Str("room", p.Room).Msg("join-room")
	members, err := ctl.GW.JoinRoom(ctx, cid, room)
	if err != nil {
		ctl.sendError(c, errCode(err), err.Error())
		return
	}

	resp := struct {
		Type    string           `json:"type"`
		Room    domain.RoomID    `json:"room"`
		Members []core.MemberDTO `json:"members"`
		Count   int              `json:"count"`
	}{
		Type:    "room-state",
		Room:    room,
		Members: members,
		Count:   len(members),
	}
	ctl.sendJSON(c, resp)
}

func (ctl *Controller) handleLeave(cid core.ConnID, c *WsConn, data []byte) {
	var p struct {
		Type string `json:"type"`
		Room string `json:"room"`
	}
	if err := json.Unmarshal(data, &p); err != nil || p.Room == "" {
		ctl.sendError(c, "bad_payload", "leave-room needs a room")
		return
	}
	log.Info().Str("module", "signal").Str("cid", string(cid)).Str("room", p.Room).Msg("leave-room")
	ctl.GW.LeaveRoom(cid, domain.RoomID(p.Room))
	ctl.sendJSON(c, map[string]any{"type": "left", "room": p.Room})
}

func (ctl *Controller) handleSendMessage(ctx context.Context, cid core.ConnID, c *WsConn, data []byte) {
	var p struct {
		Type    string `json:"type"`
		Room    string `json:"room"`
		Content string `json:"content"`
		Kind    string `json:"kind"`
	}
	if err := json.Unmarshal(data, &p); err != nil || p.Room == "" {
		ctl.sendError(c, "bad_payload", "send-message needs a room")
		return
	}

	if user, ok := ctl.GW.Registry.Identity(cid); ok {
		if !ctl.Limiter.Allow(user.ID) {
			metrics.RateLimitHits.Inc()
			ctl.sendError(c, "rate_limited", "too many messages")
			return
		}
	}

	_, err := ctl.GW.SendMessage(ctx, cid, domain.RoomID(p.Room), p.Content, domain.ContentKind(p.Kind))
	if err != nil {
		ctl.sendError(c, errCode(err), err.Error())
	}
}

func (ctl *Controller) handleJoinVideo(ctx context.Context, cid core.ConnID, c *WsConn, data []byte) {
	var p struct {
		Type string `json:"type"`
		Room string `json:"room"`
	}
	if err := json.Unmarshal(data, &p); err != nil || p.Room == "" {
		ctl.sendError(c, "bad_payload", "join-video-chat needs a room")
		return
	}
	if err := ctl.GW.JoinVideoRoom(ctx, cid, domain.RoomID(p.Room)); err != nil {
		ctl.sendError(c, errCode(err), err.Error())
		return
	}
	ctl.sendJSON(c, map[string]any{"type": "video-joined", "room": p.Room})
}

func (ctl *Controller) handleLeaveVideo(cid core.ConnID, c *WsConn, data []byte) {
	var p struct {
		Type string `json:"type"`
		Room string `json:"room"`
	}
	if err := json.Unmarshal(data, &p); err != nil || p.Room == "" {
		ctl.sendError(c, "bad_payload", "leave-video-chat needs a room")
		return
	}
	ctl.GW.LeaveVideoRoom(cid, domain.RoomID(p.Room))
	ctl.sendJSON(c, map[string]any{"type": "video-left", "room": p.Room})
}

func (ctl *Controller) handleRequestPeerID(cid core.ConnID, c *WsConn) {
	id, err := ctl.GW.AllocatePeer(cid)
	if err != nil {
		ctl.sendError(c, errCode(err), err.Error())
		return
	}
	resp := struct {
		Type   string       `json:"type"`
		PeerID peers.PeerID `json:"peerId"`
	}{
		Type:   "peer-id-assigned",
		PeerID: id,
	}
	ctl.sendJSON(c, resp)
}

func (ctl *Controller) handleCallSignal(cid core.ConnID, c *WsConn, data []byte) {
	var p struct {
		Type    string          `json:"type"`
		From    string          `json:"from"`
		To      string          `json:"to"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &p); err != nil || p.To == "" {
		ctl.sendError(c, "bad_payload", "call-signal needs a target peer")
		return
	}
	if err := ctl.GW.RelaySignal(cid, peers.PeerID(p.From), peers.PeerID(p.To), p.Payload); err != nil {
		ctl.sendError(c, errCode(err), err.Error())
	}
}

func (ctl *Controller) handleEndCall(cid core.ConnID) {
	ctl.GW.EndCall(cid)
}

func (ctl *Controller) handlePing(c *WsConn) {
	resp := struct {
		Type string `json:"type"`
	}{
		Type: "pong",
	}
	ctl.sendJSON(c, resp)
}
