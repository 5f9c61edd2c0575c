package app

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/hivechat/relay/internal/core"
	"github.com/hivechat/relay/internal/domain"
	"github.com/hivechat/relay/internal/metrics"
)

// Broadcaster fans out events to the members of a room. Membership is
// snapshotted at call time; a connection joining mid-broadcast does not
// receive that broadcast. Per-recipient push failures never propagate
// to the caller: they are reported in PublishResult for lazy cleanup.
type Broadcaster struct {
	Rooms    *Rooms
	Registry *Registry
}

type messageEvent struct {
	Type string `json:"type"`
	domain.Message
}

// Broadcast delivers the message to every current member of the room,
// the sender included (the client performs no local echo).
func (b *Broadcaster) Broadcast(msg *domain.Message) core.PublishResult {
	frame, err := json.Marshal(messageEvent{Type: "new-message", Message: *msg})
	if err != nil {
		log.Error().Err(err).Str("module", "app.broadcaster").Msg("marshal message")
		return core.PublishResult{}
	}
	metrics.MessagesBroadcast.WithLabelValues(string(msg.Kind)).Inc()
	return b.fanout(msg.Room, frame, "")
}

// Publish sends an arbitrary event to every member of the room,
// optionally excluding one connection (presence broadcasts exclude the
// member the event is about).
func (b *Broadcaster) Publish(room domain.RoomID, v any, except core.ConnID) core.PublishResult {
	frame, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "app.broadcaster").Msg("marshal event")
		return core.PublishResult{}
	}
	return b.fanout(room, frame, except)
}

func (b *Broadcaster) fanout(room domain.RoomID, frame core.Frame, except core.ConnID) core.PublishResult {
	res := core.PublishResult{}
	for _, cid := range b.Rooms.MembersOf(room) {
		if cid == except {
			continue
		}
		sig, ok := b.Registry.SignalOf(cid)
		if !ok {
			res.Dropped = append(res.Dropped, cid)
			continue
		}
		if err := sig.TrySend(frame); err != nil {
			metrics.DeliveryFailures.Inc()
			res.Dropped = append(res.Dropped, cid)
			continue
		}
		metrics.Deliveries.Inc()
		res.SentTo++
	}
	log.Debug().Str("module", "app.broadcaster").Str("room", string(room)).Int("sent_to", res.SentTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res
}
