package hub

import (
	"go.uber.org/zap"

	"github.com/park285/omok-server/internal/record"
	"github.com/park285/omok-server/internal/room"
	"github.com/park285/omok-server/pkg/omokdto"
)

const slowConsumerReason = "slow consumer"

// Publish implements room.Publisher. It runs under the emitting room's lock
// and only enqueues.
func (h *Hub) Publish(ev room.Event) {
	switch ev.Kind {
	case room.EventListUpsert:
		if ev.Summary == nil {
			return
		}
		h.broadcast(omokdto.NewMessage(omokdto.EvtRoomsList, omokdto.RoomsList{
			Rooms: []omokdto.RoomSummary{toSummary(*ev.Summary)},
		}))
		return
	case room.EventListRemove:
		h.broadcast(omokdto.NewMessage(omokdto.EvtRoomsList, omokdto.RoomsList{
			Rooms:   []omokdto.RoomSummary{},
			Removed: []string{ev.RoomID},
		}))
		return
	}

	if ev.Kind == room.EventGameEnded && ev.Ended != nil && ev.Ended.Record != nil {
		h.submit(*ev.Ended.Record)
	}
	msg, ok := frame(ev)
	if !ok {
		return
	}
	for _, id := range ev.Audience {
		h.send(id, msg)
	}
}

func (h *Hub) submit(rec room.Record) {
	if h.recorder == nil {
		return
	}
	if !h.recorder.Submit(record.FromRoom(rec)) {
		h.logger.Warn("record_submit_dropped", zap.String("match", rec.ID), zap.String("room", rec.RoomID))
	}
}

// send queues msg for one session; a full queue disconnects it.
func (h *Hub) send(sessionID string, msg omokdto.Message) {
	if h.dir.Deliver(sessionID, msg) {
		return
	}
	if h.dir.Kick(sessionID, slowConsumerReason) {
		h.logger.Warn("ws_slow_consumer", zap.String("session", sessionID), zap.String("frame", msg.Type))
	}
}

func (h *Hub) broadcast(msg omokdto.Message) {
	for _, id := range h.dir.Broadcast(msg) {
		if h.dir.Kick(id, slowConsumerReason) {
			h.logger.Warn("ws_slow_consumer", zap.String("session", id), zap.String("frame", msg.Type))
		}
	}
}
