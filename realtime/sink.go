package realtime

import (
	"github.com/agentclash/arena/engine"
)

// Sink forwards orchestrator output to WebSocket rooms. Match events go to
// the match's own room, announcements to the arena-wide room.
type Sink struct {
	hub *Hub
}

func NewSink(hub *Hub) *Sink {
	return &Sink{hub: hub}
}

func (s *Sink) MatchEvent(ev engine.Event) {
	s.hub.BroadcastToRoom(MatchRoom(ev.MatchID), Envelope{
		Type:    string(ev.Type),
		MatchID: ev.MatchID,
		Payload: ev.Payload,
	})
}

func (s *Sink) Announcement(kind string, data any) {
	s.hub.BroadcastToRoom(ArenaRoom, Envelope{
		Type:    kind,
		Payload: data,
	})
}
