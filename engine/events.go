package engine

import (
	"time"

	"github.com/agentclash/arena/models"
)

type EventType string

const (
	EventMatchStarted     EventType = "match_started"
	EventRoundStarted     EventType = "round_started"
	EventChatMessage      EventType = "chat_message"
	EventPlayerEliminated EventType = "player_eliminated"
	EventRoundEnded       EventType = "round_ended"
	EventGameEvent        EventType = "game_event"
	EventMatchFinished    EventType = "match_finished"
)

// Event is one entry of a match's outbound event stream. Within a match,
// events are delivered to every listener in the order the corresponding
// state transitions occurred; a listener that has seen EventMatchFinished
// has already seen every earlier event of that match.
type Event struct {
	Type    EventType `json:"type"`
	MatchID string    `json:"match_id"`
	At      time.Time `json:"at"`
	Payload any       `json:"payload,omitempty"`
}

type MatchStartedPayload struct {
	GameTypeID   string               `json:"game_type_id"`
	Participants []models.Participant `json:"participants"`
	PrizePool    float64              `json:"prize_pool"`
}

type RoundStartedPayload struct {
	Round     int       `json:"round"`
	Phase     string    `json:"phase"`
	Deadline  time.Time `json:"deadline"`
	RoundData any       `json:"round_data,omitempty"`
}

type PlayerEliminatedPayload struct {
	ParticipantID string `json:"participant_id"`
	Round         int    `json:"round"`
}

type RoundEndedPayload struct {
	Round     int `json:"round"`
	RoundData any `json:"round_data,omitempty"`
}

// GameEventPayload is the escape hatch for game-specific spectator data
// (reveals, phase changes). Consumers must treat unknown names as opaque
// pass-through data.
type GameEventPayload struct {
	Name string `json:"name"`
	Data any    `json:"data,omitempty"`
}

type MatchFinishedPayload struct {
	WinnerID   *string            `json:"winner_id,omitempty"`
	Placements []models.Placement `json:"placements"`
	PrizePool  float64            `json:"prize_pool"`
	StartedAt  time.Time          `json:"started_at"`
	EndedAt    time.Time          `json:"ended_at"`
}
