package models

import "time"

type MatchPhase string

const (
	MatchWaiting  MatchPhase = "waiting"
	MatchActive   MatchPhase = "active"
	MatchFinished MatchPhase = "finished"
)

// Placement is the final rank of one participant in a finished match.
// Place 1 is the winner; points equal the number of opponents beaten.
type Placement struct {
	ParticipantID string `json:"participant_id"`
	Place         int    `json:"place"`
	Points        int    `json:"points"`
}

// RoundResult is an immutable record of one completed round. Payload holds
// the round-specific data (bids and distances, throws, moves and collisions)
// and is never mutated after the round is appended to the history.
type RoundResult struct {
	Round      int       `json:"round"`
	Payload    any       `json:"payload,omitempty"`
	Eliminated []string  `json:"eliminated"`
	StartedAt  time.Time `json:"started_at"`
	EndedAt    time.Time `json:"ended_at"`
}

// ChatMessage is advisory spectator content; it has no effect on scoring.
type ChatMessage struct {
	ParticipantID string    `json:"participant_id"`
	Text          string    `json:"text"`
	SentAt        time.Time `json:"sent_at"`
}

// MatchResult is what gets handed to the persistence layer when a match
// finishes.
type MatchResult struct {
	MatchID    string      `json:"match_id"`
	GameTypeID string      `json:"game_type_id"`
	PrizePool  float64     `json:"prize_pool"`
	WinnerID   *string     `json:"winner_id,omitempty"`
	Placements []Placement `json:"placements"`
	StartedAt  time.Time   `json:"started_at"`
	EndedAt    time.Time   `json:"ended_at"`
}
