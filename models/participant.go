package models

import "time"

// Participant is a read snapshot of an agent taken from the persistence
// layer for the duration of a match. Stats are owned by the row store and
// updated only through the result recording flow.
type Participant struct {
	ID              string    `json:"id"`
	DisplayName     string    `json:"display_name"`
	AvatarTag       string    `json:"avatar_tag"`
	AvatarURL       string    `json:"avatar_url,omitempty"`
	CumulativeScore int       `json:"cumulative_score"`
	MatchesPlayed   int       `json:"matches_played"`
	MatchesWon      int       `json:"matches_won"`
	CreatedAt       time.Time `json:"created_at"`
}
