package engine

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/agentclash/arena/models"
)

const GameTypeThrowdown = "throwdown"

type ThrowChoice string

const (
	ThrowRock     ThrowChoice = "rock"
	ThrowPaper    ThrowChoice = "paper"
	ThrowScissors ThrowChoice = "scissors"
)

var throwChoices = []ThrowChoice{ThrowRock, ThrowPaper, ThrowScissors}

// beats maps each choice to the one it defeats.
var beats = map[ThrowChoice]ThrowChoice{
	ThrowRock:     ThrowScissors,
	ThrowPaper:    ThrowRock,
	ThrowScissors: ThrowPaper,
}

type ThrowdownSettings struct {
	RoundsToWin int

	Throwing time.Duration
	Reveal   time.Duration
	Between  time.Duration

	Rand *rand.Rand
}

func (s *ThrowdownSettings) normalize() {
	if s.RoundsToWin <= 0 {
		s.RoundsToWin = 2
	}
	if s.Throwing <= 0 {
		s.Throwing = 15 * time.Second
	}
	if s.Reveal <= 0 {
		s.Reveal = 4 * time.Second
	}
	if s.Between <= 0 {
		s.Between = 4 * time.Second
	}
}

// throwdown sub-phases inside the active super-phase
const (
	tdThrowing = "throwing"
	tdReveal   = "reveal"
	tdBetween  = "between_rounds"
)

// ThrowdownMatch is a best-of-N duel over a fixed beats-relation. Rounds
// resolve as soon as both throws are in (or the phase timer fills missing
// throws with uniformly random choices); draws replay the same round number
// and count toward neither score.
type ThrowdownMatch struct {
	*baseMatch
	settings ThrowdownSettings

	round      int
	subPhase   string
	throws     map[string]ThrowChoice
	wins       map[string]int
	roundStart time.Time
}

func NewThrowdownDescriptor(settings ThrowdownSettings) GameDescriptor {
	settings.normalize()
	return GameDescriptor{
		ID:           GameTypeThrowdown,
		Name:         "Throwdown",
		MinPlayers:   2,
		MaxPlayers:   2,
		HasPrizePool: true,
		Create: func(cfg MatchConfig) (Match, error) {
			return newThrowdownMatch(cfg, settings)
		},
	}
}

func newThrowdownMatch(cfg MatchConfig, settings ThrowdownSettings) (*ThrowdownMatch, error) {
	settings.normalize()
	if len(cfg.Participants) != 2 {
		return nil, fmt.Errorf("%w: throwdown takes exactly two participants", ErrTooFewParticipants)
	}
	m := &ThrowdownMatch{
		baseMatch: newBaseMatch(cfg.MatchID, GameTypeThrowdown, cfg.Participants, cfg.PrizePool, settings.Rand, cfg.Logger),
		settings:  settings,
		wins:      make(map[string]int),
	}
	m.begin = func() {
		m.round = 1
		m.beginRoundLocked()
	}
	return m, nil
}

func (m *ThrowdownMatch) HandleAction(participantID string, action Action) error {
	switch a := action.(type) {
	case ChatAction:
		return m.submitChat(participantID, a.Text)
	case ThrowAction:
		return m.submitThrow(participantID, a.Choice)
	default:
		return fmt.Errorf("%w: %s not accepted by %s", ErrInvalidAction, action.Kind(), GameTypeThrowdown)
	}
}

func (m *ThrowdownMatch) submitThrow(participantID string, choice ThrowChoice) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.states[participantID]
	if !ok {
		return ErrPlayerNotFound
	}
	if !st.isActive {
		return ErrPlayerInactive
	}
	if m.phase != models.MatchActive || m.subPhase != tdThrowing {
		return ErrWrongPhase
	}
	if _, valid := beats[choice]; !valid {
		return fmt.Errorf("%w: unknown throw %q", ErrInvalidAction, choice)
	}

	m.throws[participantID] = choice

	// both throws in: resolve right away instead of waiting out the timer
	if len(m.throws) == len(m.activeIDsLocked()) {
		m.supersedeTimerLocked()
		m.revealLocked()
	}
	return nil
}

func (m *ThrowdownMatch) beginRoundLocked() {
	m.throws = make(map[string]ThrowChoice)
	m.subPhase = tdThrowing
	m.roundStart = time.Now()

	deadline := m.scheduleLocked(m.settings.Throwing, m.revealLocked)
	m.emitLocked(EventRoundStarted, RoundStartedPayload{
		Round:    m.round,
		Phase:    tdThrowing,
		Deadline: deadline,
		RoundData: map[string]any{
			"rounds_to_win": m.settings.RoundsToWin,
			"wins":          m.winsSnapshotLocked(),
		},
	})
}

// revealLocked resolves the round. Missing throws are filled with uniformly
// random choices so the round always resolves.
func (m *ThrowdownMatch) revealLocked() {
	m.subPhase = tdReveal

	actives := m.activeIDsLocked()
	for _, id := range actives {
		if _, ok := m.throws[id]; !ok {
			m.throws[id] = throwChoices[m.rng.Intn(len(throwChoices))]
		}
	}

	p1, p2 := actives[0], actives[1]
	c1, c2 := m.throws[p1], m.throws[p2]

	var winner string
	switch {
	case c1 == c2:
		// draw
	case beats[c1] == c2:
		winner = p1
	default:
		winner = p2
	}

	payload := map[string]any{
		"round":  m.round,
		"throws": map[string]ThrowChoice{p1: c1, p2: c2},
		"draw":   winner == "",
	}
	if winner != "" {
		m.wins[winner]++
		payload["round_winner"] = winner
		payload["wins"] = m.winsSnapshotLocked()
	}
	m.emitLocked(EventGameEvent, GameEventPayload{Name: "throw_reveal", Data: payload})

	if winner != "" {
		m.appendRoundLocked(models.RoundResult{
			Round:     m.round,
			Payload:   payload,
			StartedAt: m.roundStart,
			EndedAt:   time.Now(),
		})
	}
	m.emitLocked(EventRoundEnded, RoundEndedPayload{Round: m.round, RoundData: payload})

	if winner != "" && m.wins[winner] >= m.settings.RoundsToWin {
		loser := p1
		if winner == p1 {
			loser = p2
		}
		m.eliminateLocked(loser, m.round)
		m.finishLocked(nil)
		return
	}

	m.subPhase = tdBetween
	m.scheduleLocked(m.settings.Between, func() {
		if winner != "" {
			m.round++
		}
		// a draw replays the same round number
		m.beginRoundLocked()
	})
}

func (m *ThrowdownMatch) winsSnapshotLocked() map[string]int {
	out := make(map[string]int, len(m.wins))
	for id, w := range m.wins {
		out[id] = w
	}
	return out
}

type throwdownPublicState struct {
	MatchID      string               `json:"match_id"`
	GameTypeID   string               `json:"game_type_id"`
	Phase        models.MatchPhase    `json:"phase"`
	SubPhase     string               `json:"sub_phase,omitempty"`
	Round        int                  `json:"round"`
	RoundsToWin  int                  `json:"rounds_to_win"`
	Wins         map[string]int       `json:"wins"`
	HasThrown    []string             `json:"has_thrown,omitempty"`
	Chat         []models.ChatMessage `json:"chat"`
	Placements   []models.Placement   `json:"placements,omitempty"`
	PrizePool    float64              `json:"prize_pool"`
	Participants []models.Participant `json:"participants"`
}

// PublicState hides the choices themselves until the reveal; spectators
// only see who has thrown.
func (m *ThrowdownMatch) PublicState() any {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := throwdownPublicState{
		MatchID:      m.id,
		GameTypeID:   m.gameTypeID,
		Phase:        m.phase,
		SubPhase:     m.subPhase,
		Round:        m.round,
		RoundsToWin:  m.settings.RoundsToWin,
		Wins:         m.winsSnapshotLocked(),
		Chat:         m.chatSnapshotLocked(),
		PrizePool:    m.prizePool,
		Participants: m.Participants(),
	}
	if m.subPhase == tdThrowing {
		for _, p := range m.roster {
			if _, ok := m.throws[p.ID]; ok {
				st.HasThrown = append(st.HasThrown, p.ID)
			}
		}
	}
	if m.phase == models.MatchFinished {
		st.Placements = append(st.Placements, m.placements...)
	}
	return st
}
