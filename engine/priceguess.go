package engine

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/agentclash/arena/models"
)

const GameTypePriceGuess = "price_guess"

// TieBreakMode decides ordering among equal-distance guesses at the
// elimination cutoff, and ranking of survivors when the item list runs out
// with more than one participant still active.
type TieBreakMode string

const (
	TieBreakStable TieBreakMode = "stable" // roster order, deterministic
	TieBreakRandom TieBreakMode = "random"
)

type PriceItem struct {
	Name      string  `json:"name"`
	TrueValue float64 `json:"true_value"`
}

type PriceGuessSettings struct {
	Items             []PriceItem
	EliminatePerRound int
	MinPlayers        int
	MaxPlayers        int
	TieBreak          TieBreakMode

	Deliberation time.Duration
	Reveal       time.Duration
	Elimination  time.Duration

	// Rand overrides the per-match RNG; nil means time-seeded.
	Rand *rand.Rand
}

func (s *PriceGuessSettings) normalize() {
	if s.EliminatePerRound <= 0 {
		s.EliminatePerRound = 1
	}
	if s.MinPlayers <= 0 {
		s.MinPlayers = 2
	}
	if s.MaxPlayers < s.MinPlayers {
		s.MaxPlayers = 8
	}
	if s.TieBreak == "" {
		s.TieBreak = TieBreakStable
	}
	if s.Deliberation <= 0 {
		s.Deliberation = 30 * time.Second
	}
	if s.Reveal <= 0 {
		s.Reveal = 6 * time.Second
	}
	if s.Elimination <= 0 {
		s.Elimination = 6 * time.Second
	}
}

// price guess sub-phases inside the active super-phase
const (
	pgDeliberation = "deliberation"
	pgReveal       = "reveal"
	pgElimination  = "elimination"
)

// priceRevealEntry is one active participant's scored guess, worst-first
// after sorting. A participant who never guessed carries an infinite
// distance and no guess value.
type priceRevealEntry struct {
	ParticipantID string   `json:"participant_id"`
	Guess         *float64 `json:"guess,omitempty"`
	Distance      float64  `json:"distance"`
}

// PriceGuessMatch is a price-guessing elimination game: each round the
// active participants guess an item's true value during deliberation, the
// worst K distances are eliminated, and the match ends when one participant
// remains or the item list is exhausted.
type PriceGuessMatch struct {
	*baseMatch
	settings PriceGuessSettings

	round      int
	subPhase   string
	bids       map[string]float64
	entries    []priceRevealEntry
	roundStart time.Time
}

// NewPriceGuessDescriptor builds the registry descriptor for this rule-set.
func NewPriceGuessDescriptor(settings PriceGuessSettings) GameDescriptor {
	settings.normalize()
	return GameDescriptor{
		ID:           GameTypePriceGuess,
		Name:         "Price Guess",
		MinPlayers:   settings.MinPlayers,
		MaxPlayers:   settings.MaxPlayers,
		HasPrizePool: true,
		Create: func(cfg MatchConfig) (Match, error) {
			return newPriceGuessMatch(cfg, settings)
		},
	}
}

func newPriceGuessMatch(cfg MatchConfig, settings PriceGuessSettings) (*PriceGuessMatch, error) {
	settings.normalize()
	if len(settings.Items) == 0 {
		return nil, fmt.Errorf("price guess requires at least one item")
	}
	m := &PriceGuessMatch{
		baseMatch: newBaseMatch(cfg.MatchID, GameTypePriceGuess, cfg.Participants, cfg.PrizePool, settings.Rand, cfg.Logger),
		settings:  settings,
	}
	m.begin = m.beginRoundLocked
	return m, nil
}

func (m *PriceGuessMatch) HandleAction(participantID string, action Action) error {
	switch a := action.(type) {
	case ChatAction:
		return m.submitChat(participantID, a.Text)
	case BidAction:
		return m.submitBid(participantID, a.Amount)
	default:
		return fmt.Errorf("%w: %s not accepted by %s", ErrInvalidAction, action.Kind(), GameTypePriceGuess)
	}
}

func (m *PriceGuessMatch) submitBid(participantID string, amount float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.states[participantID]
	if !ok {
		return ErrPlayerNotFound
	}
	if !st.isActive {
		return ErrPlayerInactive
	}
	if m.phase != models.MatchActive || m.subPhase != pgDeliberation {
		return ErrWrongPhase
	}
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount < 0 {
		return fmt.Errorf("%w: bid must be a non-negative number", ErrInvalidAction)
	}
	// resubmitting within deliberation overwrites the earlier guess
	m.bids[participantID] = amount
	return nil
}

func (m *PriceGuessMatch) currentItem() PriceItem {
	return m.settings.Items[m.round-1]
}

func (m *PriceGuessMatch) beginRoundLocked() {
	if len(m.activeIDsLocked()) <= 1 {
		m.finishLocked(nil)
		return
	}
	if m.round >= len(m.settings.Items) {
		m.finishExhaustedLocked()
		return
	}
	m.round++
	m.bids = make(map[string]float64)
	m.subPhase = pgDeliberation
	m.roundStart = time.Now()

	deadline := m.scheduleLocked(m.settings.Deliberation, m.revealLocked)
	m.emitLocked(EventRoundStarted, RoundStartedPayload{
		Round:    m.round,
		Phase:    pgDeliberation,
		Deadline: deadline,
		RoundData: map[string]any{
			"item": m.currentItem().Name,
		},
	})
}

func (m *PriceGuessMatch) revealLocked() {
	m.subPhase = pgReveal
	item := m.currentItem()

	m.entries = m.scoredEntriesLocked(item)
	entries := m.entries
	m.emitLocked(EventGameEvent, GameEventPayload{
		Name: "price_reveal",
		Data: map[string]any{
			"round":      m.round,
			"item":       item.Name,
			"true_value": item.TrueValue,
			"entries":    entries,
		},
	})
	m.scheduleLocked(m.settings.Reveal, m.eliminationLocked)
}

// scoredEntriesLocked scores every active participant against the item and
// sorts worst-distance-first. The sort is stable, so cutoff ties resolve by
// the pre-sort order: roster order under TieBreakStable, shuffled under
// TieBreakRandom.
func (m *PriceGuessMatch) scoredEntriesLocked(item PriceItem) []priceRevealEntry {
	actives := m.activeIDsLocked()
	entries := make([]priceRevealEntry, 0, len(actives))
	for _, id := range actives {
		e := priceRevealEntry{ParticipantID: id, Distance: math.Inf(1)}
		if bid, ok := m.bids[id]; ok {
			v := bid
			e.Guess = &v
			e.Distance = math.Abs(bid - item.TrueValue)
		}
		entries = append(entries, e)
	}
	if m.settings.TieBreak == TieBreakRandom {
		m.rng.Shuffle(len(entries), func(i, j int) {
			entries[i], entries[j] = entries[j], entries[i]
		})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Distance > entries[j].Distance
	})
	return entries
}

func (m *PriceGuessMatch) eliminationLocked() {
	m.subPhase = pgElimination
	item := m.currentItem()
	// reuse the reveal ordering so the cutoff matches what spectators saw
	entries := m.entries

	// cutoff uses sorted position only, never distance magnitude
	k := m.settings.EliminatePerRound
	if k > len(entries)-1 {
		k = len(entries) - 1
	}
	eliminated := make([]string, 0, k)
	for _, e := range entries[:k] {
		if m.eliminateLocked(e.ParticipantID, m.round) {
			eliminated = append(eliminated, e.ParticipantID)
		}
	}

	payload := map[string]any{
		"item":       item.Name,
		"true_value": item.TrueValue,
		"entries":    entries,
	}
	m.appendRoundLocked(models.RoundResult{
		Round:      m.round,
		Payload:    payload,
		Eliminated: eliminated,
		StartedAt:  m.roundStart,
		EndedAt:    time.Now(),
	})
	m.emitLocked(EventRoundEnded, RoundEndedPayload{Round: m.round, RoundData: payload})

	remaining := m.activeIDsLocked()
	switch {
	case len(remaining) <= 1:
		m.finishLocked(nil)
	case m.round >= len(m.settings.Items):
		m.finishExhaustedLocked()
	default:
		m.scheduleLocked(m.settings.Elimination, m.beginRoundLocked)
	}
}

// finishExhaustedLocked ends the match with the item list used up and more
// than one participant still active. Survivor ranking follows the tie-break
// knob rather than any fairness rule inherited from elimination order.
func (m *PriceGuessMatch) finishExhaustedLocked() {
	survivors := m.activeIDsLocked()
	if m.settings.TieBreak == TieBreakRandom {
		m.rng.Shuffle(len(survivors), func(i, j int) {
			survivors[i], survivors[j] = survivors[j], survivors[i]
		})
	}
	m.finishLocked(survivors)
}

type priceGuessPublicState struct {
	MatchID      string               `json:"match_id"`
	GameTypeID   string               `json:"game_type_id"`
	Phase        models.MatchPhase    `json:"phase"`
	SubPhase     string               `json:"sub_phase,omitempty"`
	Round        int                  `json:"round"`
	TotalRounds  int                  `json:"total_rounds"`
	Item         string               `json:"item,omitempty"`
	Active       []string             `json:"active_participants"`
	HasGuessed   []string             `json:"has_guessed,omitempty"`
	Chat         []models.ChatMessage `json:"chat"`
	Placements   []models.Placement   `json:"placements,omitempty"`
	PrizePool    float64              `json:"prize_pool"`
	Participants []models.Participant `json:"participants"`
}

// PublicState never exposes guess amounts while deliberation is open, only
// who has already guessed.
func (m *PriceGuessMatch) PublicState() any {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := priceGuessPublicState{
		MatchID:      m.id,
		GameTypeID:   m.gameTypeID,
		Phase:        m.phase,
		SubPhase:     m.subPhase,
		Round:        m.round,
		TotalRounds:  len(m.settings.Items),
		Active:       m.activeIDsLocked(),
		Chat:         m.chatSnapshotLocked(),
		PrizePool:    m.prizePool,
		Participants: m.Participants(),
	}
	if m.phase == models.MatchActive && m.round > 0 {
		st.Item = m.currentItem().Name
		for _, p := range m.roster {
			if _, ok := m.bids[p.ID]; ok {
				st.HasGuessed = append(st.HasGuessed, p.ID)
			}
		}
	}
	if m.phase == models.MatchFinished {
		st.Placements = append(st.Placements, m.placements...)
	}
	return st
}
