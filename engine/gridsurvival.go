package engine

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/agentclash/arena/models"
)

const GameTypeGridSurvival = "grid_survival"

type GridCell struct {
	X int `json:"x"`
	Y int `json:"y"`
}

type GridSurvivalSettings struct {
	Width  int
	Height int
	// HazardFraction of the remaining safe cells converts to hazard each
	// round, on top of the cells participants stand on.
	HazardFraction float64
	MinPlayers     int
	MaxPlayers     int

	HazardSpread time.Duration
	Deliberation time.Duration
	Commit       time.Duration
	Resolve      time.Duration

	Rand *rand.Rand
}

func (s *GridSurvivalSettings) normalize() {
	if s.Width <= 0 {
		s.Width = 6
	}
	if s.Height <= 0 {
		s.Height = 6
	}
	if s.HazardFraction <= 0 || s.HazardFraction >= 1 {
		s.HazardFraction = 0.15
	}
	if s.MinPlayers <= 0 {
		s.MinPlayers = 2
	}
	if s.MaxPlayers < s.MinPlayers {
		s.MaxPlayers = 8
	}
	if s.HazardSpread <= 0 {
		s.HazardSpread = 5 * time.Second
	}
	if s.Deliberation <= 0 {
		s.Deliberation = 20 * time.Second
	}
	if s.Commit <= 0 {
		s.Commit = 8 * time.Second
	}
	if s.Resolve <= 0 {
		s.Resolve = 6 * time.Second
	}
}

// grid survival sub-phases inside the active super-phase
const (
	gsHazardSpread = "hazard_spread"
	gsDeliberation = "deliberation"
	gsCommit       = "commit"
	gsResolve      = "resolve"
)

type gridMoveOutcome struct {
	ParticipantID string   `json:"participant_id"`
	From          GridCell `json:"from"`
	To            GridCell `json:"to"`
	Committed     bool     `json:"committed"` // false when filled in at random
	Outcome       string   `json:"outcome"`   // moved | hazard | collision_won | collision_lost
}

// GridSurvivalMatch is a floor-is-lava style survival game on a fixed grid.
// Safe cells convert to hazard every round; participants commit a move and
// the resolve step settles hazards and collisions. A collision hands the
// cell to a uniformly random participant regardless of submission order.
type GridSurvivalMatch struct {
	*baseMatch
	settings GridSurvivalSettings

	round      int
	subPhase   string
	hazard     map[GridCell]bool
	positions  map[string]GridCell
	intents    map[string]GridCell
	roundStart time.Time
}

func NewGridSurvivalDescriptor(settings GridSurvivalSettings) GameDescriptor {
	settings.normalize()
	return GameDescriptor{
		ID:           GameTypeGridSurvival,
		Name:         "Grid Survival",
		MinPlayers:   settings.MinPlayers,
		MaxPlayers:   settings.MaxPlayers,
		HasPrizePool: true,
		Create: func(cfg MatchConfig) (Match, error) {
			return newGridSurvivalMatch(cfg, settings)
		},
	}
}

func newGridSurvivalMatch(cfg MatchConfig, settings GridSurvivalSettings) (*GridSurvivalMatch, error) {
	settings.normalize()
	if settings.Width*settings.Height < len(cfg.Participants) {
		return nil, fmt.Errorf("grid %dx%d cannot hold %d participants",
			settings.Width, settings.Height, len(cfg.Participants))
	}
	m := &GridSurvivalMatch{
		baseMatch: newBaseMatch(cfg.MatchID, GameTypeGridSurvival, cfg.Participants, cfg.PrizePool, settings.Rand, cfg.Logger),
		settings:  settings,
		hazard:    make(map[GridCell]bool),
		positions: make(map[string]GridCell),
	}
	m.begin = func() {
		m.placeParticipantsLocked()
		m.beginRoundLocked()
	}
	return m, nil
}

func (m *GridSurvivalMatch) inBounds(c GridCell) bool {
	return c.X >= 0 && c.X < m.settings.Width && c.Y >= 0 && c.Y < m.settings.Height
}

func (m *GridSurvivalMatch) safeCellsLocked() []GridCell {
	cells := make([]GridCell, 0, m.settings.Width*m.settings.Height)
	for y := 0; y < m.settings.Height; y++ {
		for x := 0; x < m.settings.Width; x++ {
			c := GridCell{X: x, Y: y}
			if !m.hazard[c] {
				cells = append(cells, c)
			}
		}
	}
	return cells
}

// placeParticipantsLocked scatters the roster over distinct random cells.
func (m *GridSurvivalMatch) placeParticipantsLocked() {
	cells := m.safeCellsLocked()
	m.rng.Shuffle(len(cells), func(i, j int) {
		cells[i], cells[j] = cells[j], cells[i]
	})
	for i, p := range m.roster {
		m.positions[p.ID] = cells[i]
	}
}

func (m *GridSurvivalMatch) HandleAction(participantID string, action Action) error {
	switch a := action.(type) {
	case ChatAction:
		return m.submitChat(participantID, a.Text)
	case MoveAction:
		return m.submitMove(participantID, GridCell{X: a.TargetX, Y: a.TargetY})
	default:
		return fmt.Errorf("%w: %s not accepted by %s", ErrInvalidAction, action.Kind(), GameTypeGridSurvival)
	}
}

// submitMove records a movement intent. Intents may be submitted early
// during deliberation and replaced any time up to the end of the commit
// phase. Targeting a hazard cell is legal (and fatal).
func (m *GridSurvivalMatch) submitMove(participantID string, target GridCell) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.states[participantID]
	if !ok {
		return ErrPlayerNotFound
	}
	if !st.isActive {
		return ErrPlayerInactive
	}
	if m.phase != models.MatchActive || (m.subPhase != gsDeliberation && m.subPhase != gsCommit) {
		return ErrWrongPhase
	}
	if !m.inBounds(target) {
		return fmt.Errorf("%w: cell (%d,%d) is outside the %dx%d grid",
			ErrInvalidAction, target.X, target.Y, m.settings.Width, m.settings.Height)
	}
	m.intents[participantID] = target
	return nil
}

func (m *GridSurvivalMatch) beginRoundLocked() {
	if len(m.activeIDsLocked()) <= 1 {
		m.finishLocked(nil)
		return
	}
	m.round++
	m.intents = make(map[string]GridCell)
	m.subPhase = gsHazardSpread
	m.roundStart = time.Now()

	m.spreadHazardLocked()

	deadline := m.scheduleLocked(m.settings.HazardSpread, m.deliberationLocked)
	m.emitLocked(EventRoundStarted, RoundStartedPayload{
		Round:    m.round,
		Phase:    gsHazardSpread,
		Deadline: deadline,
		RoundData: map[string]any{
			"grid":      m.gridSnapshotLocked(),
			"positions": m.positionsSnapshotLocked(),
		},
	})
}

// spreadHazardLocked converts every occupied cell to hazard, plus a random
// fraction of the remaining safe cells.
func (m *GridSurvivalMatch) spreadHazardLocked() {
	for _, id := range m.activeIDsLocked() {
		m.hazard[m.positions[id]] = true
	}
	safe := m.safeCellsLocked()
	n := int(float64(len(safe)) * m.settings.HazardFraction)
	m.rng.Shuffle(len(safe), func(i, j int) {
		safe[i], safe[j] = safe[j], safe[i]
	})
	for _, c := range safe[:n] {
		m.hazard[c] = true
	}
}

func (m *GridSurvivalMatch) deliberationLocked() {
	m.subPhase = gsDeliberation
	deadline := m.scheduleLocked(m.settings.Deliberation, m.commitLocked)
	m.emitLocked(EventGameEvent, GameEventPayload{
		Name: "phase_changed",
		Data: map[string]any{"round": m.round, "phase": gsDeliberation, "deadline": deadline},
	})
}

func (m *GridSurvivalMatch) commitLocked() {
	m.subPhase = gsCommit
	deadline := m.scheduleLocked(m.settings.Commit, m.resolveLocked)
	m.emitLocked(EventGameEvent, GameEventPayload{
		Name: "phase_changed",
		Data: map[string]any{"round": m.round, "phase": gsCommit, "deadline": deadline},
	})
}

// resolveLocked settles the round: random destinations for missing commits,
// hazard deaths, free moves, and collisions decided by a uniformly random
// distinct ranking of the colliding participants.
func (m *GridSurvivalMatch) resolveLocked() {
	m.subPhase = gsResolve
	actives := m.activeIDsLocked()

	committed := make(map[string]bool, len(actives))
	for _, id := range actives {
		if _, ok := m.intents[id]; ok {
			committed[id] = true
			continue
		}
		m.intents[id] = m.randomFallbackCellLocked()
	}

	// group intents by destination, preserving roster order per group
	groups := make(map[GridCell][]string)
	for _, id := range actives {
		dest := m.intents[id]
		groups[dest] = append(groups[dest], id)
	}

	outcomes := make([]gridMoveOutcome, 0, len(actives))
	var eliminated []string
	for dest, ids := range groups {
		switch {
		case m.hazard[dest]:
			for _, id := range ids {
				outcomes = append(outcomes, m.outcomeLocked(id, dest, committed[id], "hazard"))
				if m.eliminateLocked(id, m.round) {
					eliminated = append(eliminated, id)
				}
			}
		case len(ids) == 1:
			id := ids[0]
			outcomes = append(outcomes, m.outcomeLocked(id, dest, committed[id], "moved"))
			m.positions[id] = dest
		default:
			// collision: each contender draws a distinct random rank,
			// highest rank takes the cell
			perm := m.rng.Perm(len(ids))
			winnerIdx := 0
			for i, rank := range perm {
				if rank > perm[winnerIdx] {
					winnerIdx = i
				}
			}
			for i, id := range ids {
				if i == winnerIdx {
					outcomes = append(outcomes, m.outcomeLocked(id, dest, committed[id], "collision_won"))
					m.positions[id] = dest
					continue
				}
				outcomes = append(outcomes, m.outcomeLocked(id, dest, committed[id], "collision_lost"))
				if m.eliminateLocked(id, m.round) {
					eliminated = append(eliminated, id)
				}
			}
		}
	}

	payload := map[string]any{
		"round":     m.round,
		"moves":     outcomes,
		"grid":      m.gridSnapshotLocked(),
		"positions": m.positionsSnapshotLocked(),
	}
	m.appendRoundLocked(models.RoundResult{
		Round:      m.round,
		Payload:    payload,
		Eliminated: eliminated,
		StartedAt:  m.roundStart,
		EndedAt:    time.Now(),
	})
	m.emitLocked(EventRoundEnded, RoundEndedPayload{Round: m.round, RoundData: payload})

	if len(m.activeIDsLocked()) <= 1 {
		m.finishLocked(nil)
		return
	}
	m.scheduleLocked(m.settings.Resolve, m.beginRoundLocked)
}

func (m *GridSurvivalMatch) outcomeLocked(id string, dest GridCell, committed bool, outcome string) gridMoveOutcome {
	return gridMoveOutcome{
		ParticipantID: id,
		From:          m.positions[id],
		To:            dest,
		Committed:     committed,
		Outcome:       outcome,
	}
}

// randomFallbackCellLocked picks a uniformly random safe cell for a
// participant who never committed; when no safe cell remains, any in-bounds
// cell (which is then fatal, like the floor it stands for).
func (m *GridSurvivalMatch) randomFallbackCellLocked() GridCell {
	safe := m.safeCellsLocked()
	if len(safe) > 0 {
		return safe[m.rng.Intn(len(safe))]
	}
	return GridCell{X: m.rng.Intn(m.settings.Width), Y: m.rng.Intn(m.settings.Height)}
}

func (m *GridSurvivalMatch) gridSnapshotLocked() []GridCell {
	hazards := make([]GridCell, 0, len(m.hazard))
	for y := 0; y < m.settings.Height; y++ {
		for x := 0; x < m.settings.Width; x++ {
			c := GridCell{X: x, Y: y}
			if m.hazard[c] {
				hazards = append(hazards, c)
			}
		}
	}
	return hazards
}

func (m *GridSurvivalMatch) positionsSnapshotLocked() map[string]GridCell {
	out := make(map[string]GridCell, len(m.positions))
	for _, id := range m.activeIDsLocked() {
		out[id] = m.positions[id]
	}
	return out
}

type gridSurvivalPublicState struct {
	MatchID      string               `json:"match_id"`
	GameTypeID   string               `json:"game_type_id"`
	Phase        models.MatchPhase    `json:"phase"`
	SubPhase     string               `json:"sub_phase,omitempty"`
	Round        int                  `json:"round"`
	Width        int                  `json:"width"`
	Height       int                  `json:"height"`
	Hazards      []GridCell           `json:"hazards"`
	Positions    map[string]GridCell  `json:"positions"`
	HasCommitted []string             `json:"has_committed,omitempty"`
	Chat         []models.ChatMessage `json:"chat"`
	Placements   []models.Placement   `json:"placements,omitempty"`
	PrizePool    float64              `json:"prize_pool"`
	Participants []models.Participant `json:"participants"`
}

// PublicState exposes the board but not where anyone intends to move.
func (m *GridSurvivalMatch) PublicState() any {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := gridSurvivalPublicState{
		MatchID:      m.id,
		GameTypeID:   m.gameTypeID,
		Phase:        m.phase,
		SubPhase:     m.subPhase,
		Round:        m.round,
		Width:        m.settings.Width,
		Height:       m.settings.Height,
		Hazards:      m.gridSnapshotLocked(),
		Positions:    m.positionsSnapshotLocked(),
		Chat:         m.chatSnapshotLocked(),
		PrizePool:    m.prizePool,
		Participants: m.Participants(),
	}
	if m.subPhase == gsDeliberation || m.subPhase == gsCommit {
		for _, p := range m.roster {
			if _, ok := m.intents[p.ID]; ok {
				st.HasCommitted = append(st.HasCommitted, p.ID)
			}
		}
	}
	if m.phase == models.MatchFinished {
		st.Placements = append(st.Placements, m.placements...)
	}
	return st
}
