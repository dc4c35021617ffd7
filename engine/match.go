package engine

import (
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/agentclash/arena/models"
)

// maxChatRunes caps chat text length in code points.
const maxChatRunes = 200

// Match is the shared contract every game rule-set implements. A match is
// constructed in the waiting phase by the registry, started exactly once by
// the orchestrator, and advances through phase-duration timers and
// externally delivered actions until it reaches the finished phase.
type Match interface {
	ID() string
	GameTypeID() string
	Phase() models.MatchPhase
	Participants() []models.Participant
	PrizePool() float64

	Start() error
	Cancel()
	HandleAction(participantID string, action Action) error

	// Subscribe registers a listener and returns its unsubscribe function.
	// Listeners are invoked on a per-match dispatch goroutine; a panicking
	// listener is isolated and does not affect delivery to the others.
	Subscribe(fn func(Event)) func()

	PublicState() any
	Placements() []models.Placement
}

type participantState struct {
	isActive          bool
	eliminatedAtRound int
}

// baseMatch carries the bookkeeping shared by all game types: the roster,
// active/eliminated tracking, the chat log, round history, placement
// computation, the event stream and the single pending phase timer.
//
// Mutable state is owned exclusively by the embedding match: every entry
// point takes mu, mutates, queues events, and the dispatch goroutine drains
// them in order.
type baseMatch struct {
	id         string
	gameTypeID string
	prizePool  float64
	roster     []models.Participant

	mu        sync.Mutex
	phase     models.MatchPhase
	startedAt time.Time
	endedAt   time.Time

	states     map[string]*participantState
	elimOrder  []string
	chatLog    []models.ChatMessage
	rounds     []models.RoundResult
	placements []models.Placement
	winnerID   *string

	// begin is the game hook invoked (with mu held) when the match
	// transitions from waiting to active.
	begin func()

	timer    *time.Timer
	timerGen uint64

	rng    *rand.Rand
	logger *slog.Logger

	// event queue drained by the dispatch goroutine
	evMu     sync.Mutex
	evCond   *sync.Cond
	evQueue  []Event
	evClosed bool

	lisMu     sync.Mutex
	listeners map[int]func(Event)
	nextLisID int
}

func newBaseMatch(id, gameTypeID string, participants []models.Participant, prizePool float64, rng *rand.Rand, logger *slog.Logger) *baseMatch {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if logger == nil {
		logger = slog.Default()
	}
	roster := make([]models.Participant, len(participants))
	copy(roster, participants)

	states := make(map[string]*participantState, len(roster))
	for _, p := range roster {
		states[p.ID] = &participantState{isActive: true}
	}

	b := &baseMatch{
		id:         id,
		gameTypeID: gameTypeID,
		prizePool:  prizePool,
		roster:     roster,
		phase:      models.MatchWaiting,
		states:     states,
		rng:        rng,
		logger:     logger,
		listeners:  make(map[int]func(Event)),
	}
	b.evCond = sync.NewCond(&b.evMu)
	go b.dispatch()
	return b
}

func (b *baseMatch) ID() string         { return b.id }
func (b *baseMatch) GameTypeID() string { return b.gameTypeID }
func (b *baseMatch) PrizePool() float64 { return b.prizePool }

func (b *baseMatch) Phase() models.MatchPhase {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.phase
}

func (b *baseMatch) Participants() []models.Participant {
	out := make([]models.Participant, len(b.roster))
	copy(out, b.roster)
	return out
}

func (b *baseMatch) Placements() []models.Placement {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]models.Placement, len(b.placements))
	copy(out, b.placements)
	return out
}

// Start moves the match from waiting to active and hands control to the
// game's begin hook. It is the only method that can move a match out of
// the waiting phase.
func (b *baseMatch) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.phase != models.MatchWaiting {
		return ErrMatchAlreadyStarted
	}
	b.phase = models.MatchActive
	b.startedAt = time.Now()
	b.emitLocked(EventMatchStarted, MatchStartedPayload{
		GameTypeID:   b.gameTypeID,
		Participants: b.Participants(),
		PrizePool:    b.prizePool,
	})
	if b.begin != nil {
		b.begin()
	}
	return nil
}

// Cancel force-ends the match. The pending phase timer is superseded so a
// stale callback can never mutate the finished match. Canceling a finished
// match is a no-op.
func (b *baseMatch) Cancel() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.phase == models.MatchFinished {
		return
	}
	b.finishLocked(nil)
}

func (b *baseMatch) Subscribe(fn func(Event)) func() {
	b.lisMu.Lock()
	id := b.nextLisID
	b.nextLisID++
	b.listeners[id] = fn
	b.lisMu.Unlock()

	return func() {
		b.lisMu.Lock()
		delete(b.listeners, id)
		b.lisMu.Unlock()
	}
}

// activeIDsLocked returns active participants in roster order.
func (b *baseMatch) activeIDsLocked() []string {
	ids := make([]string, 0, len(b.roster))
	for _, p := range b.roster {
		if b.states[p.ID].isActive {
			ids = append(ids, p.ID)
		}
	}
	return ids
}

// eliminateLocked flips a participant to inactive exactly once. Calling it
// again for the same participant is a no-op so double elimination can never
// double-count in the placement order.
func (b *baseMatch) eliminateLocked(participantID string, round int) bool {
	st, ok := b.states[participantID]
	if !ok || !st.isActive {
		return false
	}
	st.isActive = false
	st.eliminatedAtRound = round
	b.elimOrder = append(b.elimOrder, participantID)
	b.emitLocked(EventPlayerEliminated, PlayerEliminatedPayload{
		ParticipantID: participantID,
		Round:         round,
	})
	return true
}

func (b *baseMatch) submitChat(participantID, text string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.phase == models.MatchFinished {
		return ErrWrongPhase
	}
	st, ok := b.states[participantID]
	if !ok {
		return ErrPlayerNotFound
	}
	if !st.isActive {
		return ErrPlayerInactive
	}

	if runes := []rune(text); len(runes) > maxChatRunes {
		text = string(runes[:maxChatRunes])
	}
	msg := models.ChatMessage{
		ParticipantID: participantID,
		Text:          text,
		SentAt:        time.Now(),
	}
	b.chatLog = append(b.chatLog, msg)
	b.emitLocked(EventChatMessage, msg)
	return nil
}

// scheduleLocked arms the match's single pending deadline and returns it.
// Any previously armed deadline is superseded. fn runs with mu held and is
// skipped when the deadline was superseded in the meantime or the match
// already finished, so a stale timer firing after teardown is a no-op.
func (b *baseMatch) scheduleLocked(d time.Duration, fn func()) time.Time {
	b.timerGen++
	gen := b.timerGen
	if b.timer != nil {
		b.timer.Stop()
	}
	b.timer = time.AfterFunc(d, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if gen != b.timerGen || b.phase == models.MatchFinished || len(b.activeIDsLocked()) == 0 {
			return
		}
		fn()
	})
	return time.Now().Add(d)
}

// supersedeTimerLocked invalidates the pending deadline without arming a
// new one. Used for early phase advances.
func (b *baseMatch) supersedeTimerLocked() {
	b.timerGen++
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
}

// finishLocked ends the match: stamps endedAt, computes placements from the
// elimination order and emits the final event. survivorOrder optionally
// ranks still-active participants best-first (used when a match is cut
// short with more than one active participant); when nil, roster order is
// used.
func (b *baseMatch) finishLocked(survivorOrder []string) {
	b.supersedeTimerLocked()
	b.phase = models.MatchFinished
	b.endedAt = time.Now()

	survivors := survivorOrder
	if survivors == nil {
		survivors = b.activeIDsLocked()
	}
	if len(survivors) == 1 {
		id := survivors[0]
		b.winnerID = &id
	}

	// Best-to-worst: survivors first, then eliminated in reverse order.
	ranked := make([]string, 0, len(b.roster))
	ranked = append(ranked, survivors...)
	for i := len(b.elimOrder) - 1; i >= 0; i-- {
		ranked = append(ranked, b.elimOrder[i])
	}

	n := len(b.roster)
	placements := make([]models.Placement, 0, n)
	for i, id := range ranked {
		placements = append(placements, models.Placement{
			ParticipantID: id,
			Place:         i + 1,
			Points:        n - (i + 1),
		})
	}
	b.validatePlacements(placements)
	b.placements = placements

	b.emitLocked(EventMatchFinished, MatchFinishedPayload{
		WinnerID:   b.winnerID,
		Placements: placements,
		PrizePool:  b.prizePool,
		StartedAt:  b.startedAt,
		EndedAt:    b.endedAt,
	})
	b.closeEvents()
}

// validatePlacements asserts the place values form a permutation of 1..N
// over the exact roster. A violation is a bug in the engine, not a caller
// mistake, so it is surfaced loudly instead of producing a corrupt result.
func (b *baseMatch) validatePlacements(placements []models.Placement) {
	n := len(b.roster)
	if len(placements) != n {
		b.logger.Error("placement count mismatch",
			slog.String("match_id", b.id),
			slog.Int("want", n), slog.Int("got", len(placements)))
		panic(fmt.Sprintf("match %s: %d placements for %d participants", b.id, len(placements), n))
	}
	seenPlace := make(map[int]bool, n)
	seenID := make(map[string]bool, n)
	for _, pl := range placements {
		if pl.Place < 1 || pl.Place > n || seenPlace[pl.Place] {
			b.logger.Error("placement places are not a permutation",
				slog.String("match_id", b.id), slog.Int("place", pl.Place))
			panic(fmt.Sprintf("match %s: invalid place %d", b.id, pl.Place))
		}
		if _, ok := b.states[pl.ParticipantID]; !ok || seenID[pl.ParticipantID] {
			b.logger.Error("placement participant invalid",
				slog.String("match_id", b.id), slog.String("participant_id", pl.ParticipantID))
			panic(fmt.Sprintf("match %s: invalid placement participant %s", b.id, pl.ParticipantID))
		}
		seenPlace[pl.Place] = true
		seenID[pl.ParticipantID] = true
	}
}

func (b *baseMatch) appendRoundLocked(r models.RoundResult) {
	b.rounds = append(b.rounds, r)
}

// emitLocked queues an event for ordered delivery. Called with mu held;
// the queue is unbounded so emission never blocks state transitions.
func (b *baseMatch) emitLocked(t EventType, payload any) {
	ev := Event{Type: t, MatchID: b.id, At: time.Now(), Payload: payload}
	b.evMu.Lock()
	if b.evClosed {
		b.evMu.Unlock()
		b.logger.Warn("event emitted after match teardown",
			slog.String("match_id", b.id), slog.String("type", string(t)))
		return
	}
	b.evQueue = append(b.evQueue, ev)
	b.evMu.Unlock()
	b.evCond.Signal()
}

func (b *baseMatch) closeEvents() {
	b.evMu.Lock()
	b.evClosed = true
	b.evMu.Unlock()
	b.evCond.Signal()
}

// dispatch drains the event queue in order and delivers to the current
// listener set. It exits once the match finished and the queue is empty.
func (b *baseMatch) dispatch() {
	for {
		b.evMu.Lock()
		for len(b.evQueue) == 0 && !b.evClosed {
			b.evCond.Wait()
		}
		if len(b.evQueue) == 0 && b.evClosed {
			b.evMu.Unlock()
			return
		}
		ev := b.evQueue[0]
		b.evQueue = b.evQueue[1:]
		b.evMu.Unlock()

		b.lisMu.Lock()
		fns := make([]func(Event), 0, len(b.listeners))
		for _, fn := range b.listeners {
			fns = append(fns, fn)
		}
		b.lisMu.Unlock()

		for _, fn := range fns {
			b.deliver(fn, ev)
		}
	}
}

func (b *baseMatch) deliver(fn func(Event), ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("match event listener panicked",
				slog.String("match_id", b.id),
				slog.String("type", string(ev.Type)),
				slog.Any("panic", r))
		}
	}()
	fn(ev)
}

// chatSnapshotLocked is used by the games' PublicState implementations.
func (b *baseMatch) chatSnapshotLocked() []models.ChatMessage {
	out := make([]models.ChatMessage, len(b.chatLog))
	copy(out, b.chatLog)
	return out
}
