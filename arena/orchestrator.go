// Package arena bridges queue readiness to match lifecycle: it builds
// matches through the registry, tracks every live match, relays match
// events outward and releases participants when a match ends.
package arena

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/agentclash/arena/engine"
	"github.com/agentclash/arena/matchmaking"
	"github.com/agentclash/arena/models"
)

var (
	ErrAlreadyQueued  = errors.New("participant is already in a queue")
	ErrAlreadyInMatch = errors.New("participant is already in a live match")
	ErrNotInMatch     = errors.New("participant is not in a live match")
	ErrNotInQueue     = errors.New("participant is not in a queue")
	ErrNotConnected   = errors.New("participant is not connected")
	ErrMatchNotFound  = errors.New("no live match with that id")
)

// EventSink receives relayed match events and arena-wide announcements.
// Transport and persistence sit behind this interface.
type EventSink interface {
	MatchEvent(ev engine.Event)
	Announcement(kind string, data any)
}

// ResultRecorder persists a finished match's result.
type ResultRecorder interface {
	RecordResult(ctx context.Context, result models.MatchResult) error
}

// ParticipantSource supplies read snapshots of participants for the
// duration of a match.
type ParticipantSource interface {
	GetSnapshots(ctx context.Context, ids []string) ([]models.Participant, error)
}

// ConnectivityChecker is the external "connected to the transport layer"
// precondition for queue admission. A nil checker admits everyone.
type ConnectivityChecker interface {
	IsConnected(participantID string) bool
}

type locationState string

const (
	locQueued  locationState = "queued"
	locInMatch locationState = "in_match"
)

// location is one entry of the participant-location index. Absence from
// the index means idle. The index is the single source of truth for the
// "one participant, one queue-or-match" invariant; it is mutated only by
// the join/leave/start/finish entry points, never inferred by scanning.
type location struct {
	state      locationState
	gameTypeID string
	matchID    string
}

type Config struct {
	// PreMatchDelay is the pause between announcing a built match and
	// starting it, giving the transport layer time to open rooms.
	PreMatchDelay time.Duration
	// RecordTimeout bounds result persistence on match finish.
	RecordTimeout time.Duration
}

func (c *Config) normalize() {
	if c.PreMatchDelay <= 0 {
		c.PreMatchDelay = 3 * time.Second
	}
	if c.RecordTimeout <= 0 {
		c.RecordTimeout = 10 * time.Second
	}
}

type Orchestrator struct {
	registry     *engine.Registry
	queues       *matchmaking.Manager
	participants ParticipantSource
	sink         EventSink
	recorder     ResultRecorder
	connectivity ConnectivityChecker
	cfg          Config
	logger       *slog.Logger

	mu        sync.Mutex
	locations map[string]location
	matches   map[string]engine.Match
	unsubs    map[string]func()
}

func NewOrchestrator(
	registry *engine.Registry,
	queues *matchmaking.Manager,
	participants ParticipantSource,
	sink EventSink,
	recorder ResultRecorder,
	connectivity ConnectivityChecker,
	cfg Config,
	logger *slog.Logger,
) *Orchestrator {
	cfg.normalize()
	if logger == nil {
		logger = slog.Default()
	}
	o := &Orchestrator{
		registry:     registry,
		queues:       queues,
		participants: participants,
		sink:         sink,
		recorder:     recorder,
		connectivity: connectivity,
		cfg:          cfg,
		logger:       logger,
		locations:    make(map[string]location),
		matches:      make(map[string]engine.Match),
		unsubs:       make(map[string]func()),
	}
	queues.SetReadyFunc(o.handleBatch)
	return o
}

// JoinQueue admits a participant to a game type's queue, enforcing the
// one-queue-or-match invariant and the transport connectivity precondition.
func (o *Orchestrator) JoinQueue(gameTypeID, participantID string) error {
	if o.connectivity != nil && !o.connectivity.IsConnected(participantID) {
		return fmt.Errorf("%w: %s", ErrNotConnected, participantID)
	}

	o.mu.Lock()
	if loc, ok := o.locations[participantID]; ok {
		o.mu.Unlock()
		if loc.state == locInMatch {
			return fmt.Errorf("%w: match %s", ErrAlreadyInMatch, loc.matchID)
		}
		return fmt.Errorf("%w: %s", ErrAlreadyQueued, loc.gameTypeID)
	}
	o.locations[participantID] = location{state: locQueued, gameTypeID: gameTypeID}
	o.mu.Unlock()

	// The threshold batch, if this join completes one, fires synchronously
	// inside Join; the location index must not be locked here.
	if err := o.queues.Join(gameTypeID, participantID); err != nil {
		o.mu.Lock()
		if loc, ok := o.locations[participantID]; ok && loc.state == locQueued {
			delete(o.locations, participantID)
		}
		o.mu.Unlock()
		return err
	}
	return nil
}

// LeaveQueue removes a participant from a queue. Leaving while not queued
// is a no-op; leaving while in a live match is rejected.
func (o *Orchestrator) LeaveQueue(gameTypeID, participantID string) error {
	o.mu.Lock()
	loc, ok := o.locations[participantID]
	if ok && loc.state == locInMatch {
		o.mu.Unlock()
		return fmt.Errorf("%w: match %s", ErrAlreadyInMatch, loc.matchID)
	}
	if ok {
		delete(o.locations, participantID)
	}
	o.mu.Unlock()

	o.queues.Leave(gameTypeID, participantID)
	return nil
}

// HandleDisconnect drops a disconnected participant from any queue. A
// participant already in a match stays: the match's phase timers carry it
// to a resolution without them.
func (o *Orchestrator) HandleDisconnect(participantID string) {
	o.mu.Lock()
	loc, ok := o.locations[participantID]
	if !ok || loc.state != locQueued {
		o.mu.Unlock()
		return
	}
	delete(o.locations, participantID)
	o.mu.Unlock()

	o.queues.Leave(loc.gameTypeID, participantID)
}

// SubmitAction routes an inbound participant action to its live match.
// matchID may be empty; when set it must agree with where the participant
// actually is.
func (o *Orchestrator) SubmitAction(matchID, participantID string, action engine.Action) error {
	o.mu.Lock()
	loc, ok := o.locations[participantID]
	if !ok || loc.state != locInMatch {
		o.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotInMatch, participantID)
	}
	if matchID != "" && matchID != loc.matchID {
		o.mu.Unlock()
		return fmt.Errorf("%w: %s is in match %s", ErrNotInMatch, participantID, loc.matchID)
	}
	match, ok := o.matches[loc.matchID]
	o.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrMatchNotFound, loc.matchID)
	}
	return match.HandleAction(participantID, action)
}

func (o *Orchestrator) QueueStatus(gameTypeID string) (matchmaking.QueueStatus, error) {
	return o.queues.Status(gameTypeID)
}

func (o *Orchestrator) QueueStatuses() []matchmaking.QueueStatus {
	return o.queues.Statuses()
}

func (o *Orchestrator) GetMatch(matchID string) (engine.Match, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	m, ok := o.matches[matchID]
	return m, ok
}

func (o *Orchestrator) LiveMatches() []engine.Match {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]engine.Match, 0, len(o.matches))
	for _, m := range o.matches {
		out = append(out, m)
	}
	return out
}

// CancelMatch force-ends a live match. Teardown (result recording, release,
// removal from the live table) happens through the normal finish relay.
func (o *Orchestrator) CancelMatch(matchID string) error {
	o.mu.Lock()
	match, ok := o.matches[matchID]
	o.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrMatchNotFound, matchID)
	}
	match.Cancel()
	return nil
}

// handleBatch turns a queue-ready batch into a live match. Participants in
// the batch have already been atomically removed from their queue.
func (o *Orchestrator) handleBatch(batch matchmaking.Batch) {
	ctx, cancel := context.WithTimeout(context.Background(), o.cfg.RecordTimeout)
	defer cancel()

	snapshots, err := o.participants.GetSnapshots(ctx, batch.ParticipantIDs)
	if err != nil {
		o.logger.Error("failed to load participant snapshots, releasing batch",
			slog.String("game_type", batch.GameTypeID), slog.Any("error", err))
		o.release(batch.ParticipantIDs)
		return
	}

	desc, _ := o.registry.Get(batch.GameTypeID)
	match, err := o.registry.CreateMatch(batch.GameTypeID, snapshots, o.prizePoolFor(desc, len(snapshots)))
	if err != nil {
		o.logger.Error("failed to build match from ready batch",
			slog.String("game_type", batch.GameTypeID), slog.Any("error", err))
		o.release(batch.ParticipantIDs)
		return
	}

	o.mu.Lock()
	for _, id := range batch.ParticipantIDs {
		if loc, ok := o.locations[id]; ok && loc.state == locInMatch {
			// A participant active in two matches at once is a bug in the
			// orchestration core, not a caller mistake.
			o.mu.Unlock()
			o.logger.Error("participant already in a match while joining another",
				slog.String("participant_id", id),
				slog.String("match_id", loc.matchID),
				slog.String("new_match_id", match.ID()))
			panic(fmt.Sprintf("participant %s in two matches (%s, %s)", id, loc.matchID, match.ID()))
		}
		o.locations[id] = location{state: locInMatch, gameTypeID: batch.GameTypeID, matchID: match.ID()}
	}
	o.matches[match.ID()] = match
	o.unsubs[match.ID()] = match.Subscribe(func(ev engine.Event) { o.relay(match, ev) })
	o.mu.Unlock()

	o.logger.Info("match created",
		slog.String("match_id", match.ID()),
		slog.String("game_type", batch.GameTypeID),
		slog.Int("participants", len(batch.ParticipantIDs)))
	o.sink.Announcement("match_created", map[string]any{
		"match_id":     match.ID(),
		"game_type_id": batch.GameTypeID,
		"participants": snapshots,
		"starts_in_ms": o.cfg.PreMatchDelay.Milliseconds(),
	})

	// pre-match delay lets the transport layer announce the room
	time.AfterFunc(o.cfg.PreMatchDelay, func() {
		if err := match.Start(); err != nil {
			o.logger.Error("failed to start match",
				slog.String("match_id", match.ID()), slog.Any("error", err))
		}
	})
}

// prizePoolFor derives a match's prize pool from the descriptor. The pool
// is opaque to the engine beyond being carried into the finish event.
func (o *Orchestrator) prizePoolFor(desc engine.GameDescriptor, participants int) float64 {
	if !desc.HasPrizePool {
		return 0
	}
	return float64(participants * 100)
}

// relay forwards one match event to the sink and finalizes the match when
// the finish event arrives. It runs on the match's dispatch goroutine, so
// events reach the sink in transition order.
func (o *Orchestrator) relay(match engine.Match, ev engine.Event) {
	o.sink.MatchEvent(ev)

	if ev.Type != engine.EventMatchFinished {
		return
	}
	payload, ok := ev.Payload.(engine.MatchFinishedPayload)
	if !ok {
		o.logger.Error("match_finished event carried unexpected payload",
			slog.String("match_id", match.ID()))
		return
	}
	o.finalize(match, payload)
}

func (o *Orchestrator) finalize(match engine.Match, payload engine.MatchFinishedPayload) {
	result := models.MatchResult{
		MatchID:    match.ID(),
		GameTypeID: match.GameTypeID(),
		PrizePool:  payload.PrizePool,
		WinnerID:   payload.WinnerID,
		Placements: payload.Placements,
		StartedAt:  payload.StartedAt,
		EndedAt:    payload.EndedAt,
	}

	ctx, cancel := context.WithTimeout(context.Background(), o.cfg.RecordTimeout)
	defer cancel()
	if err := o.recorder.RecordResult(ctx, result); err != nil {
		o.logger.Error("failed to record match result",
			slog.String("match_id", match.ID()), slog.Any("error", err))
	}

	ids := make([]string, 0, len(payload.Placements))
	for _, pl := range payload.Placements {
		ids = append(ids, pl.ParticipantID)
	}

	o.mu.Lock()
	if unsub, ok := o.unsubs[match.ID()]; ok {
		defer unsub()
		delete(o.unsubs, match.ID())
	}
	delete(o.matches, match.ID())
	for _, id := range ids {
		if loc, ok := o.locations[id]; ok && loc.state == locInMatch && loc.matchID == match.ID() {
			delete(o.locations, id)
		}
	}
	o.mu.Unlock()

	o.logger.Info("match finished",
		slog.String("match_id", match.ID()),
		slog.String("game_type", match.GameTypeID()),
		slog.Int("participants", len(ids)))
}

// release returns a batch to idle after a failed match build.
func (o *Orchestrator) release(ids []string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, id := range ids {
		if loc, ok := o.locations[id]; ok && loc.state == locQueued {
			delete(o.locations, id)
		}
	}
}

// Location reports where a participant currently is: "idle", "queued" or
// "in_match".
func (o *Orchestrator) Location(participantID string) (state string, gameTypeID string, matchID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	loc, ok := o.locations[participantID]
	if !ok {
		return "idle", "", ""
	}
	return string(loc.state), loc.gameTypeID, loc.matchID
}
