// Package matchmaking holds the per-game-type FIFO queues that group
// waiting participants into matches.
package matchmaking

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

var (
	ErrAlreadyQueued    = errors.New("participant is already queued")
	ErrUnknownQueue     = errors.New("no queue configured for game type")
	ErrInvalidThreshold = errors.New("admission threshold must be at least 1")
)

type QueueEntry struct {
	ParticipantID string    `json:"participant_id"`
	JoinedAt      time.Time `json:"joined_at"`
}

// QueueStatus is the read-only view exposed to the transport layer.
type QueueStatus struct {
	GameTypeID         string `json:"game_type_id"`
	WaitingCount       int    `json:"waiting_count"`
	AdmissionThreshold int    `json:"admission_threshold"`
}

// Batch is one "match ready" notification: exactly threshold participants,
// oldest first, removed from the queue in the same indivisible step that
// produced the notification. No two batches can share a participant.
type Batch struct {
	GameTypeID     string
	ParticipantIDs []string
}

// ReadyFunc receives batches. It is called outside the manager lock, after
// the batch participants have already been removed from the queue.
type ReadyFunc func(Batch)

// Manager owns one FIFO queue per configured game type. All queue access is
// serialized through a single mutex so two concurrent joins can never both
// observe a not-yet-full queue and both trigger a notification, and the
// same participant can never land in two batches.
type Manager struct {
	mu         sync.Mutex
	queues     map[string][]QueueEntry
	thresholds map[string]int
	queuedIn   map[string]string // participantID -> gameTypeID
	onReady    ReadyFunc
	logger     *slog.Logger
}

func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		queues:     make(map[string][]QueueEntry),
		thresholds: make(map[string]int),
		queuedIn:   make(map[string]string),
		logger:     logger,
	}
}

// Configure registers a queue for a game type with its admission threshold.
func (m *Manager) Configure(gameTypeID string, threshold int) error {
	if threshold < 1 {
		return fmt.Errorf("%w: %d for %s", ErrInvalidThreshold, threshold, gameTypeID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.thresholds[gameTypeID] = threshold
	if _, ok := m.queues[gameTypeID]; !ok {
		m.queues[gameTypeID] = nil
	}
	return nil
}

// SetReadyFunc installs the batch consumer. Must be called before joins
// start arriving.
func (m *Manager) SetReadyFunc(fn ReadyFunc) {
	m.mu.Lock()
	m.onReady = fn
	m.mu.Unlock()
}

// Join appends a participant to a queue. The in-match and connectivity
// preconditions are the caller's (the orchestrator's); the manager only
// rejects participants it already has queued somewhere. When the join
// fills the queue to its threshold, the batch is cut and handed to the
// ready func.
func (m *Manager) Join(gameTypeID, participantID string) error {
	var batch *Batch
	var fn ReadyFunc

	m.mu.Lock()
	threshold, ok := m.thresholds[gameTypeID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownQueue, gameTypeID)
	}
	if other, queued := m.queuedIn[participantID]; queued {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s in %s", ErrAlreadyQueued, participantID, other)
	}

	m.queues[gameTypeID] = append(m.queues[gameTypeID], QueueEntry{
		ParticipantID: participantID,
		JoinedAt:      time.Now(),
	})
	m.queuedIn[participantID] = gameTypeID

	if len(m.queues[gameTypeID]) >= threshold {
		ids := make([]string, threshold)
		for i, e := range m.queues[gameTypeID][:threshold] {
			ids[i] = e.ParticipantID
			delete(m.queuedIn, e.ParticipantID)
		}
		m.queues[gameTypeID] = append([]QueueEntry(nil), m.queues[gameTypeID][threshold:]...)
		batch = &Batch{GameTypeID: gameTypeID, ParticipantIDs: ids}
		fn = m.onReady
	}
	m.mu.Unlock()

	if batch != nil {
		m.logger.Info("queue threshold reached",
			slog.String("game_type", gameTypeID),
			slog.Int("batch_size", len(batch.ParticipantIDs)))
		if fn != nil {
			fn(*batch)
		}
	}
	return nil
}

// Leave removes a participant from a queue. Removing an absent participant
// is a no-op: leave is idempotent by contract.
func (m *Manager) Leave(gameTypeID, participantID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	q := m.queues[gameTypeID]
	for i, e := range q {
		if e.ParticipantID == participantID {
			m.queues[gameTypeID] = append(q[:i:i], q[i+1:]...)
			delete(m.queuedIn, participantID)
			return
		}
	}
}

// QueuedGameType reports which queue holds the participant, if any.
func (m *Manager) QueuedGameType(participantID string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	gt, ok := m.queuedIn[participantID]
	return gt, ok
}

func (m *Manager) Status(gameTypeID string) (QueueStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	threshold, ok := m.thresholds[gameTypeID]
	if !ok {
		return QueueStatus{}, fmt.Errorf("%w: %s", ErrUnknownQueue, gameTypeID)
	}
	return QueueStatus{
		GameTypeID:         gameTypeID,
		WaitingCount:       len(m.queues[gameTypeID]),
		AdmissionThreshold: threshold,
	}, nil
}

// Statuses returns the status of every configured queue.
func (m *Manager) Statuses() []QueueStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]QueueStatus, 0, len(m.thresholds))
	for gt, threshold := range m.thresholds {
		out = append(out, QueueStatus{
			GameTypeID:         gt,
			WaitingCount:       len(m.queues[gt]),
			AdmissionThreshold: threshold,
		})
	}
	return out
}
