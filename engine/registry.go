package engine

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/agentclash/arena/models"
	"github.com/google/uuid"
)

// GameDescriptor is supplied by each game rule-set at registration.
type GameDescriptor struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	MinPlayers   int    `json:"min_players"`
	MaxPlayers   int    `json:"max_players"`
	HasPrizePool bool   `json:"has_prize_pool"`

	Create func(cfg MatchConfig) (Match, error) `json:"-"`
}

// MatchConfig is everything a game factory needs to construct a
// not-yet-started match.
type MatchConfig struct {
	MatchID      string
	Participants []models.Participant
	PrizePool    float64
	Logger       *slog.Logger
}

// Registry is the catalog of available game rule-sets.
type Registry struct {
	mu     sync.RWMutex
	games  map[string]GameDescriptor
	logger *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		games:  make(map[string]GameDescriptor),
		logger: logger,
	}
}

func (r *Registry) Register(desc GameDescriptor) error {
	if desc.ID == "" || desc.Create == nil {
		return fmt.Errorf("game descriptor requires an id and a factory")
	}
	if desc.MinPlayers < 1 || desc.MaxPlayers < desc.MinPlayers {
		return fmt.Errorf("game %q: invalid player bounds [%d, %d]", desc.ID, desc.MinPlayers, desc.MaxPlayers)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.games[desc.ID]; exists {
		return fmt.Errorf("%w: %s", ErrGameTypeRegistered, desc.ID)
	}
	r.games[desc.ID] = desc
	r.logger.Info("game type registered",
		slog.String("game_type", desc.ID),
		slog.Int("min_players", desc.MinPlayers),
		slog.Int("max_players", desc.MaxPlayers))
	return nil
}

func (r *Registry) Get(gameTypeID string) (GameDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	desc, ok := r.games[gameTypeID]
	return desc, ok
}

// List returns the registered descriptors in no particular order.
func (r *Registry) List() []GameDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]GameDescriptor, 0, len(r.games))
	for _, desc := range r.games {
		out = append(out, desc)
	}
	return out
}

// CreateMatch validates the participant count against the descriptor and
// delegates to its factory. The returned match is fully constructed but not
// started; there are no side effects beyond construction.
func (r *Registry) CreateMatch(gameTypeID string, participants []models.Participant, prizePool float64) (Match, error) {
	r.mu.RLock()
	desc, ok := r.games[gameTypeID]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownGameType, gameTypeID)
	}
	if len(participants) < desc.MinPlayers {
		return nil, fmt.Errorf("%w: %s needs at least %d, got %d",
			ErrTooFewParticipants, gameTypeID, desc.MinPlayers, len(participants))
	}
	if len(participants) > desc.MaxPlayers {
		return nil, fmt.Errorf("%w: %s allows at most %d, got %d",
			ErrTooManyParticipants, gameTypeID, desc.MaxPlayers, len(participants))
	}
	if !desc.HasPrizePool {
		prizePool = 0
	}

	return desc.Create(MatchConfig{
		MatchID:      uuid.NewString(),
		Participants: participants,
		PrizePool:    prizePool,
		Logger:       r.logger,
	})
}
