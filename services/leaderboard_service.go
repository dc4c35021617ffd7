package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/agentclash/arena/cache"
	"github.com/agentclash/arena/models"
	"github.com/agentclash/arena/repositories"
)

const defaultLeaderboardLimit = 50

type LeaderboardService interface {
	Leaderboard(ctx context.Context, limit int) ([]models.Participant, error)
}

type leaderboardService struct {
	participantRepo repositories.ParticipantRepository
	cache           cache.LeaderboardCache
	logger          *slog.Logger
}

func NewLeaderboardService(
	participantRepo repositories.ParticipantRepository,
	leaderboardCache cache.LeaderboardCache,
	logger *slog.Logger,
) LeaderboardService {
	if logger == nil {
		logger = slog.Default()
	}
	return &leaderboardService{
		participantRepo: participantRepo,
		cache:           leaderboardCache,
		logger:          logger,
	}
}

// Leaderboard serves ranked standings, cache first. Cache failures degrade
// to a direct Postgres read rather than failing the request.
func (s *leaderboardService) Leaderboard(ctx context.Context, limit int) ([]models.Participant, error) {
	if limit <= 0 || limit > 200 {
		limit = defaultLeaderboardLimit
	}

	if s.cache != nil {
		cached, hit, err := s.cache.Get(ctx, limit)
		if err != nil {
			s.logger.WarnContext(ctx, "leaderboard cache read failed", slog.Any("error", err))
		} else if hit {
			return cached, nil
		}
	}

	participants, err := s.participantRepo.ListRanked(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load leaderboard: %w", err)
	}
	if participants == nil {
		participants = []models.Participant{}
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, limit, participants); err != nil {
			s.logger.WarnContext(ctx, "leaderboard cache write failed", slog.Any("error", err))
		}
	}
	return participants, nil
}
