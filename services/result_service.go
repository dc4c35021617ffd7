package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/agentclash/arena/cache"
	"github.com/agentclash/arena/models"
	"github.com/agentclash/arena/repositories"
	"golang.org/x/sync/errgroup"
)

// MatchSummary is a finished match's result joined with the current
// identities of everyone who played it.
type MatchSummary struct {
	Result       models.MatchResult   `json:"result"`
	Participants []models.Participant `json:"participants"`
}

type ResultService interface {
	RecordResult(ctx context.Context, result models.MatchResult) error
	GetMatchSummary(ctx context.Context, matchID string) (*MatchSummary, error)
	ListRecent(ctx context.Context, limit int) ([]models.MatchResult, error)
}

type resultService struct {
	db              *sql.DB
	resultRepo      repositories.ResultRepository
	participantRepo repositories.ParticipantRepository
	cache           cache.LeaderboardCache
	logger          *slog.Logger
}

func NewResultService(
	db *sql.DB,
	resultRepo repositories.ResultRepository,
	participantRepo repositories.ParticipantRepository,
	leaderboardCache cache.LeaderboardCache,
	logger *slog.Logger,
) ResultService {
	if logger == nil {
		logger = slog.Default()
	}
	return &resultService{
		db:              db,
		resultRepo:      resultRepo,
		participantRepo: participantRepo,
		cache:           leaderboardCache,
		logger:          logger,
	}
}

// RecordResult persists a finished match and folds its points into every
// participant's cumulative stats. The result row, placement rows and stat
// updates commit or roll back together.
func (s *resultService) RecordResult(ctx context.Context, result models.MatchResult) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin result transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.resultRepo.Create(ctx, tx, &result); err != nil {
		if errors.Is(err, repositories.ErrResultConflict) {
			// a retry after a crash between commit and ack; the result is
			// already on disk
			s.logger.WarnContext(ctx, "match result already recorded",
				slog.String("match_id", result.MatchID))
			return nil
		}
		return fmt.Errorf("failed to store result for match %s: %w", result.MatchID, err)
	}

	for _, p := range result.Placements {
		won := result.WinnerID != nil && *result.WinnerID == p.ParticipantID
		if err := s.participantRepo.AddMatchOutcome(ctx, tx, p.ParticipantID, p.Points, won); err != nil {
			return fmt.Errorf("failed to update stats for %s: %w", p.ParticipantID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit result for match %s: %w", result.MatchID, err)
	}

	if s.cache != nil {
		if err := s.cache.Invalidate(ctx); err != nil {
			s.logger.WarnContext(ctx, "leaderboard cache invalidation failed",
				slog.String("match_id", result.MatchID), slog.Any("error", err))
		}
	}

	s.logger.InfoContext(ctx, "match result recorded",
		slog.String("match_id", result.MatchID),
		slog.String("game_type", result.GameTypeID),
		slog.Int("placements", len(result.Placements)))
	return nil
}

func (s *resultService) GetMatchSummary(ctx context.Context, matchID string) (*MatchSummary, error) {
	var summary MatchSummary

	result, err := s.resultRepo.GetByMatchID(ctx, matchID)
	if err != nil {
		if errors.Is(err, repositories.ErrResultNotFound) {
			return nil, ErrResultNotFound
		}
		return nil, fmt.Errorf("failed to load result for match %s: %w", matchID, err)
	}
	summary.Result = *result

	ids := make([]string, len(result.Placements))
	for i, p := range result.Placements {
		ids[i] = p.ParticipantID
	}

	// placements are ordered by place; keep the join aligned by index
	summary.Participants = make([]models.Participant, len(ids))
	g, gCtx := errgroup.WithContext(ctx)
	for i := range ids {
		i := i
		g.Go(func() error {
			p, err := s.participantRepo.GetByID(gCtx, ids[i])
			if err != nil {
				return fmt.Errorf("failed to load participant %s: %w", ids[i], err)
			}
			summary.Participants[i] = *p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &summary, nil
}

func (s *resultService) ListRecent(ctx context.Context, limit int) ([]models.MatchResult, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	results, err := s.resultRepo.ListRecent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent results: %w", err)
	}
	if results == nil {
		results = []models.MatchResult{}
	}
	return results, nil
}
