package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/agentclash/arena/models"
	"github.com/lib/pq"
)

var (
	ErrResultNotFound           = errors.New("match result not found")
	ErrResultConflict           = errors.New("match result already recorded")
	ErrResultParticipantInvalid = errors.New("match result references unknown participant")
)

type ResultRepository interface {
	Create(ctx context.Context, exec SQLExecutor, result *models.MatchResult) error
	GetByMatchID(ctx context.Context, matchID string) (*models.MatchResult, error)
	ListRecent(ctx context.Context, limit int) ([]models.MatchResult, error)
}

type postgresResultRepository struct {
	db *sql.DB
}

func NewPostgresResultRepository(db *sql.DB) ResultRepository {
	return &postgresResultRepository{db: db}
}

func (r *postgresResultRepository) Create(ctx context.Context, exec SQLExecutor, result *models.MatchResult) error {
	if exec == nil {
		exec = r.db
	}

	query := `
		INSERT INTO match_results (match_id, game_type_id, prize_pool, winner_id, started_at, ended_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := exec.ExecContext(ctx, query,
		result.MatchID,
		result.GameTypeID,
		result.PrizePool,
		result.WinnerID,
		result.StartedAt,
		result.EndedAt,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok {
			switch pqErr.Code {
			case "23505": // unique_violation
				return ErrResultConflict
			case "23503": // foreign_key_violation
				return ErrResultParticipantInvalid
			}
		}
		return fmt.Errorf("failed to insert match result: %w", err)
	}

	placementQuery := `
		INSERT INTO match_placements (match_id, participant_id, place, points)
		VALUES ($1, $2, $3, $4)`

	for _, p := range result.Placements {
		if _, err := exec.ExecContext(ctx, placementQuery,
			result.MatchID,
			p.ParticipantID,
			p.Place,
			p.Points,
		); err != nil {
			if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23503" {
				return fmt.Errorf("%w: %s", ErrResultParticipantInvalid, p.ParticipantID)
			}
			return fmt.Errorf("failed to insert placement for %s: %w", p.ParticipantID, err)
		}
	}
	return nil
}

func (r *postgresResultRepository) GetByMatchID(ctx context.Context, matchID string) (*models.MatchResult, error) {
	query := `
		SELECT match_id, game_type_id, prize_pool, winner_id, started_at, ended_at
		FROM match_results
		WHERE match_id = $1`

	var result models.MatchResult
	err := r.db.QueryRowContext(ctx, query, matchID).Scan(
		&result.MatchID,
		&result.GameTypeID,
		&result.PrizePool,
		&result.WinnerID,
		&result.StartedAt,
		&result.EndedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrResultNotFound
		}
		return nil, fmt.Errorf("failed to scan match result: %w", err)
	}

	placements, err := r.placementsFor(ctx, matchID)
	if err != nil {
		return nil, err
	}
	result.Placements = placements
	return &result, nil
}

func (r *postgresResultRepository) ListRecent(ctx context.Context, limit int) ([]models.MatchResult, error) {
	query := `
		SELECT match_id, game_type_id, prize_pool, winner_id, started_at, ended_at
		FROM match_results
		ORDER BY ended_at DESC
		LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent results: %w", err)
	}
	defer rows.Close()

	var out []models.MatchResult
	for rows.Next() {
		var result models.MatchResult
		var endedAt time.Time
		if err := rows.Scan(
			&result.MatchID,
			&result.GameTypeID,
			&result.PrizePool,
			&result.WinnerID,
			&result.StartedAt,
			&endedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan result row: %w", err)
		}
		result.EndedAt = endedAt
		out = append(out, result)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("result rows iteration error: %w", err)
	}

	for i := range out {
		placements, err := r.placementsFor(ctx, out[i].MatchID)
		if err != nil {
			return nil, err
		}
		out[i].Placements = placements
	}
	return out, nil
}

func (r *postgresResultRepository) placementsFor(ctx context.Context, matchID string) ([]models.Placement, error) {
	query := `
		SELECT participant_id, place, points
		FROM match_placements
		WHERE match_id = $1
		ORDER BY place ASC`

	rows, err := r.db.QueryContext(ctx, query, matchID)
	if err != nil {
		return nil, fmt.Errorf("failed to query placements: %w", err)
	}
	defer rows.Close()

	var out []models.Placement
	for rows.Next() {
		var p models.Placement
		if err := rows.Scan(&p.ParticipantID, &p.Place, &p.Points); err != nil {
			return nil, fmt.Errorf("failed to scan placement: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("placement rows iteration error: %w", err)
	}
	return out, nil
}
