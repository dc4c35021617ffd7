package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/agentclash/arena/models"
	"github.com/lib/pq"
)

var (
	ErrParticipantNotFound     = errors.New("participant not found")
	ErrParticipantNameConflict = errors.New("participant display name conflict")
)

type ParticipantRepository interface {
	Create(ctx context.Context, participant *models.Participant) error
	GetByID(ctx context.Context, id string) (*models.Participant, error)
	GetByIDs(ctx context.Context, ids []string) ([]models.Participant, error)
	ListRanked(ctx context.Context, limit int) ([]models.Participant, error)
	UpdateAvatarTag(ctx context.Context, id string, tag string) error
	AddMatchOutcome(ctx context.Context, exec SQLExecutor, id string, points int, won bool) error
}

type postgresParticipantRepository struct {
	db *sql.DB
}

func NewPostgresParticipantRepository(db *sql.DB) ParticipantRepository {
	return &postgresParticipantRepository{db: db}
}

func (r *postgresParticipantRepository) Create(ctx context.Context, participant *models.Participant) error {
	query := `
		INSERT INTO participants (id, display_name, avatar_tag)
		VALUES ($1, $2, $3)
		RETURNING created_at`

	err := r.db.QueryRowContext(ctx, query,
		participant.ID,
		participant.DisplayName,
		participant.AvatarTag,
	).Scan(&participant.CreatedAt)

	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			if pqErr.Constraint == "participants_display_name_key" {
				return ErrParticipantNameConflict
			}
		}
		return fmt.Errorf("failed to create participant: %w", err)
	}
	return nil
}

func (r *postgresParticipantRepository) GetByID(ctx context.Context, id string) (*models.Participant, error) {
	query := `
		SELECT id, display_name, avatar_tag, cumulative_score, matches_played, matches_won, created_at
		FROM participants
		WHERE id = $1`

	var p models.Participant
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&p.ID,
		&p.DisplayName,
		&p.AvatarTag,
		&p.CumulativeScore,
		&p.MatchesPlayed,
		&p.MatchesWon,
		&p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrParticipantNotFound
		}
		return nil, fmt.Errorf("failed to scan participant: %w", err)
	}
	return &p, nil
}

// GetByIDs returns the participants in the same order as ids. A missing id
// makes the whole call fail with ErrParticipantNotFound: a match must never
// be assembled around a participant that does not exist.
func (r *postgresParticipantRepository) GetByIDs(ctx context.Context, ids []string) ([]models.Participant, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}

	query := fmt.Sprintf(`
		SELECT id, display_name, avatar_tag, cumulative_score, matches_played, matches_won, created_at
		FROM participants
		WHERE id IN (%s)`, strings.Join(placeholders, ", "))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query participants: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]models.Participant, len(ids))
	for rows.Next() {
		var p models.Participant
		if err := rows.Scan(
			&p.ID,
			&p.DisplayName,
			&p.AvatarTag,
			&p.CumulativeScore,
			&p.MatchesPlayed,
			&p.MatchesWon,
			&p.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan participant row: %w", err)
		}
		byID[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("participant rows iteration error: %w", err)
	}

	out := make([]models.Participant, 0, len(ids))
	for _, id := range ids {
		p, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrParticipantNotFound, id)
		}
		out = append(out, p)
	}
	return out, nil
}

func (r *postgresParticipantRepository) ListRanked(ctx context.Context, limit int) ([]models.Participant, error) {
	query := `
		SELECT id, display_name, avatar_tag, cumulative_score, matches_played, matches_won, created_at
		FROM participants
		ORDER BY cumulative_score DESC, matches_won DESC, created_at ASC
		LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query ranked participants: %w", err)
	}
	defer rows.Close()

	var out []models.Participant
	for rows.Next() {
		var p models.Participant
		if err := rows.Scan(
			&p.ID,
			&p.DisplayName,
			&p.AvatarTag,
			&p.CumulativeScore,
			&p.MatchesPlayed,
			&p.MatchesWon,
			&p.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan ranked participant: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ranked participant rows iteration error: %w", err)
	}
	return out, nil
}

func (r *postgresParticipantRepository) UpdateAvatarTag(ctx context.Context, id string, tag string) error {
	query := `UPDATE participants SET avatar_tag = $1 WHERE id = $2`

	result, err := r.db.ExecContext(ctx, query, tag, id)
	if err != nil {
		return fmt.Errorf("failed to update avatar tag: %w", err)
	}
	return checkAffectedRows(result, ErrParticipantNotFound)
}

func (r *postgresParticipantRepository) AddMatchOutcome(ctx context.Context, exec SQLExecutor, id string, points int, won bool) error {
	if exec == nil {
		exec = r.db
	}
	query := `
		UPDATE participants SET
			cumulative_score = cumulative_score + $1,
			matches_played = matches_played + 1,
			matches_won = matches_won + CASE WHEN $2 THEN 1 ELSE 0 END
		WHERE id = $3`

	result, err := exec.ExecContext(ctx, query, points, won, id)
	if err != nil {
		return fmt.Errorf("failed to record match outcome: %w", err)
	}
	return checkAffectedRows(result, ErrParticipantNotFound)
}
