package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rl-arena/rl-arena-matchmaker/internal/matchmaking"
	"github.com/rl-arena/rl-arena-matchmaker/internal/models"
	"github.com/rl-arena/rl-arena-matchmaker/pkg/database"
)

type MatchRepository struct {
	db *database.DB
}

func NewMatchRepository(db *database.DB) *MatchRepository {
	return &MatchRepository{db: db}
}

// CreateMatchRecord 매치 기록 생성, returns the generated match ID
func (r *MatchRepository) CreateMatchRecord(ctx context.Context, proposal matchmaking.MatchProposal) (string, error) {
	query := `
		INSERT INTO matches (player1_id, player2_id, meeting_latitude, meeting_longitude, status, scheduled_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`

	var id string
	err := r.db.QueryRowContext(ctx, query,
		proposal.Player1ID,
		proposal.Player2ID,
		proposal.MeetingPoint.Latitude,
		proposal.MeetingPoint.Longitude,
		models.MatchStatusScheduled,
		proposal.ScheduledAt,
	).Scan(&id)

	if err != nil {
		return "", fmt.Errorf("failed to create match: %w", err)
	}

	return id, nil
}

// FindByID ID로 매치 찾기 (없으면 nil)
func (r *MatchRepository) FindByID(ctx context.Context, id string) (*models.Match, error) {
	query := `
		SELECT id, player1_id, player2_id, meeting_latitude, meeting_longitude,
		       status, scheduled_at, created_at
		FROM matches
		WHERE id = $1
	`

	match := &models.Match{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&match.ID,
		&match.Player1ID,
		&match.Player2ID,
		&match.MeetingLatitude,
		&match.MeetingLongitude,
		&match.Status,
		&match.ScheduledAt,
		&match.CreatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to find match: %w", err)
	}

	return match, nil
}

// FindByPlayer 플레이어의 최근 매치 목록
func (r *MatchRepository) FindByPlayer(ctx context.Context, playerID string, limit int) ([]*models.Match, error) {
	query := `
		SELECT id, player1_id, player2_id, meeting_latitude, meeting_longitude,
		       status, scheduled_at, created_at
		FROM matches
		WHERE player1_id = $1 OR player2_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, playerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list matches: %w", err)
	}
	defer rows.Close()

	matches := []*models.Match{}
	for rows.Next() {
		match := &models.Match{}
		if err := rows.Scan(
			&match.ID,
			&match.Player1ID,
			&match.Player2ID,
			&match.MeetingLatitude,
			&match.MeetingLongitude,
			&match.Status,
			&match.ScheduledAt,
			&match.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan match: %w", err)
		}
		matches = append(matches, match)
	}

	return matches, rows.Err()
}
