package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rl-arena/rl-arena-matchmaker/internal/models"
	"github.com/rl-arena/rl-arena-matchmaker/pkg/database"
)

type ProfileRepository struct {
	db *database.DB
}

func NewProfileRepository(db *database.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// FindByID ID로 프로필 찾기 (없으면 nil)
func (r *ProfileRepository) FindByID(ctx context.Context, id string) (*models.PlayerProfile, error) {
	query := `
		SELECT id, display_name, summary, rating, rating_deviation, updated_at
		FROM player_profiles
		WHERE id = $1
	`

	profile := &models.PlayerProfile{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&profile.ID,
		&profile.DisplayName,
		&profile.Summary,
		&profile.Rating,
		&profile.RatingDeviation,
		&profile.UpdatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // 프로필 없음
	}

	if err != nil {
		return nil, fmt.Errorf("failed to find profile: %w", err)
	}

	return profile, nil
}

// Upsert 프로필 생성 또는 갱신
func (r *ProfileRepository) Upsert(ctx context.Context, profile *models.PlayerProfile) error {
	query := `
		INSERT INTO player_profiles (id, display_name, summary, rating, rating_deviation)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
		    display_name = EXCLUDED.display_name,
		    summary = EXCLUDED.summary,
		    rating = EXCLUDED.rating,
		    rating_deviation = EXCLUDED.rating_deviation,
		    updated_at = NOW()
		RETURNING updated_at
	`

	err := r.db.QueryRowContext(ctx, query,
		profile.ID,
		profile.DisplayName,
		profile.Summary,
		profile.Rating,
		profile.RatingDeviation,
	).Scan(&profile.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert profile: %w", err)
	}
	return nil
}

// List 프로필 목록 (ID 순)
func (r *ProfileRepository) List(ctx context.Context, limit int) ([]*models.PlayerProfile, error) {
	query := `
		SELECT id, display_name, summary, rating, rating_deviation, updated_at
		FROM player_profiles
		ORDER BY id
		LIMIT $1
	`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	defer rows.Close()

	profiles := []*models.PlayerProfile{}
	for rows.Next() {
		profile := &models.PlayerProfile{}
		if err := rows.Scan(
			&profile.ID,
			&profile.DisplayName,
			&profile.Summary,
			&profile.Rating,
			&profile.RatingDeviation,
			&profile.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan profile: %w", err)
		}
		profiles = append(profiles, profile)
	}
	return profiles, rows.Err()
}
