package models

import (
	"time"

	"github.com/rl-arena/rl-arena-matchmaker/internal/matchmaking"
)

// PlayerProfile 저장된 플레이어 프로필
type PlayerProfile struct {
	ID              string    `json:"id" db:"id"`
	DisplayName     string    `json:"displayName" db:"display_name"`
	Summary         string    `json:"summary" db:"summary"`
	Rating          float64   `json:"rating" db:"rating"`
	RatingDeviation float64   `json:"ratingDeviation" db:"rating_deviation"`
	UpdatedAt       time.Time `json:"updatedAt" db:"updated_at"`
}

// ToProfile 매칭용 프로필로 변환
func (p *PlayerProfile) ToProfile() matchmaking.Profile {
	return matchmaking.Profile{
		PlayerID:        p.ID,
		Rating:          p.Rating,
		RatingDeviation: p.RatingDeviation,
		DisplayName:     p.DisplayName,
		Summary:         p.Summary,
	}
}
