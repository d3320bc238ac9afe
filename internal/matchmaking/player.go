package matchmaking

import (
	"fmt"
	"math"
	"time"

	"github.com/rl-arena/rl-arena-matchmaker/pkg/geo"
)

// PriorityWaitWeight priority gained per second of waiting.
//
//	priority = PriorityWaitWeight * waitSeconds + rating
const PriorityWaitWeight = 0.1

const maxPlayerIDLength = 64

// Profile rating snapshot of a player, immutable while the player is queued
type Profile struct {
	PlayerID        string
	Rating          float64
	RatingDeviation float64
	DisplayName     string
	Summary         string
}

// WaitingPlayer 매칭 큐에서 대기 중인 플레이어
type WaitingPlayer struct {
	ID              string
	Rating          float64
	RatingDeviation float64
	Latitude        float64
	Longitude       float64
	JoinedAt        time.Time
	DisplayName     string
	Summary         string
}

func newWaitingPlayer(profile Profile, location geo.Point, joinedAt time.Time) *WaitingPlayer {
	return &WaitingPlayer{
		ID:              profile.PlayerID,
		Rating:          profile.Rating,
		RatingDeviation: profile.RatingDeviation,
		Latitude:        location.Latitude,
		Longitude:       location.Longitude,
		JoinedAt:        joinedAt,
		DisplayName:     profile.DisplayName,
		Summary:         profile.Summary,
	}
}

// Location 대기 위치
func (p *WaitingPlayer) Location() geo.Point {
	return geo.Point{Latitude: p.Latitude, Longitude: p.Longitude}
}

// ElapsedWait time spent in the queue as of now. Never negative.
func (p *WaitingPlayer) ElapsedWait(now time.Time) time.Duration {
	elapsed := now.Sub(p.JoinedAt)
	if elapsed < 0 {
		return 0
	}
	return elapsed
}

// Priority grows linearly with wait time; rating breaks ties.
func (p *WaitingPlayer) Priority(now time.Time) float64 {
	return PriorityWaitWeight*p.ElapsedWait(now).Seconds() + p.Rating
}

// ValidatePlayerID checks the identifier format: 1-64 chars of [A-Za-z0-9_-].
func ValidatePlayerID(id string) error {
	if id == "" || len(id) > maxPlayerIDLength {
		return fmt.Errorf("%w: length must be 1-%d", ErrInvalidPlayerID, maxPlayerIDLength)
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return fmt.Errorf("%w: unexpected character %q", ErrInvalidPlayerID, r)
		}
	}
	return nil
}

func validateProfile(profile Profile) error {
	if err := ValidatePlayerID(profile.PlayerID); err != nil {
		return err
	}
	if !isFinite(profile.Rating) || !isFinite(profile.RatingDeviation) || profile.RatingDeviation < 0 {
		return fmt.Errorf("%w: rating=%v deviation=%v", ErrInvalidRating, profile.Rating, profile.RatingDeviation)
	}
	return nil
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
