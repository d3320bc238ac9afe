package models

import (
	"time"

	"github.com/rl-arena/rl-arena-matchmaker/internal/matchmaking"
)

// EnqueueRequest 매칭 큐 등록 요청. Rating fields are only read when no stored
// profile exists for the player.
type EnqueueRequest struct {
	PlayerID        string   `json:"playerId" binding:"required"`
	Latitude        *float64 `json:"latitude" binding:"required"`
	Longitude       *float64 `json:"longitude" binding:"required"`
	Rating          *float64 `json:"rating"`
	RatingDeviation *float64 `json:"ratingDeviation"`
	DisplayName     string   `json:"displayName"`
	Summary         string   `json:"summary"`
}

// QueueEntry 대기 중인 플레이어 정보
type QueueEntry struct {
	PlayerID        string    `json:"playerId"`
	DisplayName     string    `json:"displayName,omitempty"`
	Rating          float64   `json:"rating"`
	RatingDeviation float64   `json:"ratingDeviation"`
	Latitude        float64   `json:"latitude"`
	Longitude       float64   `json:"longitude"`
	JoinedAt        time.Time `json:"joinedAt"`
	WaitSeconds     float64   `json:"waitSeconds"`
	Priority        float64   `json:"priority"`
}

// NewQueueEntry 응답용 변환
func NewQueueEntry(p matchmaking.WaitingPlayer, now time.Time) QueueEntry {
	return QueueEntry{
		PlayerID:        p.ID,
		DisplayName:     p.DisplayName,
		Rating:          p.Rating,
		RatingDeviation: p.RatingDeviation,
		Latitude:        p.Latitude,
		Longitude:       p.Longitude,
		JoinedAt:        p.JoinedAt,
		WaitSeconds:     p.ElapsedWait(now).Seconds(),
		Priority:        p.Priority(now),
	}
}

// QueueStatus 큐 현황
type QueueStatus struct {
	Size    int          `json:"size"`
	Players []QueueEntry `json:"players"`
}

// PlayerQueueStatus 플레이어 대기 여부
type PlayerQueueStatus struct {
	PlayerID string `json:"playerId"`
	Queued   bool   `json:"queued"`
}

// SweepResult 수동 스윕 결과
type SweepResult struct {
	Matched bool   `json:"matched"`
	Match   *Match `json:"match,omitempty"`
}

// MatchFromResult 매칭 결과를 매치 기록 형태로 변환
func MatchFromResult(m *matchmaking.Match) *Match {
	return &Match{
		ID:               m.ID,
		Player1ID:        m.Proposal.Player1ID,
		Player2ID:        m.Proposal.Player2ID,
		MeetingLatitude:  m.Proposal.MeetingPoint.Latitude,
		MeetingLongitude: m.Proposal.MeetingPoint.Longitude,
		Status:           MatchStatusScheduled,
		ScheduledAt:      m.Proposal.ScheduledAt,
	}
}
