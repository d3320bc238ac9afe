package models

import "time"

type MatchStatus string

const (
	MatchStatusScheduled MatchStatus = "scheduled"
	MatchStatusCompleted MatchStatus = "completed"
	MatchStatusCancelled MatchStatus = "cancelled"
)

// Match 성사된 매치 기록
type Match struct {
	ID               string      `json:"id" db:"id"`
	Player1ID        string      `json:"player1Id" db:"player1_id"`
	Player2ID        string      `json:"player2Id" db:"player2_id"`
	MeetingLatitude  float64     `json:"meetingLatitude" db:"meeting_latitude"`
	MeetingLongitude float64     `json:"meetingLongitude" db:"meeting_longitude"`
	Status           MatchStatus `json:"status" db:"status"`
	ScheduledAt      time.Time   `json:"scheduledAt" db:"scheduled_at"`
	CreatedAt        time.Time   `json:"createdAt" db:"created_at"`
}
