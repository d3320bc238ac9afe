package matchmaking

import "errors"

// Expected outcomes. Callers branch on these with errors.Is; they are never fatal.
var (
	ErrAlreadyQueued  = errors.New("player already queued")
	ErrNotQueued      = errors.New("player not queued")
	ErrNoMatchFound   = errors.New("no match found")
	ErrNoMeetingPoint = errors.New("no valid meeting point")

	// ErrRecipientOffline a Publisher had nowhere to deliver the notification
	ErrRecipientOffline = errors.New("recipient offline")
)

// Input validation errors
var (
	ErrInvalidPlayerID    = errors.New("invalid player id")
	ErrInvalidCoordinates = errors.New("invalid coordinates")
	ErrInvalidRating      = errors.New("invalid rating")
	ErrInvalidThresholds  = errors.New("invalid matchmaking thresholds")
)

// Collaborator failures during a pairing
var (
	ErrMatchRecordFailed = errors.New("failed to record match")
)
