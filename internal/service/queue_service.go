package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rl-arena/rl-arena-matchmaker/internal/matchmaking"
	"github.com/rl-arena/rl-arena-matchmaker/internal/models"
	"go.uber.org/zap"
)

const (
	defaultCandidateLimit = 10
	maxCandidateLimit     = 100
)

// ProfileSource 저장된 플레이어 프로필 조회. Returns nil, nil when the player has
// no stored profile.
type ProfileSource interface {
	FindByID(ctx context.Context, id string) (*models.PlayerProfile, error)
}

// ProfileDefaults rating values used when neither a stored profile nor the
// request provides them.
type ProfileDefaults struct {
	Rating          float64
	RatingDeviation float64
}

// QueueService 매칭 큐 조작
type QueueService struct {
	matchmaker *matchmaking.Matchmaker
	profiles   ProfileSource
	defaults   ProfileDefaults
	logger     *zap.Logger
}

// NewQueueService profiles may be nil, in which case profiles come from the request.
func NewQueueService(matchmaker *matchmaking.Matchmaker, profiles ProfileSource, defaults ProfileDefaults, logger *zap.Logger) *QueueService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueueService{
		matchmaker: matchmaker,
		profiles:   profiles,
		defaults:   defaults,
		logger:     logger,
	}
}

// Enqueue 플레이어를 매칭 큐에 추가
func (s *QueueService) Enqueue(ctx context.Context, req *models.EnqueueRequest) (*models.QueueEntry, error) {
	if err := matchmaking.ValidatePlayerID(req.PlayerID); err != nil {
		return nil, err
	}
	if req.Latitude == nil || req.Longitude == nil {
		return nil, fmt.Errorf("%w: latitude and longitude are required", ErrInvalidInput)
	}

	profile, err := s.resolveProfile(ctx, req)
	if err != nil {
		return nil, err
	}

	if err := s.matchmaker.AddPlayerToQueue(ctx, profile, *req.Latitude, *req.Longitude); err != nil {
		return nil, err
	}

	s.logger.Info("Player enqueued",
		zap.String("playerId", profile.PlayerID),
		zap.Float64("rating", profile.Rating),
		zap.Int("queueSize", s.matchmaker.QueueSize()))

	for _, p := range s.matchmaker.QueueSnapshot() {
		if p.ID == profile.PlayerID {
			entry := models.NewQueueEntry(p, s.matchmaker.Now())
			return &entry, nil
		}
	}
	// matched by a concurrent sweep before the snapshot
	return &models.QueueEntry{
		PlayerID:        profile.PlayerID,
		DisplayName:     profile.DisplayName,
		Rating:          profile.Rating,
		RatingDeviation: profile.RatingDeviation,
		Latitude:        *req.Latitude,
		Longitude:       *req.Longitude,
		JoinedAt:        s.matchmaker.Now(),
	}, nil
}

// resolveProfile stored profile wins, then request fields, then defaults.
func (s *QueueService) resolveProfile(ctx context.Context, req *models.EnqueueRequest) (matchmaking.Profile, error) {
	if s.profiles != nil {
		stored, err := s.profiles.FindByID(ctx, req.PlayerID)
		if err != nil {
			return matchmaking.Profile{}, fmt.Errorf("failed to load profile: %w", err)
		}
		if stored != nil {
			return stored.ToProfile(), nil
		}
	}

	profile := matchmaking.Profile{
		PlayerID:        req.PlayerID,
		Rating:          s.defaults.Rating,
		RatingDeviation: s.defaults.RatingDeviation,
		DisplayName:     req.DisplayName,
		Summary:         req.Summary,
	}
	if req.Rating != nil {
		profile.Rating = *req.Rating
	}
	if req.RatingDeviation != nil {
		profile.RatingDeviation = *req.RatingDeviation
	}
	if profile.DisplayName == "" {
		profile.DisplayName = req.PlayerID
	}
	return profile, nil
}

// Dequeue 플레이어를 매칭 큐에서 제거
func (s *QueueService) Dequeue(ctx context.Context, playerID string) error {
	if err := matchmaking.ValidatePlayerID(playerID); err != nil {
		return err
	}
	if err := s.matchmaker.RemovePlayerFromQueue(ctx, playerID); err != nil {
		return err
	}
	s.logger.Info("Player dequeued", zap.String("playerId", playerID))
	return nil
}

// Status 플레이어 대기 여부
func (s *QueueService) Status(playerID string) (*models.PlayerQueueStatus, error) {
	if err := matchmaking.ValidatePlayerID(playerID); err != nil {
		return nil, err
	}
	return &models.PlayerQueueStatus{
		PlayerID: playerID,
		Queued:   s.matchmaker.IsPlayerInQueue(playerID),
	}, nil
}

// Snapshot 큐 현황, highest priority first
func (s *QueueService) Snapshot() *models.QueueStatus {
	players := s.matchmaker.QueueSnapshot()
	now := s.matchmaker.Now()

	entries := make([]models.QueueEntry, 0, len(players))
	for _, p := range players {
		entries = append(entries, models.NewQueueEntry(p, now))
	}
	return &models.QueueStatus{Size: len(entries), Players: entries}
}

// Candidates 플레이어와 조건이 맞는 대기자 목록, nearest first
func (s *QueueService) Candidates(playerID string, limit int) ([]models.QueueEntry, error) {
	if err := matchmaking.ValidatePlayerID(playerID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultCandidateLimit
	}
	if limit > maxCandidateLimit {
		limit = maxCandidateLimit
	}

	players, err := s.matchmaker.Candidates(playerID, limit)
	if err != nil {
		return nil, err
	}

	now := s.matchmaker.Now()
	entries := make([]models.QueueEntry, 0, len(players))
	for _, p := range players {
		entries = append(entries, models.NewQueueEntry(p, now))
	}
	return entries, nil
}

// Sweep 매칭 한 번 시도. No compatible pair is not an error.
func (s *QueueService) Sweep(ctx context.Context) (*models.SweepResult, error) {
	match, err := s.matchmaker.AttemptMatch(ctx)
	if errors.Is(err, matchmaking.ErrNoMatchFound) {
		return &models.SweepResult{Matched: false}, nil
	}
	if err != nil {
		return nil, err
	}
	return &models.SweepResult{Matched: true, Match: models.MatchFromResult(match)}, nil
}

// QueueSize 대기 인원
func (s *QueueService) QueueSize() int {
	return s.matchmaker.QueueSize()
}
