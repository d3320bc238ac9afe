package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rl-arena/rl-arena-matchmaker/internal/models"
	"github.com/rl-arena/rl-arena-matchmaker/pkg/distributed"
)

const maxMatchListLimit = 100

// MatchReader 매치 기록 조회
type MatchReader interface {
	FindByID(ctx context.Context, id string) (*models.Match, error)
	FindByPlayer(ctx context.Context, playerID string, limit int) ([]*models.Match, error)
}

// ReviewStore 실패한 매칭 검토 큐
type ReviewStore interface {
	Pending(ctx context.Context, limit int64) ([]distributed.ReviewItem, error)
	Resolve(ctx context.Context, id string) (*distributed.ReviewItem, error)
	Size(ctx context.Context) (int64, error)
}

// MatchService 매치 기록 및 검토 큐 조회
type MatchService struct {
	matches MatchReader
	reviews ReviewStore
}

func NewMatchService(matches MatchReader, reviews ReviewStore) *MatchService {
	return &MatchService{matches: matches, reviews: reviews}
}

// GetByID 매치 조회
func (s *MatchService) GetByID(ctx context.Context, id string) (*models.Match, error) {
	if id == "" {
		return nil, ErrInvalidInput
	}
	match, err := s.matches.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find match: %w", err)
	}
	if match == nil {
		return nil, ErrMatchNotFound
	}
	return match, nil
}

// ListByPlayer 플레이어의 최근 매치 목록
func (s *MatchService) ListByPlayer(ctx context.Context, playerID string, limit int) ([]*models.Match, error) {
	if limit <= 0 || limit > maxMatchListLimit {
		limit = maxMatchListLimit
	}
	matches, err := s.matches.FindByPlayer(ctx, playerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list matches: %w", err)
	}
	if matches == nil {
		matches = []*models.Match{}
	}
	return matches, nil
}

// PendingReviews 검토 대기 중인 실패 매칭
func (s *MatchService) PendingReviews(ctx context.Context, limit int64) ([]distributed.ReviewItem, int64, error) {
	if limit <= 0 || limit > maxMatchListLimit {
		limit = maxMatchListLimit
	}
	items, err := s.reviews.Pending(ctx, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to load review queue: %w", err)
	}
	total, err := s.reviews.Size(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to load review queue size: %w", err)
	}
	return items, total, nil
}

// ResolveReview 검토 완료 처리
func (s *MatchService) ResolveReview(ctx context.Context, id string) (*distributed.ReviewItem, error) {
	item, err := s.reviews.Resolve(ctx, id)
	if errors.Is(err, distributed.ErrReviewItemNotFound) {
		return nil, ErrReviewNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve review item: %w", err)
	}
	return item, nil
}
