package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rl-arena/rl-arena-matchmaker/internal/matchmaking"
	"github.com/rl-arena/rl-arena-matchmaker/internal/models"
	"github.com/rl-arena/rl-arena-matchmaker/pkg/distributed"
)

// MemoryMatchStore in-process match records for running without Postgres
type MemoryMatchStore struct {
	mu      sync.RWMutex
	matches map[string]*models.Match
	now     func() time.Time
}

func NewMemoryMatchStore() *MemoryMatchStore {
	return &MemoryMatchStore{
		matches: make(map[string]*models.Match),
		now:     time.Now,
	}
}

// CreateMatchRecord 매치 기록 생성
func (s *MemoryMatchStore) CreateMatchRecord(_ context.Context, proposal matchmaking.MatchProposal) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.New().String()
	s.matches[id] = &models.Match{
		ID:               id,
		Player1ID:        proposal.Player1ID,
		Player2ID:        proposal.Player2ID,
		MeetingLatitude:  proposal.MeetingPoint.Latitude,
		MeetingLongitude: proposal.MeetingPoint.Longitude,
		Status:           models.MatchStatusScheduled,
		ScheduledAt:      proposal.ScheduledAt,
		CreatedAt:        s.now(),
	}
	return id, nil
}

// FindByID ID로 매치 찾기 (없으면 nil)
func (s *MemoryMatchStore) FindByID(_ context.Context, id string) (*models.Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	match, ok := s.matches[id]
	if !ok {
		return nil, nil
	}
	copied := *match
	return &copied, nil
}

// FindByPlayer 플레이어의 최근 매치 목록
func (s *MemoryMatchStore) FindByPlayer(_ context.Context, playerID string, limit int) ([]*models.Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matches := []*models.Match{}
	for _, m := range s.matches {
		if m.Player1ID == playerID || m.Player2ID == playerID {
			copied := *m
			matches = append(matches, &copied)
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].CreatedAt.After(matches[j].CreatedAt)
	})
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// MemoryReviewStore in-process review queue for running without Redis
type MemoryReviewStore struct {
	mu      sync.Mutex
	items   []distributed.ReviewItem // newest first
	maxSize int
}

func NewMemoryReviewStore(maxSize int) *MemoryReviewStore {
	return &MemoryReviewStore{maxSize: maxSize}
}

// ReportFailedPairing 검토 큐에 추가
func (s *MemoryReviewStore) ReportFailedPairing(_ context.Context, failure matchmaking.FailedPairing) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item := distributed.ReviewItem{ID: uuid.New().String(), FailedPairing: failure}
	s.items = append([]distributed.ReviewItem{item}, s.items...)
	if s.maxSize > 0 && len(s.items) > s.maxSize {
		s.items = s.items[:s.maxSize]
	}
	return nil
}

// Pending up to limit items, newest first
func (s *MemoryReviewStore) Pending(_ context.Context, limit int64) ([]distributed.ReviewItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := int64(len(s.items))
	if limit < n {
		n = limit
	}
	if n <= 0 {
		return []distributed.ReviewItem{}, nil
	}
	out := make([]distributed.ReviewItem, n)
	copy(out, s.items[:n])
	return out, nil
}

// Resolve 운영자가 처리한 항목 제거
func (s *MemoryReviewStore) Resolve(_ context.Context, id string) (*distributed.ReviewItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, item := range s.items {
		if item.ID == id {
			s.items = append(s.items[:i], s.items[i+1:]...)
			return &item, nil
		}
	}
	return nil, distributed.ErrReviewItemNotFound
}

// Size 검토 대기 건수
func (s *MemoryReviewStore) Size(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.items)), nil
}
