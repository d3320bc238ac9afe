package distributed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rl-arena/rl-arena-matchmaker/internal/matchmaking"
)

var ErrReviewItemNotFound = errors.New("review item not found")

// ReviewItem 운영자 확인이 필요한 실패한 페어링
type ReviewItem struct {
	ID string `json:"id"`
	matchmaking.FailedPairing
}

// 항목 ID로 찾아서 리스트에서 제거
var resolveScript = redis.NewScript(`
	local items = redis.call('LRANGE', KEYS[1], 0, -1)
	for _, raw in ipairs(items) do
		if cjson.decode(raw).id == ARGV[1] then
			redis.call('LREM', KEYS[1], 1, raw)
			return raw
		end
	end
	return false
`)

// ReviewQueue Redis 기반 실패 페어링 검토 큐 (List, newest first).
// Satisfies matchmaking.ReviewSink.
type ReviewQueue struct {
	client  *redis.Client
	listKey string
	maxSize int64 // 0 = 무제한, otherwise the oldest items are trimmed
}

// NewReviewQueue Review Queue 생성
func NewReviewQueue(client *redis.Client, name string, maxSize int64) *ReviewQueue {
	return &ReviewQueue{
		client:  client,
		listKey: fmt.Sprintf("review:%s", name),
		maxSize: maxSize,
	}
}

// ReportFailedPairing 검토 큐에 추가
func (q *ReviewQueue) ReportFailedPairing(ctx context.Context, failure matchmaking.FailedPairing) error {
	data, err := json.Marshal(ReviewItem{
		ID:            uuid.New().String(),
		FailedPairing: failure,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal review item: %w", err)
	}

	pipe := q.client.TxPipeline()
	pipe.LPush(ctx, q.listKey, data)
	if q.maxSize > 0 {
		pipe.LTrim(ctx, q.listKey, 0, q.maxSize-1)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to push review item: %w", err)
	}
	return nil
}

// Pending up to limit items, newest first. Undecodable entries are skipped.
func (q *ReviewQueue) Pending(ctx context.Context, limit int64) ([]ReviewItem, error) {
	if limit <= 0 {
		return []ReviewItem{}, nil
	}
	raw, err := q.client.LRange(ctx, q.listKey, 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list review items: %w", err)
	}

	items := make([]ReviewItem, 0, len(raw))
	for _, r := range raw {
		var item ReviewItem
		if err := json.Unmarshal([]byte(r), &item); err != nil {
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

// Resolve 운영자가 처리한 항목 제거
func (q *ReviewQueue) Resolve(ctx context.Context, id string) (*ReviewItem, error) {
	raw, err := resolveScript.Run(ctx, q.client, []string{q.listKey}, id).Text()
	if errors.Is(err, redis.Nil) {
		return nil, ErrReviewItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve review item: %w", err)
	}

	var item ReviewItem
	if err := json.Unmarshal([]byte(raw), &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal review item: %w", err)
	}
	return &item, nil
}

// Size 검토 대기 건수
func (q *ReviewQueue) Size(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.listKey).Result()
}
