package distributed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rl-arena/rl-arena-matchmaker/internal/matchmaking"
)

var (
	ErrLockNotAcquired = errors.New("lock not acquired")
	ErrLockNotHeld     = errors.New("lock not held")
)

// 자신이 획득한 락만 해제
var releaseScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`)

// RedisLock Redis 기반 분산 락
type RedisLock struct {
	client *redis.Client
	key    string
	owner  string
}

// RedisLockManager Redis 분산 락 관리자
type RedisLockManager struct {
	client *redis.Client
}

// NewRedisLockManager Redis Lock Manager 생성
func NewRedisLockManager(client *redis.Client) *RedisLockManager {
	return &RedisLockManager{client: client}
}

// AcquireLock SET NX with a TTL so a crashed holder cannot block others forever.
func (m *RedisLockManager) AcquireLock(ctx context.Context, key, owner string, ttl time.Duration) (*RedisLock, error) {
	ok, err := m.client.SetNX(ctx, key, owner, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, ErrLockNotAcquired
	}

	return &RedisLock{client: m.client, key: key, owner: owner}, nil
}

// Release 락 해제. Fails with ErrLockNotHeld if the lock expired and someone
// else took it.
func (l *RedisLock) Release(ctx context.Context) error {
	result, err := releaseScript.Run(ctx, l.client, []string{l.key}, l.owner).Int()
	if err != nil {
		return fmt.Errorf("failed to release lock %s: %w", l.key, err)
	}
	if result == 0 {
		return ErrLockNotHeld
	}
	return nil
}

// IsHeld 락이 현재 유효한지 확인
func (l *RedisLock) IsHeld(ctx context.Context) (bool, error) {
	owner, err := l.client.Get(ctx, l.key).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return owner == l.owner, nil
}

// 아직 이 인스턴스 소유인 claim만 연장; a claim that expired is taken back.
var refreshScript = redis.NewScript(`
	local refreshed = 0
	for _, key in ipairs(KEYS) do
		local owner = redis.call("GET", key)
		if owner == ARGV[1] then
			redis.call("PEXPIRE", key, ARGV[2])
			refreshed = refreshed + 1
		elseif not owner then
			redis.call("SET", key, ARGV[1], "PX", ARGV[2])
			refreshed = refreshed + 1
		end
	end
	return refreshed
`)

// QueueClaims 인스턴스 간 대기열 중복 방지. One lock per queued player, owned by
// the instance holding them. Satisfies matchmaking.QueueClaims.
type QueueClaims struct {
	manager *RedisLockManager
	prefix  string
	owner   string
	ttl     time.Duration
}

// NewQueueClaims ttl must outlast the refresh interval; a claim expires on its
// own if its instance dies.
func NewQueueClaims(client *redis.Client, prefix string, ttl time.Duration) *QueueClaims {
	return &QueueClaims{
		manager: NewRedisLockManager(client),
		prefix:  prefix,
		owner:   uuid.New().String(),
		ttl:     ttl,
	}
}

// Owner 이 인스턴스의 claim 소유자 ID
func (q *QueueClaims) Owner() string {
	return q.owner
}

func (q *QueueClaims) key(playerID string) string {
	return fmt.Sprintf("%s:%s", q.prefix, playerID)
}

// Claim fails with matchmaking.ErrAlreadyQueued while any instance holds the player.
func (q *QueueClaims) Claim(ctx context.Context, playerID string) error {
	_, err := q.manager.AcquireLock(ctx, q.key(playerID), q.owner, q.ttl)
	if errors.Is(err, ErrLockNotAcquired) {
		return fmt.Errorf("%w: %s already holds a queue claim", matchmaking.ErrAlreadyQueued, playerID)
	}
	return err
}

// Release gives the claim back. ErrLockNotHeld if it expired and someone else took it.
func (q *QueueClaims) Release(ctx context.Context, playerID string) error {
	lock := &RedisLock{client: q.manager.client, key: q.key(playerID), owner: q.owner}
	return lock.Release(ctx)
}

// Refresh 대기 중인 플레이어들의 claim TTL 연장
func (q *QueueClaims) Refresh(ctx context.Context, playerIDs []string) error {
	if len(playerIDs) == 0 {
		return nil
	}
	keys := make([]string, len(playerIDs))
	for i, id := range playerIDs {
		keys[i] = q.key(id)
	}
	if err := refreshScript.Run(ctx, q.manager.client, keys, q.owner, q.ttl.Milliseconds()).Err(); err != nil {
		return fmt.Errorf("failed to refresh queue claims: %w", err)
	}
	return nil
}
