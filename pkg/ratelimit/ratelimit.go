package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter decides whether the caller identified by key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// TokenBucket token bucket holding up to capacity tokens, one token added
// every refillEvery.
type TokenBucket struct {
	mu          sync.Mutex
	capacity    float64
	tokens      float64
	refillEvery time.Duration
	lastRefill  time.Time
	lastUsed    time.Time
}

// NewTokenBucket creates a full bucket
func NewTokenBucket(capacity int, refillEvery time.Duration, now time.Time) *TokenBucket {
	return &TokenBucket{
		capacity:    float64(capacity),
		tokens:      float64(capacity),
		refillEvery: refillEvery,
		lastRefill:  now,
		lastUsed:    now,
	}
}

// AllowAt consumes a token if one is available at now
func (tb *TokenBucket) AllowAt(now time.Time) bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill(now)
	tb.lastUsed = now

	if tb.tokens >= 1 {
		tb.tokens--
		return true
	}
	return false
}

func (tb *TokenBucket) refill(now time.Time) {
	elapsed := now.Sub(tb.lastRefill)
	if elapsed <= 0 || tb.refillEvery <= 0 {
		return
	}
	tb.tokens += float64(elapsed) / float64(tb.refillEvery)
	if tb.tokens > tb.capacity {
		tb.tokens = tb.capacity
	}
	tb.lastRefill = now
}

func (tb *TokenBucket) idleSince(now time.Time) (time.Duration, bool) {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.refill(now)
	return now.Sub(tb.lastUsed), tb.tokens >= tb.capacity
}

// RateLimiter in-process token buckets per key (IP, player ID)
type RateLimiter struct {
	mu          sync.RWMutex
	buckets     map[string]*TokenBucket
	capacity    int
	refillEvery time.Duration
	now         func() time.Time

	stopOnce sync.Once
	stopChan chan struct{}
}

// NewRateLimiter starts a background loop dropping idle buckets every
// cleanupInterval. Call Stop to end it.
func NewRateLimiter(capacity int, refillEvery, cleanupInterval time.Duration) *RateLimiter {
	rl := newRateLimiter(capacity, refillEvery, time.Now)
	if cleanupInterval > 0 {
		go rl.cleanupLoop(cleanupInterval)
	}
	return rl
}

func newRateLimiter(capacity int, refillEvery time.Duration, now func() time.Time) *RateLimiter {
	return &RateLimiter{
		buckets:     make(map[string]*TokenBucket),
		capacity:    capacity,
		refillEvery: refillEvery,
		now:         now,
		stopChan:    make(chan struct{}),
	}
}

// Allow never fails; the error is there to satisfy Limiter.
func (rl *RateLimiter) Allow(_ context.Context, key string) (bool, error) {
	return rl.getBucket(key).AllowAt(rl.now()), nil
}

func (rl *RateLimiter) getBucket(key string) *TokenBucket {
	rl.mu.RLock()
	bucket, exists := rl.buckets[key]
	rl.mu.RUnlock()

	if exists {
		return bucket
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	// Double-check after acquiring write lock
	if bucket, exists = rl.buckets[key]; exists {
		return bucket
	}

	bucket = NewTokenBucket(rl.capacity, rl.refillEvery, rl.now())
	rl.buckets[key] = bucket
	return bucket
}

func (rl *RateLimiter) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup(interval)
		case <-rl.stopChan:
			return
		}
	}
}

// cleanup drops buckets that are full and idle for at least maxIdle
func (rl *RateLimiter) cleanup(maxIdle time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for key, bucket := range rl.buckets {
		if idle, full := bucket.idleSince(now); full && idle >= maxIdle {
			delete(rl.buckets, key)
		}
	}
}

// Reset 특정 키의 버킷 초기화
func (rl *RateLimiter) Reset(key string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.buckets, key)
}

// ActiveBuckets 활성 버킷 수
func (rl *RateLimiter) ActiveBuckets() int {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	return len(rl.buckets)
}

// Stop 정리 루프 종료
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopChan) })
}
