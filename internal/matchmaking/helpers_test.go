package matchmaking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var referenceThresholds = Thresholds{
	MaxRatingDiff:    300,
	MaxDeviationDiff: 100,
	MaxDistanceKm:    2,
	MaxQueueWait:     300 * time.Second,
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeRecorder struct {
	mu        sync.Mutex
	proposals []MatchProposal
	err       error
	panicMsg  string
}

func (r *fakeRecorder) CreateMatchRecord(_ context.Context, proposal MatchProposal) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.panicMsg != "" {
		panic(r.panicMsg)
	}
	if r.err != nil {
		return "", r.err
	}
	r.proposals = append(r.proposals, proposal)
	return fmt.Sprintf("match-%d", len(r.proposals)), nil
}

func (r *fakeRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.proposals)
}

type publishedNotification struct {
	playerID     string
	notification MatchNotification
}

type fakePublisher struct {
	mu        sync.Mutex
	published []publishedNotification
	failFor   map[string]bool
}

func (p *fakePublisher) Publish(_ context.Context, playerID string, n MatchNotification) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failFor[playerID] {
		return errors.New("transport down")
	}
	p.published = append(p.published, publishedNotification{playerID: playerID, notification: n})
	return nil
}

func (p *fakePublisher) forPlayer(playerID string) []MatchNotification {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []MatchNotification
	for _, pn := range p.published {
		if pn.playerID == playerID {
			out = append(out, pn.notification)
		}
	}
	return out
}

type fakeReviewSink struct {
	mu       sync.Mutex
	failures []FailedPairing
}

func (s *fakeReviewSink) ReportFailedPairing(_ context.Context, f FailedPairing) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, f)
	return nil
}

func profile(id string, rating, deviation float64) Profile {
	return Profile{
		PlayerID:        id,
		Rating:          rating,
		RatingDeviation: deviation,
		DisplayName:     "name-" + id,
		Summary:         "summary-" + id,
	}
}

func waiting(id string, rating, deviation, lat, lon float64, joinedAt time.Time) *WaitingPlayer {
	return &WaitingPlayer{
		ID:              id,
		Rating:          rating,
		RatingDeviation: deviation,
		Latitude:        lat,
		Longitude:       lon,
		JoinedAt:        joinedAt,
	}
}

// fakeClaims shared queue membership as seen by every instance
type fakeClaims struct {
	mu        sync.Mutex
	held      map[string]bool
	refreshed []string
	err       error
}

func newFakeClaims() *fakeClaims {
	return &fakeClaims{held: make(map[string]bool)}
}

func (c *fakeClaims) Claim(_ context.Context, playerID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	if c.held[playerID] {
		return fmt.Errorf("%w: %s is claimed", ErrAlreadyQueued, playerID)
	}
	c.held[playerID] = true
	return nil
}

func (c *fakeClaims) Release(_ context.Context, playerID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.held, playerID)
	return nil
}

func (c *fakeClaims) Refresh(_ context.Context, playerIDs []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refreshed = append(c.refreshed, playerIDs...)
	return nil
}

func (c *fakeClaims) isHeld(playerID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.held[playerID]
}

// contextRecorder fails like a database driver once its context is done
type contextRecorder struct {
	fakeRecorder
	onRecord    func()
	hadDeadline bool
}

func (r *contextRecorder) CreateMatchRecord(ctx context.Context, proposal MatchProposal) (string, error) {
	if r.onRecord != nil {
		r.onRecord()
	}
	_, r.hadDeadline = ctx.Deadline()
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return r.fakeRecorder.CreateMatchRecord(ctx, proposal)
}
