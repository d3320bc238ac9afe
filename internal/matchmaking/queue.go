package matchmaking

import (
	"fmt"
	"sort"
	"time"

	"github.com/rl-arena/rl-arena-matchmaker/pkg/geo"
)

// WaitQueue admission, removal and search over the similarity index.
// It holds each player ID at most once. Not safe for concurrent use on its
// own: the Matchmaker that owns it serializes every call under one lock.
type WaitQueue struct {
	index  *SimilarityIndex
	policy CompatibilityPolicy
	now    func() time.Time
}

// NewWaitQueue WaitQueue 생성
func NewWaitQueue(policy CompatibilityPolicy, now func() time.Time) *WaitQueue {
	if policy == nil {
		panic("matchmaking: NewWaitQueue requires a policy")
	}
	if now == nil {
		now = time.Now
	}
	return &WaitQueue{
		index:  NewSimilarityIndex(),
		policy: policy,
		now:    now,
	}
}

// AddPlayer queues a player at the given location.
func (q *WaitQueue) AddPlayer(profile Profile, latitude, longitude float64) (*WaitingPlayer, error) {
	if err := validateProfile(profile); err != nil {
		return nil, err
	}
	location := geo.Point{Latitude: latitude, Longitude: longitude}
	if !location.Valid() {
		return nil, fmt.Errorf("%w: (%v, %v)", ErrInvalidCoordinates, latitude, longitude)
	}
	if q.index.ContainsPlayerID(profile.PlayerID) {
		return nil, ErrAlreadyQueued
	}

	player := newWaitingPlayer(profile, location, q.now())
	q.index.Insert(player)
	return player, nil
}

// RemovePlayer 큐에서 플레이어 제거
func (q *WaitQueue) RemovePlayer(id string) (*WaitingPlayer, error) {
	player, ok := q.index.RemoveByPlayerID(id)
	if !ok {
		return nil, ErrNotQueued
	}
	return player, nil
}

// removePair drops both players of a pairing. Both must be queued.
func (q *WaitQueue) removePair(a, b *WaitingPlayer) {
	if !q.index.Remove(a) || !q.index.Remove(b) {
		panic(fmt.Sprintf("matchmaking: pair %s/%s not fully queued", a.ID, b.ID))
	}
}

// Contains 큐 포함 여부
func (q *WaitQueue) Contains(id string) bool {
	return q.index.ContainsPlayerID(id)
}

// Get returns the queued player with the given ID.
func (q *WaitQueue) Get(id string) (*WaitingPlayer, bool) {
	return q.index.Get(id)
}

// Size 대기 인원
func (q *WaitQueue) Size() int {
	return q.index.Size()
}

// AllPlayers snapshot ordered by priority, highest first. Ties go to the earlier
// join, then to the smaller ID.
func (q *WaitQueue) AllPlayers() []*WaitingPlayer {
	players := q.index.AllPlayers()
	now := q.now()
	sort.SliceStable(players, func(i, j int) bool {
		pi, pj := players[i].Priority(now), players[j].Priority(now)
		if pi != pj {
			return pi > pj
		}
		if !players[i].JoinedAt.Equal(players[j].JoinedAt) {
			return players[i].JoinedAt.Before(players[j].JoinedAt)
		}
		return players[i].ID < players[j].ID
	})
	return players
}

// FindMatch returns the first queued player, in priority order, that the policy
// accepts for candidate. It never returns candidate itself.
func (q *WaitQueue) FindMatch(candidate *WaitingPlayer) *WaitingPlayer {
	var match *WaitingPlayer
	q.eachCompatible(candidate, q.AllPlayers(), func(p *WaitingPlayer) bool {
		match = p
		return false
	})
	return match
}

// eachCompatible calls fn for every player in order that pairs with candidate,
// until fn returns false.
func (q *WaitQueue) eachCompatible(candidate *WaitingPlayer, order []*WaitingPlayer, fn func(*WaitingPlayer) bool) {
	if candidate == nil {
		panic("matchmaking: FindMatch called with nil candidate")
	}
	now := q.now()
	for _, p := range order {
		if p == candidate || p.ID == candidate.ID {
			continue
		}
		if !q.policy.IsGoodMatch(candidate, p, now) {
			continue
		}
		if !fn(p) {
			return
		}
	}
}

// NearestCandidates ranked shortlist of players close to candidate on every axis,
// using the thresholds as search bounds.
func (q *WaitQueue) NearestCandidates(candidate *WaitingPlayer, thresholds Thresholds, limit int) []*WaitingPlayer {
	return q.index.FindWithinRadius(
		candidate,
		thresholds.MaxRatingDiff,
		thresholds.MaxDeviationDiff,
		thresholds.MaxDistanceKm,
		limit,
	)
}
