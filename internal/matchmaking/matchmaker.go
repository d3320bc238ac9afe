package matchmaking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rl-arena/rl-arena-matchmaker/pkg/geo"
	"go.uber.org/zap"
)

const (
	defaultScheduleOffset = 5 * time.Minute
	defaultPairingTimeout = 10 * time.Second
	claimReleaseTimeout   = 2 * time.Second
)

// MatchProposal pairing handed to the MatchRecorder
type MatchProposal struct {
	Player1ID    string
	Player2ID    string
	MeetingPoint geo.Point
	ScheduledAt  time.Time
}

// MatchNotification what one matched player learns about the match. Opponent
// fields always describe the other player.
type MatchNotification struct {
	MatchID                string    `json:"matchId"`
	MeetingLatitude        float64   `json:"meetingLatitude"`
	MeetingLongitude       float64   `json:"meetingLongitude"`
	OpponentDisplayName    string    `json:"opponentDisplayName"`
	OpponentProfileSummary string    `json:"opponentProfileSummary"`
	ScheduledAt            time.Time `json:"scheduledAt"`
}

// Match result of a successful pass
type Match struct {
	ID       string
	Proposal MatchProposal
	Player1  WaitingPlayer
	Player2  WaitingPlayer
}

// MatchRecorder persists a pairing and returns the new match ID. Called at most
// once per pairing.
type MatchRecorder interface {
	CreateMatchRecord(ctx context.Context, proposal MatchProposal) (string, error)
}

// Publisher delivers a notification to one player. Delivery failures never undo a match.
type Publisher interface {
	Publish(ctx context.Context, playerID string, notification MatchNotification) error
}

// FailedPairing a pairing whose players left the queue but whose record or
// notification step failed. Players are not re-queued automatically.
type FailedPairing struct {
	Player1ID  string    `json:"player1Id"`
	Player2ID  string    `json:"player2Id"`
	MatchID    string    `json:"matchId,omitempty"`
	Stage      string    `json:"stage"`
	Reason     string    `json:"reason"`
	OccurredAt time.Time `json:"occurredAt"`
}

// Failure stages
const (
	StageRecord = "record"
	StageNotify = "notify"
)

// ReviewSink receives failed pairings for operators.
type ReviewSink interface {
	ReportFailedPairing(ctx context.Context, failure FailedPairing) error
}

// QueueClaims shared record of queued players for instances behind one load
// balancer. A player holds one claim from enqueue until they leave the queue or
// their pairing is finished, so they cannot wait on two instances at once.
type QueueClaims interface {
	// Claim fails with ErrAlreadyQueued when the player already holds a claim.
	Claim(ctx context.Context, playerID string) error
	Release(ctx context.Context, playerID string) error
	// Refresh extends the claims this instance still holds.
	Refresh(ctx context.Context, playerIDs []string) error
}

// Option Matchmaker 옵션
type Option func(*Matchmaker)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(m *Matchmaker) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Matchmaker) {
		if now != nil {
			m.now = now
		}
	}
}

// WithPolicy replaces the threshold policy built from the configured thresholds.
func WithPolicy(policy CompatibilityPolicy) Option {
	return func(m *Matchmaker) {
		if policy != nil {
			m.policy = policy
		}
	}
}

// WithMeetingPointValidator plugs a validity check into the meeting point resolver.
func WithMeetingPointValidator(validate PointValidator) Option {
	return func(m *Matchmaker) {
		m.resolver = NewMeetingPointResolver(validate)
	}
}

// WithScheduleOffset delay between pairing and the proposed meeting time.
func WithScheduleOffset(offset time.Duration) Option {
	return func(m *Matchmaker) {
		if offset > 0 {
			m.scheduleOffset = offset
		}
	}
}

// WithReviewSink routes failed pairings to operators.
func WithReviewSink(sink ReviewSink) Option {
	return func(m *Matchmaker) {
		m.review = sink
	}
}

// WithPairingTimeout bounds the record and notify steps of one pairing. They run
// detached from the caller's context so a departing caller cannot strand a pair.
func WithPairingTimeout(timeout time.Duration) Option {
	return func(m *Matchmaker) {
		if timeout > 0 {
			m.pairingTimeout = timeout
		}
	}
}

// WithQueueClaims shares queue membership with other instances.
func WithQueueClaims(claims QueueClaims) Option {
	return func(m *Matchmaker) {
		m.claims = claims
	}
}

// Matchmaker 매칭 엔진. Request handlers and the sweep driver share one instance;
// mu serializes every access to the queue and its index.
//
// A pairing is found and both players are removed under mu. The players are then
// held in pending until their record and notifications are done, so no one can
// re-queue them in between without holding mu across I/O.
type Matchmaker struct {
	mu      sync.Mutex
	queue   *WaitQueue
	pending map[string]struct{}

	thresholds     Thresholds
	policy         CompatibilityPolicy
	resolver       *MeetingPointResolver
	recorder       MatchRecorder
	publisher      Publisher
	review         ReviewSink
	claims         QueueClaims
	scheduleOffset time.Duration
	pairingTimeout time.Duration
	logger         *zap.Logger
	now            func() time.Time
}

// NewMatchmaker Matchmaker 생성
func NewMatchmaker(thresholds Thresholds, recorder MatchRecorder, publisher Publisher, opts ...Option) (*Matchmaker, error) {
	if err := thresholds.Validate(); err != nil {
		return nil, err
	}
	if recorder == nil || publisher == nil {
		return nil, errors.New("matchmaker requires a match recorder and a publisher")
	}

	m := &Matchmaker{
		pending:        make(map[string]struct{}),
		thresholds:     thresholds,
		resolver:       NewMeetingPointResolver(nil),
		recorder:       recorder,
		publisher:      publisher,
		scheduleOffset: defaultScheduleOffset,
		pairingTimeout: defaultPairingTimeout,
		logger:         zap.NewNop(),
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.policy == nil {
		m.policy = NewThresholdPolicy(thresholds)
	}
	m.queue = NewWaitQueue(m.policy, m.now)

	return m, nil
}

// AddPlayerToQueue 플레이어를 매칭 큐에 추가. With queue claims configured the
// player's claim is taken first, outside mu, and given back if the local add fails.
func (m *Matchmaker) AddPlayerToQueue(ctx context.Context, profile Profile, latitude, longitude float64) error {
	if m.claims != nil {
		if err := ValidatePlayerID(profile.PlayerID); err != nil {
			return err
		}
		if err := m.claims.Claim(ctx, profile.PlayerID); err != nil {
			if !errors.Is(err, ErrAlreadyQueued) {
				err = fmt.Errorf("failed to claim queue slot: %w", err)
			}
			m.logger.Debug("Enqueue rejected",
				zap.String("playerId", profile.PlayerID),
				zap.Error(err))
			return err
		}
	}

	if err := m.addPlayer(profile, latitude, longitude); err != nil {
		m.releaseClaims(ctx, profile.PlayerID)
		return err
	}
	return nil
}

func (m *Matchmaker) addPlayer(profile Profile, latitude, longitude float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, busy := m.pending[profile.PlayerID]; busy {
		return fmt.Errorf("%w: match in progress", ErrAlreadyQueued)
	}

	player, err := m.queue.AddPlayer(profile, latitude, longitude)
	if err != nil {
		m.logger.Debug("Enqueue rejected",
			zap.String("playerId", profile.PlayerID),
			zap.Error(err))
		return err
	}

	m.logger.Info("Player queued",
		zap.String("playerId", player.ID),
		zap.Float64("rating", player.Rating),
		zap.Float64("ratingDeviation", player.RatingDeviation),
		zap.Int("queueSize", m.queue.Size()))
	return nil
}

// RemovePlayerFromQueue 큐에서 플레이어 제거 (취소)
func (m *Matchmaker) RemovePlayerFromQueue(ctx context.Context, playerID string) error {
	if err := m.removePlayer(playerID); err != nil {
		return err
	}
	m.releaseClaims(ctx, playerID)
	return nil
}

func (m *Matchmaker) removePlayer(playerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.queue.RemovePlayer(playerID); err != nil {
		m.logger.Debug("Dequeue rejected",
			zap.String("playerId", playerID),
			zap.Error(err))
		return err
	}

	m.logger.Info("Player left queue",
		zap.String("playerId", playerID),
		zap.Int("queueSize", m.queue.Size()))
	return nil
}

// IsPlayerInQueue 큐 포함 여부
func (m *Matchmaker) IsPlayerInQueue(playerID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.queue.Contains(playerID)
}

// QueueSize 대기 인원
func (m *Matchmaker) QueueSize() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.queue.Size()
}

// QueueSnapshot copies of the queued players in priority order.
func (m *Matchmaker) QueueSnapshot() []WaitingPlayer {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copyPlayers(m.queue.AllPlayers())
}

// Candidates ranked shortlist of queued players near playerID on every axis.
func (m *Matchmaker) Candidates(playerID string, limit int) ([]WaitingPlayer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	player, ok := m.queue.Get(playerID)
	if !ok {
		return nil, ErrNotQueued
	}
	return copyPlayers(m.queue.NearestCandidates(player, m.thresholds, limit)), nil
}

// RefreshClaims extends the queue claims of every queued or pending player.
func (m *Matchmaker) RefreshClaims(ctx context.Context) error {
	if m.claims == nil {
		return nil
	}

	m.mu.Lock()
	ids := make([]string, 0, m.queue.Size()+len(m.pending))
	for _, p := range m.queue.AllPlayers() {
		ids = append(ids, p.ID)
	}
	for id := range m.pending {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	if len(ids) == 0 {
		return nil
	}
	return m.claims.Refresh(ctx, ids)
}

// Now engine clock
func (m *Matchmaker) Now() time.Time {
	return m.now()
}

// AttemptMatch runs one matching pass and creates at most one match. Candidates
// are tried in priority order; each is paired with its first compatible partner
// that has a valid meeting point. Returns ErrNoMatchFound when nothing pairs.
//
// A cancelled ctx is checked before any player is touched. Once a pair is removed
// from the queue it stays removed, and the record and notify steps run on a
// detached context bounded by the pairing timeout. A failure to record the match
// is returned wrapped in ErrMatchRecordFailed and reported to the review sink; a
// failure to notify is only logged and reported.
func (m *Matchmaker) AttemptMatch(ctx context.Context) (*Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	a, b, point, ok := m.claimPair()
	if !ok {
		return nil, ErrNoMatchFound
	}
	defer m.release(ctx, a.ID, b.ID)

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.pairingTimeout)
	defer cancel()

	proposal := MatchProposal{
		Player1ID:    a.ID,
		Player2ID:    b.ID,
		MeetingPoint: point,
		ScheduledAt:  m.now().Add(m.scheduleOffset),
	}

	matchID, err := m.recorder.CreateMatchRecord(ctx, proposal)
	if err != nil {
		m.logger.Error("Failed to record match",
			zap.String("player1", a.ID),
			zap.String("player2", b.ID),
			zap.Error(err))
		m.reportFailure(ctx, FailedPairing{
			Player1ID: a.ID,
			Player2ID: b.ID,
			Stage:     StageRecord,
			Reason:    err.Error(),
		})
		return nil, fmt.Errorf("%w: %s/%s: %w", ErrMatchRecordFailed, a.ID, b.ID, err)
	}

	match := &Match{
		ID:       matchID,
		Proposal: proposal,
		Player1:  *a,
		Player2:  *b,
	}
	m.notify(ctx, match, a, b)
	m.notify(ctx, match, b, a)

	m.logger.Info("Match created",
		zap.String("matchId", matchID),
		zap.String("player1", a.ID),
		zap.String("player2", b.ID),
		zap.Float64("ratingDiff", a.Rating-b.Rating),
		zap.Float64("meetingLatitude", point.Latitude),
		zap.Float64("meetingLongitude", point.Longitude))

	return match, nil
}

// RunSweep calls AttemptMatch until no pair remains or maxMatches matches were
// made. Failed pairings do not stop the sweep; their errors are joined.
func (m *Matchmaker) RunSweep(ctx context.Context, maxMatches int) (int, error) {
	var (
		matched int
		errs    []error
	)
	for attempts := 0; attempts < maxMatches; attempts++ {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		_, err := m.AttemptMatch(ctx)
		if errors.Is(err, ErrNoMatchFound) {
			break
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		matched++
	}
	return matched, errors.Join(errs...)
}

// claimPair finds a pair and removes both players from the queue in one critical
// section, marking them pending.
func (m *Matchmaker) claimPair() (*WaitingPlayer, *WaitingPlayer, geo.Point, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	order := m.queue.AllPlayers()
	for _, candidate := range order {
		var (
			partner *WaitingPlayer
			point   geo.Point
		)
		m.queue.eachCompatible(candidate, order, func(p *WaitingPlayer) bool {
			pt, err := m.resolver.FindMeetingPoint(candidate, p)
			if err != nil {
				m.logger.Warn("Skipping pair without meeting point",
					zap.String("player1", candidate.ID),
					zap.String("player2", p.ID),
					zap.Error(err))
				return true
			}
			partner, point = p, pt
			return false
		})
		if partner == nil {
			continue
		}

		m.queue.removePair(candidate, partner)
		m.pending[candidate.ID] = struct{}{}
		m.pending[partner.ID] = struct{}{}
		return candidate, partner, point, true
	}
	return nil, nil, geo.Point{}, false
}

// release ends a pairing. Claims go first so a player re-queuing right after
// cannot trip over their own claim.
func (m *Matchmaker) release(ctx context.Context, ids ...string) {
	m.releaseClaims(ctx, ids...)

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.pending, id)
	}
}

func (m *Matchmaker) releaseClaims(ctx context.Context, ids ...string) {
	if m.claims == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), claimReleaseTimeout)
	defer cancel()

	for _, id := range ids {
		if err := m.claims.Release(ctx, id); err != nil {
			m.logger.Warn("Failed to release queue claim",
				zap.String("playerId", id),
				zap.Error(err))
		}
	}
}

func (m *Matchmaker) notify(ctx context.Context, match *Match, recipient, opponent *WaitingPlayer) {
	notification := MatchNotification{
		MatchID:                match.ID,
		MeetingLatitude:        match.Proposal.MeetingPoint.Latitude,
		MeetingLongitude:       match.Proposal.MeetingPoint.Longitude,
		OpponentDisplayName:    opponent.DisplayName,
		OpponentProfileSummary: opponent.Summary,
		ScheduledAt:            match.Proposal.ScheduledAt,
	}

	if err := m.publisher.Publish(ctx, recipient.ID, notification); err != nil {
		fields := []zap.Field{
			zap.String("matchId", match.ID),
			zap.String("playerId", recipient.ID),
			zap.Error(err),
		}
		if errors.Is(err, ErrRecipientOffline) {
			m.logger.Warn("Match notification not delivered, player offline", fields...)
		} else {
			m.logger.Error("Failed to publish match notification", fields...)
		}
		m.reportFailure(ctx, FailedPairing{
			Player1ID: match.Proposal.Player1ID,
			Player2ID: match.Proposal.Player2ID,
			MatchID:   match.ID,
			Stage:     StageNotify,
			Reason:    fmt.Sprintf("notify %s: %v", recipient.ID, err),
		})
	}
}

func (m *Matchmaker) reportFailure(ctx context.Context, failure FailedPairing) {
	if m.review == nil {
		return
	}
	failure.OccurredAt = m.now()
	if err := m.review.ReportFailedPairing(ctx, failure); err != nil {
		m.logger.Error("Failed to report pairing for review",
			zap.String("player1", failure.Player1ID),
			zap.String("player2", failure.Player2ID),
			zap.String("stage", failure.Stage),
			zap.Error(err))
	}
}

func copyPlayers(players []*WaitingPlayer) []WaitingPlayer {
	out := make([]WaitingPlayer, len(players))
	for i, p := range players {
		out[i] = *p
	}
	return out
}
