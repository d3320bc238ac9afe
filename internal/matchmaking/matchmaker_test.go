package matchmaking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rl-arena/rl-arena-matchmaker/pkg/geo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type acceptAll struct{}

func (acceptAll) IsGoodMatch(a, b *WaitingPlayer, _ time.Time) bool { return true }

func newTestMatchmaker(t *testing.T, recorder MatchRecorder, publisher Publisher, opts ...Option) (*Matchmaker, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	m, err := NewMatchmaker(referenceThresholds, recorder, publisher, opts...)
	require.NoError(t, err)
	return m, clock
}

func TestNewMatchmaker_Validation(t *testing.T) {
	_, err := NewMatchmaker(Thresholds{}, &fakeRecorder{}, &fakePublisher{})
	assert.ErrorIs(t, err, ErrInvalidThresholds)

	_, err = NewMatchmaker(referenceThresholds, nil, &fakePublisher{})
	assert.Error(t, err)

	_, err = NewMatchmaker(referenceThresholds, &fakeRecorder{}, nil)
	assert.Error(t, err)
}

func TestMatchmaker_EndToEnd(t *testing.T) {
	recorder := &fakeRecorder{}
	publisher := &fakePublisher{}
	m, clock := newTestMatchmaker(t, recorder, publisher)

	require.NoError(t, m.AddPlayerToQueue(context.Background(), profile("A", 1500, 50), 0, 0))
	require.NoError(t, m.AddPlayerToQueue(context.Background(), profile("B", 1550, 60), 0, 0.001))
	assert.Equal(t, 2, m.QueueSize())

	match, err := m.AttemptMatch(context.Background())
	require.NoError(t, err)
	require.NotNil(t, match)

	assert.Equal(t, "match-1", match.ID)
	assert.ElementsMatch(t, []string{"A", "B"}, []string{match.Proposal.Player1ID, match.Proposal.Player2ID})
	assert.InDelta(t, 0, match.Proposal.MeetingPoint.Latitude, 1e-9)
	assert.InDelta(t, 0.0005, match.Proposal.MeetingPoint.Longitude, 1e-9)
	assert.Equal(t, clock.Now().Add(defaultScheduleOffset), match.Proposal.ScheduledAt)

	assert.Equal(t, 0, m.QueueSize())
	assert.False(t, m.IsPlayerInQueue("A"))
	assert.False(t, m.IsPlayerInQueue("B"))
	assert.Equal(t, 1, recorder.count())

	toA := publisher.forPlayer("A")
	toB := publisher.forPlayer("B")
	require.Len(t, toA, 1)
	require.Len(t, toB, 1)

	assert.Equal(t, "match-1", toA[0].MatchID)
	assert.Equal(t, "name-B", toA[0].OpponentDisplayName)
	assert.Equal(t, "summary-B", toA[0].OpponentProfileSummary)
	assert.Equal(t, "name-A", toB[0].OpponentDisplayName)
	assert.Equal(t, "summary-A", toB[0].OpponentProfileSummary)
	assert.Equal(t, toA[0].MeetingLatitude, toB[0].MeetingLatitude)
	assert.Equal(t, toA[0].MeetingLongitude, toB[0].MeetingLongitude)
	assert.Equal(t, toA[0].ScheduledAt, toB[0].ScheduledAt)
}

func TestMatchmaker_NoMatchWithSinglePlayer(t *testing.T) {
	recorder := &fakeRecorder{}
	m, _ := newTestMatchmaker(t, recorder, &fakePublisher{})

	require.NoError(t, m.AddPlayerToQueue(context.Background(), profile("A", 1500, 50), 0, 0))

	match, err := m.AttemptMatch(context.Background())
	assert.Nil(t, match)
	assert.ErrorIs(t, err, ErrNoMatchFound)
	assert.Equal(t, 1, m.QueueSize())
	assert.Equal(t, 0, recorder.count())
}

func TestMatchmaker_DuplicateAndMissingPlayers(t *testing.T) {
	m, _ := newTestMatchmaker(t, &fakeRecorder{}, &fakePublisher{})

	require.NoError(t, m.AddPlayerToQueue(context.Background(), profile("A", 1500, 50), 0, 0))
	assert.ErrorIs(t, m.AddPlayerToQueue(context.Background(), profile("A", 1500, 50), 0, 0), ErrAlreadyQueued)
	assert.Equal(t, 1, m.QueueSize())

	assert.ErrorIs(t, m.RemovePlayerFromQueue(context.Background(), "nobody"), ErrNotQueued)
	require.NoError(t, m.RemovePlayerFromQueue(context.Background(), "A"))
	assert.ErrorIs(t, m.RemovePlayerFromQueue(context.Background(), "A"), ErrNotQueued)

	_, err := m.Candidates("A", 5)
	assert.ErrorIs(t, err, ErrNotQueued)
}

func TestMatchmaker_IncompatiblePlayersStayQueued(t *testing.T) {
	m, clock := newTestMatchmaker(t, &fakeRecorder{}, &fakePublisher{})

	require.NoError(t, m.AddPlayerToQueue(context.Background(), profile("A", 1500, 50), 0, 0))
	require.NoError(t, m.AddPlayerToQueue(context.Background(), profile("B", 2000, 50), 0, 0))

	_, err := m.AttemptMatch(context.Background())
	assert.ErrorIs(t, err, ErrNoMatchFound)
	assert.Equal(t, 2, m.QueueSize())

	clock.Advance(referenceThresholds.MaxQueueWait)
	match, err := m.AttemptMatch(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, match.ID)
	assert.Equal(t, 0, m.QueueSize())
}

func TestMatchmaker_SkipsPairWithoutMeetingPoint(t *testing.T) {
	recorder := &fakeRecorder{}
	m, _ := newTestMatchmaker(t, recorder, &fakePublisher{},
		WithPolicy(acceptAll{}),
		WithMeetingPointValidator(func(p geo.Point) bool { return p.Longitude <= 5 }))

	require.NoError(t, m.AddPlayerToQueue(context.Background(), profile("top", 1600, 50), 0, 0))
	require.NoError(t, m.AddPlayerToQueue(context.Background(), profile("remote", 1550, 50), 0, 20))
	require.NoError(t, m.AddPlayerToQueue(context.Background(), profile("local", 1500, 50), 0, 0))

	match, err := m.AttemptMatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "top", match.Proposal.Player1ID)
	assert.Equal(t, "local", match.Proposal.Player2ID)
	assert.True(t, m.IsPlayerInQueue("remote"))

	_, err = m.AttemptMatch(context.Background())
	assert.ErrorIs(t, err, ErrNoMatchFound)
}

func TestMatchmaker_RecordFailure(t *testing.T) {
	storeErr := errors.New("db unavailable")
	recorder := &fakeRecorder{err: storeErr}
	publisher := &fakePublisher{}
	sink := &fakeReviewSink{}
	m, _ := newTestMatchmaker(t, recorder, publisher, WithReviewSink(sink))

	require.NoError(t, m.AddPlayerToQueue(context.Background(), profile("A", 1500, 50), 0, 0))
	require.NoError(t, m.AddPlayerToQueue(context.Background(), profile("B", 1510, 50), 0, 0))

	match, err := m.AttemptMatch(context.Background())
	assert.Nil(t, match)
	assert.ErrorIs(t, err, ErrMatchRecordFailed)
	assert.ErrorIs(t, err, storeErr)

	assert.Equal(t, 0, m.QueueSize(), "players are not re-queued")
	assert.Empty(t, publisher.forPlayer("A"))
	assert.Empty(t, publisher.forPlayer("B"))

	require.Len(t, sink.failures, 1)
	assert.Equal(t, StageRecord, sink.failures[0].Stage)
	assert.ElementsMatch(t, []string{"A", "B"}, []string{sink.failures[0].Player1ID, sink.failures[0].Player2ID})

	// the pending reservation is gone once the attempt returns
	assert.NoError(t, m.AddPlayerToQueue(context.Background(), profile("A", 1500, 50), 0, 0))
}

func TestMatchmaker_PublishFailureKeepsMatch(t *testing.T) {
	recorder := &fakeRecorder{}
	publisher := &fakePublisher{failFor: map[string]bool{"A": true}}
	sink := &fakeReviewSink{}
	m, _ := newTestMatchmaker(t, recorder, publisher, WithReviewSink(sink))

	require.NoError(t, m.AddPlayerToQueue(context.Background(), profile("A", 1500, 50), 0, 0))
	require.NoError(t, m.AddPlayerToQueue(context.Background(), profile("B", 1510, 50), 0, 0))

	match, err := m.AttemptMatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "match-1", match.ID)
	assert.Equal(t, 1, recorder.count())

	assert.Empty(t, publisher.forPlayer("A"))
	require.Len(t, publisher.forPlayer("B"), 1)

	require.Len(t, sink.failures, 1)
	assert.Equal(t, StageNotify, sink.failures[0].Stage)
	assert.Equal(t, "match-1", sink.failures[0].MatchID)
}

func TestMatchmaker_OfflineRecipientIsWarning(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	publisher := &offlinePublisher{offline: "A"}
	sink := &fakeReviewSink{}
	m, _ := newTestMatchmaker(t, &fakeRecorder{}, publisher,
		WithReviewSink(sink), WithLogger(zap.New(core)))

	require.NoError(t, m.AddPlayerToQueue(context.Background(), profile("A", 1500, 50), 0, 0))
	require.NoError(t, m.AddPlayerToQueue(context.Background(), profile("B", 1510, 50), 0, 0))

	_, err := m.AttemptMatch(context.Background())
	require.NoError(t, err)

	offline := logs.FilterMessage("Match notification not delivered, player offline").All()
	require.Len(t, offline, 1)
	assert.Equal(t, zapcore.WarnLevel, offline[0].Level)
	for _, entry := range logs.All() {
		assert.NotEqual(t, zapcore.ErrorLevel, entry.Level, entry.Message)
	}

	// still surfaced to operators
	require.Len(t, sink.failures, 1)
	assert.Equal(t, StageNotify, sink.failures[0].Stage)
}

// offlinePublisher has no connection for one player
type offlinePublisher struct {
	offline string
}

func (p *offlinePublisher) Publish(_ context.Context, playerID string, _ MatchNotification) error {
	if playerID == p.offline {
		return fmt.Errorf("%w: %s", ErrRecipientOffline, playerID)
	}
	return nil
}

func TestMatchmaker_CancelledContextKeepsPlayersQueued(t *testing.T) {
	recorder := &contextRecorder{}
	m, _ := newTestMatchmaker(t, recorder, &fakePublisher{})

	require.NoError(t, m.AddPlayerToQueue(context.Background(), profile("A", 1500, 50), 0, 0))
	require.NoError(t, m.AddPlayerToQueue(context.Background(), profile("B", 1510, 50), 0, 0))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	match, err := m.AttemptMatch(ctx)
	assert.Nil(t, match)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrMatchRecordFailed)

	assert.Equal(t, 2, m.QueueSize())
	assert.True(t, m.IsPlayerInQueue("A"))
	assert.True(t, m.IsPlayerInQueue("B"))
	assert.Equal(t, 0, recorder.count())

	match, err = m.AttemptMatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "match-1", match.ID)
}

func TestMatchmaker_CallerCancelDuringRecord(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// the caller goes away while the record is being written
	recorder := &contextRecorder{onRecord: cancel}
	publisher := &fakePublisher{}
	sink := &fakeReviewSink{}
	m, _ := newTestMatchmaker(t, recorder, publisher,
		WithReviewSink(sink), WithPairingTimeout(time.Second))

	require.NoError(t, m.AddPlayerToQueue(context.Background(), profile("A", 1500, 50), 0, 0))
	require.NoError(t, m.AddPlayerToQueue(context.Background(), profile("B", 1510, 50), 0, 0))

	match, err := m.AttemptMatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, "match-1", match.ID)
	assert.True(t, recorder.hadDeadline, "record step is bounded by the pairing timeout")

	assert.Len(t, publisher.forPlayer("A"), 1)
	assert.Len(t, publisher.forPlayer("B"), 1)
	assert.Empty(t, sink.failures)
}

func TestMatchmaker_QueueClaims(t *testing.T) {
	claims := newFakeClaims()
	m, _ := newTestMatchmaker(t, &fakeRecorder{}, &fakePublisher{}, WithQueueClaims(claims))
	ctx := context.Background()

	// queued on another instance
	require.NoError(t, claims.Claim(ctx, "elsewhere"))
	assert.ErrorIs(t, m.AddPlayerToQueue(ctx, profile("elsewhere", 1500, 50), 0, 0), ErrAlreadyQueued)
	assert.False(t, m.IsPlayerInQueue("elsewhere"))

	// rejected locally: the claim is given back
	assert.ErrorIs(t, m.AddPlayerToQueue(ctx, profile("A", 1500, 50), 95, 0), ErrInvalidCoordinates)
	assert.False(t, claims.isHeld("A"))
	assert.ErrorIs(t, m.AddPlayerToQueue(ctx, profile("bad id", 1500, 50), 0, 0), ErrInvalidPlayerID)

	require.NoError(t, m.AddPlayerToQueue(ctx, profile("A", 1500, 50), 0, 0))
	assert.True(t, claims.isHeld("A"))
	assert.ErrorIs(t, m.AddPlayerToQueue(ctx, profile("A", 1500, 50), 0, 0), ErrAlreadyQueued)
	assert.True(t, claims.isHeld("A"), "duplicate enqueue keeps the existing claim")

	require.NoError(t, m.RemovePlayerFromQueue(ctx, "A"))
	assert.False(t, claims.isHeld("A"))

	// a finished pairing gives both claims back
	require.NoError(t, m.AddPlayerToQueue(ctx, profile("A", 1500, 50), 0, 0))
	require.NoError(t, m.AddPlayerToQueue(ctx, profile("B", 1510, 50), 0, 0))
	_, err := m.AttemptMatch(ctx)
	require.NoError(t, err)
	assert.False(t, claims.isHeld("A"))
	assert.False(t, claims.isHeld("B"))
	assert.NoError(t, m.AddPlayerToQueue(ctx, profile("A", 1500, 50), 0, 0))

	// claim store down
	claims.err = errors.New("redis down")
	err = m.AddPlayerToQueue(ctx, profile("C", 1500, 50), 0, 0)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrAlreadyQueued)
	assert.False(t, m.IsPlayerInQueue("C"))
}

// blockingRecorder parks inside CreateMatchRecord until proceed is closed.
type blockingRecorder struct {
	entered chan struct{}
	proceed chan struct{}
}

func (r *blockingRecorder) CreateMatchRecord(ctx context.Context, _ MatchProposal) (string, error) {
	close(r.entered)
	select {
	case <-r.proceed:
		return "match-blocked", nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func TestMatchmaker_PendingPlayersCannotRequeue(t *testing.T) {
	recorder := &blockingRecorder{entered: make(chan struct{}), proceed: make(chan struct{})}
	publisher := &fakePublisher{}
	m, _ := newTestMatchmaker(t, recorder, publisher)

	require.NoError(t, m.AddPlayerToQueue(context.Background(), profile("A", 1500, 50), 0, 0))
	require.NoError(t, m.AddPlayerToQueue(context.Background(), profile("B", 1510, 50), 0, 0))

	done := make(chan error, 1)
	go func() {
		_, err := m.AttemptMatch(context.Background())
		done <- err
	}()

	<-recorder.entered
	assert.False(t, m.IsPlayerInQueue("A"))
	assert.ErrorIs(t, m.AddPlayerToQueue(context.Background(), profile("A", 1500, 50), 0, 0), ErrAlreadyQueued)
	assert.ErrorIs(t, m.RemovePlayerFromQueue(context.Background(), "A"), ErrNotQueued)
	assert.Equal(t, 0, m.QueueSize())

	close(recorder.proceed)
	require.NoError(t, <-done)

	require.Len(t, publisher.forPlayer("A"), 1)
	assert.NoError(t, m.AddPlayerToQueue(context.Background(), profile("A", 1500, 50), 0, 0))
}

func TestMatchmaker_RunSweep(t *testing.T) {
	recorder := &fakeRecorder{}
	m, _ := newTestMatchmaker(t, recorder, &fakePublisher{})

	for i := 0; i < 6; i++ {
		require.NoError(t, m.AddPlayerToQueue(context.Background(), profile(fmt.Sprintf("p%d", i), 1500, 50), 0, 0))
	}

	matched, err := m.RunSweep(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, 2, matched)
	assert.Equal(t, 2, m.QueueSize())

	matched, err = m.RunSweep(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, matched)
	assert.Equal(t, 0, m.QueueSize())
	assert.Equal(t, 3, recorder.count())
}

func TestMatchmaker_RunSweepJoinsErrors(t *testing.T) {
	recorder := &fakeRecorder{err: errors.New("boom")}
	m, _ := newTestMatchmaker(t, recorder, &fakePublisher{})

	for i := 0; i < 4; i++ {
		require.NoError(t, m.AddPlayerToQueue(context.Background(), profile(fmt.Sprintf("p%d", i), 1500, 50), 0, 0))
	}

	matched, err := m.RunSweep(context.Background(), 10)
	assert.Equal(t, 0, matched)
	assert.ErrorIs(t, err, ErrMatchRecordFailed)
	assert.Equal(t, 0, m.QueueSize())
}

func TestMatchmaker_RunSweepStopsOnCancelledContext(t *testing.T) {
	m, _ := newTestMatchmaker(t, &fakeRecorder{}, &fakePublisher{})
	require.NoError(t, m.AddPlayerToQueue(context.Background(), profile("A", 1500, 50), 0, 0))
	require.NoError(t, m.AddPlayerToQueue(context.Background(), profile("B", 1500, 50), 0, 0))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	matched, err := m.RunSweep(ctx, 5)
	assert.Equal(t, 0, matched)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, m.QueueSize())
}

func TestMatchmaker_ConcurrentMatchesAreExactlyOnce(t *testing.T) {
	recorder := &fakeRecorder{}
	publisher := &fakePublisher{}
	m, _ := newTestMatchmaker(t, recorder, publisher)

	const players = 200
	var (
		wg      sync.WaitGroup
		removed sync.Map
	)

	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := w; i < players; i += 4 {
				assert.NoError(t, m.AddPlayerToQueue(context.Background(), profile(fmt.Sprintf("p%d", i), 1500, 50), 0, 0))
			}
		}(w)
	}
	for w := 0; w < 2; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := w * 2; i < players; i += 8 {
				id := fmt.Sprintf("p%d", i)
				if err := m.RemovePlayerFromQueue(context.Background(), id); err == nil {
					removed.Store(id, true)
				}
			}
		}(w)
	}
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				_, err := m.AttemptMatch(context.Background())
				if err != nil {
					assert.ErrorIs(t, err, ErrNoMatchFound)
				}
			}
		}()
	}
	wg.Wait()

	matched := map[string]int{}
	for _, p := range recorder.proposals {
		matched[p.Player1ID]++
		matched[p.Player2ID]++
	}

	removedCount := 0
	removed.Range(func(key, _ any) bool {
		removedCount++
		assert.Zero(t, matched[key.(string)], "%s dequeued and matched", key)
		assert.Empty(t, publisher.forPlayer(key.(string)))
		return true
	})

	for id, n := range matched {
		assert.Equal(t, 1, n, "%s matched more than once", id)
		assert.Len(t, publisher.forPlayer(id), 1)
	}

	assert.Equal(t, players, len(matched)+removedCount+m.QueueSize())
}

func TestMatchmaker_RemoveRacesMatch(t *testing.T) {
	for round := 0; round < 50; round++ {
		publisher := &fakePublisher{}
		m, _ := newTestMatchmaker(t, &fakeRecorder{}, publisher)
		require.NoError(t, m.AddPlayerToQueue(context.Background(), profile("a", 1500, 50), 0, 0))
		require.NoError(t, m.AddPlayerToQueue(context.Background(), profile("b", 1500, 50), 0, 0))

		var (
			wg       sync.WaitGroup
			removeOK bool
			matchErr error
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			removeOK = m.RemovePlayerFromQueue(context.Background(), "a") == nil
		}()
		go func() {
			defer wg.Done()
			_, matchErr = m.AttemptMatch(context.Background())
		}()
		wg.Wait()

		notified := len(publisher.forPlayer("a")) > 0
		assert.False(t, removeOK && notified, "round %d: a dequeued and notified", round)
		assert.True(t, removeOK || notified, "round %d: a neither dequeued nor notified", round)
		if removeOK {
			assert.ErrorIs(t, matchErr, ErrNoMatchFound)
		}
	}
}

func TestMatchmaker_CandidatesAndSnapshot(t *testing.T) {
	m, clock := newTestMatchmaker(t, &fakeRecorder{}, &fakePublisher{})

	require.NoError(t, m.AddPlayerToQueue(context.Background(), profile("A", 1500, 50), 0, 0))
	clock.Advance(time.Second)
	require.NoError(t, m.AddPlayerToQueue(context.Background(), profile("B", 1520, 50), 0, 0.001))
	require.NoError(t, m.AddPlayerToQueue(context.Background(), profile("C", 2500, 50), 0, 0))

	candidates, err := m.Candidates("A", 10)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "B", candidates[0].ID)

	snapshot := m.QueueSnapshot()
	require.Len(t, snapshot, 3)
	assert.Equal(t, "C", snapshot[0].ID)

	snapshot[0].Rating = 0
	assert.Equal(t, "C", m.QueueSnapshot()[0].ID, "snapshot is a copy")
}
