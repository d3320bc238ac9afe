package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rl-arena/rl-arena-matchmaker/internal/matchmaking"
	"github.com/rl-arena/rl-arena-matchmaker/internal/models"
	"github.com/rl-arena/rl-arena-matchmaker/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu       sync.Mutex
	received map[string]matchmaking.MatchNotification
}

func (p *recordingPublisher) Publish(_ context.Context, playerID string, n matchmaking.MatchNotification) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.received == nil {
		p.received = map[string]matchmaking.MatchNotification{}
	}
	p.received[playerID] = n
	return nil
}

type stubProfiles struct {
	profiles map[string]*models.PlayerProfile
	err      error
}

func (s *stubProfiles) FindByID(_ context.Context, id string) (*models.PlayerProfile, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.profiles[id], nil
}

var testThresholds = matchmaking.Thresholds{
	MaxRatingDiff:    300,
	MaxDeviationDiff: 100,
	MaxDistanceKm:    2,
	MaxQueueWait:     300 * time.Second,
}

func newTestQueueService(t *testing.T, profiles ProfileSource) (*QueueService, *repository.MemoryMatchStore, *recordingPublisher) {
	t.Helper()
	store := repository.NewMemoryMatchStore()
	publisher := &recordingPublisher{}
	m, err := matchmaking.NewMatchmaker(testThresholds, store, publisher)
	require.NoError(t, err)
	return NewQueueService(m, profiles, ProfileDefaults{Rating: 1500, RatingDeviation: 350}, nil), store, publisher
}

func ptr(f float64) *float64 { return &f }

func TestQueueService_EnqueueFromRequest(t *testing.T) {
	svc, _, _ := newTestQueueService(t, nil)

	entry, err := svc.Enqueue(context.Background(), &models.EnqueueRequest{
		PlayerID:  "alice",
		Latitude:  ptr(37.5),
		Longitude: ptr(127.0),
		Rating:    ptr(1620),
	})
	require.NoError(t, err)
	assert.Equal(t, "alice", entry.PlayerID)
	assert.Equal(t, 1620.0, entry.Rating)
	assert.Equal(t, 350.0, entry.RatingDeviation, "deviation falls back to the default")
	assert.Equal(t, "alice", entry.DisplayName)

	status, err := svc.Status("alice")
	require.NoError(t, err)
	assert.True(t, status.Queued)
	assert.Equal(t, 1, svc.QueueSize())
}

func TestQueueService_StoredProfileWins(t *testing.T) {
	profiles := &stubProfiles{profiles: map[string]*models.PlayerProfile{
		"alice": {ID: "alice", DisplayName: "Alice", Summary: "likes chess", Rating: 1800, RatingDeviation: 80},
	}}
	svc, _, _ := newTestQueueService(t, profiles)

	entry, err := svc.Enqueue(context.Background(), &models.EnqueueRequest{
		PlayerID:  "alice",
		Latitude:  ptr(0),
		Longitude: ptr(0),
		Rating:    ptr(1000),
	})
	require.NoError(t, err)
	assert.Equal(t, 1800.0, entry.Rating)
	assert.Equal(t, 80.0, entry.RatingDeviation)
	assert.Equal(t, "Alice", entry.DisplayName)
}

func TestQueueService_ProfileSourceFailure(t *testing.T) {
	svc, _, _ := newTestQueueService(t, &stubProfiles{err: errors.New("db down")})

	_, err := svc.Enqueue(context.Background(), &models.EnqueueRequest{
		PlayerID:  "alice",
		Latitude:  ptr(0),
		Longitude: ptr(0),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
	assert.Equal(t, 0, svc.QueueSize())
}

func TestQueueService_EnqueueErrors(t *testing.T) {
	svc, _, _ := newTestQueueService(t, nil)
	ctx := context.Background()

	tests := []struct {
		name    string
		req     *models.EnqueueRequest
		wantErr error
	}{
		{"invalid id", &models.EnqueueRequest{PlayerID: "bad id!", Latitude: ptr(0), Longitude: ptr(0)}, matchmaking.ErrInvalidPlayerID},
		{"missing coordinates", &models.EnqueueRequest{PlayerID: "bob"}, ErrInvalidInput},
		{"latitude out of range", &models.EnqueueRequest{PlayerID: "bob", Latitude: ptr(91), Longitude: ptr(0)}, matchmaking.ErrInvalidCoordinates},
		{"negative deviation", &models.EnqueueRequest{PlayerID: "bob", Latitude: ptr(0), Longitude: ptr(0), RatingDeviation: ptr(-1)}, matchmaking.ErrInvalidRating},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Enqueue(ctx, tt.req)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	_, err := svc.Enqueue(ctx, &models.EnqueueRequest{PlayerID: "carol", Latitude: ptr(0), Longitude: ptr(0)})
	require.NoError(t, err)
	_, err = svc.Enqueue(ctx, &models.EnqueueRequest{PlayerID: "carol", Latitude: ptr(0), Longitude: ptr(0)})
	assert.ErrorIs(t, err, matchmaking.ErrAlreadyQueued)
}

func TestQueueService_Dequeue(t *testing.T) {
	svc, _, _ := newTestQueueService(t, nil)

	assert.ErrorIs(t, svc.Dequeue(context.Background(), "alice"), matchmaking.ErrNotQueued)

	_, err := svc.Enqueue(context.Background(), &models.EnqueueRequest{PlayerID: "alice", Latitude: ptr(0), Longitude: ptr(0)})
	require.NoError(t, err)
	require.NoError(t, svc.Dequeue(context.Background(), "alice"))

	status, err := svc.Status("alice")
	require.NoError(t, err)
	assert.False(t, status.Queued)
}

func TestQueueService_Sweep(t *testing.T) {
	svc, store, publisher := newTestQueueService(t, nil)
	ctx := context.Background()

	result, err := svc.Sweep(ctx)
	require.NoError(t, err)
	assert.False(t, result.Matched)
	assert.Nil(t, result.Match)

	_, err = svc.Enqueue(ctx, &models.EnqueueRequest{PlayerID: "alice", Latitude: ptr(0), Longitude: ptr(0), Rating: ptr(1500), RatingDeviation: ptr(50), DisplayName: "Alice"})
	require.NoError(t, err)
	_, err = svc.Enqueue(ctx, &models.EnqueueRequest{PlayerID: "bob", Latitude: ptr(0), Longitude: ptr(0.001), Rating: ptr(1550), RatingDeviation: ptr(60), DisplayName: "Bob"})
	require.NoError(t, err)

	snapshot := svc.Snapshot()
	assert.Equal(t, 2, snapshot.Size)

	candidates, err := svc.Candidates("alice", 0)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "bob", candidates[0].PlayerID)

	result, err = svc.Sweep(ctx)
	require.NoError(t, err)
	require.True(t, result.Matched)
	require.NotNil(t, result.Match)
	assert.ElementsMatch(t, []string{"alice", "bob"}, []string{result.Match.Player1ID, result.Match.Player2ID})
	assert.Equal(t, models.MatchStatusScheduled, result.Match.Status)
	assert.InDelta(t, 0.0005, result.Match.MeetingLongitude, 1e-9)

	stored, err := store.FindByID(ctx, result.Match.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)

	assert.Equal(t, 0, svc.QueueSize())
	assert.Equal(t, "Bob", publisher.received["alice"].OpponentDisplayName)
	assert.Equal(t, "Alice", publisher.received["bob"].OpponentDisplayName)

	_, err = svc.Candidates("alice", 5)
	assert.ErrorIs(t, err, matchmaking.ErrNotQueued)
}

func TestQueueService_SweepWithCancelledRequest(t *testing.T) {
	svc, _, _ := newTestQueueService(t, nil)

	for _, id := range []string{"alice", "bob"} {
		_, err := svc.Enqueue(context.Background(), &models.EnqueueRequest{PlayerID: id, Latitude: ptr(0), Longitude: ptr(0)})
		require.NoError(t, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Sweep(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, svc.QueueSize(), "a departed caller must not drop a compatible pair")

	result, err := svc.Sweep(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Matched)
}
