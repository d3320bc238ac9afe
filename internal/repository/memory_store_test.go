package repository

import (
	"context"
	"testing"
	"time"

	"github.com/rl-arena/rl-arena-matchmaker/internal/matchmaking"
	"github.com/rl-arena/rl-arena-matchmaker/internal/models"
	"github.com/rl-arena/rl-arena-matchmaker/pkg/distributed"
	"github.com/rl-arena/rl-arena-matchmaker/pkg/geo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryMatchStore_CreateAndFind(t *testing.T) {
	store := NewMemoryMatchStore()
	ctx := context.Background()
	scheduled := time.Date(2024, 3, 1, 12, 5, 0, 0, time.UTC)

	id, err := store.CreateMatchRecord(ctx, matchmaking.MatchProposal{
		Player1ID:    "alice",
		Player2ID:    "bob",
		MeetingPoint: geo.Point{Latitude: 37.5, Longitude: 127.0},
		ScheduledAt:  scheduled,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	match, err := store.FindByID(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Equal(t, "alice", match.Player1ID)
	assert.Equal(t, "bob", match.Player2ID)
	assert.Equal(t, 37.5, match.MeetingLatitude)
	assert.Equal(t, models.MatchStatusScheduled, match.Status)
	assert.True(t, match.ScheduledAt.Equal(scheduled))

	missing, err := store.FindByID(ctx, "nope")
	assert.NoError(t, err)
	assert.Nil(t, missing)

	id2, err := store.CreateMatchRecord(ctx, matchmaking.MatchProposal{Player1ID: "carol", Player2ID: "bob"})
	require.NoError(t, err)
	assert.NotEqual(t, id, id2)

	byBob, err := store.FindByPlayer(ctx, "bob", 10)
	require.NoError(t, err)
	assert.Len(t, byBob, 2)

	byAlice, err := store.FindByPlayer(ctx, "alice", 10)
	require.NoError(t, err)
	assert.Len(t, byAlice, 1)
}

func TestMemoryReviewStore(t *testing.T) {
	store := NewMemoryReviewStore(2)
	ctx := context.Background()

	for _, p := range []string{"a", "b", "c"} {
		require.NoError(t, store.ReportFailedPairing(ctx, matchmaking.FailedPairing{
			Player1ID: p,
			Player2ID: "x",
			Stage:     matchmaking.StageNotify,
		}))
	}

	size, err := store.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), size, "oldest trimmed")

	items, err := store.Pending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "c", items[0].Player1ID)
	assert.Equal(t, "b", items[1].Player1ID)

	resolved, err := store.Resolve(ctx, items[1].ID)
	require.NoError(t, err)
	assert.Equal(t, "b", resolved.Player1ID)

	_, err = store.Resolve(ctx, items[1].ID)
	assert.ErrorIs(t, err, distributed.ErrReviewItemNotFound)

	empty, err := store.Pending(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
