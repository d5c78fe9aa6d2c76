package sweeper

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jukebox-rooms/internal/errs"
	"github.com/jukebox-rooms/internal/testutil"
	"github.com/jukebox-rooms/pkg/models"
)

func TestSweepDeletesOnlyExpiredRooms(t *testing.T) {
	now := time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC)
	store := testutil.NewMemStore()
	store.SeedRoom(models.Room{Pin: "OLD1", CreatedAt: now.Add(-72 * time.Hour)}, "a", "b")
	store.SeedRoom(models.Room{Pin: "NEW1", CreatedAt: now.Add(-time.Hour)}, "c")
	store.SeedVote("OLD1", "alice", "b", models.VoteUp)
	store.SeedVote("NEW1", "alice", "c", models.VoteUp)

	s := New(store, 48*time.Hour)
	s.now = func() time.Time { return now }

	pins, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"OLD1"}, pins)

	_, err = store.GetRoom(context.Background(), "OLD1")
	assert.True(t, errs.IsNotFound(err))
	tracks, _ := store.ListTracks(context.Background(), "OLD1")
	assert.Empty(t, tracks)
	oldVotes, _ := store.ListVotes(context.Background(), "OLD1")
	assert.Empty(t, oldVotes)

	young, err := store.GetRoom(context.Background(), "NEW1")
	require.NoError(t, err)
	assert.Equal(t, "NEW1", young.Pin)
	youngVotes, _ := store.ListVotes(context.Background(), "NEW1")
	assert.Len(t, youngVotes, 1)
}

func TestSweepIsIdempotent(t *testing.T) {
	now := time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC)
	store := testutil.NewMemStore()
	store.SeedRoom(models.Room{Pin: "NEW1", CreatedAt: now.Add(-time.Hour)}, "c")

	s := New(store, 48*time.Hour)
	s.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		pins, err := s.Sweep(context.Background())
		require.NoError(t, err)
		assert.Empty(t, pins)
	}
	assert.Zero(t, store.WriteCount())
}
