package credentials

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jukebox-rooms/internal/core"
	"github.com/jukebox-rooms/internal/testutil"
	"github.com/jukebox-rooms/pkg/models"
)

type fakeCache struct {
	owners []string
}

func (f *fakeCache) RefreshToken(ctx context.Context, userID, accessToken, refreshToken string, expiresAt time.Time) error {
	f.owners = append(f.owners, userID)
	return nil
}

func TestRefreshRoomUpdatesEveryRoomOfOwner(t *testing.T) {
	store := testutil.NewMemStore()
	store.SeedRoom(models.Room{Pin: "AAAA", OwnerID: "spotify-user", AccessToken: "old", RefreshToken: "r1", CurrentIndex: 0})
	store.SeedRoom(models.Room{Pin: "BBBB", OwnerID: "spotify-user", AccessToken: "stale", RefreshToken: "r1", CurrentIndex: -1})
	store.SeedRoom(models.Room{Pin: "CCCC", OwnerID: "someone-else", AccessToken: "theirs", CurrentIndex: 0})

	auth := &core.MockAuthProvider{}
	auth.On("Refresh", mock.Anything, "old", "r1").Return(&core.TokenPair{AccessToken: "new", RefreshToken: "r2"}, nil)
	player := &core.MockPlayer{}
	player.On("GetProfile", mock.Anything, "new").Return(&core.Profile{ID: "spotify-user"}, nil)
	cache := &fakeCache{}

	refresher := NewRefresher(store, auth, player, store, cache)
	require.NoError(t, refresher.RefreshRoom(context.Background(), models.Room{Pin: "AAAA", AccessToken: "old", RefreshToken: "r1"}))

	for _, pin := range []string{"AAAA", "BBBB"} {
		room, err := store.GetRoom(context.Background(), pin)
		require.NoError(t, err)
		assert.Equal(t, "new", room.AccessToken)
		assert.Equal(t, "r2", room.RefreshToken)
	}
	other, err := store.GetRoom(context.Background(), "CCCC")
	require.NoError(t, err)
	assert.Equal(t, "theirs", other.AccessToken)
	assert.Equal(t, []string{"spotify-user"}, cache.owners)
}

func TestTickOnlyRefreshesInProgressRooms(t *testing.T) {
	store := testutil.NewMemStore()
	store.SeedRoom(models.Room{Pin: "AAAA", OwnerID: "u1", AccessToken: "a1", RefreshToken: "r1", CurrentIndex: 0})
	store.SeedRoom(models.Room{Pin: "BBBB", OwnerID: "u2", AccessToken: "a2", RefreshToken: "r2", CurrentIndex: -1})

	auth := &core.MockAuthProvider{}
	auth.On("Refresh", mock.Anything, "a1", "r1").Return(&core.TokenPair{AccessToken: "a1-new"}, nil).Once()
	player := &core.MockPlayer{}
	player.On("GetProfile", mock.Anything, "a1-new").Return(&core.Profile{ID: "u1"}, nil).Once()

	require.NoError(t, NewRefresher(store, auth, player, store, nil).Tick(context.Background()))

	auth.AssertExpectations(t)
	auth.AssertNotCalled(t, "Refresh", mock.Anything, "a2", "r2")
	room, err := store.GetRoom(context.Background(), "AAAA")
	require.NoError(t, err)
	assert.Equal(t, "a1-new", room.AccessToken)
	assert.Equal(t, "r1", room.RefreshToken)
}

func TestRefreshFailureLeavesTokens(t *testing.T) {
	store := testutil.NewMemStore()
	store.SeedRoom(models.Room{Pin: "AAAA", OwnerID: "u1", AccessToken: "a1", RefreshToken: "r1", CurrentIndex: 0})

	auth := &core.MockAuthProvider{}
	auth.On("Refresh", mock.Anything, "a1", "r1").Return(nil, errors.New("invalid_grant"))

	err := NewRefresher(store, auth, &core.MockPlayer{}, store, nil).
		RefreshRoom(context.Background(), models.Room{Pin: "AAAA", AccessToken: "a1", RefreshToken: "r1"})

	assert.Error(t, err)
	room, getErr := store.GetRoom(context.Background(), "AAAA")
	require.NoError(t, getErr)
	assert.Equal(t, "a1", room.AccessToken)
}
