package room

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jukebox-rooms/internal/core"
	"github.com/jukebox-rooms/internal/errs"
	"github.com/jukebox-rooms/internal/testutil"
	"github.com/jukebox-rooms/pkg/events"
	"github.com/jukebox-rooms/pkg/models"
)

func newTestService() (*Service, *testutil.MemStore, *core.MockPlayer, *testutil.RecordingPublisher) {
	store := testutil.NewMemStore()
	player := new(core.MockPlayer)
	pub := &testutil.RecordingPublisher{}
	return NewService(store, player, pub), store, player, pub
}

func TestCreateRoomImportsTopTracks(t *testing.T) {
	svc, store, player, _ := newTestService()
	svc.newPin = func() string { return "ABCD" }
	player.On("GetTopTracks", mock.Anything, "tok").Return([]models.Track{
		{ID: "a"}, {ID: "b"}, {ID: "a"}, {ID: "c"},
	}, nil)

	room, err := svc.CreateRoom(context.Background(), CreateRoomInput{OwnerID: "owner", AccessToken: "tok", RefreshToken: "ref"})
	require.NoError(t, err)
	assert.Equal(t, "ABCD", room.Pin)
	assert.Equal(t, -1, room.CurrentIndex)
	assert.Equal(t, []string{"a", "b", "c"}, store.TrackOrder("ABCD"))
	player.AssertExpectations(t)
}

func TestCreateRoomUsesPlaylist(t *testing.T) {
	svc, store, player, _ := newTestService()
	svc.newPin = func() string { return "PLAY" }
	player.On("GetPlaylistTracks", mock.Anything, "tok", "pl").Return([]models.Track{{ID: "x"}}, nil)

	_, err := svc.CreateRoom(context.Background(), CreateRoomInput{OwnerID: "owner", AccessToken: "tok", PlaylistID: "pl"})
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, store.TrackOrder("PLAY"))
	player.AssertNotCalled(t, "GetTopTracks", mock.Anything, mock.Anything)
}

func TestCreateRoomRetriesPinCollision(t *testing.T) {
	svc, store, player, _ := newTestService()
	store.SeedRoom(models.Room{Pin: "TAKN", OwnerID: "someone-else", AccessToken: "t"}, "z")
	pins := []string{"TAKN", "FREE"}
	svc.newPin = func() string {
		p := pins[0]
		pins = pins[1:]
		return p
	}
	player.On("GetTopTracks", mock.Anything, "tok").Return([]models.Track{{ID: "a"}}, nil)

	room, err := svc.CreateRoom(context.Background(), CreateRoomInput{OwnerID: "owner", AccessToken: "tok"})
	require.NoError(t, err)
	assert.Equal(t, "FREE", room.Pin)
}

func TestCreateRoomIsIdempotentPerOwner(t *testing.T) {
	svc, store, player, _ := newTestService()
	store.SeedRoom(models.Room{Pin: "MINE", OwnerID: "owner"}, "a")

	room, err := svc.CreateRoom(context.Background(), CreateRoomInput{OwnerID: "owner", AccessToken: "fresh"})
	require.NoError(t, err)
	assert.Equal(t, "MINE", room.Pin)

	stored, err := store.GetRoom(context.Background(), "MINE")
	require.NoError(t, err)
	assert.Equal(t, "fresh", stored.AccessToken)
	player.AssertNotCalled(t, "GetTopTracks", mock.Anything, mock.Anything)
}

func TestCreateRoomWithoutTracks(t *testing.T) {
	svc, _, player, _ := newTestService()
	player.On("GetTopTracks", mock.Anything, "tok").Return([]models.Track{}, nil)

	_, err := svc.CreateRoom(context.Background(), CreateRoomInput{OwnerID: "owner", AccessToken: "tok"})
	assert.True(t, errs.IsUnprocessable(err))
}

func TestAddTracksSkipsDuplicatesAndPublishes(t *testing.T) {
	svc, store, _, pub := newTestService()
	store.SeedRoom(models.Room{Pin: "ROOM", OwnerID: "owner", AccessToken: "tok"}, "a", "b")

	added, err := svc.AddTracks(context.Background(), "room", []models.Track{{ID: "b"}, {ID: "spotify:track:c"}, {ID: "c"}})
	require.NoError(t, err)
	require.Len(t, added, 1)
	assert.Equal(t, "c", added[0].ID)
	assert.Equal(t, 2, added[0].Index)
	assert.Equal(t, []string{"a", "b", "c"}, store.TrackOrder("ROOM"))
	assert.Equal(t, []string{events.TracksAddedTopic("ROOM")}, pub.Topics())

	again, err := svc.AddTracks(context.Background(), "ROOM", []models.Track{{ID: "c"}})
	require.NoError(t, err)
	assert.Empty(t, again)
	assert.Len(t, pub.Messages(), 1)
}

func TestAddTracksValidation(t *testing.T) {
	svc, store, _, _ := newTestService()
	store.SeedRoom(models.Room{Pin: "ROOM"}, "a")

	_, err := svc.AddTracks(context.Background(), "ROOM", nil)
	assert.True(t, errs.IsValidation(err))

	_, err = svc.AddTracks(context.Background(), "TOOLONG", []models.Track{{ID: "x"}})
	assert.True(t, errs.IsValidation(err))

	_, err = svc.AddTracks(context.Background(), "NONE", []models.Track{{ID: "x"}})
	assert.True(t, errs.IsNotFound(err))
}

func TestRecordVotePublishesScores(t *testing.T) {
	svc, store, _, pub := newTestService()
	store.SeedRoom(models.Room{Pin: "ROOM", AccessToken: "tok", CurrentIndex: 0}, "a", "b", "c", "d")

	require.NoError(t, svc.RecordVote(context.Background(), "ROOM", "alice", "c", models.VoteUp))
	require.NoError(t, svc.RecordVote(context.Background(), "ROOM", "bob", "d", models.VoteDown))

	msgs := pub.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, events.VotesTopic("ROOM"), msgs[1].Topic)
	payload, ok := msgs[1].Payload.(events.VotesPayload)
	require.True(t, ok)
	assert.Equal(t, map[string]int{"c": 1, "d": -1}, payload.Scores)
}

func TestRecordVoteOnPinnedTrackIsSilent(t *testing.T) {
	svc, store, _, pub := newTestService()
	store.SeedRoom(models.Room{Pin: "ROOM", AccessToken: "tok", CurrentIndex: 0}, "a", "b", "c")

	require.NoError(t, svc.RecordVote(context.Background(), "ROOM", "alice", "b", models.VoteUp))
	assert.Empty(t, pub.Messages())

	votes, _, err := svc.GetVotes(context.Background(), "ROOM")
	require.NoError(t, err)
	assert.Empty(t, votes)
}

func TestSkip(t *testing.T) {
	t.Run("owner only", func(t *testing.T) {
		svc, store, player, _ := newTestService()
		store.SeedRoom(models.Room{Pin: "ROOM", OwnerID: "owner", AccessToken: "tok"}, "a")

		err := svc.Skip(context.Background(), "ROOM", "guest")
		assert.True(t, errs.IsUnauthorized(err))
		player.AssertNotCalled(t, "Skip", mock.Anything, mock.Anything)
	})

	t.Run("refused", func(t *testing.T) {
		svc, store, player, _ := newTestService()
		store.SeedRoom(models.Room{Pin: "ROOM", OwnerID: "owner", AccessToken: "tok"}, "a")
		player.On("Skip", mock.Anything, "tok").Return(false, nil)

		err := svc.Skip(context.Background(), "ROOM", "owner")
		assert.True(t, errs.IsUnprocessable(err))
	})

	t.Run("accepted", func(t *testing.T) {
		svc, store, player, _ := newTestService()
		store.SeedRoom(models.Room{Pin: "ROOM", OwnerID: "owner", AccessToken: "tok"}, "a")
		player.On("Skip", mock.Anything, "tok").Return(true, nil)

		assert.NoError(t, svc.Skip(context.Background(), "ROOM", "owner"))
	})
}

func TestRestartWhilePlayingConflicts(t *testing.T) {
	svc, store, player, _ := newTestService()
	store.SeedRoom(models.Room{Pin: "ROOM", OwnerID: "owner", AccessToken: "tok", CurrentIndex: 2}, "a", "b", "c")
	player.On("GetCurrentPlayback", mock.Anything, "tok").Return(&core.Playback{URI: "spotify:track:c", IsPlaying: true}, nil)

	err := svc.Restart(context.Background(), "ROOM", "owner")
	assert.True(t, errs.IsConflict(err))
	player.AssertNotCalled(t, "Play", mock.Anything, mock.Anything, mock.Anything)
}

func TestRestartPlaysFromTheTop(t *testing.T) {
	svc, store, player, pub := newTestService()
	store.SeedRoom(models.Room{Pin: "ROOM", OwnerID: "owner", AccessToken: "tok", CurrentIndex: 2, LastPlayedIndex: 1}, "a", "b", "c")
	player.On("GetCurrentPlayback", mock.Anything, "tok").Return(&core.Playback{URI: "spotify:track:c", IsPlaying: false}, nil)
	player.On("Play", mock.Anything, "tok", "spotify:track:a").Return(nil)
	player.On("Enqueue", mock.Anything, "tok", "spotify:track:b").Return(nil)

	require.NoError(t, svc.Restart(context.Background(), "ROOM", "owner"))

	room, err := store.GetRoom(context.Background(), "ROOM")
	require.NoError(t, err)
	assert.Equal(t, 0, room.CurrentIndex)
	assert.Equal(t, -1, room.LastPlayedIndex)
	assert.Equal(t, []string{events.TrackActiveTopic("ROOM")}, pub.Topics())
	player.AssertExpectations(t)
}

func TestCloseRoom(t *testing.T) {
	svc, store, _, _ := newTestService()
	store.SeedRoom(models.Room{Pin: "ROOM", OwnerID: "owner"}, "a")
	store.SeedVote("ROOM", "alice", "a", models.VoteUp)

	assert.True(t, errs.IsUnauthorized(svc.CloseRoom(context.Background(), "ROOM", "guest")))
	require.NoError(t, svc.CloseRoom(context.Background(), "ROOM", "owner"))

	_, err := store.GetRoom(context.Background(), "ROOM")
	assert.True(t, errs.IsNotFound(err))
}
